// Command rufs inspects and edits a rufs image file.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/rufs-project/rufs/common"
	"github.com/rufs-project/rufs/config"
	"github.com/rufs-project/rufs/disk"
	"github.com/rufs-project/rufs/fs"
	"github.com/rufs-project/rufs/super"
	"github.com/rufs-project/rufs/util"
)

const usage = `usage: rufs [-config file] [-image file] command [args]

commands:
  format               create a fresh image, replacing any existing one
  df                   show usage
  ls PATH              list a directory
  stat PATH            show metadata
  mkdir PATH           create a directory
  rmdir PATH           remove an empty directory
  touch PATH           create an empty file
  cat PATH             print a file
  put PATH             copy stdin into a file
  truncate PATH SIZE   set the size of a file
  rm PATH              remove a file
`

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "rufs: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	flags := flag.NewFlagSet("rufs", flag.ContinueOnError)
	flags.Usage = func() { fmt.Fprint(flags.Output(), usage) }
	configPath := flags.String("config", "rufs.yaml", "Config file, created with defaults if missing")
	image := flags.String("image", "", "Image file, overrides disk.path")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return fmt.Errorf("%w: no command", common.ErrInvalid)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *image != "" {
		cfg.Disk.Path = *image
	}
	log, err := util.NewLogger(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer log.Sync()
	util.SetLogger(log)

	cmd, rest := flags.Arg(0), flags.Args()[1:]
	if cmd == "format" {
		return format(cfg.Disk.Path, cfg.Geometry())
	}

	fsys, err := fs.Mount(cfg.Disk.Path, cfg.Geometry())
	if err != nil {
		return err
	}
	util.Logger().Infow("mounted", "image", cfg.Disk.Path, "id", fsys.Super().FsID)
	err = dispatch(fsys, cmd, rest, stdin, stdout)
	if uerr := fsys.Unmount(); err == nil {
		err = uerr
	}
	return err
}

func format(path string, geo super.Geometry) error {
	sb, err := super.MkFsSuper(geo)
	if err != nil {
		return err
	}
	d, err := disk.NewFileDisk(path, sb.NBlocks(), geo.BlockSize)
	if err != nil {
		return err
	}
	fsys, err := fs.Format(d, geo)
	if err != nil {
		d.Close()
		return err
	}
	util.Logger().Infow("formatted", "image", path, "blocks", sb.NBlocks(), "id", fsys.Super().FsID)
	return fsys.Unmount()
}

func need(cmd string, args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("%w: %s takes %d argument(s)", common.ErrInvalid, cmd, n)
	}
	return nil
}

func dispatch(fsys *fs.Filesystem, cmd string, args []string, stdin io.Reader, stdout io.Writer) error {
	switch cmd {
	case "df":
		sf, err := fsys.Statfs()
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "id %v\nblock size %d\nblocks %d used %d free %d\ninodes %d used %d free %d\n",
			sf.FsID, sf.BlockSize, sf.Blocks, sf.Blocks-sf.BlocksFree, sf.BlocksFree,
			sf.Files, sf.Files-sf.FilesFree, sf.FilesFree)
		return nil
	case "ls":
		if err := need(cmd, args, 1); err != nil {
			return err
		}
		ents, err := fsys.Readdir(args[0])
		if err != nil {
			return err
		}
		for _, e := range ents {
			fmt.Fprintf(stdout, "%#o %3d %8d %s\n", e.Stat.Mode, e.Stat.Inum, e.Stat.Size, e.Name)
		}
		return nil
	case "stat":
		if err := need(cmd, args, 1); err != nil {
			return err
		}
		st, err := fsys.Getattr(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "inode %d\nkind %v\nmode %#o\nlinks %d\nsize %d\nblocks %d\nmtime %v\n",
			st.Inum, st.Kind, st.Mode, st.Nlink, st.Size, st.Blocks, st.Mtime)
		return nil
	case "mkdir":
		if err := need(cmd, args, 1); err != nil {
			return err
		}
		return fsys.Mkdir(args[0], common.DIRMODE)
	case "rmdir":
		if err := need(cmd, args, 1); err != nil {
			return err
		}
		return fsys.Rmdir(args[0])
	case "touch":
		if err := need(cmd, args, 1); err != nil {
			return err
		}
		return fsys.Create(args[0], common.FILEMODE)
	case "cat":
		if err := need(cmd, args, 1); err != nil {
			return err
		}
		st, err := fsys.Getattr(args[0])
		if err != nil {
			return err
		}
		data, err := fsys.Read(args[0], 0, st.Size)
		if err != nil {
			return err
		}
		_, err = stdout.Write(data)
		return err
	case "put":
		if err := need(cmd, args, 1); err != nil {
			return err
		}
		data, err := io.ReadAll(stdin)
		if err != nil {
			return err
		}
		if err := fsys.Create(args[0], common.FILEMODE); err != nil && fs.Errno(err) != fs.Errno(common.ErrExists) {
			return err
		}
		if err := fsys.Truncate(args[0], 0); err != nil {
			return err
		}
		_, err = fsys.Write(args[0], 0, data)
		return err
	case "truncate":
		if err := need(cmd, args, 2); err != nil {
			return err
		}
		size, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("%w: size %q", common.ErrInvalid, args[1])
		}
		return fsys.Truncate(args[0], size)
	case "rm":
		if err := need(cmd, args, 1); err != nil {
			return err
		}
		return fsys.Unlink(args[0])
	}
	return fmt.Errorf("%w: unknown command %q", common.ErrInvalid, cmd)
}
