package fs

import (
	"fmt"
	"strings"

	"github.com/rufs-project/rufs/common"
	"github.com/rufs-project/rufs/dir"
	"github.com/rufs-project/rufs/inode"
)

// components splits path into its names. One leading and one trailing '/'
// are allowed; anything else that yields an empty name is rejected.
func components(path string) ([]string, error) {
	if uint64(len(path)) > common.MAXPATHLEN {
		return nil, fmt.Errorf("%w: path of %d bytes", common.ErrInvalidPath, len(path))
	}
	p := strings.TrimPrefix(path, "/")
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return nil, nil
	}
	names := strings.Split(p, "/")
	for _, name := range names {
		if name == "" {
			return nil, fmt.Errorf("%w: empty component in %q", common.ErrInvalidPath, path)
		}
		if uint64(len(name)) > common.MAXNAMELEN {
			return nil, fmt.Errorf("%w: %w: component of %d bytes",
				common.ErrInvalidPath, common.ErrNameTooLong, len(name))
		}
		if strings.IndexByte(name, 0) >= 0 {
			return nil, fmt.Errorf("%w: NUL in %q", common.ErrInvalidPath, path)
		}
	}
	return names, nil
}

// Resolve walks path from directory start and returns the inode it names.
func (fsys *Filesystem) Resolve(path string, start common.Inum) (*inode.Inode, error) {
	names, err := components(path)
	if err != nil {
		return nil, err
	}
	return fsys.walk(names, start)
}

func (fsys *Filesystem) walk(names []string, start common.Inum) (*inode.Inode, error) {
	cur, err := fsys.readLive(start)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if !cur.IsDir() {
			return nil, fmt.Errorf("%w: %q under inode %d", common.ErrNotDir, name, cur.Inum)
		}
		de, err := fsys.dirs.Find(cur, name)
		if err != nil {
			return nil, err
		}
		if cur, err = fsys.readLive(de.Inum); err != nil {
			return nil, err
		}
	}
	return cur, nil
}

// splitPath resolves the directory holding the last name of path.
func (fsys *Filesystem) splitPath(path string) (*inode.Inode, string, error) {
	names, err := components(path)
	if err != nil {
		return nil, "", err
	}
	if len(names) == 0 {
		return nil, "", fmt.Errorf("%w: %q has no parent", common.ErrInvalid, path)
	}
	name := names[len(names)-1]
	if err := dir.ValidName(name); err != nil {
		return nil, "", err
	}
	parent, err := fsys.walk(names[:len(names)-1], common.ROOTINUM)
	if err != nil {
		return nil, "", err
	}
	if !parent.IsDir() {
		return nil, "", fmt.Errorf("%w: parent of %q", common.ErrNotDir, path)
	}
	return parent, name, nil
}
