// Command rufs-mcp serves a rufs image over MCP on stdin/stdout.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/rufs-project/rufs/config"
	"github.com/rufs-project/rufs/fs"
	"github.com/rufs-project/rufs/mcpfs"
	"github.com/rufs-project/rufs/util"
)

func main() {
	var (
		configPath = flag.String("config", "rufs.yaml", "Config file, created with defaults if missing")
		image      = flag.String("image", "", "Image file, overrides disk.path")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rufs-mcp: %v\n", err)
		os.Exit(1)
	}
	if *image != "" {
		cfg.Disk.Path = *image
	}
	log, err := util.NewLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rufs-mcp: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	util.SetLogger(log)

	fsys, err := fs.Mount(cfg.Disk.Path, cfg.Geometry())
	if err != nil {
		log.Fatal("mount failed", zap.String("image", cfg.Disk.Path), zap.Error(err))
	}
	log.Info("serving", zap.String("image", cfg.Disk.Path), zap.String("name", cfg.MCP.Name),
		zap.Stringer("id", fsys.Super().FsID))

	err = mcpfs.NewServer(fsys, cfg.MCP.Name, cfg.MCP.Version).ServeStdio()
	if uerr := fsys.Unmount(); uerr != nil {
		log.Error("unmount failed", zap.Error(uerr))
	}
	if err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
