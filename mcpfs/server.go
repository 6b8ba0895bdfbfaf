// Package mcpfs serves a mounted filesystem as a set of MCP tools, so that an
// agent can browse and edit the image without a kernel mount.
package mcpfs

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sys/unix"

	"github.com/rufs-project/rufs/common"
	"github.com/rufs-project/rufs/fs"
	"github.com/rufs-project/rufs/inode"
	"github.com/rufs-project/rufs/util"
)

type Server struct {
	fsys *fs.Filesystem
	srv  *server.MCPServer
}

func NewServer(fsys *fs.Filesystem, name string, version string) *Server {
	s := &Server{
		fsys: fsys,
		srv:  server.NewMCPServer(name, version, server.WithToolCapabilities(false)),
	}
	s.addTools()
	return s
}

func (s *Server) MCPServer() *server.MCPServer {
	return s.srv
}

func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.srv)
}

func pathArg() mcp.ToolOption {
	return mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path inside the image"))
}

func (s *Server) addTools() {
	tools := []struct {
		tool mcp.Tool
		h    server.ToolHandlerFunc
	}{
		{mcp.NewTool("getattr",
			mcp.WithDescription("Show the metadata of a file or directory"),
			pathArg()), s.handleGetattr},
		{mcp.NewTool("readdir",
			mcp.WithDescription("List a directory"),
			pathArg()), s.handleReaddir},
		{mcp.NewTool("mkdir",
			mcp.WithDescription("Create a directory"),
			pathArg(),
			mcp.WithNumber("mode", mcp.Description("Permission bits, default 0755"))), s.handleMkdir},
		{mcp.NewTool("rmdir",
			mcp.WithDescription("Remove an empty directory"),
			pathArg()), s.handleRmdir},
		{mcp.NewTool("create",
			mcp.WithDescription("Create an empty file"),
			pathArg(),
			mcp.WithNumber("mode", mcp.Description("Permission bits, default 0644"))), s.handleCreate},
		{mcp.NewTool("read",
			mcp.WithDescription("Read bytes from a file"),
			pathArg(),
			mcp.WithNumber("offset", mcp.Description("Byte offset, default 0")),
			mcp.WithNumber("length", mcp.Description("Byte count, default the whole file"))), s.handleRead},
		{mcp.NewTool("write",
			mcp.WithDescription("Write text into a file, creating it if needed"),
			pathArg(),
			mcp.WithString("content", mcp.Required(), mcp.Description("Text to write")),
			mcp.WithNumber("offset", mcp.Description("Byte offset, default 0"))), s.handleWrite},
		{mcp.NewTool("unlink",
			mcp.WithDescription("Remove a file"),
			pathArg()), s.handleUnlink},
		{mcp.NewTool("truncate",
			mcp.WithDescription("Set the size of a file"),
			pathArg(),
			mcp.WithNumber("size", mcp.Required(), mcp.Description("New size in bytes"))), s.handleTruncate},
		{mcp.NewTool("statfs",
			mcp.WithDescription("Show filesystem usage")), s.handleStatfs},
	}
	for _, t := range tools {
		s.srv.AddTool(t.tool, t.h)
	}
}

func toolError(op string, path string, err error) *mcp.CallToolResult {
	util.DPrintf(3, "mcpfs %s %q: %v\n", op, path, err)
	return mcp.NewToolResultError(fmt.Sprintf("%s %s: %s: %v",
		op, path, unix.ErrnoName(fs.Errno(err)), err))
}

func formatStat(path string, st inode.Stat) string {
	return fmt.Sprintf("%s: inode %d %v mode %#o links %d size %d blocks %d mtime %s",
		path, st.Inum, st.Kind, st.Mode, st.Nlink, st.Size, st.Blocks,
		st.Mtime.UTC().Format("2006-01-02T15:04:05Z"))
}

func nonNegative(request mcp.CallToolRequest, key string, def int) (uint64, error) {
	v := request.GetInt(key, def)
	if v < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative", common.ErrInvalid, key)
	}
	return uint64(v), nil
}

// modeArg reads the permission bits argument.
func modeArg(request mcp.CallToolRequest, def uint32) (uint32, error) {
	mode, err := nonNegative(request, "mode", int(def))
	if err != nil {
		return 0, err
	}
	if mode > 07777 {
		return 0, fmt.Errorf("%w: mode %#o has bits outside 07777", common.ErrInvalid, mode)
	}
	return uint32(mode), nil
}

func (s *Server) handleGetattr(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	st, err := s.fsys.Getattr(path)
	if err != nil {
		return toolError("getattr", path, err), nil
	}
	return mcp.NewToolResultText(formatStat(path, st)), nil
}

func (s *Server) handleReaddir(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ents, err := s.fsys.Readdir(path)
	if err != nil {
		return toolError("readdir", path, err), nil
	}
	var b strings.Builder
	for _, e := range ents {
		fmt.Fprintf(&b, "%s\t%v\t%d\n", e.Name, e.Stat.Kind, e.Stat.Size)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleMkdir(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	mode, err := modeArg(request, common.DIRMODE)
	if err != nil {
		return toolError("mkdir", path, err), nil
	}
	if err := s.fsys.Mkdir(path, mode); err != nil {
		return toolError("mkdir", path, err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created directory %s", path)), nil
}

func (s *Server) handleRmdir(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.fsys.Rmdir(path); err != nil {
		return toolError("rmdir", path, err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("removed directory %s", path)), nil
}

func (s *Server) handleCreate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	mode, err := modeArg(request, common.FILEMODE)
	if err != nil {
		return toolError("create", path, err), nil
	}
	if err := s.fsys.Create(path, mode); err != nil {
		return toolError("create", path, err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created file %s", path)), nil
}

func (s *Server) handleRead(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	st, err := s.fsys.Getattr(path)
	if err != nil {
		return toolError("read", path, err), nil
	}
	off, err := nonNegative(request, "offset", 0)
	if err != nil {
		return toolError("read", path, err), nil
	}
	n, err := nonNegative(request, "length", int(st.Size))
	if err != nil {
		return toolError("read", path, err), nil
	}
	data, err := s.fsys.Read(path, off, n)
	if err != nil {
		return toolError("read", path, err), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleWrite(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := request.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	off, err := nonNegative(request, "offset", 0)
	if err != nil {
		return toolError("write", path, err), nil
	}
	if err := s.fsys.Create(path, common.FILEMODE); err != nil && fs.Errno(err) != unix.EEXIST {
		return toolError("write", path, err), nil
	}
	n, err := s.fsys.Write(path, off, []byte(content))
	if err != nil {
		return toolError("write", path, fmt.Errorf("after %d bytes: %w", n, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("wrote %d bytes to %s", n, path)), nil
}

func (s *Server) handleUnlink(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.fsys.Unlink(path); err != nil {
		return toolError("unlink", path, err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("removed %s", path)), nil
}

func (s *Server) handleTruncate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	size, err := nonNegative(request, "size", -1)
	if err != nil {
		return toolError("truncate", path, err), nil
	}
	if err := s.fsys.Truncate(path, size); err != nil {
		return toolError("truncate", path, err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s is now %d bytes", path, size)), nil
}

func (s *Server) handleStatfs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sf, err := s.fsys.Statfs()
	if err != nil {
		return toolError("statfs", "/", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"id %v\nblock size %d\nblocks %d free %d\ninodes %d free %d\nname max %d\n",
		sf.FsID, sf.BlockSize, sf.Blocks, sf.BlocksFree, sf.Files, sf.FilesFree, sf.NameMax)), nil
}
