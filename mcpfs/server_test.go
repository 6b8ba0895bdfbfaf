package mcpfs

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rufs-project/rufs/common"
	"github.com/rufs-project/rufs/disk"
	"github.com/rufs-project/rufs/fs"
	"github.com/rufs-project/rufs/super"
)

func mkServer(t *testing.T) *Server {
	geo := super.Geometry{BlockSize: 1024, MaxInodes: 32, MaxDataBlocks: 64}
	sb, err := super.MkFsSuper(geo)
	require.NoError(t, err)
	fsys, err := fs.Format(disk.NewMemDisk(sb.NBlocks(), geo.BlockSize), geo)
	require.NoError(t, err)
	return NewServer(fsys, "rufs-test", "0.0.1")
}

func call(args map[string]any) mcp.CallToolRequest {
	var request mcp.CallToolRequest
	request.Params.Arguments = args
	return request
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestWriteRead(t *testing.T) {
	s := mkServer(t)
	ctx := context.Background()

	res, err := s.handleMkdir(ctx, call(map[string]any{"path": "/docs"}))
	require.NoError(t, err)
	assert.False(t, res.IsError, text(t, res))

	res, err = s.handleWrite(ctx, call(map[string]any{"path": "/docs/a.txt", "content": "hello world"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "wrote 11 bytes to /docs/a.txt", text(t, res))

	res, err = s.handleRead(ctx, call(map[string]any{"path": "/docs/a.txt"}))
	require.NoError(t, err)
	assert.Equal(t, "hello world", text(t, res))

	res, err = s.handleRead(ctx, call(map[string]any{"path": "/docs/a.txt", "offset": float64(6), "length": float64(3)}))
	require.NoError(t, err)
	assert.Equal(t, "wor", text(t, res))

	// writing again overwrites in place
	res, err = s.handleWrite(ctx, call(map[string]any{"path": "/docs/a.txt", "content": "HELLO"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	res, err = s.handleRead(ctx, call(map[string]any{"path": "/docs/a.txt"}))
	require.NoError(t, err)
	assert.Equal(t, "HELLO world", text(t, res))

	res, err = s.handleReaddir(ctx, call(map[string]any{"path": "/docs"}))
	require.NoError(t, err)
	assert.Equal(t, ".\tdir\t768\n..\tdir\t768\na.txt\tfile\t11\n", text(t, res))

	res, err = s.handleGetattr(ctx, call(map[string]any{"path": "/docs/a.txt"}))
	require.NoError(t, err)
	assert.Contains(t, text(t, res), "size 11")
}

func TestErrors(t *testing.T) {
	s := mkServer(t)
	ctx := context.Background()

	res, err := s.handleGetattr(ctx, call(map[string]any{"path": "/missing"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "ENOENT")

	res, err = s.handleGetattr(ctx, call(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError, "path is required")

	res, err = s.handleRmdir(ctx, call(map[string]any{"path": "/"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "EINVAL")

	res, err = s.handleRead(ctx, call(map[string]any{"path": "/", "offset": float64(0)}))
	require.NoError(t, err)
	assert.Contains(t, text(t, res), "EISDIR")

	res, err = s.handleTruncate(ctx, call(map[string]any{"path": "/x", "size": float64(-1)}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestMode(t *testing.T) {
	s := mkServer(t)
	ctx := context.Background()

	res, err := s.handleMkdir(ctx, call(map[string]any{"path": "/d", "mode": float64(-1)}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "EINVAL")
	_, err = s.fsys.Getattr("/d")
	assert.ErrorIs(t, err, common.ErrNotFound, "nothing created")

	res, err = s.handleCreate(ctx, call(map[string]any{"path": "/f", "mode": float64(1 << 32)}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "EINVAL")

	res, err = s.handleCreate(ctx, call(map[string]any{"path": "/f", "mode": float64(0600)}))
	require.NoError(t, err)
	assert.False(t, res.IsError, text(t, res))
	st, err := s.fsys.Getattr("/f")
	require.NoError(t, err)
	assert.Equal(t, uint32(0600), st.Mode&07777)

	res, err = s.handleMkdir(ctx, call(map[string]any{"path": "/d"}))
	require.NoError(t, err)
	assert.False(t, res.IsError, text(t, res))
	st, err = s.fsys.Getattr("/d")
	require.NoError(t, err)
	assert.Equal(t, common.DIRMODE, st.Mode&07777)
}

func TestLifecycle(t *testing.T) {
	s := mkServer(t)
	ctx := context.Background()

	for _, step := range []struct {
		h    func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
		args map[string]any
	}{
		{s.handleMkdir, map[string]any{"path": "/d", "mode": float64(0700)}},
		{s.handleCreate, map[string]any{"path": "/d/f"}},
		{s.handleTruncate, map[string]any{"path": "/d/f", "size": float64(4000)}},
		{s.handleUnlink, map[string]any{"path": "/d/f"}},
		{s.handleRmdir, map[string]any{"path": "/d"}},
	} {
		res, err := step.h(ctx, call(step.args))
		require.NoError(t, err)
		require.False(t, res.IsError, text(t, res))
	}

	res, err := s.handleStatfs(ctx, call(nil))
	require.NoError(t, err)
	assert.Contains(t, text(t, res), "blocks 64 free 63")
	assert.Contains(t, text(t, res), "inodes 32 free 31")
	assert.NotNil(t, s.MCPServer())
}
