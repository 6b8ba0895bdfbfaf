package file

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rufs-project/rufs/alloc"
	"github.com/rufs-project/rufs/common"
	"github.com/rufs-project/rufs/disk"
	"github.com/rufs-project/rufs/inode"
	"github.com/rufs-project/rufs/super"
)

const bs uint64 = 1024

type env struct {
	e      *Engine
	itable *inode.Table
	balloc *alloc.Alloc
}

// failingDisk fails every write for which fail returns true.
type failingDisk struct {
	disk.Disk
	fail func(a uint64) bool
}

func (d *failingDisk) Write(a uint64, v disk.Block) error {
	if d.fail != nil && d.fail(a) {
		return fmt.Errorf("%w: write of block %d", common.ErrDevice, a)
	}
	return d.Disk.Write(a, v)
}

func mkEnv(t *testing.T, ndata uint64) env {
	env, _, _ := mkEnvOn(t, ndata)
	return env
}

func mkEnvOn(t *testing.T, ndata uint64) (env, *failingDisk, *super.FsSuper) {
	fs, err := super.MkFsSuper(super.Geometry{BlockSize: bs, MaxInodes: 16, MaxDataBlocks: ndata})
	require.NoError(t, err)
	d := &failingDisk{Disk: disk.NewMemDisk(fs.NBlocks(), bs)}
	itable := inode.MkTable(d, fs)
	balloc, err := alloc.MkAlloc(d, fs.DBitmapBlk, fs.MaxDnum, uint64(fs.DStartBlk), common.ErrOutOfSpace)
	require.NoError(t, err)
	return env{e: MkEngine(d, itable, balloc), itable: itable, balloc: balloc}, d, fs
}

func mkFile() *inode.Inode {
	return inode.MkInode(1, common.KindFile, common.FILEMODE)
}

func pattern(n uint64) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i%251) + 1
	}
	return data
}

func TestWriteRead(t *testing.T) {
	assert := assert.New(t)
	env := mkEnv(t, 64)
	ip := mkFile()

	n, err := env.e.Write(ip, 0, []byte("hello world"))
	require.NoError(t, err)
	assert.Equal(11, n)
	assert.Equal(uint64(11), ip.Size)
	assert.Equal(uint64(1), ip.Blocks)

	data, err := env.e.Read(ip, 0, 100)
	require.NoError(t, err)
	assert.Equal([]byte("hello world"), data, "read clamps to size")

	data, err = env.e.Read(ip, 6, 3)
	require.NoError(t, err)
	assert.Equal([]byte("wor"), data)

	data, err = env.e.Read(ip, 11, 10)
	require.NoError(t, err)
	assert.Empty(data, "read at EOF")

	n, err = env.e.Write(ip, 0, []byte("HELLO"))
	require.NoError(t, err)
	assert.Equal(5, n)
	data, err = env.e.Read(ip, 0, 11)
	require.NoError(t, err)
	assert.Equal([]byte("HELLO world"), data, "partial block overwrite keeps the rest")

	onDisk, err := env.itable.ReadInode(1)
	require.NoError(t, err)
	assert.Equal(ip, onDisk, "Write persists the inode")
}

func TestIndirectBoundary(t *testing.T) {
	assert := assert.New(t)
	env := mkEnv(t, 64)
	ip := mkFile()
	size := common.NDIRECT*bs + 10
	data := pattern(size)

	n, err := env.e.Write(ip, 0, data)
	require.NoError(t, err)
	assert.Equal(int(size), n)
	assert.Equal(common.NDIRECT+1, ip.Blocks)
	assert.NotEqual(common.NULLBNUM, ip.Indirect[0])
	assert.Equal(common.NULLBNUM, ip.Indirect[1])
	// 17 data blocks plus the indirect block
	assert.Equal(uint64(18), env.balloc.NumUsed())

	got, err := env.e.Read(ip, 0, size)
	require.NoError(t, err)
	assert.True(bytes.Equal(data, got))

	// a read straddling the last direct and first indirect block
	got, err = env.e.Read(ip, common.NDIRECT*bs-4, 8)
	require.NoError(t, err)
	assert.Equal(data[common.NDIRECT*bs-4:common.NDIRECT*bs+4], got)
}

func TestWritePastEOF(t *testing.T) {
	assert := assert.New(t)
	env := mkEnv(t, 64)
	ip := mkFile()
	off := 3*bs + 5

	n, err := env.e.Write(ip, off, []byte("x"))
	require.NoError(t, err)
	assert.Equal(1, n)
	assert.Equal(off+1, ip.Size)
	for i := 0; i < 4; i++ {
		assert.NotEqual(common.NULLBNUM, ip.Direct[i], "gap block %d", i)
	}
	assert.Equal(common.NULLBNUM, ip.Direct[4])

	data, err := env.e.Read(ip, 0, off+1)
	require.NoError(t, err)
	assert.Equal(make([]byte, off), data[:off], "gap reads as zeros")
	assert.Equal(byte('x'), data[off])
}

func TestOutOfSpace(t *testing.T) {
	assert := assert.New(t)
	env := mkEnv(t, 8)
	ip := mkFile()

	n, err := env.e.Write(ip, 0, pattern(10*bs))
	assert.ErrorIs(err, common.ErrOutOfSpace)
	assert.Equal(int(8*bs), n, "blocks written before exhaustion stay")
	assert.Equal(8*bs, ip.Size)

	onDisk, err := env.itable.ReadInode(1)
	require.NoError(t, err)
	assert.Equal(8*bs, onDisk.Size)

	data, err := env.e.Read(ip, 0, 8*bs)
	require.NoError(t, err)
	assert.Equal(pattern(10 * bs)[:8*bs], data)
}

func TestTooBig(t *testing.T) {
	assert := assert.New(t)
	env := mkEnv(t, 8)
	ip := mkFile()
	assert.Equal((common.NDIRECT+common.NINDIRECT*bs/8)*bs, env.e.MaxSize())

	_, err := env.e.Write(ip, env.e.MaxSize(), []byte("x"))
	assert.ErrorIs(err, common.ErrFileTooBig)
	_, err = env.e.Write(ip, env.e.MaxSize()-1, []byte("xy"))
	assert.ErrorIs(err, common.ErrFileTooBig)
	assert.Equal(uint64(0), env.balloc.NumUsed(), "rejected writes allocate nothing")

	assert.ErrorIs(env.e.Truncate(ip, env.e.MaxSize()+1), common.ErrFileTooBig)
}

func TestTruncate(t *testing.T) {
	assert := assert.New(t)
	env := mkEnv(t, 64)
	ip := mkFile()
	data := pattern(20 * bs)

	_, err := env.e.Write(ip, 0, data)
	require.NoError(t, err)
	assert.Equal(uint64(21), env.balloc.NumUsed())

	require.NoError(t, env.e.Truncate(ip, 10))
	assert.Equal(uint64(10), ip.Size)
	assert.Equal(uint64(1), ip.Blocks)
	assert.Equal(uint64(1), env.balloc.NumUsed())
	assert.Equal(common.NULLBNUM, ip.Indirect[0], "empty indirect block is freed")

	require.NoError(t, env.e.Truncate(ip, 3000))
	assert.Equal(uint64(3), ip.Blocks)
	got, err := env.e.Read(ip, 0, 3000)
	require.NoError(t, err)
	assert.Equal(data[:10], got[:10])
	assert.Equal(make([]byte, 2990), got[10:], "grown region reads as zeros")

	onDisk, err := env.itable.ReadInode(1)
	require.NoError(t, err)
	assert.Equal(uint64(3000), onDisk.Size)
}

func TestTruncateInsideIndirect(t *testing.T) {
	assert := assert.New(t)
	env := mkEnv(t, 64)
	ip := mkFile()
	data := pattern(20 * bs)

	_, err := env.e.Write(ip, 0, data)
	require.NoError(t, err)
	require.NoError(t, env.e.Truncate(ip, 18*bs))
	assert.NotEqual(common.NULLBNUM, ip.Indirect[0])
	assert.Equal(uint64(19), env.balloc.NumUsed())

	got, err := env.e.Read(ip, 0, 20*bs)
	require.NoError(t, err)
	assert.Equal(data[:18*bs], got)
}

func TestFree(t *testing.T) {
	env := mkEnv(t, 64)
	ip := mkFile()
	_, err := env.e.Write(ip, 0, pattern(30*bs))
	require.NoError(t, err)
	require.NoError(t, env.e.Free(ip))
	assert.Equal(t, uint64(0), env.balloc.NumUsed())
	assert.Equal(t, uint64(0), ip.Size)
}

func TestDirRejected(t *testing.T) {
	env := mkEnv(t, 8)
	dp := inode.MkInode(2, common.KindDir, common.DIRMODE)
	_, err := env.e.Read(dp, 0, 1)
	assert.ErrorIs(t, err, common.ErrIsDir)
	_, err = env.e.Write(dp, 0, []byte("x"))
	assert.ErrorIs(t, err, common.ErrIsDir)
}

func TestWriteFailureFreesNewBlock(t *testing.T) {
	assert := assert.New(t)
	env, d, fs := mkEnvOn(t, 64)
	ip := mkFile()

	d.fail = func(a uint64) bool { return fs.IsDataBlock(common.Bnum(a)) }
	n, err := env.e.Write(ip, 0, []byte("x"))
	assert.ErrorIs(err, common.ErrDevice)
	assert.Equal(0, n)
	assert.Equal(uint64(0), env.balloc.NumUsed(), "zeroing failed, block returned")
	assert.Equal(common.NULLBNUM, ip.Direct[0])

	d.fail = nil
	_, err = env.e.Write(ip, 0, pattern((common.NDIRECT+1)*bs))
	require.NoError(t, err)
	used := env.balloc.NumUsed()
	assert.Equal(uint64(common.NDIRECT+2), used, "data blocks plus one indirect block")

	ind := uint64(ip.Indirect[0])
	d.fail = func(a uint64) bool { return a == ind }
	n, err = env.e.Write(ip, (common.NDIRECT+1)*bs, []byte("y"))
	assert.ErrorIs(err, common.ErrDevice)
	assert.Equal(0, n)
	assert.Equal(used, env.balloc.NumUsed(), "pointer not recorded, block returned")
	assert.Equal((common.NDIRECT+1)*bs, ip.Size)
}
