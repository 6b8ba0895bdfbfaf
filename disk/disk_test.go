package disk

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gdisk "github.com/tchajed/goose/machine/disk"

	"github.com/rufs-project/rufs/common"
)

func mkBlock(sz uint64, b byte) Block {
	return bytes.Repeat([]byte{b}, int(sz))
}

func testReadWrite(t *testing.T, d Disk) {
	assert := assert.New(t)
	bs := d.BlockSize()

	blk, err := d.Read(1)
	require.NoError(t, err)
	assert.Equal(mkBlock(bs, 0), blk, "fresh blocks read as zero")

	require.NoError(t, d.Write(1, mkBlock(bs, 1)))
	require.NoError(t, d.Write(2, mkBlock(bs, 2)))
	blk, err = d.Read(1)
	require.NoError(t, err)
	assert.Equal(mkBlock(bs, 1), blk)

	buf := make(Block, bs)
	require.NoError(t, d.ReadTo(2, buf))
	assert.Equal(mkBlock(bs, 2), buf)

	blk[0] = 7
	blk2, err := d.Read(1)
	require.NoError(t, err)
	assert.Equal(byte(1), blk2[0], "Read must return a private copy")

	require.NoError(t, Zero(d, 2))
	blk, _ = d.Read(2)
	assert.Equal(mkBlock(bs, 0), blk)

	_, err = d.Read(d.Size())
	assert.ErrorIs(err, common.ErrDevice)
	err = d.Write(d.Size(), mkBlock(bs, 0))
	assert.ErrorIs(err, common.ErrDevice)
	err = d.Write(0, make(Block, bs-1))
	assert.ErrorIs(err, common.ErrDevice)

	assert.NoError(d.Barrier())
}

func TestMemDisk(t *testing.T) {
	d := NewMemDisk(16, 1024)
	assert.Equal(t, uint64(16), d.Size())
	testReadWrite(t, d)
	assert.NoError(t, d.Close())
}

func TestGooseDisk(t *testing.T) {
	d := FromGoose(gdisk.NewMemDisk(16))
	assert.Equal(t, gdisk.BlockSize, d.BlockSize())
	testReadWrite(t, d)
	assert.NoError(t, d.Close())
}

func TestFileDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "DISKFILE")

	ok, err := Exists(path)
	require.NoError(t, err)
	assert.False(t, ok)

	d, err := NewFileDisk(path, 16, 4096)
	require.NoError(t, err)
	testReadWrite(t, d)
	require.NoError(t, d.Write(3, mkBlock(4096, 3)))
	require.NoError(t, d.Close())

	ok, err = Exists(path)
	require.NoError(t, err)
	assert.True(t, ok)

	d, err = OpenFileDisk(path, 4096)
	require.NoError(t, err)
	defer d.Close()
	assert.Equal(t, uint64(16), d.Size())
	blk, err := d.Read(3)
	require.NoError(t, err)
	assert.Equal(t, mkBlock(4096, 3), blk, "data survives reopen")
}

func TestOpenMissing(t *testing.T) {
	_, err := OpenFileDisk(filepath.Join(t.TempDir(), "nope"), 4096)
	assert.ErrorIs(t, err, common.ErrDevice)
}
