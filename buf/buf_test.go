package buf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rufs-project/rufs/addr"
	"github.com/rufs-project/rufs/common"
	"github.com/rufs-project/rufs/disk"
)

func TestInstall(t *testing.T) {
	blk := make([]byte, 1024)
	blk[3] = 0xF0
	b := MkBuf(addr.MkAddr(0, 8), 4, []byte{1, 2, 3, 4})
	b.Install(blk)
	assert.Equal(t, []byte{1, 2, 3, 4}, blk[8:12])
	assert.Equal(t, byte(0xF0), blk[3], "neighbours untouched")
	assert.Equal(t, byte(0), blk[12])
}

func TestMkBufLoadAliases(t *testing.T) {
	blk := make([]byte, 1024)
	blk[16] = 9
	b := MkBufLoad(addr.MkAddr(0, 16), 8, blk)
	assert.Equal(t, byte(9), b.Data[0])
	b.Data[1] = 5
	assert.Equal(t, byte(5), blk[17])
}

func TestWriteDirectPreservesSiblings(t *testing.T) {
	d := disk.NewMemDisk(4, 1024)
	b0 := MkBuf(addr.MkAddr(1, 0), 512, make([]byte, 512))
	b0.Data[0] = 0xAA
	b1 := MkBuf(addr.MkAddr(1, 512), 512, make([]byte, 512))
	b1.Data[0] = 0xBB
	require.NoError(t, b0.WriteDirect(d))
	require.NoError(t, b1.WriteDirect(d))
	assert.False(t, b1.IsDirty())

	blk, err := d.Read(1)
	require.NoError(t, err)
	assert.Equal(t, byte(0xAA), blk[0])
	assert.Equal(t, byte(0xBB), blk[512])

	whole := MkBuf(addr.MkAddr(2, 0), 1024, make([]byte, 1024))
	whole.Data[1023] = 1
	require.NoError(t, whole.WriteDirect(d))
	blk, _ = d.Read(2)
	assert.Equal(t, byte(1), blk[1023])
}

func TestReadBuf(t *testing.T) {
	d := disk.NewMemDisk(4, 1024)
	_, err := ReadBuf(d, addr.MkAddr(0, 1000), 64)
	assert.ErrorIs(t, err, common.ErrInvalid)
	_, err = ReadBuf(d, addr.MkAddr(9, 0), 64)
	assert.ErrorIs(t, err, common.ErrDevice)
	b, err := ReadBuf(d, addr.MkAddr(3, 64), 64)
	require.NoError(t, err)
	assert.Equal(t, uint64(64), uint64(len(b.Data)))
}

func TestBnum(t *testing.T) {
	b := MkBuf(addr.MkAddr(0, 0), 32, make([]byte, 32))
	b.BnumPut(8, 1234567)
	assert.True(t, b.IsDirty())
	assert.Equal(t, common.Bnum(1234567), b.BnumGet(8))
	assert.Equal(t, common.Bnum(0), b.BnumGet(0))
	assert.Equal(t, common.Bnum(0), b.BnumGet(16))
}
