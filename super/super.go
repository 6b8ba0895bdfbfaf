// Package super describes the on-disk layout of a rufs image and encodes the
// superblock that records it in block 0.
package super

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tchajed/marshal"

	"github.com/rufs-project/rufs/addr"
	"github.com/rufs-project/rufs/common"
	"github.com/rufs-project/rufs/disk"
	"github.com/rufs-project/rufs/util"
)

// Geometry is the user-chosen shape of a filesystem.
type Geometry struct {
	BlockSize     uint64
	MaxInodes     uint64
	MaxDataBlocks uint64
}

func DefaultGeometry() Geometry {
	return Geometry{
		BlockSize:     common.DEFAULTBLKSZ,
		MaxInodes:     common.DEFAULTNINODE,
		MaxDataBlocks: common.DEFAULTNDATABLK,
	}
}

func (g Geometry) Validate() error {
	bs := g.BlockSize
	if bs < common.MINBLKSZ || bs > common.MAXBLKSZ || bs&(bs-1) != 0 {
		return fmt.Errorf("%w: block size %d is not a power of two in [%d, %d]",
			common.ErrInvalid, bs, common.MINBLKSZ, common.MAXBLKSZ)
	}
	if g.MaxInodes == 0 || g.MaxDataBlocks == 0 {
		return fmt.Errorf("%w: need at least one inode and one data block",
			common.ErrInvalid)
	}
	if g.MaxInodes > 1<<32 || g.MaxDataBlocks > 1<<32 {
		return fmt.Errorf("%w: geometry too large", common.ErrInvalid)
	}
	return nil
}

// FsSuper holds the superblock fields and the layout computed from them.
type FsSuper struct {
	Magic      uint64
	BlockSize  uint64
	IBitmapBlk common.Bnum
	DBitmapBlk common.Bnum
	IStartBlk  common.Bnum
	DStartBlk  common.Bnum
	MaxInum    uint64
	MaxDnum    uint64
	CreatedAt  time.Time
	FsID       uuid.UUID
}

// MkFsSuper lays out a fresh filesystem of shape g:
// superblock, inode bitmap, data bitmap, inode table, data region.
func MkFsSuper(g Geometry) (*FsSuper, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	nbit := common.NBitBlock(g.BlockSize)
	ibitmap := common.Bnum(1)
	dbitmap := ibitmap + util.RoundUp(g.MaxInodes, nbit)
	istart := dbitmap + util.RoundUp(g.MaxDataBlocks, nbit)
	dstart := istart + util.RoundUp(g.MaxInodes, common.InodeBlk(g.BlockSize))
	fs := &FsSuper{
		Magic:      common.MAGIC,
		BlockSize:  g.BlockSize,
		IBitmapBlk: ibitmap,
		DBitmapBlk: dbitmap,
		IStartBlk:  istart,
		DStartBlk:  dstart,
		MaxInum:    g.MaxInodes,
		MaxDnum:    g.MaxDataBlocks,
		CreatedAt:  time.Now(),
		FsID:       uuid.New(),
	}
	util.DPrintf(1, "MkFsSuper: ibitmap %d dbitmap %d inodes %d data %d..%d\n",
		ibitmap, dbitmap, istart, dstart, fs.NBlocks())
	return fs, nil
}

// NBlocks is the device size the layout needs.
func (fs *FsSuper) NBlocks() uint64 {
	return uint64(fs.DStartBlk) + fs.MaxDnum
}

func (fs *FsSuper) NIBitmapBlk() uint64 {
	return uint64(fs.DBitmapBlk - fs.IBitmapBlk)
}

func (fs *FsSuper) NDBitmapBlk() uint64 {
	return uint64(fs.IStartBlk - fs.DBitmapBlk)
}

func (fs *FsSuper) NInodeBlk() uint64 {
	return uint64(fs.DStartBlk - fs.IStartBlk)
}

// Inum2Addr computes the disk address of the given inode number.
func (fs *FsSuper) Inum2Addr(inum common.Inum) addr.Addr {
	return addr.MkSlotAddr(fs.IStartBlk, uint64(inum), common.INODESZ, fs.BlockSize)
}

// IsDataBlock reports whether bn lies in the data region.
func (fs *FsSuper) IsDataBlock(bn common.Bnum) bool {
	return bn >= fs.DStartBlk && uint64(bn) < fs.NBlocks()
}

func (fs *FsSuper) Geometry() Geometry {
	return Geometry{
		BlockSize:     fs.BlockSize,
		MaxInodes:     fs.MaxInum,
		MaxDataBlocks: fs.MaxDnum,
	}
}

// Encode produces the on-disk superblock.
func (fs *FsSuper) Encode() disk.Block {
	enc := marshal.NewEnc(fs.BlockSize)
	enc.PutInt(fs.Magic)
	enc.PutInt(fs.BlockSize)
	enc.PutInt(uint64(fs.IBitmapBlk))
	enc.PutInt(uint64(fs.DBitmapBlk))
	enc.PutInt(uint64(fs.IStartBlk))
	enc.PutInt(uint64(fs.DStartBlk))
	enc.PutInt(fs.MaxInum)
	enc.PutInt(fs.MaxDnum)
	enc.PutInt(uint64(fs.CreatedAt.UnixNano()))
	enc.PutInt(binary.BigEndian.Uint64(fs.FsID[:8]))
	enc.PutInt(binary.BigEndian.Uint64(fs.FsID[8:]))
	return enc.Finish()
}

// Decode parses block 0 and checks the layout against a device of diskSize
// blocks.
func Decode(blk disk.Block, diskSize uint64) (*FsSuper, error) {
	dec := marshal.NewDec(blk)
	fs := &FsSuper{}
	fs.Magic = dec.GetInt()
	fs.BlockSize = dec.GetInt()
	fs.IBitmapBlk = common.Bnum(dec.GetInt())
	fs.DBitmapBlk = common.Bnum(dec.GetInt())
	fs.IStartBlk = common.Bnum(dec.GetInt())
	fs.DStartBlk = common.Bnum(dec.GetInt())
	fs.MaxInum = dec.GetInt()
	fs.MaxDnum = dec.GetInt()
	fs.CreatedAt = time.Unix(0, int64(dec.GetInt()))
	binary.BigEndian.PutUint64(fs.FsID[:8], dec.GetInt())
	binary.BigEndian.PutUint64(fs.FsID[8:], dec.GetInt())

	if fs.Magic != common.MAGIC {
		return nil, fmt.Errorf("%w: bad magic %#x", common.ErrCorrupt, fs.Magic)
	}
	if uint64(len(blk)) != fs.BlockSize {
		return nil, fmt.Errorf("%w: superblock records block size %d, device uses %d",
			common.ErrCorrupt, fs.BlockSize, len(blk))
	}
	if err := fs.Validate(diskSize); err != nil {
		return nil, err
	}
	return fs, nil
}

// Validate checks that the regions are ordered, disjoint, large enough for
// the limits they cover, and fit on the device.
func (fs *FsSuper) Validate(diskSize uint64) error {
	if err := fs.Geometry().Validate(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrCorrupt, err)
	}
	nbit := common.NBitBlock(fs.BlockSize)
	if !(0 < fs.IBitmapBlk && fs.IBitmapBlk < fs.DBitmapBlk &&
		fs.DBitmapBlk < fs.IStartBlk && fs.IStartBlk < fs.DStartBlk) {
		return fmt.Errorf("%w: regions out of order", common.ErrCorrupt)
	}
	if fs.NIBitmapBlk()*nbit < fs.MaxInum || fs.NDBitmapBlk()*nbit < fs.MaxDnum {
		return fmt.Errorf("%w: bitmap too small", common.ErrCorrupt)
	}
	if fs.NInodeBlk()*common.InodeBlk(fs.BlockSize) < fs.MaxInum {
		return fmt.Errorf("%w: inode table too small", common.ErrCorrupt)
	}
	if fs.NBlocks() > diskSize {
		return fmt.Errorf("%w: layout needs %d blocks, device has %d",
			common.ErrCorrupt, fs.NBlocks(), diskSize)
	}
	return nil
}
