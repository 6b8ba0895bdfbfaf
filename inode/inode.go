package inode

import (
	"fmt"
	"time"

	"github.com/tchajed/marshal"

	"github.com/rufs-project/rufs/buf"
	"github.com/rufs-project/rufs/common"
	"github.com/rufs-project/rufs/disk"
	"github.com/rufs-project/rufs/lockmap"
	"github.com/rufs-project/rufs/super"
	"github.com/rufs-project/rufs/util"
)

// Inode is the in-memory copy of an on-disk inode record.
type Inode struct {
	Valid  bool
	Inum   common.Inum
	Kind   common.Kind
	Links  uint64
	Size   uint64
	Mode   uint32
	Uid    uint32
	Gid    uint32
	Blocks uint64
	Atime  int64 // Unix nanoseconds
	Mtime  int64
	Ctime  int64

	Direct   [common.NDIRECT]common.Bnum
	Indirect [common.NINDIRECT]common.Bnum
}

// MkInode returns a fresh valid inode stamped with the current time.
func MkInode(inum common.Inum, kind common.Kind, mode uint32) *Inode {
	now := time.Now().UnixNano()
	ip := &Inode{
		Valid: true,
		Inum:  inum,
		Kind:  kind,
		Links: 1,
		Mode:  mode,
		Atime: now,
		Mtime: now,
		Ctime: now,
	}
	if kind == common.KindDir {
		ip.Links = 2
	}
	return ip
}

func (ip *Inode) IsDir() bool {
	return ip.Kind == common.KindDir
}

// Touch refreshes the modification and change times.
func (ip *Inode) Touch() {
	now := time.Now().UnixNano()
	ip.Mtime = now
	ip.Ctime = now
}

func (ip *Inode) Encode() []byte {
	enc := marshal.NewEnc(common.INODESZ)
	var valid uint64
	if ip.Valid {
		valid = 1
	}
	enc.PutInt(valid)
	enc.PutInt(uint64(ip.Inum))
	enc.PutInt(uint64(ip.Kind))
	enc.PutInt(ip.Links)
	enc.PutInt(ip.Size)
	enc.PutInt(uint64(ip.Mode))
	enc.PutInt(uint64(ip.Uid))
	enc.PutInt(uint64(ip.Gid))
	enc.PutInt(ip.Blocks)
	enc.PutInt(uint64(ip.Atime))
	enc.PutInt(uint64(ip.Mtime))
	enc.PutInt(uint64(ip.Ctime))
	enc.PutInts(ip.Direct[:])
	enc.PutInts(ip.Indirect[:])
	return enc.Finish()
}

func Decode(data []byte) *Inode {
	dec := marshal.NewDec(data)
	ip := &Inode{}
	ip.Valid = dec.GetInt() != 0
	ip.Inum = common.Inum(dec.GetInt())
	ip.Kind = common.Kind(dec.GetInt())
	ip.Links = dec.GetInt()
	ip.Size = dec.GetInt()
	ip.Mode = uint32(dec.GetInt())
	ip.Uid = uint32(dec.GetInt())
	ip.Gid = uint32(dec.GetInt())
	ip.Blocks = dec.GetInt()
	ip.Atime = int64(dec.GetInt())
	ip.Mtime = int64(dec.GetInt())
	ip.Ctime = int64(dec.GetInt())
	copy(ip.Direct[:], dec.GetInts(common.NDIRECT))
	copy(ip.Indirect[:], dec.GetInts(common.NINDIRECT))
	return ip
}

func (ip *Inode) String() string {
	return fmt.Sprintf("inode %d (%v, size %d, links %d)", ip.Inum, ip.Kind, ip.Size, ip.Links)
}

// Table reads and writes inode records in the inode table region. It is the
// only writer of inode records.
type Table struct {
	d     disk.Disk
	super *super.FsSuper
	locks *lockmap.LockMap // per table block
}

func MkTable(d disk.Disk, super *super.FsSuper) *Table {
	return &Table{d: d, super: super, locks: lockmap.MkLockMap()}
}

func (t *Table) check(inum common.Inum) error {
	if uint64(inum) >= t.super.MaxInum {
		return fmt.Errorf("%w: inode %d beyond limit %d",
			common.ErrInvalid, inum, t.super.MaxInum)
	}
	return nil
}

// ReadInode returns the record in slot inum, valid or not.
func (t *Table) ReadInode(inum common.Inum) (*Inode, error) {
	if err := t.check(inum); err != nil {
		return nil, err
	}
	b, err := buf.ReadBuf(t.d, t.super.Inum2Addr(inum), common.INODESZ)
	if err != nil {
		return nil, err
	}
	return Decode(b.Data), nil
}

// WriteInode stores ip in slot ip.Inum, preserving the other records of the
// block.
func (t *Table) WriteInode(ip *Inode) error {
	if err := t.check(ip.Inum); err != nil {
		return err
	}
	a := t.super.Inum2Addr(ip.Inum)
	t.locks.Acquire(uint64(a.Blkno))
	defer t.locks.Release(uint64(a.Blkno))
	util.DPrintf(5, "WriteInode: %v\n", ip)
	return buf.MkBuf(a, common.INODESZ, ip.Encode()).WriteDirect(t.d)
}
