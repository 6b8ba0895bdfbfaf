// Package dir stores directory entries in the direct blocks of a directory
// inode. Entries are never compacted: removal clears the valid flag in place
// and the slot is reused by the next insertion that reaches it first.
package dir

import (
	"fmt"

	"github.com/rufs-project/rufs/addr"
	"github.com/rufs-project/rufs/alloc"
	"github.com/rufs-project/rufs/buf"
	"github.com/rufs-project/rufs/common"
	"github.com/rufs-project/rufs/disk"
	"github.com/rufs-project/rufs/inode"
	"github.com/rufs-project/rufs/util"
)

type Dir struct {
	d      disk.Disk
	itable *inode.Table
	balloc *alloc.Alloc
}

func MkDir(d disk.Disk, itable *inode.Table, balloc *alloc.Alloc) *Dir {
	return &Dir{d: d, itable: itable, balloc: balloc}
}

func (dir *Dir) perBlock() uint64 {
	return common.DirentBlk(dir.d.BlockSize())
}

// slot is the location of one entry.
type slot struct {
	idx uint64 // index into Direct
	n   uint64 // entry within the block
	blk disk.Block
}

func (s slot) addr(dp *inode.Inode) addr.Addr {
	return addr.MkAddr(dp.Direct[s.idx], s.n*common.DIRENTSZ)
}

func (s slot) entry() Dirent {
	off := s.n * common.DIRENTSZ
	return DecodeDirent(s.blk[off : off+common.DIRENTSZ])
}

// scan visits every entry slot of dp's allocated blocks in order, stopping
// at the first unallocated direct pointer or when f returns true.
func (dir *Dir) scan(dp *inode.Inode, f func(s slot, de Dirent) bool) error {
	if !dp.IsDir() {
		return fmt.Errorf("%w: inode %d", common.ErrNotDir, dp.Inum)
	}
	for i := uint64(0); i < common.NDIRECT; i++ {
		bn := dp.Direct[i]
		if bn == common.NULLBNUM {
			break
		}
		blk, err := dir.d.Read(bn)
		if err != nil {
			return err
		}
		for n := uint64(0); n < dir.perBlock(); n++ {
			s := slot{idx: i, n: n, blk: blk}
			if f(s, s.entry()) {
				return nil
			}
		}
	}
	return nil
}

func (dir *Dir) nblocks(dp *inode.Inode) uint64 {
	var n uint64
	for n < common.NDIRECT && dp.Direct[n] != common.NULLBNUM {
		n++
	}
	return n
}

func (dir *Dir) lookup(dp *inode.Inode, name string) (slot, Dirent, bool, error) {
	var found slot
	var de Dirent
	var ok bool
	err := dir.scan(dp, func(s slot, e Dirent) bool {
		if e.Valid && e.Name == name {
			found, de, ok = s, e, true
			return true
		}
		return false
	})
	return found, de, ok, err
}

// Find returns the valid entry called name in dp.
func (dir *Dir) Find(dp *inode.Inode, name string) (Dirent, error) {
	_, de, ok, err := dir.lookup(dp, name)
	if err != nil {
		return Dirent{}, err
	}
	if !ok {
		return Dirent{}, fmt.Errorf("%w: %q in directory %d", common.ErrNotFound, name, dp.Inum)
	}
	return de, nil
}

// writeEntry installs de at s and writes the block.
func (dir *Dir) writeEntry(dp *inode.Inode, s slot, de Dirent) error {
	b := buf.MkBuf(s.addr(dp), common.DIRENTSZ, de.Encode())
	b.Install(s.blk)
	return dir.d.Write(dp.Direct[s.idx], s.blk)
}

// newBlock allocates a zeroed block for direct pointer idx.
func (dir *Dir) newBlock(dp *inode.Inode, idx uint64) (disk.Block, error) {
	bn, err := dir.balloc.AllocNum()
	if err != nil {
		return nil, err
	}
	blk := make(disk.Block, dir.d.BlockSize())
	if err := dir.d.Write(bn, blk); err != nil {
		return nil, util.Rollback(err, dir.balloc.FreeNum(bn))
	}
	dp.Direct[idx] = bn
	return blk, nil
}

// Add inserts name -> inum into dp and persists the entry and dp.
func (dir *Dir) Add(dp *inode.Inode, inum common.Inum, name string) error {
	if err := ValidName(name); err != nil {
		return err
	}
	var free slot
	var haveFree, exists bool
	err := dir.scan(dp, func(s slot, e Dirent) bool {
		if e.Valid && e.Name == name {
			exists = true
			return true
		}
		if !e.Valid && !haveFree {
			free, haveFree = s, true
		}
		return false
	})
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %q in directory %d", common.ErrExists, name, dp.Inum)
	}
	if !haveFree {
		idx := dir.nblocks(dp)
		if idx == common.NDIRECT {
			return fmt.Errorf("%w: directory %d", common.ErrDirFull, dp.Inum)
		}
		blk, err := dir.newBlock(dp, idx)
		if err != nil {
			return err
		}
		free = slot{idx: idx, n: 0, blk: blk}
	}
	util.DPrintf(5, "dir.Add: %q -> %d in %d at %v\n", name, inum, dp.Inum, free.addr(dp))
	if err := dir.writeEntry(dp, free, Dirent{Valid: true, Inum: inum, Name: name}); err != nil {
		return err
	}
	dp.Size += common.DIRENTSZ
	dp.Blocks = dir.nblocks(dp)
	dp.Touch()
	return dir.itable.WriteInode(dp)
}

// Remove clears the entry called name in place and persists dp.
func (dir *Dir) Remove(dp *inode.Inode, name string) error {
	s, de, ok, err := dir.lookup(dp, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %q in directory %d", common.ErrNotFound, name, dp.Inum)
	}
	util.DPrintf(5, "dir.Remove: %q in %d\n", name, dp.Inum)
	de.Valid = false
	if err := dir.writeEntry(dp, s, de); err != nil {
		return err
	}
	dp.Size -= common.DIRENTSZ
	dp.Touch()
	return dir.itable.WriteInode(dp)
}

// List returns the valid entries of dp in on-disk order.
func (dir *Dir) List(dp *inode.Inode) ([]Dirent, error) {
	var des []Dirent
	err := dir.scan(dp, func(s slot, e Dirent) bool {
		if e.Valid {
			des = append(des, e)
		}
		return false
	})
	return des, err
}

// IsEmpty reports whether dp holds nothing but "." and "..".
func (dir *Dir) IsEmpty(dp *inode.Inode) (bool, error) {
	empty := true
	err := dir.scan(dp, func(s slot, e Dirent) bool {
		if e.Valid && e.Name != "." && e.Name != ".." {
			empty = false
			return true
		}
		return false
	})
	return empty, err
}

// Init gives a new directory inode its first block holding "." and "..",
// and persists it.
func (dir *Dir) Init(dp *inode.Inode, parent common.Inum) error {
	if !dp.IsDir() || dp.Direct[0] != common.NULLBNUM {
		return fmt.Errorf("%w: inode %d is not a fresh directory", common.ErrInvalid, dp.Inum)
	}
	blk, err := dir.newBlock(dp, 0)
	if err != nil {
		return err
	}
	dot := buf.MkBuf(addr.MkAddr(dp.Direct[0], 0), common.DIRENTSZ,
		Dirent{Valid: true, Inum: dp.Inum, Name: "."}.Encode())
	dotdot := buf.MkBuf(addr.MkAddr(dp.Direct[0], common.DIRENTSZ), common.DIRENTSZ,
		Dirent{Valid: true, Inum: parent, Name: ".."}.Encode())
	dot.Install(blk)
	dotdot.Install(blk)
	if err := dir.d.Write(dp.Direct[0], blk); err != nil {
		return dir.abandon(dp, err)
	}
	dp.Size = 2 * common.DIRENTSZ
	dp.Blocks = 1
	dp.Touch()
	if err := dir.itable.WriteInode(dp); err != nil {
		return dir.abandon(dp, err)
	}
	return nil
}

// abandon undoes a failed Init, leaving dp fresh again.
func (dir *Dir) abandon(dp *inode.Inode, err error) error {
	bn := dp.Direct[0]
	dp.Direct[0] = common.NULLBNUM
	dp.Size = 0
	dp.Blocks = 0
	return util.Rollback(err, dir.balloc.FreeNum(bn))
}

// Release frees every block of dp. The caller discards dp afterwards.
func (dir *Dir) Release(dp *inode.Inode) error {
	for i := uint64(0); i < common.NDIRECT; i++ {
		bn := dp.Direct[i]
		if bn == common.NULLBNUM {
			break
		}
		if err := dir.balloc.FreeNum(bn); err != nil {
			return err
		}
		dp.Direct[i] = common.NULLBNUM
	}
	dp.Blocks = 0
	return nil
}
