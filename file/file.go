// Package file maps byte ranges of a regular file onto data blocks through
// the inode's 16 direct pointers and 8 single-indirect pointers.
package file

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

type Engine struct {
	d      disk.Disk
	itable *inode.Table
	balloc *alloc.Alloc
}

func MkEngine(d disk.Disk, itable *inode.Table, balloc *alloc.Alloc) *Engine {
	return &Engine{d: d, itable: itable, balloc: balloc}
}

func (e *Engine) bs() uint64 {
	return e.d.BlockSize()
}

func (e *Engine) ppb() uint64 {
	return common.BnumBlk(e.bs())
}

// MaxBlocks is the number of blocks one inode can address.
func (e *Engine) MaxBlocks() uint64 {
	return common.NDIRECT + common.NINDIRECT*e.ppb()
}

func (e *Engine) MaxSize() uint64 {
	return e.MaxBlocks() * e.bs()
}

// nblocks is the number of blocks covering size bytes.
func (e *Engine) nblocks(size uint64) uint64 {
	return util.RoundUp(size, e.bs())
}

func (e *Engine) allocZeroed() (common.Bnum, error) {
	bn, err := e.balloc.AllocNum()
	if err != nil {
		return common.NULLBNUM, err
	}
	if err := disk.Zero(e.d, bn); err != nil {
		return common.NULLBNUM, util.Rollback(err, e.balloc.FreeNum(bn))
	}
	return bn, nil
}

// indirect splits a file block index past the direct pointers into the
// indirect slot and the pointer offset inside that block.
func (e *Engine) indirect(idx uint64) (uint64, uint64) {
	k := idx - common.NDIRECT
	return k / e.ppb(), k % e.ppb()
}

// bmap returns the data block holding file block idx. With grow set, missing
// pointers along the way are allocated; otherwise a hole maps to NULLBNUM.
func (e *Engine) bmap(ip *inode.Inode, idx uint64, grow bool) (common.Bnum, error) {
	if idx >= e.MaxBlocks() {
		return common.NULLBNUM, fmt.Errorf("%w: block %d of inode %d",
			common.ErrFileTooBig, idx, ip.Inum)
	}
	if idx < common.NDIRECT {
		if ip.Direct[idx] == common.NULLBNUM && grow {
			bn, err := e.allocZeroed()
			if err != nil {
				return common.NULLBNUM, err
			}
			ip.Direct[idx] = bn
		}
		return ip.Direct[idx], nil
	}

	slot, off := e.indirect(idx)
	if ip.Indirect[slot] == common.NULLBNUM {
		if !grow {
			return common.NULLBNUM, nil
		}
		bn, err := e.allocZeroed()
		if err != nil {
			return common.NULLBNUM, err
		}
		util.DPrintf(5, "bmap: inode %d indirect[%d] = %d\n", ip.Inum, slot, bn)
		ip.Indirect[slot] = bn
	}
	b, err := buf.ReadBuf(e.d, addr.MkAddr(ip.Indirect[slot], off*common.BNUMSZ), common.BNUMSZ)
	if err != nil {
		return common.NULLBNUM, err
	}
	bn := b.BnumGet(0)
	if bn == common.NULLBNUM && grow {
		bn, err = e.allocZeroed()
		if err != nil {
			return common.NULLBNUM, err
		}
		b.BnumPut(0, bn)
		if err := b.WriteDirect(e.d); err != nil {
			return common.NULLBNUM, util.Rollback(err, e.balloc.FreeNum(bn))
		}
	}
	return bn, nil
}

// Read returns up to n bytes of ip starting at off, clamped to the file size.
func (e *Engine) Read(ip *inode.Inode, off uint64, n uint64) ([]byte, error) {
	if ip.IsDir() {
		return nil, fmt.Errorf("%w: inode %d", common.ErrIsDir, ip.Inum)
	}
	if off >= ip.Size || n == 0 {
		return []byte{}, nil
	}
	end := ip.Size
	if !util.SumOverflows(off, n) {
		end = util.Min(off+n, ip.Size)
	}
	bs := e.bs()
	data := make([]byte, 0, end-off)
	for pos := off; pos < end; {
		boff := pos % bs
		cnt := util.Min(bs-boff, end-pos)
		bn, err := e.bmap(ip, pos/bs, false)
		if err != nil {
			return nil, err
		}
		if bn == common.NULLBNUM {
			data = append(data, make([]byte, cnt)...)
		} else {
			blk, err := e.d.Read(bn)
			if err != nil {
				return nil, err
			}
			data = append(data, blk[boff:boff+cnt]...)
		}
		pos += cnt
	}
	util.DPrintf(5, "Read: inode %d [%d, %d)\n", ip.Inum, off, end)
	return data, nil
}

// Write stores data at off, growing the file as needed, and persists ip.
// Running out of space midway leaves the bytes written so far in the file and
// returns their count with the error.
func (e *Engine) Write(ip *inode.Inode, off uint64, data []byte) (int, error) {
	if ip.IsDir() {
		return 0, fmt.Errorf("%w: inode %d", common.ErrIsDir, ip.Inum)
	}
	count := uint64(len(data))
	if count == 0 {
		return 0, nil
	}
	if util.SumOverflows(off, count) || off+count > e.MaxSize() {
		return 0, fmt.Errorf("%w: write of %d bytes at %d to inode %d",
			common.ErrFileTooBig, count, off, ip.Inum)
	}
	bs := e.bs()

	var werr error
	// a write past EOF first fills the gap so the pointers stay contiguous
	for idx := e.nblocks(ip.Size); idx < off/bs; idx++ {
		if _, werr = e.bmap(ip, idx, true); werr != nil {
			break
		}
	}

	var n uint64
	for werr == nil && n < count {
		pos := off + n
		boff := pos % bs
		cnt := util.Min(bs-boff, count-n)
		var bn common.Bnum
		bn, werr = e.bmap(ip, pos/bs, true)
		if werr != nil {
			break
		}
		var blk disk.Block
		if cnt == bs {
			blk = data[n : n+cnt]
		} else {
			blk, werr = e.d.Read(bn)
			if werr != nil {
				break
			}
			copy(blk[boff:boff+cnt], data[n:n+cnt])
		}
		if werr = e.d.Write(bn, blk); werr != nil {
			break
		}
		n += cnt
	}

	if n > 0 {
		ip.Size = util.Max(ip.Size, off+n)
		ip.Touch()
	}
	ip.Blocks = e.nblocks(ip.Size)
	if err := e.itable.WriteInode(ip); err != nil {
		return int(n), err
	}
	util.DPrintf(5, "Write: inode %d wrote %d of %d at %d err %v\n", ip.Inum, n, count, off, werr)
	return int(n), werr
}

// freeFrom releases every data block with index >= keep, and every indirect
// block left without pointers. It scans all pointers, not just those below
// the size, so blocks left behind by a failed grow are reclaimed too.
func (e *Engine) freeFrom(ip *inode.Inode, keep uint64) error {
	for idx := keep; idx < common.NDIRECT; idx++ {
		if ip.Direct[idx] == common.NULLBNUM {
			continue
		}
		if err := e.balloc.FreeNum(ip.Direct[idx]); err != nil {
			return err
		}
		ip.Direct[idx] = common.NULLBNUM
	}
	ppb := e.ppb()
	for slot := uint64(0); slot < common.NINDIRECT; slot++ {
		ind := ip.Indirect[slot]
		if ind == common.NULLBNUM {
			continue
		}
		first := common.NDIRECT + slot*ppb
		if first+ppb <= keep {
			continue
		}
		blk, err := e.d.Read(ind)
		if err != nil {
			return err
		}
		b := buf.MkBufLoad(addr.MkAddr(ind, 0), e.bs(), blk)
		live := false
		for off := uint64(0); off < ppb; off++ {
			bn := b.BnumGet(off * common.BNUMSZ)
			if bn == common.NULLBNUM {
				continue
			}
			if first+off < keep {
				live = true
				continue
			}
			if err := e.balloc.FreeNum(bn); err != nil {
				return err
			}
			b.BnumPut(off*common.BNUMSZ, common.NULLBNUM)
		}
		if !live {
			if err := e.balloc.FreeNum(ind); err != nil {
				return err
			}
			ip.Indirect[slot] = common.NULLBNUM
			continue
		}
		if b.IsDirty() {
			if err := b.WriteDirect(e.d); err != nil {
				return err
			}
		}
	}
	return nil
}

// zeroTail clears the bytes of the last block past size.
func (e *Engine) zeroTail(ip *inode.Inode, size uint64) error {
	bs := e.bs()
	if size%bs == 0 {
		return nil
	}
	bn, err := e.bmap(ip, size/bs, false)
	if err != nil || bn == common.NULLBNUM {
		return err
	}
	blk, err := e.d.Read(bn)
	if err != nil {
		return err
	}
	for i := size % bs; i < bs; i++ {
		blk[i] = 0
	}
	return e.d.Write(bn, blk)
}

// Truncate sets the size of ip, releasing blocks past the new end or
// allocating zeroed blocks up to it, and persists ip.
func (e *Engine) Truncate(ip *inode.Inode, size uint64) error {
	if ip.IsDir() {
		return fmt.Errorf("%w: inode %d", common.ErrIsDir, ip.Inum)
	}
	if size > e.MaxSize() {
		return fmt.Errorf("%w: truncate inode %d to %d", common.ErrFileTooBig, ip.Inum, size)
	}
	util.DPrintf(5, "Truncate: inode %d %d -> %d\n", ip.Inum, ip.Size, size)
	var err error
	if size <= ip.Size {
		err = e.freeFrom(ip, e.nblocks(size))
		if err == nil {
			err = e.zeroTail(ip, size)
		}
	} else {
		for idx := e.nblocks(ip.Size); idx < e.nblocks(size); idx++ {
			if _, err = e.bmap(ip, idx, true); err != nil {
				break
			}
		}
	}
	if err == nil {
		ip.Size = size
		ip.Touch()
	}
	ip.Blocks = e.nblocks(ip.Size)
	if perr := e.itable.WriteInode(ip); err == nil {
		err = perr
	}
	return err
}

// Free releases every block of ip and persists it with size 0.
func (e *Engine) Free(ip *inode.Inode) error {
	return e.Truncate(ip, 0)
}
