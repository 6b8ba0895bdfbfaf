package alloc

import (
	"fmt"
	"sync"

	"github.com/rufs-project/rufs/addr"
	"github.com/rufs-project/rufs/common"
	"github.com/rufs-project/rufs/disk"
	"github.com/rufs-project/rufs/util"
)

// Alloc uses an on-disk bitmap to allocate and free numbers. Bit i
// corresponds to number base+i. The bitmap is kept in memory and every change
// is written through to the bitmap block holding the bit before returning.
type Alloc struct {
	lock      sync.Mutex // protects bitmap and its blocks
	d         disk.Disk
	start     common.Bnum // first bitmap block
	max       uint64      // number of bits in use
	base      uint64
	bitmap    []byte
	exhausted error
}

func readBitmap(d disk.Disk, start common.Bnum, len uint64) ([]byte, error) {
	var bitmap []byte
	for i := uint64(0); i < len; i++ {
		blk, err := d.Read(uint64(start) + i)
		if err != nil {
			return nil, err
		}
		bitmap = append(bitmap, blk...)
	}
	return bitmap, nil
}

// MkAlloc loads the bitmap of max bits stored from block start. Allocation
// failures report exhausted.
func MkAlloc(d disk.Disk, start common.Bnum, max uint64, base uint64, exhausted error) (*Alloc, error) {
	n := util.RoundUp(max, common.NBitBlock(d.BlockSize()))
	bitmap, err := readBitmap(d, start, n)
	if err != nil {
		return nil, err
	}
	a := &Alloc{
		d:         d,
		start:     start,
		max:       max,
		base:      base,
		bitmap:    bitmap,
		exhausted: exhausted,
	}
	return a, nil
}

// locate returns the on-disk address of the byte holding bit n, its index in
// the in-memory bitmap, and the bit's mask within that byte.
func (a *Alloc) locate(n uint64) (addr.Addr, uint64, byte) {
	bs := a.d.BlockSize()
	ba, bit := addr.MkBitAddr(a.start, n, bs)
	i := uint64(ba.Blkno-a.start)*bs + ba.Off
	return ba, i, 1 << bit
}

func (a *Alloc) isSet(n uint64) bool {
	_, i, mask := a.locate(n)
	return a.bitmap[i]&mask != 0
}

func (a *Alloc) setBit(n uint64) {
	_, i, mask := a.locate(n)
	a.bitmap[i] |= mask
}

func (a *Alloc) clearBit(n uint64) {
	_, i, mask := a.locate(n)
	a.bitmap[i] &^= mask
}

// Write the bitmap block holding bit n
func (a *Alloc) persist(n uint64) error {
	bs := a.d.BlockSize()
	ba, _, _ := a.locate(n)
	off := uint64(ba.Blkno-a.start) * bs
	return a.d.Write(ba.Blkno, util.CloneByteSlice(a.bitmap[off:off+bs]))
}

// Returns the lowest clear bit
func (a *Alloc) findFreeBit() (uint64, bool) {
	for i := uint64(0); i < a.max; i += 8 {
		if a.bitmap[i/8] == 0xFF {
			continue
		}
		for n := i; n < i+8 && n < a.max; n++ {
			if !a.isSet(n) {
				return n, true
			}
		}
	}
	return 0, false
}

// AllocNum allocates the lowest free number.
func (a *Alloc) AllocNum() (uint64, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	n, ok := a.findFreeBit()
	if !ok {
		return 0, a.exhausted
	}
	a.setBit(n)
	if err := a.persist(n); err != nil {
		a.clearBit(n)
		return 0, err
	}
	util.DPrintf(10, "AllocNum: %d\n", a.base+n)
	return a.base + n, nil
}

func (a *Alloc) bit(num uint64) (uint64, error) {
	if num < a.base || num-a.base >= a.max {
		return 0, fmt.Errorf("%w: %d outside allocator range [%d, %d)",
			common.ErrInvalid, num, a.base, a.base+a.max)
	}
	return num - a.base, nil
}

// FreeNum frees num. The caller guarantees nothing still refers to it.
func (a *Alloc) FreeNum(num uint64) error {
	n, err := a.bit(num)
	if err != nil {
		return err
	}
	a.lock.Lock()
	defer a.lock.Unlock()
	if !a.isSet(n) {
		return fmt.Errorf("%w: double free of %d", common.ErrInvalid, num)
	}
	a.clearBit(n)
	if err := a.persist(n); err != nil {
		a.setBit(n)
		return err
	}
	util.DPrintf(10, "FreeNum: %d\n", num)
	return nil
}

// MarkUsed allocates a specific number, e.g. the root inode at format time.
func (a *Alloc) MarkUsed(num uint64) error {
	n, err := a.bit(num)
	if err != nil {
		return err
	}
	a.lock.Lock()
	defer a.lock.Unlock()
	a.setBit(n)
	return a.persist(n)
}

func (a *Alloc) IsUsed(num uint64) bool {
	n, err := a.bit(num)
	if err != nil {
		return false
	}
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.isSet(n)
}

func popCnt(b byte) uint64 {
	var count uint64
	var x = b
	for i := uint64(0); i < 8; i++ {
		count += uint64(x & 1)
		x = x >> 1
	}
	return count
}

func (a *Alloc) NumUsed() uint64 {
	a.lock.Lock()
	defer a.lock.Unlock()
	var count uint64
	for i := uint64(0); i < util.RoundUp(a.max, 8); i++ {
		count += popCnt(a.bitmap[i])
	}
	return count
}

func (a *Alloc) NumFree() uint64 {
	return a.max - a.NumUsed()
}

func (a *Alloc) Max() uint64 {
	return a.max
}
