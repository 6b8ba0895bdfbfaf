package addr

import (
	"github.com/rufs-project/rufs/common"
)

// Addr identifies the start of a disk object.
//
// Blkno is the block number containing the object, and Off is the location of
// the object within the block (expressed as a byte offset). The size of the
// object is determined by the context in which Addr is used.
type Addr struct {
	Blkno common.Bnum
	Off   uint64 // offset in bytes
}

func MkAddr(blkno common.Bnum, off uint64) Addr {
	return Addr{Blkno: blkno, Off: off}
}

// MkBitAddr locates bit n of a bitmap starting at block start; Off is the byte
// holding the bit.
func MkBitAddr(start common.Bnum, n uint64, blockSize uint64) (Addr, uint64) {
	nbit := common.NBitBlock(blockSize)
	i := n / nbit
	bit := n % nbit
	return MkAddr(start+common.Bnum(i), bit/8), bit % 8
}

// MkSlotAddr locates slot n of a table of objects of size sz starting at
// block start.
func MkSlotAddr(start common.Bnum, n uint64, sz uint64, blockSize uint64) Addr {
	perblk := blockSize / sz
	return MkAddr(start+common.Bnum(n/perblk), (n%perblk)*sz)
}
