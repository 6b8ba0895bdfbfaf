// buf manages sub-block disk objects (inode records, directory entries,
// block pointers) packed into disk blocks.
package buf

import (
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/rufs-project/rufs/addr"
	"github.com/rufs-project/rufs/common"
	"github.com/rufs-project/rufs/disk"
	"github.com/rufs-project/rufs/util"
)

// A Buf is a write to a disk object
type Buf struct {
	Addr  addr.Addr
	Sz    uint64 // number of bytes
	Data  []byte
	dirty bool // has this object been written to?
}

func MkBuf(addr addr.Addr, sz uint64, data []byte) *Buf {
	b := &Buf{
		Addr:  addr,
		Sz:    sz,
		Data:  data,
		dirty: false,
	}
	return b
}

// Load the bytes of a disk block into a new buf, as specified by addr. The
// buf aliases blk.
func MkBufLoad(addr addr.Addr, sz uint64, blk disk.Block) *Buf {
	data := blk[addr.Off : addr.Off+sz]
	b := &Buf{
		Addr:  addr,
		Sz:    sz,
		Data:  data,
		dirty: false,
	}
	return b
}

// ReadBuf reads the block holding addr and returns a buf over the object.
func ReadBuf(d disk.Disk, addr addr.Addr, sz uint64) (*Buf, error) {
	if addr.Off+sz > d.BlockSize() {
		return nil, fmt.Errorf("%w: object at %v of %d bytes spans blocks",
			common.ErrInvalid, addr, sz)
	}
	blk, err := d.Read(addr.Blkno)
	if err != nil {
		return nil, err
	}
	return MkBufLoad(addr, sz, blk), nil
}

// Install the bytes from buf into blk.
func (buf *Buf) Install(blk disk.Block) {
	util.DPrintf(20, "%v: install\n", buf.Addr)
	if buf.Addr.Off+buf.Sz > uint64(len(blk)) {
		panic("Install: object past end of block")
	}
	copy(blk[buf.Addr.Off:buf.Addr.Off+buf.Sz], buf.Data[:buf.Sz])
}

func (buf *Buf) IsDirty() bool {
	return buf.dirty
}

func (buf *Buf) SetDirty() {
	buf.dirty = true
}

// WriteDirect persists buf immediately: whole blocks are written as is, and
// smaller objects are installed into a fresh read of their block so sibling
// objects are preserved.
func (buf *Buf) WriteDirect(d disk.Disk) error {
	buf.SetDirty()
	var blk disk.Block
	if buf.Sz == d.BlockSize() {
		blk = buf.Data
	} else {
		b, err := d.Read(uint64(buf.Addr.Blkno))
		if err != nil {
			return err
		}
		buf.Install(b)
		blk = b
	}
	err := d.Write(uint64(buf.Addr.Blkno), blk)
	if err == nil {
		buf.dirty = false
	}
	return err
}

func (buf *Buf) BnumGet(off uint64) common.Bnum {
	dec := marshal.NewDec(buf.Data[off : off+common.BNUMSZ])
	return common.Bnum(dec.GetInt())
}

func (buf *Buf) BnumPut(off uint64, v common.Bnum) {
	enc := marshal.NewEnc(common.BNUMSZ)
	enc.PutInt(uint64(v))
	copy(buf.Data[off:off+common.BNUMSZ], enc.Finish())
	buf.SetDirty()
}
