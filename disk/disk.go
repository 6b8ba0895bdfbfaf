// Package disk is the block store underneath the filesystem: a fixed number
// of fixed-size blocks addressed by block number.
package disk

// Block is a BlockSize()-byte buffer
type Block = []byte

// Disk provides access to a logical block-based disk
type Disk interface {
	// Read reads a disk block by address
	//
	// Expects a < Size().
	Read(a uint64) (Block, error)

	// ReadTo reads the disk block at a and stores the result in b
	//
	// Expects a < Size().
	ReadTo(a uint64, b Block) error

	// Write updates a disk block by address
	//
	// Expects a < Size().
	Write(a uint64, v Block) error

	// Size reports how big the disk is, in blocks
	Size() uint64

	// BlockSize reports the size of one block, in bytes
	BlockSize() uint64

	// Barrier ensures data is persisted.
	//
	// When it returns, all outstanding writes are guaranteed to be durably on
	// disk
	Barrier() error

	// Close releases any resources used by the disk and makes it unusable.
	Close() error
}

// Zero writes an all-zero block at a.
func Zero(d Disk, a uint64) error {
	return d.Write(a, make(Block, d.BlockSize()))
}
