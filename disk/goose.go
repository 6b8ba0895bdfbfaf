package disk

import (
	gdisk "github.com/tchajed/goose/machine/disk"
)

// gooseDisk adapts a goose disk, which has fixed gdisk.BlockSize blocks and
// no error returns.
type gooseDisk struct {
	d gdisk.Disk
}

var _ Disk = gooseDisk{}

// FromGoose wraps a goose disk, e.g. gdisk.NewMemDisk(n), as a Disk.
func FromGoose(d gdisk.Disk) Disk {
	return gooseDisk{d: d}
}

func (g gooseDisk) ReadTo(a uint64, b Block) error {
	if err := checkAccess(a, b, g.d.Size(), gdisk.BlockSize); err != nil {
		return err
	}
	copy(b, g.d.Read(a))
	return nil
}

func (g gooseDisk) Read(a uint64) (Block, error) {
	buf := make(Block, gdisk.BlockSize)
	err := g.ReadTo(a, buf)
	return buf, err
}

func (g gooseDisk) Write(a uint64, v Block) error {
	if err := checkAccess(a, v, g.d.Size(), gdisk.BlockSize); err != nil {
		return err
	}
	g.d.Write(a, v)
	return nil
}

func (g gooseDisk) Size() uint64 {
	return g.d.Size()
}

func (g gooseDisk) BlockSize() uint64 {
	return gdisk.BlockSize
}

func (g gooseDisk) Barrier() error {
	g.d.Barrier()
	return nil
}

func (g gooseDisk) Close() error {
	g.d.Close()
	return nil
}
