package disk

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/rufs-project/rufs/common"
	"github.com/rufs-project/rufs/util"
)

var _ Disk = (*fileDisk)(nil)

type fileDisk struct {
	fd        int
	numBlocks uint64
	blockSize uint64
}

func checkAccess(a uint64, buf Block, numBlocks uint64, blockSize uint64) error {
	if uint64(len(buf)) != blockSize {
		return fmt.Errorf("%w: buffer is not block-sized (%d bytes)",
			common.ErrDevice, len(buf))
	}
	if a >= numBlocks {
		return fmt.Errorf("%w: out-of-bounds access at %v", common.ErrDevice, a)
	}
	return nil
}

// NewFileDisk creates (or resizes) the backing file at path to hold numBlocks
// blocks of blockSize bytes.
func NewFileDisk(path string, numBlocks uint64, blockSize uint64) (Disk, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0666)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", common.ErrDevice, path, err)
	}
	var stat unix.Stat_t
	err = unix.Fstat(fd, &stat)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: stat %s: %v", common.ErrDevice, path, err)
	}
	if (stat.Mode&unix.S_IFMT) == unix.S_IFREG &&
		uint64(stat.Size) != numBlocks*blockSize {
		err = unix.Ftruncate(fd, int64(numBlocks*blockSize))
		if err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("%w: truncate %s: %v", common.ErrDevice, path, err)
		}
	}
	util.DPrintf(1, "NewFileDisk: %s %d blocks of %d bytes\n", path, numBlocks, blockSize)
	return &fileDisk{fd: fd, numBlocks: numBlocks, blockSize: blockSize}, nil
}

// OpenFileDisk opens an existing backing file; its size determines the number
// of blocks.
func OpenFileDisk(path string, blockSize uint64) (Disk, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", common.ErrDevice, path, err)
	}
	var stat unix.Stat_t
	err = unix.Fstat(fd, &stat)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: stat %s: %v", common.ErrDevice, path, err)
	}
	numBlocks := uint64(stat.Size) / blockSize
	util.DPrintf(1, "OpenFileDisk: %s %d blocks\n", path, numBlocks)
	return &fileDisk{fd: fd, numBlocks: numBlocks, blockSize: blockSize}, nil
}

// Exists reports whether a backing file is present at path.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("%w: %v", common.ErrDevice, err)
}

func (d *fileDisk) ReadTo(a uint64, buf Block) error {
	if err := checkAccess(a, buf, d.numBlocks, d.blockSize); err != nil {
		return err
	}
	n, err := unix.Pread(d.fd, buf, int64(a*d.blockSize))
	if err != nil {
		return fmt.Errorf("%w: read %d: %v", common.ErrDevice, a, err)
	}
	// the tail of a freshly truncated file reads short
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
	util.DPrintf(20, "read: %v\n", a)
	return nil
}

func (d *fileDisk) Read(a uint64) (Block, error) {
	buf := make([]byte, d.blockSize)
	err := d.ReadTo(a, buf)
	return buf, err
}

func (d *fileDisk) Write(a uint64, v Block) error {
	if err := checkAccess(a, v, d.numBlocks, d.blockSize); err != nil {
		return err
	}
	_, err := unix.Pwrite(d.fd, v, int64(a*d.blockSize))
	if err != nil {
		return fmt.Errorf("%w: write %d: %v", common.ErrDevice, a, err)
	}
	util.DPrintf(20, "write: %v\n", a)
	return nil
}

func (d *fileDisk) Size() uint64 {
	return d.numBlocks
}

func (d *fileDisk) BlockSize() uint64 {
	return d.blockSize
}

func (d *fileDisk) Barrier() error {
	// NOTE: on macOS, this flushes to the drive but doesn't actually issue a
	// disk barrier; see https://golang.org/src/internal/poll/fd_fsync_darwin.go
	// for more details. The correct replacement is to issue a fcntl syscall with
	// cmd F_FULLFSYNC.
	err := unix.Fsync(d.fd)
	if err != nil {
		return fmt.Errorf("%w: fsync: %v", common.ErrDevice, err)
	}
	return nil
}

func (d *fileDisk) Close() error {
	err := unix.Close(d.fd)
	if err != nil {
		return fmt.Errorf("%w: close: %v", common.ErrDevice, err)
	}
	return nil
}

/////////////////////////

var _ Disk = (*memDisk)(nil)

type memDisk struct {
	l         *sync.RWMutex
	blocks    [][]byte
	blockSize uint64
}

func NewMemDisk(numBlocks uint64, blockSize uint64) Disk {
	blocks := make([][]byte, numBlocks)
	return &memDisk{l: new(sync.RWMutex), blocks: blocks, blockSize: blockSize}
}

func (d *memDisk) ReadTo(a uint64, buf Block) error {
	if err := checkAccess(a, buf, uint64(len(d.blocks)), d.blockSize); err != nil {
		return err
	}
	d.l.RLock()
	defer d.l.RUnlock()
	if d.blocks[a] == nil {
		for i := range buf {
			buf[i] = 0
		}
		return nil
	}
	copy(buf, d.blocks[a])
	return nil
}

func (d *memDisk) Read(a uint64) (Block, error) {
	buf := make(Block, d.blockSize)
	err := d.ReadTo(a, buf)
	return buf, err
}

func (d *memDisk) Write(a uint64, v Block) error {
	if err := checkAccess(a, v, uint64(len(d.blocks)), d.blockSize); err != nil {
		return err
	}
	d.l.Lock()
	defer d.l.Unlock()
	if d.blocks[a] == nil {
		d.blocks[a] = make([]byte, d.blockSize)
	}
	copy(d.blocks[a], v)
	return nil
}

func (d *memDisk) Size() uint64 {
	// this never changes so we assume it's safe to run lock-free
	return uint64(len(d.blocks))
}

func (d *memDisk) BlockSize() uint64 { return d.blockSize }

func (d *memDisk) Barrier() error { return nil }

func (d *memDisk) Close() error { return nil }
