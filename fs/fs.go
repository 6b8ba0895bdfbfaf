// Package fs assembles the on-disk components into a mountable filesystem and
// exposes the path-based operations a FUSE-style bridge calls.
package fs

import (
	"fmt"
	"sync"

	"github.com/tchajed/marshal"

	"github.com/rufs-project/rufs/alloc"
	"github.com/rufs-project/rufs/common"
	"github.com/rufs-project/rufs/dir"
	"github.com/rufs-project/rufs/disk"
	"github.com/rufs-project/rufs/file"
	"github.com/rufs-project/rufs/inode"
	"github.com/rufs-project/rufs/lockmap"
	"github.com/rufs-project/rufs/super"
	"github.com/rufs-project/rufs/util"
)

type Filesystem struct {
	mu      sync.RWMutex // held exclusively only by Unmount
	mounted bool

	d      disk.Disk
	super  *super.FsSuper
	ialloc *alloc.Alloc
	balloc *alloc.Alloc
	itable *inode.Table
	dirs   *dir.Dir
	files  *file.Engine
	locks  *lockmap.LockMap // per inode
}

func mkFilesystem(d disk.Disk, fs *super.FsSuper) (*Filesystem, error) {
	ialloc, err := alloc.MkAlloc(d, fs.IBitmapBlk, fs.MaxInum, 0, common.ErrOutOfInodes)
	if err != nil {
		return nil, err
	}
	balloc, err := alloc.MkAlloc(d, fs.DBitmapBlk, fs.MaxDnum, uint64(fs.DStartBlk), common.ErrOutOfSpace)
	if err != nil {
		return nil, err
	}
	itable := inode.MkTable(d, fs)
	return &Filesystem{
		mounted: true,
		d:       d,
		super:   fs,
		ialloc:  ialloc,
		balloc:  balloc,
		itable:  itable,
		dirs:    dir.MkDir(d, itable, balloc),
		files:   file.MkEngine(d, itable, balloc),
		locks:   lockmap.MkLockMap(),
	}, nil
}

// Format lays out a fresh filesystem of shape geo on d, creates the root
// directory and returns it mounted.
func Format(d disk.Disk, geo super.Geometry) (*Filesystem, error) {
	if geo.BlockSize != d.BlockSize() {
		return nil, fmt.Errorf("%w: geometry block size %d, device block size %d",
			common.ErrInvalid, geo.BlockSize, d.BlockSize())
	}
	fs, err := super.MkFsSuper(geo)
	if err != nil {
		return nil, err
	}
	if fs.NBlocks() > d.Size() {
		return nil, fmt.Errorf("%w: layout needs %d blocks, device has %d",
			common.ErrInvalid, fs.NBlocks(), d.Size())
	}
	for bn := uint64(1); bn < uint64(fs.DStartBlk); bn++ {
		if err := disk.Zero(d, bn); err != nil {
			return nil, err
		}
	}
	if err := d.Write(0, fs.Encode()); err != nil {
		return nil, err
	}

	fsys, err := mkFilesystem(d, fs)
	if err != nil {
		return nil, err
	}
	if err := fsys.ialloc.MarkUsed(uint64(common.ROOTINUM)); err != nil {
		return nil, err
	}
	root := inode.MkInode(common.ROOTINUM, common.KindDir, common.DIRMODE)
	if err := fsys.dirs.Init(root, common.ROOTINUM); err != nil {
		return nil, err
	}
	if err := d.Barrier(); err != nil {
		return nil, err
	}
	util.DPrintf(1, "Format: %d inodes, %d data blocks of %d bytes, id %v\n",
		fs.MaxInum, fs.MaxDnum, fs.BlockSize, fs.FsID)
	return fsys, nil
}

// MountDisk loads an existing filesystem from d.
func MountDisk(d disk.Disk) (*Filesystem, error) {
	blk, err := d.Read(0)
	if err != nil {
		return nil, err
	}
	fs, err := super.Decode(blk, d.Size())
	if err != nil {
		return nil, err
	}
	fsys, err := mkFilesystem(d, fs)
	if err != nil {
		return nil, err
	}
	root, err := fsys.itable.ReadInode(common.ROOTINUM)
	if err != nil {
		return nil, err
	}
	if !root.Valid || !root.IsDir() || !fsys.ialloc.IsUsed(uint64(common.ROOTINUM)) {
		return nil, fmt.Errorf("%w: bad root inode", common.ErrCorrupt)
	}
	util.DPrintf(1, "MountDisk: id %v created %v, %d/%d inodes used\n",
		fs.FsID, fs.CreatedAt, fsys.ialloc.NumUsed(), fs.MaxInum)
	return fsys, nil
}

// readBlockSize reads the block size recorded in the superblock at path.
// The superblock header fits in the smallest block size.
func readBlockSize(path string) (uint64, error) {
	d, err := disk.OpenFileDisk(path, common.MINBLKSZ)
	if err != nil {
		return 0, err
	}
	defer d.Close()
	blk, err := d.Read(0)
	if err != nil {
		return 0, err
	}
	dec := marshal.NewDec(blk)
	if magic := dec.GetInt(); magic != common.MAGIC {
		return 0, fmt.Errorf("%w: %s: bad magic %#x", common.ErrCorrupt, path, magic)
	}
	return dec.GetInt(), nil
}

// Mount opens the image at path, formatting a new one with geometry geo when
// none exists. An existing image keeps the geometry it was formatted with.
func Mount(path string, geo super.Geometry) (*Filesystem, error) {
	exists, err := disk.Exists(path)
	if err != nil {
		return nil, err
	}
	if !exists {
		fs, err := super.MkFsSuper(geo)
		if err != nil {
			return nil, err
		}
		d, err := disk.NewFileDisk(path, fs.NBlocks(), geo.BlockSize)
		if err != nil {
			return nil, err
		}
		fsys, err := Format(d, geo)
		if err != nil {
			d.Close()
			return nil, err
		}
		return fsys, nil
	}

	bs, err := readBlockSize(path)
	if err != nil {
		return nil, err
	}
	if err := (super.Geometry{BlockSize: bs, MaxInodes: 1, MaxDataBlocks: 1}).Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrCorrupt, path, err)
	}
	d, err := disk.OpenFileDisk(path, bs)
	if err != nil {
		return nil, err
	}
	fsys, err := MountDisk(d)
	if err != nil {
		d.Close()
		return nil, err
	}
	return fsys, nil
}

// Unmount flushes and closes the device. Every later call fails with
// ErrUnmounted.
func (fsys *Filesystem) Unmount() error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	if !fsys.mounted {
		return common.ErrUnmounted
	}
	fsys.mounted = false
	util.DPrintf(1, "Unmount: id %v\n", fsys.super.FsID)
	err := fsys.d.Barrier()
	if cerr := fsys.d.Close(); err == nil {
		err = cerr
	}
	fsys.ialloc = nil
	fsys.balloc = nil
	return err
}

// enter is called at the start of every operation; the returned function
// ends it.
func (fsys *Filesystem) enter() (func(), error) {
	fsys.mu.RLock()
	if !fsys.mounted {
		fsys.mu.RUnlock()
		return nil, common.ErrUnmounted
	}
	return fsys.mu.RUnlock, nil
}

func (fsys *Filesystem) Super() *super.FsSuper {
	return fsys.super
}

// readLive reads inode inum and checks that it still exists.
func (fsys *Filesystem) readLive(inum common.Inum) (*inode.Inode, error) {
	ip, err := fsys.itable.ReadInode(inum)
	if err != nil {
		return nil, err
	}
	if !ip.Valid {
		return nil, fmt.Errorf("%w: inode %d", common.ErrNotFound, inum)
	}
	return ip, nil
}

// freeInode tombstones ip's record and releases its number.
func (fsys *Filesystem) freeInode(ip *inode.Inode) error {
	if err := fsys.itable.WriteInode(&inode.Inode{Inum: ip.Inum}); err != nil {
		return err
	}
	return fsys.ialloc.FreeNum(uint64(ip.Inum))
}
