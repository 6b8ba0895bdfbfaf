package fs

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rufs-project/rufs/common"
	"github.com/rufs-project/rufs/inode"
	"github.com/rufs-project/rufs/util"
)

type DirEntry struct {
	Name string
	Stat inode.Stat
}

type Statfs struct {
	BlockSize  uint64
	Blocks     uint64
	BlocksFree uint64
	Files      uint64
	FilesFree  uint64
	NameMax    uint64
	FsID       uuid.UUID
}

// lockLive locks inum and returns its current record.
func (fsys *Filesystem) lockLive(inum common.Inum) (*inode.Inode, error) {
	fsys.locks.Acquire(uint64(inum))
	ip, err := fsys.readLive(inum)
	if err != nil {
		fsys.locks.Release(uint64(inum))
		return nil, err
	}
	return ip, nil
}

func (fsys *Filesystem) unlock(ip *inode.Inode) {
	fsys.locks.Release(uint64(ip.Inum))
}

// lockEntry locks the directory holding the last name of path together with
// the inode that name refers to, and returns both.
func (fsys *Filesystem) lockEntry(path string) (*inode.Inode, *inode.Inode, string, error) {
	for {
		parent, name, err := fsys.splitPath(path)
		if err != nil {
			return nil, nil, "", err
		}
		de, err := fsys.dirs.Find(parent, name)
		if err != nil {
			return nil, nil, "", err
		}
		if de.Inum == parent.Inum {
			return nil, nil, "", fmt.Errorf("%w: %q", common.ErrInvalid, path)
		}
		fsys.locks.AcquirePair(uint64(parent.Inum), uint64(de.Inum))
		dp, err := fsys.readLive(parent.Inum)
		if err == nil {
			var cur common.Inum
			cur, err = fsys.findInum(dp, name)
			if err == nil && cur == de.Inum {
				var ip *inode.Inode
				if ip, err = fsys.readLive(de.Inum); err == nil {
					return dp, ip, name, nil
				}
			}
		}
		fsys.locks.ReleasePair(uint64(parent.Inum), uint64(de.Inum))
		if err != nil {
			return nil, nil, "", err
		}
		// the entry changed while unlocked
	}
}

func (fsys *Filesystem) findInum(dp *inode.Inode, name string) (common.Inum, error) {
	de, err := fsys.dirs.Find(dp, name)
	return de.Inum, err
}

func (fsys *Filesystem) unlockEntry(dp *inode.Inode, ip *inode.Inode) {
	fsys.locks.ReleasePair(uint64(dp.Inum), uint64(ip.Inum))
}

// Getattr returns the metadata of the file or directory at path.
func (fsys *Filesystem) Getattr(path string) (inode.Stat, error) {
	done, err := fsys.enter()
	if err != nil {
		return inode.Stat{}, err
	}
	defer done()
	ip, err := fsys.Resolve(path, common.ROOTINUM)
	if err != nil {
		return inode.Stat{}, err
	}
	return ip.Stat(fsys.super.BlockSize), nil
}

// Opendir checks that path names a directory.
func (fsys *Filesystem) Opendir(path string) error {
	done, err := fsys.enter()
	if err != nil {
		return err
	}
	defer done()
	ip, err := fsys.Resolve(path, common.ROOTINUM)
	if err != nil {
		return err
	}
	if !ip.IsDir() {
		return fmt.Errorf("%w: %q", common.ErrNotDir, path)
	}
	return nil
}

// Readdir lists the live entries of the directory at path, "." and ".."
// included.
func (fsys *Filesystem) Readdir(path string) ([]DirEntry, error) {
	done, err := fsys.enter()
	if err != nil {
		return nil, err
	}
	defer done()
	ip, err := fsys.Resolve(path, common.ROOTINUM)
	if err != nil {
		return nil, err
	}
	dp, err := fsys.lockLive(ip.Inum)
	if err != nil {
		return nil, err
	}
	des, err := fsys.dirs.List(dp)
	fsys.unlock(dp)
	if err != nil {
		return nil, err
	}
	ents := make([]DirEntry, 0, len(des))
	for _, de := range des {
		cp, err := fsys.itable.ReadInode(de.Inum)
		if err != nil {
			return nil, err
		}
		ents = append(ents, DirEntry{Name: de.Name, Stat: cp.Stat(fsys.super.BlockSize)})
	}
	return ents, nil
}

// mknod creates an inode of kind under the parent of path.
func (fsys *Filesystem) mknod(path string, kind common.Kind, mode uint32) error {
	parent, name, err := fsys.splitPath(path)
	if err != nil {
		return err
	}
	dp, err := fsys.lockLive(parent.Inum)
	if err != nil {
		return err
	}
	defer fsys.unlock(dp)
	if !dp.IsDir() {
		return fmt.Errorf("%w: parent of %q", common.ErrNotDir, path)
	}
	if _, err := fsys.dirs.Find(dp, name); err == nil {
		return fmt.Errorf("%w: %q", common.ErrExists, path)
	} else if !errors.Is(err, common.ErrNotFound) {
		return err
	}

	inum, err := fsys.ialloc.AllocNum()
	if err != nil {
		return err
	}
	ip := inode.MkInode(common.Inum(inum), kind, mode&07777)
	if kind == common.KindDir {
		err = fsys.dirs.Init(ip, dp.Inum)
	} else {
		err = fsys.itable.WriteInode(ip)
	}
	if err != nil {
		return util.Rollback(err, fsys.ialloc.FreeNum(inum))
	}

	if kind == common.KindDir {
		dp.Links++
	}
	if err := fsys.dirs.Add(dp, ip.Inum, name); err != nil {
		if kind == common.KindDir {
			dp.Links--
			err = util.Rollback(err, fsys.dirs.Release(ip))
		}
		return util.Rollback(err, fsys.freeInode(ip))
	}
	util.DPrintf(3, "mknod: %q -> %v\n", path, ip)
	return nil
}

// Mkdir creates an empty directory at path.
func (fsys *Filesystem) Mkdir(path string, mode uint32) error {
	done, err := fsys.enter()
	if err != nil {
		return err
	}
	defer done()
	return fsys.mknod(path, common.KindDir, mode)
}

// Create creates an empty regular file at path.
func (fsys *Filesystem) Create(path string, mode uint32) error {
	done, err := fsys.enter()
	if err != nil {
		return err
	}
	defer done()
	return fsys.mknod(path, common.KindFile, mode)
}

// Rmdir removes the empty directory at path. The root cannot be removed.
func (fsys *Filesystem) Rmdir(path string) error {
	done, err := fsys.enter()
	if err != nil {
		return err
	}
	defer done()
	names, err := components(path)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("%w: cannot remove the root", common.ErrInvalid)
	}
	if last := names[len(names)-1]; last == "." || last == ".." {
		return fmt.Errorf("%w: cannot remove %q", common.ErrInvalid, path)
	}

	dp, ip, name, err := fsys.lockEntry(path)
	if err != nil {
		return err
	}
	defer fsys.unlockEntry(dp, ip)
	if !ip.IsDir() {
		return fmt.Errorf("%w: %q", common.ErrNotDir, path)
	}
	empty, err := fsys.dirs.IsEmpty(ip)
	if err != nil {
		return err
	}
	if !empty {
		return fmt.Errorf("%w: %q", common.ErrNotEmpty, path)
	}

	dp.Links--
	if err := fsys.dirs.Remove(dp, name); err != nil {
		return err
	}
	if err := fsys.dirs.Release(ip); err != nil {
		return err
	}
	util.DPrintf(3, "Rmdir: %q (inode %d)\n", path, ip.Inum)
	return fsys.freeInode(ip)
}

// Unlink removes the name path of a regular file. The file's blocks and
// inode are released with its last link.
func (fsys *Filesystem) Unlink(path string) error {
	done, err := fsys.enter()
	if err != nil {
		return err
	}
	defer done()
	dp, ip, name, err := fsys.lockEntry(path)
	if err != nil {
		return err
	}
	defer fsys.unlockEntry(dp, ip)
	if ip.IsDir() {
		return fmt.Errorf("%w: %q", common.ErrIsDir, path)
	}
	if err := fsys.dirs.Remove(dp, name); err != nil {
		return err
	}
	ip.Links--
	if ip.Links > 0 {
		ip.Ctime = time.Now().UnixNano()
		return fsys.itable.WriteInode(ip)
	}
	if err := fsys.files.Free(ip); err != nil {
		return err
	}
	util.DPrintf(3, "Unlink: %q (inode %d)\n", path, ip.Inum)
	return fsys.freeInode(ip)
}

// Open checks that path names a regular file.
func (fsys *Filesystem) Open(path string) error {
	done, err := fsys.enter()
	if err != nil {
		return err
	}
	defer done()
	ip, err := fsys.Resolve(path, common.ROOTINUM)
	if err != nil {
		return err
	}
	if ip.IsDir() {
		return fmt.Errorf("%w: %q", common.ErrIsDir, path)
	}
	return nil
}

// lockFile resolves path to a regular file and locks it.
func (fsys *Filesystem) lockFile(path string) (*inode.Inode, error) {
	ip, err := fsys.Resolve(path, common.ROOTINUM)
	if err != nil {
		return nil, err
	}
	ip, err = fsys.lockLive(ip.Inum)
	if err != nil {
		return nil, err
	}
	if ip.IsDir() {
		fsys.unlock(ip)
		return nil, fmt.Errorf("%w: %q", common.ErrIsDir, path)
	}
	return ip, nil
}

// Read returns up to n bytes of the file at path starting at off.
func (fsys *Filesystem) Read(path string, off uint64, n uint64) ([]byte, error) {
	done, err := fsys.enter()
	if err != nil {
		return nil, err
	}
	defer done()
	ip, err := fsys.lockFile(path)
	if err != nil {
		return nil, err
	}
	defer fsys.unlock(ip)
	return fsys.files.Read(ip, off, n)
}

// Write stores data at off in the file at path and returns the number of
// bytes written. Bytes written before the device fills up are kept.
func (fsys *Filesystem) Write(path string, off uint64, data []byte) (int, error) {
	done, err := fsys.enter()
	if err != nil {
		return 0, err
	}
	defer done()
	ip, err := fsys.lockFile(path)
	if err != nil {
		return 0, err
	}
	defer fsys.unlock(ip)
	return fsys.files.Write(ip, off, data)
}

// Truncate sets the size of the file at path.
func (fsys *Filesystem) Truncate(path string, size uint64) error {
	done, err := fsys.enter()
	if err != nil {
		return err
	}
	defer done()
	ip, err := fsys.lockFile(path)
	if err != nil {
		return err
	}
	defer fsys.unlock(ip)
	return fsys.files.Truncate(ip, size)
}

// Utimens sets the access and modification times of path.
func (fsys *Filesystem) Utimens(path string, atime time.Time, mtime time.Time) error {
	done, err := fsys.enter()
	if err != nil {
		return err
	}
	defer done()
	ip, err := fsys.Resolve(path, common.ROOTINUM)
	if err != nil {
		return err
	}
	ip, err = fsys.lockLive(ip.Inum)
	if err != nil {
		return err
	}
	defer fsys.unlock(ip)
	ip.Atime = atime.UnixNano()
	ip.Mtime = mtime.UnixNano()
	ip.Ctime = time.Now().UnixNano()
	return fsys.itable.WriteInode(ip)
}

func (fsys *Filesystem) Statfs() (Statfs, error) {
	done, err := fsys.enter()
	if err != nil {
		return Statfs{}, err
	}
	defer done()
	return Statfs{
		BlockSize:  fsys.super.BlockSize,
		Blocks:     fsys.super.MaxDnum,
		BlocksFree: fsys.balloc.NumFree(),
		Files:      fsys.super.MaxInum,
		FilesFree:  fsys.ialloc.NumFree(),
		NameMax:    common.MAXNAMELEN,
		FsID:       fsys.super.FsID,
	}, nil
}
