package inode

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/rufs-project/rufs/common"
)

// Stat is the struct-stat-like metadata handed to the bridge.
type Stat struct {
	Inum      common.Inum
	Kind      common.Kind
	Mode      uint32 // file type and permission bits
	Nlink     uint64
	Uid       uint32
	Gid       uint32
	Size      uint64
	Blocks    uint64
	BlockSize uint64
	Atime     time.Time
	Mtime     time.Time
	Ctime     time.Time
}

func (ip *Inode) Stat(blockSize uint64) Stat {
	mode := ip.Mode & 07777
	if ip.IsDir() {
		mode |= unix.S_IFDIR
	} else {
		mode |= unix.S_IFREG
	}
	return Stat{
		Inum:      ip.Inum,
		Kind:      ip.Kind,
		Mode:      mode,
		Nlink:     ip.Links,
		Uid:       ip.Uid,
		Gid:       ip.Gid,
		Size:      ip.Size,
		Blocks:    ip.Blocks,
		BlockSize: blockSize,
		Atime:     time.Unix(0, ip.Atime),
		Mtime:     time.Unix(0, ip.Mtime),
		Ctime:     time.Unix(0, ip.Ctime),
	}
}
