package common

const (
	MAGIC uint64 = 0x5C3A

	DEFAULTBLKSZ    uint64 = 4096
	MINBLKSZ        uint64 = 1024
	MAXBLKSZ        uint64 = 65536
	DEFAULTNINODE   uint64 = 1024
	DEFAULTNDATABLK uint64 = 16384

	INODESZ  uint64 = 512 // on-disk size
	DIRENTSZ uint64 = 256 // on-disk size

	// header is the valid flag and the inode number
	DIRENTHDR  uint64 = 16
	MAXNAMELEN uint64 = DIRENTSZ - DIRENTHDR

	NDIRECT   uint64 = 16
	NINDIRECT uint64 = 8
	BNUMSZ    uint64 = 8 // on-disk size of a block pointer

	MAXPATHLEN uint64 = 4096
)

type Inum uint64
type Bnum = uint64

const (
	ROOTINUM Inum = 0
	NULLBNUM Bnum = 0
)

// Kind distinguishes directories from regular files.
type Kind uint64

const (
	KindFile Kind = iota
	KindDir
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	}
	return "unknown"
}

const (
	DIRMODE  uint32 = 0755
	FILEMODE uint32 = 0644
)

// Bits per block of a bitmap.
func NBitBlock(blockSize uint64) uint64 {
	return blockSize * 8
}

// Inodes per inode-table block.
func InodeBlk(blockSize uint64) uint64 {
	return blockSize / INODESZ
}

// Entries per directory block.
func DirentBlk(blockSize uint64) uint64 {
	return blockSize / DIRENTSZ
}

// Pointers per indirect block.
func BnumBlk(blockSize uint64) uint64 {
	return blockSize / BNUMSZ
}
