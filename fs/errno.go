package fs

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/rufs-project/rufs/common"
)

// Order matters: wrapped errors may match more than one entry.
var errnos = []struct {
	err   error
	errno unix.Errno
}{
	{common.ErrNameTooLong, unix.ENAMETOOLONG},
	{common.ErrNotFound, unix.ENOENT},
	{common.ErrExists, unix.EEXIST},
	{common.ErrOutOfInodes, unix.ENOSPC},
	{common.ErrOutOfSpace, unix.ENOSPC},
	{common.ErrDirFull, unix.ENOSPC},
	{common.ErrNotDir, unix.ENOTDIR},
	{common.ErrIsDir, unix.EISDIR},
	{common.ErrNotEmpty, unix.ENOTEMPTY},
	{common.ErrFileTooBig, unix.EFBIG},
	{common.ErrInvalidPath, unix.EINVAL},
	{common.ErrInvalid, unix.EINVAL},
	{common.ErrUnmounted, unix.ENODEV},
	{common.ErrCorrupt, unix.EIO},
	{common.ErrDevice, unix.EIO},
}

// Errno maps an error from this package to the errno a bridge returns to the
// kernel. nil maps to 0.
func Errno(err error) unix.Errno {
	if err == nil {
		return 0
	}
	for _, e := range errnos {
		if errors.Is(err, e.err) {
			return e.errno
		}
	}
	return unix.EIO
}
