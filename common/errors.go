package common

import "errors"

// Errors returned by the filesystem layers. Callers match them with errors.Is;
// the layers wrap them with context as they propagate.
var (
	ErrNotFound    = errors.New("no such file or directory")
	ErrExists      = errors.New("file exists")
	ErrOutOfInodes = errors.New("out of inodes")
	ErrOutOfSpace  = errors.New("no space left on device")
	ErrDirFull     = errors.New("directory full")
	ErrDevice      = errors.New("device error")
	ErrInvalidPath = errors.New("invalid path")
	ErrNotDir      = errors.New("not a directory")
	ErrIsDir       = errors.New("is a directory")
	ErrNotEmpty    = errors.New("directory not empty")
	ErrNameTooLong = errors.New("file name too long")
	ErrFileTooBig  = errors.New("file too large")
	ErrInvalid     = errors.New("invalid argument")
	ErrCorrupt     = errors.New("corrupt filesystem image")
	ErrUnmounted   = errors.New("filesystem not mounted")
)
