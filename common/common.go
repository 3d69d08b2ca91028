package common

import (
	"errors"

	"github.com/tchajed/goose/machine/disk"
)

const (
	BlockSize uint64 = disk.BlockSize
	NBITBLOCK uint64 = disk.BlockSize * 8

	INODESZ  uint64 = 256 // on-disk size
	INODEBLK uint64 = disk.BlockSize / INODESZ
	NDIRECT  uint64 = 16

	DIRENTSZ   uint64 = 256
	DIRENTHDR  uint64 = 3 * 8 // inum, valid, name length
	DIRENTBLK  uint64 = disk.BlockSize / DIRENTSZ
	MAXNAMELEN uint64 = DIRENTSZ - DIRENTHDR

	MAXFILESZ uint64 = NDIRECT * disk.BlockSize
)

type Inum uint64
type Bnum = uint64

const (
	ROOTINUM Inum = 0
	NULLBNUM Bnum = 0
)

// Inode types
const (
	NF3REG uint64 = 1
	NF3DIR uint64 = 2
)

var (
	ErrIO          = errors.New("i/o error")
	ErrOutOfRange  = errors.New("number out of range")
	ErrNotFound    = errors.New("no such file or directory")
	ErrNotDir      = errors.New("not a directory")
	ErrIsDir       = errors.New("is a directory")
	ErrNoSpace     = errors.New("no space left")
	ErrExist       = errors.New("file exists")
	ErrNotEmpty    = errors.New("directory not empty")
	ErrInvalid     = errors.New("invalid argument")
	ErrNameTooLong = errors.New("file name too long")
	ErrCorrupt     = errors.New("corrupt file system image")
)
