// Package super describes the on-disk layout.
//
// The layout is fixed: block 0 holds the superblock, block 1 the inode
// bitmap, block 2 the data bitmap, then the inode table, then data blocks.
// Bit i of the data bitmap stands for absolute block i, so every block
// before DataStart is marked allocated at format time and a zero block
// pointer can never name file data.
package super

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/tchajed/marshal"

	"github.com/mit-pdos/rufs/addr"
	"github.com/mit-pdos/rufs/common"
	"github.com/mit-pdos/rufs/disk"
	"github.com/mit-pdos/rufs/util"
)

const MAGIC uint64 = 0x5C3A

const (
	SUPERBLK   common.Bnum = 0
	IBITMAPBLK common.Bnum = 1
	DBITMAPBLK common.Bnum = 2
	INODESTART common.Bnum = 3
)

const (
	DefaultMaxInodes uint64 = 1024
	DefaultMaxBlocks uint64 = 16384
)

const uuidOff uint64 = 7 * 8 // after the integer fields

// FsSuper holds computed values describing the on-disk layout.
type FsSuper struct {
	Magic     uint64
	MaxInodes uint64
	MaxBlocks uint64
	IBitmap   common.Bnum
	DBitmap   common.Bnum
	IStart    common.Bnum
	DStart    common.Bnum
	UUID      uuid.UUID
}

func nInodeBlk(maxInodes uint64) uint64 {
	return util.RoundUp(maxInodes*common.INODESZ, disk.BlockSize)
}

// MkFsSuper builds a fresh layout for maxInodes inodes on a device of
// maxBlocks blocks.
func MkFsSuper(maxInodes uint64, maxBlocks uint64) (*FsSuper, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("super: volume id: %v", err)
	}
	fs := &FsSuper{
		Magic:     MAGIC,
		MaxInodes: maxInodes,
		MaxBlocks: maxBlocks,
		IBitmap:   IBITMAPBLK,
		DBitmap:   DBITMAPBLK,
		IStart:    INODESTART,
		DStart:    INODESTART + common.Bnum(nInodeBlk(maxInodes)),
		UUID:      id,
	}
	if err := fs.validate(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FsSuper) validate() error {
	if fs.Magic != MAGIC {
		return fmt.Errorf("%w: bad magic %#x", common.ErrCorrupt, fs.Magic)
	}
	if fs.MaxInodes == 0 || fs.MaxInodes > common.NBITBLOCK {
		return fmt.Errorf("%w: %d inodes does not fit one bitmap block",
			common.ErrInvalid, fs.MaxInodes)
	}
	if fs.MaxBlocks > common.NBITBLOCK {
		return fmt.Errorf("%w: %d blocks does not fit one bitmap block",
			common.ErrInvalid, fs.MaxBlocks)
	}
	if fs.IBitmap != IBITMAPBLK || fs.DBitmap != DBITMAPBLK || fs.IStart != INODESTART ||
		fs.DStart != INODESTART+common.Bnum(nInodeBlk(fs.MaxInodes)) {
		return fmt.Errorf("%w: unexpected region layout", common.ErrCorrupt)
	}
	if fs.DStart >= fs.MaxBlocks {
		return fmt.Errorf("%w: %d blocks leaves no room for data (data starts at %d)",
			common.ErrInvalid, fs.MaxBlocks, fs.DStart)
	}
	return nil
}

// Encode returns the superblock as a full disk block
func (fs *FsSuper) Encode() disk.Block {
	enc := marshal.NewEnc(disk.BlockSize)
	enc.PutInt(fs.Magic)
	enc.PutInt(fs.MaxInodes)
	enc.PutInt(fs.MaxBlocks)
	enc.PutInt(fs.IBitmap)
	enc.PutInt(fs.DBitmap)
	enc.PutInt(fs.IStart)
	enc.PutInt(fs.DStart)
	blk := enc.Finish()
	copy(blk[uuidOff:uuidOff+16], fs.UUID[:])
	return blk
}

// Decode parses and checks a superblock read from block 0
func Decode(blk disk.Block) (*FsSuper, error) {
	if uint64(len(blk)) != disk.BlockSize {
		return nil, fmt.Errorf("%w: superblock is %d bytes", common.ErrCorrupt, len(blk))
	}
	dec := marshal.NewDec(blk)
	fs := &FsSuper{
		Magic:     dec.GetInt(),
		MaxInodes: dec.GetInt(),
		MaxBlocks: dec.GetInt(),
		IBitmap:   dec.GetInt(),
		DBitmap:   dec.GetInt(),
		IStart:    dec.GetInt(),
		DStart:    dec.GetInt(),
	}
	id, err := uuid.FromBytes(blk[uuidOff : uuidOff+16])
	if err != nil {
		return nil, fmt.Errorf("%w: volume id: %v", common.ErrCorrupt, err)
	}
	fs.UUID = id
	if err := fs.validate(); err != nil {
		if fs.Magic == MAGIC {
			return nil, fmt.Errorf("%w: %v", common.ErrCorrupt, err)
		}
		return nil, err
	}
	return fs, nil
}

// NInodeBlk returns the number of blocks in the inode table
func (fs *FsSuper) NInodeBlk() uint64 {
	return uint64(fs.DStart - fs.IStart)
}

// NInode returns the number of inodes in the file system.
func (fs *FsSuper) NInode() uint64 {
	return fs.MaxInodes
}

// MaxBnum returns one past the highest block number.
func (fs *FsSuper) MaxBnum() common.Bnum {
	return common.Bnum(fs.MaxBlocks)
}

// BitmapInodeStart returns the block number of the inode bitmap.
func (fs *FsSuper) BitmapInodeStart() common.Bnum {
	return fs.IBitmap
}

// BitmapBlockStart returns the block number of the data block bitmap.
func (fs *FsSuper) BitmapBlockStart() common.Bnum {
	return fs.DBitmap
}

// InodeStart returns the first block containing inodes.
func (fs *FsSuper) InodeStart() common.Bnum {
	return fs.IStart
}

// DataStart returns the first data block after metadata.
func (fs *FsSuper) DataStart() common.Bnum {
	return fs.DStart
}

// Inum2Addr computes the disk address of the given inode number:
// block inum*INODESZ/BlockSize + InodeStart, offset inum*INODESZ mod BlockSize.
func (fs *FsSuper) Inum2Addr(inum common.Inum) addr.Addr {
	return addr.MkObjAddr(fs.InodeStart(), uint64(inum), common.INODESZ)
}

func (fs *FsSuper) String() string {
	return fmt.Sprintf("rufs %v: %d inodes, %d blocks, inodes at %d, data at %d",
		fs.UUID, fs.MaxInodes, fs.MaxBlocks, fs.IStart, fs.DStart)
}
