// Package fs assembles the file system from its parts and exposes the
// path-based operations a user-space host calls.
//
// The parts underneath assume a single caller; Fs serializes every public
// operation with one mutex.
package fs

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/mit-pdos/rufs/addr"
	"github.com/mit-pdos/rufs/alloc"
	"github.com/mit-pdos/rufs/buf"
	"github.com/mit-pdos/rufs/common"
	"github.com/mit-pdos/rufs/dir"
	"github.com/mit-pdos/rufs/disk"
	"github.com/mit-pdos/rufs/file"
	"github.com/mit-pdos/rufs/inode"
	"github.com/mit-pdos/rufs/super"
	"github.com/mit-pdos/rufs/util"
)

// Params sizes a new file system
type Params struct {
	MaxInodes uint64
	MaxBlocks uint64 // size of the device, metadata included
}

func DefaultParams() Params {
	return Params{
		MaxInodes: super.DefaultMaxInodes,
		MaxBlocks: super.DefaultMaxBlocks,
	}
}

type Fs struct {
	mu     *sync.Mutex
	d      disk.Disk
	sb     *super.FsSuper
	ialloc *alloc.Alloc
	balloc *alloc.Alloc
	inodes *inode.Store
	dirs   *dir.Manager
	files  *file.Manager
}

func mkFs(d disk.Disk, sb *super.FsSuper) *Fs {
	inodes := inode.MkStore(d, sb)
	balloc := alloc.MkAlloc(d, sb.BitmapBlockStart(), sb.MaxBlocks, "block")
	return &Fs{
		mu:     new(sync.Mutex),
		d:      d,
		sb:     sb,
		ialloc: alloc.MkAlloc(d, sb.BitmapInodeStart(), sb.MaxInodes, "inode"),
		balloc: balloc,
		inodes: inodes,
		dirs:   dir.MkManager(d, inodes, balloc),
		files:  file.MkManager(d, inodes, balloc),
	}
}

func zeroBlock(d disk.Disk, bn common.Bnum) error {
	return buf.MkZeroBuf(bn).WriteDirect(d)
}

// Format writes an empty file system onto d: the superblock, both bitmaps
// (the data bitmap with every metadata block in use), a zeroed inode table
// and the root directory. Any failure is returned as is; d is left in an
// unspecified state.
func Format(d disk.Disk, params Params) (*Fs, error) {
	sz, err := d.Size()
	if err != nil {
		return nil, err
	}
	if params.MaxBlocks > sz {
		return nil, fmt.Errorf("format: %d blocks on a %d-block device: %w",
			params.MaxBlocks, sz, common.ErrInvalid)
	}
	sb, err := super.MkFsSuper(params.MaxInodes, params.MaxBlocks)
	if err != nil {
		return nil, fmt.Errorf("format: %w", err)
	}
	if err := d.Write(super.SUPERBLK, sb.Encode()); err != nil {
		return nil, err
	}
	if err := zeroBlock(d, sb.BitmapInodeStart()); err != nil {
		return nil, err
	}
	bitmap := buf.MkZeroBuf(sb.BitmapBlockStart())
	for bn := uint64(0); bn < sb.DataStart(); bn++ {
		bitmap.SetBit(addr.MkBitAddr(sb.BitmapBlockStart(), bn), true)
	}
	if err := bitmap.WriteDirect(d); err != nil {
		return nil, err
	}
	for bn := sb.InodeStart(); bn < sb.DataStart(); bn++ {
		if err := zeroBlock(d, bn); err != nil {
			return nil, err
		}
	}

	fs := mkFs(d, sb)
	inum, err := fs.ialloc.AllocNum()
	if err != nil {
		return nil, err
	}
	if common.Inum(inum) != common.ROOTINUM {
		return nil, fmt.Errorf("format: root got inode %d: %w", inum, common.ErrCorrupt)
	}
	root := inode.MkInode(common.ROOTINUM, common.NF3DIR, unix.S_IFDIR|0755, time.Now())
	if err := fs.dirs.InitDir(root, common.ROOTINUM); err != nil {
		return nil, err
	}
	if err := d.Barrier(); err != nil {
		return nil, err
	}
	util.DPrintf(0, "format: %v\n", sb)
	return fs, nil
}

// MountDevice loads the file system stored on d
func MountDevice(d disk.Disk) (*Fs, error) {
	blk, err := d.Read(super.SUPERBLK)
	if err != nil {
		return nil, err
	}
	sb, err := super.Decode(blk)
	if err != nil {
		return nil, err
	}
	sz, err := d.Size()
	if err != nil {
		return nil, err
	}
	if sb.MaxBlocks > sz {
		return nil, fmt.Errorf("%w: %d blocks recorded on a %d-block device",
			common.ErrCorrupt, sb.MaxBlocks, sz)
	}
	util.DPrintf(0, "mount: %v\n", sb)
	return mkFs(d, sb), nil
}

// Mount opens the image at path, creating and formatting it with params if
// it does not exist yet.
func Mount(path string, params Params) (*Fs, error) {
	d, err := disk.Open(path)
	if errors.Is(err, common.ErrNotFound) {
		d, err = disk.Init(path, params.MaxBlocks)
		if err != nil {
			return nil, err
		}
		fs, err := Format(d, params)
		if err != nil {
			d.Close()
			return nil, err
		}
		return fs, nil
	}
	if err != nil {
		return nil, err
	}
	fs, err := MountDevice(d)
	if err != nil {
		d.Close()
		return nil, err
	}
	return fs, nil
}

// Super returns the loaded superblock
func (fs *Fs) Super() *super.FsSuper {
	return fs.sb
}

func (fs *Fs) Flush() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.d.Barrier()
}

// Unmount flushes and closes the device. fs is unusable afterwards.
func (fs *Fs) Unmount() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.d.Barrier(); err != nil {
		fs.d.Close()
		return err
	}
	util.DPrintf(0, "unmount %v\n", fs.sb.UUID)
	return fs.d.Close()
}
