// Package dir manages the name -> inode entries stored in a directory's
// direct blocks.
//
// A directory's blocks are allocated contiguously from Direct[0], so a scan
// stops at the first zero pointer. Each block holds DIRENTBLK slots; the
// last slot ends exactly at the block boundary and is scanned like any
// other. Slots are never compacted: Remove leaves a hole that a later Add
// reuses, and blocks are only freed when the whole directory is freed.
package dir

import (
	"fmt"
	"time"

	"github.com/mit-pdos/rufs/alloc"
	"github.com/mit-pdos/rufs/buf"
	"github.com/mit-pdos/rufs/common"
	"github.com/mit-pdos/rufs/disk"
	"github.com/mit-pdos/rufs/inode"
	"github.com/mit-pdos/rufs/util"
)

type Manager struct {
	d      disk.Disk
	inodes *inode.Store
	balloc *alloc.Alloc
}

func MkManager(d disk.Disk, inodes *inode.Store, balloc *alloc.Alloc) *Manager {
	return &Manager{d: d, inodes: inodes, balloc: balloc}
}

type slotPos struct {
	ptr uint64 // index into Direct
	off uint64 // byte offset in the block
}

// walk visits the slots of dip in order until visit returns true, and
// reports whether it stopped early and where.
func (m *Manager) walk(dip *inode.Inode, visit func(pos slotPos, de Dirent) bool) (slotPos, bool, error) {
	if !dip.IsDir() {
		return slotPos{}, false, fmt.Errorf("inode %d: %w", dip.Inum, common.ErrNotDir)
	}
	for i := uint64(0); i < common.NDIRECT; i++ {
		bn := dip.Direct[i]
		if bn == common.NULLBNUM {
			break
		}
		b, err := buf.ReadBuf(m.d, bn)
		if err != nil {
			return slotPos{}, false, fmt.Errorf("dir %d block %d: %w", dip.Inum, bn, err)
		}
		for off := uint64(0); off+common.DIRENTSZ <= disk.BlockSize; off += common.DIRENTSZ {
			pos := slotPos{ptr: i, off: off}
			if visit(pos, decodeDirent(b.Load(off, common.DIRENTSZ))) {
				return pos, true, nil
			}
		}
	}
	return slotPos{}, false, nil
}

func (m *Manager) lookup(dip *inode.Inode, name string) (Dirent, slotPos, error) {
	var hit Dirent
	pos, found, err := m.walk(dip, func(pos slotPos, de Dirent) bool {
		if de.Valid && de.Name == name {
			hit = de
			return true
		}
		return false
	})
	if err != nil {
		return Dirent{}, slotPos{}, err
	}
	if !found {
		return Dirent{}, slotPos{}, fmt.Errorf("%q in dir %d: %w", name, dip.Inum, common.ErrNotFound)
	}
	return hit, pos, nil
}

// Find returns the valid entry called name
func (m *Manager) Find(dip *inode.Inode, name string) (Dirent, error) {
	de, _, err := m.lookup(dip, name)
	return de, err
}

type slotKind int

const (
	slotNone      slotKind = iota
	slotOverwrite          // an entry with this name exists
	slotHole               // first invalid slot in an allocated block
	slotAppend             // first unallocated direct pointer
)

type slot struct {
	kind slotKind
	pos  slotPos
}

func (m *Manager) chooseSlot(dip *inode.Inode, name string) (slot, error) {
	var s slot
	pos, found, err := m.walk(dip, func(pos slotPos, de Dirent) bool {
		if de.Valid && de.Name == name {
			return true
		}
		if !de.Valid && s.kind == slotNone {
			s = slot{kind: slotHole, pos: pos}
		}
		return false
	})
	if err != nil {
		return slot{}, err
	}
	if found {
		return slot{kind: slotOverwrite, pos: pos}, nil
	}
	if s.kind == slotNone {
		for i := uint64(0); i < common.NDIRECT; i++ {
			if dip.Direct[i] == common.NULLBNUM {
				s = slot{kind: slotAppend, pos: slotPos{ptr: i}}
				break
			}
		}
	}
	return s, nil
}

// Add maps name to inum in dip. If name already exists its entry is
// pointed at inum instead; a directory never holds two entries with the same
// name. dip is updated and persisted.
func (m *Manager) Add(dip *inode.Inode, inum common.Inum, name string) error {
	if err := ValidName(name); err != nil {
		return err
	}
	s, err := m.chooseSlot(dip, name)
	if err != nil {
		return err
	}
	de := Dirent{Inum: inum, Valid: true, Name: name}
	switch s.kind {
	case slotNone:
		return fmt.Errorf("dir %d is full: %w", dip.Inum, common.ErrNoSpace)
	case slotOverwrite, slotHole:
		bn := dip.Direct[s.pos.ptr]
		b, err := buf.ReadBuf(m.d, bn)
		if err != nil {
			return fmt.Errorf("dir %d block %d: %w", dip.Inum, bn, err)
		}
		b.Install(s.pos.off, de.Encode())
		if err := b.WriteDirect(m.d); err != nil {
			return fmt.Errorf("dir %d block %d: %w", dip.Inum, bn, err)
		}
	case slotAppend:
		bn, err := m.balloc.AllocNum()
		if err != nil {
			return fmt.Errorf("dir %d: %w", dip.Inum, err)
		}
		b := buf.MkZeroBuf(bn)
		b.Install(0, de.Encode())
		if err := b.WriteDirect(m.d); err != nil {
			m.freeBlock(dip, bn)
			return fmt.Errorf("dir %d block %d: %w", dip.Inum, bn, err)
		}
		dip.Direct[s.pos.ptr] = bn
		dip.SetSize(dip.Size + disk.BlockSize)
	}
	util.DPrintf(1, "dir %d: add %v (slot %d)\n", dip.Inum, de, s.kind)
	dip.Touch(time.Now())
	if err := m.inodes.WriteInode(dip); err != nil {
		if s.kind == slotAppend {
			m.freeBlock(dip, dip.Direct[s.pos.ptr])
			dip.Direct[s.pos.ptr] = common.NULLBNUM
			dip.SetSize(dip.Size - disk.BlockSize)
		}
		return err
	}
	return nil
}

// freeBlock releases a block no persisted pointer refers to
func (m *Manager) freeBlock(dip *inode.Inode, bn common.Bnum) {
	if err := m.balloc.FreeNum(bn); err != nil {
		util.DPrintf(0, "dir %d: leaked block %d: %v\n", dip.Inum, bn, err)
	}
}

// Remove invalidates the entry called name. The slot stays in place for
// reuse and no block is released.
func (m *Manager) Remove(dip *inode.Inode, name string) error {
	de, pos, err := m.lookup(dip, name)
	if err != nil {
		return err
	}
	bn := dip.Direct[pos.ptr]
	b, err := buf.ReadBuf(m.d, bn)
	if err != nil {
		return fmt.Errorf("dir %d block %d: %w", dip.Inum, bn, err)
	}
	de.Valid = false
	b.Install(pos.off, de.Encode())
	if err := b.WriteDirect(m.d); err != nil {
		return fmt.Errorf("dir %d block %d: %w", dip.Inum, bn, err)
	}
	util.DPrintf(1, "dir %d: remove %q\n", dip.Inum, name)
	dip.Touch(time.Now())
	return m.inodes.WriteInode(dip)
}

// List returns the valid entries of dip in slot order, "." and ".." first.
func (m *Manager) List(dip *inode.Inode) ([]Dirent, error) {
	var ents []Dirent
	_, _, err := m.walk(dip, func(pos slotPos, de Dirent) bool {
		if de.Valid {
			ents = append(ents, de)
		}
		return false
	})
	if err != nil {
		return nil, err
	}
	return ents, nil
}

// IsEmpty reports whether dip holds nothing besides "." and "..".
func (m *Manager) IsEmpty(dip *inode.Inode) (bool, error) {
	_, found, err := m.walk(dip, func(pos slotPos, de Dirent) bool {
		return de.Valid && de.Name != "." && de.Name != ".."
	})
	if err != nil {
		return false, err
	}
	return !found, nil
}

// InitDir gives the new directory dip its first block, holding "." -> dip
// and ".." -> parent, and persists dip.
func (m *Manager) InitDir(dip *inode.Inode, parent common.Inum) error {
	if !dip.IsDir() {
		return fmt.Errorf("inode %d: %w", dip.Inum, common.ErrNotDir)
	}
	bn, err := m.balloc.AllocNum()
	if err != nil {
		return fmt.Errorf("dir %d: %w", dip.Inum, err)
	}
	b := buf.MkZeroBuf(bn)
	b.Install(0, Dirent{Inum: dip.Inum, Valid: true, Name: "."}.Encode())
	b.Install(common.DIRENTSZ, Dirent{Inum: parent, Valid: true, Name: ".."}.Encode())
	if err := b.WriteDirect(m.d); err != nil {
		m.freeBlock(dip, bn)
		return fmt.Errorf("dir %d block %d: %w", dip.Inum, bn, err)
	}
	dip.Direct[0] = bn
	dip.SetSize(disk.BlockSize)
	if err := m.inodes.WriteInode(dip); err != nil {
		m.freeBlock(dip, bn)
		dip.Direct[0] = common.NULLBNUM
		dip.SetSize(0)
		return err
	}
	return nil
}
