package inode

import (
	"fmt"

	"github.com/mit-pdos/rufs/buf"
	"github.com/mit-pdos/rufs/common"
	"github.com/mit-pdos/rufs/disk"
	"github.com/mit-pdos/rufs/super"
	"github.com/mit-pdos/rufs/util"
)

// Store reads and writes inode records in the inode table. Several inodes
// share a block, so every write is a read-modify-write of the containing
// block. The last inode block touched is kept in a one-entry cache.
type Store struct {
	d     disk.Disk
	sb    *super.FsSuper
	cache *buf.Cache
}

func MkStore(d disk.Disk, sb *super.FsSuper) *Store {
	return &Store{
		d:     d,
		sb:    sb,
		cache: buf.MkCache(),
	}
}

func (s *Store) checkInum(inum common.Inum) error {
	if uint64(inum) >= s.sb.NInode() {
		return fmt.Errorf("inode %d: %w", inum, common.ErrOutOfRange)
	}
	return nil
}

// ReadInode loads inode inum
func (s *Store) ReadInode(inum common.Inum) (*Inode, error) {
	if err := s.checkInum(inum); err != nil {
		return nil, err
	}
	a := s.sb.Inum2Addr(inum)
	b, err := s.cache.ReadBuf(s.d, a.Blkno)
	if err != nil {
		return nil, fmt.Errorf("read inode %d: %w", inum, err)
	}
	ip := Decode(b.LoadAddr(a, common.INODESZ))
	util.DPrintf(10, "ReadInode %v\n", ip)
	return ip, nil
}

// WriteInode stores ip in the slot for ip.Inum
func (s *Store) WriteInode(ip *Inode) error {
	if err := s.checkInum(ip.Inum); err != nil {
		return err
	}
	a := s.sb.Inum2Addr(ip.Inum)
	b, err := s.cache.ReadBuf(s.d, a.Blkno)
	if err != nil {
		return fmt.Errorf("write inode %d: %w", ip.Inum, err)
	}
	b.InstallAddr(a, ip.Encode())
	err = s.cache.WriteBuf(s.d, b)
	if err != nil {
		return fmt.Errorf("write inode %d: %w", ip.Inum, err)
	}
	util.DPrintf(10, "WriteInode %v\n", ip)
	return nil
}
