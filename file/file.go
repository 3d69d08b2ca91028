// Package file maps byte ranges of a regular file onto its direct blocks.
//
// Byte i of a file lives in block Direct[i / BlockSize]. A zero pointer is a
// hole and reads as zeros. Files are limited to NDIRECT blocks.
package file

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

// readBlock returns block idx of ip, or nil for a hole
func (m *Manager) readBlock(ip *inode.Inode, idx uint64) (*buf.Buf, error) {
	bn := ip.Direct[idx]
	if bn == common.NULLBNUM {
		return nil, nil
	}
	b, err := buf.ReadBuf(m.d, bn)
	if err != nil {
		return nil, fmt.Errorf("file %d block %d: %w", ip.Inum, bn, err)
	}
	return b, nil
}

// Read returns up to n bytes starting at off. The result is shorter than n
// when the range runs past the end of the file.
func (m *Manager) Read(ip *inode.Inode, off uint64, n uint64) ([]byte, error) {
	if off >= ip.Size || n == 0 {
		return nil, nil
	}
	end := ip.Size
	if !util.SumOverflows(off, n) {
		end = util.Min(off+n, ip.Size)
	}
	data := make([]byte, end-off)
	for pos := off; pos < end; {
		idx := pos / disk.BlockSize
		boff := pos % disk.BlockSize
		cnt := util.Min(disk.BlockSize-boff, end-pos)
		b, err := m.readBlock(ip, idx)
		if err != nil {
			return nil, err
		}
		if b != nil {
			copy(data[pos-off:pos-off+cnt], b.Load(boff, cnt))
		}
		pos += cnt
	}
	util.DPrintf(5, "read %d: [%d, %d)\n", ip.Inum, off, end)
	return data, nil
}

// Write stores data at off, allocating blocks for holes, and persists ip.
//
// A write that would end past the direct-pointer limit fails with
// ErrNoSpace before anything changes. Running out of data blocks part way
// through is not rolled back: the blocks already written stay, ip records
// them and covers the written prefix, and the number of bytes written is
// returned with ErrNoSpace.
func (m *Manager) Write(ip *inode.Inode, off uint64, data []byte) (uint64, error) {
	n := uint64(len(data))
	if n == 0 {
		return 0, nil
	}
	if util.SumOverflows(off, n) || off+n > common.MAXFILESZ {
		return 0, fmt.Errorf("file %d: write [%d, +%d) past %d bytes: %w",
			ip.Inum, off, n, common.MAXFILESZ, common.ErrNoSpace)
	}
	var written uint64
	var werr error
	for written < n {
		pos := off + written
		idx := pos / disk.BlockSize
		boff := pos % disk.BlockSize
		cnt := util.Min(disk.BlockSize-boff, n-written)

		var b *buf.Buf
		fresh := ip.Direct[idx] == common.NULLBNUM
		if fresh {
			bn, err := m.balloc.AllocNum()
			if err != nil {
				werr = fmt.Errorf("file %d: %w", ip.Inum, err)
				break
			}
			b = buf.MkZeroBuf(bn)
		} else {
			b, werr = m.readBlock(ip, idx)
			if werr != nil {
				break
			}
		}
		b.Install(boff, data[written:written+cnt])
		if err := b.WriteDirect(m.d); err != nil {
			werr = fmt.Errorf("file %d block %d: %w", ip.Inum, b.Blkno, err)
			if fresh {
				// still holds stale contents on disk
				m.freeBlock(ip, b.Blkno)
			}
			break
		}
		if fresh {
			ip.Direct[idx] = b.Blkno
		}
		written += cnt
	}
	if written > 0 {
		ip.SetSize(util.Max(ip.Size, off+written))
		ip.Touch(time.Now())
	}
	if err := m.inodes.WriteInode(ip); err != nil && werr == nil {
		werr = err
	}
	util.DPrintf(5, "write %d: [%d, +%d) wrote %d err %v\n", ip.Inum, off, n, written, werr)
	return written, werr
}

// Truncate sets the size of ip. Shrinking zeroes the rest of the last
// partial block, so growing again reads zeros, and frees the blocks wholly
// past the new end; growing leaves a hole.
//
// ip is persisted without the dropped pointers before their blocks are
// released, so a failure part way through can leak blocks but never leaves
// the inode pointing at a free block.
func (m *Manager) Truncate(ip *inode.Inode, size uint64) error {
	if size > common.MAXFILESZ {
		return fmt.Errorf("file %d: truncate to %d: %w", ip.Inum, size, common.ErrNoSpace)
	}
	old := *ip
	var dropped []common.Bnum
	if size < ip.Size {
		if size%disk.BlockSize != 0 {
			idx := size / disk.BlockSize
			b, err := m.readBlock(ip, idx)
			if err != nil {
				return err
			}
			if b != nil {
				boff := size % disk.BlockSize
				b.Install(boff, make([]byte, disk.BlockSize-boff))
				if err := b.WriteDirect(m.d); err != nil {
					return fmt.Errorf("file %d block %d: %w", ip.Inum, b.Blkno, err)
				}
			}
		}
		for idx := util.RoundUp(size, disk.BlockSize); idx < common.NDIRECT; idx++ {
			if ip.Direct[idx] != common.NULLBNUM {
				dropped = append(dropped, ip.Direct[idx])
				ip.Direct[idx] = common.NULLBNUM
			}
		}
	}
	ip.SetSize(size)
	ip.Touch(time.Now())
	if err := m.inodes.WriteInode(ip); err != nil {
		*ip = old
		return err
	}
	for _, bn := range dropped {
		if err := m.balloc.FreeNum(bn); err != nil {
			return fmt.Errorf("file %d: %w", ip.Inum, err)
		}
	}
	return nil
}

// freeBlock releases a block that no pointer refers to yet
func (m *Manager) freeBlock(ip *inode.Inode, bn common.Bnum) {
	if err := m.balloc.FreeNum(bn); err != nil {
		util.DPrintf(0, "file %d: leaked block %d: %v\n", ip.Inum, bn, err)
	}
}

// Free releases every block of ip and clears its pointers. ip is not
// written back; the caller is about to free or rewrite it.
func (m *Manager) Free(ip *inode.Inode) error {
	for idx, bn := range ip.Direct {
		if bn == common.NULLBNUM {
			continue
		}
		if err := m.balloc.FreeNum(bn); err != nil {
			return fmt.Errorf("inode %d: %w", ip.Inum, err)
		}
		ip.Direct[idx] = common.NULLBNUM
	}
	ip.SetSize(0)
	return nil
}
