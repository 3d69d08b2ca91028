package buf

import (
	"github.com/mit-pdos/rufs/common"
	"github.com/mit-pdos/rufs/disk"
	"github.com/mit-pdos/rufs/util"
)

// Cache remembers the last block read or written through it. It only saves
// a device read when consecutive requests target the same block; a request
// for any other block replaces the entry.
//
// Cache is not safe for concurrent use.
type Cache struct {
	valid bool
	blkno common.Bnum
	blk   disk.Block
}

func MkCache() *Cache {
	return &Cache{}
}

// Lookup returns a private copy of blkno if it is the cached block
func (c *Cache) Lookup(blkno common.Bnum) (disk.Block, bool) {
	if !c.valid || c.blkno != blkno {
		return nil, false
	}
	return util.CloneByteSlice(c.blk), true
}

// Fill replaces the cached block with a copy of blk
func (c *Cache) Fill(blkno common.Bnum, blk disk.Block) {
	c.valid = true
	c.blkno = blkno
	c.blk = util.CloneByteSlice(blk)
}

func (c *Cache) Invalidate() {
	c.valid = false
	c.blk = nil
}

// ReadBuf loads blkno through the cache
func (c *Cache) ReadBuf(d disk.Disk, blkno common.Bnum) (*Buf, error) {
	if blk, ok := c.Lookup(blkno); ok {
		return MkBuf(blkno, blk), nil
	}
	b, err := ReadBuf(d, blkno)
	if err != nil {
		c.Invalidate()
		return nil, err
	}
	c.Fill(blkno, b.Blk)
	return b, nil
}

// WriteBuf writes b to d and makes it the cached block. A failed write
// leaves the cache empty, since the device contents are then unknown.
func (c *Cache) WriteBuf(d disk.Disk, b *Buf) error {
	err := b.WriteDirect(d)
	if err != nil {
		c.Invalidate()
		return err
	}
	c.Fill(b.Blkno, b.Blk)
	return nil
}
