// buf stages one disk block in memory for a single read-modify-write.
//
// A Buf is owned by the operation that loaded it; it is never shared across
// calls. Sub-block objects (inodes, directory entries, bitmap bits, file
// byte ranges) are installed into the staged block and the whole block is
// written back with WriteDirect.
package buf

import (
	"github.com/mit-pdos/rufs/addr"
	"github.com/mit-pdos/rufs/common"
	"github.com/mit-pdos/rufs/disk"
	"github.com/mit-pdos/rufs/util"
)

// A Buf is a staged copy of a disk block
type Buf struct {
	Blkno common.Bnum
	Blk   disk.Block
	dirty bool // has this block been written to?
}

func MkBuf(blkno common.Bnum, blk disk.Block) *Buf {
	b := &Buf{
		Blkno: blkno,
		Blk:   blk,
		dirty: false,
	}
	return b
}

// MkZeroBuf stages a zero-filled block that replaces whatever is on disk.
func MkZeroBuf(blkno common.Bnum) *Buf {
	b := MkBuf(blkno, make(disk.Block, disk.BlockSize))
	b.SetDirty()
	return b
}

// ReadBuf loads block blkno from d
func ReadBuf(d disk.Disk, blkno common.Bnum) (*Buf, error) {
	blk, err := d.Read(blkno)
	if err != nil {
		return nil, err
	}
	return MkBuf(blkno, blk), nil
}

// Load returns the sz bytes at off, aliasing the staged block
func (buf *Buf) Load(off uint64, sz uint64) []byte {
	return buf.Blk[off : off+sz]
}

// LoadAddr is Load for an object addressed by a
func (buf *Buf) LoadAddr(a addr.Addr, sz uint64) []byte {
	if a.Blkno != buf.Blkno {
		panic("LoadAddr: wrong block")
	}
	return buf.Load(a.Off, sz)
}

// Install copies data into the staged block at off
func (buf *Buf) Install(off uint64, data []byte) {
	util.DPrintf(20, "%v: install %d bytes at %d\n", buf.Blkno, len(data), off)
	copy(buf.Blk[off:off+uint64(len(data))], data)
	buf.SetDirty()
}

// InstallAddr is Install for an object addressed by a
func (buf *Buf) InstallAddr(a addr.Addr, data []byte) {
	if a.Blkno != buf.Blkno {
		panic("InstallAddr: wrong block")
	}
	buf.Install(a.Off, data)
}

func (buf *Buf) IsBitSet(a addr.BitAddr) bool {
	return buf.Blk[a.Byte]&(1<<a.Bit) != 0
}

// SetBit sets (v = true) or clears one bit of the staged block
func (buf *Buf) SetBit(a addr.BitAddr, v bool) {
	if a.Blkno != buf.Blkno {
		panic("SetBit: wrong block")
	}
	if v {
		buf.Blk[a.Byte] = buf.Blk[a.Byte] | (1 << a.Bit)
	} else {
		buf.Blk[a.Byte] = buf.Blk[a.Byte] & ^(1 << a.Bit)
	}
	buf.SetDirty()
}

func (buf *Buf) IsDirty() bool {
	return buf.dirty
}

func (buf *Buf) SetDirty() {
	buf.dirty = true
}

// WriteDirect writes the staged block back to d if it was modified
func (buf *Buf) WriteDirect(d disk.Disk) error {
	if !buf.dirty {
		return nil
	}
	err := d.Write(buf.Blkno, buf.Blk)
	if err != nil {
		return err
	}
	buf.dirty = false
	return nil
}
