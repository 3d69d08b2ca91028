package alloc

import (
	"fmt"

	"github.com/mit-pdos/rufs/addr"
	"github.com/mit-pdos/rufs/buf"
	"github.com/mit-pdos/rufs/common"
	"github.com/mit-pdos/rufs/disk"
	"github.com/mit-pdos/rufs/util"
)

// Alloc uses an on-disk bitmap to allocate and free numbers in [0, max).
// Bit n set means number n is in use.
//
// Every call reads the bitmap block, changes at most one bit and writes it
// back; nothing is cached between calls. Alloc does no locking: callers must
// not run two operations on the same bitmap at once.
type Alloc struct {
	d     disk.Disk
	start common.Bnum
	max   uint64
	name  string
}

func MkAlloc(d disk.Disk, start common.Bnum, max uint64, name string) *Alloc {
	if max > common.NBITBLOCK {
		panic("MkAlloc: bitmap larger than one block")
	}
	a := &Alloc{
		d:     d,
		start: start,
		max:   max,
		name:  name,
	}
	return a
}

func (a *Alloc) Max() uint64 {
	return a.max
}

func (a *Alloc) readBitmap() (*buf.Buf, error) {
	b, err := buf.ReadBuf(a.d, a.start)
	if err != nil {
		return nil, fmt.Errorf("alloc %s: read bitmap: %w", a.name, err)
	}
	return b, nil
}

func (a *Alloc) writeBitmap(b *buf.Buf) error {
	err := b.WriteDirect(a.d)
	if err != nil {
		return fmt.Errorf("alloc %s: write bitmap: %w", a.name, err)
	}
	return nil
}

func (a *Alloc) checkRange(n uint64) error {
	if n >= a.max {
		return fmt.Errorf("alloc %s: %d not below %d: %w", a.name, n, a.max, common.ErrOutOfRange)
	}
	return nil
}

// AllocNum marks the lowest free number used and returns it
func (a *Alloc) AllocNum() (uint64, error) {
	b, err := a.readBitmap()
	if err != nil {
		return 0, err
	}
	for n := uint64(0); n < a.max; n++ {
		bit := addr.MkBitAddr(a.start, n)
		if b.IsBitSet(bit) {
			continue
		}
		b.SetBit(bit, true)
		if err := a.writeBitmap(b); err != nil {
			return 0, err
		}
		util.DPrintf(1, "alloc %s: %d\n", a.name, n)
		return n, nil
	}
	return 0, fmt.Errorf("alloc %s: all %d in use: %w", a.name, a.max, common.ErrNoSpace)
}

func (a *Alloc) setNum(n uint64, used bool) error {
	if err := a.checkRange(n); err != nil {
		return err
	}
	b, err := a.readBitmap()
	if err != nil {
		return err
	}
	bit := addr.MkBitAddr(a.start, n)
	if b.IsBitSet(bit) == used {
		return nil
	}
	b.SetBit(bit, used)
	return a.writeBitmap(b)
}

// FreeNum releases n. Freeing a number that is already free does nothing.
func (a *Alloc) FreeNum(n uint64) error {
	util.DPrintf(1, "free %s: %d\n", a.name, n)
	return a.setNum(n, false)
}

// MarkUsed reserves n without searching
func (a *Alloc) MarkUsed(n uint64) error {
	return a.setNum(n, true)
}

func (a *Alloc) IsUsed(n uint64) (bool, error) {
	if err := a.checkRange(n); err != nil {
		return false, err
	}
	b, err := a.readBitmap()
	if err != nil {
		return false, err
	}
	return b.IsBitSet(addr.MkBitAddr(a.start, n)), nil
}

func popCnt(b byte) uint64 {
	var count uint64
	var x = b
	for i := uint64(0); i < 8; i++ {
		count += uint64(x & 1)
		x = x >> 1
	}
	return count
}

// NumFree counts free numbers below max
func (a *Alloc) NumFree() (uint64, error) {
	b, err := a.readBitmap()
	if err != nil {
		return 0, err
	}
	var used uint64
	for i := uint64(0); i < a.max/8; i++ {
		used += popCnt(b.Blk[i])
	}
	for n := a.max / 8 * 8; n < a.max; n++ {
		if b.IsBitSet(addr.MkBitAddr(a.start, n)) {
			used++
		}
	}
	return a.max - used, nil
}
