package disk

import (
	gdisk "github.com/tchajed/goose/machine/disk"
)

var _ Disk = (*memDisk)(nil)

// memDisk checks requests before handing them to the goose in-memory disk,
// which panics on bad addresses.
type memDisk struct {
	d         gdisk.Disk
	numBlocks uint64
	closed    bool
}

func NewMemDisk(numBlocks uint64) Disk {
	return &memDisk{d: gdisk.NewMemDisk(numBlocks), numBlocks: numBlocks}
}

func (d *memDisk) check(a uint64) error {
	if d.closed {
		return ioErr("disk is closed")
	}
	if a >= d.numBlocks {
		return ioErr("out-of-bounds access at %v", a)
	}
	return nil
}

func (d *memDisk) ReadTo(a uint64, buf Block) error {
	if uint64(len(buf)) != BlockSize {
		return ioErr("read buffer is %d bytes", len(buf))
	}
	if err := d.check(a); err != nil {
		return err
	}
	copy(buf, d.d.Read(a))
	return nil
}

func (d *memDisk) Read(a uint64) (Block, error) {
	buf := make(Block, BlockSize)
	err := d.ReadTo(a, buf)
	return buf, err
}

func (d *memDisk) Write(a uint64, v Block) error {
	if uint64(len(v)) != BlockSize {
		return ioErr("v is not block-sized (%d bytes)", len(v))
	}
	if err := d.check(a); err != nil {
		return err
	}
	d.d.Write(a, v)
	return nil
}

func (d *memDisk) Size() (uint64, error) {
	return d.numBlocks, nil
}

func (d *memDisk) Barrier() error { return nil }

func (d *memDisk) Close() error {
	d.closed = true
	return nil
}
