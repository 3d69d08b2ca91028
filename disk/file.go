package disk

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/mit-pdos/rufs/common"
	"github.com/mit-pdos/rufs/util"
)

var _ Disk = (*fileDisk)(nil)

type fileDisk struct {
	fd        int
	numBlocks uint64
}

func ioErr(format string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", common.ErrIO, fmt.Sprintf(format, a...))
}

// Init creates the image at path, discarding any previous contents, and
// sizes it to numBlocks zeroed blocks.
func Init(path string, numBlocks uint64) (Disk, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_TRUNC, 0666)
	if err != nil {
		return nil, ioErr("create %s: %v", path, err)
	}
	err = unix.Ftruncate(fd, int64(numBlocks*BlockSize))
	if err != nil {
		unix.Close(fd)
		return nil, ioErr("truncate %s: %v", path, err)
	}
	util.DPrintf(0, "disk: created %s with %d blocks\n", path, numBlocks)
	return &fileDisk{fd: fd, numBlocks: numBlocks}, nil
}

// Open opens an existing image. The image size must be a whole number of
// blocks.
func Open(path string) (Disk, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err == unix.ENOENT {
		return nil, fmt.Errorf("%w: %s", common.ErrNotFound, path)
	}
	if err != nil {
		return nil, ioErr("open %s: %v", path, err)
	}
	var stat unix.Stat_t
	err = unix.Fstat(fd, &stat)
	if err != nil {
		unix.Close(fd)
		return nil, ioErr("stat %s: %v", path, err)
	}
	if stat.Size <= 0 || uint64(stat.Size)%BlockSize != 0 {
		unix.Close(fd)
		return nil, ioErr("%s: size %d is not a whole number of blocks", path, stat.Size)
	}
	numBlocks := uint64(stat.Size) / BlockSize
	util.DPrintf(0, "disk: opened %s with %d blocks\n", path, numBlocks)
	return &fileDisk{fd: fd, numBlocks: numBlocks}, nil
}

func (d *fileDisk) ReadTo(a uint64, buf Block) error {
	if uint64(len(buf)) != BlockSize {
		return ioErr("read buffer is %d bytes", len(buf))
	}
	if a >= d.numBlocks {
		return ioErr("out-of-bounds read at %v", a)
	}
	n, err := unix.Pread(d.fd, buf, int64(a*BlockSize))
	if err != nil {
		return ioErr("read %v: %v", a, err)
	}
	if uint64(n) != BlockSize {
		return ioErr("short read at %v: %d bytes", a, n)
	}
	util.DPrintf(5, "read: %v\n", a)
	return nil
}

func (d *fileDisk) Read(a uint64) (Block, error) {
	buf := make([]byte, BlockSize)
	err := d.ReadTo(a, buf)
	return buf, err
}

func (d *fileDisk) Write(a uint64, v Block) error {
	if uint64(len(v)) != BlockSize {
		return ioErr("v is not block sized (%d bytes)", len(v))
	}
	if a >= d.numBlocks {
		return ioErr("out-of-bounds write at %v", a)
	}
	n, err := unix.Pwrite(d.fd, v, int64(a*BlockSize))
	if err != nil {
		return ioErr("write %v: %v", a, err)
	}
	if uint64(n) != BlockSize {
		return ioErr("short write at %v: %d bytes", a, n)
	}
	util.DPrintf(5, "write: %v\n", a)
	return nil
}

func (d *fileDisk) Size() (uint64, error) {
	return d.numBlocks, nil
}

func (d *fileDisk) Barrier() error {
	// NOTE: on macOS, this flushes to the drive but doesn't actually issue a
	// disk barrier; the correct replacement is fcntl with F_FULLFSYNC.
	err := unix.Fsync(d.fd)
	if err != nil {
		return ioErr("fsync: %v", err)
	}
	return nil
}

func (d *fileDisk) Close() error {
	err := unix.Close(d.fd)
	if err != nil {
		return ioErr("close: %v", err)
	}
	return nil
}
