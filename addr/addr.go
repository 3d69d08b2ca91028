package addr

import (
	"github.com/mit-pdos/rufs/common"
)

// Addr identifies the start of a disk object.
//
// Blkno is the block number containing the object, and Off is the location of
// the object within the block (expressed as a byte offset). The size of the
// object is determined by the context in which Addr is used.
type Addr struct {
	Blkno common.Bnum
	Off   uint64 // offset in bytes
}

func MkAddr(blkno common.Bnum, off uint64) Addr {
	return Addr{Blkno: blkno, Off: off}
}

// MkObjAddr addresses the n-th object of size sz in a region of consecutive
// blocks starting at start. Objects never straddle a block boundary.
func MkObjAddr(start common.Bnum, n uint64, sz uint64) Addr {
	perBlock := common.BlockSize / sz
	return MkAddr(start+common.Bnum(n/perBlock), (n%perBlock)*sz)
}

// BitAddr locates bit n of a bitmap that starts at block start: the block
// holding it, the byte within that block, and the bit within that byte.
type BitAddr struct {
	Blkno common.Bnum
	Byte  uint64
	Bit   uint64
}

func MkBitAddr(start common.Bnum, n uint64) BitAddr {
	i := n / common.NBITBLOCK
	off := n % common.NBITBLOCK
	return BitAddr{Blkno: start + common.Bnum(i), Byte: off / 8, Bit: off % 8}
}
