package inode

import (
	"fmt"
	"time"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/rufs/common"
	"github.com/mit-pdos/rufs/util"
)

// Stat mirrors the inode's metadata in the form a host wants it.
type Stat struct {
	Mode  uint64
	Nlink uint64
	Uid   uint64
	Gid   uint64
	Size  uint64
	Atime uint64 // unix nanoseconds
	Mtime uint64
	Ctime uint64
}

// Inode is the in-memory copy of one inode record. Changes reach the disk
// only through Store.WriteInode.
type Inode struct {
	Inum   common.Inum
	Kind   uint64
	Valid  bool
	Link   uint64
	Size   uint64
	Direct [common.NDIRECT]common.Bnum
	Stat   Stat
}

func nowNanos(now time.Time) uint64 {
	return uint64(now.UnixNano())
}

// MkInode returns a fresh, valid inode with no data blocks
func MkInode(inum common.Inum, kind uint64, mode uint64, now time.Time) *Inode {
	t := nowNanos(now)
	var link uint64 = 1
	if kind == common.NF3DIR {
		link = 2
	}
	return &Inode{
		Inum:  inum,
		Kind:  kind,
		Valid: true,
		Link:  link,
		Stat: Stat{
			Mode:  mode,
			Nlink: link,
			Atime: t,
			Mtime: t,
			Ctime: t,
		},
	}
}

func (ip *Inode) IsDir() bool {
	return ip.Kind == common.NF3DIR
}

// SetSize keeps the size and its stat mirror equal
func (ip *Inode) SetSize(sz uint64) {
	ip.Size = sz
	ip.Stat.Size = sz
}

// SetLink keeps the link count and its stat mirror equal
func (ip *Inode) SetLink(n uint64) {
	ip.Link = n
	ip.Stat.Nlink = n
}

// Touch records a modification at now
func (ip *Inode) Touch(now time.Time) {
	t := nowNanos(now)
	ip.Stat.Mtime = t
	ip.Stat.Ctime = t
}

// NBlocks counts allocated direct pointers
func (ip *Inode) NBlocks() uint64 {
	var n uint64
	for _, bn := range ip.Direct {
		if bn != common.NULLBNUM {
			n++
		}
	}
	return n
}

func (ip *Inode) String() string {
	return fmt.Sprintf("# %d kind %d valid %v link %d size %d blks %v",
		ip.Inum, ip.Kind, ip.Valid, ip.Link, ip.Size, ip.Direct)
}

func boolInt(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// Encode returns the on-disk form, exactly INODESZ bytes
func (ip *Inode) Encode() []byte {
	enc := marshal.NewEnc(common.INODESZ)
	enc.PutInt(uint64(ip.Inum))
	enc.PutInt(ip.Kind)
	enc.PutInt(boolInt(ip.Valid))
	enc.PutInt(ip.Link)
	enc.PutInt(ip.Size)
	enc.PutInts(ip.Direct[:])
	enc.PutInt(ip.Stat.Mode)
	enc.PutInt(ip.Stat.Nlink)
	enc.PutInt(ip.Stat.Uid)
	enc.PutInt(ip.Stat.Gid)
	enc.PutInt(ip.Stat.Size)
	enc.PutInt(ip.Stat.Atime)
	enc.PutInt(ip.Stat.Mtime)
	enc.PutInt(ip.Stat.Ctime)
	return enc.Finish()
}

func Decode(data []byte) *Inode {
	dec := marshal.NewDec(util.CloneByteSlice(data))
	ip := &Inode{}
	ip.Inum = common.Inum(dec.GetInt())
	ip.Kind = dec.GetInt()
	ip.Valid = dec.GetInt() != 0
	ip.Link = dec.GetInt()
	ip.Size = dec.GetInt()
	copy(ip.Direct[:], dec.GetInts(common.NDIRECT))
	ip.Stat.Mode = dec.GetInt()
	ip.Stat.Nlink = dec.GetInt()
	ip.Stat.Uid = dec.GetInt()
	ip.Stat.Gid = dec.GetInt()
	ip.Stat.Size = dec.GetInt()
	ip.Stat.Atime = dec.GetInt()
	ip.Stat.Mtime = dec.GetInt()
	ip.Stat.Ctime = dec.GetInt()
	return ip
}
