package fs

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/mit-pdos/rufs/common"
	"github.com/mit-pdos/rufs/dir"
	"github.com/mit-pdos/rufs/disk"
	"github.com/mit-pdos/rufs/inode"
	"github.com/mit-pdos/rufs/namei"
	"github.com/mit-pdos/rufs/util"
)

// Attr is what GetAttr reports about an inode
type Attr struct {
	Ino    common.Inum
	Mode   uint32
	Nlink  uint64
	Uid    uint32
	Gid    uint32
	Size   uint64
	Blocks uint64 // allocated data blocks
	Atime  time.Time
	Mtime  time.Time
	Ctime  time.Time
}

func (a Attr) IsDir() bool {
	return a.Mode&unix.S_IFMT == unix.S_IFDIR
}

type DirEntry struct {
	Name string
	Attr Attr
}

type StatFS struct {
	BlockSize  uint64
	Blocks     uint64
	BlocksFree uint64
	Inodes     uint64
	InodesFree uint64
	NameMax    uint64
	VolumeUUID uuid.UUID
}

func mkTime(ns uint64) time.Time {
	return time.Unix(0, int64(ns))
}

func mkAttr(ip *inode.Inode) Attr {
	return Attr{
		Ino:    ip.Inum,
		Mode:   uint32(ip.Stat.Mode),
		Nlink:  ip.Link,
		Uid:    uint32(ip.Stat.Uid),
		Gid:    uint32(ip.Stat.Gid),
		Size:   ip.Size,
		Blocks: ip.NBlocks(),
		Atime:  mkTime(ip.Stat.Atime),
		Mtime:  mkTime(ip.Stat.Mtime),
		Ctime:  mkTime(ip.Stat.Ctime),
	}
}

func (fs *Fs) resolve(path string) (*inode.Inode, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("%q is not absolute: %w", path, common.ErrInvalid)
	}
	return namei.Resolve(fs.inodes, fs.dirs, path, common.ROOTINUM)
}

// parent resolves the directory holding the last component of path. name
// is "" for the root.
func (fs *Fs) parent(path string) (*inode.Inode, string, error) {
	ppath, name := namei.Split(path)
	dip, err := fs.resolve(ppath)
	if err != nil {
		return nil, "", err
	}
	if !dip.IsDir() {
		return nil, "", fmt.Errorf("%s: %w", ppath, common.ErrNotDir)
	}
	if name != "" {
		if err := dir.ValidName(name); err != nil {
			return nil, "", err
		}
	}
	return dip, name, nil
}

// regular resolves path and insists on a regular file
func (fs *Fs) regular(path string) (*inode.Inode, error) {
	ip, err := fs.resolve(path)
	if err != nil {
		return nil, err
	}
	if ip.IsDir() {
		return nil, fmt.Errorf("%s: %w", path, common.ErrIsDir)
	}
	return ip, nil
}

// checkAbsent fails with ErrExist if dip already has an entry called name
func (fs *Fs) checkAbsent(dip *inode.Inode, name string) error {
	if name == "" {
		return fmt.Errorf("/: %w", common.ErrExist)
	}
	_, err := fs.dirs.Find(dip, name)
	if err == nil {
		return fmt.Errorf("%q: %w", name, common.ErrExist)
	}
	if !errors.Is(err, common.ErrNotFound) {
		return err
	}
	return nil
}

// undo releases a half-built inode after a failed Mkdir or Create. Its own
// failure leaks the inode; it is logged and the original error stands.
func (fs *Fs) undo(ip *inode.Inode) {
	if err := fs.release(ip); err != nil {
		util.DPrintf(0, "leaked inode %d: %v\n", ip.Inum, err)
	}
}

func (fs *Fs) freeInum(inum uint64) {
	if err := fs.ialloc.FreeNum(inum); err != nil {
		util.DPrintf(0, "leaked inode %d: %v\n", inum, err)
	}
}

// release frees the blocks and the inode number of ip
func (fs *Fs) release(ip *inode.Inode) error {
	if err := fs.files.Free(ip); err != nil {
		return err
	}
	ip.Valid = false
	ip.SetLink(0)
	if err := fs.inodes.WriteInode(ip); err != nil {
		return err
	}
	return fs.ialloc.FreeNum(uint64(ip.Inum))
}

func (fs *Fs) GetAttr(path string) (Attr, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	ip, err := fs.resolve(path)
	if err != nil {
		return Attr{}, err
	}
	return mkAttr(ip), nil
}

func (fs *Fs) Lookup(path string) (common.Inum, Attr, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	ip, err := fs.resolve(path)
	if err != nil {
		return 0, Attr{}, err
	}
	return ip.Inum, mkAttr(ip), nil
}

func (fs *Fs) OpenDir(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	ip, err := fs.resolve(path)
	if err != nil {
		return err
	}
	if !ip.IsDir() {
		return fmt.Errorf("%s: %w", path, common.ErrNotDir)
	}
	return nil
}

// ReadDir lists path, "." and ".." included
func (fs *Fs) ReadDir(path string) ([]DirEntry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	dip, err := fs.resolve(path)
	if err != nil {
		return nil, err
	}
	ents, err := fs.dirs.List(dip)
	if err != nil {
		return nil, err
	}
	var res []DirEntry
	for _, de := range ents {
		ip, err := fs.inodes.ReadInode(de.Inum)
		if err != nil {
			return nil, err
		}
		res = append(res, DirEntry{Name: de.Name, Attr: mkAttr(ip)})
	}
	return res, nil
}

// Mkdir creates directory path with permission bits mode.
//
// Failures before the entry is added release what was allocated. Once the
// entry is in the parent nothing is rolled back: if raising the parent's
// link count then fails, the directory exists but the error is returned.
func (fs *Fs) Mkdir(path string, mode uint32) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	dip, name, err := fs.parent(path)
	if err != nil {
		return err
	}
	if err := fs.checkAbsent(dip, name); err != nil {
		return err
	}
	inum, err := fs.ialloc.AllocNum()
	if err != nil {
		return err
	}
	ip := inode.MkInode(common.Inum(inum), common.NF3DIR,
		unix.S_IFDIR|uint64(mode&07777), time.Now())
	if err := fs.dirs.InitDir(ip, dip.Inum); err != nil {
		fs.freeInum(inum)
		return err
	}
	if err := fs.dirs.Add(dip, ip.Inum, name); err != nil {
		fs.undo(ip)
		return err
	}
	dip.SetLink(dip.Link + 1)
	if err := fs.inodes.WriteInode(dip); err != nil {
		return err
	}
	util.DPrintf(1, "mkdir %s -> %d\n", path, ip.Inum)
	return nil
}

// Rmdir removes the empty directory path
func (fs *Fs) Rmdir(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	dip, name, err := fs.parent(path)
	if err != nil {
		return err
	}
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("rmdir %s: %w", path, common.ErrInvalid)
	}
	de, err := fs.dirs.Find(dip, name)
	if err != nil {
		return err
	}
	ip, err := fs.inodes.ReadInode(de.Inum)
	if err != nil {
		return err
	}
	if !ip.IsDir() {
		return fmt.Errorf("rmdir %s: %w", path, common.ErrNotDir)
	}
	empty, err := fs.dirs.IsEmpty(ip)
	if err != nil {
		return err
	}
	if !empty {
		return fmt.Errorf("rmdir %s: %w", path, common.ErrNotEmpty)
	}
	if err := fs.dirs.Remove(dip, name); err != nil {
		return err
	}
	if err := fs.release(ip); err != nil {
		return err
	}
	dip.SetLink(dip.Link - 1)
	util.DPrintf(1, "rmdir %s (%d)\n", path, ip.Inum)
	return fs.inodes.WriteInode(dip)
}

// Create makes an empty regular file at path
func (fs *Fs) Create(path string, mode uint32) (Attr, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	dip, name, err := fs.parent(path)
	if err != nil {
		return Attr{}, err
	}
	if err := fs.checkAbsent(dip, name); err != nil {
		return Attr{}, err
	}
	inum, err := fs.ialloc.AllocNum()
	if err != nil {
		return Attr{}, err
	}
	ip := inode.MkInode(common.Inum(inum), common.NF3REG,
		unix.S_IFREG|uint64(mode&07777), time.Now())
	if err := fs.inodes.WriteInode(ip); err != nil {
		fs.freeInum(inum)
		return Attr{}, err
	}
	if err := fs.dirs.Add(dip, ip.Inum, name); err != nil {
		fs.undo(ip)
		return Attr{}, err
	}
	util.DPrintf(1, "create %s -> %d\n", path, ip.Inum)
	return mkAttr(ip), nil
}

func (fs *Fs) Open(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_, err := fs.regular(path)
	return err
}

func (fs *Fs) Read(path string, off uint64, n uint64) ([]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	ip, err := fs.regular(path)
	if err != nil {
		return nil, err
	}
	return fs.files.Read(ip, off, n)
}

// Write returns the number of bytes written, which is short only together
// with an error.
func (fs *Fs) Write(path string, off uint64, data []byte) (uint64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	ip, err := fs.regular(path)
	if err != nil {
		return 0, err
	}
	return fs.files.Write(ip, off, data)
}

func (fs *Fs) Truncate(path string, size uint64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	ip, err := fs.regular(path)
	if err != nil {
		return err
	}
	return fs.files.Truncate(ip, size)
}

// Unlink removes the regular file path and frees its storage
func (fs *Fs) Unlink(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	dip, name, err := fs.parent(path)
	if err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("unlink /: %w", common.ErrIsDir)
	}
	de, err := fs.dirs.Find(dip, name)
	if err != nil {
		return err
	}
	ip, err := fs.inodes.ReadInode(de.Inum)
	if err != nil {
		return err
	}
	if ip.IsDir() {
		return fmt.Errorf("unlink %s: %w", path, common.ErrIsDir)
	}
	if err := fs.dirs.Remove(dip, name); err != nil {
		return err
	}
	util.DPrintf(1, "unlink %s (%d)\n", path, ip.Inum)
	return fs.release(ip)
}

func (fs *Fs) Utimens(path string, atime time.Time, mtime time.Time) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	ip, err := fs.resolve(path)
	if err != nil {
		return err
	}
	ip.Stat.Atime = uint64(atime.UnixNano())
	ip.Stat.Mtime = uint64(mtime.UnixNano())
	ip.Stat.Ctime = uint64(time.Now().UnixNano())
	return fs.inodes.WriteInode(ip)
}

func (fs *Fs) StatFS() (StatFS, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	bfree, err := fs.balloc.NumFree()
	if err != nil {
		return StatFS{}, err
	}
	ifree, err := fs.ialloc.NumFree()
	if err != nil {
		return StatFS{}, err
	}
	return StatFS{
		BlockSize:  disk.BlockSize,
		Blocks:     fs.sb.MaxBlocks,
		BlocksFree: bfree,
		Inodes:     fs.sb.MaxInodes,
		InodesFree: ifree,
		NameMax:    common.MAXNAMELEN,
		VolumeUUID: fs.sb.UUID,
	}, nil
}
