package fs

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sys/unix"

	"github.com/mit-pdos/rufs/common"
	"github.com/mit-pdos/rufs/disk"
)

var testParams = Params{MaxInodes: 64, MaxBlocks: 256}

type FsSuite struct {
	suite.Suite
	d  disk.Disk
	fs *Fs
}

func (suite *FsSuite) SetupTest() {
	suite.d = disk.NewMemDisk(testParams.MaxBlocks)
	fs, err := Format(suite.d, testParams)
	suite.Require().NoError(err)
	suite.fs = fs
}

func TestFs(t *testing.T) {
	suite.Run(t, new(FsSuite))
}

func (suite *FsSuite) statfs() StatFS {
	st, err := suite.fs.StatFS()
	suite.Require().NoError(err)
	return st
}

func (suite *FsSuite) names(path string) []string {
	ents, err := suite.fs.ReadDir(path)
	suite.Require().NoError(err)
	var names []string
	for _, e := range ents {
		names = append(names, e.Name)
	}
	return names
}

func (suite *FsSuite) errIs(err error, target error) {
	suite.Truef(errors.Is(err, target), "expected %v, got %v", target, err)
}

func (suite *FsSuite) TestFormat() {
	st := suite.statfs()
	sb := suite.fs.Super()
	suite.Equal(disk.BlockSize, st.BlockSize)
	suite.Equal(testParams.MaxBlocks, st.Blocks)
	suite.Equal(testParams.MaxBlocks-sb.DataStart()-1, st.BlocksFree)
	suite.Equal(testParams.MaxInodes, st.Inodes)
	suite.Equal(testParams.MaxInodes-1, st.InodesFree)
	suite.Equal(common.MAXNAMELEN, st.NameMax)
	suite.Equal(sb.UUID, st.VolumeUUID)

	for bn := uint64(0); bn < sb.DataStart(); bn++ {
		used, err := suite.fs.balloc.IsUsed(bn)
		suite.NoError(err)
		suite.True(used, "metadata block %d", bn)
	}
	used, err := suite.fs.ialloc.IsUsed(uint64(common.ROOTINUM))
	suite.NoError(err)
	suite.True(used)

	attr, err := suite.fs.GetAttr("/")
	suite.NoError(err)
	suite.True(attr.IsDir())
	suite.Equal(uint32(unix.S_IFDIR|0755), attr.Mode)
	suite.Equal(uint64(2), attr.Nlink)
	suite.Equal(disk.BlockSize, attr.Size)
	suite.Equal([]string{".", ".."}, suite.names("/"))
}

func (suite *FsSuite) TestFormatTooBig() {
	_, err := Format(disk.NewMemDisk(100), testParams)
	suite.errIs(err, common.ErrInvalid)
}

func (suite *FsSuite) TestMountDevice() {
	suite.Require().NoError(suite.fs.Mkdir("/a", 0755))
	fs, err := MountDevice(suite.d)
	suite.Require().NoError(err)
	suite.Equal(suite.fs.Super().UUID, fs.Super().UUID)
	suite.Equal([]string{".", "..", "a"}, suite.names("/"))
	ino, attr, err := fs.Lookup("/a")
	suite.NoError(err)
	suite.Equal(common.Inum(1), ino)
	suite.True(attr.IsDir())
}

func (suite *FsSuite) TestMountBadMagic() {
	_, err := MountDevice(disk.NewMemDisk(16))
	suite.errIs(err, common.ErrCorrupt)
}

func (suite *FsSuite) TestMkdir() {
	before := suite.statfs()
	suite.NoError(suite.fs.Mkdir("/a", 0700))
	after := suite.statfs()
	suite.Equal(before.InodesFree-1, after.InodesFree)
	suite.Equal(before.BlocksFree-1, after.BlocksFree)

	attr, err := suite.fs.GetAttr("/a")
	suite.NoError(err)
	suite.Equal(uint32(unix.S_IFDIR|0700), attr.Mode)
	suite.Equal(uint64(2), attr.Nlink)
	root, err := suite.fs.GetAttr("/")
	suite.NoError(err)
	suite.Equal(uint64(3), root.Nlink)

	suite.NoError(suite.fs.Mkdir("/a/b", 0755))
	suite.Equal([]string{".", "..", "b"}, suite.names("/a"))
	ents, err := suite.fs.ReadDir("/a/b")
	suite.NoError(err)
	suite.Equal("..", ents[1].Name)
	suite.Equal(attr.Ino, ents[1].Attr.Ino)

	suite.errIs(suite.fs.Mkdir("/a", 0755), common.ErrExist)
	suite.errIs(suite.fs.Mkdir("/", 0755), common.ErrExist)
	suite.errIs(suite.fs.Mkdir("/a/.", 0755), common.ErrExist)
	suite.errIs(suite.fs.Mkdir("/x/y", 0755), common.ErrNotFound)
	suite.errIs(suite.fs.OpenDir("/x"), common.ErrNotFound)
	suite.NoError(suite.fs.OpenDir("/a/b"))
}

func (suite *FsSuite) TestNotDir() {
	_, err := suite.fs.Create("/f", 0644)
	suite.Require().NoError(err)
	suite.errIs(suite.fs.Mkdir("/f/y", 0755), common.ErrNotDir)
	_, err = suite.fs.GetAttr("/f/y")
	suite.errIs(err, common.ErrNotDir)
	suite.errIs(suite.fs.OpenDir("/f"), common.ErrNotDir)
	_, err = suite.fs.ReadDir("/f")
	suite.errIs(err, common.ErrNotDir)
}

func (suite *FsSuite) TestRmdir() {
	before := suite.statfs()
	suite.Require().NoError(suite.fs.Mkdir("/a", 0755))
	_, err := suite.fs.Create("/a/f", 0644)
	suite.Require().NoError(err)

	suite.errIs(suite.fs.Rmdir("/a"), common.ErrNotEmpty)
	suite.errIs(suite.fs.Rmdir("/a/f"), common.ErrNotDir)
	suite.errIs(suite.fs.Rmdir("/"), common.ErrInvalid)
	suite.errIs(suite.fs.Rmdir("/a/."), common.ErrInvalid)
	suite.errIs(suite.fs.Rmdir("/a/.."), common.ErrInvalid)
	suite.errIs(suite.fs.Rmdir("/b"), common.ErrNotFound)

	suite.NoError(suite.fs.Unlink("/a/f"))
	suite.NoError(suite.fs.Rmdir("/a"))
	_, err = suite.fs.GetAttr("/a")
	suite.errIs(err, common.ErrNotFound)
	root, err := suite.fs.GetAttr("/")
	suite.NoError(err)
	suite.Equal(uint64(2), root.Nlink)
	after := suite.statfs()
	suite.Equal(before.InodesFree, after.InodesFree)
	suite.Equal(before.BlocksFree, after.BlocksFree)
	suite.Equal([]string{".", ".."}, suite.names("/"))
}

func (suite *FsSuite) TestCreateReadWrite() {
	attr, err := suite.fs.Create("/f", 0644)
	suite.Require().NoError(err)
	suite.Equal(uint32(unix.S_IFREG|0644), attr.Mode)
	suite.Equal(uint64(1), attr.Nlink)
	suite.Equal(uint64(0), attr.Size)

	n, err := suite.fs.Write("/f", 0, []byte("hello"))
	suite.NoError(err)
	suite.Equal(uint64(5), n)
	data, err := suite.fs.Read("/f", 0, 100)
	suite.NoError(err)
	suite.Equal([]byte("hello"), data)
	attr, err = suite.fs.GetAttr("/f")
	suite.NoError(err)
	suite.Equal(uint64(5), attr.Size)
	suite.Equal(uint64(1), attr.Blocks)

	suite.NoError(suite.fs.Open("/f"))
	suite.errIs(suite.fs.Open("/"), common.ErrIsDir)
	suite.errIs(suite.fs.Open("/g"), common.ErrNotFound)
	_, err = suite.fs.Read("/", 0, 1)
	suite.errIs(err, common.ErrIsDir)
	_, err = suite.fs.Write("/", 0, []byte("x"))
	suite.errIs(err, common.ErrIsDir)
	_, err = suite.fs.Create("/f", 0644)
	suite.errIs(err, common.ErrExist)
}

func (suite *FsSuite) TestWriteTooBig() {
	_, err := suite.fs.Create("/f", 0644)
	suite.Require().NoError(err)
	_, err = suite.fs.Write("/f", common.MAXFILESZ, []byte("x"))
	suite.errIs(err, common.ErrNoSpace)
	suite.Equal(unix.ENOSPC, Errno(err))
	attr, err := suite.fs.GetAttr("/f")
	suite.NoError(err)
	suite.Equal(uint64(0), attr.Size)
}

func (suite *FsSuite) TestUnlink() {
	before := suite.statfs()
	_, err := suite.fs.Create("/f", 0644)
	suite.Require().NoError(err)
	_, err = suite.fs.Write("/f", 0, make([]byte, 3*disk.BlockSize))
	suite.Require().NoError(err)
	suite.Equal(before.BlocksFree-3, suite.statfs().BlocksFree)

	suite.NoError(suite.fs.Unlink("/f"))
	after := suite.statfs()
	suite.Equal(before.InodesFree, after.InodesFree)
	suite.Equal(before.BlocksFree, after.BlocksFree)
	_, err = suite.fs.GetAttr("/f")
	suite.errIs(err, common.ErrNotFound)

	suite.Require().NoError(suite.fs.Mkdir("/d", 0755))
	suite.errIs(suite.fs.Unlink("/d"), common.ErrIsDir)
	suite.errIs(suite.fs.Unlink("/"), common.ErrIsDir)
	suite.errIs(suite.fs.Unlink("/f"), common.ErrNotFound)
}

func (suite *FsSuite) TestInodeReuse() {
	attr, err := suite.fs.Create("/f", 0644)
	suite.Require().NoError(err)
	suite.Require().NoError(suite.fs.Unlink("/f"))
	attr2, err := suite.fs.Create("/g", 0644)
	suite.Require().NoError(err)
	suite.Equal(attr.Ino, attr2.Ino)
	suite.Equal(uint64(0), attr2.Size)
}

func (suite *FsSuite) TestTruncate() {
	_, err := suite.fs.Create("/f", 0644)
	suite.Require().NoError(err)
	_, err = suite.fs.Write("/f", 0, []byte("hello world"))
	suite.Require().NoError(err)

	suite.NoError(suite.fs.Truncate("/f", 5))
	suite.NoError(suite.fs.Truncate("/f", 11))
	data, err := suite.fs.Read("/f", 0, 11)
	suite.NoError(err)
	suite.Equal(append([]byte("hello"), make([]byte, 6)...), data)
	suite.errIs(suite.fs.Truncate("/", 0), common.ErrIsDir)
}

func (suite *FsSuite) TestUtimens() {
	_, err := suite.fs.Create("/f", 0644)
	suite.Require().NoError(err)
	at := time.Unix(1000, 5)
	mt := time.Unix(2000, 7)
	suite.NoError(suite.fs.Utimens("/f", at, mt))
	attr, err := suite.fs.GetAttr("/f")
	suite.NoError(err)
	suite.True(at.Equal(attr.Atime))
	suite.True(mt.Equal(attr.Mtime))
}

func (suite *FsSuite) TestBadNames() {
	_, err := suite.fs.GetAttr("f")
	suite.errIs(err, common.ErrInvalid)
	_, err = suite.fs.Create("/"+strings.Repeat("x", int(common.MAXNAMELEN)+1), 0644)
	suite.errIs(err, common.ErrNameTooLong)
	_, err = suite.fs.Create("/"+strings.Repeat("x", int(common.MAXNAMELEN)), 0644)
	suite.NoError(err)
}

func (suite *FsSuite) TestInodesExhausted() {
	for i := uint64(1); i < testParams.MaxInodes; i++ {
		_, err := suite.fs.Create(fmt.Sprintf("/f%d", i), 0644)
		suite.Require().NoError(err)
	}
	_, err := suite.fs.Create("/last", 0644)
	suite.errIs(err, common.ErrNoSpace)
	suite.Equal(uint64(0), suite.statfs().InodesFree)
	_, err = suite.fs.GetAttr("/last")
	suite.errIs(err, common.ErrNotFound)
	suite.Len(suite.names("/"), int(testParams.MaxInodes)+1)
}

func (suite *FsSuite) TestConcurrentCreate() {
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := fmt.Sprintf("/f%d", i)
			_, err := suite.fs.Create(path, 0644)
			if assert.NoError(suite.T(), err) {
				_, err = suite.fs.Write(path, 0, []byte(path))
				assert.NoError(suite.T(), err)
			}
		}(i)
	}
	wg.Wait()
	for i := 0; i < 8; i++ {
		path := fmt.Sprintf("/f%d", i)
		data, err := suite.fs.Read(path, 0, 10)
		suite.NoError(err)
		suite.Equal([]byte(path), data)
	}
}

func TestPersist(t *testing.T) {
	tmp, err := ioutil.TempDir("", "rufs-fs")
	require.NoError(t, err)
	defer os.RemoveAll(tmp)
	path := filepath.Join(tmp, "image")

	fs, err := Mount(path, testParams)
	require.NoError(t, err)
	id := fs.Super().UUID
	require.NoError(t, fs.Mkdir("/d", 0755))
	_, err = fs.Create("/d/f", 0644)
	require.NoError(t, err)
	_, err = fs.Write("/d/f", 10, []byte("persist"))
	require.NoError(t, err)
	require.NoError(t, fs.Unmount())

	fs, err = Mount(path, DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, id, fs.Super().UUID)
	assert.Equal(t, testParams.MaxBlocks, fs.Super().MaxBlocks)
	data, err := fs.Read("/d/f", 0, 100)
	assert.NoError(t, err)
	assert.Equal(t, append(make([]byte, 10), "persist"...), data)
	require.NoError(t, fs.Unmount())
}

func TestErrno(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(unix.Errno(0), Errno(nil))
	assert.Equal(unix.ENOENT, Errno(fmt.Errorf("x: %w", common.ErrNotFound)))
	assert.Equal(unix.ENOTDIR, Errno(common.ErrNotDir))
	assert.Equal(unix.EISDIR, Errno(common.ErrIsDir))
	assert.Equal(unix.EEXIST, Errno(common.ErrExist))
	assert.Equal(unix.ENOTEMPTY, Errno(common.ErrNotEmpty))
	assert.Equal(unix.ENOSPC, Errno(common.ErrNoSpace))
	assert.Equal(unix.ENAMETOOLONG, Errno(common.ErrNameTooLong))
	assert.Equal(unix.EINVAL, Errno(common.ErrInvalid))
	assert.Equal(unix.ERANGE, Errno(common.ErrOutOfRange))
	assert.Equal(unix.EIO, Errno(common.ErrIO))
	assert.Equal(unix.EIO, Errno(common.ErrCorrupt))
	assert.Equal(unix.EIO, Errno(errors.New("other")))
}

func TestFullParentReleases(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)
	fs, err := Format(disk.NewMemDisk(1024), Params{MaxInodes: 512, MaxBlocks: 1024})
	require.NoError(err)
	capacity := common.NDIRECT*common.DIRENTBLK - 2
	for i := uint64(0); i < capacity; i++ {
		_, err := fs.Create(fmt.Sprintf("/f%d", i), 0644)
		require.NoError(err)
	}
	before, err := fs.StatFS()
	require.NoError(err)

	err = fs.Mkdir("/d", 0755)
	assert.True(errors.Is(err, common.ErrNoSpace))
	_, err = fs.Create("/g", 0644)
	assert.True(errors.Is(err, common.ErrNoSpace))

	after, err := fs.StatFS()
	require.NoError(err)
	assert.Equal(before.InodesFree, after.InodesFree)
	assert.Equal(before.BlocksFree, after.BlocksFree)
	root, err := fs.GetAttr("/")
	require.NoError(err)
	assert.Equal(uint64(2), root.Nlink)
}
