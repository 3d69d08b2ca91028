package super

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/rufs/addr"
	"github.com/mit-pdos/rufs/common"
	"github.com/mit-pdos/rufs/disk"
)

func TestLayout(t *testing.T) {
	assert := assert.New(t)
	fs, err := MkFsSuper(DefaultMaxInodes, DefaultMaxBlocks)
	require.NoError(t, err)

	assert.Equal(uint64(64), fs.NInodeBlk())
	assert.Equal(common.Bnum(1), fs.BitmapInodeStart())
	assert.Equal(common.Bnum(2), fs.BitmapBlockStart())
	assert.Equal(common.Bnum(3), fs.InodeStart())
	assert.Equal(common.Bnum(67), fs.DataStart())
	assert.Equal(common.Bnum(16384), fs.MaxBnum())
	assert.Equal(DefaultMaxInodes, fs.NInode())
}

func TestInum2Addr(t *testing.T) {
	assert := assert.New(t)
	fs, err := MkFsSuper(64, 128)
	require.NoError(t, err)

	assert.Equal(addr.MkAddr(3, 0), fs.Inum2Addr(0))
	assert.Equal(addr.MkAddr(3, 15*256), fs.Inum2Addr(15))
	assert.Equal(addr.MkAddr(4, 0), fs.Inum2Addr(16))
	assert.Equal(addr.MkAddr(6, 15*256), fs.Inum2Addr(63))
	assert.Equal(common.Bnum(7), fs.DataStart())
}

func TestEncodeDecode(t *testing.T) {
	assert := assert.New(t)
	fs, err := MkFsSuper(100, 500)
	require.NoError(t, err)

	blk := fs.Encode()
	assert.Equal(disk.BlockSize, uint64(len(blk)))
	fs2, err := Decode(blk)
	require.NoError(t, err)
	assert.Equal(fs, fs2)
}

func TestDecodeBadMagic(t *testing.T) {
	_, err := Decode(make(disk.Block, disk.BlockSize))
	assert.True(t, errors.Is(err, common.ErrCorrupt))
}

func TestDecodeBadGeometry(t *testing.T) {
	fs, err := MkFsSuper(100, 500)
	require.NoError(t, err)
	fs.DStart = 4
	_, err = Decode(fs.Encode())
	assert.True(t, errors.Is(err, common.ErrCorrupt))
}

func TestBadParams(t *testing.T) {
	assert := assert.New(t)
	_, err := MkFsSuper(0, 100)
	assert.True(errors.Is(err, common.ErrInvalid), "no inodes")
	_, err = MkFsSuper(1024, 50)
	assert.True(errors.Is(err, common.ErrInvalid), "no room for data")
	_, err = MkFsSuper(1024, common.NBITBLOCK+1)
	assert.True(errors.Is(err, common.ErrInvalid), "too many blocks for the bitmap")
}
