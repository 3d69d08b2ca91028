package fs

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/mit-pdos/rufs/common"
)

var errnos = []struct {
	err   error
	errno unix.Errno
}{
	{common.ErrNotFound, unix.ENOENT},
	{common.ErrNotDir, unix.ENOTDIR},
	{common.ErrIsDir, unix.EISDIR},
	{common.ErrExist, unix.EEXIST},
	{common.ErrNotEmpty, unix.ENOTEMPTY},
	{common.ErrNoSpace, unix.ENOSPC},
	{common.ErrNameTooLong, unix.ENAMETOOLONG},
	{common.ErrInvalid, unix.EINVAL},
	{common.ErrOutOfRange, unix.ERANGE},
}

// Errno translates an error from Fs into the errno a host returns. nil
// maps to 0 and anything unrecognized to EIO.
func Errno(err error) unix.Errno {
	if err == nil {
		return 0
	}
	for _, e := range errnos {
		if errors.Is(err, e.err) {
			return e.errno
		}
	}
	return unix.EIO
}
