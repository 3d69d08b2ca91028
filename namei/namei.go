// Package namei translates slash-separated paths into inodes.
package namei

import (
	"fmt"
	"strings"

	"github.com/mit-pdos/rufs/common"
	"github.com/mit-pdos/rufs/dir"
	"github.com/mit-pdos/rufs/inode"
)

// Components splits path on "/" and drops empty components
func Components(path string) []string {
	var names []string
	for _, n := range strings.Split(path, "/") {
		if n != "" {
			names = append(names, n)
		}
	}
	return names
}

// Split separates the last component of path from its parent directory.
// The root has no last component: Split("/") returns ("/", "").
func Split(path string) (string, string) {
	names := Components(path)
	if len(names) == 0 {
		return "/", ""
	}
	return "/" + strings.Join(names[:len(names)-1], "/"), names[len(names)-1]
}

// Resolve walks path starting at directory start and returns the inode it
// names. The walk stops at the first missing component (ErrNotFound) or at a
// non-directory that still has components after it (ErrNotDir).
func Resolve(inodes *inode.Store, dirs *dir.Manager, path string, start common.Inum) (*inode.Inode, error) {
	ip, err := inodes.ReadInode(start)
	if err != nil {
		return nil, err
	}
	names := Components(path)
	for i, name := range names {
		if !ip.IsDir() {
			return nil, fmt.Errorf("%s: %q: %w", path, strings.Join(names[:i], "/"), common.ErrNotDir)
		}
		de, err := dirs.Find(ip, name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		ip, err = inodes.ReadInode(de.Inum)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return ip, nil
}
