package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/mit-pdos/rufs/common"
	"github.com/mit-pdos/rufs/disk"
	"github.com/mit-pdos/rufs/fs"
)

type command struct {
	nargs int
	run   func(rfs *fs.Fs, args []string) error
}

var commands = map[string]command{
	"mkfs":     {0, statfs},
	"statfs":   {0, statfs},
	"stat":     {1, stat},
	"ls":       {1, ls},
	"mkdir":    {1, mkdir},
	"rmdir":    {1, rmdir},
	"touch":    {1, touch},
	"put":      {1, put},
	"cat":      {1, cat},
	"rm":       {1, rm},
	"truncate": {2, truncate},
}

func statfs(rfs *fs.Fs, args []string) error {
	st, err := rfs.StatFS()
	if err != nil {
		return err
	}
	fmt.Printf("volume %v\n", st.VolumeUUID)
	fmt.Printf("block size %d, name max %d\n", st.BlockSize, st.NameMax)
	fmt.Printf("blocks %d free %d\n", st.Blocks, st.BlocksFree)
	fmt.Printf("inodes %d free %d\n", st.Inodes, st.InodesFree)
	return nil
}

func fmtAttr(name string, a fs.Attr) string {
	return fmt.Sprintf("%d\t%v\t%d\t%d\t%s\t%s",
		a.Ino, os.FileMode(a.Mode&0777)|modeType(a), a.Nlink, a.Size,
		a.Mtime.Format(time.RFC3339), name)
}

func modeType(a fs.Attr) os.FileMode {
	if a.IsDir() {
		return os.ModeDir
	}
	return 0
}

func stat(rfs *fs.Fs, args []string) error {
	a, err := rfs.GetAttr(args[0])
	if err != nil {
		return err
	}
	fmt.Println(fmtAttr(args[0], a))
	return nil
}

func ls(rfs *fs.Fs, args []string) error {
	ents, err := rfs.ReadDir(args[0])
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 1, ' ', 0)
	for _, e := range ents {
		fmt.Fprintln(w, fmtAttr(e.Name, e.Attr))
	}
	return w.Flush()
}

func mkdir(rfs *fs.Fs, args []string) error {
	return rfs.Mkdir(args[0], 0755)
}

func rmdir(rfs *fs.Fs, args []string) error {
	return rfs.Rmdir(args[0])
}

func touch(rfs *fs.Fs, args []string) error {
	_, err := rfs.Create(args[0], 0644)
	if errors.Is(err, common.ErrExist) {
		now := time.Now()
		return rfs.Utimens(args[0], now, now)
	}
	return err
}

// put replaces the contents of a file with stdin
func put(rfs *fs.Fs, args []string) error {
	_, err := rfs.Create(args[0], 0644)
	if err != nil && !errors.Is(err, common.ErrExist) {
		return err
	}
	if err := rfs.Truncate(args[0], 0); err != nil {
		return err
	}
	data := make([]byte, disk.BlockSize)
	var off uint64
	for {
		n, rerr := io.ReadFull(os.Stdin, data)
		if n > 0 {
			if _, err := rfs.Write(args[0], off, data[:n]); err != nil {
				return err
			}
			off += uint64(n)
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

func cat(rfs *fs.Fs, args []string) error {
	var off uint64
	for {
		data, err := rfs.Read(args[0], off, disk.BlockSize)
		if err != nil {
			return err
		}
		if len(data) == 0 {
			return nil
		}
		if _, err := os.Stdout.Write(data); err != nil {
			return err
		}
		off += uint64(len(data))
	}
}

func rm(rfs *fs.Fs, args []string) error {
	return rfs.Unlink(args[0])
}

func truncate(rfs *fs.Fs, args []string) error {
	size, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("size %q: %w", args[1], common.ErrInvalid)
	}
	return rfs.Truncate(args[0], size)
}
