package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/timtadh/getopt"

	"github.com/mit-pdos/rufs/common"
	"github.com/mit-pdos/rufs/disk"
	"github.com/mit-pdos/rufs/fs"
	"github.com/mit-pdos/rufs/util"
)

var ErrorCodes map[string]int = map[string]int{
	"usage":   0,
	"opts":    2,
	"badint":  3,
	"noimage": 4,
	"badcmd":  5,
}

var UsageMessage string = "rufs [-v level] -d image <command> [args]"
var ExtendedMessage string = `
rufs -- inspect and modify a rufs image

The image is created and formatted on first use.

Options
  -h, --help                view this message
  -v, --verbose=<level>     debug print level (default 0)
  -d, --disk=<path>         image file (required)
  --inodes=<int>            inodes in a new image (default 1024)
  --blocks=<int>            blocks in a new image (default 16384)

Commands
  mkfs                      (re)create the image
  statfs                    show usage counts
  stat PATH                 show attributes
  ls PATH                   list a directory
  mkdir PATH
  rmdir PATH
  touch PATH                create an empty file if missing
  put PATH                  copy stdin into a file
  cat PATH                  copy a file to stdout
  rm PATH
  truncate PATH SIZE

A failed command exits with the errno of the failure.
`

func Usage(code int) {
	fmt.Fprintln(os.Stderr, UsageMessage)
	if code == 0 {
		fmt.Fprintln(os.Stdout, ExtendedMessage)
		code = ErrorCodes["usage"]
	} else {
		fmt.Fprintln(os.Stderr, "Try -h or --help for help")
	}
	os.Exit(code)
}

func ParseUint(str string) uint64 {
	i, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing '%v' expected an int\n", str)
		Usage(ErrorCodes["badint"])
	}
	return i
}

func main() {
	args, optargs, err := getopt.GetOpt(
		os.Args[1:],
		"hv:d:",
		[]string{
			"help", "verbose=", "disk=", "inodes=", "blocks=",
		},
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		Usage(ErrorCodes["opts"])
	}

	image := ""
	params := fs.DefaultParams()
	for _, oa := range optargs {
		switch oa.Opt() {
		case "-h", "--help":
			Usage(0)
		case "-v", "--verbose":
			util.Debug = ParseUint(oa.Arg())
		case "-d", "--disk":
			image = oa.Arg()
		case "--inodes":
			params.MaxInodes = ParseUint(oa.Arg())
		case "--blocks":
			params.MaxBlocks = ParseUint(oa.Arg())
		default:
			fmt.Fprintf(os.Stderr, "Unknown flag '%v'\n", oa.Opt())
			Usage(ErrorCodes["opts"])
		}
	}
	if image == "" {
		fmt.Fprintln(os.Stderr, "no image given")
		Usage(ErrorCodes["noimage"])
	}
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "no command given")
		Usage(ErrorCodes["badcmd"])
	}
	c, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command '%v'\n", args[0])
		Usage(ErrorCodes["badcmd"])
	}
	if len(args)-1 != c.nargs {
		fmt.Fprintf(os.Stderr, "%v takes %d argument(s)\n", args[0], c.nargs)
		Usage(ErrorCodes["badcmd"])
	}

	var rfs *fs.Fs
	if args[0] == "mkfs" {
		rfs, err = mkfs(image, params)
	} else {
		rfs, err = fs.Mount(image, params)
	}
	if err != nil {
		fail(err)
	}
	err = c.run(rfs, args[1:])
	if uerr := rfs.Unmount(); err == nil {
		err = uerr
	}
	if err != nil {
		fail(err)
	}
}

func mkfs(image string, params fs.Params) (*fs.Fs, error) {
	d, err := disk.Init(image, params.MaxBlocks)
	if err != nil {
		return nil, err
	}
	rfs, err := fs.Format(d, params)
	if err != nil {
		d.Close()
		return nil, err
	}
	return rfs, nil
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "rufs: %v\n", err)
	code := int(fs.Errno(err))
	if errors.Is(err, common.ErrCorrupt) {
		fmt.Fprintln(os.Stderr, "rufs: image is not a rufs file system; try mkfs")
	}
	os.Exit(code)
}
