// Package overlay performs the overlay half of mount routing: one root
// OverlayFS mount per partition, followed by its contributing child
// mounts, with a back-end ladder that falls back through older kernel
// mount APIs.
package overlay

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// statfs is swapped out in tests.
var statfs = unix.Statfs

type overlayDir uint8

const (
	_ overlayDir = 1 << iota
	lowerDir
	upperDir
)

type incompatibleFS struct {
	name string
	dir  overlayDir
}

const (
	nfsMagic    int64 = 0x6969
	lustreMagic int64 = 0x0BD00BD0 //nolint:misspell
	gpfsMagic   int64 = 0x47504653
)

var incompatible = map[int64]incompatibleFS{
	nfsMagic:    {name: "NFS", dir: upperDir},
	lustreMagic: {name: "LUSTRE", dir: lowerDir | upperDir},
	gpfsMagic:   {name: "GPFS", dir: lowerDir | upperDir},
}

// errIncompatibleFS reports a lower or upper directory candidate living on
// a filesystem OverlayFS cannot layer over.
type errIncompatibleFS struct {
	path string
	name string
	dir  overlayDir
}

func (e *errIncompatibleFS) Error() string {
	which := "lower"
	if e.dir == upperDir {
		which = "upper"
	}
	return fmt.Sprintf("%s is located on a %s filesystem incompatible as overlay %s directory", e.path, e.name, which)
}

func check(path string, d overlayDir) error {
	st := &unix.Statfs_t{}
	if err := statfs(path, st); err != nil {
		return fmt.Errorf("could not stat %s: %w", path, err)
	}
	fs, ok := incompatible[int64(st.Type)]
	if !ok || fs.dir&d == 0 {
		return nil
	}
	return &errIncompatibleFS{path: path, name: fs.name, dir: d}
}

// CheckLower reports whether path's filesystem can serve as an overlay
// lower directory.
func CheckLower(path string) error { return check(path, lowerDir) }

// CheckUpper reports whether path's filesystem can serve as an overlay
// upper directory.
func CheckUpper(path string) error { return check(path, upperDir) }
