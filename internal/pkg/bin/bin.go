// Package bin locates the external binaries the engine shells out to
// (mkfs.ext4, dd, truncate, insmod/rmmod for the optional nuke hook):
// a single FindBin choke point instead of exec.LookPath scattered
// across callers.
package bin

import (
	"fmt"
	"os/exec"
)

var known = map[string]bool{
	"mkfs.ext4": true,
	"dd":        true,
	"truncate":  true,
	"mount":     true,
	"umount":    true,
	"insmod":    true,
	"rmmod":     true,
	"uname":     true,
	"getprop":   true,
}

// FindBin returns the full path to the named binary, or an error if it is
// not a binary this package knows to look for, or it isn't on PATH.
func FindBin(name string) (string, error) {
	if !known[name] {
		return "", fmt.Errorf("unknown executable name %q", name)
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found on PATH: %w", name, err)
	}
	return path, nil
}
