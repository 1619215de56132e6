// Package fs provides small stat-based predicates used throughout the
// engine.
package fs

import "os"

// IsDir returns true if path exists and is a directory.
func IsDir(path string) bool {
	fi, err := os.Lstat(path)
	if err != nil {
		return false
	}
	return fi.IsDir()
}

// IsFile returns true if path exists and is a regular file.
func IsFile(path string) bool {
	fi, err := os.Lstat(path)
	if err != nil {
		return false
	}
	return fi.Mode().IsRegular()
}

// IsLink returns true if path exists and is a symlink.
func IsLink(path string) bool {
	fi, err := os.Lstat(path)
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeSymlink != 0
}

// Exists returns true if path exists (following symlinks).
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// HasContent reports whether dir (or any of its descendants) contains at
// least one non-directory entry — used by the synchronizer to skip modules
// whose partition subdirectory is present but holds only empty directories.
func HasContent(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.IsDir() {
			if HasContent(dir + "/" + e.Name()) {
				return true
			}
			continue
		}
		return true
	}
	return false
}
