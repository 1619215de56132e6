//go:build linux

package magic

import (
	"os"
	"path/filepath"
	"syscall"

	"github.com/modmount/modmount/internal/pkg/partition"
	"golang.org/x/sys/unix"
)

// Collect builds the merged node tree from every magic-mode module's
// system subtree, then relocates special partitions to the root. It
// returns nil when no module contributes any content.
func Collect(modulePaths []string, extras []string) *Node {
	root := newDirNode("")
	system := newDirNode("system")
	root.Children["system"] = system

	for _, modPath := range modulePaths {
		modSystem := filepath.Join(modPath, "system")
		if !isDir(modSystem) {
			continue
		}
		mergeDir(system, modSystem)
	}

	relocate(root, system, extras)

	if !root.hasContent() {
		return nil
	}
	return root
}

// mergeDir merges the on-disk directory srcDir into dst. On a name
// collision the existing node wins; directories still merge recursively.
func mergeDir(dst *Node, srcDir string) {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return
	}

	for _, e := range entries {
		name := e.Name()
		modPath := filepath.Join(srcDir, name)

		existing, already := dst.Children[name]
		if already {
			if existing.FileType == TypeDirectory {
				existing.Replace = existing.Replace || isReplace(modPath, existing)
				mergeDir(existing, modPath)
			}
			continue
		}

		ft := classify(modPath)
		node := &Node{Name: name, FileType: ft, ModulePath: modPath}

		if ft == TypeDirectory {
			node.Children = map[string]*Node{}
			node.Replace = isReplace(modPath, node)
			dst.Children[name] = node
			mergeDir(node, modPath)
			continue
		}

		dst.Children[name] = node
	}
}

// isReplace implements the replace predicate: xattr trusted.overlay.opaque
// == "y", or presence of a `.replace` child.
func isReplace(dirPath string, node *Node) bool {
	buf := make([]byte, 8)
	if n, err := unix.Lgetxattr(dirPath, "trusted.overlay.opaque", buf); err == nil && n == 1 && buf[0] == 'y' {
		return true
	}
	if _, err := os.Lstat(filepath.Join(dirPath, ".replace")); err == nil {
		return true
	}
	return node.Replace
}

// classify determines a filesystem entry's FileType: Directory,
// RegularFile, Symlink, or Whiteout for a char device with rdev==0.
func classify(path string) FileType {
	info, err := os.Lstat(path)
	if err != nil {
		return TypeRegularFile
	}
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return TypeSymlink
	case info.IsDir():
		return TypeDirectory
	case info.Mode()&os.ModeCharDevice != 0:
		if st, ok := info.Sys().(*syscall.Stat_t); ok && st.Rdev == 0 {
			return TypeWhiteout
		}
		return TypeRegularFile
	default:
		return TypeRegularFile
	}
}

// relocate moves special partitions out of the synthetic `system` node to
// the root. Many devices expose /vendor as a real mount rather than a
// /system/vendor symlink; hoisting those subtrees lets the rest of the
// engine treat them uniformly.
func relocate(root, system *Node, extras []string) {
	for _, p := range partition.Relocated {
		relocateOne(root, system, p, true)
	}
	for _, p := range extras {
		if partition.IsBuiltIn(p) || p == "system" {
			continue
		}
		relocateOne(root, system, p, false)
	}
}

func relocateOne(root, system *Node, name string, requireSymlink bool) {
	if !isDir(partition.MountPoint(name)) {
		return
	}
	if requireSymlink && name != "odm" {
		if !isSymlink(filepath.Join("/system", name)) {
			return
		}
	}

	node, ok := system.Children[name]
	if !ok {
		return
	}

	// A Symlink node being relocated whose backing module_path is
	// actually a directory is coerced to a Directory so the recursion
	// continues.
	if node.FileType == TypeSymlink && node.ModulePath != "" && isDir(node.ModulePath) {
		node.FileType = TypeDirectory
		if node.Children == nil {
			node.Children = map[string]*Node{}
		}
	}

	delete(system.Children, name)
	root.Children[name] = node
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isSymlink(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode()&os.ModeSymlink != 0
}
