//go:build linux

package magic

import (
	"os"
	"path/filepath"

	"github.com/modmount/modmount/internal/pkg/driver"
	"github.com/modmount/modmount/internal/pkg/mount"
	sel "github.com/modmount/modmount/internal/pkg/security/selinux"
	"github.com/modmount/modmount/pkg/sylog"
)

// DoMagicMount realizes node at hostPath, staging through workPath
// whenever the subtree is under a tmpfs shadow.
func DoMagicMount(hostPath, workPath string, node *Node, hasTmpfs bool) error {
	switch node.FileType {
	case TypeRegularFile:
		return mountRegularFile(hostPath, workPath, node, hasTmpfs)
	case TypeSymlink:
		return mountSymlink(hostPath, workPath, node)
	case TypeDirectory:
		return mountDirectory(hostPath, workPath, node, hasTmpfs)
	case TypeWhiteout:
		return nil // omitted from the shadow; nothing to do
	default:
		return nil
	}
}

func mountRegularFile(hostPath, workPath string, node *Node, hasTmpfs bool) error {
	target := hostPath
	if hasTmpfs {
		target = workPath
		f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		f.Close()
	}

	if err := mount.BindFile(node.ModulePath, target); err != nil {
		return err
	}
	driver.RegisterUnmountable(target)
	return mount.RemountReadOnlyBind(target)
}

func mountSymlink(hostPath, workPath string, node *Node) error {
	return cloneSymlink(node.ModulePath, workPath)
}

// cloneSymlink recreates the symlink at src as dst, carrying the SELinux
// label along.
func cloneSymlink(src, dst string) error {
	linkTarget, err := os.Readlink(src)
	if err != nil {
		return err
	}
	if err := os.Symlink(linkTarget, dst); err != nil && !os.IsExist(err) {
		return err
	}
	label, err := sel.FileLabel(src)
	if err == nil && label != "" {
		return sel.SetFileLabel(dst, label)
	}
	return nil
}

func mountDirectory(hostPath, workPath string, node *Node, hasTmpfs bool) error {
	createTmpfs := !hasTmpfs && ShouldCreateTmpfs(node, hostPath, hasTmpfs)
	effectiveTmpfs := hasTmpfs || createTmpfs

	hostExists := isDir(hostPath)

	switch {
	case createTmpfs:
		if err := os.MkdirAll(workPath, 0o755); err != nil {
			return err
		}
		if err := mirrorMetadata(preferredSource(hostPath, hostExists, node), workPath); err != nil {
			return err
		}
		if err := mount.BindTree(workPath, workPath); err != nil {
			return err
		}
	case hasTmpfs:
		if _, err := os.Stat(workPath); os.IsNotExist(err) {
			if err := os.MkdirAll(workPath, 0o755); err != nil {
				return err
			}
			if err := mirrorMetadata(preferredSource(hostPath, hostExists, node), workPath); err != nil {
				return err
			}
		}
	}

	if effectiveTmpfs && hostExists && !node.Replace {
		if err := mirrorUnlistedHostChildren(hostPath, workPath, node); err != nil {
			return err
		}
	}

	for name, child := range node.Children {
		if child.Skip {
			continue
		}
		childHost := filepath.Join(hostPath, name)
		childWork := filepath.Join(workPath, name)
		if err := DoMagicMount(childHost, childWork, child, effectiveTmpfs); err != nil {
			sylog.Warningf("magic-mount: %s: %v", childHost, err)
		}
	}

	if createTmpfs {
		if err := mount.RemountReadOnlyBind(workPath); err != nil {
			return err
		}
		if err := mount.MoveMount(workPath, hostPath); err != nil {
			return err
		}
		if err := mount.SetPropagationPrivate(hostPath); err != nil {
			return err
		}
		driver.RegisterUnmountable(hostPath)
	}

	return nil
}

// preferredSource returns the path whose mode/owner/label should be
// mirrored onto a freshly created work directory: the host directory if
// it exists, else the module's backing directory.
func preferredSource(hostPath string, hostExists bool, node *Node) string {
	if hostExists {
		return hostPath
	}
	return node.ModulePath
}

func mirrorMetadata(source, target string) error {
	if source == "" {
		return nil
	}
	info, err := os.Stat(source)
	if err != nil {
		return nil
	}
	if err := mount.Chmod(target, info.Mode().Perm()); err != nil {
		return err
	}
	if st, ok := statOwner(info); ok {
		if err := mount.Chown(target, st.uid, st.gid); err != nil {
			return err
		}
	}
	label, err := sel.FileLabel(source)
	if err == nil && label != "" {
		return sel.SetFileLabel(target, label)
	}
	return nil
}

// mirrorUnlistedHostChildren recursively bind-mounts every host child not
// named in node.Children into the tmpfs shadow, so the shadow exposes
// the union of host and module content.
func mirrorUnlistedHostChildren(hostPath, workPath string, node *Node) error {
	entries, err := os.ReadDir(hostPath)
	if err != nil {
		return nil
	}
	for _, e := range entries {
		name := e.Name()
		if _, listed := node.Children[name]; listed {
			continue
		}
		src := filepath.Join(hostPath, name)
		dst := filepath.Join(workPath, name)
		switch {
		case e.Type()&os.ModeSymlink != 0:
			// A bind mount would follow the link; recreate it instead.
			if err := cloneSymlink(src, dst); err != nil {
				return err
			}
			continue
		case e.IsDir():
			if err := os.MkdirAll(dst, 0o755); err != nil {
				return err
			}
			if err := mirrorMetadata(src, dst); err != nil {
				return err
			}
			if err := mount.BindTree(src, dst); err != nil {
				return err
			}
		default:
			f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY, 0o644)
			if err != nil {
				return err
			}
			f.Close()
			if err := mount.BindFile(src, dst); err != nil {
				return err
			}
		}
		driver.RegisterUnmountable(dst)
	}
	return nil
}
