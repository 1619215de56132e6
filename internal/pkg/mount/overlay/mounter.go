package overlay

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/modmount/modmount/internal/pkg/driver"
	"github.com/modmount/modmount/internal/pkg/mount"
	"github.com/modmount/modmount/pkg/sylog"
)

// MountRoot layers every contributing module's partition subtree over
// the stock live directory at targetRoot, modules first (highest
// priority), stock last.
//
// The stock lower layer is referenced as "." after chdir(targetRoot):
// the working directory keeps a reference to the stock dentry, so child
// mounts layered after the root overlay can still reach the underlying
// tree through it.
//
// mountSource is the configured `source=` value used by the new mount API
// rung of the back-end ladder.
func MountRoot(targetRoot string, lowerModuleRoots []string, mountSource string) error {
	if err := os.Chdir(targetRoot); err != nil {
		return fmt.Errorf("chdir %s: %w", targetRoot, err)
	}

	for _, l := range lowerModuleRoots {
		if err := CheckLower(l); err != nil {
			return fmt.Errorf("overlay lower %s: %w", l, err)
		}
	}

	// Child mounts must be collected before the root overlay shadows them.
	children, err := childMounts(targetRoot)
	if err != nil {
		sylog.Warningf("enumerating child mounts of %s: %v", targetRoot, err)
	}

	lowers := make([]string, 0, len(lowerModuleRoots)+1)
	lowers = append(lowers, lowerModuleRoots...)
	lowers = append(lowers, ".")

	if err := mount.OverlayMount(mount.OverlayOptions{
		LowerDirs: lowers,
		Dest:      targetRoot,
		Source:    mountSource,
	}); err != nil {
		return fmt.Errorf("mounting overlay at %s: %w", targetRoot, err)
	}
	driver.RegisterUnmountable(targetRoot)

	for _, rel := range children {
		stockChild := "." + rel
		if _, err := os.Lstat(stockChild); err != nil {
			continue
		}
		if err := mountChild(targetRoot, rel, lowerModuleRoots, mountSource); err != nil {
			sylog.Warningf("overlay child %s failed, unwinding %s: %v", rel, targetRoot, err)
			if uerr := mount.Unmount(targetRoot, true); uerr != nil {
				sylog.Warningf("unmount of %s during unwind: %v", targetRoot, uerr)
			}
			return err
		}
	}

	return nil
}

// mountChild re-layers one pre-existing child mount of the stock
// directory on top of the freshly mounted root overlay: an overlay of
// the module subpaths over the stock child when any module provides the
// subpath, or a plain bind of the stock child back into place when none
// does (the root overlay would otherwise shadow it).
func mountChild(targetRoot, rel string, lowerModuleRoots []string, mountSource string) error {
	dest := targetRoot + rel
	stockChild := "." + rel

	anyModule := false
	for _, root := range lowerModuleRoots {
		if _, err := os.Lstat(root + rel); err == nil {
			anyModule = true
			break
		}
	}
	if !anyModule {
		if err := mount.BindTree(stockChild, dest); err != nil {
			return err
		}
		driver.RegisterUnmountable(dest)
		return nil
	}

	info, err := os.Stat(stockChild)
	if err != nil || !info.IsDir() {
		return nil
	}

	var lowers []string
	for _, root := range lowerModuleRoots {
		candidate := root + rel
		st, err := os.Stat(candidate)
		switch {
		case err == nil && st.IsDir():
			lowers = append(lowers, candidate)
		case err == nil:
			// stock child is blocked by a module's non-directory: skip
			return nil
		}
	}
	if len(lowers) == 0 {
		return nil
	}
	lowers = append(lowers, stockChild)

	if err := mount.OverlayMount(mount.OverlayOptions{
		LowerDirs: lowers,
		Dest:      dest,
		Source:    mountSource,
	}); err != nil {
		sylog.Warningf("overlay child %s failed: %v, falling back to bind of stock", dest, err)
		if berr := mount.BindTree(stockChild, dest); berr != nil {
			return berr
		}
	}
	driver.RegisterUnmountable(dest)
	return nil
}

// childMounts parses /proc/self/mountinfo and returns, with a leading
// "/" relative to root, every existing mount point that lies strictly
// under root, sorted so parents come before their descendants.
func childMounts(root string) ([]string, error) {
	f, err := os.Open("/proc/self/mountinfo")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	root = filepath.Clean(root)
	var out []string
	seen := map[string]bool{}

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 5 {
			continue
		}
		mountPoint := fields[4]
		if mountPoint == root || !strings.HasPrefix(mountPoint, root+"/") {
			continue
		}
		rel := strings.TrimPrefix(mountPoint, root)
		if !seen[rel] {
			seen[rel] = true
			out = append(out, rel)
		}
	}
	sort.Strings(out)
	return out, sc.Err()
}
