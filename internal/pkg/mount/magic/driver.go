//go:build linux

package magic

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/modmount/modmount/internal/pkg/mount"
	"github.com/modmount/modmount/pkg/modmounterr"
	"github.com/modmount/modmount/pkg/sylog"
)

// MountPartitions builds the merged tree for modulePaths and realizes
// it against the live root, staging tmpfs shadows under a private
// workdir tmpfs that is detached and removed on every return path.
func MountPartitions(tmpDir string, modulePaths []string, extras []string) error {
	root := Collect(modulePaths, extras)
	if root == nil {
		return nil
	}

	// Suffixed with a fresh uuid so a crash-then-immediate-retry run never
	// races the previous run's workdir before it is detached and removed.
	workdir := filepath.Join(tmpDir, "workdir-"+uuid.NewString())
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return modmounterr.New(modmounterr.KindMagicMount, "magic.mkworkdir", err)
	}
	if err := mount.MountTmpfs(workdir, 0o755); err != nil {
		_ = os.Remove(workdir)
		return modmounterr.New(modmounterr.KindMagicMount, "magic.mounttmpfs", err)
	}
	if err := mount.SetPropagationPrivate(workdir); err != nil {
		sylog.Warningf("magic-mount: marking workdir private: %v", err)
	}

	defer func() {
		if err := mount.Unmount(workdir, true); err != nil {
			sylog.Warningf("magic-mount: detaching workdir tmpfs: %v", err)
		}
		if err := os.RemoveAll(workdir); err != nil {
			sylog.Warningf("magic-mount: removing workdir: %v", err)
		}
	}()

	if err := DoMagicMount("/", workdir, root, false); err != nil {
		return modmounterr.New(modmounterr.KindMagicMount, "magic.domagicmount", err)
	}
	return nil
}
