// Package storage selects and prepares the staging mount that holds
// synchronized module content: tmpfs when its xattr support checks out,
// an ext4 loop image otherwise.
package storage

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/modmount/modmount/internal/pkg/bin"
	"github.com/modmount/modmount/internal/pkg/mount"
	sel "github.com/modmount/modmount/internal/pkg/security/selinux"
	"github.com/modmount/modmount/pkg/modmounterr"
	"github.com/modmount/modmount/pkg/sylog"
	"github.com/modmount/modmount/pkg/util/loop"
)

// Mode names the storage backend chosen for the staging mount.
type Mode string

const (
	ModeTmpfs Mode = "tmpfs"
	ModeExt4  Mode = "ext4"
)

// Handle describes the staging mount Setup prepared.
type Handle struct {
	TargetDir string
	Mode      Mode

	loopDevice string // non-empty only when Mode == ModeExt4
}

const (
	xattrProbeName  = ".modmount-xattr-probe"
	ext4ImageSizeMB = 512
)

// Setup detaches anything mounted at targetDir, then prepares the
// staging mount there: tmpfs if it passes the xattr probe and forceExt4
// is unset, else the ext4 loop image at imagePath.
func Setup(targetDir, imagePath string, forceExt4 bool) (*Handle, error) {
	if err := mount.Unmount(targetDir, true); err != nil {
		sylog.Debugf("storage: detaching stale mount at %s: %v", targetDir, err)
	}

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return nil, modmounterr.New(modmounterr.KindStorage, "storage.mkdir", err)
	}

	if !forceExt4 {
		if h, err := trySetupTmpfs(targetDir); err == nil {
			return h, nil
		}
	}

	return setupExt4(targetDir, imagePath)
}

func trySetupTmpfs(targetDir string) (*Handle, error) {
	if err := mount.MountTmpfs(targetDir, 0o755); err != nil {
		return nil, err
	}

	if err := probeXattr(targetDir); err != nil {
		sylog.Debugf("storage: tmpfs xattr probe failed, falling back to ext4: %v", err)
		if uerr := mount.Unmount(targetDir, true); uerr != nil {
			sylog.Warningf("storage: detaching failed tmpfs probe: %v", uerr)
		}
		return nil, err
	}

	return &Handle{TargetDir: targetDir, Mode: ModeTmpfs}, nil
}

// probeXattr writes a sentinel file and attempts to set a security label
// on it.
func probeXattr(targetDir string) error {
	probe := filepath.Join(targetDir, xattrProbeName)
	f, err := os.OpenFile(probe, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	f.Close()
	defer os.Remove(probe)

	return sel.SetFileLabel(probe, sel.DefaultLabel)
}

func setupExt4(targetDir, imagePath string) (*Handle, error) {
	if _, err := os.Stat(imagePath); err != nil {
		return nil, modmounterr.New(modmounterr.KindStorage, "storage.ext4", modmounterr.ErrStorageUnavailable)
	}

	if err := ensureImageFormatted(imagePath); err != nil {
		sylog.Debugf("storage: formatting check for %s: %v", imagePath, err)
	}

	dev := &loop.Device{MaxLoopDevices: loop.DefaultMaxLoopDevices}
	var number int
	if err := dev.AttachFromPath(imagePath, os.O_RDWR, &number); err != nil {
		return nil, modmounterr.New(modmounterr.KindStorage, "storage.loopattach", err)
	}
	devicePath := fmt.Sprintf("/dev/loop%d", number)

	if err := verifyLoopBacking(devicePath, imagePath); err != nil {
		_ = dev.Close()
		return nil, modmounterr.New(modmounterr.KindStorage, "storage.loopattach", err)
	}

	if err := mount.MountExt4Loop(devicePath, targetDir, true, true); err != nil {
		_ = dev.Close()
		return nil, modmounterr.New(modmounterr.KindStorage, "storage.mountext4", err)
	}

	if err := repairRoot(targetDir); err != nil {
		_ = mount.Unmount(targetDir, true)
		_ = dev.Close()
		return nil, modmounterr.New(modmounterr.KindStorage, "storage.repairroot", err)
	}

	return &Handle{TargetDir: targetDir, Mode: ModeExt4, loopDevice: devicePath}, nil
}

// verifyLoopBacking confirms the freshly attached loop device reports
// our image as its backing file, so a racing attach on the same device
// number cannot end with someone else's filesystem mounted as staging.
func verifyLoopBacking(devicePath, imagePath string) error {
	status, err := loop.GetStatusFromPath(devicePath)
	if err != nil {
		return err
	}
	info, err := os.Stat(imagePath)
	if err != nil {
		return err
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}
	if status.Inode != st.Ino || status.Device != uint64(st.Dev) {
		return fmt.Errorf("loop device %s is not backed by %s", devicePath, imagePath)
	}
	return nil
}

// repairRoot sets mode 0755, owner/group 0:0, and the default SELinux
// label on the mounted ext4 root. OverlayFS refuses lower layers whose
// root is not accessible to the mount helper's security domain.
func repairRoot(targetDir string) error {
	if err := mount.Chmod(targetDir, 0o755); err != nil {
		return err
	}
	if err := mount.Chown(targetDir, 0, 0); err != nil {
		return err
	}
	return sel.SetFileLabel(targetDir, sel.DefaultLabel)
}

// ensureImageFormatted formats the loop image when it is empty: truncate
// to size, then mkfs. A non-empty image is taken as already formatted; its
// contents are not inspected.
func ensureImageFormatted(imagePath string) error {
	info, err := os.Stat(imagePath)
	if err == nil && info.Size() > 0 {
		return nil
	}

	truncateBin, err := bin.FindBin("truncate")
	if err != nil {
		return err
	}
	if err := runCmd(truncateBin, "-s", fmt.Sprintf("%dM", ext4ImageSizeMB), imagePath); err != nil {
		return err
	}

	mkfsBin, err := bin.FindBin("mkfs.ext4")
	if err != nil {
		return err
	}
	return runCmd(mkfsBin, "-F", "-q", imagePath)
}

// Usage reports size/used/percent for a storage handle's mount point.
func Usage(mountPoint string) (size, used uint64, percent float64, err error) {
	st, serr := mount.Statvfs(mountPoint)
	if serr != nil {
		return 0, 0, 0, serr
	}
	return computeUsage(st.Blocks, st.Bfree, uint64(st.Bsize))
}

// computeUsage is the pure arithmetic behind Usage, split out so it can
// be unit tested without a real statvfs call.
func computeUsage(blocks, bfree, bsize uint64) (size, used uint64, percent float64, err error) {
	size = blocks * bsize
	free := bfree * bsize
	used = size - free
	if size > 0 {
		percent = float64(used) / float64(size) * 100
	}
	return size, used, percent, nil
}

func runCmd(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %v: %w: %s", name, args, err, out)
	}
	return nil
}
