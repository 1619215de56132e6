//go:build linux

package mount

import (
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// MountTmpfs mounts a tmpfs at target with the given directory mode.
func MountTmpfs(target string, mode os.FileMode) error {
	if err := unix.Mount("tmpfs", target, "tmpfs", 0, "mode=0755"); err != nil {
		return &Error{Op: "mount(tmpfs)", Path: target, Err: err}
	}
	if mode != 0 {
		if err := os.Chmod(target, mode); err != nil {
			return &Error{Op: "chmod", Path: target, Err: err}
		}
	}
	return nil
}

// MountExt4Loop mounts an already loop-attached ext4 image's block device
// at target.
func MountExt4Loop(device, target string, rw, noatime bool) error {
	flags := uintptr(0)
	if !rw {
		flags |= unix.MS_RDONLY
	}
	if noatime {
		flags |= unix.MS_NOATIME
	}
	if err := unix.Mount(device, target, "ext4", flags, ""); err != nil {
		return &Error{Op: "mount(ext4)", Path: target, Err: err}
	}
	return nil
}

// Unmount detaches the mount at path. When detach is true, MNT_DETACH is
// used so the unmount succeeds even if the mount is busy (lazy unmount).
func Unmount(path string, detach bool) error {
	flags := 0
	if detach {
		flags = unix.MNT_DETACH
	}
	if err := unix.Unmount(path, flags); err != nil {
		return &Error{Op: "umount2", Path: path, Err: err}
	}
	return nil
}

// BindTree clone-recursive bind mounts src onto dst (MS_BIND|MS_REC).
func BindTree(src, dst string) error {
	if err := unix.Mount(src, dst, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return &Error{Op: "mount(bind)", Path: dst, Err: err}
	}
	return nil
}

// BindFile bind mounts a single file/path without MS_REC.
func BindFile(src, dst string) error {
	if err := unix.Mount(src, dst, "", unix.MS_BIND, ""); err != nil {
		return &Error{Op: "mount(bind)", Path: dst, Err: err}
	}
	return nil
}

// RemountReadOnlyBind remounts an existing bind mount read-only.
func RemountReadOnlyBind(path string) error {
	if err := unix.Mount("", path, "", unix.MS_REMOUNT|unix.MS_BIND|unix.MS_RDONLY, ""); err != nil {
		return &Error{Op: "mount(remount,ro)", Path: path, Err: err}
	}
	return nil
}

// SetPropagationPrivate marks the mount at path MS_PRIVATE so changes to
// it do not propagate to or from its peer group, used after relocating a
// tmpfs shadow with move_mount.
func SetPropagationPrivate(path string) error {
	if err := unix.Mount("", path, "", unix.MS_PRIVATE, ""); err != nil {
		return &Error{Op: "mount(private)", Path: path, Err: err}
	}
	return nil
}

// MoveMount attaches the mount tree rooted at src, including every mount
// stacked beneath it, onto dst using open_tree + move_mount. The tree is
// cloned recursively; the mounts at src stay in place.
func MoveMount(src, dst string) error {
	fd, err := unix.OpenTree(unix.AT_FDCWD, src, unix.OPEN_TREE_CLONE|unix.AT_RECURSIVE)
	if err != nil {
		return &Error{Op: "open_tree", Path: src, Err: err}
	}
	defer unix.Close(fd)

	if err := unix.MoveMount(fd, "", unix.AT_FDCWD, dst, unix.MOVE_MOUNT_F_EMPTY_PATH); err != nil {
		return &Error{Op: "move_mount", Path: dst, Err: err}
	}
	return nil
}

// Chmod/Chown thinly wrap the stdlib so every caller goes through one
// adapter surface with a consistent tagged error.
func Chmod(path string, mode os.FileMode) error {
	if err := os.Chmod(path, mode); err != nil {
		return &Error{Op: "chmod", Path: path, Err: err}
	}
	return nil
}

func Chown(path string, uid, gid int) error {
	if err := os.Chown(path, uid, gid); err != nil {
		return &Error{Op: "chown", Path: path, Err: err}
	}
	return nil
}

// Statvfs reports filesystem usage for path.
func Statvfs(path string) (*unix.Statfs_t, error) {
	st := &unix.Statfs_t{}
	if err := unix.Statfs(path, st); err != nil {
		return nil, &Error{Op: "statvfs", Path: path, Err: err}
	}
	return st, nil
}

// OverlayOptions describes one OverlayFS mount request.
type OverlayOptions struct {
	LowerDirs     []string
	UpperDir      string
	WorkDir       string
	Dest          string
	Source        string
	OverrideCreds bool
}

// OverlayMount walks the back-end ladder: the new mount API first (with
// then without override_creds), falling back to the legacy mount(2)
// overlay data-string form (again with then without override_creds).
// The first successful rung wins.
func OverlayMount(o OverlayOptions) error {
	var lastErr error

	for _, oc := range []bool{true, false} {
		if err := overlayMountNewAPI(o, oc); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	for _, oc := range []bool{true, false} {
		if err := overlayMountLegacy(o, oc); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	return lastErr
}

func overlayMountNewAPI(o OverlayOptions, overrideCreds bool) error {
	fd, err := unix.Fsopen("overlay", 0)
	if err != nil {
		return &Error{Op: "fsopen", Path: o.Dest, Err: err}
	}
	defer unix.Close(fd)

	set := func(key, value string) error {
		if value == "" {
			return nil
		}
		return unix.FsconfigSetString(fd, key, value)
	}

	if err := set("lowerdir", strings.Join(o.LowerDirs, ":")); err != nil {
		return &Error{Op: "fsconfig(lowerdir)", Path: o.Dest, Err: err}
	}
	if err := set("upperdir", o.UpperDir); err != nil {
		return &Error{Op: "fsconfig(upperdir)", Path: o.Dest, Err: err}
	}
	if err := set("workdir", o.WorkDir); err != nil {
		return &Error{Op: "fsconfig(workdir)", Path: o.Dest, Err: err}
	}
	if err := set("source", o.Source); err != nil {
		return &Error{Op: "fsconfig(source)", Path: o.Dest, Err: err}
	}
	if overrideCreds {
		if err := set("override_creds", "off"); err != nil {
			return &Error{Op: "fsconfig(override_creds)", Path: o.Dest, Err: err}
		}
	}

	if err := unix.FsconfigCreate(fd); err != nil {
		return &Error{Op: "fsconfig(create)", Path: o.Dest, Err: err}
	}

	mfd, err := unix.Fsmount(fd, 0, 0)
	if err != nil {
		return &Error{Op: "fsmount", Path: o.Dest, Err: err}
	}
	defer unix.Close(mfd)

	if err := unix.MoveMount(mfd, "", unix.AT_FDCWD, o.Dest, unix.MOVE_MOUNT_F_EMPTY_PATH); err != nil {
		return &Error{Op: "move_mount", Path: o.Dest, Err: err}
	}
	return nil
}

func overlayMountLegacy(o OverlayOptions, overrideCreds bool) error {
	data := "lowerdir=" + strings.Join(o.LowerDirs, ":")
	if o.UpperDir != "" {
		data += ",upperdir=" + o.UpperDir
	}
	if o.WorkDir != "" {
		data += ",workdir=" + o.WorkDir
	}
	if overrideCreds {
		data += ",override_creds=off"
	}
	if err := unix.Mount("overlay", o.Dest, "overlay", 0, data); err != nil {
		return &Error{Op: "mount(overlay)", Path: o.Dest, Err: err}
	}
	return nil
}
