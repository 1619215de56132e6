//go:build linux

package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/modmount/modmount/internal/pkg/bin"
	"github.com/modmount/modmount/pkg/modmounterr"
	"github.com/modmount/modmount/pkg/sylog"
)

// nukeModuleName is the kernel helper that hides the ext4 loop mount's
// sysfs traces. It is looked up in the base directory (the parent of the
// staging mount) rather than inside the staging mount, which gets wiped
// every run.
const nukeModuleName = "nuke.ko"

// Nuke loads the optional kernel helper, passing the staging mount point
// and the resolved symbol address as module parameters. It only applies
// to an ext4-backed handle; for tmpfs there are no sysfs traces to hide.
// A missing helper module returns ErrDriverUnavailable so the caller can
// tolerate its absence.
func (h *Handle) Nuke(symaddr uintptr) error {
	if h.Mode != ModeExt4 {
		return nil
	}

	lkm := filepath.Join(filepath.Dir(h.TargetDir), nukeModuleName)
	if _, err := os.Stat(lkm); err != nil {
		return modmounterr.ErrDriverUnavailable
	}

	insmod, err := bin.FindBin("insmod")
	if err != nil {
		return modmounterr.New(modmounterr.KindDriverUnavailable, "storage.nuke", err)
	}

	// The helper resolves kernel symbols during init, which needs
	// unrestricted /proc/kallsyms for the duration of the load.
	defer lowerKptrRestrict()()

	args := []string{lkm, fmt.Sprintf("mount_point=%s", h.TargetDir)}
	if symaddr != 0 {
		args = append(args, fmt.Sprintf("symaddr=%#x", symaddr))
	}
	if err := runCmd(insmod, args...); err != nil {
		return modmounterr.New(modmounterr.KindDriverUnavailable, "storage.nuke", err)
	}

	// The module does its work in init and is not meant to stay resident.
	if rmmod, err := bin.FindBin("rmmod"); err == nil {
		if err := runCmd(rmmod, nukeModuleName); err != nil {
			sylog.Debugf("storage: unloading nuke helper: %v", err)
		}
	}
	return nil
}

// lowerKptrRestrict temporarily sets kernel.kptr_restrict to 0 and
// returns the function that restores the original value. The restore
// must run on every exit path of the caller.
func lowerKptrRestrict() (restore func()) {
	const path = "/proc/sys/kernel/kptr_restrict"

	orig := "2"
	if data, err := os.ReadFile(path); err == nil {
		orig = strings.TrimSpace(string(data))
	}

	if err := os.WriteFile(path, []byte("0"), 0o644); err != nil {
		sylog.Warningf("storage: lowering kptr_restrict: %v", err)
	}

	return func() {
		if err := os.WriteFile(path, []byte(orig), 0o644); err != nil {
			sylog.Warningf("storage: restoring kptr_restrict: %v", err)
		}
	}
}
