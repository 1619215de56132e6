// Package engine wires the pieces into a single top-to-bottom run:
// substrate setup, runtime state persistence, module sync, routing, then
// the overlay and magic-mount back ends.
package engine

import (
	"errors"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/modmount/modmount/internal/pkg/config"
	"github.com/modmount/modmount/internal/pkg/modules"
	"github.com/modmount/modmount/internal/pkg/mount"
	"github.com/modmount/modmount/internal/pkg/mount/magic"
	"github.com/modmount/modmount/internal/pkg/mount/overlay"
	"github.com/modmount/modmount/internal/pkg/partition"
	"github.com/modmount/modmount/internal/pkg/state"
	"github.com/modmount/modmount/internal/pkg/storage"
	"github.com/modmount/modmount/pkg/modmounterr"
	"github.com/modmount/modmount/pkg/sylog"
)

const (
	modeOverridesFile = "mode_overrides"
	stateFile         = "state"
	imageFile         = "modules.img"

	// mountDirName is the staging mount point under the configured base
	// directory. The base itself also holds the loop image, the runtime
	// state file and the magic-mount workdir, all of which must survive
	// the staging mount being mounted over and wiped.
	mountDirName = "mnt"
)

// Run performs one full engine pass: storage setup, module sync, overlay
// routing, overlay mounts with magic-mount fallback, then magic mount for
// everything left in the magic set.
func Run(cfg *config.File) error {
	handle, err := storage.Setup(filepath.Join(cfg.TempDir, mountDirName), filepath.Join(cfg.TempDir, imageFile), cfg.ForceExt4)
	if err != nil {
		return modmounterr.New(modmounterr.KindStorage, "engine.storagesetup", err)
	}

	runID := uuid.NewString()
	sylog.Verbosef("engine: starting run %s (storage=%s)", runID, handle.Mode)

	if err := state.Write(filepath.Join(cfg.TempDir, stateFile), state.State{
		MountPoint:  handle.TargetDir,
		StorageMode: string(handle.Mode),
		RunID:       runID,
	}); err != nil {
		sylog.Warningf("engine: writing runtime state: %v", err)
	}

	modeOverrides, err := modules.LoadModeOverrides(filepath.Join(cfg.ModuleDir, modeOverridesFile))
	if err != nil {
		sylog.Warningf("engine: loading mode overrides: %v", err)
	}

	mods, err := modules.Scan(cfg.ModuleDir, modeOverrides)
	if err != nil {
		return modmounterr.New(modmounterr.KindConfig, "engine.scan", err)
	}

	if err := modules.Sync(mods, handle.TargetDir, cfg.Partitions); err != nil {
		return modmounterr.New(modmounterr.KindSync, "engine.sync", err)
	}

	classification := mount.Classify(mods, cfg.Partitions)

	for _, p := range partition.All(cfg.Partitions) {
		lowers := classification.OverlayMap[p]
		if len(lowers) == 0 {
			continue
		}
		moduleRoots := make([]string, len(lowers))
		for i, content := range lowers {
			moduleRoots[i] = filepath.Join(content, p)
		}
		target := partition.MountPoint(p)
		if err := overlay.MountRoot(target, moduleRoots, cfg.MountSource); err != nil {
			sylog.Warningf("engine: overlay mount of %s failed, promoting to magic: %v", p, err)
			classification.PromoteToMagic(p)
		}
	}

	// Walk the inventory rather than the set so the magic-mount tree sees
	// modules in the same priority order the sync pass used (first wins
	// on file collisions).
	magicPaths := make([]string, 0, len(classification.MagicSet))
	for _, m := range mods {
		if classification.MagicSet[m.ContentPath] {
			magicPaths = append(magicPaths, m.ContentPath)
		}
	}

	if len(magicPaths) > 0 {
		if err := magic.MountPartitions(cfg.TempDir, magicPaths, cfg.Partitions); err != nil {
			sylog.Warningf("engine: magic mount: %v", err)
		}
	}

	if cfg.EnableNuke {
		if err := handle.Nuke(0); err != nil {
			if errors.Is(err, modmounterr.ErrDriverUnavailable) {
				sylog.Debugf("engine: nuke helper unavailable: %v", err)
			} else {
				sylog.Warningf("engine: nuke helper: %v", err)
			}
		}
	}

	return nil
}
