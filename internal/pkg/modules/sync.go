//go:build linux

package modules

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/modmount/modmount/internal/pkg/partition"
	sel "github.com/modmount/modmount/internal/pkg/security/selinux"
	modfs "github.com/modmount/modmount/internal/pkg/util/fs"
	"github.com/modmount/modmount/pkg/modmounterr"
	"github.com/modmount/modmount/pkg/sylog"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// keepOnWipe names the entries under targetBase that Sync's wipe step
// never removes.
var keepOnWipe = map[string]bool{"lost+found": true, "meta-hybrid": true}

// Sync replicates the content of every module with non-empty partition
// content into targetBase, and repairs SELinux contexts against the live
// system. Per-module failures are logged and skipped; they never abort
// the run.
func Sync(mods []Module, targetBase string, extraPartitions []string) error {
	if err := wipe(targetBase); err != nil {
		sylog.Warningf("wipe of staging mount failed: %v", err)
	}

	parts := partition.All(extraPartitions)

	progress, bar := newSyncProgressBar(len(mods))

	for i := range mods {
		m := &mods[i]
		if bar != nil {
			bar.Increment()
		}
		if !hasAnyPartitionContent(m.SourcePath, parts) {
			continue
		}

		dest, err := securejoin.SecureJoin(targetBase, m.ID)
		if err != nil {
			sylog.Warningf("module %s: resolving destination: %v", m.ID, err)
			continue
		}

		if err := copyTree(m.SourcePath, dest); err != nil {
			sylog.Warningf("module %s: %s", m.ID, modmounterr.New(modmounterr.KindSync, "sync.copyTree", err))
			continue
		}

		if err := repairContexts(dest, parts); err != nil {
			sylog.Warningf("module %s: context repair: %v", m.ID, err)
		}

		m.ContentPath = dest
		m.PartitionsPresent = presentPartitions(dest, parts)
	}

	if progress != nil {
		progress.Wait()
	}

	return nil
}

// newSyncProgressBar returns a module-count progress bar for Sync, shown
// only when verbose logging is on and stdout is an actual terminal.
func newSyncProgressBar(total int) (*mpb.Progress, *mpb.Bar) {
	if total == 0 {
		return nil, nil
	}
	if sylog.GetLevel() < int(sylog.VerboseLevel) {
		return nil, nil
	}
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return nil, nil
	}

	p := mpb.New()
	bar := p.AddBar(int64(total),
		mpb.PrependDecorators(decor.Name("sync modules ")),
		mpb.AppendDecorators(decor.CountersNoUnit("%d / %d")),
	)
	return p, bar
}

// wipe removes every child of targetBase except the entries in keepOnWipe.
func wipe(targetBase string) error {
	entries, err := os.ReadDir(targetBase)
	if os.IsNotExist(err) {
		return os.MkdirAll(targetBase, 0o755)
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if keepOnWipe[e.Name()] {
			continue
		}
		if err := os.RemoveAll(filepath.Join(targetBase, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// hasAnyPartitionContent reports whether sourcePath contains at least one
// recognized partition subdirectory with any file beneath it.
func hasAnyPartitionContent(sourcePath string, parts []string) bool {
	for _, p := range parts {
		dir := filepath.Join(sourcePath, p)
		if modfs.IsDir(dir) && modfs.HasContent(dir) {
			return true
		}
	}
	return false
}

func presentPartitions(contentPath string, parts []string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, p := range parts {
		if modfs.IsDir(filepath.Join(contentPath, p)) {
			out[p] = struct{}{}
		}
	}
	return out
}

// copyTree recursively copies src to dst, preserving permission bits and
// symlinks (ownership is not copied), and stamping every created path with the default SELinux
// label (repaired afterwards by repairContexts).
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target, err := securejoin.SecureJoin(dst, rel)
		if err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.Type()&os.ModeSymlink != 0:
			linkTarget, err := os.Readlink(path)
			if err != nil {
				return err
			}
			if err := os.Symlink(linkTarget, target); err != nil && !os.IsExist(err) {
				return err
			}
		case d.IsDir():
			if err := os.MkdirAll(target, info.Mode().Perm()); err != nil {
				return err
			}
		case info.Mode()&os.ModeCharDevice != 0:
			// Whiteout markers are char devices with rdev==0; preserved as-is
			// so the magic-mount tree builder can detect them later.
			if err := copyCharDevice(path, target, info); err != nil {
				return err
			}
		default:
			if err := copyRegularFile(path, target, info.Mode().Perm()); err != nil {
				return err
			}
		}

		return sel.SetFileLabel(target, sel.DefaultLabel)
	})
}

// copyCharDevice recreates a character device entry, most notably a
// whiteout marker (rdev==0), so the magic-mount tree builder can detect it
// later the same way it would in the original module tree.
func copyCharDevice(src, dst string, info os.FileInfo) error {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return copyRegularFile(src, dst, info.Mode().Perm())
	}
	_ = os.Remove(dst)
	return unix.Mknod(dst, uint32(info.Mode().Perm())|unix.S_IFCHR, int(st.Rdev))
}

func copyRegularFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// repairContexts mirrors SELinux labels from the live system onto every
// path under the copied partition subtrees. Paths with no live
// counterpart keep the default label stamped during the copy.
func repairContexts(contentPath string, parts []string) error {
	for _, p := range parts {
		root := filepath.Join(contentPath, p)
		if !modfs.IsDir(root) {
			continue
		}
		err := filepath.WalkDir(root, func(path string, _ fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(contentPath, path)
			if err != nil {
				return err
			}
			livePath, err := securejoin.SecureJoin("/", rel)
			if err != nil {
				return err
			}
			if !modfs.Exists(livePath) {
				return nil // left with the default label
			}
			label, err := sel.FileLabel(livePath)
			if err != nil || label == "" {
				return nil
			}
			return sel.SetFileLabel(path, label)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
