package modules

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/modmount/modmount/internal/pkg/util/fs"
	"github.com/pkg/errors"
)

// Scan enumerates enabled modules under metadataDir, applying
// modeOverrides. Modules are returned ordered descending by ID for
// deterministic downstream iteration.
func Scan(metadataDir string, modeOverrides map[string]Mode) ([]Module, error) {
	entries, err := os.ReadDir(metadataDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading module metadata directory %s", metadataDir)
	}

	var out []Module
	for _, e := range entries {
		id := e.Name()
		if !e.IsDir() {
			continue
		}
		if reservedIDs[id] {
			continue
		}

		sourcePath := filepath.Join(metadataDir, id)
		if disabled(sourcePath) {
			continue
		}

		mode := ModeAuto
		if m, ok := modeOverrides[id]; ok {
			mode = m
		}

		out = append(out, Module{
			ID:         id,
			SourcePath: sourcePath,
			Mode:       mode,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// disabled reports whether sourcePath carries one of the disable markers.
func disabled(sourcePath string) bool {
	for _, marker := range disableMarkers {
		if fs.Exists(filepath.Join(sourcePath, marker)) {
			return true
		}
	}
	return false
}

// Props returns the module.prop-derived metadata for m, used by the
// `modules` JSON subcommand.
func Props(m Module) (Prop, error) {
	return loadProp(m.SourcePath)
}
