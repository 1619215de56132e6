package mount

import (
	"path/filepath"

	"github.com/modmount/modmount/internal/pkg/modules"
	"github.com/modmount/modmount/internal/pkg/partition"
)

// Classification is the result of Classify: the set of module content
// paths contributing an overlay lower layer per partition, and the set
// of module content paths routed straight to the magic-mount engine.
type Classification struct {
	OverlayMap map[string][]string
	MagicSet   map[string]bool
}

// Classify routes each module either toward an OverlayFS stack (one
// lower-layer list per partition it contributes to) or straight into the
// magic set when its mode demands it.
func Classify(mods []modules.Module, extraPartitions []string) Classification {
	parts := partition.All(extraPartitions)

	c := Classification{
		OverlayMap: make(map[string][]string),
		MagicSet:   make(map[string]bool),
	}

	for _, m := range mods {
		if m.ContentPath == "" {
			continue // never synced: no partition content at all
		}
		if m.Mode == modules.ModeMagic {
			c.MagicSet[m.ContentPath] = true
			continue
		}
		for _, p := range parts {
			if _, ok := m.PartitionsPresent[p]; !ok {
				continue
			}
			if !dirExists(filepath.Join(m.ContentPath, p)) {
				continue
			}
			c.OverlayMap[p] = append(c.OverlayMap[p], m.ContentPath)
		}
	}

	return c
}

// PromoteToMagic moves every module content path contributing to
// partition p's overlay into the magic set, for retry after an overlay
// mount failure.
func (c *Classification) PromoteToMagic(p string) {
	for _, content := range c.OverlayMap[p] {
		c.MagicSet[content] = true
	}
	delete(c.OverlayMap, p)
}

func dirExists(path string) bool {
	info, err := statFn(path)
	return err == nil && info.IsDir()
}
