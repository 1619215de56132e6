package mount

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/modmount/modmount/internal/pkg/modules"
)

func TestClassifySplitsMagicAndOverlay(t *testing.T) {
	base := t.TempDir()

	autoMod := filepath.Join(base, "auto-mod")
	if err := os.MkdirAll(filepath.Join(autoMod, "system"), 0o755); err != nil {
		t.Fatal(err)
	}
	magicMod := filepath.Join(base, "magic-mod")
	if err := os.MkdirAll(magicMod, 0o755); err != nil {
		t.Fatal(err)
	}

	mods := []modules.Module{
		{
			ID:                "auto-mod",
			ContentPath:       autoMod,
			Mode:              modules.ModeAuto,
			PartitionsPresent: map[string]struct{}{"system": {}},
		},
		{
			ID:          "magic-mod",
			ContentPath: magicMod,
			Mode:        modules.ModeMagic,
		},
		{
			ID: "unsynced-mod",
			// ContentPath left empty: never synced.
		},
	}

	c := Classify(mods, nil)

	if !c.MagicSet[magicMod] {
		t.Errorf("expected %s in magic set", magicMod)
	}
	if got := c.OverlayMap["system"]; len(got) != 1 || got[0] != autoMod {
		t.Errorf("expected overlay_map[system] = [%s], got %v", autoMod, got)
	}
	if len(c.MagicSet) != 1 {
		t.Errorf("expected exactly one magic entry, got %v", c.MagicSet)
	}
}

func TestPromoteToMagicMovesWholePartition(t *testing.T) {
	c := Classification{
		OverlayMap: map[string][]string{"system": {"/a", "/b"}},
		MagicSet:   map[string]bool{},
	}

	c.PromoteToMagic("system")

	if c.OverlayMap["system"] != nil {
		t.Errorf("expected system partition removed from overlay map")
	}
	if !c.MagicSet["/a"] || !c.MagicSet["/b"] {
		t.Errorf("expected both modules promoted to magic set, got %v", c.MagicSet)
	}
}
