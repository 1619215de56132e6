package modules

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWipeKeepsReservedEntries(t *testing.T) {
	base := t.TempDir()
	for _, name := range []string{"lost+found", "meta-hybrid", "stale-module"} {
		if err := os.MkdirAll(filepath.Join(base, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	if err := wipe(base); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"lost+found", "meta-hybrid"} {
		if !modFsExists(filepath.Join(base, name)) {
			t.Errorf("expected %s to survive wipe", name)
		}
	}
	if modFsExists(filepath.Join(base, "stale-module")) {
		t.Errorf("expected stale-module to be removed by wipe")
	}
}

func TestSyncSkipsModuleWithoutPartitionContent(t *testing.T) {
	metaRoot := t.TempDir()
	base := t.TempDir()

	empty := filepath.Join(metaRoot, "empty-mod")
	if err := os.MkdirAll(filepath.Join(empty, "system"), 0o755); err != nil {
		t.Fatal(err)
	}

	withContent := filepath.Join(metaRoot, "real-mod")
	if err := os.MkdirAll(filepath.Join(withContent, "system", "etc"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(withContent, "system", "etc", "hosts"), []byte("127.0.0.1 localhost\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	mods := []Module{
		{ID: "empty-mod", SourcePath: empty, Mode: ModeAuto},
		{ID: "real-mod", SourcePath: withContent, Mode: ModeAuto},
	}

	if err := Sync(mods, base, nil); err != nil {
		t.Fatal(err)
	}

	if mods[0].ContentPath != "" {
		t.Errorf("empty-mod should not have been synced, got ContentPath=%q", mods[0].ContentPath)
	}
	if mods[1].ContentPath == "" {
		t.Fatalf("real-mod should have been synced")
	}
	hostsPath := filepath.Join(mods[1].ContentPath, "system", "etc", "hosts")
	if !modFsExists(hostsPath) {
		t.Errorf("expected %s to exist after sync", hostsPath)
	}
	if _, ok := mods[1].PartitionsPresent["system"]; !ok {
		t.Errorf("expected system in PartitionsPresent, got %v", mods[1].PartitionsPresent)
	}
}

func modFsExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
