package modules

import (
	"os"
	"path/filepath"
	"testing"
)

func mkModule(t *testing.T, root, id string, markers ...string) string {
	t.Helper()
	dir := filepath.Join(root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, m := range markers {
		if err := os.WriteFile(filepath.Join(dir, m), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestScanSkipsDisabledAndReserved(t *testing.T) {
	root := t.TempDir()
	mkModule(t, root, "zeta")
	mkModule(t, root, "alpha", "disable")
	mkModule(t, root, "beta", "remove")
	mkModule(t, root, "gamma", "skip_mount")
	mkModule(t, root, "meta-hybrid")
	mkModule(t, root, "lost+found")
	mkModule(t, root, ".git")
	mkModule(t, root, "delta")

	// a stray file directly under the metadata dir must never be treated as a module
	if err := os.WriteFile(filepath.Join(root, "README"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	mods, err := Scan(root, nil)
	if err != nil {
		t.Fatal(err)
	}

	var ids []string
	for _, m := range mods {
		ids = append(ids, m.ID)
		if m.Mode != ModeAuto {
			t.Errorf("module %s: expected default mode auto, got %s", m.ID, m.Mode)
		}
	}

	want := []string{"zeta", "delta"}
	if len(ids) != len(want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("order mismatch at %d: got %s, want %s", i, ids[i], want[i])
		}
	}
}

func TestScanAppliesModeOverrides(t *testing.T) {
	root := t.TempDir()
	mkModule(t, root, "foo")

	mods, err := Scan(root, map[string]Mode{"foo": ModeMagic})
	if err != nil {
		t.Fatal(err)
	}
	if len(mods) != 1 || mods[0].Mode != ModeMagic {
		t.Fatalf("expected foo forced to magic, got %+v", mods)
	}
}

func TestScanMissingMetadataDir(t *testing.T) {
	mods, err := Scan(filepath.Join(t.TempDir(), "does-not-exist"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(mods) != 0 {
		t.Fatalf("expected empty inventory, got %+v", mods)
	}
}

func TestLoadModeOverridesLowercasesAndSkipsComments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overrides")
	content := "# comment\nfoo = MAGIC\nbar=Overlay\n\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	overrides, err := LoadModeOverrides(path)
	if err != nil {
		t.Fatal(err)
	}
	if overrides["foo"] != ModeMagic {
		t.Errorf("foo: got %s, want magic", overrides["foo"])
	}
	if overrides["bar"] != ModeOverlay {
		t.Errorf("bar: got %s, want overlay", overrides["bar"])
	}
}
