//go:build linux

package magic

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"
)

func TestCollectReturnsNilWhenNoModuleHasContent(t *testing.T) {
	base := t.TempDir()
	empty := filepath.Join(base, "empty-mod")
	if err := os.MkdirAll(empty, 0o755); err != nil {
		t.Fatal(err)
	}

	if got := Collect([]string{empty}, nil); got != nil {
		t.Fatalf("expected nil root, got %+v", got)
	}
}

func TestCollectMergesRegularFileIntoSystem(t *testing.T) {
	base := t.TempDir()
	mod := filepath.Join(base, "mod-a", "system", "bin")
	if err := os.MkdirAll(mod, 0o755); err != nil {
		t.Fatal(err)
	}
	hook := filepath.Join(mod, "hook.sh")
	if err := os.WriteFile(hook, []byte("#!/system/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	root := Collect([]string{filepath.Join(base, "mod-a")}, nil)
	if root == nil {
		t.Fatal("expected non-nil root")
	}

	system, ok := root.Children["system"]
	if !ok {
		t.Fatal("expected system node")
	}
	bin, ok := system.Children["bin"]
	if !ok {
		t.Fatal("expected system/bin node")
	}
	if bin.FileType != TypeDirectory {
		t.Fatalf("expected bin to be a directory, got %v", bin.FileType)
	}
	hookNode, ok := bin.Children["hook.sh"]
	if !ok {
		t.Fatal("expected hook.sh node")
	}
	if hookNode.FileType != TypeRegularFile {
		t.Fatalf("expected hook.sh to be a regular file, got %v", hookNode.FileType)
	}
	if hookNode.ModulePath != hook {
		t.Fatalf("expected module path %s, got %s", hook, hookNode.ModulePath)
	}
}

func TestCollectFirstModuleWins(t *testing.T) {
	base := t.TempDir()
	for _, mod := range []string{"mod-a", "mod-b"} {
		dir := filepath.Join(base, mod, "system", "etc")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "hosts"), []byte(mod), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	root := Collect([]string{filepath.Join(base, "mod-a"), filepath.Join(base, "mod-b")}, nil)
	hosts := root.Children["system"].Children["etc"].Children["hosts"]
	if hosts.ModulePath != filepath.Join(base, "mod-a", "system", "etc", "hosts") {
		t.Fatalf("expected first module to win, got %s", hosts.ModulePath)
	}
}

func TestIsReplaceMarkerFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".replace"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	node := newDirNode("app")
	if !isReplace(dir, node) {
		t.Fatalf("expected .replace marker to set replace")
	}
}

func TestIsReplaceXattr(t *testing.T) {
	dir := t.TempDir()
	if err := unix.Lsetxattr(dir, "trusted.overlay.opaque", []byte("y"), 0); err != nil {
		t.Skipf("cannot set trusted.overlay.opaque here: %v", err)
	}

	node := newDirNode("app")
	if !isReplace(dir, node) {
		t.Fatalf("expected trusted.overlay.opaque=y to set replace")
	}
}

func TestIsReplaceFalseForPlainDirectory(t *testing.T) {
	dir := t.TempDir()
	node := newDirNode("app")
	if isReplace(dir, node) {
		t.Fatalf("expected plain directory not to be replace")
	}
}

func TestClassifyWhiteout(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("mknod of a char device requires root")
	}

	dir := t.TempDir()
	wh := filepath.Join(dir, "libblock.so")
	if err := unix.Mknod(wh, unix.S_IFCHR|0o644, 0); err != nil {
		t.Fatal(err)
	}

	if got := classify(wh); got != TypeWhiteout {
		t.Errorf("char device with rdev 0: got %v, want TypeWhiteout", got)
	}
}

func TestClassifyRegularDirSymlink(t *testing.T) {
	dir := t.TempDir()

	reg := filepath.Join(dir, "file")
	if err := os.WriteFile(reg, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := classify(reg); got != TypeRegularFile {
		t.Errorf("regular file: got %v, want TypeRegularFile", got)
	}

	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if got := classify(sub); got != TypeDirectory {
		t.Errorf("directory: got %v, want TypeDirectory", got)
	}

	link := filepath.Join(dir, "link")
	if err := os.Symlink(reg, link); err != nil {
		t.Fatal(err)
	}
	if got := classify(link); got != TypeSymlink {
		t.Errorf("symlink: got %v, want TypeSymlink", got)
	}
}
