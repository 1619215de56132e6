package overlay

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestCheckLowerUpper(t *testing.T) {
	tests := []struct {
		name                  string
		fsType                int64
		dir                   overlayDir
		expectIncompatibleErr bool
	}{
		{name: "ext4-like lower", fsType: 0xEF53, dir: lowerDir, expectIncompatibleErr: false},
		{name: "nfs lower", fsType: nfsMagic, dir: lowerDir, expectIncompatibleErr: false},
		{name: "nfs upper", fsType: nfsMagic, dir: upperDir, expectIncompatibleErr: true},
		{name: "lustre lower", fsType: lustreMagic, dir: lowerDir, expectIncompatibleErr: true},
		{name: "gpfs upper", fsType: gpfsMagic, dir: upperDir, expectIncompatibleErr: true},
	}

	orig := statfs
	defer func() { statfs = orig }()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			statfs = func(path string, buf *unix.Statfs_t) error {
				buf.Type = tt.fsType
				return nil
			}

			err := check("/fake/path", tt.dir)
			if tt.expectIncompatibleErr {
				if err == nil {
					t.Fatalf("expected incompatible-fs error, got nil")
				}
				if _, ok := err.(*errIncompatibleFS); !ok {
					t.Fatalf("expected *errIncompatibleFS, got %T: %v", err, err)
				}
			} else if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}
}

func TestCheckLowerStatfsError(t *testing.T) {
	orig := statfs
	defer func() { statfs = orig }()

	statfs = func(path string, buf *unix.Statfs_t) error {
		return unix.ENOENT
	}

	if err := CheckLower("/non/existent"); err == nil {
		t.Fatalf("expected error from statfs failure")
	}
}
