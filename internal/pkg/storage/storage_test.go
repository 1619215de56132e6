//go:build linux

package storage

import "testing"

func TestComputeUsage(t *testing.T) {
	size, used, percent, err := computeUsage(1000, 250, 4096)
	if err != nil {
		t.Fatal(err)
	}
	wantSize := uint64(1000 * 4096)
	wantUsed := uint64(750 * 4096)
	if size != wantSize {
		t.Errorf("size = %d, want %d", size, wantSize)
	}
	if used != wantUsed {
		t.Errorf("used = %d, want %d", used, wantUsed)
	}
	if percent < 74.9 || percent > 75.1 {
		t.Errorf("percent = %f, want ~75", percent)
	}
}

func TestComputeUsageZeroSize(t *testing.T) {
	size, used, percent, err := computeUsage(0, 0, 4096)
	if err != nil {
		t.Fatal(err)
	}
	if size != 0 || used != 0 || percent != 0 {
		t.Errorf("expected all zero, got size=%d used=%d percent=%f", size, used, percent)
	}
}
