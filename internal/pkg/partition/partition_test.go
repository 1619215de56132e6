package partition

import (
	"reflect"
	"testing"
)

func TestAllDeduplicatesExtras(t *testing.T) {
	got := All([]string{"vendor_dlkm", "system", "vendor_dlkm", "odm"})
	want := append(append([]string{}, BuiltIns...), "vendor_dlkm")
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestMountPoint(t *testing.T) {
	if got := MountPoint("system_ext"); got != "/system_ext" {
		t.Errorf("got %s, want /system_ext", got)
	}
}

func TestIsBuiltIn(t *testing.T) {
	for _, p := range BuiltIns {
		if !IsBuiltIn(p) {
			t.Errorf("%s should be built-in", p)
		}
	}
	if IsBuiltIn("vendor_dlkm") {
		t.Errorf("vendor_dlkm should not be built-in")
	}
}
