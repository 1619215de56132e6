// Package selinux wraps github.com/opencontainers/selinux/go-selinux
// with the file-label get/set operations the mount engine needs to
// mirror and repair contexts. All operations degrade to no-ops when
// SELinux is disabled on the host.
package selinux

import (
	"github.com/opencontainers/selinux/go-selinux"
	"github.com/opencontainers/selinux/go-selinux/label"
)

// DefaultLabel is the label the synchronizer stamps onto every path it
// creates before context repair runs.
const DefaultLabel = "u:object_r:system_file:s0"

// Enabled returns whether SELinux is enabled on this host. When it is not,
// FileLabel/SetFileLabel become no-ops so the engine degrades gracefully on
// non-SELinux kernels instead of failing every context-repair step.
func Enabled() bool {
	return selinux.GetEnabled()
}

// FileLabel returns the SELinux label on path, or "" if SELinux is
// disabled or the path carries no label.
func FileLabel(path string) (string, error) {
	if !Enabled() {
		return "", nil
	}
	return label.FileLabel(path)
}

// SetFileLabel sets the SELinux label on path. A no-op when SELinux is
// disabled, so a kernel without SELinux does not fail mount setup
// outright.
func SetFileLabel(path, value string) error {
	if !Enabled() || value == "" {
		return nil
	}
	return label.SetFileLabel(path, value)
}
