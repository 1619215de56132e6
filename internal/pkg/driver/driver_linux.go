// Package driver talks to the optional root-side unmount hint channel.
// Its absence is silently tolerated everywhere it is consulted.
package driver

import (
	"runtime"
	"sync"
	"unsafe"

	"github.com/modmount/modmount/pkg/sylog"
	"golang.org/x/sys/unix"
)

// magic1/magic2 distinguish the driver-probe reboot(2) call from a real
// reboot request; the root driver intercepts the pair and writes its fd
// through the fourth argument instead of restarting anything.
const (
	magic1 = 0xDEADBEEF
	magic2 = 0xCAFEBABE

	ioctlAddTryUmount = 0x40004b12
)

// addTryUmount is the driver's ioctl payload: a pointer to the
// NUL-terminated path, the umount flags to use, and the registration
// mode.
type addTryUmount struct {
	arg   uint64
	flags uint32
	mode  uint8
}

var (
	once   sync.Once
	fd     int
	hasDrv bool
)

// probe attempts to obtain the root-driver fd via the distinguished
// reboot(magic1, magic2, 0, &fd) call.
func probe() {
	var out int32 = -1
	unix.Syscall6(unix.SYS_REBOOT, uintptr(magic1), uintptr(magic2), 0,
		uintptr(unsafe.Pointer(&out)), 0, 0)
	fd = int(out)
	hasDrv = fd >= 0
}

// RegisterUnmountable hints the optional root-side driver that path
// should be unmounted in app namespaces that opt out. A missing driver
// is silently ignored.
func RegisterUnmountable(path string) {
	once.Do(probe)
	if !hasDrv || path == "" {
		return
	}

	b := append([]byte(path), 0)
	cmd := addTryUmount{
		arg:   uint64(uintptr(unsafe.Pointer(&b[0]))),
		flags: 2, // MNT_DETACH
		mode:  1,
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), ioctlAddTryUmount, uintptr(unsafe.Pointer(&cmd)))
	runtime.KeepAlive(b)
	if errno != 0 {
		sylog.Debugf("driver: register %s: %v", path, errno)
	}
}
