package loop

import (
	"fmt"
	"os"
	"syscall"
	"testing"
)

func TestLoop(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("loop device attach requires root")
	}

	info := &Info64{
		Flags: FlagsAutoClear | FlagsReadOnly,
	}
	loopDevOne := &Device{
		MaxLoopDevices: DefaultMaxLoopDevices,
		Info:           info,
	}
	defer loopDevOne.Close()
	loopDevTwo := &Device{
		MaxLoopDevices: DefaultMaxLoopDevices,
		Info:           info,
	}
	defer loopDevTwo.Close()

	loopOne := -1
	loopTwo := -1

	// With wrong path and file pointer
	if err := loopDevOne.AttachFromPath("", os.O_RDONLY, &loopOne); err == nil {
		t.Errorf("unexpected success with a wrong path")
	}
	if err := loopDevOne.AttachFromFile(nil, os.O_RDONLY, &loopOne); err == nil {
		t.Errorf("unexpected success with a nil file pointer")
	}

	// With good file
	if err := loopDevOne.AttachFromPath("/etc/passwd", os.O_RDONLY, &loopOne); err != nil {
		t.Error(err)
	}

	f, err := os.Open("/etc/passwd")
	if err != nil {
		t.Error(err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		t.Error(err)
	}

	// With correct file pointer
	if err := loopDevTwo.AttachFromFile(f, os.O_RDONLY, &loopTwo); err != nil {
		t.Error(err)
	}
	if loopOne == loopTwo {
		t.Errorf("attached to the same loop block device /dev/loop%d", loopOne)
	}

	// Test if loop device matches associated file
	if _, err := GetStatusFromPath(""); err == nil {
		t.Errorf("unexpected success while returning status with non existent loop device")
	}

	path := fmt.Sprintf("/dev/loop%d", loopTwo)
	status, err := GetStatusFromPath(path)
	if err != nil {
		t.Error(err)
	}

	loopDevTwo.Close()

	st := fi.Sys().(*syscall.Stat_t)
	// cast to uint64 as st.Dev is uint32 on MIPS
	if uint64(st.Dev) != status.Device || st.Ino != status.Inode {
		t.Errorf("bad file association for %s", path)
	}

	// With MaxLoopDevices set to zero
	loopDevTwo.MaxLoopDevices = 0
	if err := loopDevTwo.AttachFromPath("/etc/group", os.O_RDONLY, &loopTwo); err == nil {
		t.Errorf("unexpected success with MaxLoopDevices = 0")
	}
}

func TestAttachDefaultsInfoFromImage(t *testing.T) {
	dev := &Device{MaxLoopDevices: 0}
	number := -1
	f, err := os.Open(os.DevNull)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	// MaxLoopDevices 0 guarantees the scan itself fails, but the default
	// Info must already have been filled in from the image.
	if err := dev.AttachFromFile(f, os.O_RDONLY, &number); err == nil {
		t.Fatalf("unexpected success with MaxLoopDevices = 0")
	}
	if dev.Info == nil {
		t.Fatalf("expected default Info64 to be populated")
	}
	if dev.Info.Flags&FlagsReadOnly == 0 {
		t.Errorf("expected read-only flag for O_RDONLY attach")
	}
}
