//go:build linux

package devices

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/nxboot/rcmx/pkg/rcmerr"
)

func TestControlSetup(t *testing.T) {
	buf := controlSetup(requestTypeGetStatus, requestGetStatus, 0, 0, 0x7000)
	if want, got := controlSetupSize+0x7000, len(buf); want != got {
		t.Fatalf("wanted %d bytes, got %d", want, got)
	}
	want := []byte{0x82, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x70}
	if got := buf[:controlSetupSize]; !bytes.Equal(want, got) {
		t.Fatalf("wanted setup packet %x, got %x", want, got)
	}

	buf = controlSetup(0x40, 0x05, 0x1234, 0xabcd, 0)
	want = []byte{0x40, 0x05, 0x34, 0x12, 0xcd, 0xab, 0x00, 0x00}
	if !bytes.Equal(want, buf) {
		t.Fatalf("wanted setup packet %x, got %x", want, buf)
	}
}

func TestUsbfsPath(t *testing.T) {
	if want, got := "/dev/bus/usb/001/007", usbfsPath(1, 7); want != got {
		t.Fatalf("wanted %q, got %q", want, got)
	}
	if want, got := "/dev/bus/usb/012/114", usbfsPath(12, 114); want != got {
		t.Fatalf("wanted %q, got %q", want, got)
	}
}

func TestIoctlNumbers(t *testing.T) {
	submit, reap, reapNDelay := uintptr(0x8038550a), uintptr(0x4008550c), uintptr(0x4008550d)
	if unsafe.Sizeof(uintptr(0)) == 4 {
		submit, reap, reapNDelay = 0x802c550a, 0x4004550c, 0x4004550d
	}
	for _, tc := range []struct {
		name      string
		want, got uintptr
	}{
		{"submit", submit, ioctlSubmitURB},
		{"discard", 0x550b, ioctlDiscardURB},
		{"reap", reap, ioctlReapURB},
		{"reap ndelay", reapNDelay, ioctlReapURBNDelay},
	} {
		if tc.want != tc.got {
			t.Errorf("%s: wanted %#x, got %#x", tc.name, tc.want, tc.got)
		}
	}
}

func TestUsbfsControlErrors(t *testing.T) {
	data := make([]byte, 0x7000)

	_, err := usbfsControl(filepath.Join(t.TempDir(), "missing"), requestTypeGetStatus, requestGetStatus, 0, 0, data, Timeout)
	if !errors.Is(err, rcmerr.ErrSwitchNotFound) {
		t.Fatalf("wanted SwitchNotFound for a missing node, got %v", err)
	}

	// Not a usbfs node, so the submit ioctl fails outright.
	path := filepath.Join(t.TempDir(), "node")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	_, err = usbfsControl(path, requestTypeGetStatus, requestGetStatus, 0, 0, data, Timeout)
	if err == nil {
		t.Fatalf("wanted an error, got nil")
	}
	if errors.Is(err, rcmerr.ErrTimeout) {
		t.Fatalf("a failed submit must not look like a timeout, got %v", err)
	}
	if !errors.Is(err, rcmerr.ErrUsb) {
		t.Fatalf("wanted Usb error, got %v", err)
	}

	_, err = usbfsControl(path, requestTypeGetStatus, requestGetStatus, 0, 0, make([]byte, 0x10000), Timeout)
	if !errors.Is(err, rcmerr.ErrUsb) {
		t.Fatalf("wanted Usb error for an oversized transfer, got %v", err)
	}
}
