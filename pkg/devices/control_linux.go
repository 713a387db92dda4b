//go:build linux

package devices

import (
	"encoding/binary"
	"errors"
	"fmt"
	"runtime"
	"time"
	"unsafe"

	"github.com/golang/glog"
	"golang.org/x/sys/unix"

	"github.com/nxboot/rcmx/pkg/rcmerr"
)

// usbfs caps synchronous control transfers (and so libusb's) at one page.
// Bigger ones have to go through a URB submitted straight to the device node.
const maxControlLength = 4096

const (
	iocNone  = 0
	iocWrite = 1
	iocRead  = 2

	iocNRShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return dir<<iocDirShift | typ<<iocTypeShift | nr<<iocNRShift | size<<iocSizeShift
}

// usbfsURB mirrors struct usbdevfs_urb, without the trailing iso descriptors.
type usbfsURB struct {
	typ          uint8
	endpoint     uint8
	status       int32
	flags        uint32
	buffer       uintptr
	bufferLength int32
	actualLength int32
	startFrame   int32
	streamID     uint32
	errorCount   int32
	signr        uint32
	userContext  uintptr
}

const urbTypeControl = 2

const controlSetupSize = 8

var (
	ioctlSubmitURB     = ioc(iocRead, 'U', 10, unsafe.Sizeof(usbfsURB{}))
	ioctlDiscardURB    = ioc(iocNone, 'U', 11, 0)
	ioctlReapURB       = ioc(iocWrite, 'U', 12, unsafe.Sizeof(uintptr(0)))
	ioctlReapURBNDelay = ioc(iocWrite, 'U', 13, unsafe.Sizeof(uintptr(0)))
)

func usbfsPath(bus, address int) string {
	return fmt.Sprintf("/dev/bus/usb/%03d/%03d", bus, address)
}

// controlSetup returns a control URB buffer: the setup packet followed by room
// for length bytes of data.
func controlSetup(rType, request uint8, val, idx, length uint16) []byte {
	buf := make([]byte, controlSetupSize+int(length))
	buf[0] = rType
	buf[1] = request
	binary.LittleEndian.PutUint16(buf[2:], val)
	binary.LittleEndian.PutUint16(buf[4:], idx)
	binary.LittleEndian.PutUint16(buf[6:], length)
	return buf
}

func (l *libusb) largeControl(rType, request uint8, val, idx uint16, data []byte) (int, error) {
	path := usbfsPath(l.dev.Desc.Bus, l.dev.Desc.Address)
	glog.V(2).Infof("Control transfer of %d bytes through %s", len(data), path)
	return usbfsControl(path, rType, request, val, idx, data, Timeout)
}

// usbfsControl runs a single control transfer on a usbfs device node. A
// transfer that doesn't complete within timeout is cancelled and reported as
// rcmerr.Timeout.
func usbfsControl(path string, rType, request uint8, val, idx uint16, data []byte, timeout time.Duration) (int, error) {
	if len(data) > 0xffff {
		return 0, rcmerr.UsbErr(fmt.Errorf("control transfer of %d bytes exceeds wLength", len(data)))
	}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return 0, mapErrno(fmt.Errorf("open %s: %w", path, err))
	}
	defer unix.Close(fd)

	in := rType&0x80 != 0
	buf := controlSetup(rType, request, val, idx, uint16(len(data)))
	if !in {
		copy(buf[controlSetupSize:], data)
	}
	u := &usbfsURB{
		typ:          urbTypeControl,
		buffer:       uintptr(unsafe.Pointer(&buf[0])),
		bufferLength: int32(len(buf)),
	}
	if err := ioctlURB(fd, ioctlSubmitURB, uintptr(unsafe.Pointer(u))); err != nil {
		return 0, mapErrno(fmt.Errorf("submitting control URB: %w", err))
	}
	n, err := awaitURB(fd, u, timeout)
	// The kernel holds on to both until the URB is reaped.
	runtime.KeepAlive(u)
	runtime.KeepAlive(buf)
	if in && n > 0 {
		copy(data, buf[controlSetupSize:controlSetupSize+n])
	}
	return n, err
}

// awaitURB waits for u to complete, discarding it once timeout passes.
func awaitURB(fd int, u *usbfsURB, timeout time.Duration) (int, error) {
	want := uintptr(unsafe.Pointer(u))
	deadline := time.Now().Add(timeout)
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, cancelURB(fd, u)
		}
		if _, err := unix.Poll(fds, int(remaining/time.Millisecond)+1); err != nil && !errors.Is(err, unix.EINTR) {
			cancelURB(fd, u)
			return 0, rcmerr.UsbErr(fmt.Errorf("polling %d: %w", fd, err))
		}

		var got uintptr
		err := ioctlURB(fd, ioctlReapURBNDelay, uintptr(unsafe.Pointer(&got)))
		switch {
		case errors.Is(err, unix.EAGAIN):
			continue
		case err != nil:
			return 0, mapErrno(fmt.Errorf("reaping control URB: %w", err))
		case got != want:
			glog.Warningf("Reaped foreign URB %#x", got)
			continue
		}
		if u.status != 0 {
			return int(u.actualLength), mapErrno(fmt.Errorf("control URB failed: %w", unix.Errno(-u.status)))
		}
		return int(u.actualLength), nil
	}
}

// cancelURB discards u and waits for the kernel to hand it back.
func cancelURB(fd int, u *usbfsURB) error {
	if err := ioctlURB(fd, ioctlDiscardURB, uintptr(unsafe.Pointer(u))); err != nil {
		// EINVAL means it completed in the meantime; it still needs reaping.
		glog.V(2).Infof("Discarding control URB: %v", err)
	}
	var got uintptr
	if err := ioctlURB(fd, ioctlReapURB, uintptr(unsafe.Pointer(&got))); err != nil {
		glog.Warningf("Reaping discarded control URB: %v", err)
	}
	return rcmerr.TimeoutErr(errors.New("control transfer timed out"))
}

func ioctlURB(fd int, req, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, arg)
	if errno != 0 {
		return errno
	}
	return nil
}

func mapErrno(err error) error {
	switch {
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return rcmerr.AccessDeniedErr(err)
	case errors.Is(err, unix.ENODEV), errors.Is(err, unix.ENOENT):
		return fmt.Errorf("%w: %v", rcmerr.ErrSwitchNotFound, err)
	case errors.Is(err, unix.ETIMEDOUT):
		return rcmerr.TimeoutErr(err)
	}
	return rcmerr.UsbErr(err)
}
