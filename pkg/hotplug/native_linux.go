//go:build linux

package hotplug

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/golang/glog"
	"golang.org/x/sys/unix"

	"github.com/nxboot/rcmx/pkg/rcmerr"
)

// DefaultBackend is the backend used when Options.Backend is empty.
const DefaultBackend = Native

const (
	ueventGroupKernel = 1
	// Udev rebroadcasts events here once its rules (and so device node
	// permissions) have been applied.
	ueventGroupUdev  = 2
	udevControl      = "/run/udev/control"
	ueventBufferSize = 8192
	// How often the read loop checks for cancellation.
	pollTimeoutMs = 250
)

type nativeWatcher struct {
	fd  int
	buf [ueventBufferSize]byte
}

func newNativeWatcher() (watcher, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, rcmerr.NotSupportedErr(fmt.Errorf("creating uevent socket: %w", err))
	}
	addr := unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Groups: ueventGroup(),
	}
	if err := unix.Bind(fd, &addr); err != nil {
		unix.Close(fd)
		return nil, rcmerr.NotSupportedErr(fmt.Errorf("binding uevent socket: %w", err))
	}
	return &nativeWatcher{fd: fd}, nil
}

// ueventGroup picks udev's group when udevd runs, as opening a device on the
// raw kernel event races with udev fixing up its permissions. Without udevd
// (e.g. in containers) only the kernel group carries anything.
func ueventGroup() uint32 {
	if _, err := os.Stat(udevControl); err == nil {
		return ueventGroupUdev
	}
	glog.V(1).Infof("udevd not running, listening to kernel uevents")
	return ueventGroupKernel
}

func (w *nativeWatcher) close() error {
	return unix.Close(w.fd)
}

func (w *nativeWatcher) run(ctx context.Context, e *emitter) error {
	// A device plugged in before we started listening never sends an add.
	e.rescan()

	fds := []unix.PollFd{{Fd: int32(w.fd), Events: unix.POLLIN}}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := unix.Poll(fds, pollTimeoutMs)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("polling uevent socket: %w", err)
		}
		if n == 0 {
			continue
		}
		if err := w.drain(e); err != nil {
			return err
		}
	}
}

// drain handles all queued uevents.
func (w *nativeWatcher) drain(e *emitter) error {
	for {
		n, _, err := unix.Recvfrom(w.fd, w.buf[:], 0)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				return nil
			}
			if errors.Is(err, unix.ENOBUFS) {
				// Overrun, we lost events. Find out where we stand.
				glog.Warningf("Uevent socket overrun, rescanning")
				e.rescan()
				continue
			}
			return fmt.Errorf("reading uevent socket: %w", err)
		}
		if n <= 0 {
			return nil
		}

		evt := parseUEvent(w.buf[:n])
		if !evt.isRCM() {
			continue
		}
		glog.V(1).Infof("Uevent for %s (%s)", evt.devpath, evt.product)
		switch evt.action {
		case ueventAdd:
			e.arrived()
		case ueventRemove:
			e.left()
		}
	}
}
