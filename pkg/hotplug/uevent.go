package hotplug

import (
	"bytes"
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/nxboot/rcmx/pkg/devices"
)

type ueventAction uint8

const (
	ueventUnknown ueventAction = iota
	ueventAdd
	ueventRemove
)

// uevent is a parsed kernel uevent, as broadcast over NETLINK_KOBJECT_UEVENT.
type uevent struct {
	action    ueventAction
	devpath   string
	subsystem string
	devtype   string
	// product is PRODUCT=vid/pid/bcdDevice, all hex without padding.
	product string
}

const (
	udevMagic      = 0xfeedcafe
	udevHeaderSize = 40
)

var udevPrefix = []byte("libudev\x00")

// ueventProperties returns the NUL-separated body of a uevent. Udev
// rebroadcasts events it has processed with a binary header in front, in
// which the properties offset and length are in host byte order.
func ueventProperties(data []byte) []byte {
	if !bytes.HasPrefix(data, udevPrefix) {
		return data
	}
	if len(data) < udevHeaderSize || binary.BigEndian.Uint32(data[8:12]) != udevMagic {
		return nil
	}
	off := uint64(binary.NativeEndian.Uint32(data[16:20]))
	n := uint64(binary.NativeEndian.Uint32(data[20:24]))
	if off < udevHeaderSize || off+n > uint64(len(data)) {
		return nil
	}
	return data[off : off+n]
}

func parseUEvent(data []byte) uevent {
	evt := uevent{}
	for _, line := range bytes.Split(ueventProperties(data), []byte{0}) {
		if len(line) == 0 {
			continue
		}
		s := string(line)

		idx := strings.IndexByte(s, '=')
		if idx < 0 {
			// Header line, action@devpath.
			if action, devpath, ok := strings.Cut(s, "@"); ok {
				evt.action = parseAction(action)
				evt.devpath = devpath
			}
			continue
		}

		key, value := s[:idx], s[idx+1:]
		switch key {
		case "ACTION":
			evt.action = parseAction(value)
		case "DEVPATH":
			evt.devpath = value
		case "SUBSYSTEM":
			evt.subsystem = value
		case "DEVTYPE":
			evt.devtype = value
		case "PRODUCT":
			evt.product = value
		}
	}
	return evt
}

func parseAction(s string) ueventAction {
	switch s {
	case "add":
		return ueventAdd
	case "remove":
		return ueventRemove
	}
	return ueventUnknown
}

// isRCM reports whether the event is about a whole USB device (not one of
// its interfaces) in RCM mode.
func (u *uevent) isRCM() bool {
	if u.subsystem != "usb" || u.devtype != "usb_device" {
		return false
	}
	parts := strings.Split(u.product, "/")
	if len(parts) < 2 {
		return false
	}
	vid, err := strconv.ParseUint(parts[0], 16, 16)
	if err != nil {
		return false
	}
	pid, err := strconv.ParseUint(parts[1], 16, 16)
	if err != nil {
		return false
	}
	return uint16(vid) == devices.VID && uint16(pid) == devices.PID
}
