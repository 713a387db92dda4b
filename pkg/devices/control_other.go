//go:build !linux

package devices

// Only usbfs limits the size of a control transfer.
const maxControlLength = 1 << 16

func (l *libusb) largeControl(rType, request uint8, val, idx uint16, data []byte) (int, error) {
	return l.deviceControl(rType, request, val, idx, data)
}
