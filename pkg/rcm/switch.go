// Package rcm runs the Tegra X1 RCM exploit ("fusée gelée") against a
// connected device: it stages a built payload into the boot ROM's DMA
// buffers, then asks for a GET_STATUS reply long enough to overwrite the boot
// ROM's stack with the payload's stack spray.
package rcm

import (
	"github.com/nxboot/rcmx/pkg/devices"
)

// Switch is a device in RCM mode that has been found but not yet exploited.
type Switch struct {
	dev *devices.Handle
}

// Find opens the attached Switch in RCM mode. It returns
// rcmerr.ErrSwitchNotFound if there is none, which is the usual answer while
// waiting for the user to plug one in.
func Find() (*Switch, error) {
	usb, err := devices.Open()
	if err != nil {
		return nil, err
	}
	return New(usb), nil
}

// New wraps an already opened device. Its interface must not be claimed yet.
func New(usb devices.Usb) *Switch {
	return &Switch{
		dev: devices.NewHandle(usb),
	}
}

// Handle claims the device (once) and returns a fresh protocol handle for a
// single Execute.
func (s *Switch) Handle() (*Handle, error) {
	if err := s.dev.Init(); err != nil {
		return nil, err
	}
	return &Handle{
		dev: s.dev,
	}, nil
}

// Close releases the device.
func (s *Switch) Close() error {
	return s.dev.Close()
}
