// Package rcmerr is the error taxonomy shared by every rcmx package.
//
// Errors carry a Kind and, depending on the kind, one distinguishing field
// (interface number, installed driver, payload length or path). Callers
// branch with errors.Is against the Err* sentinels, or errors.As into *Error
// when they need the field, e.g. to show remediation instructions.
package rcmerr

import (
	"errors"
	"fmt"
)

// Kind is the class of an rcmx failure.
type Kind uint8

const (
	// Other is never produced by rcmx itself; it is what KindOf returns for
	// foreign errors.
	Other Kind = iota
	// SwitchNotFound means no device with the RCM VID/PID is attached. This
	// is a steady-state result, not a failure.
	SwitchNotFound
	// AccessDenied means the OS refused to open or claim the device.
	AccessDenied
	// BadInterface means the device is present but its interface could not
	// be claimed.
	BadInterface
	// WrongDriver means the device is bound to a driver the backend cannot
	// speak to (Windows only).
	WrongDriver
	// UdevRulesNotFound means the udev rules granting device access are not
	// installed (Linux only).
	UdevRulesNotFound
	PayloadTooShort
	PayloadTooLong
	// PayloadRead means the payload file could not be read.
	PayloadRead
	// RCMExpectedError means the overflow trigger did not time out, so the
	// injected code did not take over the device.
	RCMExpectedError
	// Timeout is a USB transfer timeout.
	Timeout
	// NotSupported means the host has no usable hotplug mechanism.
	NotSupported
	// HandleConsumed means Execute was called on a handle that already ran.
	HandleConsumed
	// Usb is any other transport error reported by the backend.
	Usb
)

func (k Kind) String() string {
	switch k {
	case Other:
		return "other"
	case SwitchNotFound:
		return "switch not found"
	case AccessDenied:
		return "access denied"
	case BadInterface:
		return "bad interface"
	case WrongDriver:
		return "wrong driver"
	case UdevRulesNotFound:
		return "udev rules not found"
	case PayloadTooShort:
		return "payload too short"
	case PayloadTooLong:
		return "payload too long"
	case PayloadRead:
		return "payload read"
	case RCMExpectedError:
		return "rcm expected error"
	case Timeout:
		return "timeout"
	case NotSupported:
		return "not supported"
	case HandleConsumed:
		return "handle consumed"
	case Usb:
		return "usb"
	}
	return "UNKNOWN"
}

// Limits reported in payload length errors. They mirror the payload
// package's constants; rcmerr can't import it without a cycle.
const (
	payloadMinLength = 0x4000
	payloadMaxLength = 183640
)

// Error is an rcmx failure. Only the field matching Kind is meaningful.
type Error struct {
	Kind Kind

	Interface uint8
	Driver    string
	Length    int
	Path      string

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	switch e.Kind {
	case SwitchNotFound:
		return "Nintendo Switch in RCM mode not found"
	case AccessDenied:
		if e.Err != nil {
			return fmt.Sprintf("access denied (insufficient permissions): %v", e.Err)
		}
		return "access denied (insufficient permissions)"
	case BadInterface:
		if e.Err != nil {
			return fmt.Sprintf("unable to claim interface %d: %v", e.Interface, e.Err)
		}
		return fmt.Sprintf("unable to claim interface %d", e.Interface)
	case WrongDriver:
		return fmt.Sprintf("wrong USB driver installed: %q (expected libusbK)", e.Driver)
	case UdevRulesNotFound:
		return "udev rules for the Switch not found"
	case PayloadTooShort:
		return fmt.Sprintf("invalid payload size: %d (expected >= %d)", e.Length, payloadMinLength)
	case PayloadTooLong:
		return fmt.Sprintf("invalid payload size: %d (expected < %d)", e.Length, payloadMaxLength)
	case PayloadRead:
		return fmt.Sprintf("could not read payload %q: %v", e.Path, e.Err)
	case RCMExpectedError:
		if e.Err != nil {
			return fmt.Sprintf("expected timeout error after smashing the stack, got: %v", e.Err)
		}
		return "expected timeout error after smashing the stack"
	case Timeout:
		if e.Err != nil {
			return fmt.Sprintf("USB timeout error: %v", e.Err)
		}
		return "USB timeout error"
	case NotSupported:
		if e.Err != nil {
			return fmt.Sprintf("hotplug not supported: %v", e.Err)
		}
		return "hotplug not supported"
	case HandleConsumed:
		return "handle already executed, find the device again"
	case Usb:
		return fmt.Sprintf("usb: %v", e.Err)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, regardless of its fields.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrSwitchNotFound    = &Error{Kind: SwitchNotFound}
	ErrAccessDenied      = &Error{Kind: AccessDenied}
	ErrBadInterface      = &Error{Kind: BadInterface}
	ErrWrongDriver       = &Error{Kind: WrongDriver}
	ErrUdevRulesNotFound = &Error{Kind: UdevRulesNotFound}
	ErrPayloadTooShort   = &Error{Kind: PayloadTooShort}
	ErrPayloadTooLong    = &Error{Kind: PayloadTooLong}
	ErrPayloadRead       = &Error{Kind: PayloadRead}
	ErrRCMExpectedError  = &Error{Kind: RCMExpectedError}
	ErrTimeout           = &Error{Kind: Timeout}
	ErrNotSupported      = &Error{Kind: NotSupported}
	ErrHandleConsumed    = &Error{Kind: HandleConsumed}
	ErrUsb               = &Error{Kind: Usb}
)

func AccessDeniedErr(err error) error {
	return &Error{Kind: AccessDenied, Err: err}
}

func BadInterfaceErr(n uint8, err error) error {
	return &Error{Kind: BadInterface, Interface: n, Err: err}
}

func WrongDriverErr(installed string) error {
	return &Error{Kind: WrongDriver, Driver: installed}
}

func PayloadTooShortErr(length int) error {
	return &Error{Kind: PayloadTooShort, Length: length}
}

func PayloadTooLongErr(length int) error {
	return &Error{Kind: PayloadTooLong, Length: length}
}

func PayloadReadErr(path string, err error) error {
	return &Error{Kind: PayloadRead, Path: path, Err: err}
}

// RCMExpectedErr records what the trigger returned instead of a timeout;
// err is nil if it succeeded.
func RCMExpectedErr(err error) error {
	return &Error{Kind: RCMExpectedError, Err: err}
}

func TimeoutErr(err error) error {
	return &Error{Kind: Timeout, Err: err}
}

func NotSupportedErr(err error) error {
	return &Error{Kind: NotSupported, Err: err}
}

// UsbErr wraps an opaque backend error. Errors that already belong to the
// taxonomy are returned unchanged.
func UsbErr(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: Usb, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or Other.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Other
}
