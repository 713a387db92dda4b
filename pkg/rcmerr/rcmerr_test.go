package rcmerr

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestIsThroughWrapping(t *testing.T) {
	err := fmt.Errorf("opening device: %w", BadInterfaceErr(0, io.ErrUnexpectedEOF))
	if !errors.Is(err, ErrBadInterface) {
		t.Fatalf("errors.Is(%v, ErrBadInterface) = false", err)
	}
	if errors.Is(err, ErrSwitchNotFound) {
		t.Fatalf("errors.Is(%v, ErrSwitchNotFound) = true", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("cause not reachable through %v", err)
	}
}

func TestAsKeepsField(t *testing.T) {
	err := fmt.Errorf("environment: %w", WrongDriverErr("WinUSB"))
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("errors.As failed on %v", err)
	}
	if want, got := "WinUSB", e.Driver; want != got {
		t.Errorf("Driver: wanted %q, got %q", want, got)
	}
	if want, got := WrongDriver, KindOf(err); want != got {
		t.Errorf("KindOf: wanted %s, got %s", want, got)
	}
}

func TestUsbErr(t *testing.T) {
	if UsbErr(nil) != nil {
		t.Fatalf("UsbErr(nil) should be nil")
	}
	if want, got := Usb, KindOf(UsbErr(io.EOF)); want != got {
		t.Errorf("wanted %s, got %s", want, got)
	}
	// Already classified errors are kept as they are.
	if want, got := Timeout, KindOf(UsbErr(ErrTimeout)); want != got {
		t.Errorf("wanted %s, got %s", want, got)
	}
	if want, got := Other, KindOf(io.EOF); want != got {
		t.Errorf("wanted %s, got %s", want, got)
	}
}

func TestPayloadLengthMessages(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want string
	}{
		{PayloadTooShortErr(10), "invalid payload size: 10 (expected >= 16384)"},
		{PayloadTooLongErr(183640), "invalid payload size: 183640 (expected < 183640)"},
	} {
		if got := tc.err.Error(); got != tc.want {
			t.Errorf("wanted %q, got %q", tc.want, got)
		}
	}
}
