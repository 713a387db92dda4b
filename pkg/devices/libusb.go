package devices

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/glog"
	"github.com/google/gousb"
	"github.com/hashicorp/go-multierror"

	"github.com/nxboot/rcmx/pkg/rcmerr"
)

// libusb implements Usb on top of gousb. On Windows this requires the device
// to be bound to libusbK, see CheckEnvironment.
type libusb struct {
	ctx *gousb.Context
	dev *gousb.Device

	cfg  *gousb.Config
	intf *gousb.Interface
	in   *gousb.InEndpoint
	out  *gousb.OutEndpoint
}

func newContext() (*gousb.Context, error) {
	resC := make(chan *gousb.Context)
	errC := make(chan error)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				errC <- fmt.Errorf("%v", r)
			}
		}()

		resC <- gousb.NewContext()
	}()

	select {
	case err := <-errC:
		return nil, err
	case res := <-resC:
		return res, nil
	}
}

// Open finds the first attached device in RCM and opens it. It returns
// rcmerr.ErrSwitchNotFound if there is none.
func Open() (Usb, error) {
	ctx, err := newContext()
	if err != nil {
		return nil, rcmerr.UsbErr(fmt.Errorf("failed to initialize USB: %w", err))
	}

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return uint16(desc.Vendor) == VID && uint16(desc.Product) == PID
	})
	if len(devs) == 0 {
		ctx.Close()
		if err != nil {
			return nil, mapError(err)
		}
		return nil, rcmerr.ErrSwitchNotFound
	}
	if err != nil {
		glog.Warningf("Some RCM devices failed to open: %v", err)
	}

	dev := devs[0]
	var errs error
	for _, extra := range devs[1:] {
		glog.Warningf("Ignoring additional RCM device at bus %d address %d", extra.Desc.Bus, extra.Desc.Address)
		if err := extra.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if errs != nil {
		glog.Warningf("Closing additional RCM devices: %v", errs)
	}

	glog.Infof("Found RCM device at bus %d address %d", dev.Desc.Bus, dev.Desc.Address)
	dev.ControlTimeout = Timeout
	return &libusb{ctx: ctx, dev: dev}, nil
}

func (l *libusb) ClaimInterface(num int) error {
	if err := l.dev.SetAutoDetach(true); err != nil {
		glog.V(1).Infof("SetAutoDetach: %v", err)
	}
	cfgNum, err := l.dev.ActiveConfigNum()
	if err != nil {
		return mapError(err)
	}
	cfg, err := l.dev.Config(cfgNum)
	if err != nil {
		return mapError(err)
	}
	intf, err := cfg.Interface(num, 0)
	if err != nil {
		cfg.Close()
		return mapError(err)
	}
	in, err := intf.InEndpoint(EndpointIn & 0x7f)
	if err != nil {
		intf.Close()
		cfg.Close()
		return mapError(err)
	}
	out, err := intf.OutEndpoint(EndpointOut)
	if err != nil {
		intf.Close()
		cfg.Close()
		return mapError(err)
	}
	l.cfg, l.intf, l.in, l.out = cfg, intf, in, out
	return nil
}

func (l *libusb) Read(buf []byte) (int, error) {
	if l.in == nil {
		return 0, rcmerr.UsbErr(errors.New("interface not claimed"))
	}
	ctx, cancel := context.WithTimeout(context.Background(), Timeout)
	defer cancel()
	n, err := l.in.ReadContext(ctx, buf)
	if err != nil {
		return n, mapTransferError(ctx, err)
	}
	return n, nil
}

func (l *libusb) Write(buf []byte) (int, error) {
	if l.out == nil {
		return 0, rcmerr.UsbErr(errors.New("interface not claimed"))
	}
	ctx, cancel := context.WithTimeout(context.Background(), Timeout)
	defer cancel()
	n, err := l.out.WriteContext(ctx, buf)
	if err != nil {
		return n, mapTransferError(ctx, err)
	}
	return n, nil
}

// Control runs a control transfer on the default endpoint. On Linux, ones
// longer than a page bypass libusb, which refuses them.
func (l *libusb) Control(rType, request uint8, val, idx uint16, data []byte) (int, error) {
	if len(data) > maxControlLength {
		return l.largeControl(rType, request, val, idx, data)
	}
	return l.deviceControl(rType, request, val, idx, data)
}

func (l *libusb) deviceControl(rType, request uint8, val, idx uint16, data []byte) (int, error) {
	n, err := l.dev.Control(rType, request, val, idx, data)
	if err != nil {
		return n, mapError(err)
	}
	return n, nil
}

func (l *libusb) Close() error {
	var errs error
	if l.intf != nil {
		l.intf.Close()
		l.intf = nil
	}
	if l.cfg != nil {
		if err := l.cfg.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("when closing config: %w", err))
		}
		l.cfg = nil
	}
	if err := l.dev.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("when closing USB device: %w", err))
	}
	if err := l.ctx.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("when closing context: %w", err))
	}
	return errs
}

// mapTransferError classifies errors from context-bound bulk transfers,
// where an expired deadline can surface as a cancelled transfer.
func mapTransferError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return rcmerr.TimeoutErr(err)
	}
	return mapError(err)
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gousb.ErrorTimeout), errors.Is(err, gousb.TransferTimedOut), errors.Is(err, context.DeadlineExceeded):
		return rcmerr.TimeoutErr(err)
	case errors.Is(err, gousb.ErrorAccess):
		return rcmerr.AccessDeniedErr(err)
	case errors.Is(err, gousb.ErrorNoDevice), errors.Is(err, gousb.ErrorNotFound):
		return fmt.Errorf("%w: %v", rcmerr.ErrSwitchNotFound, err)
	}
	return rcmerr.UsbErr(err)
}
