package devices

import (
	"time"

	"github.com/golang/glog"

	"github.com/nxboot/rcmx/pkg/rcmerr"
)

// USB identity and wire surface of a Tegra X1 in RCM mode.
const (
	VID uint16 = 0x0955
	PID uint16 = 0x7321

	Interface   = 0
	EndpointIn  = 0x81
	EndpointOut = 0x01

	// Timeout applies to every transfer, including the trigger.
	Timeout = time.Second
)

// SkipUdevCheckEnv disables the Linux udev rules check when set, for sandboxes
// where the host's rules directory isn't visible.
const SkipUdevCheckEnv = "RCMX_SKIP_UDEV_CHECK"

const (
	// Standard device-to-host request, recipient endpoint.
	requestTypeGetStatus uint8 = 0x82
	requestGetStatus     uint8 = 0x00
)

// Handle is an open connection to a device in RCM. The interface gets
// claimed on the first Init, and never again.
type Handle struct {
	usb     Usb
	claimed bool

	// validate runs after every Init. Defaults to CheckEnvironment.
	validate func() error
}

func NewHandle(usb Usb) *Handle {
	return &Handle{
		usb:      usb,
		validate: CheckEnvironment,
	}
}

// Init claims the RCM interface if it wasn't already, then validates the
// host environment.
func (h *Handle) Init() error {
	if !h.claimed {
		if err := h.usb.ClaimInterface(Interface); err != nil {
			if rcmerr.KindOf(err) == rcmerr.AccessDenied {
				return err
			}
			return rcmerr.BadInterfaceErr(Interface, err)
		}
		h.claimed = true
		glog.V(1).Infof("Claimed interface %d", Interface)
	}
	return h.validate()
}

// Claimed reports whether Init has claimed the interface.
func (h *Handle) Claimed() bool {
	return h.claimed
}

// Read does a bulk IN transfer on EndpointIn.
func (h *Handle) Read(buf []byte) (int, error) {
	return h.usb.Read(buf)
}

// Write does a bulk OUT transfer on EndpointOut.
func (h *Handle) Write(buf []byte) (int, error) {
	return h.usb.Write(buf)
}

// Trigger issues a GET_STATUS control read of length bytes. On a vulnerable
// boot ROM this copies length bytes out of the DMA buffer onto its own
// stack.
func (h *Handle) Trigger(length int) error {
	buf := make([]byte, length)
	_, err := h.usb.Control(requestTypeGetStatus, requestGetStatus, 0, 0, buf)
	return err
}

// Close releases the device. The handle can't be used afterwards.
func (h *Handle) Close() error {
	return h.usb.Close()
}
