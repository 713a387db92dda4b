package devices

// Usb describes a common API to access a Tegra X1 in RCM over USB. Backends
// must report failures using pkg/rcmerr kinds: rcmerr.Timeout for timeouts,
// rcmerr.AccessDenied for permission problems, and rcmerr.Usb for anything
// else. Nothing above this interface sees backend specific errors.
type Usb interface {
	// ClaimInterface takes over interface num from the OS and prepares its
	// bulk endpoints.
	ClaimInterface(num int) error

	// Read does a bulk transfer from EndpointIn.
	Read(buf []byte) (int, error)

	// Write does a bulk transfer to EndpointOut.
	Write(buf []byte) (int, error)

	// Control sends a control request to the device.
	Control(rType, request uint8, val, idx uint16, data []byte) (int, error)

	// Close disposes of this device. No other functions may be called on the
	// interface afterwards.
	Close() error
}
