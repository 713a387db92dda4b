//go:build !linux && !windows

package devices

// CheckEnvironment has nothing to validate on this platform.
func CheckEnvironment() error {
	return nil
}
