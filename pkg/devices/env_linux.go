//go:build linux

package devices

import (
	"os"

	"github.com/golang/glog"

	"github.com/nxboot/rcmx/pkg/rcmerr"
)

const (
	udevRules        = "/etc/udev/rules.d/99-switch.rules"
	flatpakUdevRules = "/run/host/etc/udev/rules.d/99-switch.rules"
)

// CheckEnvironment makes sure the udev rules granting unprivileged access to
// the device are installed. It does not need a device to be attached.
func CheckEnvironment() error {
	return checkUdevRules(os.LookupEnv, func(path string) bool {
		_, err := os.Stat(path)
		return err == nil
	})
}

func checkUdevRules(lookupEnv func(string) (string, bool), exists func(string) bool) error {
	if _, ok := lookupEnv(SkipUdevCheckEnv); ok {
		return nil
	}
	path := udevRules
	if _, ok := lookupEnv("FLATPAK_ID"); ok {
		path = flatpakUdevRules
	}
	glog.V(1).Infof("Checking for udev rules at %s", path)
	if !exists(path) {
		return rcmerr.ErrUdevRulesNotFound
	}
	return nil
}
