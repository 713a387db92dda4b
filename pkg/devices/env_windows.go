//go:build windows

package devices

import (
	"errors"
	"fmt"

	"github.com/golang/glog"
	"golang.org/x/sys/windows/registry"
)

// CheckEnvironment makes sure the device is bound to libusbK. The stock
// driver Windows installs for it can't do the raw bulk and control transfers
// RCM needs.
func CheckEnvironment() error {
	enumKey := fmt.Sprintf(`SYSTEM\CurrentControlSet\Enum\USB\VID_%04X&PID_%04X`, VID, PID)
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, enumKey, registry.ENUMERATE_SUB_KEYS)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			// Never plugged in, nothing to check yet.
			return nil
		}
		glog.Warningf("Could not open %s: %v", enumKey, err)
		return nil
	}
	defer k.Close()

	instances, err := k.ReadSubKeyNames(-1)
	if err != nil {
		glog.Warningf("Could not list %s: %v", enumKey, err)
		return nil
	}
	var services []string
	for _, instance := range instances {
		ik, err := registry.OpenKey(k, instance, registry.QUERY_VALUE)
		if err != nil {
			continue
		}
		service, _, err := ik.GetStringValue("Service")
		ik.Close()
		if err != nil {
			continue
		}
		glog.V(1).Infof("RCM device instance %s bound to %s", instance, service)
		services = append(services, service)
	}
	return checkDriver(services)
}
