package devices

import (
	"strings"

	"github.com/nxboot/rcmx/pkg/rcmerr"
)

// checkDriver accepts the services bound to known instances of the device if
// any of them is libusbK. Windows keeps entries for every port the device has
// ever been plugged into, so one stale binding is not an error.
func checkDriver(services []string) error {
	if len(services) == 0 {
		return nil
	}
	for _, s := range services {
		if strings.EqualFold(s, "libusbK") {
			return nil
		}
	}
	return rcmerr.WrongDriverErr(services[0])
}
