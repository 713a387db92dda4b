//go:build !linux

package hotplug

import (
	"errors"

	"github.com/nxboot/rcmx/pkg/rcmerr"
)

// DefaultBackend is the backend used when Options.Backend is empty.
const DefaultBackend = Notify

func newNativeWatcher() (watcher, error) {
	return nil, rcmerr.NotSupportedErr(errors.New("native hotplug requires Linux"))
}
