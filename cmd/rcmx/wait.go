package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nxboot/rcmx/pkg/hotplug"
	"github.com/nxboot/rcmx/pkg/rcm"
	"github.com/nxboot/rcmx/pkg/rcmerr"
)

// findSwitch looks for a Switch once, or until one shows up if wait is set.
func findSwitch(ctx context.Context, wait bool) (*rcm.Switch, error) {
	sw, err := rcm.Find()
	if !wait || !errors.Is(err, rcmerr.ErrSwitchNotFound) {
		return sw, err
	}

	slog.Info("Waiting for a Switch in RCM mode...")
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := hotplug.Subscribe(ctx, hotplug.Options{})
	if errors.Is(err, rcmerr.ErrNotSupported) {
		slog.Debug("Hotplug unavailable, polling", "err", err)
		return pollSwitch(ctx)
	}
	if err != nil {
		return nil, err
	}
	return awaitArrival(ctx, events)
}

var errWatcherStopped = errors.New("hotplug watcher stopped")

// awaitArrival returns the first Switch to arrive. It never returns a nil
// Switch without an error, even if the watcher gives up on its own.
func awaitArrival(ctx context.Context, events <-chan hotplug.Event) (*rcm.Switch, error) {
	for ev := range events {
		switch ev.Kind {
		case hotplug.Arrived:
			return ev.Switch, nil
		case hotplug.Error:
			return nil, ev.Err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, errWatcherStopped
}

func pollSwitch(ctx context.Context) (*rcm.Switch, error) {
	for {
		sw, err := rcm.Find()
		if !errors.Is(err, rcmerr.ErrSwitchNotFound) {
			return sw, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
}
