// Package hotplug reports a Switch in RCM mode arriving and leaving, so that
// callers don't have to poll rcm.Find.
//
// Two backends exist: Native listens to kernel uevents over netlink (Linux
// only), Notify watches the USB device node directory with fsnotify and
// re-runs the finder on every change. Both deliver the same Events.
package hotplug

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/glog"

	"github.com/nxboot/rcmx/pkg/rcm"
	"github.com/nxboot/rcmx/pkg/rcmerr"
)

type EventKind uint8

const (
	// Arrived carries a freshly opened Switch, already claimed and
	// validated. The receiver owns it and must Close it.
	Arrived EventKind = iota
	// Left means the device is gone.
	Left
	// Error means a device is present but unusable, e.g. its interface
	// can't be claimed or the environment is misconfigured.
	Error
)

func (k EventKind) String() string {
	switch k {
	case Arrived:
		return "arrived"
	case Left:
		return "left"
	case Error:
		return "error"
	}
	return "UNKNOWN"
}

type Event struct {
	Kind   EventKind
	Switch *rcm.Switch
	Err    error
}

type Backend string

const (
	Native Backend = "native"
	Notify Backend = "notify"
)

// ParseBackend parses a backend name as accepted on the command line.
func ParseBackend(s string) (Backend, error) {
	switch Backend(s) {
	case Native, Notify:
		return Backend(s), nil
	}
	return "", fmt.Errorf("unknown hotplug backend %q (one of: %s, %s)", s, Native, Notify)
}

// Finder opens the device, see rcm.Find.
type Finder func() (*rcm.Switch, error)

type Options struct {
	// Backend defaults to DefaultBackend.
	Backend Backend
	// Finder defaults to rcm.Find.
	Finder Finder
	// Callback, if set, runs on the watcher goroutine after every delivered
	// event. It must not block, and must not wait for the watcher to stop.
	Callback func()
	// DevicePath is the directory the Notify backend watches. Defaults to
	// /dev/bus/usb.
	DevicePath string
}

const defaultDevicePath = "/dev/bus/usb"

type watcher interface {
	run(ctx context.Context, e *emitter) error
	close() error
}

func newWatcher(opts *Options) (watcher, error) {
	switch opts.Backend {
	case Native:
		return newNativeWatcher()
	case Notify:
		return newNotifyWatcher(opts.DevicePath)
	}
	return nil, fmt.Errorf("unknown hotplug backend %q", opts.Backend)
}

func (o Options) withDefaults() Options {
	if o.Backend == "" {
		o.Backend = DefaultBackend
	}
	if o.Finder == nil {
		o.Finder = rcm.Find
	}
	if o.DevicePath == "" {
		o.DevicePath = defaultDevicePath
	}
	return o
}

// Watch delivers events to events until ctx is done. It returns
// rcmerr.ErrNotSupported right away if the backend can't run on this host,
// in which case callers should fall back to polling rcm.Find.
func Watch(ctx context.Context, opts Options, events chan<- Event) error {
	opts = opts.withDefaults()
	w, err := newWatcher(&opts)
	if err != nil {
		return err
	}
	defer w.close()
	return w.run(ctx, newEmitter(ctx, opts, events))
}

// Subscribe starts watching on a new goroutine. Errors setting up the
// backend, including rcmerr.ErrNotSupported, are returned before anything
// runs. The channel is closed when watching stops.
func Subscribe(ctx context.Context, opts Options) (<-chan Event, error) {
	opts = opts.withDefaults()
	w, err := newWatcher(&opts)
	if err != nil {
		return nil, err
	}
	events := make(chan Event)
	go func() {
		defer close(events)
		defer w.close()
		if err := w.run(ctx, newEmitter(ctx, opts, events)); err != nil && !errors.Is(err, context.Canceled) {
			glog.Errorf("Hotplug watcher (%s) stopped: %v", opts.Backend, err)
		}
	}()
	return events, nil
}

// emitter turns finder results into events, tracking presence so that
// unrelated USB activity doesn't produce duplicate notifications.
type emitter struct {
	ctx      context.Context
	events   chan<- Event
	finder   Finder
	callback func()
	present  bool
}

func newEmitter(ctx context.Context, opts Options, events chan<- Event) *emitter {
	return &emitter{
		ctx:      ctx,
		events:   events,
		finder:   opts.Finder,
		callback: opts.Callback,
	}
}

func (e *emitter) send(ev Event) bool {
	select {
	case e.events <- ev:
	case <-e.ctx.Done():
		if ev.Switch != nil {
			ev.Switch.Close()
		}
		return false
	}
	glog.V(1).Infof("Hotplug event: %s", ev.Kind)
	if e.callback != nil {
		e.callback()
	}
	return true
}

// open runs the finder. A Switch that is found but can't be claimed and
// validated is closed and reported as a non-nil error alongside found.
func (e *emitter) open() (sw *rcm.Switch, found bool, err error) {
	sw, err = e.finder()
	if err != nil {
		return nil, false, err
	}
	if e.present {
		// Already reported, and the receiver owns that one.
		sw.Close()
		return nil, true, nil
	}
	if _, err := sw.Handle(); err != nil {
		sw.Close()
		return nil, true, err
	}
	return sw, true, nil
}

// rescan runs the finder and reports any change in presence.
func (e *emitter) rescan() {
	sw, _, err := e.open()
	switch {
	case sw != nil:
		e.present = true
		e.send(Event{Kind: Arrived, Switch: sw})
	case err == nil:
	case errors.Is(err, rcmerr.ErrSwitchNotFound):
		if !e.present {
			return
		}
		e.present = false
		e.send(Event{Kind: Left})
	default:
		e.present = false
		e.send(Event{Kind: Error, Err: err})
	}
}

// arrived handles a device-specific add notification.
func (e *emitter) arrived() {
	sw, found, err := e.open()
	switch {
	case sw != nil:
		e.present = true
		e.send(Event{Kind: Arrived, Switch: sw})
	case err == nil:
	case !found && errors.Is(err, rcmerr.ErrSwitchNotFound):
		// Probably unplugged right away.
		glog.V(1).Infof("Device announced but not found")
	default:
		e.present = false
		e.send(Event{Kind: Error, Err: err})
	}
}

// left handles a device-specific remove notification.
func (e *emitter) left() {
	e.present = false
	e.send(Event{Kind: Left})
}
