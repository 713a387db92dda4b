package hotplug

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/golang/glog"
	"github.com/hashicorp/go-multierror"

	"github.com/nxboot/rcmx/pkg/rcmerr"
)

// notifyWatcher watches the usbfs device node tree: one directory per bus,
// one node per device. It doesn't know which device changed, so every
// change re-runs the finder.
type notifyWatcher struct {
	root string
	fs   *fsnotify.Watcher
}

func newNotifyWatcher(root string) (watcher, error) {
	st, err := os.Stat(root)
	if err != nil {
		return nil, rcmerr.NotSupportedErr(fmt.Errorf("device directory: %w", err))
	}
	if !st.IsDir() {
		return nil, rcmerr.NotSupportedErr(fmt.Errorf("%s is not a directory", root))
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, rcmerr.NotSupportedErr(err)
	}
	w := &notifyWatcher{root: root, fs: fs}
	if err := w.addTree(); err != nil {
		fs.Close()
		return nil, err
	}
	return w, nil
}

// addTree watches root and its bus directories.
func (w *notifyWatcher) addTree() error {
	if err := w.fs.Add(w.root); err != nil {
		return rcmerr.NotSupportedErr(fmt.Errorf("watching %s: %w", w.root, err))
	}
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return rcmerr.NotSupportedErr(err)
	}
	var errs *multierror.Error
	for _, ent := range entries {
		if !ent.IsDir() {
			continue
		}
		p := filepath.Join(w.root, ent.Name())
		if err := w.fs.Add(p); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("watching %s: %w", p, err))
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return rcmerr.NotSupportedErr(err)
	}
	return nil
}

func (w *notifyWatcher) close() error {
	return w.fs.Close()
}

func (w *notifyWatcher) run(ctx context.Context, e *emitter) error {
	e.rescan()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			glog.V(2).Infof("Device node event: %s", ev)
			if ev.Has(fsnotify.Create) && filepath.Dir(ev.Name) == w.root {
				// New bus.
				if st, err := os.Stat(ev.Name); err == nil && st.IsDir() {
					if err := w.fs.Add(ev.Name); err != nil {
						glog.Warningf("Watching %s: %v", ev.Name, err)
					}
				}
			}
			e.rescan()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				glog.Warningf("Device node events overflowed, rescanning")
				e.rescan()
				continue
			}
			return fmt.Errorf("watching device nodes: %w", err)
		}
	}
}

// relevant reports whether ev is a device node coming or going. Udev fixes up
// permissions after the node appears, so a chmod can turn an unusable device
// into a usable one.
func relevant(ev fsnotify.Event) bool {
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Chmod)
}
