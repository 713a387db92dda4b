package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/nxboot/rcmx/pkg/hotplug"
)

var watchBackend string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print Switch arrivals and removals",
	Long:  "Watches for a Switch in RCM mode being connected or disconnected, until interrupted.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := hotplug.Options{}
		if watchBackend != "" {
			b, err := hotplug.ParseBackend(watchBackend)
			if err != nil {
				return err
			}
			opts.Backend = b
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		events := make(chan hotplug.Event)
		errC := make(chan error, 1)
		go func() {
			errC <- hotplug.Watch(ctx, opts, events)
		}()

		for {
			select {
			case err := <-errC:
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			case ev := <-events:
				switch ev.Kind {
				case hotplug.Arrived:
					printf("Switch in RCM mode connected\n")
					ev.Switch.Close()
				case hotplug.Left:
					printf("Switch disconnected\n")
				case hotplug.Error:
					slog.Error("Switch unusable", "err", ev.Err)
				}
			}
		}
	},
}
