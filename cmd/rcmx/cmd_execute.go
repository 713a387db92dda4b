package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nxboot/rcmx/pkg/devices"
	"github.com/nxboot/rcmx/pkg/favorites"
	"github.com/nxboot/rcmx/pkg/payload"
	"github.com/nxboot/rcmx/pkg/rcmerr"
)

var (
	executeFavorite string
	executeWait     bool
)

var executeCmd = &cobra.Command{
	Use:   "execute [payload]",
	Short: "Execute a payload on a connected Switch",
	Long:  "Builds an RCM image from a payload binary (optionally .xz compressed) or a favorite, and runs it on a Switch connected in RCM mode.",
	Args: func(cmd *cobra.Command, args []string) error {
		if executeFavorite != "" {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		var p *payload.Payload
		if executeFavorite != "" {
			store, err := favorites.New(favoritesDir)
			if err != nil {
				return err
			}
			fav, err := store.Get(executeFavorite)
			if err != nil {
				return err
			}
			if p, err = fav.Read(); err != nil {
				return fmt.Errorf("could not read favorite: %w", err)
			}
		} else {
			var err error
			if p, err = payload.Read(args[0]); err != nil {
				return err
			}
		}
		slog.Debug("Built payload", "bytes", p.Len())

		if err := devices.CheckEnvironment(); err != nil {
			return err
		}

		sw, err := findSwitch(cmd.Context(), executeWait)
		if errors.Is(err, rcmerr.ErrSwitchNotFound) {
			printf("Switch in RCM mode not found\n")
			return nil
		}
		if err != nil {
			return err
		}
		defer sw.Close()

		h, err := sw.Handle()
		if err != nil {
			return err
		}
		if err := h.Execute(p); err != nil {
			return fmt.Errorf("could not execute payload: %w", err)
		}
		printf("Payload executed!\n")
		return nil
	},
}
