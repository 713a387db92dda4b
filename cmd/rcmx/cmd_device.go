package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/nxboot/rcmx/pkg/rcmerr"
)

var deviceWait bool

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Check whether a Switch in RCM mode is connected",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sw, err := findSwitch(cmd.Context(), deviceWait)
		if errors.Is(err, rcmerr.ErrSwitchNotFound) {
			printf("Switch in RCM mode not found\n")
			return nil
		}
		if err != nil {
			return err
		}
		defer sw.Close()

		// Only a claimable device is of any use.
		if _, err := sw.Handle(); err != nil {
			return err
		}
		printf("Switch is in RCM mode and connected\n")
		return nil
	},
}
