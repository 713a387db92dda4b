package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nxboot/rcmx/pkg/payload"
)

var buildCmd = &cobra.Command{
	Use:   "build [input] [output]",
	Short: "Build RCM image from payload binary",
	Long:  "Wraps a payload binary into the image that execute sends to the device, without needing one connected.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := payload.Read(args[0])
		if err != nil {
			return err
		}

		f, err := os.OpenFile(args[1], os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("could not write image: %w", err)
		}
		if _, err := p.WriteTo(f); err != nil {
			f.Close()
			return fmt.Errorf("could not write image: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("could not write image: %w", err)
		}
		slog.Info("Built image", "path", args[1], "bytes", p.Len())
		return nil
	},
}
