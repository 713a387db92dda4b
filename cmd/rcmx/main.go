package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var rootCmd = &cobra.Command{
	Use:   "rcmx",
	Short: "rcmx launches payloads on a Nintendo Switch in RCM mode",
	Long: `Runs the Tegra X1 RCM exploit (fusée gelée) against a Switch connected in
recovery mode, executing a payload such as a bootloader.

rcmx comes with ABSOLUTELY NO WARRANTY.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var (
	verboseLog   bool
	favoritesDir string
)

func setup(cmd *cobra.Command, args []string) error {
	if verboseLog {
		slog.SetLogLoggerLevel(slog.LevelDebug)
		// Unless the user asked for something specific, surface library
		// logs as well.
		if !cmd.Flags().Changed("v") {
			flag.Set("v", "1")
		}
		flag.Set("alsologtostderr", "true")
	}
	if favoritesDir == "" {
		favoritesDir = filepath.Join(xdg.DataHome, "rcmx", "favorites")
	}
	slog.Debug("Configuration", "favorites", favoritesDir)
	return nil
}

func main() {
	slog.SetLogLoggerLevel(slog.LevelInfo)

	executeCmd.Flags().StringVarP(&executeFavorite, "favorite", "f", "", "Execute a favorite payload instead of a file")
	executeCmd.Flags().BoolVarP(&executeWait, "wait", "w", false, "Wait for a Switch to be connected")
	deviceCmd.Flags().BoolVarP(&deviceWait, "wait", "w", false, "Wait for a Switch to be connected")
	watchCmd.Flags().StringVarP(&watchBackend, "backend", "b", "", "Hotplug backend (one of: native, notify; default depends on platform)")
	favoritesAddCmd.Flags().BoolVar(&favoritesAddNoValidate, "no-validate", false, "Add the file even if it does not build into a payload")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().BoolVarP(&verboseLog, "verbose", "v", false, "Enable verbose debug logging")
	rootCmd.PersistentFlags().StringVar(&favoritesDir, "favorites-dir", "", "Favorites directory (default: $XDG_DATA_HOME/rcmx/favorites)")
	rootCmd.AddCommand(executeCmd)
	rootCmd.AddCommand(deviceCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(watchCmd)
	favoritesCmd.AddCommand(favoritesListCmd)
	favoritesCmd.AddCommand(favoritesAddCmd)
	favoritesCmd.AddCommand(favoritesRemoveCmd)
	rootCmd.AddCommand(favoritesCmd)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func init() {
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
}

// printf writes command results, as opposed to logs, to stdout.
func printf(format string, a ...any) {
	fmt.Fprintf(os.Stdout, format, a...)
}
