// Wavectl talks to a Genki Wave ring over Bluetooth Low Energy.
//
// It connects to a ring whose address is already known, switches it to API
// mode and prints every event the packet engine dispatches. It can also
// replay a hex capture of notification fragments through the same engine,
// which is how frame layouts are checked against real device traffic.
//
// Usage:
//
//	wavectl [command] [flags]
//
// See 'wavectl --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chaz8081/wavelink/internal/config"
	"github.com/chaz8081/wavelink/internal/logging"
	"github.com/chaz8081/wavelink/internal/version"
)

// Global flags
var (
	configPath string
	logLevel   string
)

// cfg is loaded before every command that needs it.
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "wavectl",
	Short: "Genki Wave ring packet tool",
	Long: `Connects to a Genki Wave ring over BLE and prints the events its
packet engine decodes, or replays captured notification traffic through
the same engine.

Logging is silent unless --log-level or WAVELINK_LOG_LEVEL is set.`,
	Version:      version.Full(),
	SilenceUsage: true,
	Example: `  # Write a starter config to ~/.config/wavelink/config.yaml
  wavectl init-config

  # Stream events from a ring
  wavectl run --address AA:BB:CC:DD:EE:FF

  # Replay a capture with COBS framing
  wavectl decode capture.hex --framing cobs`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initLogging(""); err != nil {
			return err
		}
		loaded, err := loadConfig(configPath)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("config validation: %w", err)
		}
		cfg = loaded
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.Sync()
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: ~/.config/wavelink/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(initConfigCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "wavectl %s\n", version.Full())
	},
}

var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write the default config file if none exists",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.WriteDefault()
		if err != nil {
			return err
		}
		if path == "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Config already exists at %s\n", config.DefaultConfigPath())
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

// initLogging picks the level from --log-level, then WAVELINK_LOG_LEVEL,
// then fallback. An empty result keeps logging silent.
func initLogging(fallback string) error {
	level := logLevel
	if level == "" {
		level = os.Getenv(logging.LogLevelEnvVar)
	}
	if level == "" {
		level = fallback
	}
	return logging.Initialize(level)
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		loaded, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		logging.Debug("Config loaded", zap.String("path", defaultPath))
		return loaded, nil
	}

	logging.Debug("No config file found, using defaults")
	return config.Default(), nil
}
