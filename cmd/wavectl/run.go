package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chaz8081/wavelink/internal/ble"
)

// Run flags
var (
	runAddress     string
	runBatteryPoll time.Duration
	runNoAPIMode   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to a ring and print its events",
	Long: `Connects to the ring at device.address (or --address), switches it to
API mode and prints every event until interrupted. The connection is
re-established with exponential backoff if it drops.`,
	Example: `  wavectl run --address AA:BB:CC:DD:EE:FF
  wavectl run --battery-poll 30s --log-level debug`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runAddress, "address", "", "ring MAC address (CoreBluetooth UUID on macOS)")
	runCmd.Flags().DurationVar(&runBatteryPoll, "battery-poll", 0, "battery query interval, overrides device.battery_poll")
	runCmd.Flags().BoolVar(&runNoAPIMode, "no-api-mode", false, "do not switch the ring to API mode on connect")
}

func runRun(cmd *cobra.Command, args []string) error {
	if err := initLogging(cfg.LogLevel); err != nil {
		return err
	}

	address := runAddress
	if address == "" {
		address = cfg.Device.Address
	}
	if address == "" {
		return errors.New("no device address: set device.address in the config or pass --address")
	}

	engOpts, err := cfg.EngineOptions()
	if err != nil {
		return err
	}
	opts := ble.DefaultClientOptions()
	opts.ServiceUUID = cfg.Device.ServiceUUID
	opts.CharUUID = cfg.Device.CharacteristicUUID
	opts.Engine = engOpts
	opts.ReconnectMax = cfg.Device.ReconnectMax
	opts.BatteryPoll = cfg.Device.BatteryPoll
	opts.StartAPIMode = cfg.Device.StartAPIMode && !runNoAPIMode
	if opts.APIConfig, err = cfg.APIConfig(); err != nil {
		return err
	}
	if runBatteryPoll > 0 {
		opts.BatteryPoll = runBatteryPoll
	}

	client := ble.NewClient(ble.NewTinyGoAdapter(), address, opts)
	p := newPrinter(cmd.OutOrStdout())
	p.attach(client)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p.info.Printfln("Connecting to %s", address)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	p.info.Printfln("Connected. Ctrl+C to quit.")

	for {
		select {
		case <-ctx.Done():
			p.info.Println("Shutting down")
			if err := client.Close(); err != nil {
				p.reportError(err)
			}
			return p.summary()
		case err := <-client.Errors():
			p.reportError(err)
		}
	}
}
