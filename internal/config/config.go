package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/wavelink/internal/ble"
	"github.com/chaz8081/wavelink/internal/engine"
	"github.com/chaz8081/wavelink/internal/packet"
)

// Config holds all application configuration.
type Config struct {
	Device   DeviceConfig `yaml:"device"`
	Engine   EngineConfig `yaml:"engine"`
	LogLevel string       `yaml:"log_level"`
}

// DeviceConfig holds the ring's address and GATT layout.
type DeviceConfig struct {
	// Address is a MAC address, or a CoreBluetooth UUID on macOS.
	Address            string        `yaml:"address"`
	ServiceUUID        string        `yaml:"service_uuid"`
	CharacteristicUUID string        `yaml:"characteristic_uuid"`
	StartAPIMode       bool          `yaml:"start_api_mode"`
	BatteryPoll        time.Duration `yaml:"battery_poll"`  // 0 disables polling
	ReconnectMax       int           `yaml:"reconnect_max"` // max backoff seconds
	Stream             StreamConfig  `yaml:"stream"`
}

// StreamConfig selects the API mode streams. An empty Datastream leaves the
// ring's current configuration alone.
type StreamConfig struct {
	Datastream  string  `yaml:"datastream"` // "", "none", "motion" or "raw"
	Spectrogram bool    `yaml:"spectrogram"`
	SampleRate  float32 `yaml:"sample_rate"`
}

// EngineConfig mirrors engine.Options in YAML form.
type EngineConfig struct {
	Framing          string        `yaml:"framing"`    // "length" or "cobs"
	SizeWidth        int           `yaml:"size_width"` // 1, 2 or 4
	ByteOrder        string        `yaml:"byte_order"` // "little" or "big"
	MaxPayload       int           `yaml:"max_payload"`
	MaxPendingWrites int           `yaml:"max_pending_writes"`
	ResponseTimeout  time.Duration `yaml:"response_timeout"`
	MTU              int           `yaml:"mtu"`
	WriteInterval    time.Duration `yaml:"write_interval"`
	ErrorBuffer      int           `yaml:"error_buffer"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "wavelink")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			ServiceUUID:        ble.ServiceUUID,
			CharacteristicUUID: ble.APICharUUID,
			StartAPIMode:       true,
			ReconnectMax:       30,
		},
		Engine: EngineConfig{
			Framing:          packet.FramingLength.String(),
			SizeWidth:        2,
			ByteOrder:        "little",
			MaxPendingWrites: engine.DefaultMaxPendingWrites,
			ResponseTimeout:  engine.DefaultResponseTimeout,
			ErrorBuffer:      engine.DefaultErrorBuffer,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(expandTilde(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

const defaultConfigYAML = `# wavelink configuration
#
# device.address is the ring's MAC address (a CoreBluetooth UUID on macOS).
device:
  address: ""
  service_uuid: "` + ble.ServiceUUID + `"
  characteristic_uuid: "` + ble.APICharUUID + `"
  start_api_mode: true
  battery_poll: 0s
  reconnect_max: 30
  # Sent after API mode starts when datastream is set (none, motion, raw).
  stream:
    datastream: ""
    spectrogram: false
    sample_rate: 0

# Frame layout and write queue. The defaults match Wave firmware.
engine:
  framing: length
  size_width: 2
  byte_order: little
  max_payload: 0
  max_pending_writes: 64
  response_timeout: 5s
  mtu: 0
  write_interval: 0s
  error_buffer: 16

log_level: info
`

// WriteDefault writes the default config to DefaultConfigPath and returns
// the path. If a config already exists it returns ("", nil) and leaves it alone.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("checking config file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Device.Address != "" {
		if _, err := net.ParseMAC(c.Device.Address); err != nil && !uuidPattern.MatchString(c.Device.Address) {
			return fmt.Errorf("device.address must be a MAC address or UUID, got %q", c.Device.Address)
		}
	}

	if !uuidPattern.MatchString(c.Device.ServiceUUID) {
		return fmt.Errorf("device.service_uuid is not a UUID: %q", c.Device.ServiceUUID)
	}

	if !uuidPattern.MatchString(c.Device.CharacteristicUUID) {
		return fmt.Errorf("device.characteristic_uuid is not a UUID: %q", c.Device.CharacteristicUUID)
	}

	if c.Device.BatteryPoll < 0 {
		return fmt.Errorf("device.battery_poll must be >= 0")
	}

	if c.Device.ReconnectMax <= 0 {
		return fmt.Errorf("device.reconnect_max must be > 0")
	}

	if _, err := c.EngineOptions(); err != nil {
		return err
	}

	if _, err := c.APIConfig(); err != nil {
		return err
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// EngineOptions converts the engine section to engine.Options.
func (c *Config) EngineOptions() (engine.Options, error) {
	framing, err := packet.ParseFraming(c.Engine.Framing)
	if err != nil {
		return engine.Options{}, fmt.Errorf("engine.framing: %w", err)
	}
	order, err := packet.ParseByteOrder(c.Engine.ByteOrder)
	if err != nil {
		return engine.Options{}, fmt.Errorf("engine.byte_order: %w", err)
	}

	opts := engine.Options{
		Layout:           packet.Layout{SizeWidth: c.Engine.SizeWidth, ByteOrder: order},
		Framing:          framing,
		MaxPayload:       c.Engine.MaxPayload,
		MaxPendingWrites: c.Engine.MaxPendingWrites,
		ResponseTimeout:  c.Engine.ResponseTimeout,
		MTU:              c.Engine.MTU,
		WriteInterval:    c.Engine.WriteInterval,
		ErrorBuffer:      c.Engine.ErrorBuffer,
	}
	if err := opts.Validate(); err != nil {
		return engine.Options{}, err
	}
	return opts, nil
}

// APIConfig converts device.stream to a packet.APIConfig, or nil when no
// datastream is configured.
func (c *Config) APIConfig() (*packet.APIConfig, error) {
	s := c.Device.Stream
	if s.Datastream == "" {
		return nil, nil
	}
	ds, err := packet.ParseDatastreamType(s.Datastream)
	if err != nil {
		return nil, fmt.Errorf("device.stream.datastream: %w", err)
	}
	if s.SampleRate < 0 {
		return nil, fmt.Errorf("device.stream.sample_rate must be >= 0")
	}
	return &packet.APIConfig{Datastream: ds, Spectrogram: s.Spectrogram, SampleRate: s.SampleRate}, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
