package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/hidhost/internal/hidhost"
)

// Config holds all application configuration.
type Config struct {
	Target    TargetConfig    `yaml:"target"`
	Pairing   PairingConfig   `yaml:"pairing"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Transport TransportConfig `yaml:"transport"`
	Reports   ReportsConfig   `yaml:"reports"`
	LogLevel  string          `yaml:"log_level"`
}

// TargetConfig identifies the peripheral to connect to.
type TargetConfig struct {
	Name string `yaml:"name"`
}

// PairingConfig holds legacy PIN pairing settings.
type PairingConfig struct {
	PIN     string   `yaml:"pin"`
	Policy  string   `yaml:"policy"` // "accept-all", "target-only" or "allow-list"
	Allowed []string `yaml:"allowed"`
}

// DiscoveryConfig holds inquiry settings.
type DiscoveryConfig struct {
	ScanSeconds      int  `yaml:"scan_seconds"`
	InquiryLength    int  `yaml:"inquiry_length"` // 1.28s units
	MaxResponses     int  `yaml:"max_responses"`  // 0 = unlimited
	Rescan           bool `yaml:"rescan"`
	RescanMaxBackoff int  `yaml:"rescan_max_backoff"` // seconds
}

// TransportConfig selects the Bluetooth stack.
type TransportConfig struct {
	Kind    string `yaml:"kind"` // "bluez" or "ble"
	Adapter string `yaml:"adapter"`
}

// ReportsConfig selects where report records go.
type ReportsConfig struct {
	Sink string `yaml:"sink"` // "log", "cbor" or "both"
	Path string `yaml:"path"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "hidhost")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config targeting a Wii balance board with PIN 0000.
func Default() *Config {
	home, _ := os.UserHomeDir()
	reportPath := filepath.Join(home, ".local", "share", "hidhost", "reports.cbor")

	return &Config{
		Target: TargetConfig{
			Name: "Nintendo RVL-WBC-01",
		},
		Pairing: PairingConfig{
			PIN:    "0000",
			Policy: "accept-all",
		},
		Discovery: DiscoveryConfig{
			ScanSeconds:      15,
			InquiryLength:    10,
			MaxResponses:     0,
			RescanMaxBackoff: 30,
		},
		Transport: TransportConfig{
			Kind:    "bluez",
			Adapter: "hci0",
		},
		Reports: ReportsConfig{
			Sink: "log",
			Path: reportPath,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in reports.path is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Reports.Path = expandTilde(cfg.Reports.Path)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Target.Name == "" {
		return fmt.Errorf("target.name must not be empty")
	}
	if len(c.Target.Name) > hidhost.MaxNameLength-1 {
		return fmt.Errorf("target.name must be at most %d bytes", hidhost.MaxNameLength-1)
	}

	if n := len(c.Pairing.PIN); n == 0 || n > 16 {
		return fmt.Errorf("pairing.pin must be 1-16 bytes, got %d", n)
	}

	switch c.Pairing.Policy {
	case "accept-all", "target-only":
	case "allow-list":
		if len(c.Pairing.Allowed) == 0 {
			return fmt.Errorf("pairing.allowed must not be empty with the allow-list policy")
		}
	default:
		return fmt.Errorf("pairing.policy must be accept-all, target-only, or allow-list, got %q", c.Pairing.Policy)
	}
	for _, a := range c.Pairing.Allowed {
		if _, err := hidhost.ParseAddress(a); err != nil {
			return fmt.Errorf("pairing.allowed: %w", err)
		}
	}

	if c.Discovery.ScanSeconds <= 0 {
		return fmt.Errorf("discovery.scan_seconds must be > 0")
	}
	if c.Discovery.InquiryLength < 1 || c.Discovery.InquiryLength > 48 {
		return fmt.Errorf("discovery.inquiry_length must be between 1 and 48, got %d", c.Discovery.InquiryLength)
	}
	if c.Discovery.MaxResponses < 0 || c.Discovery.MaxResponses > 255 {
		return fmt.Errorf("discovery.max_responses must be between 0 and 255, got %d", c.Discovery.MaxResponses)
	}
	if c.Discovery.RescanMaxBackoff <= 0 {
		return fmt.Errorf("discovery.rescan_max_backoff must be > 0")
	}

	switch c.Transport.Kind {
	case "bluez", "ble":
	default:
		return fmt.Errorf("transport.kind must be \"bluez\" or \"ble\", got %q", c.Transport.Kind)
	}
	if c.Transport.Kind == "bluez" && c.Transport.Adapter == "" {
		return fmt.Errorf("transport.adapter must not be empty")
	}

	switch c.Reports.Sink {
	case "log":
	case "cbor", "both":
		if c.Reports.Path == "" {
			return fmt.Errorf("reports.path must not be empty with the %s sink", c.Reports.Sink)
		}
	default:
		return fmt.Errorf("reports.sink must be log, cbor, or both, got %q", c.Reports.Sink)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// PairingPolicy builds the pairing policy the config names.
func (c *Config) PairingPolicy() (hidhost.PairingPolicy, error) {
	switch c.Pairing.Policy {
	case "target-only":
		return hidhost.TargetOnly{}, nil
	case "allow-list":
		return hidhost.NewAllowList(c.Pairing.Allowed)
	default:
		return hidhost.AcceptAll{}, nil
	}
}

// DiscoveryOptions converts the discovery section for the controller.
func (c *Config) DiscoveryOptions() hidhost.DiscoveryOptions {
	opts := hidhost.DefaultDiscoveryOptions()
	opts.InquiryLength = uint8(c.Discovery.InquiryLength)
	opts.MaxResponses = uint8(c.Discovery.MaxResponses)
	if c.Transport.Kind == "ble" {
		opts.Transport = hidhost.TransportLE
	}
	return opts
}

// HostOptions converts the discovery section for the run loop.
func (c *Config) HostOptions() hidhost.HostOptions {
	return hidhost.HostOptions{
		ScanWindow:       time.Duration(c.Discovery.ScanSeconds) * time.Second,
		Rescan:           c.Discovery.Rescan,
		RescanMaxBackoff: time.Duration(c.Discovery.RescanMaxBackoff) * time.Second,
	}
}

const defaultHeader = `# hidhost configuration
# Generated with default values; edit and restart to apply.
`

// WriteDefault writes the default config to DefaultConfigPath if no file
// exists there yet. It returns the path written, or "" if a file was already
// present.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// ParseLogLevel maps a log_level string to an slog level, defaulting to info.
func ParseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
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
