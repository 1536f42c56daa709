package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/chaz8081/hidhost/internal/ble"
	"github.com/chaz8081/hidhost/internal/bluez"
	"github.com/chaz8081/hidhost/internal/config"
	"github.com/chaz8081/hidhost/internal/hidhost"
	"github.com/chaz8081/hidhost/internal/hidraw"
	"github.com/chaz8081/hidhost/internal/report"
)

// stack is a hidhost.Stack that also feeds events and can be shut down.
type stack interface {
	hidhost.Stack
	Events() <-chan hidhost.Event
	Close() error
}

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/hidhost/config.yaml)")
	initConfig := flag.Bool("init", false, "write the default config file and exit")
	flag.Parse()

	if *initConfig {
		path, err := config.WriteDefault()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		if path == "" {
			log.Printf("Config already exists at %s", config.DefaultConfigPath())
			return
		}
		log.Printf("Wrote default config to %s", path)
		return
	}

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	printBanner(cfg)

	sink, closeSink, err := buildSink(cfg, logger)
	if err != nil {
		log.Fatalf("reports: %v", err)
	}
	defer closeSink()

	st, closeStack, err := buildStack(cfg, logger)
	if err != nil {
		log.Fatalf("transport: %v", err)
	}
	defer closeStack()

	policy, err := cfg.PairingPolicy()
	if err != nil {
		log.Fatalf("pairing: %v", err)
	}
	discovery := hidhost.NewDiscovery(st, hidhost.Matcher{TargetName: cfg.Target.Name}, cfg.DiscoveryOptions(), logger)
	pairing, err := hidhost.NewPairing(st, cfg.Pairing.PIN, policy, logger)
	if err != nil {
		log.Fatalf("pairing: %v", err)
	}
	disp := hidhost.NewDispatcher(discovery, pairing, hidhost.NewLifecycle(sink, logger), logger)
	host := hidhost.NewHost(disp, st.Events(), cfg.HostOptions(), logger)

	// Signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("[HID] waiting for target", "name", cfg.Target.Name)
	if err := host.Run(ctx); err != nil {
		logger.Error("[HID] host stopped", "error", err)
		return
	}
	logger.Info("[HID] done", "sessions", len(disp.History()))
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

func buildSink(cfg *config.Config, logger *slog.Logger) (hidhost.ReportSink, func(), error) {
	logSink := report.NewLogSink(logger)
	if cfg.Reports.Sink == "log" {
		return logSink, func() {}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Reports.Path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create report dir: %w", err)
	}
	cborSink, err := report.NewCBORSink(cfg.Reports.Path)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := cborSink.Close(); err != nil {
			logger.Warn("[HID] closing report file", "error", err)
		}
	}
	if cfg.Reports.Sink == "cbor" {
		return cborSink, closeFn, nil
	}
	return report.NewMultiSink(logSink, cborSink), closeFn, nil
}

func buildStack(cfg *config.Config, logger *slog.Logger) (stack, func(), error) {
	switch cfg.Transport.Kind {
	case "ble":
		st := ble.NewStack(ble.NewTinyGoAdapter(), ble.DefaultStackOptions(), logger)
		return st, func() { st.Close() }, nil

	case "bluez":
		src, err := hidraw.NewSource(hidraw.DefaultOptions(), logger)
		if err != nil {
			return nil, nil, err
		}
		opts := bluez.DefaultOptions()
		opts.Adapter = cfg.Transport.Adapter
		st, err := bluez.New(src, opts, logger)
		if err != nil {
			src.Close()
			return nil, nil, err
		}
		return st, func() {
			if err := errors.Join(st.Close(), src.Close()); err != nil {
				logger.Warn("[BLUEZ] shutdown", "error", err)
			}
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown transport %q", cfg.Transport.Kind)
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== hidhost ===")
	fmt.Printf("  Target:    %s\n", cfg.Target.Name)
	fmt.Printf("  Pairing:   %s\n", cfg.Pairing.Policy)
	fmt.Printf("  Transport: %s (%s)\n", cfg.Transport.Kind, cfg.Transport.Adapter)
	fmt.Printf("  Scan:      %ds, rescan %v\n", cfg.Discovery.ScanSeconds, cfg.Discovery.Rescan)
	fmt.Printf("  Reports:   %s\n", cfg.Reports.Sink)
	fmt.Printf("  Log:       %s\n", cfg.LogLevel)
	fmt.Println("===============")
}
