// Package hidraw reads HID reports from a connected Bluetooth device
// through the host's HID layer (hidapi).
package hidraw

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	hid "github.com/sstallion/go-hid"

	"github.com/chaz8081/hidhost/internal/bluez"
	"github.com/chaz8081/hidhost/internal/hidhost"
)

// Info describes the HID node of a device.
type Info struct {
	Path      string
	VendorID  uint16
	ProductID uint16
	Serial    string
	Product   string
	UsagePage uint16
	Usage     uint16
}

// node is the subset of *hid.Device the reader uses.
type node interface {
	ReadWithTimeout(p []byte, timeout time.Duration) (int, error)
	Write(p []byte) (int, error)
	GetFeatureReport(p []byte) (int, error)
	Close() error
}

// Options configures a Source.
type Options struct {
	Wait       time.Duration // how long to wait for the node after connect
	Poll       time.Duration // read timeout between context checks
	ReportSize int
	// FeatureReports lists the report ids read with GetFeatureReport when
	// the reader starts. Devices that refuse one are skipped.
	FeatureReports []byte
}

// DefaultOptions returns the reader defaults.
func DefaultOptions() Options {
	return Options{
		Wait:           5 * time.Second,
		Poll:           250 * time.Millisecond,
		ReportSize:     64,
		FeatureReports: []byte{reportStatus},
	}
}

// Source opens report channels for devices connected by the BlueZ stack.
type Source struct {
	opts Options
	log  *slog.Logger

	find func(addr hidhost.Address) (Info, bool, error)
	open func(path string) (node, error)
}

// NewSource initialises hidapi.
func NewSource(opts Options, logger *slog.Logger) (*Source, error) {
	if err := hid.Init(); err != nil {
		return nil, fmt.Errorf("hidraw: init: %w", err)
	}
	return newSource(opts, logger, findInfo, func(path string) (node, error) {
		return hid.OpenPath(path)
	}), nil
}

func newSource(opts Options, logger *slog.Logger, find func(hidhost.Address) (Info, bool, error), open func(string) (node, error)) *Source {
	def := DefaultOptions()
	if opts.Wait <= 0 {
		opts.Wait = def.Wait
	}
	if opts.Poll <= 0 {
		opts.Poll = def.Poll
	}
	if opts.ReportSize <= 0 {
		opts.ReportSize = def.ReportSize
	}
	if opts.FeatureReports == nil {
		opts.FeatureReports = def.FeatureReports
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{opts: opts, log: logger, find: find, open: open}
}

// Close releases hidapi.
func (s *Source) Close() error {
	return hid.Exit()
}

// findInfo looks for the HID node whose serial is the device address, the
// way the kernel names Bluetooth HID devices.
func findInfo(addr hidhost.Address) (Info, bool, error) {
	var (
		info  Info
		found bool
	)
	want := addr.String()
	err := hid.Enumerate(hid.VendorIDAny, hid.ProductIDAny, func(d *hid.DeviceInfo) error {
		if found || !strings.EqualFold(d.SerialNbr, want) {
			return nil
		}
		info = Info{
			Path:      d.Path,
			VendorID:  d.VendorID,
			ProductID: d.ProductID,
			Serial:    d.SerialNbr,
			Product:   d.ProductStr,
			UsagePage: d.UsagePage,
			Usage:     d.Usage,
		}
		found = true
		return nil
	})
	if err != nil {
		return Info{}, false, fmt.Errorf("hidraw: enumerate: %w", err)
	}
	return info, found, nil
}

// Open waits for the HID node of addr and opens it.
func (s *Source) Open(ctx context.Context, addr hidhost.Address) (bluez.ReportChannel, error) {
	info, err := s.await(ctx, addr)
	if err != nil {
		return nil, err
	}
	n, err := s.open(info.Path)
	if err != nil {
		return nil, fmt.Errorf("hidraw: open %s: %w", info.Path, err)
	}

	s.log.Info("[HID] device",
		"addr", addr,
		"vendor", fmt.Sprintf("%04x", info.VendorID),
		"product", fmt.Sprintf("%04x", info.ProductID),
		"name", info.Product,
		"usage", UsageName(info.UsagePage, info.Usage),
		"path", info.Path,
	)

	d := &Device{
		addr:  addr,
		info:  info,
		node:  n,
		usage: UsageName(info.UsagePage, info.Usage),
		opts:  s.opts,
		log:   s.log,
	}
	if err := d.requestStatus(); err != nil {
		s.log.Debug("[HID] status request failed", "addr", addr, "error", err)
	}
	return d, nil
}

func (s *Source) await(ctx context.Context, addr hidhost.Address) (Info, error) {
	deadline := time.Now().Add(s.opts.Wait)
	for {
		info, ok, err := s.find(addr)
		if err != nil {
			return Info{}, err
		}
		if ok {
			return info, nil
		}
		if time.Now().After(deadline) {
			return Info{}, fmt.Errorf("hidraw: no HID node for %s", addr)
		}
		select {
		case <-ctx.Done():
			return Info{}, ctx.Err()
		case <-time.After(s.opts.Poll):
		}
	}
}

// Device is an open HID node.
type Device struct {
	addr  hidhost.Address
	info  Info
	node  node
	usage string
	opts  Options
	log   *slog.Logger
}

// Name returns the product string of the device.
func (d *Device) Name() string {
	return d.info.Product
}

// Info returns what enumeration reported about the node.
func (d *Device) Info() Info {
	return d.info
}

// Run emits the configured feature reports, then reads input reports until
// ctx is cancelled or a read fails.
func (d *Device) Run(ctx context.Context, emit func(hidhost.Event)) error {
	d.readFeatures(emit)

	buf := make([]byte, d.opts.ReportSize)
	for ctx.Err() == nil {
		n, err := d.node.ReadWithTimeout(buf, d.opts.Poll)
		if errors.Is(err, hid.ErrTimeout) {
			continue
		}
		if err != nil {
			return fmt.Errorf("hidraw: read %s: %w", d.addr, err)
		}
		for _, ev := range Decode(d.addr, d.usage, buf[:n]) {
			emit(ev)
		}
	}
	return nil
}

func (d *Device) readFeatures(emit func(hidhost.Event)) {
	for _, id := range d.opts.FeatureReports {
		buf := make([]byte, d.opts.ReportSize)
		buf[0] = id
		n, err := d.node.GetFeatureReport(buf)
		if err != nil || n <= 0 {
			d.log.Debug("[HID] feature report unavailable", "addr", d.addr, "id", id, "error", err)
			continue
		}
		if ev, ok := DecodeFeature(d.addr, d.usage, buf[:n]); ok {
			emit(ev)
		}
	}
}

// Close closes the node.
func (d *Device) Close() error {
	return d.node.Close()
}

// requestStatus asks the device for a status report, which carries the
// battery level.
func (d *Device) requestStatus() error {
	_, err := d.node.Write([]byte{reportStatusRequest, 0x00})
	return err
}

var _ bluez.ReportSource = (*Source)(nil)
var _ bluez.ReportChannel = (*Device)(nil)
