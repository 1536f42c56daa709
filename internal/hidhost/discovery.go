package hidhost

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrScanActive is returned by StartScan while a round is still scanning.
var ErrScanActive = errors.New("hidhost: scan already active")

// ScanPhase is the Discovery controller state.
type ScanPhase uint8

const (
	PhaseIdle ScanPhase = iota
	PhaseScanning
	PhaseStoppingForConnect
)

func (p ScanPhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseScanning:
		return "scanning"
	case PhaseStoppingForConnect:
		return "stopping-for-connect"
	default:
		return "unknown"
	}
}

// DiscoveryOptions configures the inquiry a round runs.
type DiscoveryOptions struct {
	Mode          InquiryMode
	InquiryLength uint8 // 1.28s units
	MaxResponses  uint8 // 0 = unlimited
	Transport     Transport
	NameCapacity  int // decoder buffer size, including terminator
}

// DefaultDiscoveryOptions mirrors a general inquiry of 10 units with
// unlimited responses.
func DefaultDiscoveryOptions() DiscoveryOptions {
	return DiscoveryOptions{
		Mode:          GeneralInquiry,
		InquiryLength: 10,
		MaxResponses:  0,
		Transport:     TransportBR,
		NameCapacity:  MaxNameLength,
	}
}

// Discovery drives scan start and stop and picks the target device.
type Discovery struct {
	stack   Stack
	matcher Matcher
	opts    DiscoveryOptions
	phase   ScanPhase
	log     *slog.Logger
	now     func() time.Time
}

// NewDiscovery creates an idle discovery controller.
func NewDiscovery(stack Stack, matcher Matcher, opts DiscoveryOptions, logger *slog.Logger) *Discovery {
	if opts.NameCapacity <= 0 {
		opts.NameCapacity = MaxNameLength
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Discovery{
		stack:   stack,
		matcher: matcher,
		opts:    opts,
		log:     logger,
		now:     time.Now,
	}
}

// Phase returns the controller state.
func (d *Discovery) Phase() ScanPhase {
	return d.phase
}

// StartScan begins a new discovery round: the adapter is made discoverable
// and connectable and a bounded inquiry starts. Stack rejections are
// returned as is; they are not retried.
func (d *Discovery) StartScan(reg *Registry) error {
	if d.phase == PhaseScanning {
		return ErrScanActive
	}
	if err := d.stack.SetDiscoverableConnectable(); err != nil {
		return fmt.Errorf("hidhost: set scan mode: %w", err)
	}
	round := reg.NewRound()
	if err := d.stack.StartInquiry(d.opts.Mode, d.opts.InquiryLength, d.opts.MaxResponses); err != nil {
		return fmt.Errorf("hidhost: start inquiry: %w", err)
	}
	d.phase = PhaseScanning
	d.log.Info("[HID] starting inquiry", "round", round, "length", d.opts.InquiryLength, "target", d.matcher.TargetName)
	return nil
}

// OnDeviceFound decodes and matches one inquiry result. On the first match of
// a round it selects the target, opens a session, requests the connection and
// cancels the inquiry. It reports whether ev was acted upon.
func (d *Discovery) OnDeviceFound(reg *Registry, ev DeviceFound) bool {
	d.log.Debug("[HID] device found", "addr", ev.Address, "rssi", ev.RSSI)
	if d.phase != PhaseScanning {
		return false
	}

	dev := DiscoveredDevice{Address: ev.Address}
	dev.Name, dev.HasName = NameFromEIR(ev.EIR, d.opts.NameCapacity)
	if dev.HasName {
		d.log.Debug("[HID] device name", "addr", ev.Address, "name", dev.Name)
	}
	if !d.matcher.Match(dev) {
		return false
	}
	if !reg.SelectTarget(dev.Address) {
		return false
	}
	d.log.Info("[HID] found target", "addr", dev.Address, "name", dev.Name)

	d.phase = PhaseStoppingForConnect
	if s := reg.Begin(dev.Address, d.opts.Transport, d.now()); s != nil {
		s.Name = dev.Name
		if err := d.stack.Connect(dev.Address, d.opts.Transport); err != nil {
			d.log.Error("[HID] connect request rejected", "addr", dev.Address, "error", err)
			reg.end(s, d.now())
		}
	} else {
		d.log.Warn("[HID] session still active, not connecting", "addr", dev.Address)
	}
	d.cancel()
	return true
}

// OnStateChanged logs the stack's view of the inquiry. The stack is
// authoritative on radio state, so this does not change Phase.
func (d *Discovery) OnStateChanged(ev DiscoveryStateChanged) {
	d.log.Info("[HID] discovery "+ev.State.String(), "phase", d.phase)
}

// Cancel ends a scanning round. It is a no-op when no scan is active or the
// round already stopped for a connect.
func (d *Discovery) Cancel() {
	if d.phase != PhaseScanning {
		return
	}
	d.cancel()
	d.phase = PhaseIdle
}

// Finish returns the controller to idle once the round is over.
func (d *Discovery) Finish() {
	if d.phase == PhaseStoppingForConnect {
		d.phase = PhaseIdle
	}
}

func (d *Discovery) cancel() {
	if err := d.stack.CancelInquiry(); err != nil {
		d.log.Warn("[HID] cancel inquiry failed", "error", err)
	}
}
