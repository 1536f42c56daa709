package hidhost

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrNoDiscoveryRound is returned by CancelDiscovery when no round was ever started.
var ErrNoDiscoveryRound = errors.New("hidhost: no discovery round")

// Dispatcher is the single entry point for stack events. It owns the session
// registry and serializes all handlers, so the match, connect and cancel
// sequence runs as one critical section even when the stack delivers
// discovery and HID callbacks on different goroutines.
type Dispatcher struct {
	mu        sync.Mutex
	reg       Registry
	discovery *Discovery
	pairing   *Pairing
	lifecycle *Lifecycle
	log       *slog.Logger

	inRound   bool
	roundDone chan struct{}
}

// NewDispatcher wires the handlers together.
func NewDispatcher(discovery *Discovery, pairing *Pairing, lifecycle *Lifecycle, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		discovery: discovery,
		pairing:   pairing,
		lifecycle: lifecycle,
		log:       logger,
		roundDone: make(chan struct{}, 1),
	}
}

// StartRound starts a discovery round.
func (d *Dispatcher) StartRound() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.discovery.StartScan(&d.reg); err != nil {
		return err
	}
	d.inRound = true
	return nil
}

// RoundDone is signalled once per round, when discovery ended without a
// session or the round's session closed.
func (d *Dispatcher) RoundDone() <-chan struct{} {
	return d.roundDone
}

// CancelDiscovery stops the current scan if one is still running. It is safe
// to call after a match already cancelled the scan.
func (d *Dispatcher) CancelDiscovery(reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancelLocked(reason)
}

func (d *Dispatcher) cancelLocked(reason string) error {
	if d.reg.Round() == 0 {
		return ErrNoDiscoveryRound
	}
	if d.discovery.Phase() == PhaseScanning {
		d.log.Info("[HID] stopping discovery", "reason", reason)
	}
	d.discovery.Cancel()
	d.checkRound()
	return nil
}

// CancelRound is CancelDiscovery for a scan window armed in round. It does
// nothing once a later round has started, so a late timer cannot stop the
// next round's scan.
func (d *Dispatcher) CancelRound(round uint64, reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.reg.Round() != round {
		return nil
	}
	return d.cancelLocked(reason)
}

// Dispatch routes ev to its handler.
func (d *Dispatcher) Dispatch(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch ev := ev.(type) {
	case DeviceFound:
		d.discovery.OnDeviceFound(&d.reg, ev)
	case DiscoveryStateChanged:
		d.discovery.OnStateChanged(ev)
	case PinRequest:
		if _, err := d.pairing.OnPinRequest(&d.reg, ev); err != nil {
			d.log.Error("[HID] pin reply failed", "addr", ev.Address, "error", err)
		}
	case Opened:
		d.lifecycle.OnOpen(&d.reg, ev)
	case Closed:
		d.lifecycle.OnClose(&d.reg, ev)
	case BatteryReport:
		d.lifecycle.OnBattery(&d.reg, ev)
	case InputReport:
		d.lifecycle.OnReport(&d.reg, KindInput, ev.Report)
	case FeatureReport:
		d.lifecycle.OnReport(&d.reg, KindFeature, ev.Report)
	case UnknownEvent:
		d.log.Info("[HID] unhandled event", "source", ev.Source, "code", ev.Code)
	default:
		d.log.Info("[HID] unhandled event", "type", fmt.Sprintf("%T", ev))
	}
	d.checkRound()
}

// Round returns the number of the current discovery round.
func (d *Dispatcher) Round() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reg.Round()
}

// Session returns a copy of the active session, if any.
func (d *Dispatcher) Session() (Session, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s := d.reg.Current(); s != nil {
		return *s, true
	}
	return Session{}, false
}

// History returns copies of the sessions that have ended.
func (d *Dispatcher) History() []Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Session, len(d.reg.History))
	for i, s := range d.reg.History {
		out[i] = *s
	}
	return out
}

// checkRound signals RoundDone when the round can make no further progress
// (caller must hold mu).
func (d *Dispatcher) checkRound() {
	if !d.inRound || d.reg.Current() != nil {
		return
	}
	switch d.discovery.Phase() {
	case PhaseIdle:
	case PhaseStoppingForConnect:
		d.discovery.Finish()
	default:
		return
	}
	d.inRound = false
	select {
	case d.roundDone <- struct{}{}:
	default:
	}
}
