package hidhost

import (
	"fmt"
	"log/slog"
)

// PairingPolicy decides whether a PIN challenge gets the configured PIN.
type PairingPolicy interface {
	Allow(addr Address, reg *Registry) bool
	Name() string
}

// AcceptAll answers every PIN challenge, whoever sent it. Only suitable for
// closed environments.
type AcceptAll struct{}

func (AcceptAll) Allow(Address, *Registry) bool { return true }
func (AcceptAll) Name() string                  { return "accept-all" }

// TargetOnly answers only the device discovery selected in the current round.
type TargetOnly struct{}

func (TargetOnly) Allow(addr Address, reg *Registry) bool {
	target, ok := reg.Target()
	return ok && target == addr
}
func (TargetOnly) Name() string { return "target-only" }

// AllowList answers a fixed set of addresses.
type AllowList map[Address]struct{}

// NewAllowList builds an AllowList from textual addresses.
func NewAllowList(addrs []string) (AllowList, error) {
	l := make(AllowList, len(addrs))
	for _, s := range addrs {
		a, err := ParseAddress(s)
		if err != nil {
			return nil, err
		}
		l[a] = struct{}{}
	}
	return l, nil
}

func (l AllowList) Allow(addr Address, _ *Registry) bool {
	_, ok := l[addr]
	return ok
}
func (AllowList) Name() string { return "allow-list" }

// Pairing answers legacy PIN challenges with a fixed PIN.
type Pairing struct {
	stack  Stack
	pin    PinCode
	pinLen uint8
	policy PairingPolicy
	log    *slog.Logger
}

// NewPairing creates a responder for pin. A nil policy means AcceptAll.
func NewPairing(stack Stack, pin string, policy PairingPolicy, logger *slog.Logger) (*Pairing, error) {
	if len(pin) == 0 || len(pin) > len(PinCode{}) {
		return nil, fmt.Errorf("hidhost: pin must be 1-16 bytes, got %d", len(pin))
	}
	if policy == nil {
		policy = AcceptAll{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	code, n := NewPinCode(pin)
	return &Pairing{stack: stack, pin: code, pinLen: n, policy: policy, log: logger}, nil
}

// OnPinRequest sends exactly one reply for the challenge: the configured PIN
// if the policy allows the address, a rejection otherwise.
func (p *Pairing) OnPinRequest(reg *Registry, ev PinRequest) (accepted bool, err error) {
	accepted = p.policy.Allow(ev.Address, reg)
	if accepted {
		p.log.Info("[HID] PIN code request", "addr", ev.Address, "policy", p.policy.Name())
		err = p.stack.ReplyPin(ev.Address, true, p.pinLen, p.pin)
	} else {
		p.log.Warn("[HID] PIN code request rejected", "addr", ev.Address, "policy", p.policy.Name())
		err = p.stack.ReplyPin(ev.Address, false, 0, PinCode{})
	}
	if err != nil {
		err = fmt.Errorf("hidhost: pin reply to %s: %w", ev.Address, err)
	}
	return accepted, err
}
