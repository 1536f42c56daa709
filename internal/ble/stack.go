package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/chaz8081/hidhost/internal/hidhost"
)

// StackOptions configures a Stack.
type StackOptions struct {
	EventQueue int
}

// DefaultStackOptions returns sensible defaults.
func DefaultStackOptions() StackOptions {
	return StackOptions{EventQueue: 64}
}

type peer struct {
	address string // adapter address string
	name    string
}

// Stack drives an Adapter as a hidhost.Stack.
type Stack struct {
	adapter Adapter
	log     *slog.Logger
	events  chan hidhost.Event
	ctx     context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	enabled  bool
	scanning bool
	scanGen  uint64
	peers    map[hidhost.Address]peer
	conns    map[hidhost.Address]Connection
}

// NewStack creates a Stack on adapter.
func NewStack(adapter Adapter, opts StackOptions, logger *slog.Logger) *Stack {
	if opts.EventQueue <= 0 {
		opts.EventQueue = DefaultStackOptions().EventQueue
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Stack{
		adapter: adapter,
		log:     logger,
		events:  make(chan hidhost.Event, opts.EventQueue),
		ctx:     ctx,
		cancel:  cancel,
		peers:   make(map[hidhost.Address]peer),
		conns:   make(map[hidhost.Address]Connection),
	}
}

// Events returns the event feed.
func (s *Stack) Events() <-chan hidhost.Event {
	return s.events
}

// SetDiscoverableConnectable enables the adapter. A BLE central has no
// scan mode of its own to set.
func (s *Stack) SetDiscoverableConnectable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled {
		return nil
	}
	if err := s.adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}
	s.enabled = true
	return nil
}

// StartInquiry starts a scan. Inquiry length and response limits have no
// BLE equivalent; the caller's scan window bounds the scan.
func (s *Stack) StartInquiry(mode hidhost.InquiryMode, length uint8, maxResponses uint8) error {
	s.mu.Lock()
	if s.scanning {
		s.mu.Unlock()
		return fmt.Errorf("ble: scan already running")
	}
	s.scanning = true
	s.scanGen++
	gen := s.scanGen
	s.mu.Unlock()

	s.emit(hidhost.DiscoveryStateChanged{State: hidhost.DiscoveryStarted})
	go func() {
		// s.ctx only ends the scan on Close; CancelInquiry stops it through
		// StopScan so the adapter is stopped from one place.
		err := s.adapter.Scan(s.ctx, s.advertised)
		if err != nil {
			s.log.Warn("[BLE] scan ended with error", "error", err)
		}
		s.mu.Lock()
		if s.scanGen == gen {
			s.scanning = false
		}
		s.mu.Unlock()
		s.emit(hidhost.DiscoveryStateChanged{State: hidhost.DiscoveryStopped})
	}()
	return nil
}

func (s *Stack) advertised(adv Advertisement) {
	addr, err := AddressOf(adv.Address)
	if err != nil {
		s.log.Debug("[BLE] unusable address", "address", adv.Address, "error", err)
		return
	}

	s.mu.Lock()
	p := s.peers[addr]
	p.address = adv.Address
	if adv.Name != "" {
		p.name = adv.Name
	}
	s.peers[addr] = p
	s.mu.Unlock()

	eir := adv.Payload
	if _, ok := hidhost.NameFromEIR(eir, hidhost.MaxNameLength); !ok {
		eir = hidhost.NameRecord(p.name)
	}
	s.emit(hidhost.DeviceFound{
		Address: addr,
		EIR:     eir,
		RSSI:    clampRSSI(adv.RSSI),
	})
}

// CancelInquiry stops a running scan. It is a no-op otherwise.
func (s *Stack) CancelInquiry() error {
	s.mu.Lock()
	running := s.scanning
	s.scanning = false
	s.mu.Unlock()
	if !running {
		return nil
	}
	if err := s.adapter.StopScan(); err != nil {
		return fmt.Errorf("ble: stop scan: %w", err)
	}
	return nil
}

// Connect opens the HID service of a scanned peripheral. The outcome
// arrives as an Opened event.
func (s *Stack) Connect(addr hidhost.Address, transport hidhost.Transport) error {
	if transport != hidhost.TransportLE {
		return fmt.Errorf("ble: transport %s not supported", transport)
	}
	s.mu.Lock()
	p, ok := s.peers[addr]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("ble: %s was not seen in a scan", addr)
	}
	go s.open(addr, p)
	return nil
}

func (s *Stack) open(addr hidhost.Address, p peer) {
	conn, err := s.adapter.Connect(s.ctx, p.address)
	if err != nil {
		s.emit(hidhost.Opened{Address: addr, Err: err})
		return
	}

	reports, err := conn.DiscoverCharacteristics(HIDServiceUUID, ReportCharUUID)
	if err != nil {
		conn.Disconnect()
		s.emit(hidhost.Opened{Address: addr, Err: fmt.Errorf("ble: discover HID reports: %w", err)})
		return
	}
	battery, err := conn.DiscoverCharacteristics(BatteryServiceUUID, BatteryLevelCharUUID)
	if err != nil {
		s.log.Debug("[BLE] no battery service", "addr", addr, "error", err)
		battery = nil
	}

	s.mu.Lock()
	s.conns[addr] = conn
	s.mu.Unlock()
	conn.OnDisconnect(func() {
		s.mu.Lock()
		_, ok := s.conns[addr]
		delete(s.conns, addr)
		s.mu.Unlock()
		if ok {
			s.emit(hidhost.Closed{Address: addr, Name: p.name})
		}
	})

	s.emit(hidhost.Opened{Address: addr, Name: p.name})

	for i, ch := range reports {
		index := uint32(i)
		err := ch.Subscribe(func(data []byte) {
			s.emit(hidhost.InputReport{Report: hidhost.Report{
				Address:  addr,
				Usage:    "HOGP",
				MapIndex: index,
				Data:     data,
			}})
		})
		if err != nil {
			s.log.Warn("[BLE] subscribe to report failed", "addr", addr, "index", index, "error", err)
			conn.Disconnect()
			return
		}
	}

	if len(battery) > 0 {
		level := battery[0]
		if data, err := level.Read(); err == nil && len(data) > 0 {
			s.emit(hidhost.BatteryReport{Address: addr, Level: data[0]})
		}
		err := level.Subscribe(func(data []byte) {
			if len(data) > 0 {
				s.emit(hidhost.BatteryReport{Address: addr, Level: data[0]})
			}
		})
		if err != nil {
			s.log.Debug("[BLE] battery notifications unavailable", "addr", addr, "error", err)
		}
	}
}

// ReplyPin is accepted and ignored: LE pairing is handled by the host OS.
func (s *Stack) ReplyPin(addr hidhost.Address, accept bool, pinLen uint8, pin hidhost.PinCode) error {
	s.log.Debug("[BLE] pin reply ignored", "addr", addr, "accept", accept)
	return nil
}

// Close stops scanning and drops every connection.
func (s *Stack) Close() error {
	if err := s.CancelInquiry(); err != nil {
		s.log.Warn("[BLE] stop scan on close", "error", err)
	}
	s.mu.Lock()
	conns := s.conns
	s.conns = make(map[hidhost.Address]Connection)
	s.mu.Unlock()
	for addr, conn := range conns {
		if err := conn.Disconnect(); err != nil {
			s.log.Warn("[BLE] disconnect on close", "addr", addr, "error", err)
		}
	}
	s.cancel()
	return nil
}

func (s *Stack) emit(ev hidhost.Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

// AddressOf maps an adapter address string to a hidhost.Address. MAC
// strings parse directly; CoreBluetooth UUIDs keep their last six bytes.
func AddressOf(s string) (hidhost.Address, error) {
	if addr, err := hidhost.ParseAddress(s); err == nil {
		return addr, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return hidhost.Address{}, fmt.Errorf("ble: address %q is neither MAC nor UUID", s)
	}
	var addr hidhost.Address
	copy(addr[:], id[len(id)-len(addr):])
	return addr, nil
}

func clampRSSI(rssi int) int8 {
	switch {
	case rssi < -128:
		return -128
	case rssi > 127:
		return 127
	}
	return int8(rssi)
}

var _ hidhost.Stack = (*Stack)(nil)
