package bluez

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/chaz8081/hidhost/internal/hidhost"
)

// ReportChannel delivers the reports of one connected device.
type ReportChannel interface {
	// Name is the product name the device reported, if any.
	Name() string
	// Run reads reports until ctx is cancelled or the device goes away.
	Run(ctx context.Context, emit func(hidhost.Event)) error
	Close() error
}

// ReportSource opens the report channel for a device whose HID profile
// just connected.
type ReportSource interface {
	Open(ctx context.Context, addr hidhost.Address) (ReportChannel, error)
}

// Options configures a Stack.
type Options struct {
	Adapter    string        // local adapter name, e.g. "hci0"
	PinTimeout time.Duration // how long the agent waits for ReplyPin
	EventQueue int
}

// DefaultOptions returns options for hci0.
func DefaultOptions() Options {
	return Options{
		Adapter:    "hci0",
		PinTimeout: 30 * time.Second,
		EventQueue: 64,
	}
}

type pinAnswer struct {
	accept bool
	pin    string
}

// Stack is a hidhost.Stack backed by BlueZ.
type Stack struct {
	conn    *dbus.Conn
	adapter dbus.ObjectPath
	reports ReportSource
	opts    Options
	log     *slog.Logger

	events  chan hidhost.Event
	signals chan *dbus.Signal
	ctx     context.Context
	cancel  context.CancelFunc

	mu          sync.Mutex
	inquiring   bool
	discovering bool
	names       map[hidhost.Address]string
	pending     map[hidhost.Address]chan pinAnswer
	sessions    map[hidhost.Address]context.CancelFunc
}

// New connects to the system bus, exports the pairing agent and starts
// translating BlueZ signals into events.
func New(reports ReportSource, opts Options, logger *slog.Logger) (*Stack, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("bluez: connect system bus: %w", err)
	}
	s := newStack(conn, reports, opts, logger)
	if err := s.start(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func newStack(conn *dbus.Conn, reports ReportSource, opts Options, logger *slog.Logger) *Stack {
	def := DefaultOptions()
	if opts.Adapter == "" {
		opts.Adapter = def.Adapter
	}
	if opts.PinTimeout <= 0 {
		opts.PinTimeout = def.PinTimeout
	}
	if opts.EventQueue <= 0 {
		opts.EventQueue = def.EventQueue
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Stack{
		conn:     conn,
		adapter:  AdapterPath(opts.Adapter),
		reports:  reports,
		opts:     opts,
		log:      logger,
		events:   make(chan hidhost.Event, opts.EventQueue),
		signals:  make(chan *dbus.Signal, opts.EventQueue),
		ctx:      ctx,
		cancel:   cancel,
		names:    make(map[hidhost.Address]string),
		pending:  make(map[hidhost.Address]chan pinAnswer),
		sessions: make(map[hidhost.Address]context.CancelFunc),
	}
}

func (s *Stack) start() error {
	if err := s.conn.AddMatchSignal(
		dbus.WithMatchInterface(ObjectManagerIface),
		dbus.WithMatchMember("InterfacesAdded"),
	); err != nil {
		return fmt.Errorf("bluez: match InterfacesAdded: %w", err)
	}
	if err := s.conn.AddMatchSignal(
		dbus.WithMatchInterface(PropertiesIface),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchOption("path_namespace", string(s.adapter)),
	); err != nil {
		return fmt.Errorf("bluez: match PropertiesChanged: %w", err)
	}
	s.conn.Signal(s.signals)
	go s.handleSignals()

	if err := s.loadKnownDevices(); err != nil {
		return err
	}

	if err := exportAgent(s.conn, &agent{stack: s}); err != nil {
		return err
	}
	s.log.Info("[BLUEZ] ready", "adapter", s.adapter)
	return nil
}

// Events returns the event feed.
func (s *Stack) Events() <-chan hidhost.Event {
	return s.events
}

// Close stops signal handling, ends report readers and releases the bus.
func (s *Stack) Close() error {
	s.cancel()
	s.mu.Lock()
	for addr, cancel := range s.sessions {
		cancel()
		delete(s.sessions, addr)
	}
	s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	s.conn.RemoveSignal(s.signals)
	return s.conn.Close()
}

// SetDiscoverableConnectable powers the adapter and makes it pairable and
// discoverable. BlueZ keeps a discoverable adapter connectable.
func (s *Stack) SetDiscoverableConnectable() error {
	obj := s.conn.Object(BusName, s.adapter)
	for _, prop := range []string{"Powered", "Pairable", "Discoverable"} {
		call := obj.Call(PropertiesIface+".Set", 0, AdapterInterface, prop, dbus.MakeVariant(true))
		if call.Err != nil {
			return fmt.Errorf("bluez: set %s: %w", prop, call.Err)
		}
	}
	return nil
}

// StartInquiry starts BR/EDR discovery. BlueZ runs discovery until stopped,
// so length and maxResponses only show up in the log; the caller's scan
// window bounds the inquiry.
func (s *Stack) StartInquiry(mode hidhost.InquiryMode, length uint8, maxResponses uint8) error {
	obj := s.conn.Object(BusName, s.adapter)
	filter := map[string]dbus.Variant{
		"Transport": dbus.MakeVariant("bredr"),
	}
	if call := obj.Call(AdapterInterface+".SetDiscoveryFilter", 0, filter); call.Err != nil {
		return fmt.Errorf("bluez: set discovery filter: %w", call.Err)
	}
	if call := obj.Call(AdapterInterface+".StartDiscovery", 0); call.Err != nil {
		return fmt.Errorf("bluez: start discovery: %w", call.Err)
	}
	s.mu.Lock()
	s.inquiring = true
	s.mu.Unlock()
	s.log.Debug("[BLUEZ] discovery requested", "mode", mode, "length", length, "max_responses", maxResponses)
	return nil
}

// CancelInquiry stops discovery if this stack started it.
func (s *Stack) CancelInquiry() error {
	s.mu.Lock()
	if !s.inquiring {
		s.mu.Unlock()
		return nil
	}
	s.inquiring = false
	s.mu.Unlock()

	call := s.conn.Object(BusName, s.adapter).Call(AdapterInterface+".StopDiscovery", 0)
	if call.Err != nil {
		if errorName(call.Err) == "org.bluez.Error.Failed" {
			// discovery already stopped on the adapter side
			return nil
		}
		return fmt.Errorf("bluez: stop discovery: %w", call.Err)
	}
	return nil
}

// Connect pairs with addr if needed and connects its HID profile. The
// outcome arrives as an Opened event.
func (s *Stack) Connect(addr hidhost.Address, transport hidhost.Transport) error {
	if transport != hidhost.TransportBR {
		return fmt.Errorf("bluez: transport %s not supported", transport)
	}
	go s.open(addr)
	return nil
}

func (s *Stack) open(addr hidhost.Address) {
	fail := func(step string, err error) {
		s.log.Warn("[BLUEZ] open failed", "addr", addr, "step", step, "error", err)
		s.emit(hidhost.Opened{Address: addr, Err: fmt.Errorf("bluez: %s: %w", step, err)})
	}

	dev := s.conn.Object(BusName, DevicePath(s.adapter, addr))
	paired, err := dev.GetProperty(DeviceInterface + ".Paired")
	if err != nil {
		fail("read paired", err)
		return
	}
	if p, _ := paired.Value().(bool); !p {
		if call := dev.Call(DeviceInterface+".Pair", 0); call.Err != nil {
			fail("pair", call.Err)
			return
		}
	}
	if call := dev.Call(PropertiesIface+".Set", 0, DeviceInterface, "Trusted", dbus.MakeVariant(true)); call.Err != nil {
		s.log.Warn("[BLUEZ] could not mark device trusted", "addr", addr, "error", call.Err)
	}
	if call := dev.Call(DeviceInterface+".ConnectProfile", 0, HIDProfileUUID); call.Err != nil {
		fail("connect HID profile", call.Err)
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	ch, err := s.reports.Open(ctx, addr)
	if err != nil {
		cancel()
		fail("open reports", err)
		return
	}

	s.mu.Lock()
	s.sessions[addr] = cancel
	name := s.names[addr]
	s.mu.Unlock()
	if n := ch.Name(); n != "" && name == "" {
		name = n
	}

	s.emit(hidhost.Opened{Address: addr, Name: name})
	go func() {
		defer ch.Close()
		if err := ch.Run(ctx, s.emit); err != nil && ctx.Err() == nil {
			s.log.Warn("[BLUEZ] report reader stopped", "addr", addr, "error", err)
		}
	}()
}

// ReplyPin answers the agent call waiting on addr.
func (s *Stack) ReplyPin(addr hidhost.Address, accept bool, pinLen uint8, pin hidhost.PinCode) error {
	s.mu.Lock()
	ch, ok := s.pending[addr]
	delete(s.pending, addr)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("bluez: no pin request pending for %s", addr)
	}
	if int(pinLen) > len(pin) {
		pinLen = uint8(len(pin))
	}
	ch <- pinAnswer{accept: accept, pin: string(pin[:pinLen])}
	return nil
}

// emit delivers ev unless the stack is closing.
func (s *Stack) emit(ev hidhost.Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

// endSession stops the report reader for addr and reports whether one ran.
func (s *Stack) endSession(addr hidhost.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancel, ok := s.sessions[addr]
	if ok {
		cancel()
		delete(s.sessions, addr)
	}
	return ok
}

// errorName returns the D-Bus error name carried by err, if any.
func errorName(err error) string {
	var byValue dbus.Error
	if errors.As(err, &byValue) {
		return byValue.Name
	}
	var byPtr *dbus.Error
	if errors.As(err, &byPtr) {
		return byPtr.Name
	}
	return ""
}

var _ hidhost.Stack = (*Stack)(nil)
