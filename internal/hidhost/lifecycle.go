package hidhost

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ReportKind tags a ReportRecord with the event that produced it.
type ReportKind uint8

const (
	KindBattery ReportKind = iota
	KindInput
	KindFeature
)

func (k ReportKind) String() string {
	switch k {
	case KindBattery:
		return "BATTERY"
	case KindInput:
		return "INPUT"
	case KindFeature:
		return "FEATURE"
	default:
		return "UNKNOWN"
	}
}

// ReportRecord is the structured form of one report received while a
// session was open.
type ReportRecord struct {
	Time      time.Time
	SessionID uuid.UUID
	Address   Address
	Kind      ReportKind
	Usage     string
	MapIndex  uint32
	ReportID  uint32
	Length    int
	Data      []byte
}

// ReportSink consumes report records.
type ReportSink interface {
	Emit(rec ReportRecord) error
}

// Lifecycle applies open, close and report events to the session registry.
type Lifecycle struct {
	sink ReportSink
	log  *slog.Logger
	now  func() time.Time
}

// NewLifecycle creates a Lifecycle that hands report records to sink.
func NewLifecycle(sink ReportSink, logger *slog.Logger) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{sink: sink, log: logger, now: time.Now}
}

// OnOpen moves the opening session for ev.Address to Open, or to Closed if
// the open failed. Open events for addresses without an opening session are
// ignored. A failed open is not retried.
func (l *Lifecycle) OnOpen(reg *Registry, ev Opened) *Session {
	s := reg.Active(ev.Address)
	if s == nil || s.State != SessionOpening {
		l.log.Warn("[HID] open event for unknown session", "addr", ev.Address)
		return nil
	}
	if ev.Err != nil {
		l.log.Error("[HID] OPEN failed", "addr", ev.Address, "error", ev.Err)
		reg.end(s, l.now())
		return s
	}

	s.State = SessionOpen
	s.WasOpen = true
	s.Opened = l.now()
	if ev.Name != "" {
		s.Name = ev.Name
	}
	l.log.Info("[HID] OPEN",
		"addr", s.Address,
		"name", s.Name,
		"session", s.ID,
		"transport", s.Transport,
	)
	return s
}

// OnClose ends the session for ev.Address.
func (l *Lifecycle) OnClose(reg *Registry, ev Closed) *Session {
	s := reg.Active(ev.Address)
	if s == nil {
		l.log.Debug("[HID] close event for unknown session", "addr", ev.Address)
		return nil
	}
	name := ev.Name
	if name == "" {
		name = s.Name
	}
	reg.end(s, l.now())
	l.log.Info("[HID] CLOSE", "addr", s.Address, "name", name, "session", s.ID, "reports", s.Reports)
	return s
}

// OnReport turns a report on an open session into a ReportRecord and hands
// it to the sink. Reports for addresses without an open session are dropped.
func (l *Lifecycle) OnReport(reg *Registry, kind ReportKind, r Report) (ReportRecord, bool) {
	s := reg.Active(r.Address)
	if s == nil || s.State != SessionOpen {
		return ReportRecord{}, false
	}
	s.Reports++

	rec := ReportRecord{
		Time:      l.now(),
		SessionID: s.ID,
		Address:   s.Address,
		Kind:      kind,
		Usage:     r.Usage,
		MapIndex:  r.MapIndex,
		ReportID:  r.ReportID,
		Length:    len(r.Data),
		Data:      r.Data,
	}
	if l.sink != nil {
		if err := l.sink.Emit(rec); err != nil {
			l.log.Warn("[HID] report sink failed", "addr", s.Address, "kind", kind, "error", err)
		}
	}
	return rec, true
}

// OnBattery records a battery level as a single byte BATTERY report.
func (l *Lifecycle) OnBattery(reg *Registry, ev BatteryReport) (ReportRecord, bool) {
	return l.OnReport(reg, KindBattery, Report{
		Address: ev.Address,
		Usage:   KindBattery.String(),
		Data:    []byte{ev.Level},
	})
}
