// Package report provides the sinks that consume HID report records: a
// structured log sink, a CBOR file sink and a fan-out.
package report

import (
	"encoding/hex"
	"errors"
	"log/slog"

	"github.com/chaz8081/hidhost/internal/hidhost"
)

// LogSink writes each record as one structured log line, payload in hex.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink writing to logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Emit logs rec at info level.
func (s *LogSink) Emit(rec hidhost.ReportRecord) error {
	attrs := []any{
		"addr", rec.Address,
		"usage", rec.Usage,
		"map", rec.MapIndex,
		"id", rec.ReportID,
		"len", rec.Length,
		"data", hex.EncodeToString(rec.Data),
	}
	if rec.Kind == hidhost.KindBattery && len(rec.Data) == 1 {
		attrs = []any{"addr", rec.Address, "level", int(rec.Data[0])}
	}
	s.logger.Info("[HID] "+rec.Kind.String(), attrs...)
	return nil
}

// MultiSink sends records to several sinks.
type MultiSink struct {
	sinks []hidhost.ReportSink
}

// NewMultiSink creates a MultiSink.
func NewMultiSink(sinks ...hidhost.ReportSink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Emit hands rec to every sink and joins their errors.
func (m *MultiSink) Emit(rec hidhost.ReportRecord) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Emit(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Compile-time interface satisfaction checks.
var (
	_ hidhost.ReportSink = (*LogSink)(nil)
	_ hidhost.ReportSink = (*MultiSink)(nil)
)
