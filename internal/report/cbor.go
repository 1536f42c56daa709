package report

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/chaz8081/hidhost/internal/hidhost"
)

// Entry is the on-disk form of a report record. Integer keys keep the
// stream compact.
type Entry struct {
	Time      time.Time `cbor:"1,keyasint"`
	SessionID string    `cbor:"2,keyasint"`
	Address   string    `cbor:"3,keyasint"`
	Kind      string    `cbor:"4,keyasint"`
	Usage     string    `cbor:"5,keyasint,omitempty"`
	MapIndex  uint32    `cbor:"6,keyasint"`
	ReportID  uint32    `cbor:"7,keyasint"`
	Data      []byte    `cbor:"8,keyasint"`
}

var encMode cbor.EncMode

func init() {
	var err error
	encOpts := cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeRFC3339Nano,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create report CBOR encoder mode: %v", err))
	}
}

// ErrClosed is returned by Emit after Close.
var ErrClosed = errors.New("report: sink closed")

// CBORSink appends records to a file as a stream of CBOR items.
// It is safe for concurrent use.
type CBORSink struct {
	mu      sync.Mutex
	file    *os.File
	encoder *cbor.Encoder
	closed  bool
}

// NewCBORSink opens path for appending, creating it with 0644 if needed.
func NewCBORSink(path string) (*CBORSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("report: open %s: %w", path, err)
	}
	return &CBORSink{file: f, encoder: encMode.NewEncoder(f)}, nil
}

// Emit encodes rec.
func (s *CBORSink) Emit(rec hidhost.ReportRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.encoder.Encode(entryFrom(rec))
}

// Close closes the file. Calling Close more than once is safe.
func (s *CBORSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}

// ReadEntries decodes every entry in r until EOF.
func ReadEntries(r io.Reader) ([]Entry, error) {
	dec := cbor.NewDecoder(r)
	var out []Entry
	for {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, fmt.Errorf("report: decode entry %d: %w", len(out), err)
		}
		out = append(out, e)
	}
}

func entryFrom(rec hidhost.ReportRecord) Entry {
	return Entry{
		Time:      rec.Time,
		SessionID: rec.SessionID.String(),
		Address:   rec.Address.String(),
		Kind:      rec.Kind.String(),
		Usage:     rec.Usage,
		MapIndex:  rec.MapIndex,
		ReportID:  rec.ReportID,
		Data:      rec.Data,
	}
}

var _ hidhost.ReportSink = (*CBORSink)(nil)
