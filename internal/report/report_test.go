package report

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaz8081/hidhost/internal/hidhost"
)

func testRecord(kind hidhost.ReportKind, data []byte) hidhost.ReportRecord {
	return hidhost.ReportRecord{
		Time:      time.Date(2026, 10, 19, 12, 0, 0, 5, time.UTC),
		SessionID: uuid.MustParse("6f1c1b7e-4a55-4d2a-9a0c-2b1f7b4c7e01"),
		Address:   hidhost.Address{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff},
		Kind:      kind,
		Usage:     "GAMEPAD",
		MapIndex:  0,
		ReportID:  0x32,
		Length:    len(data),
		Data:      data,
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, sink.Emit(testRecord(hidhost.KindInput, []byte{0xde, 0xad})))
	out := buf.String()
	assert.Contains(t, out, "[HID] INPUT")
	assert.Contains(t, out, "addr=aa:bb:cc:dd:ee:ff")
	assert.Contains(t, out, "data=dead")
	assert.Contains(t, out, "id=50")

	buf.Reset()
	require.NoError(t, sink.Emit(testRecord(hidhost.KindBattery, []byte{87})))
	assert.Contains(t, buf.String(), "level=87")
}

func TestCBORSinkWritesReadableStream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.cbor")
	sink, err := NewCBORSink(path)
	require.NoError(t, err)

	require.NoError(t, sink.Emit(testRecord(hidhost.KindInput, []byte{1, 2, 3})))
	require.NoError(t, sink.Emit(testRecord(hidhost.KindFeature, []byte{4})))
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())
	assert.ErrorIs(t, sink.Emit(testRecord(hidhost.KindInput, nil)), ErrClosed)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	entries, err := ReadEntries(f)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", entries[0].Address)
	assert.Equal(t, "INPUT", entries[0].Kind)
	assert.Equal(t, []byte{1, 2, 3}, entries[0].Data)
	assert.Equal(t, "FEATURE", entries[1].Kind)
	assert.Equal(t, "6f1c1b7e-4a55-4d2a-9a0c-2b1f7b4c7e01", entries[1].SessionID)
	assert.True(t, entries[0].Time.Equal(testRecord(hidhost.KindInput, nil).Time))
}

func TestNewCBORSinkBadPath(t *testing.T) {
	_, err := NewCBORSink(filepath.Join(t.TempDir(), "missing", "reports.cbor"))
	assert.Error(t, err)
}

type failingSink struct{ err error }

func (f failingSink) Emit(hidhost.ReportRecord) error { return f.err }

func TestMultiSinkJoinsErrors(t *testing.T) {
	var buf bytes.Buffer
	boom := errors.New("boom")
	m := NewMultiSink(NewLogSink(slog.New(slog.NewTextHandler(&buf, nil))), failingSink{boom})

	err := m.Emit(testRecord(hidhost.KindInput, []byte{1}))
	assert.ErrorIs(t, err, boom)
	assert.True(t, strings.Contains(buf.String(), "[HID] INPUT"), "other sinks still receive the record")
}
