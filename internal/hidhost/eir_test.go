package hidhost

import (
	"bytes"
	"testing"
)

func TestNameFromEIR(t *testing.T) {
	board := append([]byte{10, EIRTypeCompleteName}, "BoardName"...)
	flags := []byte{2, 0x01, 0x06}

	tests := []struct {
		name     string
		record   []byte
		capacity int
		want     string
		wantOK   bool
	}{
		{name: "complete name", record: board, capacity: MaxNameLength, want: "BoardName", wantOK: true},
		{name: "short name", record: append([]byte{5, EIRTypeShortName}, "Nint"...), capacity: 32, want: "Nint", wantOK: true},
		{name: "name after other field", record: append(append([]byte{}, flags...), board...), capacity: 32, want: "BoardName", wantOK: true},
		{name: "truncated to capacity-1", record: board, capacity: 6, want: "Board", wantOK: true},
		{name: "capacity one leaves empty name", record: board, capacity: 1, want: "", wantOK: true},
		{name: "zero capacity", record: board, capacity: 0, wantOK: false},
		{name: "zero length terminates", record: append(append(append([]byte{}, flags...), 0), board...), capacity: 32, wantOK: false},
		{name: "empty record", record: nil, capacity: 32, wantOK: false},
		{name: "no name field", record: flags, capacity: 32, wantOK: false},
		{name: "field overruns record", record: append([]byte{20, EIRTypeCompleteName}, "short"...), capacity: 32, wantOK: false},
		{name: "length byte without type", record: []byte{2, 0x01, 0x06, 4}, capacity: 32, wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NameFromEIR(tt.record, tt.capacity)
			if ok != tt.wantOK {
				t.Fatalf("NameFromEIR() ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("NameFromEIR() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNameFromEIRStopsAtMaxLength(t *testing.T) {
	// 20 fields of 12 bytes fill MaxEIRLength exactly; the name sits beyond it
	var record []byte
	for len(record) < MaxEIRLength {
		record = AppendEIRField(record, 0xFF, make([]byte, 10))
	}
	record = append(record, NameRecord("Hidden")...)

	if _, ok := NameFromEIR(record, 64); ok {
		t.Error("NameFromEIR() found a name past MaxEIRLength")
	}
}

func TestAppendEIRField(t *testing.T) {
	got := AppendEIRField(nil, EIRTypeCompleteName, []byte("BoardName"))
	want := append([]byte{10, 0x09}, "BoardName"...)
	if !bytes.Equal(got, want) {
		t.Errorf("AppendEIRField() = % x, want % x", got, want)
	}
	if NameRecord("") != nil {
		t.Error("NameRecord(\"\") should be nil")
	}
}
