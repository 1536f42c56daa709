package hidhost

import "testing"

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    Address
		wantErr bool
	}{
		{in: "AA:BB:CC:DD:EE:FF", want: Address{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}},
		{in: "00-1f-32-0a-0b-0c", want: Address{0x00, 0x1f, 0x32, 0x0a, 0x0b, 0x0c}},
		{in: "aa:bb:cc:dd:ee", wantErr: true},
		{in: "aa:bb:cc:dd:ee:gg", wantErr: true},
		{in: "aabb:cc:dd:ee:ff:00", wantErr: true},
		{in: "", wantErr: true},
		{in: "aa::bb:cc:dd:ee:ff", wantErr: true},
		{in: "aa::bb:cc:dd:ee", wantErr: true},
		{in: "aa:bb:cc:dd:ee:ff:", wantErr: true},
		{in: "aa:bb-cc:dd-ee:ff", wantErr: true},
		{in: "aa-bb-cc-dd-ee:ff", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseAddress(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAddress(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseAddress(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAddressString(t *testing.T) {
	a := Address{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	if got := a.String(); got != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("String() = %q, want %q", got, "aa:bb:cc:dd:ee:ff")
	}
	if a.IsZero() {
		t.Error("IsZero() = true for non-zero address")
	}
	if !(Address{}).IsZero() {
		t.Error("IsZero() = false for zero address")
	}
}
