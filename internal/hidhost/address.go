// Package hidhost implements the discovery, identification and session
// lifecycle logic of a Bluetooth Classic HID host. It turns scan results
// and stack callbacks into decisions: keep scanning, stop and connect,
// answer a pairing challenge, or tear a session down.
//
// The radio itself is reached through the Stack interface; the rest of
// the program feeds stack callbacks in as Events through a Dispatcher.
package hidhost

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Address is a 6-byte Bluetooth device address. It is the correlation key
// across discovery, pairing and session events.
type Address [6]byte

// ParseAddress parses "aa:bb:cc:dd:ee:ff" (either case, ':' or '-' separators).
func ParseAddress(s string) (Address, error) {
	var a Address
	sep := ":"
	if strings.Contains(s, "-") {
		sep = "-"
	}
	parts := strings.Split(s, sep)
	if len(parts) != len(a) {
		return a, fmt.Errorf("hidhost: invalid address %q", s)
	}
	for i, p := range parts {
		if len(p) != 2 {
			return a, fmt.Errorf("hidhost: invalid address %q", s)
		}
		b, err := hex.DecodeString(p)
		if err != nil {
			return a, fmt.Errorf("hidhost: invalid address %q: %w", s, err)
		}
		a[i] = b[0]
	}
	return a, nil
}

// String renders the address lower-case and colon separated.
func (a Address) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a[0], a[1], a[2], a[3], a[4], a[5])
}

// IsZero reports whether the address is all zero bytes.
func (a Address) IsZero() bool {
	return a == Address{}
}
