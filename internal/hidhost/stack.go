package hidhost

// InquiryMode selects the inquiry access code used by StartInquiry.
type InquiryMode uint8

const (
	GeneralInquiry InquiryMode = iota
	LimitedInquiry
)

// Transport is the link type a connect request should use.
type Transport uint8

const (
	TransportBR Transport = iota // Bluetooth Classic (BR/EDR)
	TransportLE
)

func (t Transport) String() string {
	switch t {
	case TransportBR:
		return "bt"
	case TransportLE:
		return "ble"
	default:
		return "unknown"
	}
}

// PinCode is a legacy pairing PIN, at most 16 bytes.
type PinCode [16]byte

// NewPinCode copies pin into a PinCode and returns its length.
func NewPinCode(pin string) (PinCode, uint8) {
	var code PinCode
	n := copy(code[:], pin)
	return code, uint8(n)
}

// Stack is the Bluetooth host stack the controller drives. Every call is a
// request; its outcome arrives later as an Event.
type Stack interface {
	// SetDiscoverableConnectable puts the local adapter in connectable and
	// discoverable mode.
	SetDiscoverableConnectable() error
	// StartInquiry begins a bounded inquiry. length is in 1.28s units and a
	// zero maxResponses means unlimited.
	StartInquiry(mode InquiryMode, length uint8, maxResponses uint8) error
	// CancelInquiry stops an inquiry. Cancelling when none is running is not
	// an error.
	CancelInquiry() error
	// Connect opens a HID session to addr.
	Connect(addr Address, transport Transport) error
	// ReplyPin answers a PIN challenge for addr.
	ReplyPin(addr Address, accept bool, pinLen uint8, pin PinCode) error
}
