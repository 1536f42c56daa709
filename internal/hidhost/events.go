package hidhost

import "fmt"

// Event is one occurrence delivered by the stack. The set of events is
// closed: only the types in this file implement it.
type Event interface {
	event()
}

// DiscoveryState is what the stack reports about its inquiry procedure.
type DiscoveryState uint8

const (
	DiscoveryStopped DiscoveryState = iota
	DiscoveryStarted
)

func (s DiscoveryState) String() string {
	if s == DiscoveryStarted {
		return "started"
	}
	return "stopped"
}

// DeviceFound carries one inquiry result.
type DeviceFound struct {
	Address       Address
	EIR           []byte // raw extended inquiry response, may be nil
	RSSI          int8
	ClassOfDevice uint32
}

// DiscoveryStateChanged reports that the stack's inquiry started or stopped.
type DiscoveryStateChanged struct {
	State DiscoveryState
}

// PinRequest is a legacy pairing challenge for Address.
type PinRequest struct {
	Address Address
}

// Opened is the outcome of a connect request. Err is nil on success.
type Opened struct {
	Address Address
	Name    string
	Err     error
}

// Closed reports that the session to Address ended.
type Closed struct {
	Address Address
	Name    string
}

// BatteryReport carries the device battery level in percent.
type BatteryReport struct {
	Address Address
	Level   uint8
}

// Report is a HID report as delivered by the stack. The payload is opaque.
type Report struct {
	Address  Address
	Usage    string
	MapIndex uint32
	ReportID uint32
	Data     []byte
}

// InputReport is an input report from the device.
type InputReport struct {
	Report
}

// FeatureReport is a feature report from the device.
type FeatureReport struct {
	Report
}

// UnknownEvent stands in for stack events the controller does not model.
type UnknownEvent struct {
	Source string
	Code   int
}

func (DeviceFound) event()           {}
func (DiscoveryStateChanged) event() {}
func (PinRequest) event()            {}
func (Opened) event()                {}
func (Closed) event()                {}
func (BatteryReport) event()         {}
func (InputReport) event()           {}
func (FeatureReport) event()         {}
func (UnknownEvent) event()          {}

func (e UnknownEvent) String() string {
	return fmt.Sprintf("%s event %d", e.Source, e.Code)
}
