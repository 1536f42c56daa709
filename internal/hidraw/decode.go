package hidraw

import "github.com/chaz8081/hidhost/internal/hidhost"

const (
	reportStatusRequest = 0x15
	reportStatus        = 0x20

	statusBatteryOffset = 6
	batteryFull         = 0xc8
)

// UsageName labels a top-level HID usage for logging and report records.
func UsageName(page, usage uint16) string {
	if page != 0x01 {
		return "GENERIC"
	}
	switch usage {
	case 0x02:
		return "MOUSE"
	case 0x04:
		return "JOYSTICK"
	case 0x05:
		return "GAMEPAD"
	case 0x06:
		return "KEYBOARD"
	}
	return "GENERIC"
}

// Decode turns one raw report, report id first, into events. Every report
// is delivered as input; a status report also yields the battery level.
func Decode(addr hidhost.Address, usage string, raw []byte) []hidhost.Event {
	if len(raw) == 0 {
		return nil
	}
	data := make([]byte, len(raw)-1)
	copy(data, raw[1:])

	var events []hidhost.Event
	if raw[0] == reportStatus && len(raw) > statusBatteryOffset {
		events = append(events, hidhost.BatteryReport{
			Address: addr,
			Level:   BatteryPercent(raw[statusBatteryOffset]),
		})
	}
	events = append(events, hidhost.InputReport{Report: hidhost.Report{
		Address:  addr,
		Usage:    usage,
		ReportID: uint32(raw[0]),
		Data:     data,
	}})
	return events
}

// BatteryPercent scales a raw status battery byte to 0..100.
func BatteryPercent(raw byte) uint8 {
	if raw >= batteryFull {
		return 100
	}
	return uint8(int(raw) * 100 / batteryFull)
}

// DecodeFeature turns a feature report, report id first, into an event.
func DecodeFeature(addr hidhost.Address, usage string, raw []byte) (hidhost.FeatureReport, bool) {
	if len(raw) == 0 {
		return hidhost.FeatureReport{}, false
	}
	data := make([]byte, len(raw)-1)
	copy(data, raw[1:])
	return hidhost.FeatureReport{Report: hidhost.Report{
		Address:  addr,
		Usage:    usage,
		ReportID: uint32(raw[0]),
		Data:     data,
	}}, true
}
