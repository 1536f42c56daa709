// Package ble is a hidhost.Stack for HID-over-GATT peripherals. It scans
// for advertisements, connects to the chosen peripheral and subscribes to
// its HID report and battery level characteristics.
package ble

import "context"

// GATT UUIDs for HID over GATT.
const (
	HIDServiceUUID       = "00001812-0000-1000-8000-00805f9b34fb"
	ReportCharUUID       = "00002a4d-0000-1000-8000-00805f9b34fb"
	BatteryServiceUUID   = "0000180f-0000-1000-8000-00805f9b34fb"
	BatteryLevelCharUUID = "00002a19-0000-1000-8000-00805f9b34fb"
)

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	// Read returns the current value.
	Read() ([]byte, error)
	// Subscribe registers a callback for notifications on this characteristic.
	Subscribe(callback func(data []byte)) error
}

// Advertisement is one scan result.
type Advertisement struct {
	Address string // platform address string, a MAC or a CoreBluetooth UUID
	Name    string
	RSSI    int
	Payload []byte // raw advertising data, when the platform exposes it
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// DiscoverCharacteristics finds every characteristic with charUUID in
	// the service.
	DiscoverCharacteristics(serviceUUID, charUUID string) ([]Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan reports advertisements to found until StopScan is called or ctx
	// is cancelled.
	Scan(ctx context.Context, found func(Advertisement)) error
	// StopScan ends a running scan.
	StopScan() error
	// Connect establishes a connection to the device with the given address.
	Connect(ctx context.Context, address string) (Connection, error)
}
