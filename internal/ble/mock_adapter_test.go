package ble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// mockCharacteristic serves a fixed value and allows subscribing.
type mockCharacteristic struct {
	mu        sync.Mutex
	value     []byte
	callback  func([]byte)
	subscribe error
}

func (c *mockCharacteristic) Read() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.value...), nil
}

func (c *mockCharacteristic) Subscribe(cb func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribe != nil {
		return c.subscribe
	}
	c.callback = cb
	return nil
}

// SimulateNotification sends a notification to the subscriber.
func (c *mockCharacteristic) SimulateNotification(data []byte) {
	c.mu.Lock()
	cb := c.callback
	c.mu.Unlock()
	if cb != nil {
		cb(data)
	}
}

func (c *mockCharacteristic) subscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callback != nil
}

// mockConnection simulates a HID-over-GATT peripheral.
type mockConnection struct {
	mu           sync.Mutex
	reports      []*mockCharacteristic
	battery      *mockCharacteristic
	disconnectCb func()
	disconnected bool
}

func newMockConnection() *mockConnection {
	return &mockConnection{
		reports: []*mockCharacteristic{{}, {}},
		battery: &mockCharacteristic{value: []byte{87}},
	}
}

func (c *mockConnection) DiscoverCharacteristics(serviceUUID, charUUID string) ([]Characteristic, error) {
	switch charUUID {
	case ReportCharUUID:
		out := make([]Characteristic, len(c.reports))
		for i, r := range c.reports {
			out[i] = r
		}
		return out, nil
	case BatteryLevelCharUUID:
		if c.battery == nil {
			return nil, errors.New("mock: no battery service")
		}
		return []Characteristic{c.battery}, nil
	default:
		return nil, fmt.Errorf("mock: unknown characteristic UUID %q", charUUID)
	}
}

func (c *mockConnection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	return nil
}

func (c *mockConnection) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
}

// SimulateDisconnect triggers the disconnect callback.
func (c *mockConnection) SimulateDisconnect() {
	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (c *mockConnection) isDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

// mockAdapter replays advertisements, then scans until stopped.
type mockAdapter struct {
	mu         sync.Mutex
	ads        []Advertisement
	enables    int
	stops      int
	connectErr error
	connected  []string
	connection *mockConnection // most recent connection for test assertions
	stopped    chan struct{}
}

func newMockAdapter(ads []Advertisement) *mockAdapter {
	return &mockAdapter{
		ads:        ads,
		connection: newMockConnection(),
		stopped:    make(chan struct{}, 1),
	}
}

func (a *mockAdapter) Enable() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enables++
	return nil
}

func (a *mockAdapter) Scan(ctx context.Context, found func(Advertisement)) error {
	a.mu.Lock()
	ads := a.ads
	a.mu.Unlock()
	for _, ad := range ads {
		found(ad)
	}
	select {
	case <-ctx.Done():
	case <-a.stopped:
	}
	return nil
}

func (a *mockAdapter) StopScan() error {
	a.mu.Lock()
	a.stops++
	a.mu.Unlock()
	select {
	case a.stopped <- struct{}{}:
	default:
	}
	return nil
}

func (a *mockAdapter) Connect(_ context.Context, address string) (Connection, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = append(a.connected, address)
	if a.connectErr != nil {
		return nil, a.connectErr
	}
	return a.connection, nil
}

func (a *mockAdapter) stopCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stops
}

func TestMockAdapterImplementsInterface(t *testing.T) {
	var _ Adapter = (*mockAdapter)(nil)
}

func TestMockConnectionImplementsInterface(t *testing.T) {
	var _ Connection = (*mockConnection)(nil)
}

func TestMockCharacteristicImplementsInterface(t *testing.T) {
	var _ Characteristic = (*mockCharacteristic)(nil)
}
