package bluez

import (
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/chaz8081/hidhost/internal/hidhost"
)

func (s *Stack) handleSignals() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case sig, ok := <-s.signals:
			if !ok {
				return
			}
			for _, ev := range s.translate(sig) {
				s.emit(ev)
			}
		}
	}
}

// translate turns one BlueZ signal into zero or more events.
func (s *Stack) translate(sig *dbus.Signal) []hidhost.Event {
	switch sig.Name {
	case InterfacesAdded:
		if len(sig.Body) < 2 {
			return nil
		}
		path, ok := sig.Body[0].(dbus.ObjectPath)
		if !ok || !s.underAdapter(path) {
			return nil
		}
		ifaces, ok := sig.Body[1].(map[string]map[string]dbus.Variant)
		if !ok {
			return nil
		}
		props, ok := ifaces[DeviceInterface]
		if !ok {
			return nil
		}
		return s.deviceChanged(path, props)

	case PropertiesChanged:
		if len(sig.Body) < 2 {
			return nil
		}
		iface, _ := sig.Body[0].(string)
		props, ok := sig.Body[1].(map[string]dbus.Variant)
		if !ok {
			return nil
		}
		switch iface {
		case AdapterInterface:
			if sig.Path != s.adapter {
				return nil
			}
			return s.adapterChanged(props)
		case DeviceInterface:
			if !s.underAdapter(sig.Path) {
				return nil
			}
			return s.deviceChanged(sig.Path, props)
		}
		return nil
	}

	if !strings.HasPrefix(sig.Name, "org.bluez.") {
		return nil
	}
	return []hidhost.Event{hidhost.UnknownEvent{Source: sig.Name}}
}

// loadKnownDevices caches the names of devices BlueZ already holds. A
// device remembered from an earlier run only reports RSSI when it is seen
// again, so its name has to come from here.
func (s *Stack) loadKnownDevices() error {
	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	call := s.conn.Object(BusName, "/").Call(ObjectManagerIface+".GetManagedObjects", 0)
	if call.Err != nil {
		return fmt.Errorf("bluez: list managed objects: %w", call.Err)
	}
	if err := call.Store(&objects); err != nil {
		return fmt.Errorf("bluez: decode managed objects: %w", err)
	}
	n := s.learnDevices(objects)
	s.log.Debug("[BLUEZ] known devices", "count", n)
	return nil
}

// learnDevices records the Name, or failing that the Alias, of every
// Device1 under the adapter and returns how many were named.
func (s *Stack) learnDevices(objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for path, ifaces := range objects {
		props, ok := ifaces[DeviceInterface]
		if !ok || !s.underAdapter(path) {
			continue
		}
		addr, err := AddressFromPath(path)
		if err != nil {
			continue
		}
		name, ok := stringProp(props, "Name")
		if !ok {
			name, ok = stringProp(props, "Alias")
		}
		if !ok || name == "" {
			continue
		}
		s.names[addr] = name
		n++
	}
	return n
}

func stringProp(props map[string]dbus.Variant, key string) (string, bool) {
	v, ok := props[key]
	if !ok {
		return "", false
	}
	str, ok := v.Value().(string)
	return str, ok
}

func (s *Stack) underAdapter(path dbus.ObjectPath) bool {
	return strings.HasPrefix(string(path), string(s.adapter)+"/")
}

func (s *Stack) adapterChanged(props map[string]dbus.Variant) []hidhost.Event {
	v, ok := props["Discovering"]
	if !ok {
		return nil
	}
	on, _ := v.Value().(bool)

	s.mu.Lock()
	changed := s.discovering != on
	s.discovering = on
	s.mu.Unlock()
	if !changed {
		return nil
	}
	state := hidhost.DiscoveryStopped
	if on {
		state = hidhost.DiscoveryStarted
	}
	return []hidhost.Event{hidhost.DiscoveryStateChanged{State: state}}
}

// deviceChanged handles Device1 properties from either InterfacesAdded or
// PropertiesChanged. A device seen while discovery runs becomes a
// DeviceFound carrying its name as an EIR record; a dropped connection of a
// device with an active reader becomes Closed.
func (s *Stack) deviceChanged(path dbus.ObjectPath, props map[string]dbus.Variant) []hidhost.Event {
	addr, err := AddressFromPath(path)
	if err != nil {
		return nil
	}

	var events []hidhost.Event

	s.mu.Lock()
	if v, ok := props["Name"]; ok {
		if name, ok := v.Value().(string); ok {
			s.names[addr] = name
		}
	}
	name, named := s.names[addr]
	discovering := s.discovering || s.inquiring
	s.mu.Unlock()

	if v, ok := props["Connected"]; ok {
		if up, _ := v.Value().(bool); !up && s.endSession(addr) {
			events = append(events, hidhost.Closed{Address: addr, Name: name})
		}
	}

	_, hasName := props["Name"]
	_, hasRSSI := props["RSSI"]
	if discovering && (hasName || hasRSSI) {
		found := hidhost.DeviceFound{
			Address: addr,
			RSSI:    rssiOf(props),
		}
		if named {
			found.EIR = hidhost.NameRecord(name)
		}
		if v, ok := props["Class"]; ok {
			found.ClassOfDevice, _ = v.Value().(uint32)
		}
		events = append(events, found)
	}
	return events
}

func rssiOf(props map[string]dbus.Variant) int8 {
	v, ok := props["RSSI"]
	if !ok {
		return 0
	}
	r, _ := v.Value().(int16)
	switch {
	case r < -128:
		return -128
	case r > 127:
		return 127
	}
	return int8(r)
}
