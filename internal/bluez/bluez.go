// Package bluez drives a Linux BlueZ adapter over D-Bus as a hidhost.Stack.
//
// Discovery, pairing and HID profile connection requests go to
// org.bluez.Adapter1 and org.bluez.Device1. Legacy PIN challenges reach a
// pairing agent exported on the bus and are surfaced as PinRequest events;
// the agent's D-Bus reply is held until ReplyPin answers it. Adapter and
// device signals become DeviceFound, DiscoveryStateChanged and Closed
// events. Reports are read through a ReportSource once the profile is up.
package bluez

import (
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/chaz8081/hidhost/internal/hidhost"
)

// BlueZ D-Bus names.
const (
	BusName            = "org.bluez"
	AdapterInterface   = "org.bluez.Adapter1"
	DeviceInterface    = "org.bluez.Device1"
	AgentInterface     = "org.bluez.Agent1"
	AgentManager       = "org.bluez.AgentManager1"
	PropertiesIface    = "org.freedesktop.DBus.Properties"
	ObjectManagerIface = "org.freedesktop.DBus.ObjectManager"

	InterfacesAdded   = ObjectManagerIface + ".InterfacesAdded"
	PropertiesChanged = PropertiesIface + ".PropertiesChanged"

	// HIDProfileUUID is the Human Interface Device profile.
	HIDProfileUUID = "00001124-0000-1000-8000-00805f9b34fb"

	AgentPath = dbus.ObjectPath("/org/bluez/hidhost/agent")

	errRejected = "org.bluez.Error.Rejected"
	errCanceled = "org.bluez.Error.Canceled"
)

// AdapterPath returns the object path of a local adapter such as "hci0".
func AdapterPath(name string) dbus.ObjectPath {
	return dbus.ObjectPath("/org/bluez/" + name)
}

// DevicePath returns the object path BlueZ uses for addr under adapter.
func DevicePath(adapter dbus.ObjectPath, addr hidhost.Address) dbus.ObjectPath {
	s := strings.ToUpper(strings.ReplaceAll(addr.String(), ":", "_"))
	return dbus.ObjectPath(string(adapter) + "/dev_" + s)
}

// AddressFromPath extracts the device address from a Device1 object path.
func AddressFromPath(path dbus.ObjectPath) (hidhost.Address, error) {
	p := string(path)
	i := strings.LastIndex(p, "/dev_")
	if i < 0 {
		return hidhost.Address{}, fmt.Errorf("bluez: %s is not a device path", p)
	}
	return hidhost.ParseAddress(strings.ReplaceAll(p[i+len("/dev_"):], "_", ":"))
}
