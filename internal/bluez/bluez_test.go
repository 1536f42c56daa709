package bluez

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaz8081/hidhost/internal/hidhost"
)

var board = hidhost.Address{0x00, 0x1f, 0x32, 0xaa, 0xbb, 0xcc}

func testStack(t *testing.T) *Stack {
	t.Helper()
	s := newStack(nil, nil, Options{PinTimeout: time.Second}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { s.Close() })
	return s
}

func boardPath() dbus.ObjectPath {
	return "/org/bluez/hci0/dev_00_1F_32_AA_BB_CC"
}

func TestDevicePathRoundTrip(t *testing.T) {
	path := DevicePath(AdapterPath("hci0"), board)
	assert.Equal(t, boardPath(), path)

	addr, err := AddressFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, board, addr)
}

func TestAddressFromPathRejectsNonDevice(t *testing.T) {
	_, err := AddressFromPath("/org/bluez/hci0")
	assert.Error(t, err)

	_, err = AddressFromPath("/org/bluez/hci0/dev_zz")
	assert.Error(t, err)
}

func TestTranslateAdapterDiscovering(t *testing.T) {
	s := testStack(t)
	sig := &dbus.Signal{
		Path: "/org/bluez/hci0",
		Name: PropertiesChanged,
		Body: []interface{}{
			AdapterInterface,
			map[string]dbus.Variant{"Discovering": dbus.MakeVariant(true)},
			[]string{},
		},
	}

	events := s.translate(sig)
	require.Len(t, events, 1)
	assert.Equal(t, hidhost.DiscoveryStateChanged{State: hidhost.DiscoveryStarted}, events[0])

	// unchanged state is not repeated
	assert.Empty(t, s.translate(sig))
}

func TestTranslateInterfacesAddedWhileDiscovering(t *testing.T) {
	s := testStack(t)
	s.discovering = true

	sig := &dbus.Signal{
		Path: "/",
		Name: InterfacesAdded,
		Body: []interface{}{
			boardPath(),
			map[string]map[string]dbus.Variant{
				DeviceInterface: {
					"Name":  dbus.MakeVariant("Nintendo RVL-WBC-01"),
					"RSSI":  dbus.MakeVariant(int16(-52)),
					"Class": dbus.MakeVariant(uint32(0x002504)),
				},
			},
		},
	}

	events := s.translate(sig)
	require.Len(t, events, 1)
	found, ok := events[0].(hidhost.DeviceFound)
	require.True(t, ok)
	assert.Equal(t, board, found.Address)
	assert.Equal(t, int8(-52), found.RSSI)
	assert.Equal(t, uint32(0x002504), found.ClassOfDevice)

	name, ok := hidhost.NameFromEIR(found.EIR, hidhost.MaxNameLength)
	require.True(t, ok)
	assert.Equal(t, "Nintendo RVL-WBC-01", name)
}

func TestTranslateRSSIUsesCachedName(t *testing.T) {
	s := testStack(t)
	s.discovering = true
	s.names[board] = "BoardName"

	events := s.translate(&dbus.Signal{
		Path: boardPath(),
		Name: PropertiesChanged,
		Body: []interface{}{
			DeviceInterface,
			map[string]dbus.Variant{"RSSI": dbus.MakeVariant(int16(-300))},
			[]string{},
		},
	})
	require.Len(t, events, 1)
	found := events[0].(hidhost.DeviceFound)
	assert.Equal(t, int8(-128), found.RSSI)
	name, ok := hidhost.NameFromEIR(found.EIR, hidhost.MaxNameLength)
	require.True(t, ok)
	assert.Equal(t, "BoardName", name)
}

func TestTranslateIgnoresDevicesOutsideDiscovery(t *testing.T) {
	s := testStack(t)
	events := s.translate(&dbus.Signal{
		Path: boardPath(),
		Name: PropertiesChanged,
		Body: []interface{}{
			DeviceInterface,
			map[string]dbus.Variant{"Name": dbus.MakeVariant("BoardName")},
			[]string{},
		},
	})
	assert.Empty(t, events)
	assert.Equal(t, "BoardName", s.names[board])
}

func TestTranslateDisconnectClosesActiveSession(t *testing.T) {
	s := testStack(t)
	s.names[board] = "BoardName"
	cancelled := false
	s.sessions[board] = func() { cancelled = true }

	sig := &dbus.Signal{
		Path: boardPath(),
		Name: PropertiesChanged,
		Body: []interface{}{
			DeviceInterface,
			map[string]dbus.Variant{"Connected": dbus.MakeVariant(false)},
			[]string{},
		},
	}

	events := s.translate(sig)
	require.Len(t, events, 1)
	assert.Equal(t, hidhost.Closed{Address: board, Name: "BoardName"}, events[0])
	assert.True(t, cancelled)

	// no session left, nothing to close
	assert.Empty(t, s.translate(sig))
}

func TestTranslateOtherAdapterAndUnknown(t *testing.T) {
	s := testStack(t)
	s.discovering = true

	assert.Empty(t, s.translate(&dbus.Signal{
		Path: "/org/bluez/hci1/dev_00_1F_32_AA_BB_CC",
		Name: PropertiesChanged,
		Body: []interface{}{
			DeviceInterface,
			map[string]dbus.Variant{"RSSI": dbus.MakeVariant(int16(-40))},
			[]string{},
		},
	}))

	events := s.translate(&dbus.Signal{Path: "/org/bluez/hci0", Name: "org.bluez.Adapter1.Something"})
	require.Len(t, events, 1)
	assert.Equal(t, hidhost.UnknownEvent{Source: "org.bluez.Adapter1.Something"}, events[0])

	assert.Empty(t, s.translate(&dbus.Signal{Name: "org.freedesktop.DBus.NameAcquired"}))
}

func TestAgentPinCodeAnsweredByReplyPin(t *testing.T) {
	s := testStack(t)
	a := &agent{stack: s}

	type result struct {
		pin string
		err *dbus.Error
	}
	done := make(chan result, 1)
	go func() {
		pin, err := a.RequestPinCode(boardPath())
		done <- result{pin, err}
	}()

	ev := <-s.Events()
	assert.Equal(t, hidhost.PinRequest{Address: board}, ev)

	pin, n := hidhost.NewPinCode("0000")
	require.NoError(t, s.ReplyPin(board, true, n, pin))

	r := <-done
	assert.Nil(t, r.err)
	assert.Equal(t, "0000", r.pin)
}

func TestAgentPinCodeRejected(t *testing.T) {
	s := testStack(t)
	a := &agent{stack: s}

	done := make(chan *dbus.Error, 1)
	go func() {
		_, err := a.RequestPinCode(boardPath())
		done <- err
	}()

	<-s.Events()
	require.NoError(t, s.ReplyPin(board, false, 0, hidhost.PinCode{}))

	err := <-done
	require.NotNil(t, err)
	assert.Equal(t, errRejected, err.Name)
}

func TestAgentPinCodeTimesOut(t *testing.T) {
	s := testStack(t)
	s.opts.PinTimeout = 10 * time.Millisecond
	a := &agent{stack: s}

	_, err := a.RequestPinCode(boardPath())
	require.NotNil(t, err)
	assert.Equal(t, errCanceled, err.Name)

	// the late answer finds nothing to reply to
	pin, n := hidhost.NewPinCode("0000")
	assert.Error(t, s.ReplyPin(board, true, n, pin))
}

func TestReplyPinWithoutRequest(t *testing.T) {
	s := testStack(t)
	pin, n := hidhost.NewPinCode("0000")
	assert.Error(t, s.ReplyPin(board, true, n, pin))
}

func TestAgentAuthorizeService(t *testing.T) {
	a := &agent{stack: testStack(t)}
	assert.Nil(t, a.AuthorizeService(boardPath(), HIDProfileUUID))
	assert.NotNil(t, a.AuthorizeService(boardPath(), "0000110b-0000-1000-8000-00805f9b34fb"))
}

func TestConnectRejectsLE(t *testing.T) {
	s := testStack(t)
	assert.Error(t, s.Connect(board, hidhost.TransportLE))
}

func TestRSSIOnlyUpdateForDeviceKnownAtStartup(t *testing.T) {
	s := testStack(t)
	n := s.learnDevices(map[dbus.ObjectPath]map[string]map[string]dbus.Variant{
		boardPath(): {
			DeviceInterface: {
				"Name":   dbus.MakeVariant("Nintendo RVL-WBC-01"),
				"Paired": dbus.MakeVariant(true),
			},
		},
		"/org/bluez/hci0/dev_11_22_33_44_55_66": {
			DeviceInterface: {"Alias": dbus.MakeVariant("Keyboard")},
		},
		"/org/bluez/hci1/dev_22_22_22_22_22_22": {
			DeviceInterface: {"Name": dbus.MakeVariant("OtherAdapter")},
		},
		"/org/bluez/hci0": {
			AdapterInterface: {"Name": dbus.MakeVariant("host")},
		},
	})
	assert.Equal(t, 2, n)
	assert.Equal(t, "Keyboard", s.names[hidhost.Address{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}])

	s.inquiring = true
	events := s.translate(&dbus.Signal{
		Path: boardPath(),
		Name: PropertiesChanged,
		Body: []interface{}{
			DeviceInterface,
			map[string]dbus.Variant{"RSSI": dbus.MakeVariant(int16(-40))},
			[]string{},
		},
	})
	require.Len(t, events, 1)
	found := events[0].(hidhost.DeviceFound)
	assert.Equal(t, board, found.Address)

	name, ok := hidhost.NameFromEIR(found.EIR, hidhost.MaxNameLength)
	require.True(t, ok)
	assert.True(t, hidhost.Matcher{TargetName: "Nintendo RVL-WBC-01"}.Match(hidhost.DiscoveredDevice{
		Address: found.Address, Name: name, HasName: ok,
	}))
}
