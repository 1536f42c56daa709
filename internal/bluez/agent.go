package bluez

import (
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/chaz8081/hidhost/internal/hidhost"
)

var agentIntrospectData = introspect.Node{
	Name: string(AgentPath),
	Interfaces: []introspect.Interface{
		introspect.IntrospectData,
		{
			Name: AgentInterface,
			Methods: []introspect.Method{
				{Name: "Release"},
				{Name: "RequestPinCode", Args: []introspect.Arg{
					{Name: "device", Type: "o", Direction: "in"},
					{Name: "pincode", Type: "s", Direction: "out"},
				}},
				{Name: "DisplayPinCode", Args: []introspect.Arg{
					{Name: "device", Type: "o", Direction: "in"},
					{Name: "pincode", Type: "s", Direction: "in"},
				}},
				{Name: "RequestPasskey", Args: []introspect.Arg{
					{Name: "device", Type: "o", Direction: "in"},
					{Name: "passkey", Type: "u", Direction: "out"},
				}},
				{Name: "DisplayPasskey", Args: []introspect.Arg{
					{Name: "device", Type: "o", Direction: "in"},
					{Name: "passkey", Type: "u", Direction: "in"},
					{Name: "entered", Type: "q", Direction: "in"},
				}},
				{Name: "RequestConfirmation", Args: []introspect.Arg{
					{Name: "device", Type: "o", Direction: "in"},
					{Name: "passkey", Type: "u", Direction: "in"},
				}},
				{Name: "RequestAuthorization", Args: []introspect.Arg{
					{Name: "device", Type: "o", Direction: "in"},
				}},
				{Name: "AuthorizeService", Args: []introspect.Arg{
					{Name: "device", Type: "o", Direction: "in"},
					{Name: "uuid", Type: "s", Direction: "in"},
				}},
				{Name: "Cancel"},
			},
		},
	},
}

// agent implements org.bluez.Agent1. Legacy PIN requests are forwarded to
// the dispatcher as PinRequest events; the method call stays open until
// Stack.ReplyPin answers or the PIN timeout passes.
type agent struct {
	stack *Stack
}

func exportAgent(conn *dbus.Conn, a *agent) error {
	if err := conn.Export(a, AgentPath, AgentInterface); err != nil {
		return fmt.Errorf("bluez: export agent: %w", err)
	}
	node := introspect.NewIntrospectable(&agentIntrospectData)
	if err := conn.Export(node, AgentPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("bluez: export agent introspection: %w", err)
	}

	mgr := conn.Object(BusName, "/org/bluez")
	if call := mgr.Call(AgentManager+".RegisterAgent", 0, AgentPath, "KeyboardDisplay"); call.Err != nil {
		return fmt.Errorf("bluez: register pairing agent: %w", call.Err)
	}
	if call := mgr.Call(AgentManager+".RequestDefaultAgent", 0, AgentPath); call.Err != nil {
		return fmt.Errorf("bluez: request default agent: %w", call.Err)
	}
	return nil
}

func rejected(msg string) *dbus.Error {
	return dbus.NewError(errRejected, []interface{}{msg})
}

func (a *agent) Release() *dbus.Error {
	a.stack.log.Info("[BLUEZ] agent released")
	return nil
}

func (a *agent) RequestPinCode(device dbus.ObjectPath) (string, *dbus.Error) {
	s := a.stack
	addr, err := AddressFromPath(device)
	if err != nil {
		return "", rejected(err.Error())
	}

	answer := make(chan pinAnswer, 1)
	s.mu.Lock()
	if old, ok := s.pending[addr]; ok {
		old <- pinAnswer{}
	}
	s.pending[addr] = answer
	s.mu.Unlock()

	s.emit(hidhost.PinRequest{Address: addr})

	timer := time.NewTimer(s.opts.PinTimeout)
	defer timer.Stop()
	select {
	case ans := <-answer:
		if !ans.accept {
			return "", rejected("pin request declined")
		}
		return ans.pin, nil
	case <-timer.C:
	case <-s.ctx.Done():
	}

	s.mu.Lock()
	if s.pending[addr] == answer {
		delete(s.pending, addr)
	}
	s.mu.Unlock()
	s.log.Warn("[BLUEZ] pin request unanswered", "addr", addr)
	return "", dbus.NewError(errCanceled, []interface{}{"pin request unanswered"})
}

func (a *agent) DisplayPinCode(device dbus.ObjectPath, pincode string) *dbus.Error {
	a.stack.log.Info("[BLUEZ] display pin", "device", device, "pin", pincode)
	return nil
}

func (a *agent) RequestPasskey(device dbus.ObjectPath) (uint32, *dbus.Error) {
	return 0, rejected("passkey entry not supported")
}

func (a *agent) DisplayPasskey(device dbus.ObjectPath, passkey uint32, entered uint16) *dbus.Error {
	a.stack.log.Info("[BLUEZ] display passkey", "device", device, "passkey", passkey, "entered", entered)
	return nil
}

func (a *agent) RequestConfirmation(device dbus.ObjectPath, passkey uint32) *dbus.Error {
	a.stack.log.Info("[BLUEZ] confirming passkey", "device", device, "passkey", passkey)
	return nil
}

func (a *agent) RequestAuthorization(device dbus.ObjectPath) *dbus.Error {
	return nil
}

func (a *agent) AuthorizeService(device dbus.ObjectPath, uuid string) *dbus.Error {
	if uuid == HIDProfileUUID {
		return nil
	}
	a.stack.log.Debug("[BLUEZ] service refused", "device", device, "uuid", uuid)
	return rejected("service not handled")
}

// Cancel drops every outstanding PIN request.
func (a *agent) Cancel() *dbus.Error {
	s := a.stack
	s.mu.Lock()
	defer s.mu.Unlock()
	for addr, ch := range s.pending {
		ch <- pinAnswer{}
		delete(s.pending, addr)
	}
	return nil
}
