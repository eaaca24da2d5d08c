package roomclient

import "encoding/json"

// Transport is the persistent event channel to the server. It is assumed
// auto-reconnecting with at-least-once, ordered-per-connection delivery;
// event names are the contract.
type Transport interface {
	Emit(name string, payload any) error
	On(name string, handler func(data json.RawMessage))
	Off(name string)
	Connected() bool
}

// Notifier surfaces blocking notifications to the viewer. Recoverable
// errors (the option-id timing race) are never routed here.
type Notifier interface {
	Notify(message string)
}

type nopNotifier struct{}

func (nopNotifier) Notify(string) {}
