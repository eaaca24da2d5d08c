package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownEvent = errors.New("unknown-event")
	ErrBadEnvelope  = errors.New("bad-envelope")
)

// Envelope is the frame every realtime message travels in.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Marshal frames payload under the given event name.
func Marshal(name string, payload any) ([]byte, error) {
	if !Known(name) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s payload: %w", name, err)
	}
	return json.Marshal(Envelope{Event: name, Data: data})
}

// Unmarshal parses a frame and rejects events outside the contract before
// any payload reaches the state machines on either side.
func Unmarshal(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrBadEnvelope, err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("%w: missing event name", ErrBadEnvelope)
	}
	if !Known(env.Event) {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	return env, nil
}

// Decode unmarshals an envelope's payload into dst.
func Decode(env Envelope, dst any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%w: %s carries no payload", ErrBadPayload, env.Event)
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrBadPayload, env.Event, err)
	}
	return nil
}
