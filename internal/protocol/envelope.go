// Package protocol defines the wire envelope exchanged over the persistent
// WebSocket connection and the typed payload shapes carried inside it.
//
// Every frame in either direction is a JSON object of the form
// {"event": "<name>", "data": {...}}; the event name selects the handler and
// the data shape is handler specific.
package protocol

import (
	"encoding/json"
	"io"

	"github.com/cockroachdb/errors"
	jsoniter "github.com/json-iterator/go"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrMalformed reports a frame that could not be parsed as an envelope.
var ErrMalformed = errors.New("protocol: malformed envelope")

// Envelope is the wire unit exchanged over a connection. Data is kept raw on
// the inbound path so each handler can decode its own payload shape; the
// envelope itself never validates handler data.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// New builds an envelope around an arbitrary data value. It is the outbound
// counterpart of Decode and is used for replies and broadcasts.
func New(event string, data any) (Envelope, error) {
	raw, err := codec.Marshal(data)
	if err != nil {
		return Envelope{}, errors.Wrapf(err, "protocol: encode %q data", event)
	}
	return Envelope{Event: event, Data: raw}, nil
}

// MustNew is New for payloads that cannot fail to marshal (maps and structs
// of plain values). It panics otherwise and is only used for server-built
// payloads, never for client input.
func MustNew(event string, data any) Envelope {
	env, err := New(event, data)
	if err != nil {
		panic(err)
	}
	return env
}

// Encode serializes an envelope for the wire.
func Encode(env Envelope) ([]byte, error) {
	b, err := codec.Marshal(env)
	if err != nil {
		return nil, errors.Wrap(err, "protocol: encode envelope")
	}
	return b, nil
}

// Decode parses one text frame into an envelope. The data payload is left
// raw; use DecodeData to project it onto a typed payload.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := codec.Unmarshal(frame, &env); err != nil {
		return Envelope{}, errors.Mark(errors.Wrap(err, "protocol: decode frame"), ErrMalformed)
	}
	if env.Event == "" {
		return Envelope{}, errors.Mark(errors.New("protocol: envelope has no event"), ErrMalformed)
	}
	return env, nil
}

// DecodeJSON decodes one JSON document from r with the shared codec.
func DecodeJSON(r io.Reader, dst any) error {
	if err := codec.NewDecoder(r).Decode(dst); err != nil {
		return errors.Wrap(err, "protocol: decode json")
	}
	return nil
}

// DecodeData projects an envelope's raw data onto a typed payload. A missing
// data object decodes every field to its zero value, matching the permissive
// reads the clients rely on.
func DecodeData(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := codec.Unmarshal(raw, dst); err != nil {
		return errors.Mark(errors.Wrap(err, "protocol: decode payload"), ErrMalformed)
	}
	return nil
}
