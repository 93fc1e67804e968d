// ABOUTME: JSON message encode/decode helpers shared by transport and session
// ABOUTME: Parses the {type, payload} envelope permissively; unknown fields are ignored by encoding/json
package protocol

import (
	"encoding/json"
	"fmt"
)

// Encode marshals a typed payload into the {type, payload} envelope.
func Encode(msgType string, payload interface{}) ([]byte, error) {
	return json.Marshal(Message{Type: msgType, Payload: payload})
}

// DecodeEnvelope unmarshals the outer {type, payload} envelope without
// interpreting the payload.
func DecodeEnvelope(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("malformed json message: %w", err)
	}
	return msg, nil
}

// DecodePayload re-marshals the envelope's payload and unmarshals it into
// dst. Missing optional fields take their Go zero value, matching the
// spec's "parsed permissively" requirement.
func DecodePayload(msg Message, dst interface{}) error {
	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		return fmt.Errorf("re-marshal payload: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", msg.Type, err)
	}
	return nil
}
