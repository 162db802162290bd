package ocpp

import (
	"encoding/json"
	"fmt"
)

// Envelope is the JSON body used on the MQTT topics. Calls carry an action;
// results carry only messageId+payload; errors carry the errorCode triple.
type Envelope struct {
	Action       string          `json:"action,omitempty"`
	MessageID    string          `json:"messageId"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	ErrorCode    string          `json:"errorCode,omitempty"`
	ErrorDesc    string          `json:"errorDescription,omitempty"`
	ErrorDetails json.RawMessage `json:"errorDetails,omitempty"`
}

// DecodeEnvelope parses an MQTT message body into the common Frame form.
func DecodeEnvelope(body []byte) (*Frame, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}
	if env.MessageID == "" || len(env.MessageID) > maxMessageIDLen {
		return nil, fmt.Errorf("message id length %d out of range [1,%d]", len(env.MessageID), maxMessageIDLen)
	}

	switch {
	case env.Action != "":
		return &Frame{
			Type:      MessageTypeCall,
			MessageID: env.MessageID,
			Action:    env.Action,
			Payload:   env.Payload,
		}, nil
	case env.ErrorCode != "":
		return &Frame{
			Type:         MessageTypeCallError,
			MessageID:    env.MessageID,
			ErrorCode:    ErrorCode(env.ErrorCode),
			ErrorDesc:    env.ErrorDesc,
			ErrorDetails: env.ErrorDetails,
		}, nil
	default:
		return &Frame{
			Type:      MessageTypeCallResult,
			MessageID: env.MessageID,
			Payload:   env.Payload,
		}, nil
	}
}

// EncodeEnvelope serializes a Frame as an MQTT message body.
func EncodeEnvelope(f *Frame) ([]byte, error) {
	env := Envelope{MessageID: f.MessageID}
	switch f.Type {
	case MessageTypeCall:
		env.Action = f.Action
		env.Payload = f.Payload
	case MessageTypeCallResult:
		env.Payload = f.Payload
	case MessageTypeCallError:
		env.ErrorCode = string(f.ErrorCode)
		env.ErrorDesc = f.ErrorDesc
		env.ErrorDetails = f.ErrorDetails
	default:
		return nil, fmt.Errorf("unknown message type id %d", f.Type)
	}
	if len(env.Payload) == 0 && f.Type != MessageTypeCallError {
		env.Payload = json.RawMessage("{}")
	}
	return json.Marshal(env)
}
