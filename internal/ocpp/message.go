package ocpp

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// MessageType identifies the OCPP 1.6J frame kind.
type MessageType int

const (
	// MessageTypeCall is a request: [2, "messageId", "Action", {payload}]
	MessageTypeCall MessageType = 2
	// MessageTypeCallResult is a successful response: [3, "messageId", {payload}]
	MessageTypeCallResult MessageType = 3
	// MessageTypeCallError is an error response:
	// [4, "messageId", "ErrorCode", "ErrorDescription", {errorDetails}]
	MessageTypeCallError MessageType = 4
)

// ErrorCode is an OCPP 1.6 CALLERROR code.
type ErrorCode string

const (
	ErrorNotImplemented                ErrorCode = "NotImplemented"
	ErrorNotSupported                  ErrorCode = "NotSupported"
	ErrorInternalError                 ErrorCode = "InternalError"
	ErrorProtocolError                 ErrorCode = "ProtocolError"
	ErrorSecurityError                 ErrorCode = "SecurityError"
	ErrorFormationViolation            ErrorCode = "FormationViolation"
	ErrorPropertyConstraintViolation   ErrorCode = "PropertyConstraintViolation"
	ErrorOccurrenceConstraintViolation ErrorCode = "OccurrenceConstraintViolation"
	ErrorTypeConstraintViolation       ErrorCode = "TypeConstraintViolation"
	ErrorGenericError                  ErrorCode = "GenericError"
)

const maxMessageIDLen = 36

// Frame is one decoded OCPP 1.6J message of any kind.
type Frame struct {
	Type         MessageType
	MessageID    string
	Action       string          // CALL only
	Payload      json.RawMessage // CALL and CALLRESULT
	ErrorCode    ErrorCode       // CALLERROR only
	ErrorDesc    string
	ErrorDetails json.RawMessage
}

// CallError carries a validation failure out of a handler so the router can
// answer with a CALLERROR frame instead of a CALLRESULT.
type CallError struct {
	Code        ErrorCode
	Description string
	Details     map[string]interface{}
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewCallError builds a CallError value for a handler to return.
func NewCallError(code ErrorCode, description string) *CallError {
	return &CallError{Code: code, Description: description}
}

// Decode parses a raw wire frame. Only JSON UTF-8 text is accepted; the
// message id must be a string of at most 36 characters.
func Decode(raw []byte) (*Frame, error) {
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("frame is not valid UTF-8")
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, fmt.Errorf("frame is not a JSON array: %w", err)
	}
	if len(parts) < 3 {
		return nil, fmt.Errorf("frame has %d elements, want at least 3", len(parts))
	}

	var msgType int
	if err := json.Unmarshal(parts[0], &msgType); err != nil {
		return nil, fmt.Errorf("invalid message type id: %w", err)
	}

	var messageID string
	if err := json.Unmarshal(parts[1], &messageID); err != nil {
		return nil, fmt.Errorf("message id is not a string: %w", err)
	}
	if messageID == "" || len(messageID) > maxMessageIDLen {
		return nil, fmt.Errorf("message id length %d out of range [1,%d]", len(messageID), maxMessageIDLen)
	}

	frame := &Frame{Type: MessageType(msgType), MessageID: messageID}

	switch MessageType(msgType) {
	case MessageTypeCall:
		if len(parts) != 4 {
			return nil, fmt.Errorf("CALL frame has %d elements, want 4", len(parts))
		}
		if err := json.Unmarshal(parts[2], &frame.Action); err != nil {
			return nil, fmt.Errorf("action is not a string: %w", err)
		}
		frame.Payload = parts[3]
	case MessageTypeCallResult:
		if len(parts) != 3 {
			return nil, fmt.Errorf("CALLRESULT frame has %d elements, want 3", len(parts))
		}
		frame.Payload = parts[2]
	case MessageTypeCallError:
		if len(parts) < 4 || len(parts) > 5 {
			return nil, fmt.Errorf("CALLERROR frame has %d elements, want 4 or 5", len(parts))
		}
		var code string
		if err := json.Unmarshal(parts[2], &code); err != nil {
			return nil, fmt.Errorf("error code is not a string: %w", err)
		}
		frame.ErrorCode = ErrorCode(code)
		if err := json.Unmarshal(parts[3], &frame.ErrorDesc); err != nil {
			return nil, fmt.Errorf("error description is not a string: %w", err)
		}
		if len(parts) == 5 {
			frame.ErrorDetails = parts[4]
		}
	default:
		return nil, fmt.Errorf("unknown message type id %d", msgType)
	}

	return frame, nil
}

// EncodeCall builds a CALL wire frame.
func EncodeCall(messageID, action string, payload interface{}) ([]byte, error) {
	body, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal([]interface{}{int(MessageTypeCall), messageID, action, body})
}

// EncodeCallResult builds a CALLRESULT wire frame.
func EncodeCallResult(messageID string, payload interface{}) ([]byte, error) {
	body, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal([]interface{}{int(MessageTypeCallResult), messageID, body})
}

// EncodeCallError builds a CALLERROR wire frame.
func EncodeCallError(messageID string, code ErrorCode, description string, details interface{}) ([]byte, error) {
	if details == nil {
		details = map[string]interface{}{}
	}
	return json.Marshal([]interface{}{int(MessageTypeCallError), messageID, string(code), description, details})
}

// Encode re-serializes a decoded frame. Decode(Encode(f)) is the identity on
// the action+payload pair.
func (f *Frame) Encode() ([]byte, error) {
	switch f.Type {
	case MessageTypeCall:
		return EncodeCall(f.MessageID, f.Action, f.Payload)
	case MessageTypeCallResult:
		return EncodeCallResult(f.MessageID, f.Payload)
	case MessageTypeCallError:
		var details interface{}
		if len(f.ErrorDetails) > 0 {
			details = f.ErrorDetails
		}
		return EncodeCallError(f.MessageID, f.ErrorCode, f.ErrorDesc, details)
	}
	return nil, fmt.Errorf("unknown message type id %d", f.Type)
}

func marshalPayload(payload interface{}) (json.RawMessage, error) {
	if payload == nil {
		return json.RawMessage("{}"), nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		if len(raw) == 0 {
			return json.RawMessage("{}"), nil
		}
		return raw, nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return body, nil
}
