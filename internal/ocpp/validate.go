package ocpp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Per-action payload validation. A nil return means the payload is
// well-formed for the action; otherwise the returned CallError carries the
// code the charger should receive.

var chargerStatusValues = map[string]bool{
	"Available": true, "Preparing": true, "Charging": true,
	"SuspendedEV": true, "SuspendedEVSE": true, "Finishing": true,
	"Reserved": true, "Unavailable": true, "Faulted": true,
}

var chargerErrorCodes = map[string]bool{
	"ConnectorLockFailure": true, "EVCommunicationError": true, "GroundFailure": true,
	"HighTemperature": true, "InternalError": true, "LocalListConflict": true,
	"NoError": true, "OtherError": true, "OverCurrentFailure": true,
	"PowerMeterFailure": true, "PowerSwitchFailure": true, "ReaderFailure": true,
	"ResetFailure": true, "UnderVoltage": true, "OverVoltage": true, "WeakSignal": true,
}

// ValidateCall checks an inbound CALL's action and payload. It returns nil
// on success; the payload is only decoded for checking and is not returned.
func ValidateCall(action string, payload json.RawMessage) *CallError {
	if !IsSupportedAction(action) {
		return NewCallError(ErrorNotImplemented, fmt.Sprintf("action %q is not known", action))
	}
	if !IsChargerAction(action) {
		return NewCallError(ErrorNotSupported, fmt.Sprintf("action %q cannot be initiated by a charge point", action))
	}

	switch action {
	case ActionBootNotification:
		var req BootNotificationReq
		if ce := unmarshalStrict(payload, &req); ce != nil {
			return ce
		}
		if req.ChargePointVendor == "" || req.ChargePointModel == "" {
			return NewCallError(ErrorProtocolError, "chargePointVendor and chargePointModel are required")
		}
		if len(req.ChargePointVendor) > 20 || len(req.ChargePointModel) > 20 {
			return NewCallError(ErrorPropertyConstraintViolation, "vendor/model exceed CiString20 limit")
		}
	case ActionHeartbeat:
		// empty payload
	case ActionStatusNotification:
		var req StatusNotificationReq
		if ce := unmarshalStrict(payload, &req); ce != nil {
			return ce
		}
		if req.ConnectorID < 0 {
			return NewCallError(ErrorPropertyConstraintViolation, "connectorId must be >= 0")
		}
		if !chargerStatusValues[req.Status] {
			return NewCallError(ErrorPropertyConstraintViolation, fmt.Sprintf("unknown status %q", req.Status))
		}
		if !chargerErrorCodes[req.ErrorCode] {
			return NewCallError(ErrorPropertyConstraintViolation, fmt.Sprintf("unknown errorCode %q", req.ErrorCode))
		}
		if ce := checkTimestamp(req.Timestamp, false); ce != nil {
			return ce
		}
	case ActionAuthorize:
		var req AuthorizeReq
		if ce := unmarshalStrict(payload, &req); ce != nil {
			return ce
		}
		if ce := checkIdTag(req.IdTag); ce != nil {
			return ce
		}
	case ActionStartTransaction:
		var req StartTransactionReq
		if ce := unmarshalStrict(payload, &req); ce != nil {
			return ce
		}
		if req.ConnectorID < 1 {
			return NewCallError(ErrorPropertyConstraintViolation, "connectorId must be >= 1")
		}
		if ce := checkIdTag(req.IdTag); ce != nil {
			return ce
		}
		if req.MeterStart < 0 {
			return NewCallError(ErrorPropertyConstraintViolation, "meterStart must be >= 0")
		}
		if ce := checkTimestamp(req.Timestamp, true); ce != nil {
			return ce
		}
	case ActionStopTransaction:
		var req StopTransactionReq
		if ce := unmarshalStrict(payload, &req); ce != nil {
			return ce
		}
		if req.MeterStop < 0 {
			return NewCallError(ErrorPropertyConstraintViolation, "meterStop must be >= 0")
		}
		if ce := checkTimestamp(req.Timestamp, true); ce != nil {
			return ce
		}
	case ActionMeterValues:
		var req MeterValuesReq
		if ce := unmarshalStrict(payload, &req); ce != nil {
			return ce
		}
		if req.ConnectorID < 0 {
			return NewCallError(ErrorPropertyConstraintViolation, "connectorId must be >= 0")
		}
		if len(req.MeterValue) == 0 {
			return NewCallError(ErrorOccurrenceConstraintViolation, "meterValue must contain at least one entry")
		}
		for _, mv := range req.MeterValue {
			if ce := checkTimestamp(mv.Timestamp, true); ce != nil {
				return ce
			}
			if len(mv.SampledValue) == 0 {
				return NewCallError(ErrorOccurrenceConstraintViolation, "sampledValue must contain at least one entry")
			}
		}
	case ActionDataTransfer:
		var req DataTransferReq
		if ce := unmarshalStrict(payload, &req); ce != nil {
			return ce
		}
		if req.VendorID == "" {
			return NewCallError(ErrorProtocolError, "vendorId is required")
		}
	case ActionFirmwareStatusNotification:
		var req FirmwareStatusNotificationReq
		if ce := unmarshalStrict(payload, &req); ce != nil {
			return ce
		}
		if req.Status == "" {
			return NewCallError(ErrorProtocolError, "status is required")
		}
	case ActionDiagnosticsStatusNotification:
		var req DiagnosticsStatusNotificationReq
		if ce := unmarshalStrict(payload, &req); ce != nil {
			return ce
		}
		if req.Status == "" {
			return NewCallError(ErrorProtocolError, "status is required")
		}
	}
	return nil
}

func unmarshalStrict(payload json.RawMessage, dest interface{}) *CallError {
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		if _, ok := err.(*json.UnmarshalTypeError); ok {
			return NewCallError(ErrorTypeConstraintViolation, err.Error())
		}
		return NewCallError(ErrorFormationViolation, err.Error())
	}
	return nil
}

func checkIdTag(tag string) *CallError {
	if tag == "" {
		return NewCallError(ErrorProtocolError, "idTag is required")
	}
	if len(tag) > 20 {
		return NewCallError(ErrorPropertyConstraintViolation, "idTag exceeds CiString20 limit")
	}
	return nil
}

func checkTimestamp(value string, required bool) *CallError {
	if value == "" {
		if required {
			return NewCallError(ErrorProtocolError, "timestamp is required")
		}
		return nil
	}
	if _, err := time.Parse(time.RFC3339, value); err != nil {
		return NewCallError(ErrorTypeConstraintViolation, fmt.Sprintf("timestamp %q is not ISO-8601", value))
	}
	return nil
}

// ParseTimestamp converts a validated wire timestamp, defaulting to now for
// the optional ones.
func ParseTimestamp(value string, fallback time.Time) time.Time {
	if value == "" {
		return fallback
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return fallback
	}
	return ts.UTC()
}
