package ocpp

import (
	"encoding/json"
	"testing"
)

func TestValidateCallUnknownAction(t *testing.T) {
	ce := ValidateCall("MadeUpAction", json.RawMessage(`{}`))
	if ce == nil {
		t.Fatal("expected CallError")
	}
	if ce.Code != ErrorNotImplemented {
		t.Errorf("expected NotImplemented, got %q", ce.Code)
	}
}

func TestValidateCallServerActionFromCharger(t *testing.T) {
	ce := ValidateCall(ActionRemoteStartTransaction, json.RawMessage(`{"idTag":"T1"}`))
	if ce == nil {
		t.Fatal("expected CallError")
	}
	if ce.Code != ErrorNotSupported {
		t.Errorf("expected NotSupported, got %q", ce.Code)
	}
}

func TestValidateBootNotification(t *testing.T) {
	if ce := ValidateCall(ActionBootNotification, json.RawMessage(`{"chargePointVendor":"V","chargePointModel":"M"}`)); ce != nil {
		t.Errorf("expected valid boot, got %v", ce)
	}
	ce := ValidateCall(ActionBootNotification, json.RawMessage(`{"chargePointVendor":"V"}`))
	if ce == nil || ce.Code != ErrorProtocolError {
		t.Errorf("expected ProtocolError for missing model, got %v", ce)
	}
}

func TestValidateStatusNotification(t *testing.T) {
	valid := `{"connectorId":1,"status":"Available","errorCode":"NoError"}`
	if ce := ValidateCall(ActionStatusNotification, json.RawMessage(valid)); ce != nil {
		t.Errorf("expected valid status, got %v", ce)
	}

	badStatus := `{"connectorId":1,"status":"Sleeping","errorCode":"NoError"}`
	if ce := ValidateCall(ActionStatusNotification, json.RawMessage(badStatus)); ce == nil || ce.Code != ErrorPropertyConstraintViolation {
		t.Errorf("expected PropertyConstraintViolation for unknown status, got %v", ce)
	}

	badType := `{"connectorId":"one","status":"Available","errorCode":"NoError"}`
	if ce := ValidateCall(ActionStatusNotification, json.RawMessage(badType)); ce == nil || ce.Code != ErrorTypeConstraintViolation {
		t.Errorf("expected TypeConstraintViolation for string connectorId, got %v", ce)
	}
}

func TestValidateStartTransaction(t *testing.T) {
	valid := `{"connectorId":1,"idTag":"T1","meterStart":1000,"timestamp":"2025-01-01T00:00:00Z"}`
	if ce := ValidateCall(ActionStartTransaction, json.RawMessage(valid)); ce != nil {
		t.Errorf("expected valid start, got %v", ce)
	}

	missingTimestamp := `{"connectorId":1,"idTag":"T1","meterStart":1000}`
	if ce := ValidateCall(ActionStartTransaction, json.RawMessage(missingTimestamp)); ce == nil || ce.Code != ErrorProtocolError {
		t.Errorf("expected ProtocolError for missing timestamp, got %v", ce)
	}

	badTimestamp := `{"connectorId":1,"idTag":"T1","meterStart":1000,"timestamp":"yesterday"}`
	if ce := ValidateCall(ActionStartTransaction, json.RawMessage(badTimestamp)); ce == nil || ce.Code != ErrorTypeConstraintViolation {
		t.Errorf("expected TypeConstraintViolation for bad timestamp, got %v", ce)
	}

	zeroConnector := `{"connectorId":0,"idTag":"T1","meterStart":1000,"timestamp":"2025-01-01T00:00:00Z"}`
	if ce := ValidateCall(ActionStartTransaction, json.RawMessage(zeroConnector)); ce == nil || ce.Code != ErrorPropertyConstraintViolation {
		t.Errorf("expected PropertyConstraintViolation for connector 0, got %v", ce)
	}
}

func TestValidateMeterValues(t *testing.T) {
	valid := `{"connectorId":1,"transactionId":1,"meterValue":[{"timestamp":"2025-01-01T00:01:00Z","sampledValue":[{"value":"1500"}]}]}`
	if ce := ValidateCall(ActionMeterValues, json.RawMessage(valid)); ce != nil {
		t.Errorf("expected valid meter values, got %v", ce)
	}

	empty := `{"connectorId":1,"meterValue":[]}`
	if ce := ValidateCall(ActionMeterValues, json.RawMessage(empty)); ce == nil || ce.Code != ErrorOccurrenceConstraintViolation {
		t.Errorf("expected OccurrenceConstraintViolation for empty meterValue, got %v", ce)
	}
}

func TestValidateAuthorize(t *testing.T) {
	if ce := ValidateCall(ActionAuthorize, json.RawMessage(`{"idTag":"T1"}`)); ce != nil {
		t.Errorf("expected valid authorize, got %v", ce)
	}
	if ce := ValidateCall(ActionAuthorize, json.RawMessage(`{}`)); ce == nil || ce.Code != ErrorProtocolError {
		t.Errorf("expected ProtocolError for missing idTag, got %v", ce)
	}
	long := `{"idTag":"ABCDEFGHIJKLMNOPQRSTU"}`
	if ce := ValidateCall(ActionAuthorize, json.RawMessage(long)); ce == nil || ce.Code != ErrorPropertyConstraintViolation {
		t.Errorf("expected PropertyConstraintViolation for long idTag, got %v", ce)
	}
}
