package ocpp

// Charger-initiated actions.
const (
	ActionBootNotification              = "BootNotification"
	ActionHeartbeat                     = "Heartbeat"
	ActionStatusNotification            = "StatusNotification"
	ActionAuthorize                     = "Authorize"
	ActionStartTransaction              = "StartTransaction"
	ActionStopTransaction               = "StopTransaction"
	ActionMeterValues                   = "MeterValues"
	ActionDataTransfer                  = "DataTransfer"
	ActionFirmwareStatusNotification    = "FirmwareStatusNotification"
	ActionDiagnosticsStatusNotification = "DiagnosticsStatusNotification"
)

// Server-initiated actions.
const (
	ActionRemoteStartTransaction = "RemoteStartTransaction"
	ActionRemoteStopTransaction  = "RemoteStopTransaction"
	ActionReset                  = "Reset"
	ActionChangeAvailability     = "ChangeAvailability"
	ActionChangeConfiguration    = "ChangeConfiguration"
	ActionGetConfiguration       = "GetConfiguration"
	ActionClearCache             = "ClearCache"
	ActionTriggerMessage         = "TriggerMessage"
	ActionUnlockConnector        = "UnlockConnector"
	ActionGetDiagnostics         = "GetDiagnostics"
	ActionUpdateFirmware         = "UpdateFirmware"
	ActionReserveNow             = "ReserveNow"
	ActionCancelReservation      = "CancelReservation"
	ActionSendLocalList          = "SendLocalList"
	ActionGetLocalListVersion    = "GetLocalListVersion"
	ActionSetChargingProfile     = "SetChargingProfile"
	ActionClearChargingProfile   = "ClearChargingProfile"
	ActionGetCompositeSchedule   = "GetCompositeSchedule"
)

var chargerActions = map[string]bool{
	ActionBootNotification:              true,
	ActionHeartbeat:                     true,
	ActionStatusNotification:            true,
	ActionAuthorize:                     true,
	ActionStartTransaction:              true,
	ActionStopTransaction:               true,
	ActionMeterValues:                   true,
	ActionDataTransfer:                  true,
	ActionFirmwareStatusNotification:    true,
	ActionDiagnosticsStatusNotification: true,
}

var serverActions = map[string]bool{
	ActionRemoteStartTransaction: true,
	ActionRemoteStopTransaction:  true,
	ActionReset:                  true,
	ActionChangeAvailability:     true,
	ActionChangeConfiguration:    true,
	ActionGetConfiguration:       true,
	ActionClearCache:             true,
	ActionTriggerMessage:         true,
	ActionUnlockConnector:        true,
	ActionGetDiagnostics:         true,
	ActionUpdateFirmware:         true,
	ActionReserveNow:             true,
	ActionCancelReservation:      true,
	ActionSendLocalList:          true,
	ActionGetLocalListVersion:    true,
	ActionSetChargingProfile:     true,
	ActionClearChargingProfile:   true,
	ActionGetCompositeSchedule:   true,
}

// IsChargerAction reports whether action may arrive from a charge point.
func IsChargerAction(action string) bool { return chargerActions[action] }

// IsServerAction reports whether action may be dispatched to a charge point.
func IsServerAction(action string) bool { return serverActions[action] }

// IsSupportedAction reports whether action is in the supported set of either
// direction.
func IsSupportedAction(action string) bool {
	return chargerActions[action] || serverActions[action]
}
