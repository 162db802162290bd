package domain

import (
	"time"
)

// Event kinds recorded in the device audit log.
const (
	EventKindConnected       = "connected"
	EventKindDisconnected    = "disconnected"
	EventKindBootAccepted    = "boot_accepted"
	EventKindBootRejected    = "boot_rejected"
	EventKindHeartbeat       = "heartbeat"
	EventKindStatusChanged   = "status_changed"
	EventKindAuthorize       = "authorize"
	EventKindTxStarted       = "transaction_started"
	EventKindTxStopped       = "transaction_stopped"
	EventKindTxInterrupted   = "transaction_interrupted"
	EventKindMeterSample     = "meter_sample"
	EventKindOrphanMeter     = "orphan_meter_discarded"
	EventKindClockSkew       = "clock_skew_clamped"
	EventKindOrphanStop      = "orphan_stop"
	EventKindDecodeError     = "decode_error"
	EventKindEncodeError     = "encode_error"
	EventKindStoreError      = "store_error"
	EventKindFrameDropped    = "frame_dropped"
	EventKindCallDispatched  = "call_dispatched"
	EventKindCallTimeout     = "call_timeout"
	EventKindWatchdogExpired = "watchdog_expired"
)

// DeviceEvent is one append-only audit row for an OCPP action or state
// transition.
type DeviceEvent struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	ChargePointID string    `json:"charge_point_id" gorm:"index:idx_event_cp_ts"`
	EVSEID        *int      `json:"evse_id,omitempty"`
	Kind          string    `json:"kind"`
	Payload       string    `json:"payload"`
	Timestamp     time.Time `json:"timestamp" gorm:"index:idx_event_cp_ts"`
}
