package domain

import (
	"time"
)

type SessionStatus string

const (
	SessionStatusActive      SessionStatus = "active"
	SessionStatusCompleted   SessionStatus = "completed"
	SessionStatusCancelled   SessionStatus = "cancelled"
	SessionStatusInterrupted SessionStatus = "interrupted"
)

// ChargingSession is one active or historical charging transaction.
// (ChargePointID, EVSEID, TransactionID) is unique and at most one session
// per (ChargePointID, EVSEID) may be active at a time.
type ChargingSession struct {
	ID            uint          `json:"id" gorm:"primaryKey"`
	ChargePointID string        `json:"charge_point_id" gorm:"uniqueIndex:idx_session_cp_evse_tx"`
	EVSEID        int           `json:"evse_id" gorm:"column:evse_id;uniqueIndex:idx_session_cp_evse_tx"`
	TransactionID int           `json:"transaction_id" gorm:"uniqueIndex:idx_session_cp_evse_tx"`
	IdTag         string        `json:"id_tag"`
	UserID        *string       `json:"user_id,omitempty"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       *time.Time    `json:"end_time,omitempty"`
	MeterStart    int           `json:"meter_start"` // Wh
	MeterStop     *int          `json:"meter_stop,omitempty"`
	Status        SessionStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// EnergyKWh returns the delivered energy, zero while the session is open.
func (s *ChargingSession) EnergyKWh() float64 {
	if s.MeterStop == nil || *s.MeterStop < s.MeterStart {
		return 0
	}
	return float64(*s.MeterStop-s.MeterStart) / 1000.0
}

// MeterValue is one sampled reading emitted during a transaction. A reading
// never exists without its owning session.
type MeterValue struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	SessionID    uint      `json:"session_id" gorm:"index:idx_meter_session_ts;not null"`
	ConnectorID  int       `json:"connector_id"`
	Timestamp    time.Time `json:"timestamp" gorm:"index:idx_meter_session_ts"`
	Value        int       `json:"value"` // Wh
	SampledValue string    `json:"sampled_value"`
	CreatedAt    time.Time `json:"created_at"`
}

// Order is the commercial wrapper created when a session completes: linear
// price-per-kWh cost in COP, two decimals.
type Order struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	SessionID   uint      `json:"session_id" gorm:"uniqueIndex"`
	EnergyKWh   float64   `json:"energy_kwh"`
	PricePerKWh float64   `json:"price_per_kwh"`
	Amount      float64   `json:"amount"`
	Currency    string    `json:"currency"`
	CreatedAt   time.Time `json:"created_at"`
}

// RoundCost rounds a raw cost to two decimals, half-up, via integer centavos.
func RoundCost(raw float64) float64 {
	centavos := int64(raw*100 + 0.5)
	return float64(centavos) / 100.0
}
