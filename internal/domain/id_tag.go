package domain

import (
	"time"
)

// AuthorizationStatus mirrors the OCPP 1.6 idTagInfo status values.
type AuthorizationStatus string

const (
	AuthorizationAccepted     AuthorizationStatus = "Accepted"
	AuthorizationBlocked      AuthorizationStatus = "Blocked"
	AuthorizationExpired      AuthorizationStatus = "Expired"
	AuthorizationInvalid      AuthorizationStatus = "Invalid"
	AuthorizationConcurrentTx AuthorizationStatus = "ConcurrentTx"
)

// IdTag is an authorization record for an RFID card or app token.
type IdTag struct {
	Tag       string              `json:"tag" gorm:"primaryKey"`
	Status    AuthorizationStatus `json:"status"`
	ParentID  *string             `json:"parent_id,omitempty"`
	Expiry    *time.Time          `json:"expiry,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// EffectiveStatus folds expiry into the stored status.
func (t *IdTag) EffectiveStatus(now time.Time) AuthorizationStatus {
	if t.Expiry != nil && now.After(*t.Expiry) {
		return AuthorizationExpired
	}
	return t.Status
}
