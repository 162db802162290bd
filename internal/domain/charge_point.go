package domain

import (
	"time"
)

// PhysicalStatus mirrors the OCPP 1.6 ChargePointStatus enumeration.
type PhysicalStatus string

const (
	PhysicalStatusAvailable     PhysicalStatus = "Available"
	PhysicalStatusPreparing     PhysicalStatus = "Preparing"
	PhysicalStatusCharging      PhysicalStatus = "Charging"
	PhysicalStatusSuspendedEV   PhysicalStatus = "SuspendedEV"
	PhysicalStatusSuspendedEVSE PhysicalStatus = "SuspendedEVSE"
	PhysicalStatusFinishing     PhysicalStatus = "Finishing"
	PhysicalStatusReserved      PhysicalStatus = "Reserved"
	PhysicalStatusUnavailable   PhysicalStatus = "Unavailable"
	PhysicalStatusFaulted       PhysicalStatus = "Faulted"
)

// ValidPhysicalStatus reports whether s is a known OCPP status value.
func ValidPhysicalStatus(s string) bool {
	switch PhysicalStatus(s) {
	case PhysicalStatusAvailable, PhysicalStatusPreparing, PhysicalStatusCharging,
		PhysicalStatusSuspendedEV, PhysicalStatusSuspendedEVSE, PhysicalStatusFinishing,
		PhysicalStatusReserved, PhysicalStatusUnavailable, PhysicalStatusFaulted:
		return true
	}
	return false
}

// OperationalStatus is the operator-controlled lifecycle flag, independent of
// what the hardware reports.
type OperationalStatus string

const (
	OperationalEnabled     OperationalStatus = "ENABLED"
	OperationalDisabled    OperationalStatus = "DISABLED"
	OperationalMaintenance OperationalStatus = "MAINTENANCE"
)

type ConnectorType string

const (
	ConnectorType1 ConnectorType = "Type1"
	ConnectorType2 ConnectorType = "Type2"
	ConnectorCCS1  ConnectorType = "CCS1"
	ConnectorCCS2  ConnectorType = "CCS2"
	ConnectorGBT   ConnectorType = "GBT"
)

// ChargePoint is one logical OCPP endpoint. The ID equals the device serial
// number in practice.
type ChargePoint struct {
	ID                string            `json:"id" gorm:"primaryKey"`
	Vendor            string            `json:"vendor"`
	Model             string            `json:"model"`
	FirmwareVersion   string            `json:"firmware_version"`
	PhysicalStatus    PhysicalStatus    `json:"physical_status"`
	OperationalStatus OperationalStatus `json:"operational_status"`
	LastSeen          time.Time         `json:"last_seen"`
	Latitude          *float64          `json:"latitude,omitempty"`
	Longitude         *float64          `json:"longitude,omitempty"`
	Address           *string           `json:"address,omitempty"`
	PricePerKWh       *float64          `json:"price_per_kwh,omitempty"`
	RateKW            *float64          `json:"rate_kw,omitempty"`
	EVSEs             []EVSE            `json:"evses" gorm:"foreignKey:ChargePointID"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// HasLocation reports whether the operator has placed the charger on the map.
func (cp *ChargePoint) HasLocation() bool {
	return cp.Latitude != nil && cp.Longitude != nil
}

// HasPricing reports whether a price per kWh has been assigned.
func (cp *ChargePoint) HasPricing() bool {
	return cp.PricePerKWh != nil && *cp.PricePerKWh > 0
}

// IsConfigured is derived: a charger is configured once it has both a
// location and pricing. Unconfigured chargers show up in the operator
// onboarding flow.
func (cp *ChargePoint) IsConfigured() bool {
	return cp.HasLocation() && cp.HasPricing()
}

// IsAvailable is derived from the hardware status and the operator flag.
func (cp *ChargePoint) IsAvailable() bool {
	return cp.PhysicalStatus == PhysicalStatusAvailable && cp.OperationalStatus == OperationalEnabled
}

// EVSE is one physical outlet of a charge point. (ChargePointID, ConnectorID)
// is unique; ConnectorID is the 1-based OCPP connector number.
type EVSE struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	ChargePointID string         `json:"charge_point_id" gorm:"uniqueIndex:idx_evse_cp_connector"`
	ConnectorID   int            `json:"connector_id" gorm:"uniqueIndex:idx_evse_cp_connector"`
	Type          ConnectorType  `json:"type"`
	Status        PhysicalStatus `json:"status"`
	LastErrorCode string         `json:"last_error_code"`
	UpdatedAt     time.Time      `json:"updated_at"`
}
