package domain

import (
	"fmt"
	"time"
)

// Device is the identity of a physical unit as provisioned. The charge point
// id equals the device serial in practice; the device row carries the
// transport credentials.
type Device struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	SerialNumber    string    `json:"serial_number" gorm:"uniqueIndex"`
	TypeCode        string    `json:"type_code"`
	SecretEncrypted string    `json:"-"`
	SecretAlgorithm string    `json:"secret_algorithm"`
	MQTTClientID    *string   `json:"mqtt_client_id,omitempty"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// MQTTCredentials returns the broker credentials derived from the device
// identity: client id "{type_code}&{serial}", username = serial.
func (d *Device) MQTTCredentials(secret string) (clientID, username, password string) {
	clientID = fmt.Sprintf("%s&%s", d.TypeCode, d.SerialNumber)
	if d.MQTTClientID != nil && *d.MQTTClientID != "" {
		clientID = *d.MQTTClientID
	}
	return clientID, d.SerialNumber, secret
}
