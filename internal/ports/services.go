package ports

import (
	"context"
	"encoding/json"
	"time"

	"github.com/andescharge/csms/internal/domain"
)

// Dispatcher is the router capability handed to services that issue
// server-originated OCPP calls. The returned payload is the CALLRESULT body;
// errors are domain.ErrChargerOffline, domain.ErrChargerBusy,
// domain.ErrCallTimeout, domain.ErrChargerDisconnected or an *ocpp.CallError
// relayed from the charger.
type Dispatcher interface {
	Dispatch(ctx context.Context, chargerID, action string, payload interface{}, timeout time.Duration) (json.RawMessage, error)
	IsOnline(chargerID string) bool
}

// ChargePointView is the read model served to the control plane, with the
// derived flags materialized.
type ChargePointView struct {
	domain.ChargePoint
	IsAvailable  bool `json:"is_available"`
	IsConfigured bool `json:"is_configured"`
	Online       bool `json:"online"`
}

type ChargePointService interface {
	List(ctx context.Context, filter map[string]interface{}) ([]ChargePointView, error)
	Get(ctx context.Context, id string) (*ChargePointView, error)
	ListPending(ctx context.Context) ([]ChargePointView, error)
	History(ctx context.Context, id string, from, to time.Time) ([]domain.ChargingSession, error)
	HeartbeatTimeline(ctx context.Context, id string, from, to time.Time) ([]domain.DeviceEvent, error)
	StatusTimeline(ctx context.Context, id string, from, to time.Time) ([]domain.DeviceEvent, error)
	Provision(ctx context.Context, cp *domain.ChargePoint) error
	// Credentials resolves the broker credentials for a provisioned
	// device; the password comes from the secret source when configured.
	Credentials(ctx context.Context, id string) (*DeviceCredentials, error)
	UpdateLocation(ctx context.Context, id string, lat, lng float64, address string) error
	UpdatePricing(ctx context.Context, id string, pricePerKWh float64, rateKW *float64) error
	RebuildLivenessCache(ctx context.Context) error
}

// ControlService issues server-originated OCPP actions. Every operation that
// reaches the charger rejects with domain.ErrChargerOffline when the session
// is not online.
type ControlService interface {
	RemoteStart(ctx context.Context, chargerID, idTag string, connectorID *int) (string, error)
	RemoteStop(ctx context.Context, chargerID string, transactionID *int) (string, error)
	Reset(ctx context.Context, chargerID, resetType string) (string, error)
	ChangeAvailability(ctx context.Context, chargerID string, connectorID int, availabilityType string) (string, error)
	TriggerMessage(ctx context.Context, chargerID, requestedMessage string) (string, error)
	UnlockConnector(ctx context.Context, chargerID string, connectorID int) (string, error)
	GetDiagnostics(ctx context.Context, chargerID, location string) (json.RawMessage, error)
	UpdateFirmware(ctx context.Context, chargerID, location string, retrieveDate time.Time) error
}

type AuthService interface {
	Login(ctx context.Context, email, password string) (string, error)
	ValidateToken(ctx context.Context, token string) (*domain.User, error)
}

// SecretSource resolves per-device transport credentials.
type SecretSource interface {
	DeviceSecret(ctx context.Context, serial string) (string, error)
}

// DeviceCredentials is what a charger needs to reach the MQTT broker.
type DeviceCredentials struct {
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
}
