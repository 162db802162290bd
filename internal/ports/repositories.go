package ports

import (
	"context"
	"time"

	"github.com/andescharge/csms/internal/domain"
)

type ChargePointRepository interface {
	Save(ctx context.Context, cp *domain.ChargePoint) error
	FindByID(ctx context.Context, id string) (*domain.ChargePoint, error)
	FindAll(ctx context.Context, filter map[string]interface{}) ([]domain.ChargePoint, error)
	FindPending(ctx context.Context) ([]domain.ChargePoint, error)
	UpdatePhysicalStatus(ctx context.Context, id string, status domain.PhysicalStatus) error
	UpdateOperationalStatus(ctx context.Context, id string, status domain.OperationalStatus) error
	UpdateLastSeen(ctx context.Context, id string, at time.Time) error
	UpdateLocation(ctx context.Context, id string, lat, lng float64, address string) error
	UpdatePricing(ctx context.Context, id string, pricePerKWh float64, rateKW *float64) error
	UpsertEVSE(ctx context.Context, evse *domain.EVSE) error
	FindEVSEs(ctx context.Context, chargePointID string) ([]domain.EVSE, error)
}

type DeviceRepository interface {
	Save(ctx context.Context, d *domain.Device) error
	FindBySerial(ctx context.Context, serial string) (*domain.Device, error)
}

// SessionRepository owns the charging-session critical paths. Start and Stop
// execute inside a single serializable transaction so the uniqueness and
// at-most-one-active invariants hold under concurrent writes.
type SessionRepository interface {
	// StartTransaction checks the at-most-one-active invariant for
	// (chargePointID, evseID), assigns the next server-side transaction id
	// and inserts the active session. Returns
	// domain.ErrConcurrentTransaction when an active session exists.
	StartTransaction(ctx context.Context, chargePointID string, evseID int, idTag string, meterStart int, startTime time.Time) (*domain.ChargingSession, error)

	// StopTransaction finalizes the active session with the given
	// transaction id and creates its order. Returns
	// domain.ErrNoActiveTransaction when no active session matches (the
	// caller decides idempotent acceptance).
	StopTransaction(ctx context.Context, chargePointID string, transactionID int, meterStop int, endTime time.Time, pricePerKWh float64) (*domain.ChargingSession, *domain.Order, error)

	FindByTransactionID(ctx context.Context, chargePointID string, transactionID int) (*domain.ChargingSession, error)
	FindActive(ctx context.Context, chargePointID string, evseID int) (*domain.ChargingSession, error)
	FindActiveByChargePoint(ctx context.Context, chargePointID string) ([]domain.ChargingSession, error)
	FindHistory(ctx context.Context, chargePointID string, from, to time.Time) ([]domain.ChargingSession, error)

	// InterruptStale moves sessions active for longer than the cutoff to
	// status=interrupted and reports how many were touched.
	InterruptStale(ctx context.Context, olderThan time.Time) (int64, error)
}

type MeterValueRepository interface {
	Save(ctx context.Context, mv *domain.MeterValue) error
	LastTimestamp(ctx context.Context, sessionID uint) (time.Time, error)
	FindBySession(ctx context.Context, sessionID uint) ([]domain.MeterValue, error)
}

type EventRepository interface {
	Append(ctx context.Context, ev *domain.DeviceEvent) error
	FindByChargePoint(ctx context.Context, chargePointID string, from, to time.Time, kinds []string) ([]domain.DeviceEvent, error)
	// LatestPerChargePoint returns the newest event per charge point, used
	// to rebuild the liveness cache after a cold start.
	LatestPerChargePoint(ctx context.Context) ([]domain.DeviceEvent, error)
}

type IdTagRepository interface {
	Find(ctx context.Context, tag string) (*domain.IdTag, error)
	Save(ctx context.Context, t *domain.IdTag) error
}

type OrderRepository interface {
	Save(ctx context.Context, o *domain.Order) error
	FindBySessionID(ctx context.Context, sessionID uint) (*domain.Order, error)
}

type UserRepository interface {
	Save(ctx context.Context, user *domain.User) error
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
}
