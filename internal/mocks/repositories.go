package mocks

import (
	"context"
	"time"

	"github.com/andescharge/csms/internal/domain"
)

// MockChargePointRepository is a mock implementation of ChargePointRepository
type MockChargePointRepository struct {
	SaveFunc                    func(ctx context.Context, cp *domain.ChargePoint) error
	FindByIDFunc                func(ctx context.Context, id string) (*domain.ChargePoint, error)
	FindAllFunc                 func(ctx context.Context, filter map[string]interface{}) ([]domain.ChargePoint, error)
	FindPendingFunc             func(ctx context.Context) ([]domain.ChargePoint, error)
	UpdatePhysicalStatusFunc    func(ctx context.Context, id string, status domain.PhysicalStatus) error
	UpdateOperationalStatusFunc func(ctx context.Context, id string, status domain.OperationalStatus) error
	UpdateLastSeenFunc          func(ctx context.Context, id string, at time.Time) error
	UpdateLocationFunc          func(ctx context.Context, id string, lat, lng float64, address string) error
	UpdatePricingFunc           func(ctx context.Context, id string, pricePerKWh float64, rateKW *float64) error
	UpsertEVSEFunc              func(ctx context.Context, evse *domain.EVSE) error
	FindEVSEsFunc               func(ctx context.Context, chargePointID string) ([]domain.EVSE, error)
}

func (m *MockChargePointRepository) Save(ctx context.Context, cp *domain.ChargePoint) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, cp)
	}
	return nil
}

func (m *MockChargePointRepository) FindByID(ctx context.Context, id string) (*domain.ChargePoint, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockChargePointRepository) FindAll(ctx context.Context, filter map[string]interface{}) ([]domain.ChargePoint, error) {
	if m.FindAllFunc != nil {
		return m.FindAllFunc(ctx, filter)
	}
	return []domain.ChargePoint{}, nil
}

func (m *MockChargePointRepository) FindPending(ctx context.Context) ([]domain.ChargePoint, error) {
	if m.FindPendingFunc != nil {
		return m.FindPendingFunc(ctx)
	}
	return []domain.ChargePoint{}, nil
}

func (m *MockChargePointRepository) UpdatePhysicalStatus(ctx context.Context, id string, status domain.PhysicalStatus) error {
	if m.UpdatePhysicalStatusFunc != nil {
		return m.UpdatePhysicalStatusFunc(ctx, id, status)
	}
	return nil
}

func (m *MockChargePointRepository) UpdateOperationalStatus(ctx context.Context, id string, status domain.OperationalStatus) error {
	if m.UpdateOperationalStatusFunc != nil {
		return m.UpdateOperationalStatusFunc(ctx, id, status)
	}
	return nil
}

func (m *MockChargePointRepository) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	if m.UpdateLastSeenFunc != nil {
		return m.UpdateLastSeenFunc(ctx, id, at)
	}
	return nil
}

func (m *MockChargePointRepository) UpdateLocation(ctx context.Context, id string, lat, lng float64, address string) error {
	if m.UpdateLocationFunc != nil {
		return m.UpdateLocationFunc(ctx, id, lat, lng, address)
	}
	return nil
}

func (m *MockChargePointRepository) UpdatePricing(ctx context.Context, id string, pricePerKWh float64, rateKW *float64) error {
	if m.UpdatePricingFunc != nil {
		return m.UpdatePricingFunc(ctx, id, pricePerKWh, rateKW)
	}
	return nil
}

func (m *MockChargePointRepository) UpsertEVSE(ctx context.Context, evse *domain.EVSE) error {
	if m.UpsertEVSEFunc != nil {
		return m.UpsertEVSEFunc(ctx, evse)
	}
	return nil
}

func (m *MockChargePointRepository) FindEVSEs(ctx context.Context, chargePointID string) ([]domain.EVSE, error) {
	if m.FindEVSEsFunc != nil {
		return m.FindEVSEsFunc(ctx, chargePointID)
	}
	return []domain.EVSE{}, nil
}

// MockSessionRepository is a mock implementation of SessionRepository
type MockSessionRepository struct {
	StartTransactionFunc        func(ctx context.Context, chargePointID string, evseID int, idTag string, meterStart int, startTime time.Time) (*domain.ChargingSession, error)
	StopTransactionFunc         func(ctx context.Context, chargePointID string, transactionID int, meterStop int, endTime time.Time, pricePerKWh float64) (*domain.ChargingSession, *domain.Order, error)
	FindByTransactionIDFunc     func(ctx context.Context, chargePointID string, transactionID int) (*domain.ChargingSession, error)
	FindActiveFunc              func(ctx context.Context, chargePointID string, evseID int) (*domain.ChargingSession, error)
	FindActiveByChargePointFunc func(ctx context.Context, chargePointID string) ([]domain.ChargingSession, error)
	FindHistoryFunc             func(ctx context.Context, chargePointID string, from, to time.Time) ([]domain.ChargingSession, error)
	InterruptStaleFunc          func(ctx context.Context, olderThan time.Time) (int64, error)
}

func (m *MockSessionRepository) StartTransaction(ctx context.Context, chargePointID string, evseID int, idTag string, meterStart int, startTime time.Time) (*domain.ChargingSession, error) {
	if m.StartTransactionFunc != nil {
		return m.StartTransactionFunc(ctx, chargePointID, evseID, idTag, meterStart, startTime)
	}
	return nil, nil
}

func (m *MockSessionRepository) StopTransaction(ctx context.Context, chargePointID string, transactionID int, meterStop int, endTime time.Time, pricePerKWh float64) (*domain.ChargingSession, *domain.Order, error) {
	if m.StopTransactionFunc != nil {
		return m.StopTransactionFunc(ctx, chargePointID, transactionID, meterStop, endTime, pricePerKWh)
	}
	return nil, nil, nil
}

func (m *MockSessionRepository) FindByTransactionID(ctx context.Context, chargePointID string, transactionID int) (*domain.ChargingSession, error) {
	if m.FindByTransactionIDFunc != nil {
		return m.FindByTransactionIDFunc(ctx, chargePointID, transactionID)
	}
	return nil, nil
}

func (m *MockSessionRepository) FindActive(ctx context.Context, chargePointID string, evseID int) (*domain.ChargingSession, error) {
	if m.FindActiveFunc != nil {
		return m.FindActiveFunc(ctx, chargePointID, evseID)
	}
	return nil, nil
}

func (m *MockSessionRepository) FindActiveByChargePoint(ctx context.Context, chargePointID string) ([]domain.ChargingSession, error) {
	if m.FindActiveByChargePointFunc != nil {
		return m.FindActiveByChargePointFunc(ctx, chargePointID)
	}
	return []domain.ChargingSession{}, nil
}

func (m *MockSessionRepository) FindHistory(ctx context.Context, chargePointID string, from, to time.Time) ([]domain.ChargingSession, error) {
	if m.FindHistoryFunc != nil {
		return m.FindHistoryFunc(ctx, chargePointID, from, to)
	}
	return []domain.ChargingSession{}, nil
}

func (m *MockSessionRepository) InterruptStale(ctx context.Context, olderThan time.Time) (int64, error) {
	if m.InterruptStaleFunc != nil {
		return m.InterruptStaleFunc(ctx, olderThan)
	}
	return 0, nil
}

// MockEventRepository is a mock implementation of EventRepository
type MockEventRepository struct {
	AppendFunc                func(ctx context.Context, ev *domain.DeviceEvent) error
	FindByChargePointFunc     func(ctx context.Context, chargePointID string, from, to time.Time, kinds []string) ([]domain.DeviceEvent, error)
	LatestPerChargePointFunc  func(ctx context.Context) ([]domain.DeviceEvent, error)
}

func (m *MockEventRepository) Append(ctx context.Context, ev *domain.DeviceEvent) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, ev)
	}
	return nil
}

func (m *MockEventRepository) FindByChargePoint(ctx context.Context, chargePointID string, from, to time.Time, kinds []string) ([]domain.DeviceEvent, error) {
	if m.FindByChargePointFunc != nil {
		return m.FindByChargePointFunc(ctx, chargePointID, from, to, kinds)
	}
	return []domain.DeviceEvent{}, nil
}

func (m *MockEventRepository) LatestPerChargePoint(ctx context.Context) ([]domain.DeviceEvent, error) {
	if m.LatestPerChargePointFunc != nil {
		return m.LatestPerChargePointFunc(ctx)
	}
	return []domain.DeviceEvent{}, nil
}

// MockDeviceRepository is a mock implementation of DeviceRepository
type MockDeviceRepository struct {
	SaveFunc         func(ctx context.Context, d *domain.Device) error
	FindBySerialFunc func(ctx context.Context, serial string) (*domain.Device, error)
}

func (m *MockDeviceRepository) Save(ctx context.Context, d *domain.Device) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, d)
	}
	return nil
}

func (m *MockDeviceRepository) FindBySerial(ctx context.Context, serial string) (*domain.Device, error) {
	if m.FindBySerialFunc != nil {
		return m.FindBySerialFunc(ctx, serial)
	}
	return nil, nil
}

// MockUserRepository is a mock implementation of UserRepository
type MockUserRepository struct {
	SaveFunc        func(ctx context.Context, user *domain.User) error
	FindByEmailFunc func(ctx context.Context, email string) (*domain.User, error)
	FindByIDFunc    func(ctx context.Context, id string) (*domain.User, error)
}

func (m *MockUserRepository) Save(ctx context.Context, user *domain.User) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, user)
	}
	return nil
}

func (m *MockUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	if m.FindByEmailFunc != nil {
		return m.FindByEmailFunc(ctx, email)
	}
	return nil, nil
}

func (m *MockUserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return nil, nil
}
