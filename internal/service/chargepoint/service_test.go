package chargepoint

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/andescharge/csms/internal/adapter/cache"
	"github.com/andescharge/csms/internal/domain"
	"github.com/andescharge/csms/internal/mocks"
)

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

func ptr(v float64) *float64 { return &v }

func newTestService(cps *mocks.MockChargePointRepository, disp *mocks.MockDispatcher, events *mocks.MockEventRepository, c *mocks.MockCache) *Service {
	if events == nil {
		events = &mocks.MockEventRepository{}
	}
	if c == nil {
		c = mocks.NewMockCache()
	}
	svc := NewService(cps, &mocks.MockDeviceRepository{}, &mocks.MockSessionRepository{}, events, c, disp, nil, mocks.NewMockMessageQueue(), newTestLogger())
	return svc.(*Service)
}

func TestProvisionCreatesDeviceIdentity(t *testing.T) {
	var savedDevice *domain.Device
	devices := &mocks.MockDeviceRepository{
		SaveFunc: func(ctx context.Context, d *domain.Device) error {
			savedDevice = d
			return nil
		},
	}
	svc := NewService(&mocks.MockChargePointRepository{}, devices, &mocks.MockSessionRepository{},
		&mocks.MockEventRepository{}, mocks.NewMockCache(), &mocks.MockDispatcher{}, nil,
		mocks.NewMockMessageQueue(), newTestLogger())

	err := svc.Provision(context.Background(), &domain.ChargePoint{ID: "CP-010", Vendor: "AC22KW"})
	if err != nil {
		t.Fatalf("provision failed: %v", err)
	}
	if savedDevice == nil {
		t.Fatal("expected a device row to be created")
	}
	if savedDevice.SerialNumber != "CP-010" || savedDevice.TypeCode != "AC22KW" || !savedDevice.Active {
		t.Errorf("unexpected device identity: %+v", savedDevice)
	}
}

func TestCredentialsDeriveClientID(t *testing.T) {
	devices := &mocks.MockDeviceRepository{
		FindBySerialFunc: func(ctx context.Context, serial string) (*domain.Device, error) {
			return &domain.Device{SerialNumber: serial, TypeCode: "AC22KW", Active: true}, nil
		},
	}
	svc := NewService(&mocks.MockChargePointRepository{}, devices, &mocks.MockSessionRepository{},
		&mocks.MockEventRepository{}, mocks.NewMockCache(), &mocks.MockDispatcher{}, nil,
		mocks.NewMockMessageQueue(), newTestLogger())

	creds, err := svc.Credentials(context.Background(), "CP-010")
	if err != nil {
		t.Fatalf("credentials failed: %v", err)
	}
	if creds.ClientID != "AC22KW&CP-010" {
		t.Errorf("client id = %q, want AC22KW&CP-010", creds.ClientID)
	}
	if creds.Username != "CP-010" {
		t.Errorf("username = %q, want CP-010", creds.Username)
	}
	if creds.Password != "" {
		t.Errorf("password must be empty without a secret source, got %q", creds.Password)
	}
}

func TestListDerivesFlags(t *testing.T) {
	cps := &mocks.MockChargePointRepository{
		FindAllFunc: func(ctx context.Context, filter map[string]interface{}) ([]domain.ChargePoint, error) {
			return []domain.ChargePoint{
				{
					ID:                "CP-001",
					PhysicalStatus:    domain.PhysicalStatusAvailable,
					OperationalStatus: domain.OperationalEnabled,
					Latitude:          ptr(4.6), Longitude: ptr(-74.1), PricePerKWh: ptr(650),
				},
				{
					ID:                "CP-002",
					PhysicalStatus:    domain.PhysicalStatusAvailable,
					OperationalStatus: domain.OperationalDisabled,
				},
			}, nil
		},
	}
	disp := &mocks.MockDispatcher{IsOnlineFunc: func(chargerID string) bool { return chargerID == "CP-001" }}

	svc := newTestService(cps, disp, nil, nil)
	views, err := svc.List(context.Background(), nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 views, got %d", len(views))
	}
	if !views[0].IsAvailable || !views[0].IsConfigured || !views[0].Online {
		t.Errorf("CP-001 flags wrong: %+v", views[0])
	}
	if views[1].IsAvailable || views[1].IsConfigured || views[1].Online {
		t.Errorf("CP-002 flags wrong: %+v", views[1])
	}
}

func TestGetNotFound(t *testing.T) {
	svc := newTestService(&mocks.MockChargePointRepository{}, &mocks.MockDispatcher{}, nil, nil)
	if _, err := svc.Get(context.Background(), "nope"); err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestUpdateLocationValidatesCoordinates(t *testing.T) {
	svc := newTestService(&mocks.MockChargePointRepository{}, &mocks.MockDispatcher{}, nil, nil)
	if err := svc.UpdateLocation(context.Background(), "CP-001", 91, 0, ""); err == nil {
		t.Error("expected error for latitude out of range")
	}
	if err := svc.UpdateLocation(context.Background(), "CP-001", 4.6, -74.08, "Bogotá"); err != nil {
		t.Errorf("expected valid location to pass, got %v", err)
	}
}

func TestUpdatePricingValidatesPrice(t *testing.T) {
	svc := newTestService(&mocks.MockChargePointRepository{}, &mocks.MockDispatcher{}, nil, nil)
	if err := svc.UpdatePricing(context.Background(), "CP-001", 0, nil); err == nil {
		t.Error("expected error for non-positive price")
	}
	if err := svc.UpdatePricing(context.Background(), "CP-001", 650, nil); err != nil {
		t.Errorf("expected valid price to pass, got %v", err)
	}
}

func TestRebuildLivenessCache(t *testing.T) {
	now := time.Now().UTC()
	events := &mocks.MockEventRepository{
		LatestPerChargePointFunc: func(ctx context.Context) ([]domain.DeviceEvent, error) {
			return []domain.DeviceEvent{
				{ChargePointID: "CP-001", Kind: domain.EventKindHeartbeat, Timestamp: now},
				{ChargePointID: "CP-002", Kind: domain.EventKindDisconnected, Timestamp: now.Add(-time.Hour)},
			}, nil
		},
	}
	c := mocks.NewMockCache()

	svc := newTestService(&mocks.MockChargePointRepository{}, &mocks.MockDispatcher{}, events, c)
	if err := svc.RebuildLivenessCache(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	status1, _ := c.Get(context.Background(), cache.StatusKey("CP-001"))
	if status1 != "online" {
		t.Errorf("CP-001 status = %q, want online", status1)
	}
	status2, _ := c.Get(context.Background(), cache.StatusKey("CP-002"))
	if status2 != "offline" {
		t.Errorf("CP-002 status = %q, want offline", status2)
	}
	if seen, _ := c.Get(context.Background(), cache.LastSeenKey("CP-001")); seen == "" {
		t.Error("CP-001 last_seen not rebuilt")
	}
}
