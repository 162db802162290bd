package chargepoint

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/andescharge/csms/internal/adapter/cache"
	"github.com/andescharge/csms/internal/adapter/queue"
	"github.com/andescharge/csms/internal/domain"
	"github.com/andescharge/csms/internal/ports"
)

// Service serves charge-point read models and the local (non-OCPP)
// mutations: provisioning, location and pricing.
type Service struct {
	repo     ports.ChargePointRepository
	devices  ports.DeviceRepository
	sessions ports.SessionRepository
	events   ports.EventRepository
	cache    ports.Cache
	disp     ports.Dispatcher
	secrets  ports.SecretSource
	mq       queue.MessageQueue
	log      *zap.Logger
}

func NewService(
	repo ports.ChargePointRepository,
	devices ports.DeviceRepository,
	sessions ports.SessionRepository,
	events ports.EventRepository,
	c ports.Cache,
	disp ports.Dispatcher,
	secrets ports.SecretSource,
	mq queue.MessageQueue,
	log *zap.Logger,
) ports.ChargePointService {
	return &Service{
		repo:     repo,
		devices:  devices,
		sessions: sessions,
		events:   events,
		cache:    c,
		disp:     disp,
		secrets:  secrets,
		mq:       mq,
		log:      log,
	}
}

func (s *Service) view(cp domain.ChargePoint) ports.ChargePointView {
	return ports.ChargePointView{
		ChargePoint:  cp,
		IsAvailable:  cp.IsAvailable(),
		IsConfigured: cp.IsConfigured(),
		Online:       s.disp.IsOnline(cp.ID),
	}
}

func (s *Service) List(ctx context.Context, filter map[string]interface{}) ([]ports.ChargePointView, error) {
	cps, err := s.repo.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	views := make([]ports.ChargePointView, 0, len(cps))
	for _, cp := range cps {
		views = append(views, s.view(cp))
	}
	return views, nil
}

func (s *Service) Get(ctx context.Context, id string) (*ports.ChargePointView, error) {
	cp, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, fmt.Errorf("charge point %s: %w", id, domain.ErrNotFound)
	}
	v := s.view(*cp)
	return &v, nil
}

// ListPending returns chargers awaiting onboarding: connected at least once
// but missing location or pricing.
func (s *Service) ListPending(ctx context.Context) ([]ports.ChargePointView, error) {
	cps, err := s.repo.FindPending(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]ports.ChargePointView, 0, len(cps))
	for _, cp := range cps {
		views = append(views, s.view(cp))
	}
	return views, nil
}

func (s *Service) History(ctx context.Context, id string, from, to time.Time) ([]domain.ChargingSession, error) {
	return s.sessions.FindHistory(ctx, id, from, to)
}

func (s *Service) HeartbeatTimeline(ctx context.Context, id string, from, to time.Time) ([]domain.DeviceEvent, error) {
	return s.events.FindByChargePoint(ctx, id, from, to, []string{
		domain.EventKindHeartbeat,
		domain.EventKindConnected,
		domain.EventKindDisconnected,
	})
}

func (s *Service) StatusTimeline(ctx context.Context, id string, from, to time.Time) ([]domain.DeviceEvent, error) {
	return s.events.FindByChargePoint(ctx, id, from, to, []string{
		domain.EventKindStatusChanged,
		domain.EventKindBootAccepted,
		domain.EventKindWatchdogExpired,
	})
}

// Provision pre-registers a charge point ahead of its first boot.
func (s *Service) Provision(ctx context.Context, cp *domain.ChargePoint) error {
	if cp.ID == "" {
		return fmt.Errorf("charge point id is required")
	}
	if cp.PhysicalStatus == "" {
		cp.PhysicalStatus = domain.PhysicalStatusUnavailable
	}
	if cp.OperationalStatus == "" {
		cp.OperationalStatus = domain.OperationalEnabled
	}
	if err := s.repo.Save(ctx, cp); err != nil {
		return err
	}

	// The device identity rides along: charge point id equals the device
	// serial, the vendor doubles as the type code until hardware says
	// otherwise.
	device, err := s.devices.FindBySerial(ctx, cp.ID)
	if err != nil {
		return err
	}
	if device == nil {
		device = &domain.Device{
			SerialNumber: cp.ID,
			TypeCode:     cp.Vendor,
			Active:       true,
		}
		if err := s.devices.Save(ctx, device); err != nil {
			return err
		}
	}

	s.log.Info("charge point provisioned", zap.String("charge_point_id", cp.ID))
	return nil
}

// Credentials resolves the MQTT credentials a provisioned device presents to
// the broker. The password only appears when the secret source can serve it.
func (s *Service) Credentials(ctx context.Context, id string) (*ports.DeviceCredentials, error) {
	device, err := s.devices.FindBySerial(ctx, id)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, fmt.Errorf("device %s: %w", id, domain.ErrNotFound)
	}

	secret := ""
	if s.secrets != nil {
		if v, err := s.secrets.DeviceSecret(ctx, id); err == nil {
			secret = v
		} else {
			s.log.Warn("device secret unavailable", zap.String("serial", id), zap.Error(err))
		}
	}

	clientID, username, password := device.MQTTCredentials(secret)
	return &ports.DeviceCredentials{
		ClientID: clientID,
		Username: username,
		Password: password,
	}, nil
}

func (s *Service) UpdateLocation(ctx context.Context, id string, lat, lng float64, address string) error {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return fmt.Errorf("coordinates out of range")
	}
	if err := s.repo.UpdateLocation(ctx, id, lat, lng, address); err != nil {
		return err
	}
	s.log.Info("charge point location updated", zap.String("charge_point_id", id))
	return nil
}

func (s *Service) UpdatePricing(ctx context.Context, id string, pricePerKWh float64, rateKW *float64) error {
	if pricePerKWh <= 0 {
		return fmt.Errorf("price per kWh must be positive")
	}
	if err := s.repo.UpdatePricing(ctx, id, pricePerKWh, rateKW); err != nil {
		return err
	}
	s.log.Info("charge point pricing updated",
		zap.String("charge_point_id", id),
		zap.Float64("price_per_kwh", pricePerKWh),
	)
	return nil
}

// RebuildLivenessCache repopulates last_seen and status from the newest
// device event per charge point. Run once on startup; the cache is advisory
// and survives being stale.
func (s *Service) RebuildLivenessCache(ctx context.Context) error {
	latest, err := s.events.LatestPerChargePoint(ctx)
	if err != nil {
		return err
	}
	for _, ev := range latest {
		s.cache.Set(ctx, cache.LastSeenKey(ev.ChargePointID), ev.Timestamp.Format(time.RFC3339), 0)
		status := "offline"
		if ev.Kind == domain.EventKindConnected || ev.Kind == domain.EventKindHeartbeat {
			status = "online"
		}
		s.cache.Set(ctx, cache.StatusKey(ev.ChargePointID), status, 0)
	}
	s.log.Info("liveness cache rebuilt", zap.Int("charge_points", len(latest)))
	return nil
}
