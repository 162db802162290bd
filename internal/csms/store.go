package csms

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/andescharge/csms/internal/domain"
	"github.com/andescharge/csms/internal/ports"
)

// Store bundles the repositories the engine writes through. All durable
// state goes through here; the cache is advisory.
type Store struct {
	ChargePoints ports.ChargePointRepository
	Devices      ports.DeviceRepository
	Sessions     ports.SessionRepository
	Meters       ports.MeterValueRepository
	Events       ports.EventRepository
	IdTags       ports.IdTagRepository
	Orders       ports.OrderRepository
}

// audit appends a device event, logging instead of failing the caller: the
// audit log is diagnostic, not authoritative.
func (s *Store) audit(ctx context.Context, log *zap.Logger, chargePointID, kind string, evseID *int, payload interface{}) {
	body := ""
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			body = string(raw)
		}
	}
	ev := &domain.DeviceEvent{
		ChargePointID: chargePointID,
		EVSEID:        evseID,
		Kind:          kind,
		Payload:       body,
		Timestamp:     time.Now().UTC(),
	}
	if err := s.Events.Append(ctx, ev); err != nil {
		log.Warn("failed to append device event",
			zap.String("charge_point_id", chargePointID),
			zap.String("kind", kind),
			zap.Error(err),
		)
	}
}
