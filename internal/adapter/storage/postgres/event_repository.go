package postgres

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/andescharge/csms/internal/domain"
	"github.com/andescharge/csms/internal/ports"
)

type EventRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewEventRepository(db *gorm.DB, log *zap.Logger) ports.EventRepository {
	return &EventRepository{
		db:  db,
		log: log,
	}
}

func (r *EventRepository) Append(ctx context.Context, ev *domain.DeviceEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(ev).Error
}

func (r *EventRepository) FindByChargePoint(ctx context.Context, chargePointID string, from, to time.Time, kinds []string) ([]domain.DeviceEvent, error) {
	var events []domain.DeviceEvent
	query := r.db.WithContext(ctx).
		Where("charge_point_id = ? AND timestamp >= ? AND timestamp < ?", chargePointID, from, to)
	if len(kinds) > 0 {
		query = query.Where("kind IN ?", kinds)
	}
	err := query.Order("timestamp").Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// LatestPerChargePoint returns the newest event of every charge point; the
// cache rebuild after a cold start reads liveness from it.
func (r *EventRepository) LatestPerChargePoint(ctx context.Context) ([]domain.DeviceEvent, error) {
	var events []domain.DeviceEvent
	sub := r.db.Model(&domain.DeviceEvent{}).
		Select("charge_point_id, MAX(timestamp) AS ts").
		Group("charge_point_id")
	err := r.db.WithContext(ctx).
		Joins("JOIN (?) latest ON device_events.charge_point_id = latest.charge_point_id AND device_events.timestamp = latest.ts", sub).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
