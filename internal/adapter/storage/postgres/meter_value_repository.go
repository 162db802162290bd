package postgres

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/andescharge/csms/internal/domain"
	"github.com/andescharge/csms/internal/ports"
)

type MeterValueRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewMeterValueRepository(db *gorm.DB, log *zap.Logger) ports.MeterValueRepository {
	return &MeterValueRepository{
		db:  db,
		log: log,
	}
}

func (r *MeterValueRepository) Save(ctx context.Context, mv *domain.MeterValue) error {
	if mv.CreatedAt.IsZero() {
		mv.CreatedAt = time.Now().UTC()
	}
	result := r.db.WithContext(ctx).Create(mv)
	if result.Error != nil {
		r.log.Error("Failed to save meter value",
			zap.Uint("session_id", mv.SessionID),
			zap.Error(result.Error),
		)
		return result.Error
	}
	return nil
}

// LastTimestamp returns the newest stored sample time for a session, zero
// when none exist. The session engine uses it to clamp non-monotonic clocks.
func (r *MeterValueRepository) LastTimestamp(ctx context.Context, sessionID uint) (time.Time, error) {
	var mv domain.MeterValue
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp DESC").
		First(&mv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return mv.Timestamp, nil
}

func (r *MeterValueRepository) FindBySession(ctx context.Context, sessionID uint) ([]domain.MeterValue, error) {
	var values []domain.MeterValue
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp").
		Find(&values).Error
	if err != nil {
		return nil, err
	}
	return values, nil
}
