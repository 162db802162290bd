package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/andescharge/csms/internal/domain"
	"github.com/andescharge/csms/internal/ports"
)

// SessionRepository implements the charging-session critical paths. Start
// and Stop run as serializable transactions so the at-most-one-active and
// uniqueness invariants hold under concurrent writes; the unique index on
// (charge_point_id, evse_id, transaction_id) is the backstop.
type SessionRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewSessionRepository(db *gorm.DB, log *zap.Logger) ports.SessionRepository {
	return &SessionRepository{
		db:  db,
		log: log,
	}
}

var serializable = &sql.TxOptions{Isolation: sql.LevelSerializable}

func (r *SessionRepository) StartTransaction(ctx context.Context, chargePointID string, evseID int, idTag string, meterStart int, startTime time.Time) (*domain.ChargingSession, error) {
	var created *domain.ChargingSession

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active domain.ChargingSession
		err := tx.Where("charge_point_id = ? AND evse_id = ? AND status = ?",
			chargePointID, evseID, domain.SessionStatusActive).
			First(&active).Error
		if err == nil {
			return domain.ErrConcurrentTransaction
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		// Server-assigned transaction ids are monotonically increasing
		// across the whole installation.
		var maxID sql.NullInt64
		if err := tx.Model(&domain.ChargingSession{}).
			Select("MAX(transaction_id)").Scan(&maxID).Error; err != nil {
			return err
		}

		now := time.Now().UTC()
		session := &domain.ChargingSession{
			ChargePointID: chargePointID,
			EVSEID:        evseID,
			TransactionID: int(maxID.Int64) + 1,
			IdTag:         idTag,
			StartTime:     startTime,
			MeterStart:    meterStart,
			Status:        domain.SessionStatusActive,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Create(session).Error; err != nil {
			return err
		}
		created = session
		return nil
	}, serializable)

	if err != nil {
		if !errors.Is(err, domain.ErrConcurrentTransaction) {
			r.log.Error("Failed to start charging session",
				zap.String("charge_point_id", chargePointID),
				zap.Int("evse_id", evseID),
				zap.Error(err),
			)
		}
		return nil, err
	}
	return created, nil
}

func (r *SessionRepository) StopTransaction(ctx context.Context, chargePointID string, transactionID int, meterStop int, endTime time.Time, pricePerKWh float64) (*domain.ChargingSession, *domain.Order, error) {
	var (
		stopped *domain.ChargingSession
		order   *domain.Order
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session domain.ChargingSession
		err := tx.Where("charge_point_id = ? AND transaction_id = ? AND status = ?",
			chargePointID, transactionID, domain.SessionStatusActive).
			First(&session).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNoActiveTransaction
		}
		if err != nil {
			return err
		}

		if endTime.Before(session.StartTime) {
			endTime = session.StartTime
		}
		if meterStop < session.MeterStart {
			meterStop = session.MeterStart
		}

		now := time.Now().UTC()
		session.EndTime = &endTime
		session.MeterStop = &meterStop
		session.Status = domain.SessionStatusCompleted
		session.UpdatedAt = now
		if err := tx.Save(&session).Error; err != nil {
			return err
		}

		energy := session.EnergyKWh()
		o := &domain.Order{
			SessionID:   session.ID,
			EnergyKWh:   energy,
			PricePerKWh: pricePerKWh,
			Amount:      domain.RoundCost(energy * pricePerKWh),
			Currency:    "COP",
			CreatedAt:   now,
		}
		if err := tx.Create(o).Error; err != nil {
			return err
		}

		stopped = &session
		order = o
		return nil
	}, serializable)

	if err != nil {
		if !errors.Is(err, domain.ErrNoActiveTransaction) {
			r.log.Error("Failed to stop charging session",
				zap.String("charge_point_id", chargePointID),
				zap.Int("transaction_id", transactionID),
				zap.Error(err),
			)
		}
		return nil, nil, err
	}
	return stopped, order, nil
}

func (r *SessionRepository) FindByTransactionID(ctx context.Context, chargePointID string, transactionID int) (*domain.ChargingSession, error) {
	var session domain.ChargingSession
	err := r.db.WithContext(ctx).
		Where("charge_point_id = ? AND transaction_id = ?", chargePointID, transactionID).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepository) FindActive(ctx context.Context, chargePointID string, evseID int) (*domain.ChargingSession, error) {
	var session domain.ChargingSession
	err := r.db.WithContext(ctx).
		Where("charge_point_id = ? AND evse_id = ? AND status = ?",
			chargePointID, evseID, domain.SessionStatusActive).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepository) FindActiveByChargePoint(ctx context.Context, chargePointID string) ([]domain.ChargingSession, error) {
	var sessions []domain.ChargingSession
	err := r.db.WithContext(ctx).
		Where("charge_point_id = ? AND status = ?", chargePointID, domain.SessionStatusActive).
		Order("evse_id").
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *SessionRepository) FindHistory(ctx context.Context, chargePointID string, from, to time.Time) ([]domain.ChargingSession, error) {
	var sessions []domain.ChargingSession
	err := r.db.WithContext(ctx).
		Where("charge_point_id = ? AND start_time >= ? AND start_time < ?", chargePointID, from, to).
		Order("start_time DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *SessionRepository) InterruptStale(ctx context.Context, olderThan time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&domain.ChargingSession{}).
		Where("status = ? AND start_time < ?", domain.SessionStatusActive, olderThan).
		Updates(map[string]interface{}{
			"status":     domain.SessionStatusInterrupted,
			"updated_at": time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}
