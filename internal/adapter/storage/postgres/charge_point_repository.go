package postgres

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/andescharge/csms/internal/domain"
	"github.com/andescharge/csms/internal/ports"
)

type ChargePointRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewChargePointRepository(db *gorm.DB, log *zap.Logger) ports.ChargePointRepository {
	return &ChargePointRepository{
		db:  db,
		log: log,
	}
}

func (r *ChargePointRepository) Save(ctx context.Context, cp *domain.ChargePoint) error {
	result := r.db.WithContext(ctx).Save(cp)
	if result.Error != nil {
		r.log.Error("Failed to save charge point", zap.Error(result.Error))
		return result.Error
	}
	return nil
}

func (r *ChargePointRepository) FindByID(ctx context.Context, id string) (*domain.ChargePoint, error) {
	var cp domain.ChargePoint
	result := r.db.WithContext(ctx).Preload("EVSEs").First(&cp, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &cp, nil
}

func (r *ChargePointRepository) FindAll(ctx context.Context, filter map[string]interface{}) ([]domain.ChargePoint, error) {
	var cps []domain.ChargePoint
	query := r.db.WithContext(ctx).Preload("EVSEs")
	if status, ok := filter["physical_status"]; ok {
		query = query.Where("physical_status = ?", status)
	}
	if status, ok := filter["operational_status"]; ok {
		query = query.Where("operational_status = ?", status)
	}
	if vendor, ok := filter["vendor"]; ok {
		query = query.Where("vendor = ?", vendor)
	}

	result := query.Order("id").Find(&cps)
	if result.Error != nil {
		return nil, result.Error
	}
	return cps, nil
}

// FindPending lists chargers that have connected but are not yet configured:
// missing a location or pricing.
func (r *ChargePointRepository) FindPending(ctx context.Context) ([]domain.ChargePoint, error) {
	var cps []domain.ChargePoint
	result := r.db.WithContext(ctx).
		Where("latitude IS NULL OR longitude IS NULL OR price_per_k_wh IS NULL OR price_per_k_wh <= 0").
		Order("id").
		Find(&cps)
	if result.Error != nil {
		return nil, result.Error
	}
	return cps, nil
}

func (r *ChargePointRepository) UpdatePhysicalStatus(ctx context.Context, id string, status domain.PhysicalStatus) error {
	return r.db.WithContext(ctx).Model(&domain.ChargePoint{}).Where("id = ?", id).
		Updates(map[string]interface{}{"physical_status": status, "updated_at": time.Now().UTC()}).Error
}

func (r *ChargePointRepository) UpdateOperationalStatus(ctx context.Context, id string, status domain.OperationalStatus) error {
	return r.db.WithContext(ctx).Model(&domain.ChargePoint{}).Where("id = ?", id).
		Updates(map[string]interface{}{"operational_status": status, "updated_at": time.Now().UTC()}).Error
}

func (r *ChargePointRepository) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.ChargePoint{}).Where("id = ?", id).
		Update("last_seen", at).Error
}

func (r *ChargePointRepository) UpdateLocation(ctx context.Context, id string, lat, lng float64, address string) error {
	result := r.db.WithContext(ctx).Model(&domain.ChargePoint{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"latitude":   lat,
			"longitude":  lng,
			"address":    address,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ChargePointRepository) UpdatePricing(ctx context.Context, id string, pricePerKWh float64, rateKW *float64) error {
	updates := map[string]interface{}{
		"price_per_k_wh": pricePerKWh,
		"updated_at":     time.Now().UTC(),
	}
	if rateKW != nil {
		updates["rate_kw"] = *rateKW
	}
	result := r.db.WithContext(ctx).Model(&domain.ChargePoint{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpsertEVSE inserts or updates a connector row keyed by
// (charge_point_id, connector_id).
func (r *ChargePointRepository) UpsertEVSE(ctx context.Context, evse *domain.EVSE) error {
	evse.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "charge_point_id"}, {Name: "connector_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "last_error_code", "updated_at",
		}),
	}).Create(evse).Error
}

func (r *ChargePointRepository) FindEVSEs(ctx context.Context, chargePointID string) ([]domain.EVSE, error) {
	var evses []domain.EVSE
	result := r.db.WithContext(ctx).
		Where("charge_point_id = ?", chargePointID).
		Order("connector_id").
		Find(&evses)
	if result.Error != nil {
		return nil, result.Error
	}
	return evses, nil
}
