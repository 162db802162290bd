package postgres

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/andescharge/csms/internal/domain"
)

// NewConnection initializes a new PostgreSQL connection using GORM
func NewConnection(url string, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(url), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// Set connection pool settings
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	log.Info("Successfully connected to PostgreSQL")
	return db, nil
}

// RunMigrations creates or updates the schema for the core entities. The
// unique indexes declared on the models back the engine's integrity
// invariants, so this must run before the router starts.
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&domain.Device{},
		&domain.ChargePoint{},
		&domain.EVSE{},
		&domain.ChargingSession{},
		&domain.MeterValue{},
		&domain.DeviceEvent{},
		&domain.IdTag{},
		&domain.Order{},
		&domain.User{},
	); err != nil {
		return err
	}

	// AutoMigrate cannot express a partial predicate; the hot lookup for
	// a connector's active session wants the index restricted to
	// status = 'active'.
	return db.Exec(
		`CREATE INDEX IF NOT EXISTS idx_session_cp_active
		 ON charging_sessions (charge_point_id, status)
		 WHERE status = 'active'`,
	).Error
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
