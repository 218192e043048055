// Package storage implements the billing store interfaces with GORM.
// SQLite (pure Go, via glebarez/sqlite over modernc) is the zero-config
// default; PostgreSQL is available for shared deployments. The driver is
// chosen by configuration, everything above this package is identical.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rasidhq/rasid/internal/billing"
)

// Driver names accepted in configuration.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects and configures the persistence backend.
type Config struct {
	Driver string // "sqlite" (default) or "postgres".
	Path   string // SQLite database file.
	DSN    string // PostgreSQL DSN.
}

// Store wraps the GORM connection and hands out the billing repositories.
type Store struct {
	db     *gorm.DB
	driver string
	logger *slog.Logger
}

// Open connects to the configured backend.
func Open(cfg Config, slogger *slog.Logger) (*Store, error) {
	gormLogger := logger.New(
		slogAdapter{slogger},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)
	gormCfg := &gorm.Config{
		Logger:  gormLogger,
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	var (
		db  *gorm.DB
		err error
	)
	switch driver {
	case DriverSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite path is required")
		}
		if mkErr := os.MkdirAll(filepath.Dir(cfg.Path), 0750); mkErr != nil {
			return nil, fmt.Errorf("creating database directory: %w", mkErr)
		}
		dsn := fmt.Sprintf("%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", cfg.Path)
		db, err = gorm.Open(sqlite.Open(dsn), gormCfg)
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres dsn is required")
		}
		db, err = gorm.Open(postgres.Open(cfg.DSN), gormCfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}

	return &Store{db: db, driver: driver, logger: slogger}, nil
}

// Migrate creates or updates the schema.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(
		&ResellerModel{},
		&InvoiceModel{},
		&PaymentModel{},
		&ReminderTemplateModel{},
	)
}

// Driver returns the active driver name.
func (s *Store) Driver() string { return s.driver }

// Resellers returns the reseller repository.
func (s *Store) Resellers() billing.ResellerStore { return &resellerRepo{db: s.db} }

// Invoices returns the invoice repository.
func (s *Store) Invoices() billing.InvoiceStore { return &invoiceRepo{db: s.db} }

// Payments returns the payment repository.
func (s *Store) Payments() billing.PaymentStore { return &paymentRepo{db: s.db} }

// ReminderTemplates returns the reminder template repository.
func (s *Store) ReminderTemplates() billing.ReminderTemplateStore {
	return &templateRepo{db: s.db}
}

// Ping verifies the database connection. Used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// slogAdapter wraps *slog.Logger for GORM's logger.Writer interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (s slogAdapter) Printf(format string, args ...any) {
	s.logger.Info(fmt.Sprintf(format, args...))
}
