package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"chainalyzer/internal/shared/config"
	appLogger "chainalyzer/internal/shared/logger"
)

var (
	ticketingDB *gorm.DB
	auxiliaryDB *gorm.DB
	analysisDB  *gorm.DB
	dbMu        sync.RWMutex
)

// InitTicketing opens the upstream ticketing database. In fixture mode an
// in-memory SQLite database is used instead of MySQL; the fixture package is
// responsible for seeding it.
func InitTicketing(cfg *config.TicketingConfig) error {
	var (
		database *gorm.DB
		err      error
	)

	if cfg.Fixture {
		database, err = gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
			Logger: newGormLogger(),
		})
		if err != nil {
			return fmt.Errorf("failed to open fixture database: %w", err)
		}
	} else {
		database, err = openMySQL(&cfg.DatabaseConfig)
		if err != nil {
			return fmt.Errorf("failed to connect to ticketing database: %w", err)
		}
	}

	dbMu.Lock()
	ticketingDB = database
	dbMu.Unlock()

	appLogger.Info("ticketing database connection established",
		"database", cfg.Database,
		"fixture", cfg.Fixture)
	return nil
}

// InitAuxiliary opens the read-only cross-system store holding turnup task
// records. A disabled auxiliary store is not an error; callers see a nil
// connection and skip enrichment.
func InitAuxiliary(cfg *config.AuxiliaryConfig) error {
	if !cfg.Enabled {
		appLogger.Info("auxiliary database disabled, skipping connection")
		return nil
	}

	database, err := openMySQL(&cfg.DatabaseConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to auxiliary database: %w", err)
	}

	dbMu.Lock()
	auxiliaryDB = database
	dbMu.Unlock()

	appLogger.Info("auxiliary database connection established",
		"database", cfg.Database)
	return nil
}

// InitAnalysisStore opens the locally owned SQLite result store, creating the
// parent directory if needed.
func InitAnalysisStore(cfg *config.AnalysisStoreConfig) error {
	if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create analysis store dir: %w", err)
		}
	}

	database, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: newGormLogger(),
	})
	if err != nil {
		return fmt.Errorf("failed to open analysis store: %w", err)
	}

	dbMu.Lock()
	analysisDB = database
	dbMu.Unlock()

	appLogger.Info("analysis store opened", "path", cfg.Path)
	return nil
}

func openMySQL(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	// Use loc=Local to parse time in server's local timezone
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&collation=utf8mb4_general_ci&parseTime=true&loc=Local",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	database, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       dsn,
		SkipInitializeWithVersion: true, // Skip schema validation query
	}), &gorm.Config{
		Logger:      newGormLogger(),
		PrepareStmt: true, // Cache prepared statements
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return database, nil
}

// Ticketing returns the ticketing database connection.
func Ticketing() *gorm.DB {
	dbMu.RLock()
	defer dbMu.RUnlock()
	return ticketingDB
}

// Auxiliary returns the auxiliary database connection, or nil when disabled.
func Auxiliary() *gorm.DB {
	dbMu.RLock()
	defer dbMu.RUnlock()
	return auxiliaryDB
}

// AnalysisStore returns the analysis result store connection.
func AnalysisStore() *gorm.DB {
	dbMu.RLock()
	defer dbMu.RUnlock()
	return analysisDB
}

// Close closes all open database connections.
func Close() error {
	dbMu.Lock()
	defer dbMu.Unlock()

	var firstErr error
	for _, entry := range []struct {
		name string
		db   **gorm.DB
	}{
		{"ticketing", &ticketingDB},
		{"auxiliary", &auxiliaryDB},
		{"analysis", &analysisDB},
	} {
		if *entry.db == nil {
			continue
		}
		sqlDB, err := (*entry.db).DB()
		if err == nil {
			err = sqlDB.Close()
		}
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close %s connection: %w", entry.name, err)
		}
		*entry.db = nil
	}

	appLogger.Info("database connections closed")
	return firstErr
}

func newGormLogger() logger.Interface {
	return logger.New(
		&filteredLogger{},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// filteredLogger filters out schema validation queries
type filteredLogger struct{}

func (l *filteredLogger) Printf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)

	if strings.Contains(strings.ToLower(msg), "information_schema.schemata") ||
		strings.Contains(strings.ToLower(msg), "select version()") {
		return
	}

	if strings.Contains(msg, "[error]") || strings.Contains(msg, "ERROR") {
		appLogger.Error("database error", "details", msg)
	} else if strings.Contains(msg, "slow sql") || strings.Contains(msg, "SLOW SQL") {
		appLogger.Warn("slow query", "details", msg)
	} else {
		appLogger.Debug("database query", "details", msg)
	}
}
