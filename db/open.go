package db

import (
	"fmt"
	"net/url"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the configured database and applies migrations when
// cfg.AutoMigrate is set.
func Open(cfg Config) (*gorm.DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = DriverSQLite
	}

	gormCfg := &gorm.Config{Logger: logger.Discard}
	if cfg.LogQueries {
		gormCfg.Logger = logger.Default.LogMode(logger.Warn)
	}

	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite:
		dsn, err := ResolveSQLiteDSN(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("resolve sqlite dsn: %w", err)
		}
		dialector = sqlite.Open(sqliteDSNWithPragmas(dsn, cfg.SQLite))
	case DriverPostgres:
		dsn := strings.TrimSpace(cfg.DSN)
		if dsn == "" {
			return nil, fmt.Errorf("db.dsn is required for driver %q", driver)
		}
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.Driver)
	}

	gdb, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.Pool.MaxOpenConns)
	}
	if cfg.Pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.Pool.MaxIdleConns)
	}
	if cfg.Pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.Pool.ConnMaxLifetime)
	}

	if cfg.AutoMigrate {
		if err := AutoMigrate(gdb); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
	}
	return gdb, nil
}

// Close releases the pool behind a gorm handle.
func Close(gdb *gorm.DB) error {
	if gdb == nil {
		return nil
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func sqliteDSNWithPragmas(dsn string, cfg SQLiteConfig) string {
	if strings.Contains(dsn, "?") || dsn == ":memory:" {
		return dsn
	}
	q := url.Values{}
	if cfg.BusyTimeoutMs > 0 {
		q.Set("_busy_timeout", fmt.Sprint(cfg.BusyTimeoutMs))
	}
	if cfg.WAL {
		q.Set("_journal_mode", "WAL")
	}
	if cfg.ForeignKeys {
		q.Set("_foreign_keys", "on")
	}
	if len(q) == 0 {
		return dsn
	}
	return dsn + "?" + q.Encode()
}
