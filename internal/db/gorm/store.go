package gorm

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	// Registers the pure-Go "sqlite" database/sql driver used by the dialector.
	_ "modernc.org/sqlite"

	"github.com/thebtf/schemaflow/internal/db/dialect"
)

// Store represents a GORM connection to one of the supported backends.
type Store struct {
	healthCacheTime time.Time
	DB              *gorm.DB
	sqlDB           *sql.DB
	dialect         dialect.Dialect
	cachedHealth    *HealthInfo
	healthCacheTTL  time.Duration
	healthCacheMu   sync.RWMutex
}

// Config holds database configuration.
type Config struct {
	Driver   string          // postgres, mysql or sqlite
	DSN      string          // driver DSN; for sqlite a file path is enough
	MaxConns int             // Maximum number of open connections (default: 4)
	LogLevel logger.LogLevel // GORM log level (logger.Silent for production)
}

// NewStore opens a Store for cfg.Driver and verifies the connection.
func NewStore(cfg Config) (*Store, error) {
	d, err := dialect.ForName(cfg.Driver)
	if err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch d.Name() {
	case dialect.Postgres:
		dialector = postgres.Open(cfg.DSN)
	case dialect.MySQL:
		dialector = mysql.Open(cfg.DSN)
	case dialect.SQLite:
		dialector = sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: SQLiteDSN(cfg.DSN)})
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(cfg.LogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm %s: %w", d.Name(), err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 4
	}
	if d.Name() == dialect.SQLite && inMemorySQLite(cfg.DSN) {
		// Every connection to an in-memory database opens a database of its
		// own, and the data is gone once that connection closes.
		maxConns = 1
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
		sqlDB.SetConnMaxIdleTime(0)
	} else {
		sqlDB.SetMaxOpenConns(maxConns)
		sqlDB.SetMaxIdleConns(max(maxConns/2, 1))
		sqlDB.SetConnMaxLifetime(1 * time.Hour)
		sqlDB.SetConnMaxIdleTime(10 * time.Minute)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", d.Name(), err)
	}

	log.Debug().Str("dialect", d.Name()).Int("max_conns", maxConns).Msg("Database connection opened")

	return &Store{
		DB:             db,
		sqlDB:          sqlDB,
		dialect:        d,
		healthCacheTTL: 5 * time.Second,
	}, nil
}

// SQLiteDSN turns a plain path into a modernc DSN with foreign keys and a
// busy timeout enabled. DSNs that already set foreign_keys are left alone.
func SQLiteDSN(dsn string) string {
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func inMemorySQLite(dsn string) bool {
	return dsn == ":memory:" ||
		strings.HasPrefix(dsn, ":memory:?") ||
		strings.HasPrefix(dsn, "file::memory:") ||
		strings.Contains(dsn, "mode=memory")
}

// Session returns a new session bound to ctx.
func (s *Store) Session(ctx context.Context) *gorm.DB {
	return s.DB.WithContext(ctx)
}

// Dialect returns the DDL dialect of the connected backend.
func (s *Store) Dialect() dialect.Dialect {
	return s.dialect
}

// HasTable reports whether name exists in the connected database.
func (s *Store) HasTable(ctx context.Context, name string) bool {
	return s.DB.WithContext(ctx).Migrator().HasTable(name)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.sqlDB.Close()
}

// Ping verifies the database connection is alive.
func (s *Store) Ping() error {
	return s.sqlDB.Ping()
}

// Stats returns database connection pool statistics.
func (s *Store) Stats() sql.DBStats {
	return s.sqlDB.Stats()
}

// HealthCheck measures round-trip latency and reports pool usage.
// Results are cached for healthCacheTTL.
func (s *Store) HealthCheck(ctx context.Context) *HealthInfo {
	s.healthCacheMu.RLock()
	if s.cachedHealth != nil && time.Since(s.healthCacheTime) < s.healthCacheTTL {
		cached := s.cachedHealth
		s.healthCacheMu.RUnlock()
		return cached
	}
	s.healthCacheMu.RUnlock()

	info := s.performHealthCheck(ctx)

	s.healthCacheMu.Lock()
	s.cachedHealth = info
	s.healthCacheTime = time.Now()
	s.healthCacheMu.Unlock()

	return info
}

func (s *Store) performHealthCheck(ctx context.Context) *HealthInfo {
	info := &HealthInfo{
		Status:    "healthy",
		Dialect:   s.dialect.Name(),
		Timestamp: time.Now(),
	}

	stats := s.sqlDB.Stats()
	info.PoolStats = PoolStats{
		OpenConnections: stats.OpenConnections,
		InUse:           stats.InUse,
		Idle:            stats.Idle,
		WaitCount:       stats.WaitCount,
		WaitDuration:    stats.WaitDuration,
	}

	start := time.Now()
	var dummy int
	err := s.sqlDB.QueryRowContext(ctx, "SELECT 1").Scan(&dummy)
	info.QueryLatency = time.Since(start)

	if err != nil {
		info.Status = "unhealthy"
		info.Error = err.Error()
		return info
	}

	if info.QueryLatency > 100*time.Millisecond {
		info.Status = "degraded"
		info.Warning = fmt.Sprintf("Slow query latency: %v", info.QueryLatency)
	}

	return info
}

// HealthInfo contains database health check results.
type HealthInfo struct {
	Timestamp    time.Time     `json:"timestamp"`
	Status       string        `json:"status"`
	Dialect      string        `json:"dialect"`
	Error        string        `json:"error,omitempty"`
	Warning      string        `json:"warning,omitempty"`
	PoolStats    PoolStats     `json:"pool_stats"`
	QueryLatency time.Duration `json:"query_latency_ns"`
}

// PoolStats contains connection pool statistics.
type PoolStats struct {
	OpenConnections int           `json:"open_connections"`
	InUse           int           `json:"in_use"`
	Idle            int           `json:"idle"`
	WaitCount       int64         `json:"wait_count"`
	WaitDuration    time.Duration `json:"wait_duration_ns"`
}
