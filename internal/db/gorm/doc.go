// Package gorm provides the GORM-backed database layer for schemaflow.
//
// Store opens one of the supported backends and serves as the session
// factory for the migration engine:
//
//	store, err := gorm.NewStore(gorm.Config{
//	    Driver:   "sqlite",
//	    DSN:      "/path/to/app.db",
//	    MaxConns: 4,
//	    LogLevel: logger.Silent,
//	})
//
// SchemaStore keeps one row per managed table with its committed version.
// Its reads and writes take the caller's *gorm.DB, so a version is recorded
// in the same transaction as the step that produced it.
//
// # Testing
//
// SQLite tests need no build tags. Postgres tests run when
// SCHEMAFLOW_TEST_POSTGRES_DSN is set:
//
//	SCHEMAFLOW_TEST_POSTGRES_DSN="host=localhost dbname=test" go test ./internal/db/gorm
package gorm
