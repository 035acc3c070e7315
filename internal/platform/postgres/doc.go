// Package postgres provides PostgreSQL-specific implementations of the job
// and result stores defined in the internal/store package, together with
// the embedded schema migrations applied by goose.
package postgres
