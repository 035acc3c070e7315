// Package memory provides process-local implementations of the store
// interfaces. It backs the service when no database is configured and is
// used by tests that do not need PostgreSQL.
package memory
