// Package testdb provides utilities for tests that run against a real
// PostgreSQL database.
//
// Tests call GetTestDBWithT, which skips the test when no database URL is
// configured, applies the embedded migrations once per process and returns
// a shared connection. WithTx runs the test body inside a transaction that
// is always rolled back, so tests stay isolated and may run in parallel.
package testdb
