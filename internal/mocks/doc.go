// Package mocks provides function-field test doubles for the service
// interfaces shared across packages. Each mock falls back to its zero-value
// fields when no function is set.
package mocks
