// Package testutils provides shared test fixtures: job builders with
// functional options and assertions for JSON error responses.
package testutils
