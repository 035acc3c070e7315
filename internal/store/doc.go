// Package store defines interfaces for data persistence operations.
// These interfaces abstract the underlying data storage mechanism from
// the application's core logic, allowing job orchestration to remain
// independent of specific database technologies or persistence details.
package store
