// Package ingest streams large uploads into bounded temporary files. It
// enforces a size cap, backs off on empty reads, reports stalled transfers
// and derives a safe file extension from the upload's filename hint.
package ingest
