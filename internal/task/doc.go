// Package task manages background job queuing, processing, and lifecycle.
// It provides the bounded queue and fixed-size worker pool that run
// transcription and analysis jobs off the request path, and the runner that
// writes every job status change on the tasks' behalf.
package task
