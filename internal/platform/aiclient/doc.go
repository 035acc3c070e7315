// Package aiclient implements task.Backend against the HTTP AI service.
//
// The service exposes two endpoints: POST /transcribe takes a multipart
// upload in the "file" field and returns speaker segments, POST /analyze
// takes {"text": ...} and returns a summary with extracted tasks. Each
// call is a single attempt bounded by the configured request timeout;
// retries are the caller's concern.
package aiclient
