// Package events carries job status changes to interested components.
//
// The job runner emits a JobEvent after every successful status write.
// Handlers registered with an EventEmitter receive each event in turn; a
// failing handler never stops delivery to the others. Publishing to an
// external broker is one such handler.
package events
