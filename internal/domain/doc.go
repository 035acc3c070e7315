// Package domain contains the core entities of the job orchestration service:
// jobs and their status state machine, transcription utterances, analysis
// results and the domain errors shared by every layer. It has no knowledge of
// storage or transport.
package domain
