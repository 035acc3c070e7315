// Package main implements the entry point for the taskconvert API server,
// which accepts audio recordings and free text, runs transcription and task
// extraction in the background and serves the results.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
