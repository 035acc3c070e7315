package ingest

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Artifact is an ingested payload stored in a local temporary file.
// The caller that receives it owns the file and must call Remove once the
// payload is no longer needed.
type Artifact struct {
	Path      string
	Extension string
	// FileName is the client-supplied name, if one was found.
	FileName string
	Size     int64
	// Stalls counts the periods in which no data arrived for longer than
	// the stall threshold.
	Stalls   int
	Duration time.Duration

	logger     *slog.Logger
	removeOnce sync.Once
}

// ContentType returns the MIME type advertised when the artifact is sent on.
func (a *Artifact) ContentType() string {
	if a.Extension == "" || a.Extension == fallbackExtension {
		return "application/octet-stream"
	}
	return "audio/" + a.Extension
}

// Name returns the file name to present to downstream services.
func (a *Artifact) Name() string {
	if a.FileName != "" {
		return a.FileName
	}
	return "audio." + a.Extension
}

// Open opens the stored payload for reading.
func (a *Artifact) Open() (io.ReadCloser, error) {
	return os.Open(a.Path)
}

// Remove deletes the stored payload. Failures are logged, never returned;
// calling Remove more than once is harmless.
func (a *Artifact) Remove() {
	a.removeOnce.Do(func() {
		removeFile(a.Path, a.logger)
	})
}

func removeFile(path string, logger *slog.Logger) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("failed to remove ingested file",
			"path", path,
			"error", err)
	}
}
