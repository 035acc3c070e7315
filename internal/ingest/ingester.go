package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/taskconvertai/taskconvert-api/internal/domain"
	"github.com/taskconvertai/taskconvert-api/internal/platform/logger"
)

// Defaults applied to zero Config fields.
const (
	DefaultMaxBytes         int64 = 500 * 1024 * 1024
	DefaultChunkSize              = 64 * 1024
	DefaultStallThreshold         = 5 * time.Second
	DefaultPollBackoff            = 5 * time.Millisecond
	DefaultHintWindow             = 2048
	DefaultProgressInterval int64 = 5 * 1024 * 1024
)

var (
	// ErrOversize is returned when a payload exceeds the configured cap.
	// Nothing is left on disk when it is returned.
	ErrOversize = errors.New("payload exceeds maximum size")

	// ErrEmptyPayload is returned when the stream carried no payload bytes.
	ErrEmptyPayload = domain.NewValidationError("file", "payload is empty", domain.ErrEmptyContent)

	// ErrMalformedMultipart is returned when a multipart body cannot be parsed.
	ErrMalformedMultipart = domain.NewValidationError("file", "malformed multipart body", domain.ErrValidation)
)

// Config bounds an ingestion.
type Config struct {
	// Dir receives the temporary files. Empty means os.TempDir().
	Dir              string
	MaxBytes         int64
	ChunkSize        int
	StallThreshold   time.Duration
	PollBackoff      time.Duration
	HintWindow       int
	ProgressInterval int64
}

func (c Config) withDefaults() Config {
	if c.Dir == "" {
		c.Dir = os.TempDir()
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = DefaultMaxBytes
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.StallThreshold <= 0 {
		c.StallThreshold = DefaultStallThreshold
	}
	if c.PollBackoff <= 0 {
		c.PollBackoff = DefaultPollBackoff
	}
	if c.HintWindow <= 0 {
		c.HintWindow = DefaultHintWindow
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = DefaultProgressInterval
	}
	return c
}

// Framing describes how the payload is wrapped in the inbound stream.
type Framing interface {
	framing()
}

// FramingRaw is an unwrapped octet stream. FileName, when known from
// request headers, takes precedence over a hint found in the stream.
type FramingRaw struct {
	FileName string
}

// FramingMultipart is a multipart/form-data body. The payload is the
// "file" field, or the first part carrying a filename.
type FramingMultipart struct {
	Boundary string
}

func (FramingRaw) framing()       {}
func (FramingMultipart) framing() {}

// Ingester writes inbound streams to disk. It holds no per-call state and
// may be shared between requests.
type Ingester struct {
	cfg    Config
	logger *slog.Logger
}

// NewIngester creates an Ingester.
func NewIngester(cfg Config, log *slog.Logger) *Ingester {
	if log == nil {
		log = slog.Default()
	}
	return &Ingester{
		cfg:    cfg.withDefaults(),
		logger: log.With("component", "ingest"),
	}
}

// Ingest consumes body into a new temporary file.
//
// Only one chunk is held in memory at a time. On any error the partial file
// is deleted; on success the caller owns the returned Artifact.
func (i *Ingester) Ingest(ctx context.Context, body io.Reader, framing Framing) (*Artifact, error) {
	log := logger.FromContextOrDefault(ctx, i.logger)
	started := time.Now()

	bufSize := i.cfg.HintWindow
	if bufSize < 4096 {
		bufSize = 4096
	}
	br := bufio.NewReaderSize(body, bufSize)

	// The hint window is best effort: a short or failed peek only means
	// there is no hint.
	window, _ := br.Peek(i.cfg.HintWindow)
	fileName := FindFileName(window)
	if raw, ok := framing.(FramingRaw); ok && raw.FileName != "" {
		fileName = raw.FileName
	}
	ext := SafeExtension(fileName)
	log.DebugContext(ctx, "resolved upload name", "file_name", fileName, "extension", ext)

	payload, err := i.payloadReader(br, framing)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(i.cfg.Dir, fmt.Sprintf("audio_%s.%s", uuid.New(), ext))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload file: %w", err)
	}
	log.InfoContext(ctx, "receiving upload", "path", path)

	total, stalls, copyErr := i.copyPayload(ctx, log, file, payload)
	closeErr := file.Close()

	if copyErr == nil && closeErr != nil {
		copyErr = fmt.Errorf("failed to close upload file: %w", closeErr)
	}
	if copyErr == nil && total == 0 {
		copyErr = ErrEmptyPayload
	}

	duration := time.Since(started)
	if copyErr != nil {
		removeFile(path, log)
		log.WarnContext(ctx, "upload rejected",
			"bytes", total,
			"duration_ms", duration.Milliseconds(),
			"error", copyErr)
		return nil, copyErr
	}

	log.InfoContext(ctx, "upload complete",
		"path", path,
		"bytes", total,
		"stalls", stalls,
		"duration_ms", duration.Milliseconds())

	return &Artifact{
		Path:      path,
		Extension: ext,
		FileName:  fileName,
		Size:      total,
		Stalls:    stalls,
		Duration:  duration,
		logger:    i.logger,
	}, nil
}

func (i *Ingester) payloadReader(br *bufio.Reader, framing Framing) (io.Reader, error) {
	switch f := framing.(type) {
	case FramingRaw:
		return br, nil
	case FramingMultipart:
		if f.Boundary == "" {
			return nil, ErrMalformedMultipart
		}
		mr := multipart.NewReader(br, f.Boundary)
		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				return nil, ErrEmptyPayload
			}
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedMultipart, err)
			}
			if part.FormName() == "file" || part.FileName() != "" {
				return part, nil
			}
		}
	default:
		return nil, fmt.Errorf("unsupported framing %T", framing)
	}
}

// copyPayload moves payload into dst chunk by chunk while a watchdog
// reports periods without data.
func (i *Ingester) copyPayload(
	ctx context.Context,
	log *slog.Logger,
	dst io.Writer,
	payload io.Reader,
) (int64, int, error) {
	var (
		total    int64
		lastData atomic.Int64
		stalls   atomic.Int32
		nextLog  = i.cfg.ProgressInterval
		buf      = make([]byte, i.cfg.ChunkSize)
	)
	lastData.Store(time.Now().UnixNano())

	watchCtx, stopWatch := context.WithCancel(ctx)
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		i.watchStalls(watchCtx, log, &lastData, &stalls, &total)
	}()
	defer func() {
		stopWatch()
		<-watchDone
	}()

	for {
		if err := ctx.Err(); err != nil {
			return atomic.LoadInt64(&total), int(stalls.Load()), err
		}

		n, err := payload.Read(buf)
		if n > 0 {
			current := atomic.LoadInt64(&total)
			if current+int64(n) > i.cfg.MaxBytes {
				return current, int(stalls.Load()), ErrOversize
			}
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return current, int(stalls.Load()), fmt.Errorf("failed to write upload: %w", werr)
			}
			current = atomic.AddInt64(&total, int64(n))
			lastData.Store(time.Now().UnixNano())

			if current >= nextLog {
				log.InfoContext(ctx, "upload progress", "megabytes", current/(1024*1024))
				nextLog += i.cfg.ProgressInterval
			}
		}

		switch {
		case errors.Is(err, io.EOF):
			return atomic.LoadInt64(&total), int(stalls.Load()), nil
		case err != nil && !errors.Is(err, io.ErrNoProgress):
			return atomic.LoadInt64(&total), int(stalls.Load()), fmt.Errorf("failed to read upload: %w", err)
		case n == 0:
			// Nothing available yet; yield instead of spinning.
			select {
			case <-ctx.Done():
			case <-time.After(i.cfg.PollBackoff):
			}
		}
	}
}

func (i *Ingester) watchStalls(
	ctx context.Context,
	log *slog.Logger,
	lastData *atomic.Int64,
	stalls *atomic.Int32,
	total *int64,
) {
	period := i.cfg.StallThreshold / 4
	if period < time.Millisecond {
		period = time.Millisecond
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var countedGap int64
	var lastWarn time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			gapStart := lastData.Load()
			idle := now.Sub(time.Unix(0, gapStart))
			if idle < i.cfg.StallThreshold {
				continue
			}
			if gapStart != countedGap {
				countedGap = gapStart
				stalls.Add(1)
			} else if now.Sub(lastWarn) < i.cfg.StallThreshold {
				continue
			}
			lastWarn = now
			log.WarnContext(ctx, "upload stalled",
				"idle_ms", idle.Milliseconds(),
				"bytes", atomic.LoadInt64(total))
		}
	}
}
