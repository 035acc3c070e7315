package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskconvertai/taskconvert-api/internal/domain"
	"github.com/taskconvertai/taskconvert-api/internal/platform/logger"
)

func newTestIngester(t *testing.T, cfg Config) (*Ingester, string, *logger.TestLogBuffer) {
	t.Helper()
	dir := t.TempDir()
	cfg.Dir = dir
	log, buf := logger.GetTestLogger(t)
	return NewIngester(cfg, log), dir, buf
}

func dirEntries(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return entries
}

func multipartBody(t *testing.T, field, fileName string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("note", "ignored"))
	part, err := w.CreateFormFile(field, fileName)
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &body, w.Boundary()
}

func TestIngestRaw(t *testing.T) {
	t.Parallel()

	ing, dir, _ := newTestIngester(t, Config{ChunkSize: 1024})
	payload := bytes.Repeat([]byte("a"), 10_000)

	art, err := ing.Ingest(context.Background(), bytes.NewReader(payload), FramingRaw{FileName: "memo.ogg"})
	require.NoError(t, err)

	assert.Equal(t, int64(len(payload)), art.Size)
	assert.Equal(t, "ogg", art.Extension)
	assert.Equal(t, "audio/ogg", art.ContentType())
	assert.Equal(t, dir, filepath.Dir(art.Path))
	assert.True(t, strings.HasPrefix(filepath.Base(art.Path), "audio_"))
	assert.True(t, strings.HasSuffix(art.Path, ".ogg"))

	stored, err := os.ReadFile(art.Path)
	require.NoError(t, err)
	assert.Equal(t, payload, stored)

	art.Remove()
	art.Remove()
	assert.Empty(t, dirEntries(t, dir))
}

func TestIngestRawWithoutName(t *testing.T) {
	t.Parallel()

	ing, _, _ := newTestIngester(t, Config{})

	art, err := ing.Ingest(context.Background(), strings.NewReader("bytes"), FramingRaw{})
	require.NoError(t, err)
	defer art.Remove()

	assert.Equal(t, "bin", art.Extension)
	assert.Equal(t, "application/octet-stream", art.ContentType())
	assert.Equal(t, "audio.bin", art.Name())
}

func TestIngestMultipart(t *testing.T) {
	t.Parallel()

	ing, _, _ := newTestIngester(t, Config{ChunkSize: 512})
	payload := bytes.Repeat([]byte{0x1, 0x2, 0x3}, 4000)
	body, boundary := multipartBody(t, "file", "Standup.WAV", payload)

	art, err := ing.Ingest(context.Background(), body, FramingMultipart{Boundary: boundary})
	require.NoError(t, err)
	defer art.Remove()

	assert.Equal(t, "wav", art.Extension)
	assert.Equal(t, "Standup.WAV", art.FileName)

	stored, err := os.ReadFile(art.Path)
	require.NoError(t, err)
	assert.Equal(t, payload, stored, "only the file part is stored")
}

func TestIngestMultipartHintOutsideWindow(t *testing.T) {
	t.Parallel()

	ing, _, _ := newTestIngester(t, Config{HintWindow: 64})

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("padding", strings.Repeat("p", 512)))
	part, err := w.CreateFormFile("file", "late.mp3")
	require.NoError(t, err)
	_, err = part.Write([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	art, err := ing.Ingest(context.Background(), &body, FramingMultipart{Boundary: w.Boundary()})
	require.NoError(t, err)
	defer art.Remove()

	assert.Equal(t, "bin", art.Extension, "hints beyond the window are not searched")
	assert.Equal(t, int64(len("payload")), art.Size)
}

func TestIngestMultipartErrors(t *testing.T) {
	t.Parallel()

	t.Run("no file part", func(t *testing.T) {
		ing, dir, _ := newTestIngester(t, Config{})
		var body bytes.Buffer
		w := multipart.NewWriter(&body)
		require.NoError(t, w.WriteField("note", "text only"))
		require.NoError(t, w.Close())

		_, err := ing.Ingest(context.Background(), &body, FramingMultipart{Boundary: w.Boundary()})
		assert.ErrorIs(t, err, ErrEmptyPayload)
		assert.Empty(t, dirEntries(t, dir))
	})

	t.Run("garbage body", func(t *testing.T) {
		ing, dir, _ := newTestIngester(t, Config{})

		_, err := ing.Ingest(context.Background(), strings.NewReader("not multipart"), FramingMultipart{Boundary: "xyz"})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrValidation)
		assert.Empty(t, dirEntries(t, dir))
	})

	t.Run("missing boundary", func(t *testing.T) {
		ing, _, _ := newTestIngester(t, Config{})

		_, err := ing.Ingest(context.Background(), strings.NewReader("x"), FramingMultipart{})
		assert.ErrorIs(t, err, ErrMalformedMultipart)
	})
}

func TestIngestOversize(t *testing.T) {
	t.Parallel()

	ing, dir, _ := newTestIngester(t, Config{MaxBytes: 4096, ChunkSize: 1000})

	t.Run("over the cap", func(t *testing.T) {
		_, err := ing.Ingest(context.Background(), bytes.NewReader(make([]byte, 4097)), FramingRaw{})
		assert.ErrorIs(t, err, ErrOversize)
		assert.Empty(t, dirEntries(t, dir), "no partial artifact remains")
	})

	t.Run("exactly at the cap", func(t *testing.T) {
		art, err := ing.Ingest(context.Background(), bytes.NewReader(make([]byte, 4096)), FramingRaw{})
		require.NoError(t, err)
		assert.Equal(t, int64(4096), art.Size)
		art.Remove()
	})
}

func TestIngestEmpty(t *testing.T) {
	t.Parallel()

	ing, dir, _ := newTestIngester(t, Config{})

	_, err := ing.Ingest(context.Background(), strings.NewReader(""), FramingRaw{})
	assert.ErrorIs(t, err, ErrEmptyPayload)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, dirEntries(t, dir))
}

// stallingReader returns no data and no error until delay has passed, then
// serves data.
type stallingReader struct {
	data    io.Reader
	readyAt time.Time
	empty   int
}

func (r *stallingReader) Read(p []byte) (int, error) {
	if time.Now().Before(r.readyAt) {
		r.empty++
		return 0, nil
	}
	return r.data.Read(p)
}

func TestIngestStall(t *testing.T) {
	t.Parallel()

	ing, _, logs := newTestIngester(t, Config{
		StallThreshold: 20 * time.Millisecond,
		PollBackoff:    2 * time.Millisecond,
	})
	r := &stallingReader{
		data:    strings.NewReader("late data"),
		readyAt: time.Now().Add(120 * time.Millisecond),
	}

	art, err := ing.Ingest(context.Background(), r, FramingRaw{})
	require.NoError(t, err, "stalls are never fatal")
	defer art.Remove()

	assert.Equal(t, int64(len("late data")), art.Size)
	assert.GreaterOrEqual(t, art.Stalls, 1)
	assert.GreaterOrEqual(t, logs.CountMessages("upload stalled"), 1)
	// Empty reads are backed off, not spun on.
	assert.Less(t, r.empty, 500)
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestIngestReadFailure(t *testing.T) {
	t.Parallel()

	ing, dir, _ := newTestIngester(t, Config{})
	boom := errors.New("connection dropped")

	_, err := ing.Ingest(context.Background(), io.MultiReader(strings.NewReader("partial"), failingReader{boom}), FramingRaw{})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, dirEntries(t, dir))
}

func TestIngestCanceled(t *testing.T) {
	t.Parallel()

	ing, dir, _ := newTestIngester(t, Config{PollBackoff: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	r := &stallingReader{data: strings.NewReader("never"), readyAt: time.Now().Add(time.Hour)}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := ing.Ingest(ctx, r, FramingRaw{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, dirEntries(t, dir))
}
