package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/taskconvertai/taskconvert-api/internal/domain"
	"github.com/taskconvertai/taskconvert-api/internal/platform/logger"
	"github.com/taskconvertai/taskconvert-api/internal/retry"
	"github.com/taskconvertai/taskconvert-api/internal/task"
)

// DefaultTimeout bounds one request when Config.Timeout is unset.
const DefaultTimeout = 15 * time.Second

// maxErrorBody caps how much of an error response is kept in the error.
const maxErrorBody = 512

var (
	// ErrInvalidConfig is returned by NewClient for unusable settings.
	ErrInvalidConfig = errors.New("invalid AI client configuration")

	// ErrUnexpectedStatus wraps non-2xx responses that are not retried.
	ErrUnexpectedStatus = errors.New("unexpected status from AI service")

	// ErrInvalidResponse is returned when a 2xx body cannot be decoded.
	ErrInvalidResponse = errors.New("invalid response from AI service")
)

// Config configures the client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client calls the AI service over HTTP.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

var _ task.Backend = (*Client)(nil)

// NewClient creates a Client. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("%w: base URL is required", ErrInvalidConfig)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    base,
		timeout:    cfg.Timeout,
		httpClient: httpClient,
		logger:     logger.With("component", "ai_client"),
	}, nil
}

type transcriptionSegment struct {
	Speaker *string  `json:"speaker"`
	Text    string   `json:"text"`
	Start   *float64 `json:"start"`
	End     *float64 `json:"end"`
}

type transcriptionResponse struct {
	Segments []transcriptionSegment `json:"segments"`
}

type analyzeRequest struct {
	Text string `json:"text"`
}

type analyzeResponse struct {
	Summary string            `json:"summary"`
	Tasks   []domain.TaskItem `json:"tasks"`
}

// Transcribe uploads audio to /transcribe. The body is streamed from
// audio.Open so the recording is never held in memory.
func (c *Client) Transcribe(ctx context.Context, audio task.AudioSource) ([]domain.Utterance, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	src, err := audio.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open audio: %w", err)
	}

	pr, pw := io.Pipe()
	defer func() { _ = pr.Close() }()
	mw := multipart.NewWriter(pw)
	go func() {
		defer func() { _ = src.Close() }()
		pw.CloseWithError(writeAudioPart(mw, audio, src))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribe", pr)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	var out transcriptionResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}

	utterances := make([]domain.Utterance, 0, len(out.Segments))
	for _, s := range out.Segments {
		utterances = append(utterances, domain.Utterance{
			Speaker: s.Speaker,
			Text:    s.Text,
			Start:   s.Start,
			End:     s.End,
		})
	}
	return utterances, nil
}

func writeAudioPart(mw *multipart.Writer, audio task.AudioSource, src io.Reader) error {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, audio.Name()))
	header.Set("Content-Type", audio.ContentType())

	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return err
	}
	return mw.Close()
}

// Analyze posts text to /analyze.
func (c *Client) Analyze(ctx context.Context, text string) (*domain.MeetingSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(analyzeRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	var out analyzeResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	if out.Tasks == nil {
		out.Tasks = []domain.TaskItem{}
	}
	return &domain.MeetingSummary{Summary: out.Summary, Tasks: out.Tasks}, nil
}

// do sends req and decodes a 2xx JSON body into out. Transport errors are
// returned as-is for classification; 429 and 502-504 wrap retry.ErrTransport.
func (c *Client) do(req *http.Request, out any) error {
	log := logger.FromContextOrDefault(req.Context(), c.logger)
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn("AI service request failed", "path", req.URL.Path, "error", err)
		return fmt.Errorf("request to %s failed: %w", req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	log.Debug("AI service responded",
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return statusError(req.URL.Path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("failed to read response from %s: %w", req.URL.Path, err)
		}
		return fmt.Errorf("%w: %s: %v", ErrInvalidResponse, req.URL.Path, err)
	}
	return nil
}

func statusError(path string, status int, body string) error {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s returned %d: %s", retry.ErrTransport, path, status, body)
	default:
		return fmt.Errorf("%w: %s returned %d: %s", ErrUnexpectedStatus, path, status, body)
	}
}
