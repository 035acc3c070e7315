package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskconvertai/taskconvert-api/internal/domain"
	"github.com/taskconvertai/taskconvert-api/internal/retry"
)

type memAudio struct {
	data []byte
}

func (a memAudio) Name() string        { return "meeting.mp3" }
func (a memAudio) ContentType() string { return "audio/mp3" }
func (a memAudio) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(a.data)), nil
}

func newTestClient(t *testing.T, handler http.Handler, timeout time.Duration) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := NewClient(Config{BaseURL: server.URL + "/", Timeout: timeout}, server.Client(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return c
}

func TestNewClient(t *testing.T) {
	t.Parallel()
	_, err := NewClient(Config{BaseURL: "  "}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	c, err := NewClient(Config{BaseURL: "http://ai:8000/"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://ai:8000", c.baseURL)
	assert.Equal(t, DefaultTimeout, c.timeout)
}

func TestTranscribe(t *testing.T) {
	t.Parallel()

	var gotBody []byte
	var gotName, gotType string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transcribe", r.URL.Path)

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		gotBody, _ = io.ReadAll(file)
		gotName = header.Filename
		gotType = header.Header.Get("Content-Type")

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"segments":[
			{"speaker":"A","text":"hello","start":0,"end":1.5},
			{"speaker":null,"text":"noise"}
		]}`)
	}), time.Second)

	utterances, err := c.Transcribe(context.Background(), memAudio{data: []byte("ID3 audio bytes")})
	require.NoError(t, err)

	assert.Equal(t, []byte("ID3 audio bytes"), gotBody)
	assert.Equal(t, "meeting.mp3", gotName)
	assert.Equal(t, "audio/mp3", gotType)

	require.Len(t, utterances, 2)
	assert.Equal(t, "A", *utterances[0].Speaker)
	assert.Equal(t, 1.5, *utterances[0].End)
	assert.Nil(t, utterances[1].Speaker)
	assert.Nil(t, utterances[1].Start)
}

func TestAnalyze(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analyze", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req analyzeRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "plan the launch", req.Text)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"summary": "launch planning",
			"tasks": []map[string]any{
				{"title": "Book venue", "description": "by Friday", "assignee": "Ann"},
			},
		})
	}), time.Second)

	summary, err := c.Analyze(context.Background(), "plan the launch")
	require.NoError(t, err)
	assert.Equal(t, "launch planning", summary.Summary)
	require.Len(t, summary.Tasks, 1)
	assert.Equal(t, "Ann", *summary.Tasks[0].Assignee)
}

func TestAnalyzeEmptyTasks(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"summary":"nothing to do"}`)
	}), time.Second)

	summary, err := c.Analyze(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, []domain.TaskItem{}, summary.Tasks)
}

func TestStatusClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		class  retry.Class
		target error
	}{
		{"service unavailable", http.StatusServiceUnavailable, retry.ClassIO, retry.ErrTransport},
		{"bad gateway", http.StatusBadGateway, retry.ClassIO, retry.ErrTransport},
		{"gateway timeout", http.StatusGatewayTimeout, retry.ClassIO, retry.ErrTransport},
		{"rate limited", http.StatusTooManyRequests, retry.ClassIO, retry.ErrTransport},
		{"bad request", http.StatusBadRequest, retry.ClassPermanent, ErrUnexpectedStatus},
		{"internal error", http.StatusInternalServerError, retry.ClassPermanent, ErrUnexpectedStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "backend says no", tt.status)
			}), time.Second)

			_, err := c.Analyze(context.Background(), "text")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
			assert.Equal(t, tt.class, retry.Classify(err))
			assert.Contains(t, err.Error(), "backend says no")
		})
	}
}

func TestInvalidJSONIsPermanent(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"summary": 42}`)
	}), time.Second)

	_, err := c.Analyze(context.Background(), "text")
	assert.ErrorIs(t, err, ErrInvalidResponse)
	assert.Equal(t, retry.ClassPermanent, retry.Classify(err))
}

func TestRequestTimeoutIsRetried(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}), 20*time.Millisecond)

	_, err := c.Analyze(context.Background(), "text")
	require.Error(t, err)
	assert.Equal(t, retry.ClassTimeout, retry.Classify(err))
}

func TestRetryAcrossTransientFailures(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Every attempt must resend the full upload.
		_, _, err := r.FormFile("file")
		assert.NoError(t, err)
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"segments":[{"speaker":"A","text":"ok"}]}`)
	}), time.Second)

	caller := retry.NewCaller(retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond}, nil)
	audio := memAudio{data: []byte("RIFF")}
	utterances, err := retry.Do(context.Background(), caller, func(ctx context.Context) ([]domain.Utterance, error) {
		return c.Transcribe(ctx, audio)
	})
	require.NoError(t, err)
	assert.Len(t, utterances, 1)
	assert.Equal(t, int32(3), calls.Load())
}
