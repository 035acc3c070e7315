package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskconvertai/taskconvert-api/internal/api/shared"
	"github.com/taskconvertai/taskconvert-api/internal/domain"
	"github.com/taskconvertai/taskconvert-api/internal/ingest"
	"github.com/taskconvertai/taskconvert-api/internal/platform/memory"
	"github.com/taskconvertai/taskconvert-api/internal/retry"
	"github.com/taskconvertai/taskconvert-api/internal/service"
	"github.com/taskconvertai/taskconvert-api/internal/task"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testServer struct {
	router    http.Handler
	backend   *task.MockBackend
	uploadDir string
}

type serverOptions struct {
	maxUploadBytes int64
	maxTaskBytes   int64
}

func newTestServer(t *testing.T, opts serverOptions) *testServer {
	t.Helper()

	st := memory.NewStore(testLogger())
	backend := &task.MockBackend{}
	caller := retry.NewCaller(retry.Config{MaxAttempts: 1, BaseDelay: time.Millisecond}, testLogger())
	factory, err := task.NewFactory(backend, caller, st, nil, testLogger())
	require.NoError(t, err)

	runner := task.NewTaskRunner(st, nil, task.TaskRunnerConfig{WorkerCount: 2, QueueSize: 10}, testLogger())
	require.NoError(t, runner.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = runner.Stop(ctx)
	})

	svc, err := service.NewJobService(st, st, runner, factory, nil, service.JobServiceConfig{}, testLogger())
	require.NoError(t, err)

	dir := t.TempDir()
	uploader := ingest.NewIngester(ingest.Config{Dir: dir, MaxBytes: opts.maxUploadBytes}, testLogger())
	handler := NewJobHandler(svc, uploader, opts.maxTaskBytes, testLogger())

	r := chi.NewRouter()
	r.Get("/health", handler.Health)
	handler.RegisterRoutes(r)

	return &testServer{router: r, backend: backend, uploadDir: dir}
}

func (s *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func (s *testServer) submitText(t *testing.T, owner, text string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/task?userID="+owner, strings.NewReader(text))
	req.Header.Set("Content-Type", "text/plain")
	rr := s.do(t, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	return decodeCreated(t, rr)
}

func (s *testServer) waitForStatus(t *testing.T, id string, want domain.JobStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		rr := s.do(t, httptest.NewRequest(http.MethodGet, "/jobs/"+id, nil))
		if rr.Code != http.StatusOK {
			return false
		}
		var job JobResponse
		return json.Unmarshal(rr.Body.Bytes(), &job) == nil && job.Status == want
	}, 2*time.Second, 5*time.Millisecond)
}

func decodeCreated(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var created JobCreatedResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.NotEmpty(t, created.JobID)
	return created.JobID
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp shared.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), rr.Body.String())
	return resp.Error
}

func multipartUpload(t *testing.T, fileName string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &body, w.FormDataContentType()
}

func emptyDir(t *testing.T, dir string) func() bool {
	return func() bool {
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		return len(entries) == 0
	}
}

func speaker(s string) *string { return &s }

func TestHealth(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, serverOptions{})

	rr := s.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
}

func TestCreateTaskJobHandler(t *testing.T) {
	t.Parallel()

	t.Run("raw text body", func(t *testing.T) {
		t.Parallel()
		s := newTestServer(t, serverOptions{})
		s.backend.AnalyzeFn = func(_ context.Context, text string) (*domain.MeetingSummary, error) {
			return &domain.MeetingSummary{
				Summary: "about " + text,
				Tasks:   []domain.TaskItem{{Title: "Ship", Description: "ship it", Assignee: speaker("ana")}},
			}, nil
		}

		id := s.submitText(t, "owner-1", "release planning")
		s.waitForStatus(t, id, domain.JobStatusSucceeded)

		for i := 0; i < 2; i++ {
			rr := s.do(t, httptest.NewRequest(http.MethodGet, "/jobs/"+id+"/result", nil))
			require.Equal(t, http.StatusOK, rr.Code)

			var result AnalysisResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
			assert.Equal(t, id, result.JobID)
			assert.Equal(t, "about release planning", result.Summary)
			require.Len(t, result.Tasks, 1)
			assert.Equal(t, "ana", *result.Tasks[0].Assignee)
		}
	})

	t.Run("json body with metadata", func(t *testing.T) {
		t.Parallel()
		s := newTestServer(t, serverOptions{})

		body := `{"description":"site visit","geoLatitude":52.5,"geoLongitude":13.4,"name":"visit","group":"ops"}`
		req := httptest.NewRequest(http.MethodPost, "/task?userID=owner-2", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rr := s.do(t, req)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		id := decodeCreated(t, rr)

		s.waitForStatus(t, id, domain.JobStatusSucceeded)

		rr = s.do(t, httptest.NewRequest(http.MethodGet, "/jobs/"+id, nil))
		var job JobResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &job))
		assert.Equal(t, "owner-2", job.SubmitterUserID)
		assert.Equal(t, domain.JobTypeTask, job.Type)
		require.NotNil(t, job.GeoLatitude)
		assert.InDelta(t, 52.5, *job.GeoLatitude, 1e-9)
		assert.Equal(t, "ops", *job.Group)
		assert.Nil(t, job.ErrorMessage)

		rr = s.do(t, httptest.NewRequest(http.MethodGet, "/jobs/"+id+"/result", nil))
		var result AnalysisResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
		assert.Equal(t, "visit", *result.Name)
		require.NotNil(t, result.GeoLongitude)
		assert.InDelta(t, 13.4, *result.GeoLongitude, 1e-9)
	})

	t.Run("owner from auth context wins", func(t *testing.T) {
		t.Parallel()
		s := newTestServer(t, serverOptions{})

		req := httptest.NewRequest(http.MethodPost, "/task?userID=spoofed", strings.NewReader("notes"))
		req = req.WithContext(shared.WithOwnerID(req.Context(), "authenticated"))
		rr := s.do(t, req)
		require.Equal(t, http.StatusOK, rr.Code)
		id := decodeCreated(t, rr)

		rr = s.do(t, httptest.NewRequest(http.MethodGet, "/jobs/"+id, nil))
		var job JobResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &job))
		assert.Equal(t, "authenticated", job.SubmitterUserID)
	})

	tests := []struct {
		name        string
		target      string
		contentType string
		body        string
		opts        serverOptions
		wantMessage string
	}{
		{
			name:        "missing owner",
			target:      "/task",
			body:        "notes",
			wantMessage: "Invalid userID: is required",
		},
		{
			name:        "empty text",
			target:      "/task?userID=o",
			body:        "   ",
			wantMessage: "Empty request",
		},
		{
			name:        "empty json",
			target:      "/task?userID=o",
			contentType: "application/json",
			wantMessage: "Empty request",
		},
		{
			name:        "unknown json field",
			target:      "/task?userID=o",
			contentType: "application/json",
			body:        `{"description":"x","priority":1}`,
			wantMessage: "Malformed request body",
		},
		{
			name:        "missing description",
			target:      "/task?userID=o",
			contentType: "application/json",
			body:        `{"name":"x"}`,
			wantMessage: "Invalid description: required field",
		},
		{
			name:        "latitude out of range",
			target:      "/task?userID=o",
			contentType: "application/json",
			body:        `{"description":"x","geoLatitude":95,"geoLongitude":0}`,
			wantMessage: "Invalid geoLatitude: validation failed",
		},
		{
			name:        "latitude without longitude",
			target:      "/task?userID=o",
			contentType: "application/json",
			body:        `{"description":"x","geoLatitude":10}`,
			wantMessage: "Invalid geo: latitude and longitude must be given together",
		},
		{
			name:        "body too large",
			target:      "/task?userID=o",
			body:        strings.Repeat("a", 64),
			opts:        serverOptions{maxTaskBytes: 16},
			wantMessage: "File too large",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := newTestServer(t, tc.opts)

			req := httptest.NewRequest(http.MethodPost, tc.target, strings.NewReader(tc.body))
			if tc.contentType != "" {
				req.Header.Set("Content-Type", tc.contentType)
			}
			rr := s.do(t, req)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, tc.wantMessage, decodeError(t, rr))
		})
	}
}

func TestCreateAudioJobHandler(t *testing.T) {
	t.Parallel()

	t.Run("multipart upload yields merged transcript once", func(t *testing.T) {
		t.Parallel()
		s := newTestServer(t, serverOptions{})

		var gotName, gotType string
		s.backend.TranscribeFn = func(_ context.Context, audio task.AudioSource) ([]domain.Utterance, error) {
			gotName, gotType = audio.Name(), audio.ContentType()
			return []domain.Utterance{
				{Speaker: speaker("A"), Text: "hello"},
				{Speaker: speaker("A"), Text: " there"},
				{Speaker: speaker("B"), Text: "hi"},
			}, nil
		}

		body, contentType := multipartUpload(t, "meeting.mp3", []byte("ID3 fake audio"))
		req := httptest.NewRequest(http.MethodPost, "/audio?userID=owner-1", body)
		req.Header.Set("Content-Type", contentType)
		rr := s.do(t, req)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		id := decodeCreated(t, rr)

		s.waitForStatus(t, id, domain.JobStatusSucceeded)
		assert.Equal(t, "meeting.mp3", gotName)
		assert.Equal(t, "audio/mp3", gotType)

		rr = s.do(t, httptest.NewRequest(http.MethodGet, "/jobs/"+id+"/result", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		var utterances []domain.PublicUtterance
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &utterances))
		require.Len(t, utterances, 2)
		assert.Equal(t, "hello there", utterances[0].Text)
		assert.Equal(t, "B", *utterances[1].Speaker)

		rr = s.do(t, httptest.NewRequest(http.MethodGet, "/jobs/"+id+"/result", nil))
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "Result not found", decodeError(t, rr))

		assert.Eventually(t, emptyDir(t, s.uploadDir), time.Second, 5*time.Millisecond)
	})

	t.Run("raw octet stream takes name from content disposition", func(t *testing.T) {
		t.Parallel()
		s := newTestServer(t, serverOptions{})

		names := make(chan string, 1)
		s.backend.TranscribeFn = func(_ context.Context, audio task.AudioSource) ([]domain.Utterance, error) {
			names <- audio.Name()
			return nil, nil
		}

		req := httptest.NewRequest(http.MethodPost, "/audio?userID=owner-1", strings.NewReader("RIFF....WAVE"))
		req.Header.Set("Content-Type", "application/octet-stream")
		req.Header.Set("Content-Disposition", `attachment; filename="call.wav"`)
		rr := s.do(t, req)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		id := decodeCreated(t, rr)

		s.waitForStatus(t, id, domain.JobStatusSucceeded)
		assert.Equal(t, "call.wav", <-names)

		rr = s.do(t, httptest.NewRequest(http.MethodGet, "/jobs/"+id+"/result", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `[]`, rr.Body.String())
	})

	t.Run("backend failure marks job failed", func(t *testing.T) {
		t.Parallel()
		s := newTestServer(t, serverOptions{})
		s.backend.TranscribeFn = func(context.Context, task.AudioSource) ([]domain.Utterance, error) {
			return nil, assert.AnError
		}

		req := httptest.NewRequest(http.MethodPost, "/audio?userID=owner-1", strings.NewReader("data"))
		req.Header.Set("Content-Type", "audio/wav")
		rr := s.do(t, req)
		require.Equal(t, http.StatusOK, rr.Code)
		id := decodeCreated(t, rr)

		s.waitForStatus(t, id, domain.JobStatusFailed)

		rr = s.do(t, httptest.NewRequest(http.MethodGet, "/jobs/"+id, nil))
		var job JobResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &job))
		require.NotNil(t, job.ErrorMessage)
		assert.NotEmpty(t, *job.ErrorMessage)

		rr = s.do(t, httptest.NewRequest(http.MethodGet, "/jobs/"+id+"/result", nil))
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	tests := []struct {
		name        string
		target      string
		contentType string
		body        string
		opts        serverOptions
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "unsupported content type",
			target:      "/audio?userID=o",
			contentType: "text/plain",
			body:        "hello",
			wantStatus:  http.StatusUnsupportedMediaType,
			wantMessage: "Content-Type must be multipart/form-data or application/octet-stream",
		},
		{
			name:        "missing owner",
			target:      "/audio",
			contentType: "application/octet-stream",
			body:        "data",
			wantStatus:  http.StatusBadRequest,
			wantMessage: "Invalid userID: is required",
		},
		{
			name:        "empty payload",
			target:      "/audio?userID=o",
			contentType: "application/octet-stream",
			wantStatus:  http.StatusBadRequest,
			wantMessage: "Empty request",
		},
		{
			name:        "oversize payload",
			target:      "/audio?userID=o",
			contentType: "application/octet-stream",
			body:        strings.Repeat("x", 64),
			opts:        serverOptions{maxUploadBytes: 16},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "File too large",
		},
		{
			name:        "multipart without boundary",
			target:      "/audio?userID=o",
			contentType: "multipart/form-data",
			body:        "data",
			wantStatus:  http.StatusBadRequest,
			wantMessage: "Invalid file: malformed multipart body",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := newTestServer(t, tc.opts)

			req := httptest.NewRequest(http.MethodPost, tc.target, strings.NewReader(tc.body))
			req.Header.Set("Content-Type", tc.contentType)
			rr := s.do(t, req)

			assert.Equal(t, tc.wantStatus, rr.Code)
			assert.Equal(t, tc.wantMessage, decodeError(t, rr))
			assert.True(t, emptyDir(t, s.uploadDir)(), "no upload may be left on disk")
		})
	}
}

func TestGetJobHandler(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, serverOptions{})

	rr := s.do(t, httptest.NewRequest(http.MethodGet, "/jobs/job_missing", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Job not found", decodeError(t, rr))

	rr = s.do(t, httptest.NewRequest(http.MethodGet, "/jobs/job_missing/result", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetResultBeforeCompletion(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, serverOptions{})

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	s.backend.AnalyzeFn = func(ctx context.Context, _ string) (*domain.MeetingSummary, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return &domain.MeetingSummary{}, nil
	}

	id := s.submitText(t, "owner", "slow")

	rr := s.do(t, httptest.NewRequest(http.MethodGet, "/jobs/"+id+"/result", nil))
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "Job not finished", decodeError(t, rr))
}

func TestListJobsHandler(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, serverOptions{})

	first := s.submitText(t, "alice", "one")
	second := s.submitText(t, "alice", "two")
	other := s.submitText(t, "bob", "three")

	rr := s.do(t, httptest.NewRequest(http.MethodGet, "/jobs?userID=alice", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var jobs []JobResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &jobs))

	ids := make([]string, 0, len(jobs))
	for _, job := range jobs {
		assert.Equal(t, "alice", job.SubmitterUserID)
		ids = append(ids, job.JobID)
	}
	assert.ElementsMatch(t, []string{first, second}, ids)

	rr = s.do(t, httptest.NewRequest(http.MethodGet, "/jobs", nil))
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &jobs))
	assert.Len(t, jobs, 3)

	rr = s.do(t, httptest.NewRequest(http.MethodGet, "/jobs?userID=nobody", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
	_ = other
}

func TestAuthenticatedOwnerOnlySeesOwnJobs(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, serverOptions{})
	s.backend.TranscribeFn = func(context.Context, task.AudioSource) ([]domain.Utterance, error) {
		return []domain.Utterance{{Speaker: speaker("A"), Text: "private"}}, nil
	}

	body, contentType := multipartUpload(t, "call.wav", []byte("RIFF fake audio"))
	req := httptest.NewRequest(http.MethodPost, "/audio?userID=owner-1", body)
	req.Header.Set("Content-Type", contentType)
	rr := s.do(t, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	id := decodeCreated(t, rr)
	s.waitForStatus(t, id, domain.JobStatusSucceeded)

	as := func(owner, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		return s.do(t, req.WithContext(shared.WithOwnerID(req.Context(), owner)))
	}

	rr = as("intruder", "/jobs/"+id)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Job not found", decodeError(t, rr))

	rr = as("intruder", "/jobs/"+id+"/result")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Job not found", decodeError(t, rr))

	rr = as("owner-1", "/jobs/"+id)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = as("owner-1", "/jobs/"+id+"/result")
	require.Equal(t, http.StatusOK, rr.Code, "a rejected read must not consume the transcript")
	var utterances []domain.PublicUtterance
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &utterances))
	require.Len(t, utterances, 1)
	assert.Equal(t, "private", utterances[0].Text)
}
