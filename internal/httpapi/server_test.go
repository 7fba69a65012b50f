package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MimeLyc/subtitle-studio/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	server     *Server
	queue      *jobs.Queue
	uploadDir  string
	resultsDir string
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	tmp := t.TempDir()
	env := &testEnv{
		queue:      jobs.NewQueue(1, nil),
		uploadDir:  filepath.Join(tmp, "uploads"),
		resultsDir: filepath.Join(tmp, "results"),
	}
	require.NoError(t, os.MkdirAll(env.resultsDir, 0o755))

	var n atomic.Int64
	opts = append([]Option{WithFileIDGenerator(func() string {
		return fmt.Sprintf("file-%d", n.Add(1))
	})}, opts...)
	env.server = NewServer(env.queue, env.uploadDir, env.resultsDir, opts...)
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func multipartBody(t *testing.T, fileName string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if fileName != "-" {
		part, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func uploadRequest(t *testing.T, fileName string, content []byte, fields map[string]string) *http.Request {
	body, contentType := multipartBody(t, fileName, content, fields)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestServer_Upload(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(uploadRequest(t, "clip.MP4", []byte("video bytes"), map[string]string{"language": "en-US"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]any{
		"message": "File uploaded, starting processing",
		"file_id": "file-1",
		"state":   "PROCESSING",
	}, decode(t, rec))

	saved := filepath.Join(env.uploadDir, "file-1.mp4")
	data, err := os.ReadFile(saved)
	require.NoError(t, err)
	assert.Equal(t, "video bytes", string(data))

	job, ok := env.queue.Get("file-1")
	require.True(t, ok)
	assert.Equal(t, jobs.KindProcess, job.Kind)
	assert.Equal(t, jobs.StatePending, job.State)
	assert.Equal(t, saved, job.Payload.MediaFile)
	assert.Equal(t, "en", job.Payload.SourceLanguage)
}

func TestServer_UploadDeduplicatesActiveContent(t *testing.T) {
	env := newTestEnv(t)

	first := env.do(uploadRequest(t, "a.mp3", []byte("same"), nil))
	require.Equal(t, http.StatusOK, first.Code)
	second := env.do(uploadRequest(t, "b.mp3", []byte("same"), nil))
	require.Equal(t, http.StatusOK, second.Code)

	assert.Equal(t, "file-1", decode(t, second)["file_id"])
	assert.NoFileExists(t, filepath.Join(env.uploadDir, "file-2.mp3"))

	third := env.do(uploadRequest(t, "c.mp3", []byte("same"), map[string]string{"language": "fr"}))
	assert.Equal(t, "file-3", decode(t, third)["file_id"])
}

func TestServer_UploadRejections(t *testing.T) {
	tests := []struct {
		name     string
		req      func(t *testing.T) *http.Request
		wantCode int
		wantErr  string
	}{
		{
			name:     "missing file part",
			req:      func(t *testing.T) *http.Request { return uploadRequest(t, "-", nil, map[string]string{"language": "en"}) },
			wantCode: http.StatusBadRequest,
			wantErr:  "No file part",
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("x"))
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "No file part",
		},
		{
			name:     "empty file name",
			req:      func(t *testing.T) *http.Request { return uploadRequest(t, "", []byte("x"), nil) },
			wantCode: http.StatusBadRequest,
			wantErr:  "No selected file",
		},
		{
			name:     "disallowed extension",
			req:      func(t *testing.T) *http.Request { return uploadRequest(t, "notes.txt", []byte("x"), nil) },
			wantCode: http.StatusBadRequest,
			wantErr:  "File type not allowed",
		},
		{
			name:     "bad language",
			req:      func(t *testing.T) *http.Request { return uploadRequest(t, "a.wav", []byte("x"), map[string]string{"language": "not a tag"}) },
			wantCode: http.StatusBadRequest,
			wantErr:  "Invalid source language",
		},
		{
			name:     "too large",
			req:      func(t *testing.T) *http.Request { return uploadRequest(t, "a.wav", bytes.Repeat([]byte("x"), 4096), nil) },
			wantCode: http.StatusRequestEntityTooLarge,
			wantErr:  "File too large",
		},
		{
			name:     "wrong method",
			req:      func(t *testing.T) *http.Request { return httptest.NewRequest(http.MethodGet, "/upload", nil) },
			wantCode: http.StatusMethodNotAllowed,
			wantErr:  "method not allowed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, WithMaxUploadBytes(1024))
			rec := env.do(tt.req(t))
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantErr, decode(t, rec)["error"])
			assert.Empty(t, env.queue.List())

			entries, _ := os.ReadDir(env.uploadDir)
			assert.Empty(t, entries)
		})
	}
}

func newTranslateRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/translate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestServer_Translate(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.resultsDir, "abc.json"), []byte(`{"segments":[]}`), 0o644))

	rec := env.do(newTranslateRequest(`{"file_id":"abc","target_language":"zh-hans"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]any{
		"message":        "Translation started",
		"translation_id": "abc_zh-Hans",
		"state":          "PROCESSING",
	}, decode(t, rec))

	job, ok := env.queue.Get("abc_zh-Hans")
	require.True(t, ok)
	assert.Equal(t, jobs.KindTranslate, job.Kind)
	assert.Equal(t, jobs.Payload{SourceFileID: "abc", TargetLanguage: "zh-Hans"}, job.Payload)

	again := env.do(newTranslateRequest(`{"file_id":"abc","target_language":"zh-Hans"}`))
	require.Equal(t, http.StatusOK, again.Code)
	assert.Len(t, env.queue.List(), 1)
}

func TestServer_TranslateAcceptsSRTOnlySource(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.resultsDir, "old.srt"), []byte("1\n00:00:01,000 --> 00:00:02,000\nhi\n"), 0o644))

	rec := env.do(newTranslateRequest(`{"file_id":"old","target_language":"fr"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "old_fr", decode(t, rec)["translation_id"])
}

func TestServer_TranslateRejections(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		opts     []Option
		wantCode int
		wantErr  string
	}{
		{name: "invalid json", body: `{`, wantCode: http.StatusBadRequest, wantErr: "Missing parameters"},
		{name: "missing language", body: `{"file_id":"abc"}`, wantCode: http.StatusBadRequest, wantErr: "Missing parameters"},
		{name: "missing file", body: `{"target_language":"fr"}`, wantCode: http.StatusBadRequest, wantErr: "Missing parameters"},
		{name: "path in id", body: `{"file_id":"../etc","target_language":"fr"}`, wantCode: http.StatusBadRequest, wantErr: "Invalid file id"},
		{name: "bad language", body: `{"file_id":"abc","target_language":"??"}`, wantCode: http.StatusBadRequest, wantErr: `Invalid target language "??"`},
		{name: "unknown source", body: `{"file_id":"nope","target_language":"fr"}`, wantCode: http.StatusNotFound, wantErr: "Source subtitles not found"},
		{name: "disabled", body: `{"file_id":"abc","target_language":"fr"}`, opts: []Option{WithTranslation(false)}, wantCode: http.StatusServiceUnavailable, wantErr: "Translation is not configured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.opts...)
			require.NoError(t, os.WriteFile(filepath.Join(env.resultsDir, "abc.json"), []byte(`{}`), 0o644))

			rec := env.do(newTranslateRequest(tt.body))
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantErr, decode(t, rec)["error"])
		})
	}
}

func TestServer_Status(t *testing.T) {
	env := newTestEnv(t)
	env.queue.Enqueue(jobs.EnqueueRequest{ID: "abc", Kind: jobs.KindProcess, Status: "Queued"})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/status/abc", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"status": "Queued", "progress": float64(0), "state": "PENDING"}, decode(t, rec))

	rec = env.do(httptest.NewRequest(http.MethodGet, "/status/missing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, map[string]any{"status": "Not found", "progress": float64(0), "state": "FAILURE"}, decode(t, rec))
}

func TestServer_StatusReportsRunningAsPending(t *testing.T) {
	env := newTestEnv(t)
	release := make(chan struct{})
	env.queue.Start(func(ctx context.Context, job *jobs.Job, report jobs.Reporter) error {
		report.Report("Transcribing audio", 40)
		<-release
		return nil
	})
	t.Cleanup(env.queue.Stop)
	t.Cleanup(func() { close(release) })

	env.queue.Enqueue(jobs.EnqueueRequest{ID: "abc", Kind: jobs.KindProcess})
	require.Eventually(t, func() bool {
		job, _ := env.queue.Get("abc")
		return job.Progress == 40
	}, time.Second, 5*time.Millisecond)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/status/abc", nil))
	assert.Equal(t, map[string]any{"status": "Transcribing audio", "progress": float64(40), "state": "PENDING"}, decode(t, rec))
}

func TestServer_Download(t *testing.T) {
	env := newTestEnv(t)
	content := "1\n00:00:00,000 --> 00:00:01,000\nHi\n\n"
	require.NoError(t, os.WriteFile(filepath.Join(env.resultsDir, "abc.srt"), []byte(content), 0o644))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/download/abc", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, content, rec.Body.String())
	assert.Equal(t, `attachment; filename="subtitles.srt"`, rec.Header().Get("Content-Disposition"))

	for _, id := range []string{"missing", "a.b", ""} {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/download/"+id, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, id)
		assert.Equal(t, "Subtitle file not found", decode(t, rec)["error"])
	}
}

func TestServer_ListJobs(t *testing.T) {
	env := newTestEnv(t)
	env.queue.Enqueue(jobs.EnqueueRequest{ID: "abc", Kind: jobs.KindProcess, Payload: jobs.Payload{MediaFile: "/secret/path.mp4"}})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "/secret/path.mp4")

	var views []jobView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "abc", views[0].ID)
	assert.Equal(t, jobs.StatePending, views[0].State)
}

func TestServer_JobStream(t *testing.T) {
	env := newTestEnv(t, WithStreamInterval(10*time.Millisecond))
	env.queue.Enqueue(jobs.EnqueueRequest{ID: "abc", Kind: jobs.KindProcess, Status: "Queued"})

	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/jobs/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)
	var events []string
	for len(events) < 2 && scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			events = append(events, strings.TrimPrefix(line, "data: "))
			if len(events) == 1 {
				env.queue.Enqueue(jobs.EnqueueRequest{ID: "def", Kind: jobs.KindTranslate})
			}
		}
	}
	require.Len(t, events, 2)

	var first, second []jobView
	require.NoError(t, json.Unmarshal([]byte(events[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(events[1]), &second))
	assert.Len(t, first, 1)
	assert.Len(t, second, 2)
}
