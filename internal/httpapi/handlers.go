package httpapi

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/MimeLyc/subtitle-studio/internal/jobs"
	"github.com/MimeLyc/subtitle-studio/pkg/log"
	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/language"
)

const (
	stateProcessing = "PROCESSING"
	statusQueued    = "Queued"
)

var (
	allowedExtensions = map[string]bool{
		"mp4": true, "avi": true, "mov": true, "mp3": true, "wav": true,
		"ogg": true, "webm": true, "mkv": true, "mpeg": true,
	}

	jobIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)
)

type uploadResponse struct {
	Message string `json:"message"`
	FileID  string `json:"file_id"`
	State   string `json:"state"`
}

type translateRequest struct {
	FileID         string `json:"file_id"`
	TargetLanguage string `json:"target_language"`
}

type translateResponse struct {
	Message       string `json:"message"`
	TranslationID string `json:"translation_id"`
	State         string `json:"state"`
}

type statusResponse struct {
	Status   string     `json:"status"`
	Progress int        `json:"progress"`
	State    jobs.State `json:"state"`
}

// jobView is the public projection of a queued job.
type jobView struct {
	ID        string     `json:"id"`
	Kind      jobs.Kind  `json:"kind"`
	State     jobs.State `json:"state"`
	Status    string     `json:"status"`
	Progress  int        `json:"progress"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func toJobViews(list []*jobs.Job) []jobView {
	ret := make([]jobView, 0, len(list))
	for _, job := range list {
		ret = append(ret, jobView{
			ID:        job.ID,
			Kind:      job.Kind,
			State:     job.State.Reported(),
			Status:    job.Status,
			Progress:  job.Progress,
			CreatedAt: job.CreatedAt,
			UpdatedAt: job.UpdatedAt,
		})
	}
	return ret
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	reader, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file part")
		return
	}

	fileID := s.newFileID()
	var (
		savedPath string
		checksum  string
		sourceLng string
	)
	fail := func(status int, msg string) {
		if savedPath != "" {
			_ = os.Remove(savedPath)
		}
		writeError(w, status, msg)
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if isTooLarge(err) {
				fail(http.StatusRequestEntityTooLarge, "File too large")
				return
			}
			fail(http.StatusBadRequest, "Malformed upload")
			return
		}

		switch part.FormName() {
		case "file":
			if savedPath != "" {
				continue
			}
			name := part.FileName()
			if strings.TrimSpace(name) == "" {
				fail(http.StatusBadRequest, "No selected file")
				return
			}
			ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
			if !allowedExtensions[ext] {
				fail(http.StatusBadRequest, "File type not allowed")
				return
			}
			savedPath = filepath.Join(s.uploadDir, fileID+"."+ext)
			checksum, err = s.saveUpload(part, savedPath)
			if err != nil {
				if isTooLarge(err) {
					fail(http.StatusRequestEntityTooLarge, "File too large")
					return
				}
				log.Error("Failed to save upload %s: %v", name, err)
				fail(http.StatusInternalServerError, "Failed to save file")
				return
			}
		case "language":
			value, err := io.ReadAll(io.LimitReader(part, 64))
			if err != nil {
				fail(http.StatusBadRequest, "Malformed upload")
				return
			}
			sourceLng = strings.TrimSpace(string(value))
		}
		_ = part.Close()
	}

	if savedPath == "" {
		writeError(w, http.StatusBadRequest, "No file part")
		return
	}

	normalized, ok := normalizeSourceLanguage(sourceLng)
	if !ok {
		fail(http.StatusBadRequest, "Invalid source language")
		return
	}

	job, created := s.queue.Enqueue(jobs.EnqueueRequest{
		ID:        fileID,
		Kind:      jobs.KindProcess,
		DedupeKey: "upload|" + checksum + "|" + normalized,
		Payload: jobs.Payload{
			MediaFile:      savedPath,
			SourceLanguage: normalized,
		},
		Status: statusQueued,
	})
	if !created {
		// same content already being processed
		_ = os.Remove(savedPath)
		log.Info("Upload matches active job %s", job.ID)
	} else {
		log.Info("Accepted upload %s (%s)", job.ID, filepath.Base(savedPath))
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Message: "File uploaded, starting processing",
		FileID:  job.ID,
		State:   stateProcessing,
	})
}

// saveUpload streams part to path and returns the xxhash of its content.
func (s *Server) saveUpload(part *multipart.Part, path string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	digest := xxhash.New()
	if _, err := io.Copy(io.MultiWriter(out, digest), part); err != nil {
		_ = out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.translationEnabled {
		writeError(w, http.StatusServiceUnavailable, "Translation is not configured")
		return
	}

	var req translateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Missing parameters")
		return
	}
	req.FileID = strings.TrimSpace(req.FileID)
	req.TargetLanguage = strings.TrimSpace(req.TargetLanguage)
	if req.FileID == "" || req.TargetLanguage == "" {
		writeError(w, http.StatusBadRequest, "Missing parameters")
		return
	}
	if !jobIDPattern.MatchString(req.FileID) {
		writeError(w, http.StatusBadRequest, "Invalid file id")
		return
	}
	tag, err := language.Parse(req.TargetLanguage)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid target language %q", req.TargetLanguage))
		return
	}
	if !s.hasSource(req.FileID) {
		writeError(w, http.StatusNotFound, "Source subtitles not found")
		return
	}

	id := req.FileID + "_" + tag.String()
	job, _ := s.queue.Enqueue(jobs.EnqueueRequest{
		ID:   id,
		Kind: jobs.KindTranslate,
		Payload: jobs.Payload{
			SourceFileID:   req.FileID,
			TargetLanguage: tag.String(),
		},
		Status: statusQueued,
	})

	writeJSON(w, http.StatusOK, translateResponse{
		Message:       "Translation started",
		TranslationID: job.ID,
		State:         stateProcessing,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/status/")
	job, ok := s.queue.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, statusResponse{Status: "Not found", Progress: 0, State: jobs.StateFailure})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Status:   job.Status,
		Progress: job.Progress,
		State:    job.State.Reported(),
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/download/")
	if !jobIDPattern.MatchString(id) {
		writeError(w, http.StatusNotFound, "Subtitle file not found")
		return
	}

	f, err := os.Open(filepath.Join(s.resultsDir, id+".srt"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Subtitle file not found")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		writeError(w, http.StatusNotFound, "Subtitle file not found")
		return
	}

	w.Header().Set("Content-Type", "application/x-subrip")
	w.Header().Set("Content-Disposition", `attachment; filename="subtitles.srt"`)
	http.ServeContent(w, r, "subtitles.srt", info.ModTime(), f)
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, toJobViews(s.queue.List()))
}

// normalizeSourceLanguage maps "", "auto" and valid tags to the value passed
// to the transcriber.
func normalizeSourceLanguage(raw string) (string, bool) {
	if raw == "" || strings.EqualFold(raw, "auto") {
		return "", true
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return "", false
	}
	base, _ := tag.Base()
	return base.String(), true
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func (s *Server) hasSource(fileID string) bool {
	for _, ext := range []string{".json", ".srt"} {
		if _, err := os.Stat(filepath.Join(s.resultsDir, fileID+ext)); err == nil {
			return true
		}
	}
	return false
}
