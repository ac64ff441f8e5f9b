// pkg/api/handler.go
package api

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"voiceboost/pkg/models"
	"voiceboost/pkg/pipeline"
	"voiceboost/pkg/storage"
)

//go:embed static/index.html
var staticFS embed.FS

var pageTemplate = template.Must(template.ParseFS(staticFS, "static/index.html"))

// JobService is what the handlers need from the pipeline manager.
type JobService interface {
	Submit(upload *models.Upload) (*models.Job, error)
	Job(id string) (*models.Job, error)
	History(limit int) ([]*models.JobRecord, error)
}

type Handlers struct {
	jobs           JobService
	maxUploadBytes int64
	logger         *zap.Logger
}

func NewHandlers(jobs JobService, maxUploadBytes int64, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		jobs:           jobs,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

type jobResponse struct {
	JobID     string          `json:"job_id,omitempty"`
	State     models.State    `json:"state,omitempty"`
	Progress  models.Progress `json:"progress"`
	Error     string          `json:"error,omitempty"`
	ErrorKind string          `json:"error_kind,omitempty"`
	FileName  string          `json:"file_name,omitempty"`
	Original  string          `json:"original_url,omitempty"`
	Download  string          `json:"download_url,omitempty"`
}

func newJobResponse(job *models.Job) jobResponse {
	resp := jobResponse{
		JobID:     job.ID,
		State:     job.State,
		Progress:  job.Progress,
		Error:     job.Error,
		ErrorKind: job.ErrorKind,
	}
	if job.State == models.StatePresented && job.Result != nil {
		resp.FileName = job.Result.FileName
		resp.Original = "/api/jobs/" + job.ID + "/original"
		resp.Download = "/api/jobs/" + job.ID + "/download"
	}
	return resp
}

func (h *Handlers) IndexHandler(w http.ResponseWriter, r *http.Request) {
	data := struct {
		MaxUploadMB int64
		Accept      string
	}{
		MaxUploadMB: h.maxUploadBytes / (1024 * 1024),
		Accept:      "." + strings.Join(pipeline.AllowedExtensions(), ",."),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, data); err != nil {
		h.logger.Error("render page", zap.Error(err))
	}
}

func (h *Handlers) UploadHandler(w http.ResponseWriter, r *http.Request) {
	// One extra megabyte covers multipart framing, so a file just over the
	// limit still reaches the size check and gets the descriptive message.
	limit := h.maxUploadBytes + (1 << 20)
	if r.ContentLength > limit {
		h.writeError(w, http.StatusRequestEntityTooLarge, h.tooLargeMessage(r.ContentLength))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, h.tooLargeMessage(r.ContentLength))
			return
		}
		h.writeError(w, http.StatusBadRequest, "Failed to parse form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("video")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "A video file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Failed to read video file")
		return
	}

	upload := &models.Upload{FileName: filepath.Base(header.Filename), Data: data}
	h.logger.Info("upload received",
		zap.String("file", upload.FileName),
		zap.String("size", fmt.Sprintf("%.2f MB", float64(upload.Size())/(1024*1024))))

	job, err := h.jobs.Submit(upload)
	if err != nil {
		status := statusFor(err)
		if job != nil {
			writeJSON(w, status, newJobResponse(job))
			return
		}
		h.writeError(w, status, pipeline.UserMessage(err))
		return
	}

	writeJSON(w, http.StatusAccepted, newJobResponse(job))
}

func (h *Handlers) tooLargeMessage(contentLength int64) string {
	limit := h.maxUploadBytes / (1024 * 1024)
	if contentLength > 0 {
		return fmt.Sprintf("File too large. Maximum size is %d MB. Your file is %.1f MB", limit, float64(contentLength)/(1024*1024))
	}
	return fmt.Sprintf("File too large. Maximum size is %d MB.", limit)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, pipeline.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, pipeline.ErrEmptyUpload):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrQueueFull), errors.Is(err, pipeline.ErrShuttingDown):
		return http.StatusServiceUnavailable
	case pipeline.KindOf(err) == pipeline.KindTool:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *Handlers) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newJobResponse(job))
}

// OriginalHandler streams the uploaded video for playback.
func (h *Handlers) OriginalHandler(w http.ResponseWriter, r *http.Request) {
	job, ok := h.presented(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", job.Result.MIMEType)
	http.ServeContent(w, r, job.FileName, job.FinishedAt, bytes.NewReader(job.Result.Original))
}

// DownloadHandler serves the enhanced video. With ?inline=1 it is served for
// playback instead of as an attachment.
func (h *Handlers) DownloadHandler(w http.ResponseWriter, r *http.Request) {
	job, ok := h.presented(w, r)
	if !ok {
		return
	}
	disposition := "attachment"
	if r.URL.Query().Get("inline") == "1" {
		disposition = "inline"
	}
	w.Header().Set("Content-Type", job.Result.MIMEType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": job.Result.FileName}))
	http.ServeContent(w, r, job.Result.FileName, job.FinishedAt, bytes.NewReader(job.Result.Enhanced))
}

func (h *Handlers) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}

	records, err := h.jobs.History(limit)
	if err != nil {
		h.logger.Error("list history", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  records,
		"count": len(records),
	})
}

func (h *Handlers) lookup(w http.ResponseWriter, r *http.Request) (*models.Job, bool) {
	id := mux.Vars(r)["id"]
	job, err := h.jobs.Job(id)
	if err != nil {
		if errors.Is(err, storage.ErrJobNotFound) {
			h.writeError(w, http.StatusNotFound, "Job not found or expired")
			return nil, false
		}
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return nil, false
	}
	return job, true
}

func (h *Handlers) presented(w http.ResponseWriter, r *http.Request) (*models.Job, bool) {
	job, ok := h.lookup(w, r)
	if !ok {
		return nil, false
	}
	if job.State != models.StatePresented || job.Result == nil {
		h.writeError(w, http.StatusConflict, "Enhanced video is not ready")
		return nil, false
	}
	return job, true
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
