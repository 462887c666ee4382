package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	middleware "github.com/markdave123-py/talktrack/internal/api/middlewares"
	"github.com/markdave123-py/talktrack/internal/logger"
	"github.com/markdave123-py/talktrack/internal/models"
	"github.com/markdave123-py/talktrack/internal/services"
)

type FileHandler struct {
	files       *services.FileService
	maxUploadMB int
	log         logger.AppLogger
}

func NewFileHandler(files *services.FileService, maxUploadMB int, log logger.AppLogger) *FileHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 10
	}
	return &FileHandler{files: files, maxUploadMB: maxUploadMB, log: log.With(slog.String("service", "http"))}
}

// Upload stores a multipart "file" field and queues it for ingestion.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, int64(h.maxUploadMB)<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid multipart body")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No File Uploaded")
		return
	}
	defer file.Close()

	created, err := h.files.Upload(r.Context(), services.UploadInput{
		UserID:      userID,
		Name:        filepath.Base(header.Filename),
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		h.log.Error("upload failed", err, slog.String("user_id", userID))
		writeError(w, http.StatusInternalServerError, "Failed to upload")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "file": created})
}

// FileStatus answers GET /api/fileStatus?fileId=.
func (h *FileHandler) FileStatus(w http.ResponseWriter, r *http.Request) {
	fileID := r.URL.Query().Get("fileId")
	if fileID == "" {
		writeError(w, http.StatusBadRequest, "Missing fileId")
		return
	}

	status, err := h.files.Status(r.Context(), fileID)
	if err != nil {
		h.fail(w, err, fileID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]models.FileStatus{"status": status})
}

func (h *FileHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "id")
	if fileID == "" {
		writeError(w, http.StatusBadRequest, "Invalid or missing file ID")
		return
	}

	text, err := h.files.Transcript(r.Context(), fileID)
	if err != nil {
		h.fail(w, err, fileID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"transcript": text})
}

func (h *FileHandler) Reprocess(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	fileID := chi.URLParam(r, "id")

	job, err := h.files.Reprocess(r.Context(), userID, fileID)
	if err != nil {
		h.fail(w, err, fileID)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "job": job})
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func (h *FileHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	fileID := chi.URLParam(r, "id")

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	hits, err := h.files.Search(r.Context(), userID, fileID, req.Query, req.Limit)
	if err != nil {
		h.fail(w, err, fileID)
		return
	}
	if hits == nil {
		hits = []models.SearchHit{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": hits})
}

func (h *FileHandler) fail(w http.ResponseWriter, err error, fileID string) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", err, slog.String("file_id", fileID))
	}
	writeError(w, status, msg)
}
