package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/lehigh-university-libraries/lifeindex/internal/capture"
	"github.com/lehigh-university-libraries/lifeindex/internal/cataloging"
	"github.com/lehigh-university-libraries/lifeindex/internal/images"
	"github.com/lehigh-university-libraries/lifeindex/internal/models"
	"github.com/lehigh-university-libraries/lifeindex/internal/storage"
)

const defaultMaxUploadSize = 20 * 1024 * 1024

type Handler struct {
	service       *cataloging.Service
	fetcher       *images.Fetcher
	maxUploadSize int64
}

func New(service *cataloging.Service, maxUploadSize int64) *Handler {
	if maxUploadSize <= 0 {
		maxUploadSize = defaultMaxUploadSize
	}
	return &Handler{
		service:       service,
		fetcher:       images.NewFetcher(maxUploadSize),
		maxUploadSize: maxUploadSize,
	}
}

// Routes registers every endpoint on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/captures", h.HandleCaptures)
	mux.HandleFunc("/api/captures/", h.HandleCaptureDetail)
	mux.HandleFunc("/api/items", h.HandleItems)
	mux.HandleFunc("/api/items/", h.HandleItemDetail)
	mux.HandleFunc("/api/categories", h.HandleCategories)
	mux.HandleFunc("/images/", h.HandleImages)
	mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})
}

type captureResponse struct {
	SessionID string `json:"session_id"`
	capture.Snapshot
}

type itemResponse struct {
	models.Item
	ImageURL string `json:"image_url"`
}

func newItemResponse(item models.Item) itemResponse {
	return itemResponse{Item: item, ImageURL: "/images/" + filepath.Base(item.ImageLocation)}
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	h.writeJSONStatus(w, http.StatusOK, data)
}

func (h *Handler) writeJSONStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	if code >= http.StatusInternalServerError {
		slog.Error(message, "status", code)
	} else {
		slog.Warn(message, "status", code)
	}
	http.Error(w, message, code)
}

// writeServiceError maps the error taxonomy onto HTTP status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidState):
		h.writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, models.ErrDisposed), errors.Is(err, capture.ErrSessionReset):
		h.writeError(w, err.Error(), http.StatusGone)
	case errors.Is(err, models.ErrNotFound):
		h.writeError(w, err.Error(), http.StatusNotFound)
	default:
		h.writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

// Session helpers
func (h *Handler) getSessionOrError(w http.ResponseWriter, sessionID string) (*storage.Session, bool) {
	session, exists := h.service.Sessions().Get(sessionID)
	if !exists {
		h.writeError(w, "Session not found", http.StatusNotFound)
		return nil, false
	}
	return session, true
}

func (h *Handler) parseItemID(w http.ResponseWriter, raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, "Invalid item id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
