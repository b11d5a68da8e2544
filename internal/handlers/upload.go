package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
)

// handleFileUpload stores an uploaded photo as a temp capture and starts a
// session analyzing it. A JSON body {"url": "..."} captures a remote photo
// instead of a multipart upload.
func (h *Handler) handleFileUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+1024*1024)

	var fileData []byte
	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType == "application/json" {
		var request struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil || request.URL == "" {
			h.writeError(w, "Invalid JSON: expected {\"url\": ...}", http.StatusBadRequest)
			return
		}
		data, _, err := h.fetcher.Fetch(r.Context(), request.URL)
		if err != nil {
			h.writeError(w, "Failed to fetch image: "+err.Error(), http.StatusBadGateway)
			return
		}
		fileData = data
	} else {
		file, _, err := r.FormFile("file")
		if err != nil {
			file, _, err = r.FormFile("files")
			if err != nil {
				h.writeError(w, "Failed to read file: "+err.Error(), http.StatusBadRequest)
				return
			}
		}
		defer file.Close()

		fileData, err = io.ReadAll(io.LimitReader(file, h.maxUploadSize+1))
		if err != nil {
			h.writeError(w, "Failed to read file contents: "+err.Error(), http.StatusBadRequest)
			return
		}
		if int64(len(fileData)) > h.maxUploadSize {
			h.writeError(w, "File too large", http.StatusRequestEntityTooLarge)
			return
		}
	}

	ext, err := imageExtension(fileData)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusUnsupportedMediaType)
		return
	}

	session, err := h.service.StartCapture(r.Context(), bytes.NewReader(fileData), ext)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSONStatus(w, http.StatusCreated, captureResponse{
		SessionID: session.ID,
		Snapshot:  session.Workflow.Snapshot(),
	})
}
