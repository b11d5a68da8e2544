package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/lehigh-university-libraries/lifeindex/internal/capture"
)

func (h *Handler) HandleCaptures(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		sessions := h.service.Sessions().GetAll()
		sessionList := make([]captureResponse, 0, len(sessions))
		for _, session := range sessions {
			sessionList = append(sessionList, captureResponse{
				SessionID: session.ID,
				Snapshot:  session.Workflow.Snapshot(),
			})
		}
		h.writeJSON(w, sessionList)
	case "POST":
		h.handleFileUpload(w, r)
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) HandleCaptureDetail(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/captures/")
	sessionID, action, _ := strings.Cut(path, "/")

	session, ok := h.getSessionOrError(w, sessionID)
	if !ok {
		return
	}

	switch {
	case action == "commit" && r.Method == "POST":
		h.commitCapture(w, r, sessionID, session.Workflow)
	case action != "":
		h.writeError(w, "Not found", http.StatusNotFound)
	case r.Method == "GET":
		h.writeJSON(w, captureResponse{SessionID: sessionID, Snapshot: session.Workflow.Snapshot()})
	case r.Method == "PUT":
		h.editCapture(w, r, sessionID, session.Workflow)
	case r.Method == "DELETE":
		h.service.Sessions().Delete(sessionID)
		w.WriteHeader(http.StatusNoContent)
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// editCapture applies draft edits. Edits sent while the session is not
// confirming are ignored and the unchanged session is returned.
func (h *Handler) editCapture(w http.ResponseWriter, r *http.Request, sessionID string, workflow *capture.Workflow) {
	var request struct {
		Title      *string  `json:"title"`
		Category   *string  `json:"category"`
		AddTags    []string `json:"add_tags"`
		RemoveTags []string `json:"remove_tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	if request.Title != nil {
		workflow.EditTitle(*request.Title)
	}
	if request.Category != nil {
		workflow.EditCategory(*request.Category)
	}
	for _, tag := range request.AddTags {
		workflow.AddTag(tag)
	}
	for _, tag := range request.RemoveTags {
		workflow.RemoveTag(tag)
	}

	h.writeJSON(w, captureResponse{SessionID: sessionID, Snapshot: workflow.Snapshot()})
}

func (h *Handler) commitCapture(w http.ResponseWriter, r *http.Request, sessionID string, workflow *capture.Workflow) {
	// a commit that has started runs to completion even if the client goes away
	id, err := workflow.Commit(context.WithoutCancel(r.Context()))
	if err != nil {
		var failed *capture.CommitFailedError
		if errors.As(err, &failed) {
			h.writeJSONStatus(w, http.StatusInternalServerError, captureResponse{
				SessionID: sessionID,
				Snapshot:  workflow.Snapshot(),
			})
			return
		}
		h.writeServiceError(w, err)
		return
	}

	item, err := h.service.Catalog().GetByID(r.Context(), id)
	if err != nil || item == nil {
		h.writeJSONStatus(w, http.StatusCreated, map[string]any{"id": id})
		return
	}
	h.service.Sessions().Delete(sessionID)
	h.writeJSONStatus(w, http.StatusCreated, newItemResponse(*item))
}
