package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/lehigh-university-libraries/lifeindex/internal/cataloging"
	"github.com/lehigh-university-libraries/lifeindex/internal/models"
	"github.com/lehigh-university-libraries/lifeindex/internal/query"
)

// HandleItems lists items, narrowed by the optional category and q
// parameters.
func (h *Handler) HandleItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	items, err := h.service.Catalog().List(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	filter := models.Filter{
		Category:   r.URL.Query().Get("category"),
		SearchText: r.URL.Query().Get("q"),
	}
	matched := query.Apply(items, filter)

	response := make([]itemResponse, 0, len(matched))
	for _, item := range matched {
		response = append(response, newItemResponse(item))
	}
	h.writeJSON(w, response)
}

func (h *Handler) HandleCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	items, err := h.service.Catalog().List(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	counts := query.Categories(items)
	if counts == nil {
		counts = []query.CategoryCount{}
	}
	h.writeJSON(w, counts)
}

func (h *Handler) HandleItemDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseItemID(w, strings.TrimPrefix(r.URL.Path, "/api/items/"))
	if !ok {
		return
	}

	switch r.Method {
	case "GET":
		item, err := h.service.Catalog().GetByID(r.Context(), id)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		if item == nil {
			h.writeError(w, "Item not found", http.StatusNotFound)
			return
		}
		h.writeJSON(w, newItemResponse(*item))
	case "PUT":
		var request struct {
			Title      *string      `json:"title"`
			Category   *string      `json:"category"`
			Tags       *models.Tags `json:"tags"`
			AddTags    []string     `json:"add_tags"`
			RemoveTags []string     `json:"remove_tags"`
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}
		item, err := h.service.UpdateItem(r.Context(), id, cataloging.ItemEdit{
			Title:      request.Title,
			Category:   request.Category,
			Tags:       request.Tags,
			AddTags:    request.AddTags,
			RemoveTags: request.RemoveTags,
		})
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		if item == nil {
			h.writeError(w, "Item not found", http.StatusNotFound)
			return
		}
		h.writeJSON(w, newItemResponse(*item))
	case "DELETE":
		deleted, err := h.service.DeleteItem(r.Context(), id)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		if !deleted {
			h.writeError(w, "Item not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
