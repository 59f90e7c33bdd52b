package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ayusman/posebake/internal/store"
)

// ClipHandler serves the history of converted clips.
type ClipHandler struct {
	store *store.Store
}

// NewClipHandler creates a new ClipHandler with the given store.
func NewClipHandler(s *store.Store) *ClipHandler {
	return &ClipHandler{store: s}
}

// ServeHTTP routes /api/clips and /api/clips/{id}.
func (h *ClipHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/clips")
	path = strings.TrimPrefix(path, "/")

	if path == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
		return
	}

	id := path
	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type clipResponse struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	SourcePath string  `json:"source_path"`
	Frames     int     `json:"frames"`
	Length     float64 `json:"length"`
	CreatedAt  string  `json:"created_at"`
}

type listClipsResponse struct {
	Clips []clipResponse `json:"clips"`
}

func toClipResponse(c *store.Clip) clipResponse {
	return clipResponse{
		ID:         c.ID,
		Name:       c.Name,
		SourcePath: c.SourcePath,
		Frames:     c.Frames,
		Length:     c.Length,
		CreatedAt:  c.CreatedAt.Format(time.RFC3339),
	}
}

// list handles GET /api/clips.
func (h *ClipHandler) list(w http.ResponseWriter, r *http.Request) {
	clips, err := h.store.Clips().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list clips")
		return
	}

	response := listClipsResponse{Clips: make([]clipResponse, 0, len(clips))}
	for _, c := range clips {
		response.Clips = append(response.Clips, toClipResponse(c))
	}
	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/clips/{id} and returns the clip's animation document.
func (h *ClipHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	clip, err := h.store.Clips().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Clip not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get clip")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+clip.Name+`.animation.json"`)
	w.WriteHeader(http.StatusOK)
	w.Write(clip.Document)
}

// delete handles DELETE /api/clips/{id}.
func (h *ClipHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.Clips().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Clip not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete clip")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
