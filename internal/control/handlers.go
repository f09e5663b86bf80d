package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"mediadeck/internal/catalog"
	"mediadeck/internal/operator"
	"mediadeck/internal/options"
	"mediadeck/internal/playback"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// SeekRequest moves an item to a position given in seconds.
type SeekRequest struct {
	Seconds float64 `json:"seconds"`
}

// FreezeRequest turns pause-on-last-frame on or off.
type FreezeRequest struct {
	Frozen bool `json:"frozen"`
}

// OptionsResponse reports the options after a change.
type OptionsResponse struct {
	Options options.Options `json:"options"`
	Changed []options.Field `json:"changed"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusFor maps operator errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, operator.ErrNoThumbnail):
		return http.StatusNotFound
	case errors.Is(err, playback.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, playback.ErrBusy):
		return http.StatusLocked
	case errors.Is(err, playback.ErrNotAllowed), errors.Is(err, catalog.ErrNotVideo):
		return http.StatusUnprocessableEntity
	case errors.Is(err, operator.ErrStopped),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		s.log.Debug("request refused", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSONError(w, err.Error(), status)
}

func itemID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeJSONError(w, "invalid item id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) itemCommand(cmd func(context.Context, uuid.UUID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := itemID(w, r)
		if !ok {
			return
		}
		if err := cmd(r.Context(), id); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "ok"})
	}
}

// ListItems returns every item in display order. With ?path= it returns
// only the item for that file, or an empty list.
func (s *Server) ListItems(w http.ResponseWriter, r *http.Request) {
	if path := r.URL.Query().Get("path"); path != "" {
		it, err := s.op.ItemByPath(r.Context(), path)
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			writeJSON(w, http.StatusOK, []catalog.Snapshot{})
		case err != nil:
			s.fail(w, r, err)
		default:
			writeJSON(w, http.StatusOK, []catalog.Snapshot{it})
		}
		return
	}

	items, err := s.op.Items(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if items == nil {
		items = []catalog.Snapshot{}
	}
	writeJSON(w, http.StatusOK, items)
}

// GetItem returns one item.
func (s *Server) GetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	it, err := s.op.Item(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

// DeleteItem removes the item's file from the media folder.
func (s *Server) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	if err := s.op.Delete(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetThumbnail serves the item's JPEG thumbnail.
func (s *Server) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	data, err := s.op.Thumbnail(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(data)
}

// Seek sets an item's playback position.
func (s *Server) Seek(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	var req SeekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Seconds < 0 {
		writeJSONError(w, "seconds must not be negative", http.StatusBadRequest)
		return
	}
	pos := time.Duration(req.Seconds * float64(time.Second))
	if err := s.op.Seek(r.Context(), id, pos); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "ok"})
}

// Freeze sets whether a video pauses on its last frame.
func (s *Server) Freeze(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	var req FreezeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.op.Freeze(r.Context(), id, req.Frozen); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"frozen": req.Frozen})
}

// UnhideAll makes every item visible.
func (s *Server) UnhideAll(w http.ResponseWriter, r *http.Request) {
	if err := s.op.UnhideAll(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Reload rescans the media folder.
func (s *Server) Reload(w http.ResponseWriter, r *http.Request) {
	n, err := s.op.Reload(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"items": n})
}

// GetStatus reports what the player is doing.
func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.op.Status(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GetOptions returns the current options.
func (s *Server) GetOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.op.Options())
}

// PatchOptions applies a partial options change. ?persist=true also writes
// the options file.
func (s *Server) PatchOptions(w http.ResponseWriter, r *http.Request) {
	var p options.Patch
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		writeJSONError(w, fmt.Sprintf("invalid options: %v", err), http.StatusBadRequest)
		return
	}
	persist := r.URL.Query().Get("persist") == "true"

	changed, err := s.op.UpdateOptions(r.Context(), p, persist)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if changed == nil {
		changed = []options.Field{}
	}
	writeJSON(w, http.StatusOK, OptionsResponse{Options: s.op.Options(), Changed: changed})
}

// Health reports host health. It answers 503 when a required tool is missing.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	h := s.health(r.Context())
	status := http.StatusOK
	for _, t := range h.Tools {
		if !t.Found && (t.Name == "vlc" || t.Name == "ffprobe") {
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, h)
}

// Version reports the build version.
func (s *Server) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}
