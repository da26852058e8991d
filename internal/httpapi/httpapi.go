// Package httpapi is the thin net/http read-API over the Recording Handoff
// (spec section 4.9, 6): GET /api/srt/list, GET /api/srt/get, POST
// /api/srt/save, GET /api/audio with Range support.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gamasenninn/ptt/internal/recordings"
)

// Handler wires a recordings.Store into an http.Handler.
type Handler struct {
	store  *recordings.Store
	logger *slog.Logger
}

// NewHandler builds the read-API handler over store.
func NewHandler(store *recordings.Store) *Handler {
	return &Handler{store: store, logger: slog.Default().With("component", "httpapi")}
}

// Routes registers the API's endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/srt/list", h.handleList)
	mux.HandleFunc("GET /api/srt/get", h.handleGet)
	mux.HandleFunc("POST /api/srt/save", h.handleSave)
	mux.HandleFunc("GET /api/audio", h.handleAudio)
}

// errorEnvelope is the {"error": "<message>"} JSON body for 4xx/5xx
// responses (SPEC_FULL.md section 3.1), grounded on the plain
// encoding/json error responses the teacher's /health endpoint uses.
type errorEnvelope struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: message})
}

type listEntryJSON struct {
	TranscriptFile string `json:"transcriptFile"`
	AudioFile      string `json:"audioFile,omitempty"`
	RecordedAt     string `json:"recordedAt"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	recs, err := h.store.List()
	if err != nil {
		h.logger.Warn("list failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list recordings")
		return
	}

	out := make([]listEntryJSON, 0, len(recs))
	for _, rec := range recs {
		out = append(out, listEntryJSON{
			TranscriptFile: rec.TranscriptFile,
			AudioFile:      rec.AudioFile,
			RecordedAt:     rec.RecordedAt.Format("2006-01-02T15:04:05"),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

type segmentJSON struct {
	Index int    `json:"index"`
	Start string `json:"start"`
	End   string `json:"end"`
	Text  string `json:"text"`
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	file := r.URL.Query().Get("file")
	if file == "" {
		writeError(w, http.StatusBadRequest, "missing file parameter")
		return
	}

	segments, err := h.store.Get(file)
	if err != nil {
		if errors.Is(err, recordings.ErrInvalidName) || errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "recording not found")
			return
		}
		h.logger.Warn("get failed", "file", file, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to read recording")
		return
	}

	out := make([]segmentJSON, 0, len(segments))
	for _, seg := range segments {
		out = append(out, segmentJSON{
			Index: seg.Index,
			Start: formatSRTTimestamp(seg.Start),
			End:   formatSRTTimestamp(seg.End),
			Text:  seg.Text,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

type saveRequest struct {
	File    string `json:"file"`
	Content string `json:"content"`
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if err := h.store.Save(req.File, req.Content); err != nil {
		if errors.Is(err, recordings.ErrInvalidName) {
			writeError(w, http.StatusBadRequest, "invalid recording filename")
			return
		}
		h.logger.Warn("save failed", "file", req.File, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to save recording")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAudio(w http.ResponseWriter, r *http.Request) {
	file := r.URL.Query().Get("file")
	if file == "" {
		writeError(w, http.StatusBadRequest, "missing file parameter")
		return
	}

	path, err := h.store.AudioPath(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid recording filename")
		return
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, "recording not found")
			return
		}
		h.logger.Warn("open audio failed", "file", file, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to open recording")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to stat recording")
		return
	}

	w.Header().Set("Accept-Ranges", "bytes")
	// http.ServeContent handles Range requests (206/Content-Range) and
	// full-body requests (200) the same way net/http's file server does.
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func formatSRTTimestamp(d time.Duration) string {
	totalMs := d.Milliseconds()
	ms := totalMs % 1000
	totalSec := totalMs / 1000
	sec := totalSec % 60
	totalMin := totalSec / 60
	min := totalMin % 60
	hour := totalMin / 60
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hour, min, sec, ms)
}
