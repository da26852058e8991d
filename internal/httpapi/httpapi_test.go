package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gamasenninn/ptt/internal/recordings"
)

func newTestMux(t *testing.T, dir string) *http.ServeMux {
	t.Helper()
	store := recordings.NewStore(dir)
	h := NewHandler(store)
	mux := http.NewServeMux()
	h.Routes(mux)
	return mux
}

func TestListEndpoint(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, "rec_20260101_120000.srt", "1\n00:00:00,000 --> 00:00:01,000\nHi\n")
	mux := newTestMux(t, dir)

	req := httptest.NewRequest(http.MethodGet, "/api/srt/list", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var entries []listEntryJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(entries) != 1 || entries[0].TranscriptFile != "rec_20260101_120000.srt" {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestGetEndpointRejectsMissingFileParam(t *testing.T) {
	t.Parallel()
	mux := newTestMux(t, t.TempDir())

	req := httptest.NewRequest(http.MethodGet, "/api/srt/get", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSaveEndpointWritesFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	mux := newTestMux(t, dir)

	body, _ := json.Marshal(saveRequest{File: "rec_20260101_120000.srt", Content: "new content"})
	req := httptest.NewRequest(http.MethodPost, "/api/srt/save", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	got, err := os.ReadFile(filepath.Join(dir, "rec_20260101_120000.srt"))
	if err != nil || string(got) != "new content" {
		t.Fatalf("file = %q, err = %v", got, err)
	}
}

// TestAudioRangeRequest targets testable property 10.
func TestAudioRangeRequest(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	content := []byte("0123456789ABCDEF")
	writeFile(t, dir, "rec_20260101_120000.wav", string(content))
	mux := newTestMux(t, dir)

	req := httptest.NewRequest(http.MethodGet, "/api/audio?file=rec_20260101_120000.wav", nil)
	req.Header.Set("Range", "bytes=2-5")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", rec.Code)
	}
	if rec.Body.String() != "2345" {
		t.Fatalf("body = %q, want %q", rec.Body.String(), "2345")
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 2-5/16" {
		t.Fatalf("Content-Range = %q", got)
	}
	if rec.Header().Get("Accept-Ranges") != "bytes" {
		t.Fatalf("Accept-Ranges = %q, want bytes", rec.Header().Get("Accept-Ranges"))
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("writeFile(%s): %v", name, err)
	}
}
