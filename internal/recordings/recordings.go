// Package recordings implements the Recording Handoff: read-side (and one
// write operation) file-system access over a configured directory of paired
// .srt/.wav recordings (spec section 4.9).
package recordings

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"
)

// filenameRe matches the on-disk basename pattern (spec section 6:
// "^(rec|web)_YYYYMMDD_HHMMSS(\.(wav|srt))$").
var filenameRe = regexp.MustCompile(`^(rec|web)_(\d{8})_(\d{6})\.(wav|srt)$`)

const filenameLayout = "20060102_150405"

// Store provides list/get/save over a recordings directory.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Recording is one list entry: a transcript paired with its audio file (if
// present) and the datetime parsed from the filename.
type Recording struct {
	TranscriptFile string
	AudioFile      string
	RecordedAt     time.Time
}

// List enumerates up to 100 most recent transcript files, each paired with
// a same-stem .wav file if one exists (spec section 4.9).
func (s *Store) List() ([]Recording, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("recordings: read dir: %w", err)
	}

	present := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			present[e.Name()] = true
		}
	}

	var recs []Recording
	for name := range present {
		match := filenameRe.FindStringSubmatch(name)
		if match == nil || match[4] != "srt" {
			continue
		}
		recordedAt, err := time.Parse(filenameLayout, match[2]+"_"+match[3])
		if err != nil {
			continue
		}
		stem := match[1] + "_" + match[2] + "_" + match[3]
		wav := stem + ".wav"
		if !present[wav] {
			wav = ""
		}
		recs = append(recs, Recording{TranscriptFile: name, AudioFile: wav, RecordedAt: recordedAt})
	}

	sort.Slice(recs, func(i, j int) bool { return recs[i].RecordedAt.After(recs[j].RecordedAt) })
	if len(recs) > 100 {
		recs = recs[:100]
	}
	return recs, nil
}

// Segment is one parsed SRT entry (spec section 4.9).
type Segment struct {
	Index int
	Start time.Duration
	End   time.Duration
	Text  string
}

// Get reads and parses the transcript named file (basename only; spec
// section 4.9: "Path inputs are sanitized by taking the basename only").
func (s *Store) Get(file string) ([]Segment, error) {
	name, err := SanitizeName(file)
	if err != nil {
		return nil, err
	}
	if filepath.Ext(name) != ".srt" {
		return nil, fmt.Errorf("recordings: %w: not a transcript file", ErrInvalidName)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("recordings: read transcript: %w", err)
	}
	return ParseSRT(string(data))
}

// Save overwrites the transcript named file with content, first copying the
// existing file (if any) to a sibling history/ directory stamped with the
// current wall-clock time (spec section 4.9).
func (s *Store) Save(file, content string) error {
	name, err := SanitizeName(file)
	if err != nil {
		return err
	}
	if filepath.Ext(name) != ".srt" {
		return fmt.Errorf("recordings: %w: not a transcript file", ErrInvalidName)
	}

	target := filepath.Join(s.dir, name)
	if existing, err := os.ReadFile(target); err == nil {
		historyDir := filepath.Join(s.dir, "history")
		if err := os.MkdirAll(historyDir, 0o755); err != nil {
			return fmt.Errorf("recordings: mkdir history: %w", err)
		}
		backupName := fmt.Sprintf("%s.%s", name, time.Now().Format("2006-01-02_150405"))
		if err := os.WriteFile(filepath.Join(historyDir, backupName), existing, 0o644); err != nil {
			return fmt.Errorf("recordings: write backup: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("recordings: stat existing transcript: %w", err)
	}

	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		return fmt.Errorf("recordings: write transcript: %w", err)
	}
	return nil
}

// AudioPath resolves a sanitized audio file path for the HTTP read-API's
// Range-request handler.
func (s *Store) AudioPath(file string) (string, error) {
	name, err := SanitizeName(file)
	if err != nil {
		return "", err
	}
	if filepath.Ext(name) != ".wav" {
		return "", fmt.Errorf("recordings: %w: not an audio file", ErrInvalidName)
	}
	return filepath.Join(s.dir, name), nil
}
