package recordings

import (
	"bufio"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidName is returned for recording filenames rejected by
// SanitizeName or by the extension checks in Get/Save/AudioPath.
var ErrInvalidName = errors.New("invalid recording filename")

// SanitizeName reduces name to its basename and rejects anything that still
// contains a path separator or traversal after that reduction, or that does
// not match the rec_/web_ recording filename pattern (spec
// section 4.9: "Path inputs are sanitized by taking the basename only; any
// .. or directory separators are stripped. Unknown or non-matching names
// are rejected").
func SanitizeName(name string) (string, error) {
	base := filepath.Base(name)
	if base == "." || base == "/" || base == "" || strings.Contains(base, "..") {
		return "", fmt.Errorf("recordings: %w: %q", ErrInvalidName, name)
	}
	if !filenameRe.MatchString(base) {
		return "", fmt.Errorf("recordings: %w: %q", ErrInvalidName, name)
	}
	return base, nil
}

// timestampRe matches an SRT timestamp, accepting both the standard comma
// millisecond separator and a dot (spec section 4.9: "HH:MM:SS,mmm or
// HH:MM:SS.mmm").
var timestampRe = regexp.MustCompile(`^(\d{2}):(\d{2}):(\d{2})[,.](\d{3})$`)

func parseTimestamp(s string) (time.Duration, error) {
	m := timestampRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("recordings: malformed timestamp %q", s)
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	sec, _ := strconv.Atoi(m[3])
	ms, _ := strconv.Atoi(m[4])
	return time.Duration(h)*time.Hour +
		time.Duration(min)*time.Minute +
		time.Duration(sec)*time.Second +
		time.Duration(ms)*time.Millisecond, nil
}

// ParseSRT parses SubRip-format content into an ordered sequence of
// segments (spec section 4.9). Blocks are separated by one or more blank
// lines: an index line, a "start --> end" line, then one or more text
// lines.
func ParseSRT(content string) ([]Segment, error) {
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var segments []Segment
	var lines []string
	flush := func() error {
		if len(lines) == 0 {
			return nil
		}
		seg, err := parseBlock(lines)
		if err != nil {
			return err
		}
		segments = append(segments, seg)
		lines = nil
		return nil
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("recordings: scan srt: %w", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return segments, nil
}

func parseBlock(lines []string) (Segment, error) {
	if len(lines) < 2 {
		return Segment{}, fmt.Errorf("recordings: malformed srt block: %v", lines)
	}
	index, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return Segment{}, fmt.Errorf("recordings: malformed srt index %q: %w", lines[0], err)
	}

	arrow := strings.SplitN(lines[1], "-->", 2)
	if len(arrow) != 2 {
		return Segment{}, fmt.Errorf("recordings: malformed srt timing line %q", lines[1])
	}
	start, err := parseTimestamp(strings.TrimSpace(arrow[0]))
	if err != nil {
		return Segment{}, err
	}
	end, err := parseTimestamp(strings.Fields(arrow[1])[0])
	if err != nil {
		return Segment{}, err
	}

	text := strings.Join(lines[2:], "\n")
	return Segment{Index: index, Start: start, End: end, Text: text}, nil
}

// FormatFilenameTimestamp formats t the way a rec_/web_ filename embeds it,
// for the filename round-trip law (spec testable property 9).
func FormatFilenameTimestamp(t time.Time) string {
	return t.Format(filenameLayout)
}

// ParseFilenameTimestamp parses the YYYYMMDD_HHMMSS portion of a recording
// filename back into a time.Time (UTC, since the filename carries no zone).
func ParseFilenameTimestamp(s string) (time.Time, error) {
	return time.Parse(filenameLayout, s)
}
