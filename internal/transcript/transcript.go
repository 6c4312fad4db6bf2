package transcript

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/baiqwe/vidguide/internal/media"
)

// TruncationMarker is appended when a transcript exceeds the configured cap.
const TruncationMarker = "... [transcript truncated]"

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// Resolver turns a video reference into a plain-text transcript by fetching
// the best available subtitle track and cleaning it.
type Resolver struct {
	client    *media.Client
	languages []string
	maxChars  int
}

// NewResolver builds a resolver with a language priority list and a cap on
// transcript length in characters.
func NewResolver(client *media.Client, languages []string, maxChars int) *Resolver {
	return &Resolver{client: client, languages: languages, maxChars: maxChars}
}

// Resolve returns the cleaned transcript for a video, or an empty string when
// no subtitle track exists. Absence of a transcript is not an error.
func (r *Resolver) Resolve(ctx context.Context, url, dir string) (string, error) {
	path, err := r.client.FetchSubtitles(ctx, url, dir, r.languages)
	if err != nil {
		return "", fmt.Errorf("subtitle fetch failed: %w", err)
	}
	if path == "" {
		return "", nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read subtitle file: %w", err)
	}
	return Clean(string(raw), r.maxChars), nil
}

// Clean converts WebVTT caption text into plain prose: header and cue timing
// lines are removed, inline markup is stripped, and repeated caption lines
// are de-duplicated (rolling captions repeat lines both consecutively and
// across cue blocks). Output length is capped at maxChars.
func Clean(vtt string, maxChars int) string {
	seen := make(map[string]bool)
	var lines []string

	for _, line := range strings.Split(vtt, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.Contains(line, "-->") {
			continue
		}
		if strings.HasPrefix(line, "WEBVTT") ||
			strings.HasPrefix(line, "Kind:") ||
			strings.HasPrefix(line, "Language:") ||
			strings.HasPrefix(line, "NOTE") ||
			strings.HasPrefix(line, "STYLE") {
			continue
		}
		if isCueIdentifier(line) {
			continue
		}

		line = tagPattern.ReplaceAllString(line, "")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if seen[line] {
			continue
		}
		seen[line] = true
		lines = append(lines, line)
	}

	text := strings.Join(lines, "\n")
	if maxChars > 0 && len(text) > maxChars {
		cut := maxChars - len(TruncationMarker)
		if cut < 0 {
			cut = 0
		}
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + TruncationMarker
	}
	return text
}

// isCueIdentifier reports whether a line is a bare numeric cue counter.
func isCueIdentifier(line string) bool {
	for _, r := range line {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
