package media

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const probeJSON = `{
	"id": "dQw4w9WgXcQ",
	"title": "A Video",
	"duration": 212.5,
	"formats": [
		{"format_id": "sb2", "format_note": "storyboard", "url": "https://i.ytimg.com/sb/dQw4w9WgXcQ/storyboard3_L1/M$M.jpg", "width": 80, "height": 45, "columns": 10, "rows": 10, "fragments": [{"duration": 200}]},
		{"format_id": "sb1", "format_note": "storyboard", "url": "https://i.ytimg.com/sb/dQw4w9WgXcQ/storyboard3_L2/M$M.jpg", "width": 160, "height": 90, "columns": 5, "rows": 5, "fragments": [{"duration": 50}]},
		{"format_id": "18", "format_note": "360p", "url": "https://example.com/video.mp4"}
	]
}`

func TestParseMetadata(t *testing.T) {
	meta := ParseMetadata([]byte(probeJSON))

	if meta.VideoID != "dQw4w9WgXcQ" {
		t.Errorf("video id = %q", meta.VideoID)
	}
	if meta.Duration != 212.5 {
		t.Errorf("duration = %v", meta.Duration)
	}
	if meta.Storyboard == nil {
		t.Fatal("storyboard spec not resolved")
	}
	// The last storyboard format has the largest tiles and should win.
	if meta.Storyboard.TileWidth != 160 || meta.Storyboard.TileHeight != 90 {
		t.Errorf("tile size = %dx%d, want 160x90", meta.Storyboard.TileWidth, meta.Storyboard.TileHeight)
	}
	if meta.Storyboard.Columns != 5 || meta.Storyboard.Rows != 5 {
		t.Errorf("grid = %dx%d, want 5x5", meta.Storyboard.Columns, meta.Storyboard.Rows)
	}
	// 50s fragment over a 5x5 grid = 2s per tile.
	if meta.Storyboard.IntervalMS != 2000 {
		t.Errorf("interval = %dms, want 2000", meta.Storyboard.IntervalMS)
	}
}

func TestParseMetadataNoStoryboard(t *testing.T) {
	meta := ParseMetadata([]byte(`{"id": "abc12345678", "duration": 60, "formats": []}`))
	if meta.Storyboard != nil {
		t.Error("expected nil storyboard spec")
	}
	if meta.Duration != 60 {
		t.Errorf("duration = %v", meta.Duration)
	}
}

func TestFallbackStoryboard(t *testing.T) {
	spec := FallbackStoryboard("dQw4w9WgXcQ")
	if spec.URLTemplate != "https://i.ytimg.com/sb/dQw4w9WgXcQ/storyboard3_L2/M$M.jpg" {
		t.Errorf("url template = %q", spec.URLTemplate)
	}
	if spec.TileWidth != 160 || spec.TileHeight != 90 || spec.Columns != 10 || spec.Rows != 10 || spec.IntervalMS != 2000 {
		t.Errorf("unexpected fallback spec: %+v", spec)
	}
}

func TestExtractVideoID(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=10s", "dQw4w9WgXcQ"},
		{"https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://youtu.be/dQw4w9WgXcQ?si=xyz", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
	}
	for _, tc := range cases {
		got, err := ExtractVideoID(tc.url)
		if err != nil {
			t.Errorf("ExtractVideoID(%q) failed: %v", tc.url, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ExtractVideoID(%q) = %q, want %q", tc.url, got, tc.want)
		}
	}

	if _, err := ExtractVideoID("https://example.com/"); err == nil {
		t.Error("expected error for URL without a video id")
	}
}

// hangingBinary builds a stand-in for yt-dlp that never finishes.
func hangingBinary(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hung-yt-dlp")
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexec sleep 30\n"), 0755); err != nil {
		t.Fatalf("failed to write stub binary: %v", err)
	}
	return path
}

func TestProbeTimeout(t *testing.T) {
	c := NewClient(hangingBinary(t), Timeouts{Probe: 100 * time.Millisecond})

	start := time.Now()
	_, err := c.Probe(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	if err == nil {
		t.Fatal("expected probe of a hung binary to fail")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("probe blocked for %v despite the per-call timeout", elapsed)
	}
}

func TestDownloadMediaTimeout(t *testing.T) {
	c := NewClient(hangingBinary(t), Timeouts{Download: 100 * time.Millisecond})

	start := time.Now()
	_, err := c.DownloadMedia(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ", t.TempDir())
	if err == nil {
		t.Fatal("expected download via a hung binary to fail")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("download blocked for %v despite the per-call timeout", elapsed)
	}
}

func TestFetchSubtitlesTimeout(t *testing.T) {
	c := NewClient(hangingBinary(t), Timeouts{Subtitles: 100 * time.Millisecond})

	start := time.Now()
	// Both passes run and time out; no subtitle file appears, which is the
	// "no subtitles" outcome rather than an error.
	path, err := c.FetchSubtitles(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ", t.TempDir(), []string{"en"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Errorf("got subtitle path %q from a hung binary", path)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("subtitle fetch blocked for %v despite the per-call timeout", elapsed)
	}
}
