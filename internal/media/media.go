package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Metadata holds the video properties the pipeline needs, resolved from a
// single yt-dlp probe without downloading the media.
type Metadata struct {
	VideoID    string
	Title      string
	Duration   float64
	Storyboard *StoryboardSpec
}

// StoryboardSpec describes a provider sprite sheet: a grid of preview
// thumbnails spaced at a fixed time interval. URLTemplate contains a $M
// placeholder for the sheet index.
type StoryboardSpec struct {
	URLTemplate string
	TileWidth   int
	TileHeight  int
	Columns     int
	Rows        int
	IntervalMS  int
}

// Timeouts bound each yt-dlp invocation so a hung subprocess can never wedge
// the worker. Zero values get defaults: metadata and subtitle fetches are
// short, media downloads get minutes.
type Timeouts struct {
	Probe     time.Duration
	Subtitles time.Duration
	Download  time.Duration
}

// Client wraps the yt-dlp binary for metadata, subtitle and media fetches.
type Client struct {
	binary   string
	timeouts Timeouts
}

// NewClient builds a media client. An empty binary defaults to yt-dlp on PATH.
func NewClient(binary string, timeouts Timeouts) *Client {
	if binary == "" {
		binary = "yt-dlp"
	}
	if timeouts.Probe <= 0 {
		timeouts.Probe = 30 * time.Second
	}
	if timeouts.Subtitles <= 0 {
		timeouts.Subtitles = 60 * time.Second
	}
	if timeouts.Download <= 0 {
		timeouts.Download = 10 * time.Minute
	}
	return &Client{binary: binary, timeouts: timeouts}
}

// Probe fetches metadata for a video without downloading it.
func (c *Client) Probe(ctx context.Context, url string) (*Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Probe)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.binary, "-J", "--no-warnings", "--skip-download", url)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("yt-dlp probe failed: %w", err)
	}
	return ParseMetadata(out), nil
}

// ParseMetadata extracts the fields the pipeline cares about from yt-dlp's
// JSON dump. Missing fields degrade to zero values rather than errors.
func ParseMetadata(raw []byte) *Metadata {
	doc := gjson.ParseBytes(raw)

	meta := &Metadata{
		VideoID:  doc.Get("id").String(),
		Title:    doc.Get("title").String(),
		Duration: doc.Get("duration").Float(),
	}

	// Storyboard formats are listed smallest first; the last one has the
	// largest tiles.
	var sb gjson.Result
	doc.Get("formats").ForEach(func(_, fmtEntry gjson.Result) bool {
		if fmtEntry.Get("format_note").String() == "storyboard" {
			sb = fmtEntry
		}
		return true
	})

	if sb.Exists() && sb.Get("url").String() != "" {
		spec := &StoryboardSpec{
			URLTemplate: sb.Get("url").String(),
			TileWidth:   int(sb.Get("width").Int()),
			TileHeight:  int(sb.Get("height").Int()),
			Columns:     int(sb.Get("columns").Int()),
			Rows:        int(sb.Get("rows").Int()),
		}
		if spec.Columns > 0 && spec.Rows > 0 {
			if frag := sb.Get("fragments.0.duration"); frag.Exists() {
				spec.IntervalMS = int(frag.Float() * 1000 / float64(spec.Columns*spec.Rows))
			}
		}
		if spec.IntervalMS <= 0 {
			spec.IntervalMS = 2000
		}
		if spec.TileWidth > 0 && spec.TileHeight > 0 && spec.Columns > 0 && spec.Rows > 0 {
			meta.Storyboard = spec
		}
	}

	return meta
}

// FallbackStoryboard builds the documented default sprite-sheet spec for a
// video ID, used when the probe exposes no storyboard format.
func FallbackStoryboard(videoID string) *StoryboardSpec {
	return &StoryboardSpec{
		URLTemplate: fmt.Sprintf("https://i.ytimg.com/sb/%s/storyboard3_L2/M$M.jpg", videoID),
		TileWidth:   160,
		TileHeight:  90,
		Columns:     10,
		Rows:        10,
		IntervalMS:  2000,
	}
}

var videoIDPattern = regexp.MustCompile(`(?:v=|/)([0-9A-Za-z_-]{11})`)

// ExtractVideoID pulls the 11-character video ID out of a watch URL.
func ExtractVideoID(url string) (string, error) {
	if i := strings.Index(url, "v="); i >= 0 {
		id := url[i+2:]
		if j := strings.IndexAny(id, "&#"); j >= 0 {
			id = id[:j]
		}
		if id != "" {
			return id, nil
		}
	}
	if i := strings.Index(url, "youtu.be/"); i >= 0 {
		id := url[i+len("youtu.be/"):]
		if j := strings.IndexAny(id, "?&#"); j >= 0 {
			id = id[:j]
		}
		if id != "" {
			return id, nil
		}
	}
	if m := videoIDPattern.FindStringSubmatch(url); m != nil {
		return m[1], nil
	}
	return "", fmt.Errorf("could not extract video id from %q", url)
}

// DownloadMedia downloads the video (720p or lower) into dir and returns the
// local file path.
func (c *Client) DownloadMedia(ctx context.Context, url, dir string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Download)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.binary,
		"-f", "best[height<=720]",
		"--no-warnings",
		"-o", filepath.Join(dir, "%(id)s.%(ext)s"),
		url,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("yt-dlp download failed: %w\nOutput: %s", err, out)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*"))
	if err != nil {
		return "", fmt.Errorf("failed to scan download dir: %w", err)
	}
	for _, m := range matches {
		switch strings.ToLower(filepath.Ext(m)) {
		case ".mp4", ".webm", ".mkv":
			return m, nil
		}
	}
	return "", fmt.Errorf("downloaded media file not found in %s", dir)
}

// FetchSubtitles downloads a subtitle track for the video into dir and
// returns the path of the best match by language priority. Manual tracks are
// preferred over auto-generated ones; an empty path with nil error means no
// subtitles exist, which the caller treats as "no transcript".
func (c *Client) FetchSubtitles(ctx context.Context, url, dir string, languages []string) (string, error) {
	langArg := strings.Join(languages, ",")

	// Manual subtitles first, auto-generated captions as a second pass. Each
	// pass gets its own deadline.
	for _, flag := range []string{"--write-subs", "--write-auto-subs"} {
		runCtx, cancel := context.WithTimeout(ctx, c.timeouts.Subtitles)
		cmd := exec.CommandContext(runCtx, c.binary,
			"--skip-download",
			"--no-warnings",
			flag,
			"--sub-langs", langArg,
			"--sub-format", "vtt",
			"--convert-subs", "vtt",
			"-o", filepath.Join(dir, "subs.%(ext)s"),
			url,
		)
		// Exit status is ignored here: yt-dlp fails for reasons other than
		// missing subtitles, and the file scan below decides the outcome.
		_ = cmd.Run()
		cancel()

		if path := pickSubtitleFile(dir, languages); path != "" {
			return path, nil
		}
	}
	return "", nil
}

func pickSubtitleFile(dir string, languages []string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	var available []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".vtt") {
			available = append(available, e.Name())
		}
	}
	if len(available) == 0 {
		return ""
	}

	for _, lang := range languages {
		want := "." + lang + ".vtt"
		for _, name := range available {
			if strings.HasSuffix(name, want) {
				return filepath.Join(dir, name)
			}
		}
	}
	// Fall back to whatever track exists.
	return filepath.Join(dir, available[0])
}
