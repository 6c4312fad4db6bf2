package frames

import (
	"context"
	"errors"
	"image"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/baiqwe/vidguide/internal/media"
)

// ErrNoFrame is the definitive "unavailable" result: every strategy failed.
// Callers treat it as "no image for this section", never as a fatal error.
var ErrNoFrame = errors.New("no frame available")

// maxDimension is the largest allowed edge for an extracted frame; bigger
// frames are downscaled before encoding.
const maxDimension = 1280

// jpegQuality is used for every encoded frame.
const jpegQuality = 85

// maxCachedSheets bounds the decoded sheet cache; decoded sheets are a few
// megabytes each.
const maxCachedSheets = 32

// Request identifies the frame to extract. MediaPath may be empty, which
// limits the engine to the storyboard strategy. Storyboard may be nil, in
// which case the documented fallback spec for the video is used.
type Request struct {
	VideoURL         string
	MediaPath        string
	ScratchDir       string
	Storyboard       *media.StoryboardSpec
	TimestampSeconds float64
}

// Engine produces a single representative still image for a timestamp using
// a priority-ordered chain of strategies: storyboard tile (cheapest),
// sharpness-optimized local sampling, then a direct single-frame decode.
type Engine struct {
	httpClient   *http.Client
	ffmpegBin    string
	frameTimeout time.Duration
	log          *logrus.Entry

	// Sheets are shared by every tile on them; consecutive sections usually
	// address the same sheet, so decoded sheets are cached by URL.
	mu     sync.Mutex
	sheets map[string]image.Image
}

// NewEngine builds a visual extraction engine. An empty ffmpeg path defaults
// to the binary on PATH; frameTimeout bounds each ffmpeg invocation and
// defaults to 60s.
func NewEngine(ffmpegBin string, frameTimeout time.Duration, log *logrus.Entry) *Engine {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if frameTimeout <= 0 {
		frameTimeout = 60 * time.Second
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		ffmpegBin:    ffmpegBin,
		frameTimeout: frameTimeout,
		log:          log,
		sheets:       make(map[string]image.Image),
	}
}

// ExtractFrame returns JPEG bytes for the first strategy that succeeds, or
// ErrNoFrame when the whole chain is exhausted. Each attempt is independent
// and side-effect-free on failure.
func (e *Engine) ExtractFrame(ctx context.Context, req Request) ([]byte, error) {
	if data, err := e.fromStoryboard(ctx, req); err == nil {
		return data, nil
	} else {
		e.log.WithError(err).Debug("storyboard extraction failed")
	}

	if req.MediaPath != "" {
		if data, err := e.fromSharpnessSampling(ctx, req); err == nil {
			return data, nil
		} else {
			e.log.WithError(err).Debug("sharpness sampling failed")
		}

		if data, err := e.fromDirectDecode(ctx, req); err == nil {
			return data, nil
		} else {
			e.log.WithError(err).Debug("direct frame decode failed")
		}
	}

	return nil, ErrNoFrame
}
