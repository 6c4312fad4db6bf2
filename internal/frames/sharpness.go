package frames

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
)

// sampleOffsets are the candidate positions around the target timestamp, in
// seconds. The sharpest candidate wins.
var sampleOffsets = []float64{-0.5, 0, 0.5}

// fromSharpnessSampling decodes candidate frames near the target timestamp,
// scores each by a focus metric and keeps the best one.
func (e *Engine) fromSharpnessSampling(ctx context.Context, req Request) ([]byte, error) {
	var candidates []image.Image

	for i, offset := range sampleOffsets {
		ts := req.TimestampSeconds + offset
		if ts < 0 {
			ts = 0
		}

		out := filepath.Join(req.ScratchDir, fmt.Sprintf("candidate_%d.jpg", i))
		img, err := e.decodeFrameAt(ctx, req.MediaPath, ts, out)
		if err != nil {
			e.log.WithError(err).Debug("candidate frame decode failed")
			continue
		}
		candidates = append(candidates, img)
	}

	best := pickSharpest(candidates)
	if best == nil {
		return nil, fmt.Errorf("no candidate frame decoded")
	}

	return encodeJPEG(Downscale(best, maxDimension))
}

// pickSharpest returns the candidate with the highest focus score, nil when
// there are no candidates.
func pickSharpest(candidates []image.Image) image.Image {
	var best image.Image
	var bestScore float64
	for _, img := range candidates {
		score := LaplacianVariance(Grayscale(img))
		if best == nil || score > bestScore {
			best = img
			bestScore = score
		}
	}
	return best
}

// fromDirectDecode grabs exactly one frame at the target timestamp with no
// quality optimization. Last resort before giving up.
func (e *Engine) fromDirectDecode(ctx context.Context, req Request) ([]byte, error) {
	out := filepath.Join(req.ScratchDir, "direct.jpg")
	img, err := e.decodeFrameAt(ctx, req.MediaPath, req.TimestampSeconds, out)
	if err != nil {
		return nil, err
	}
	return encodeJPEG(img)
}

// decodeFrameAt extracts a single frame via ffmpeg and decodes it.
func (e *Engine) decodeFrameAt(ctx context.Context, mediaPath string, ts float64, outPath string) (image.Image, error) {
	if err := e.runFFmpegFrame(ctx, mediaPath, ts, outPath); err != nil {
		return nil, err
	}
	defer os.Remove(outPath)

	f, err := os.Open(outPath)
	if err != nil {
		return nil, fmt.Errorf("frame file missing: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return img, nil
}

// Grayscale converts an image to 8-bit grayscale.
func Grayscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, img, bounds.Min, draw.Src)
	return gray
}

// LaplacianVariance scores image sharpness as the variance of a 4-neighbor
// Laplacian edge response. Blurry frames produce flat responses and low
// variance; crisp frames score high.
func LaplacianVariance(gray *image.Gray) float64 {
	bounds := gray.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	responses := make([]float64, 0, (w-2)*(h-2))
	var sum float64
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			center := float64(gray.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
			up := float64(gray.GrayAt(bounds.Min.X+x, bounds.Min.Y+y-1).Y)
			down := float64(gray.GrayAt(bounds.Min.X+x, bounds.Min.Y+y+1).Y)
			left := float64(gray.GrayAt(bounds.Min.X+x-1, bounds.Min.Y+y).Y)
			right := float64(gray.GrayAt(bounds.Min.X+x+1, bounds.Min.Y+y).Y)

			r := up + down + left + right - 4*center
			responses = append(responses, r)
			sum += r
		}
	}

	mean := sum / float64(len(responses))
	var variance float64
	for _, r := range responses {
		d := r - mean
		variance += d * d
	}
	return variance / float64(len(responses))
}

// Downscale shrinks an image so neither dimension exceeds maxDim, preserving
// aspect ratio. Images already within bounds pass through untouched.
func Downscale(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}

	scale := float64(maxDim) / float64(w)
	if h > w {
		scale = float64(maxDim) / float64(h)
	}
	dw := int(float64(w) * scale)
	dh := int(float64(h) * scale)

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
	return dst
}
