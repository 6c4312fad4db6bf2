package frames

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"strconv"
	"strings"

	_ "image/png"

	"golang.org/x/image/draw"

	"github.com/baiqwe/vidguide/internal/media"
)

// TileLocation addresses one thumbnail inside a storyboard sheet sequence.
type TileLocation struct {
	TileIndex  int
	SheetIndex int
	Row        int
	Col        int
}

// LocateTile maps a timestamp to its tile position given a sprite-sheet spec.
func LocateTile(timestampMS int, spec *media.StoryboardSpec) TileLocation {
	tileIndex := timestampMS / spec.IntervalMS
	tilesPerSheet := spec.Columns * spec.Rows
	tileInSheet := tileIndex % tilesPerSheet
	return TileLocation{
		TileIndex:  tileIndex,
		SheetIndex: tileIndex / tilesPerSheet,
		Row:        tileInSheet / spec.Columns,
		Col:        tileInSheet % spec.Columns,
	}
}

// SheetURL renders the sheet-index placeholder in a storyboard URL template.
func SheetURL(template string, sheetIndex int) string {
	s := strconv.Itoa(sheetIndex)
	url := strings.ReplaceAll(template, "$M", s)
	return strings.ReplaceAll(url, "$N", s)
}

// fromStoryboard resolves the sprite-sheet spec, fetches the addressed sheet
// and crops out the tile for the requested timestamp.
func (e *Engine) fromStoryboard(ctx context.Context, req Request) ([]byte, error) {
	spec := req.Storyboard
	if spec == nil {
		videoID, err := media.ExtractVideoID(req.VideoURL)
		if err != nil {
			return nil, fmt.Errorf("no storyboard spec: %w", err)
		}
		spec = media.FallbackStoryboard(videoID)
	}
	if spec.IntervalMS <= 0 || spec.Columns <= 0 || spec.Rows <= 0 {
		return nil, fmt.Errorf("invalid storyboard spec")
	}

	loc := LocateTile(int(req.TimestampSeconds*1000), spec)

	sheet, err := e.fetchSheet(ctx, SheetURL(spec.URLTemplate, loc.SheetIndex))
	if err != nil {
		return nil, err
	}

	return cropTile(sheet, loc, spec)
}

func (e *Engine) fetchSheet(ctx context.Context, url string) (image.Image, error) {
	e.mu.Lock()
	if img, ok := e.sheets[url]; ok {
		e.mu.Unlock()
		return img, nil
	}
	e.mu.Unlock()

	img, err := e.downloadSheet(ctx, url)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if len(e.sheets) >= maxCachedSheets {
		e.sheets = make(map[string]image.Image)
	}
	e.sheets[url] = img
	e.mu.Unlock()
	return img, nil
}

func (e *Engine) downloadSheet(ctx context.Context, url string) (image.Image, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build sheet request: %w", err)
	}

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch storyboard sheet: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("storyboard sheet fetch returned status %d", resp.StatusCode)
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode storyboard sheet: %w", err)
	}
	return img, nil
}

// cropTile cuts the addressed tile out of a sheet, clamping the crop rectangle
// to the sheet's actual dimensions.
func cropTile(sheet image.Image, loc TileLocation, spec *media.StoryboardSpec) ([]byte, error) {
	bounds := sheet.Bounds()

	x1 := bounds.Min.X + loc.Col*spec.TileWidth
	y1 := bounds.Min.Y + loc.Row*spec.TileHeight
	x2 := x1 + spec.TileWidth
	y2 := y1 + spec.TileHeight
	if x2 > bounds.Max.X {
		x2 = bounds.Max.X
	}
	if y2 > bounds.Max.Y {
		y2 = bounds.Max.Y
	}
	if x1 >= x2 || y1 >= y2 {
		return nil, fmt.Errorf("tile (%d,%d) outside sheet bounds %v", loc.Row, loc.Col, bounds)
	}

	tile := image.NewRGBA(image.Rect(0, 0, x2-x1, y2-y1))
	draw.Draw(tile, tile.Bounds(), sheet, image.Pt(x1, y1), draw.Src)

	return encodeJPEG(tile)
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
