package types

import "time"

// Project status constants
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Generation mode constants
const (
	ModeTextOnly       = "text_only"
	ModeTextWithImages = "text_with_images"
)

// Credit pricing: every started minute costs CreditsPerMinute, with a floor
// of MinCredits per project.
const (
	CreditsPerMinute = 10
	MinCredits       = 10
)

// MaxTitleLen bounds the display title derived from the analysis summary.
const MaxTitleLen = 200

// Project is a single unit of work mapping one video reference to one
// generated guide.
type Project struct {
	ID              string
	VideoSourceURL  string
	Status          string
	GenerationMode  string
	DurationSeconds float64
	Title           string
	CreditsCost     int
	ErrorMessage    string
	CreatedAt       time.Time
}

// Section is one ordered unit of the generated guide. ImagePath is empty when
// no screenshot was produced, which is a valid state rather than an error.
type Section struct {
	Order            int
	Title            string
	Content          string
	TimestampSeconds float64
	NeedsScreenshot  bool
	ImagePath        string
}

// AnalysisResult is the canonical output of the content analysis engine:
// an overall summary plus the ordered sections of the guide.
type AnalysisResult struct {
	Summary  string
	Sections []Section
}

// CreditsForDuration derives the credit cost for a video of the given length,
// rounding up to the next started minute.
func CreditsForDuration(durationSeconds float64) int {
	if durationSeconds < 0 {
		durationSeconds = 0
	}
	minutes := (int(durationSeconds) + 59) / 60
	cost := minutes * CreditsPerMinute
	if cost < MinCredits {
		return MinCredits
	}
	return cost
}

// TruncateTitle bounds a summary string for use as a display title.
func TruncateTitle(s string) string {
	runes := []rune(s)
	if len(runes) <= MaxTitleLen {
		return s
	}
	return string(runes[:MaxTitleLen])
}

// ValidMode reports whether mode is a known generation mode.
func ValidMode(mode string) bool {
	return mode == ModeTextOnly || mode == ModeTextWithImages
}
