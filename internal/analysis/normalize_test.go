package analysis

import (
	"errors"
	"testing"

	"github.com/tidwall/gjson"
)

func TestNormalizeCanonicalResponse(t *testing.T) {
	raw := `{
		"summary": "A video about widgets.",
		"sections": [
			{"section_order": 1, "title": "Intro", "content": "Opening remarks.", "timestamp_seconds": 15.5, "needs_screenshot": false},
			{"section_order": 2, "title": "Demo", "content": "The demo.", "timestamp_seconds": 120, "needs_screenshot": true}
		]
	}`

	result, err := Normalize(raw, 300)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if result.Summary != "A video about widgets." {
		t.Errorf("unexpected summary: %q", result.Summary)
	}
	if len(result.Sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(result.Sections))
	}
	if result.Sections[0].TimestampSeconds != 15.5 {
		t.Errorf("timestamp = %v, want 15.5", result.Sections[0].TimestampSeconds)
	}
	if !result.Sections[1].NeedsScreenshot {
		t.Error("section 2 should need a screenshot")
	}
}

func TestNormalizeAliasedFields(t *testing.T) {
	// "steps" instead of "sections", alternate per-field names.
	raw := `{
		"overview": "Summary text.",
		"steps": [
			{"step_order": 1, "heading": "First", "description": "Do the thing.", "time": "1:05", "screenshot": true},
			{"step_order": 2, "name": "Second", "text": "Do the other thing.", "start": 95}
		]
	}`

	result, err := Normalize(raw, 600)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if result.Summary != "Summary text." {
		t.Errorf("summary not resolved from overview alias: %q", result.Summary)
	}
	if result.Sections[0].Title != "First" || result.Sections[0].Content != "Do the thing." {
		t.Errorf("aliases not resolved: %+v", result.Sections[0])
	}
	if result.Sections[0].TimestampSeconds != 65 {
		t.Errorf("colon timestamp = %v, want 65", result.Sections[0].TimestampSeconds)
	}
	if !result.Sections[0].NeedsScreenshot {
		t.Error("screenshot alias not resolved")
	}
	if result.Sections[1].TimestampSeconds != 95 {
		t.Errorf("numeric timestamp = %v, want 95", result.Sections[1].TimestampSeconds)
	}
}

func TestNormalizeFallbacks(t *testing.T) {
	// No order, no title, no content, no timestamp, no flag.
	raw := `{"summary": "s", "sections": [{"foo": "bar"}, {"title": "Named"}]}`

	result, err := Normalize(raw, 600)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	first := result.Sections[0]
	if first.Order != 1 {
		t.Errorf("positional order fallback = %d, want 1", first.Order)
	}
	if first.Title != "Section 1" {
		t.Errorf("title fallback = %q", first.Title)
	}
	if first.Content != first.Title {
		t.Errorf("content should fall back to title, got %q", first.Content)
	}
	if first.TimestampSeconds != 0 {
		t.Errorf("timestamp fallback = %v, want 0", first.TimestampSeconds)
	}
	if first.NeedsScreenshot {
		t.Error("flag fallback should be false")
	}
	if second := result.Sections[1]; second.Content != "Named" {
		t.Errorf("content fallback = %q, want title text", second.Content)
	}
}

func TestNormalizeCodeFences(t *testing.T) {
	raw := "```json\n{\"summary\": \"s\", \"sections\": [{\"title\": \"A\", \"content\": \"c\"}]}\n```"
	if _, err := Normalize(raw, 100); err != nil {
		t.Fatalf("fenced response rejected: %v", err)
	}
}

func TestNormalizeEmbeddedJSON(t *testing.T) {
	raw := `Here is the guide you asked for: {"summary": "s", "sections": [{"title": "A", "content": "c"}]} hope it helps!`
	if _, err := Normalize(raw, 100); err != nil {
		t.Fatalf("embedded object rejected: %v", err)
	}
}

func TestNormalizeRejectsBadResponses(t *testing.T) {
	cases := map[string]string{
		"empty sections":  `{"summary": "s", "sections": []}`,
		"non-list value":  `{"summary": "s", "sections": "nope"}`,
		"missing list":    `{"summary": "s"}`,
		"not an object":   `["a", "b"]`,
		"not json at all": `the video is about cats`,
	}
	for name, raw := range cases {
		if _, err := Normalize(raw, 100); !errors.Is(err, ErrBadResponse) {
			t.Errorf("%s: expected ErrBadResponse, got %v", name, err)
		}
	}
}

func TestNormalizeDuplicateOrdersDropped(t *testing.T) {
	raw := `{"summary": "s", "sections": [
		{"section_order": 3, "title": "A", "content": "a"},
		{"section_order": 3, "title": "B", "content": "b"},
		{"section_order": 1, "title": "C", "content": "c"}
	]}`

	result, err := Normalize(raw, 600)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(result.Sections) != 2 {
		t.Fatalf("expected duplicate order dropped, got %d sections", len(result.Sections))
	}
	if result.Sections[0].Order != 1 || result.Sections[1].Order != 3 {
		t.Errorf("sections not sorted by order: %+v", result.Sections)
	}
	if result.Sections[1].Title != "A" {
		t.Errorf("first occurrence should win for duplicate order, got %q", result.Sections[1].Title)
	}
}

func TestParseTimestamp(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{`42`, 42},
		{`42.5`, 42.5},
		{`"90"`, 90},
		{`"1:30"`, 90},
		{`"5:05"`, 305},
		{`"1:02:03"`, 3723},
		{`"not a time"`, 0},
		{`"1:2:3:4"`, 0},
		{`""`, 0},
		{`null`, 0},
		{`true`, 0},
	}
	for _, tc := range cases {
		got := ParseTimestamp(gjson.Parse(tc.in))
		if got != tc.want {
			t.Errorf("ParseTimestamp(%s) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestClampTimestamp(t *testing.T) {
	cases := []struct {
		ts, duration, want float64
	}{
		{50, 100, 50},
		{150, 100, 90},  // beyond the end pulls back to duration-10
		{150, 12, 5},    // short video floors at 5
		{-3, 100, 5},    // negative becomes 5
		{0, 100, 0},     // zero is valid
		{100, 100, 100}, // exactly at the end is valid
	}
	for _, tc := range cases {
		got := ClampTimestamp(tc.ts, tc.duration)
		if got != tc.want {
			t.Errorf("ClampTimestamp(%v, %v) = %v, want %v", tc.ts, tc.duration, got, tc.want)
		}
	}
}
