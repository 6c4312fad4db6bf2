package analysis

import (
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/baiqwe/vidguide/internal/types"
)

// ErrBadResponse marks a backend response that failed normalization or the
// validation gate. It is never retried on the same backend; the engine moves
// to the next ranked model.
var ErrBadResponse = errors.New("unusable analysis response")

// Accepted key names, in priority order. The first non-empty alias wins.
var (
	summaryAliases   = []string{"summary", "overview", "description", "abstract"}
	sectionsAliases  = []string{"sections", "steps", "items", "segments", "parts"}
	orderAliases     = []string{"section_order", "step_order", "order", "index", "position"}
	titleAliases     = []string{"title", "heading", "name", "section_title"}
	contentAliases   = []string{"content", "description", "text", "body", "details"}
	timestampAliases = []string{"timestamp_seconds", "timestamp", "time", "start_time", "start"}
	flagAliases      = []string{"needs_screenshot", "screenshot", "requires_screenshot", "needs_image", "has_screenshot"}
)

// Normalize turns a raw model response into a validated AnalysisResult.
// An empty or missing sections list is a backend failure, not a success.
func Normalize(raw string, duration float64) (*types.AnalysisResult, error) {
	payload, ok := extractJSON(raw)
	if !ok {
		return nil, errors.Join(ErrBadResponse, errors.New("no JSON object in response"))
	}

	doc := gjson.Parse(payload)
	if !doc.IsObject() {
		return nil, errors.Join(ErrBadResponse, errors.New("response is not a JSON object"))
	}

	list := firstField(doc, sectionsAliases)
	if !list.IsArray() {
		return nil, errors.Join(ErrBadResponse, errors.New("no sections list in response"))
	}
	entries := list.Array()
	if len(entries) == 0 {
		return nil, errors.Join(ErrBadResponse, errors.New("empty sections list"))
	}

	result := &types.AnalysisResult{
		Summary: strings.TrimSpace(firstField(doc, summaryAliases).String()),
	}

	usedOrders := make(map[int]bool)
	for i, entry := range entries {
		if !entry.IsObject() {
			continue
		}

		order := int(firstField(entry, orderAliases).Int())
		if order <= 0 {
			order = i + 1
		}
		if usedOrders[order] {
			// Duplicate order values would break the per-project total
			// order; keep the first occurrence.
			continue
		}
		usedOrders[order] = true

		title := strings.TrimSpace(firstField(entry, titleAliases).String())
		if title == "" {
			title = "Section " + strconv.Itoa(order)
		}
		content := strings.TrimSpace(firstField(entry, contentAliases).String())
		if content == "" {
			content = title
		}

		ts := ParseTimestamp(firstField(entry, timestampAliases))

		result.Sections = append(result.Sections, types.Section{
			Order:            order,
			Title:            title,
			Content:          content,
			TimestampSeconds: ClampTimestamp(ts, duration),
			NeedsScreenshot:  firstField(entry, flagAliases).Bool(),
		})
	}

	if len(result.Sections) == 0 {
		return nil, errors.Join(ErrBadResponse, errors.New("no usable section entries"))
	}

	sortSections(result.Sections)
	return result, nil
}

// firstField resolves a value through a priority-ordered alias list,
// returning the first alias that exists with a non-null value.
func firstField(obj gjson.Result, aliases []string) gjson.Result {
	for _, name := range aliases {
		if v := obj.Get(name); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

// extractJSON strips code-fence wrappers and, for responses that do not start
// with a JSON object, scans for an embedded {...} object.
func extractJSON(raw string) (string, bool) {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	if strings.HasPrefix(s, "{") {
		return s, true
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1], true
	}
	return "", false
}

// ParseTimestamp converts a timestamp value to seconds. Numeric values pass
// through; strings may be plain seconds or colon-delimited (MM:SS, HH:MM:SS).
// Anything malformed normalizes to 0.
func ParseTimestamp(v gjson.Result) float64 {
	switch v.Type {
	case gjson.Number:
		return v.Float()
	case gjson.String:
		return parseTimestampString(v.String())
	default:
		return 0
	}
}

func parseTimestampString(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	if !strings.Contains(s, ":") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return f
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0
	}
	total := 0.0
	for _, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return 0
		}
		total = total*60 + f
	}
	return total
}

// ClampTimestamp forces a timestamp into [0, duration]: values beyond the end
// of the video pull back to max(5, duration-10); negative values become 5.
func ClampTimestamp(ts, duration float64) float64 {
	if ts < 0 {
		return 5
	}
	if duration > 0 && ts > duration {
		clamped := duration - 10
		if clamped < 5 {
			clamped = 5
		}
		return clamped
	}
	return ts
}

// sortSections orders sections ascending by their resolved order value so
// persistence order matches reading order.
func sortSections(sections []types.Section) {
	sort.Slice(sections, func(i, j int) bool {
		return sections[i].Order < sections[j].Order
	})
}
