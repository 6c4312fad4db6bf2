package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/tidwall/gjson"
)

// fakeGateway is an OpenAI-compatible chat-completions endpoint whose
// behavior is keyed by the requested model.
type fakeGateway struct {
	mu      sync.Mutex
	calls   map[string]int
	respond func(model string, attempt int) (status int, content string)
}

func (g *fakeGateway) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		model := gjson.GetBytes(body, "model").String()

		g.mu.Lock()
		g.calls[model]++
		attempt := g.calls[model]
		g.mu.Unlock()

		status, content := g.respond(model, attempt)
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"message": "backend unhappy", "type": "server_error"},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"choices": []map[string]any{
				{
					"index":         0,
					"message":       map[string]any{"role": "assistant", "content": content},
					"finish_reason": "stop",
				},
			},
		})
	}
}

func (g *fakeGateway) callCount(model string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[model]
}

func newTestEngine(t *testing.T, gw *fakeGateway, models []string) *Engine {
	t.Helper()
	gw.calls = make(map[string]int)
	srv := httptest.NewServer(gw.handler())
	t.Cleanup(srv.Close)

	return NewEngine(Options{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		Models:     models,
		MaxRetries: 2,
		Timeout:    10 * time.Second,
	})
}

const goodResponse = `{"summary": "The summary.", "sections": [
	{"section_order": 1, "title": "One", "content": "First.", "timestamp_seconds": 10, "needs_screenshot": true},
	{"section_order": 2, "title": "Two", "content": "Second.", "timestamp_seconds": 20, "needs_screenshot": false}
]}`

func TestAnalyzeFirstModelSucceeds(t *testing.T) {
	gw := &fakeGateway{respond: func(model string, _ int) (int, string) {
		return http.StatusOK, goodResponse
	}}
	e := newTestEngine(t, gw, []string{"model-a", "model-b"})

	result, err := e.Analyze(context.Background(), Input{
		Transcript: "the transcript", VideoURL: "https://example.com/v", Duration: 300,
		Mode: "text_with_images",
	})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(result.Sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(result.Sections))
	}
	if gw.callCount("model-b") != 0 {
		t.Error("second model should not have been called")
	}
}

func TestAnalyzeRetriesTransientThenSucceeds(t *testing.T) {
	gw := &fakeGateway{respond: func(model string, attempt int) (int, string) {
		if attempt == 1 {
			return http.StatusTooManyRequests, ""
		}
		return http.StatusOK, goodResponse
	}}
	e := newTestEngine(t, gw, []string{"model-a"})

	if _, err := e.Analyze(context.Background(), Input{VideoURL: "u", Duration: 300}); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if got := gw.callCount("model-a"); got != 2 {
		t.Errorf("expected 2 attempts on model-a, got %d", got)
	}
}

func TestAnalyzeFallsBackOnBadSchema(t *testing.T) {
	// First model answers with prose, second with a "steps" keyed object.
	gw := &fakeGateway{respond: func(model string, _ int) (int, string) {
		if model == "model-a" {
			return http.StatusOK, "I cannot produce JSON today."
		}
		return http.StatusOK, `{"summary": "s", "steps": [{"step_order": 1, "title": "T", "description": "D", "timestamp_seconds": 5}]}`
	}}
	e := newTestEngine(t, gw, []string{"model-a", "model-b"})

	result, err := e.Analyze(context.Background(), Input{VideoURL: "u", Duration: 300})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if gw.callCount("model-a") != 1 {
		t.Errorf("schema failure should not retry in place, got %d calls", gw.callCount("model-a"))
	}
	if result.Sections[0].Content != "D" {
		t.Errorf("steps-keyed response not normalized: %+v", result.Sections[0])
	}
}

func TestAnalyzeRateLimitedModelsThenSteps(t *testing.T) {
	// First two ranked models rate-limit on every attempt; the third answers
	// with a steps key. Matches the transcript-absent fallback scenario.
	gw := &fakeGateway{respond: func(model string, _ int) (int, string) {
		if model == "model-a" || model == "model-b" {
			return http.StatusTooManyRequests, ""
		}
		return http.StatusOK, `{"summary": "s", "steps": [{"step_order": 1, "title": "T", "description": "D"}]}`
	}}
	e := newTestEngine(t, gw, []string{"model-a", "model-b", "model-c"})

	result, err := e.Analyze(context.Background(), Input{VideoURL: "u", Duration: 300})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(result.Sections) != 1 {
		t.Fatalf("expected 1 section, got %d", len(result.Sections))
	}
	// 1 initial try + 2 retries per rate-limited model.
	if gw.callCount("model-a") != 3 || gw.callCount("model-b") != 3 {
		t.Errorf("expected 3 attempts per rate-limited model, got a=%d b=%d",
			gw.callCount("model-a"), gw.callCount("model-b"))
	}
}

func TestAnalyzeExhaustedOnEmptySections(t *testing.T) {
	gw := &fakeGateway{respond: func(model string, _ int) (int, string) {
		return http.StatusOK, `{"summary": "s", "sections": []}`
	}}
	e := newTestEngine(t, gw, []string{"model-a", "model-b"})

	_, err := e.Analyze(context.Background(), Input{VideoURL: "u", Duration: 300})
	if !errors.Is(err, ErrAnalysisExhausted) {
		t.Fatalf("expected ErrAnalysisExhausted, got %v", err)
	}
	if !errors.Is(err, ErrBadResponse) {
		t.Errorf("exhaustion should carry the last underlying error, got %v", err)
	}
}

func TestTemplateOverride(t *testing.T) {
	gw := &fakeGateway{respond: func(model string, _ int) (int, string) {
		return http.StatusOK, goodResponse
	}}
	e := newTestEngine(t, gw, []string{"model-a"})
	e.templates = staticTemplates{"text_only": "CUSTOM {video_url}"}

	if got := e.templateFor("text_only"); got != "CUSTOM {video_url}" {
		t.Errorf("override not used: %q", got)
	}
	if got := e.templateFor("text_with_images"); got != defaultWithImagesTemplate {
		t.Errorf("missing override should fall back to built-in")
	}
}

type staticTemplates map[string]string

func (s staticTemplates) GetPromptTemplate(mode string) (string, error) {
	if tpl, ok := s[mode]; ok {
		return tpl, nil
	}
	return "", errors.New("not found")
}
