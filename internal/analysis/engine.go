package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sirupsen/logrus"

	"github.com/baiqwe/vidguide/internal/types"
)

// ErrAnalysisExhausted is returned when every ranked model failed to produce
// a valid analysis. It wraps the last underlying error.
var ErrAnalysisExhausted = errors.New("all analysis backends exhausted")

// Input describes one analysis request. An empty Transcript switches the
// engine into its reference-only mode.
type Input struct {
	Transcript string
	VideoURL   string
	Duration   float64
	Mode       string
}

// Engine queries a ranked list of interchangeable models through an
// OpenAI-compatible gateway and normalizes the first valid response.
// Falling through to the next model is an expected path, not an escalation.
type Engine struct {
	client     openai.Client
	models     []string
	maxRetries int
	timeout    time.Duration
	templates  TemplateSource
	log        *logrus.Entry
}

// Options configures an Engine.
type Options struct {
	BaseURL    string
	APIKey     string
	Models     []string
	MaxRetries int
	Timeout    time.Duration
	Templates  TemplateSource
	Log        *logrus.Entry
}

// NewEngine builds the content analysis engine.
func NewEngine(opts Options) *Engine {
	// Retries are handled here with backoff; the client must not add its own.
	clientOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{
		client:     openai.NewClient(clientOpts...),
		models:     opts.Models,
		maxRetries: opts.MaxRetries,
		timeout:    opts.Timeout,
		templates:  opts.Templates,
		log:        opts.Log,
	}
}

// Analyze produces a canonical summary + sections result for a video,
// trying each ranked model in turn.
func (e *Engine) Analyze(ctx context.Context, in Input) (*types.AnalysisResult, error) {
	prompt := renderPrompt(e.templateFor(in.Mode), in)

	var lastErr error
	for _, model := range e.models {
		raw, err := e.complete(ctx, model, prompt)
		if err != nil {
			e.log.WithFields(logrus.Fields{"model": model, "error": err.Error()}).
				Warn("analysis backend failed, trying next model")
			lastErr = err
			continue
		}

		result, err := Normalize(raw, in.Duration)
		if err != nil {
			e.log.WithFields(logrus.Fields{"model": model, "error": err.Error()}).
				Warn("analysis response rejected, trying next model")
			lastErr = fmt.Errorf("model %s: %w", model, err)
			continue
		}

		e.log.WithFields(logrus.Fields{"model": model, "sections": len(result.Sections)}).
			Info("analysis complete")
		return result, nil
	}

	if lastErr == nil {
		return nil, ErrAnalysisExhausted
	}
	return nil, fmt.Errorf("%w: %w", ErrAnalysisExhausted, lastErr)
}

// templateFor returns the operator override for a mode, or the built-in
// default. Lookup failure is transparent to downstream logic.
func (e *Engine) templateFor(mode string) string {
	if e.templates != nil {
		if tpl, err := e.templates.GetPromptTemplate(mode); err == nil && tpl != "" {
			return tpl
		}
	}
	return defaultTemplate(mode)
}

// complete sends one chat request to a model, retrying transient failures
// with exponential backoff up to the attempt cap.
func (e *Engine) complete(ctx context.Context, model, prompt string) (string, error) {
	var content string

	operation := func() error {
		reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		resp, err := e.client.Chat.Completions.New(reqCtx, openai.ChatCompletionNewParams{
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(systemInstruction),
				openai.UserMessage(prompt),
			},
			Model:       model,
			Temperature: openai.Float(0.2),
		})
		if err != nil {
			if isTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(errors.New("model returned no choices"))
		}
		content = resp.Choices[0].Message.Content
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(e.maxRetries)), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return "", err
	}
	return content, nil
}

// isTransient reports whether a backend error is worth retrying in place:
// rate limits, timeouts, server-side errors, and plain network failures.
// Anything else escalates straight to the next ranked model.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == 408, apierr.StatusCode == 429:
			return true
		case apierr.StatusCode >= 500:
			return true
		default:
			return false
		}
	}
	// Network-level failure with no HTTP status.
	return true
}
