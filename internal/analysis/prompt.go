package analysis

import (
	"fmt"
	"strings"

	"github.com/baiqwe/vidguide/internal/types"
)

// TemplateSource looks up operator prompt overrides. Lookup failures are
// swallowed by the engine, which falls back to the built-in template.
type TemplateSource interface {
	GetPromptTemplate(mode string) (string, error)
}

const systemInstruction = "You are an expert technical writer. You turn video content into " +
	"clear, structured written guides. You always respond with a single valid JSON object " +
	"and nothing else: no markdown, no code fences, no commentary."

// defaultTextOnlyTemplate asks for a compact article: fewer, denser sections
// and no screenshots.
const defaultTextOnlyTemplate = `Create a structured article-style guide for this video.

Video URL: {video_url}
Duration: {duration} ({duration_seconds} seconds)

Your task:
1. Provide a comprehensive summary of the entire video (2-3 paragraphs).
2. Break the content into 4-10 key sections that form a cohesive article.
3. Each section needs substantial content (2-4 sentences minimum) written as article prose.
4. Set needs_screenshot to false for every section; this guide is text only.

Return a JSON object with this structure:
{
  "summary": "A comprehensive 2-3 paragraph summary of the video.",
  "sections": [
    {
      "section_order": 1,
      "title": "Section title (clear and descriptive)",
      "content": "Detailed paragraph content for this section.",
      "timestamp_seconds": 15.5,
      "needs_screenshot": false
    }
  ]
}

Timestamps should point at the most representative moment of each section.`

// defaultWithImagesTemplate asks for a granular step breakdown with
// aggressive screenshot flagging.
const defaultWithImagesTemplate = `Create a detailed step-by-step guide for this video.

Video URL: {video_url}
Duration: {duration} ({duration_seconds} seconds)

Your task:
1. Provide a comprehensive summary of the entire video (2-3 paragraphs).
2. Break the content into granular steps, targeting 10-20 sections.
3. Each section needs 2-4 sentences of content.
4. Flag needs_screenshot aggressively: any visual demonstration, UI moment,
   on-screen action, or concept that benefits from an illustration gets true.

Return a JSON object with this structure:
{
  "summary": "A comprehensive 2-3 paragraph summary of the video.",
  "sections": [
    {
      "section_order": 1,
      "title": "Step title",
      "content": "What happens in this step and why it matters.",
      "timestamp_seconds": 15.5,
      "needs_screenshot": true
    }
  ]
}

Timestamps should point at the most representative moment of each section.`

// defaultTemplate returns the built-in prompt for a generation mode.
func defaultTemplate(mode string) string {
	if mode == types.ModeTextWithImages {
		return defaultWithImagesTemplate
	}
	return defaultTextOnlyTemplate
}

// renderPrompt substitutes the video reference and duration into a template
// and appends either the transcript or a reference-only note.
func renderPrompt(template string, in Input) string {
	r := strings.NewReplacer(
		"{video_url}", in.VideoURL,
		"{duration}", formatDuration(in.Duration),
		"{duration_seconds}", fmt.Sprintf("%.1f", in.Duration),
	)
	prompt := r.Replace(template)

	if strings.TrimSpace(in.Transcript) != "" {
		return prompt + "\n\nVideo transcript:\n" + in.Transcript
	}
	return prompt + "\n\nNo transcript is available for this video. Base the guide on the " +
		"video reference, its title, and the duration, keeping section timestamps evenly " +
		"distributed and plausible."
}

// formatDuration renders seconds as MM:SS or HH:MM:SS.
func formatDuration(seconds float64) string {
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
