package transcript

import (
	"strings"
	"testing"
	"unicode/utf8"
)

const sampleVTT = `WEBVTT
Kind: captions
Language: en

00:00:01.000 --> 00:00:03.500
Welcome to <b>the channel</b>

2
00:00:03.500 --> 00:00:06.000 align:start position:0%
Welcome to the channel
today we look at widgets

00:00:06.000 --> 00:00:09.000
today we look at widgets
<c.colorCCCCCC>let's get started</c>
`

func TestCleanStripsCuesAndTags(t *testing.T) {
	out := Clean(sampleVTT, 0)

	if strings.Contains(out, "-->") {
		t.Error("output contains cue timing lines")
	}
	if strings.Contains(out, "<") || strings.Contains(out, ">") {
		t.Error("output contains markup tags")
	}
	if strings.Contains(out, "WEBVTT") {
		t.Error("output contains the WEBVTT header")
	}
}

func TestCleanDeduplicatesLines(t *testing.T) {
	out := Clean(sampleVTT, 0)

	for _, line := range []string{"Welcome to the channel", "today we look at widgets"} {
		if got := strings.Count(out, line); got != 1 {
			t.Errorf("line %q appears %d times, want 1", line, got)
		}
	}
	if !strings.Contains(out, "let's get started") {
		t.Error("tag-wrapped line missing from output")
	}
}

func TestCleanDropsNumericCueIdentifiers(t *testing.T) {
	out := Clean(sampleVTT, 0)
	for _, line := range strings.Split(out, "\n") {
		if line == "2" {
			t.Error("bare cue counter kept in output")
		}
	}
}

func TestCleanCapsLength(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 2000; i++ {
		b.WriteString("line number ")
		b.WriteString(strings.Repeat("x", i%50))
		b.WriteString("\n")
	}

	out := Clean(b.String(), 500)
	if len(out) > 500 {
		t.Errorf("output length %d exceeds cap", len(out))
	}
	if !strings.HasSuffix(out, TruncationMarker) {
		t.Error("truncated output missing marker")
	}

	short := Clean("hello\nworld\n", 500)
	if strings.Contains(short, TruncationMarker) {
		t.Error("short transcript should not carry the truncation marker")
	}
}

func TestCleanCapRespectsRuneBoundaries(t *testing.T) {
	// Unique multi-byte lines so dedupe keeps them all and the cap lands
	// mid-rune unless the cut walks back to a boundary.
	var b strings.Builder
	for i := 0; i < 100; i++ {
		b.WriteString(strings.Repeat("め", 5))
		b.WriteString(strings.Repeat("x", i))
		b.WriteString("\n")
	}

	for maxChars := 60; maxChars < 70; maxChars++ {
		out := Clean(b.String(), maxChars)
		if !utf8.ValidString(out) {
			t.Fatalf("cap %d produced invalid UTF-8: %q", maxChars, out)
		}
		if len(out) > maxChars {
			t.Errorf("cap %d: output length %d", maxChars, len(out))
		}
		if !strings.HasSuffix(out, TruncationMarker) {
			t.Errorf("cap %d: missing marker", maxChars)
		}
	}
}

func TestCleanEmptyInput(t *testing.T) {
	if out := Clean("WEBVTT\n\n", 1000); out != "" {
		t.Errorf("expected empty transcript, got %q", out)
	}
}
