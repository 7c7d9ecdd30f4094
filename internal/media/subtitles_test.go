package media

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/renlei/mvstudio/internal/models"
)

func TestGenerateLyricsASS(t *testing.T) {
	segments := []models.LyricSegment{
		{Index: 1, Text: "city lights below us", StartTime: 0, EndTime: 4.5, Duration: 4.5},
		{Index: 2, Text: "", StartTime: 4.5, EndTime: 8, Duration: 3.5, SpecialType: models.SpecialInterlude},
		{Index: 3, Text: "(Bridge)", StartTime: 8, EndTime: 12, Duration: 4, SpecialType: models.SpecialBridge},
		{Index: 4, Text: "holding {on} tonight", StartTime: 12, EndTime: 75.25, Duration: 63.25},
	}

	path := filepath.Join(t.TempDir(), "lyrics.ass")
	if err := GenerateLyricsASS(segments, path); err != nil {
		t.Fatalf("GenerateLyricsASS: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)

	for _, want := range []string{
		"[Script Info]",
		"[V4+ Styles]",
		"Style: Lyric,",
		"Style: Special,",
		"[Events]",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("missing %q in generated file", want)
		}
	}

	// One dialogue per non-empty segment; the empty interlude is skipped.
	if got := strings.Count(content, "Dialogue:"); got != 3 {
		t.Errorf("%d dialogue events, want 3", got)
	}

	// Timing is H:MM:SS.CC.
	if !strings.Contains(content, "Dialogue: 0,0:00:00.00,0:00:04.50,Lyric,") {
		t.Error("first event has wrong timing or style")
	}
	if !strings.Contains(content, "0:00:12.00,0:01:15.25,Lyric,") {
		t.Error("long event crossed the minute boundary incorrectly")
	}

	// Special sections use the Special style.
	if !strings.Contains(content, ",Special,") {
		t.Error("special segment did not use the Special style")
	}

	// Fade tags on every event, braces neutralized in the text.
	if got := strings.Count(content, "{\\fad(200,200)}"); got != 3 {
		t.Errorf("%d fade tags, want 3", got)
	}
	if strings.Contains(content, "holding {on}") {
		t.Error("ASS markup braces not escaped")
	}
	if !strings.Contains(content, "holding (on) tonight") {
		t.Error("escaped text missing")
	}
}

func TestGenerateLyricsASSEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lyrics.ass")
	if err := GenerateLyricsASS(nil, path); err == nil {
		t.Error("expected an error for zero segments")
	}
}

func TestFormatASSTime(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0:00:00.00"},
		{4.5, "0:00:04.50"},
		{75.25, "0:01:15.25"},
		{3661.5, "1:01:01.50"},
		{-2, "0:00:00.00"},
	}
	for _, tt := range tests {
		if got := formatASSTime(tt.in); got != tt.want {
			t.Errorf("formatASSTime(%.2f) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEscapeASSText(t *testing.T) {
	if got := escapeASSText("a{b}c\nd"); got != "a(b)c\\Nd" {
		t.Errorf("escapeASSText = %q", got)
	}
}
