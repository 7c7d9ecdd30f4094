package media

import (
	"fmt"
	"os"
	"strings"

	"github.com/renlei/mvstudio/internal/models"
)

// ---------------------------------------------------------------------------
// Lyric ASS Subtitle Generator
//
// Each lyric segment becomes one time-coded dialogue event spanning its
// [start, end) window with a short fade-in/fade-out. Special segments
// (prelude, interlude, bridge...) use a visually distinct italic style.
// The subtitle track is burned into the video, not muxed as a soft track.
// ---------------------------------------------------------------------------

const (
	subtitleFontName = "Noto Sans"
	subtitleFontSize = 64

	// ASS colors are in &HAABBGGRR format (hex, note: BGR not RGB)
	assColorWhite     = "&H00FFFFFF" // pure white
	assColorBlack     = "&H00000000" // pure black (for outline)
	assColorGold      = "&H0024C8FF" // #FFC824 in BGR — warm gold for special sections
	assColorSemiBlack = "&H80000000" // 50% transparent black (for shadow)

	subtitleOutline = 3
	subtitleMarginV = 60

	// Fade-in/out per dialogue event, milliseconds.
	subtitleFadeMs = 200
)

// GenerateLyricsASS writes an ASS subtitle file with one dialogue event per
// lyric segment.
func GenerateLyricsASS(segments []models.LyricSegment, outputPath string) error {
	if len(segments) == 0 {
		return fmt.Errorf("no lyric segments to generate subtitles from")
	}

	var sb strings.Builder

	// Script header
	sb.WriteString("[Script Info]\n")
	sb.WriteString("ScriptType: v4.00+\n")
	fmt.Fprintf(&sb, "PlayResX: %d\n", outputWidth)
	fmt.Fprintf(&sb, "PlayResY: %d\n", outputHeight)
	sb.WriteString("WrapStyle: 0\n")
	sb.WriteString("ScaledBorderAndShadow: yes\n")
	sb.WriteString("\n")

	// Style definitions
	sb.WriteString("[V4+ Styles]\n")
	sb.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")

	// Lyric: bold white text with black outline, bottom-center aligned
	fmt.Fprintf(&sb,
		"Style: Lyric,%s,%d,%s,%s,%s,%s,-1,0,0,0,100,100,1,0,1,%d,0,2,40,40,%d,1\n",
		subtitleFontName, subtitleFontSize,
		assColorWhite,
		assColorWhite,
		assColorBlack,
		assColorSemiBlack,
		subtitleOutline,
		subtitleMarginV,
	)

	// Special: smaller italic gold for non-sung sections
	fmt.Fprintf(&sb,
		"Style: Special,%s,%d,%s,%s,%s,%s,0,-1,0,0,100,100,1,0,1,%d,0,2,40,40,%d,1\n",
		subtitleFontName, subtitleFontSize*3/4,
		assColorGold,
		assColorGold,
		assColorBlack,
		assColorSemiBlack,
		subtitleOutline,
		subtitleMarginV,
	)

	sb.WriteString("\n")

	// Events (dialogue lines)
	sb.WriteString("[Events]\n")
	sb.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")

	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}

		style := "Lyric"
		if seg.IsSpecial() {
			style = "Special"
		}

		fmt.Fprintf(&sb,
			"Dialogue: 0,%s,%s,%s,,0,0,0,,{\\fad(%d,%d)}%s\n",
			formatASSTime(seg.StartTime),
			formatASSTime(seg.EndTime),
			style,
			subtitleFadeMs, subtitleFadeMs,
			escapeASSText(text),
		)
	}

	if err := os.WriteFile(outputPath, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write ASS subtitle file: %w", err)
	}

	return nil
}

// escapeASSText neutralizes characters that ASS treats as markup.
func escapeASSText(text string) string {
	text = strings.ReplaceAll(text, "{", "(")
	text = strings.ReplaceAll(text, "}", ")")
	text = strings.ReplaceAll(text, "\n", "\\N")
	return text
}

// formatASSTime converts seconds to ASS timestamp format: H:MM:SS.CC (centiseconds)
func formatASSTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}

	hours := int(seconds) / 3600
	minutes := (int(seconds) % 3600) / 60
	secs := int(seconds) % 60
	centiseconds := int((seconds - float64(int(seconds))) * 100)

	return fmt.Sprintf("%d:%02d:%02d.%02d", hours, minutes, secs, centiseconds)
}
