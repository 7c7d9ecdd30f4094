package lyrics

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/renlei/mvstudio/internal/models"
)

// LRC parsing. Each timed line becomes a LyricSegment; a segment ends where
// the next one starts, and the final segment ends at the audio duration when
// one is supplied.

// defaultTailSeconds closes the last segment when the audio duration is
// unknown (zero).
const defaultTailSeconds = 5.0

// timeTagRe matches [mm:ss], [mm:ss.xx] and [mm:ss.xxx] timestamps. A line
// may carry several tags (repeated lyric), each producing its own segment.
var timeTagRe = regexp.MustCompile(`\[(\d{1,3}):(\d{2})(?:\.(\d{1,3}))?\]`)

// metaTagRe matches non-time ID tags like [ar:...], [ti:...], [offset:...].
var metaTagRe = regexp.MustCompile(`^\[[a-zA-Z]+:.*\]$`)

// specialMarkers maps bracketed structural markers to special segment types.
var specialMarkers = map[string]models.SpecialType{
	"prelude":   models.SpecialPrelude,
	"intro":     models.SpecialPrelude,
	"interlude": models.SpecialInterlude,
	"outro":     models.SpecialOutro,
	"ending":    models.SpecialOutro,
	"bridge":    models.SpecialBridge,
	"chorus":    models.SpecialChorus,
}

// ParseFile reads an LRC file and returns lyric segments ordered by start
// time. audioDuration (seconds) closes the last segment; pass 0 if unknown.
func ParseFile(path string, audioDuration float64) ([]models.LyricSegment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open lyrics file: %w", err)
	}
	defer f.Close()

	var raw []models.LyricSegment
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		segs := parseLine(scanner.Text())
		raw = append(raw, segs...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read lyrics file: %w", err)
	}

	if len(raw) == 0 {
		return nil, fmt.Errorf("no timed lyric lines found in %s", path)
	}

	return Finalize(raw, audioDuration), nil
}

// parseLine expands one LRC line into zero or more start-timed segments.
// End times are resolved later in Finalize.
func parseLine(line string) []models.LyricSegment {
	line = strings.TrimSpace(line)
	if line == "" || metaTagRe.MatchString(line) {
		return nil
	}

	tags := timeTagRe.FindAllStringSubmatch(line, -1)
	if len(tags) == 0 {
		return nil
	}

	text := strings.TrimSpace(timeTagRe.ReplaceAllString(line, ""))
	special := DetectSpecial(text)

	var segs []models.LyricSegment
	for _, tag := range tags {
		start, err := tagSeconds(tag)
		if err != nil {
			continue
		}
		segs = append(segs, models.LyricSegment{
			Text:        text,
			StartTime:   start,
			SpecialType: special,
		})
	}
	return segs
}

func tagSeconds(tag []string) (float64, error) {
	minutes, err := strconv.Atoi(tag[1])
	if err != nil {
		return 0, err
	}
	seconds, err := strconv.Atoi(tag[2])
	if err != nil {
		return 0, err
	}
	frac := 0.0
	if tag[3] != "" {
		f, err := strconv.ParseFloat("0."+tag[3], 64)
		if err != nil {
			return 0, err
		}
		frac = f
	}
	return float64(minutes*60+seconds) + frac, nil
}

// DetectSpecial recognizes structural markers like "(Interlude)" or
// "[chorus]" in the lyric text. An empty text line is treated as an
// instrumental interlude.
func DetectSpecial(text string) models.SpecialType {
	if text == "" {
		return models.SpecialInterlude
	}
	trimmed := strings.ToLower(strings.Trim(text, "()[]{} "))
	if st, ok := specialMarkers[trimmed]; ok {
		return st
	}
	return ""
}

// Finalize sorts segments by start time, fills end times and durations, and
// assigns contiguous 1-based indices.
func Finalize(segs []models.LyricSegment, audioDuration float64) []models.LyricSegment {
	out := make([]models.LyricSegment, len(segs))
	copy(out, segs)

	// Insertion sort keeps equal start times in input order.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].StartTime < out[j-1].StartTime; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}

	for i := range out {
		if i+1 < len(out) {
			out[i].EndTime = out[i+1].StartTime
		} else if audioDuration > out[i].StartTime {
			out[i].EndTime = audioDuration
		} else {
			out[i].EndTime = out[i].StartTime + defaultTailSeconds
		}
		if out[i].EndTime < out[i].StartTime {
			out[i].EndTime = out[i].StartTime
		}
		out[i].Duration = out[i].EndTime - out[i].StartTime
		out[i].Index = i + 1
	}
	return out
}
