package lyrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/renlei/mvstudio/internal/models"
)

func writeLRC(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "song.lrc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseFile(t *testing.T) {
	lrc := `[ar:Somebody]
[ti:Night Drive]
[offset:0]

[00:12.00]City lights below us
[00:17.20]Running every red
[00:21.00][Interlude]
[00:30.00]Never looking back
`
	segs, err := ParseFile(writeLRC(t, lrc), 40)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	if len(segs) != 4 {
		t.Fatalf("parsed %d segments, want 4", len(segs))
	}

	first := segs[0]
	if first.Index != 1 || first.Text != "City lights below us" {
		t.Errorf("first segment = %+v", first)
	}
	if first.StartTime != 12 || first.EndTime != 17.2 {
		t.Errorf("first window = [%.2f, %.2f], want [12.00, 17.20]", first.StartTime, first.EndTime)
	}

	// The interlude marker becomes a special segment with the marker text.
	inter := segs[2]
	if inter.SpecialType != models.SpecialInterlude {
		t.Errorf("segment 3 specialType = %q, want interlude", inter.SpecialType)
	}

	// The last segment closes at the audio duration.
	last := segs[3]
	if last.EndTime != 40 || last.Duration != 10 {
		t.Errorf("last window = [%.2f, %.2f] (%.2fs), want it closed at the audio end", last.StartTime, last.EndTime, last.Duration)
	}

	// Durations and indices are consistent throughout.
	for i, s := range segs {
		if s.Index != i+1 {
			t.Errorf("segment %d has index %d", i, s.Index)
		}
		if s.Duration != s.EndTime-s.StartTime {
			t.Errorf("segment %d duration %.2f != end-start %.2f", i, s.Duration, s.EndTime-s.StartTime)
		}
	}
}

func TestParseFileRepeatedTags(t *testing.T) {
	lrc := "[00:10.00][00:30.00]Same line twice\n[00:20.00]Middle\n"
	segs, err := ParseFile(writeLRC(t, lrc), 40)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(segs) != 3 {
		t.Fatalf("parsed %d segments, want 3", len(segs))
	}
	// Sorted by start time despite the shared source line.
	if segs[0].Text != "Same line twice" || segs[1].Text != "Middle" || segs[2].Text != "Same line twice" {
		t.Errorf("order wrong: %q %q %q", segs[0].Text, segs[1].Text, segs[2].Text)
	}
	if segs[1].StartTime != 20 || segs[2].StartTime != 30 {
		t.Errorf("start times: %.1f %.1f", segs[1].StartTime, segs[2].StartTime)
	}
}

func TestParseFileNoTimedLines(t *testing.T) {
	if _, err := ParseFile(writeLRC(t, "[ar:x]\njust text\n"), 0); err == nil {
		t.Error("expected an error for a file without timed lines")
	}
}

func TestDetectSpecial(t *testing.T) {
	tests := []struct {
		in   string
		want models.SpecialType
	}{
		{"", models.SpecialInterlude},
		{"(Interlude)", models.SpecialInterlude},
		{"[INTRO]", models.SpecialPrelude},
		{"prelude", models.SpecialPrelude},
		{"Outro", models.SpecialOutro},
		{"ending", models.SpecialOutro},
		{"(bridge)", models.SpecialBridge},
		{"Chorus", models.SpecialChorus},
		{"city lights", ""},
	}
	for _, tt := range tests {
		if got := DetectSpecial(tt.in); got != tt.want {
			t.Errorf("DetectSpecial(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFinalizeUnknownAudioDuration(t *testing.T) {
	segs := Finalize([]models.LyricSegment{
		{Text: "only line", StartTime: 10},
	}, 0)

	if len(segs) != 1 {
		t.Fatal("segment lost")
	}
	if segs[0].EndTime != 15 {
		t.Errorf("tail end = %.1f, want start+5", segs[0].EndTime)
	}
}

func TestFinalizeSortsByStart(t *testing.T) {
	segs := Finalize([]models.LyricSegment{
		{Text: "b", StartTime: 20},
		{Text: "a", StartTime: 10},
	}, 30)

	if segs[0].Text != "a" || segs[1].Text != "b" {
		t.Errorf("not sorted: %q %q", segs[0].Text, segs[1].Text)
	}
	if segs[0].EndTime != 20 || segs[1].EndTime != 30 {
		t.Errorf("ends = %.1f %.1f, want 20 30", segs[0].EndTime, segs[1].EndTime)
	}
}
