package classifier

import (
	"testing"

	"github.com/renlei/mvstudio/internal/models"
)

func lyricSeg(index int, start, dur float64) models.LyricSegment {
	return models.LyricSegment{
		Index:     index,
		Text:      "line",
		StartTime: start,
		EndTime:   start + dur,
		Duration:  dur,
	}
}

func TestAnalyzePriorityChorusWindow(t *testing.T) {
	const total = 10
	for i := 1; i <= total; i++ {
		seg := lyricSeg(i, float64(i)*3, 3)
		got := AnalyzePriority(seg, i, total)

		want := models.PriorityMedium
		if i >= 5 && i <= 8 { // positions 0.5 .. 0.8
			want = models.PriorityHigh
		}
		if got != want {
			t.Errorf("segment %d/%d: priority = %s, want %s", i, total, got, want)
		}
	}
}

func TestAnalyzePrioritySpecialIsLow(t *testing.T) {
	seg := lyricSeg(6, 60, 8)
	seg.SpecialType = models.SpecialInterlude
	if got := AnalyzePriority(seg, 6, 10); got != models.PriorityLow {
		t.Errorf("special segment in chorus window: priority = %s, want LOW", got)
	}
}

func TestAnalyzePriorityLongSegment(t *testing.T) {
	seg := lyricSeg(3, 10, 6)
	if got := AnalyzePriority(seg, 3, 10); got != models.PriorityHigh {
		t.Errorf("6s mid-verse segment: priority = %s, want HIGH", got)
	}

	short := lyricSeg(3, 10, 5.9)
	if got := AnalyzePriority(short, 3, 10); got != models.PriorityMedium {
		t.Errorf("5.9s mid-verse segment: priority = %s, want MEDIUM", got)
	}
}

func TestDetermineRenderType(t *testing.T) {
	opts := Options{} // defaults: video >= 4s, animation >= 2s

	tests := []struct {
		name     string
		duration float64
		special  models.SpecialType
		priority models.Priority
		opts     Options
		want     models.RenderType
	}{
		{"high at threshold", 4.0, "", models.PriorityHigh, opts, models.RenderVideo},
		{"high below threshold", 3.9, "", models.PriorityHigh, opts, models.RenderAnimation},
		{"medium at 1.5x threshold", 6.0, "", models.PriorityMedium, opts, models.RenderVideo},
		{"medium below 1.5x threshold", 5.9, "", models.PriorityMedium, opts, models.RenderAnimation},
		{"too short for animation", 1.9, "", models.PriorityMedium, opts, models.RenderStatic},
		{"special long", 8.0, models.SpecialInterlude, models.PriorityLow, opts, models.RenderAnimation},
		{"special short", 1.5, models.SpecialOutro, models.PriorityLow, opts, models.RenderStatic},
		{"all video overrides special", 8.0, models.SpecialInterlude, models.PriorityLow, Options{AllVideo: true}, models.RenderVideo},
		{"force type wins", 9.0, "", models.PriorityHigh, Options{ForceType: models.RenderStatic}, models.RenderStatic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seg := lyricSeg(1, 0, tt.duration)
			seg.SpecialType = tt.special
			if got := DetermineRenderType(seg, tt.priority, tt.opts); got != tt.want {
				t.Errorf("DetermineRenderType() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCalculateVideoDuration(t *testing.T) {
	tests := []struct {
		lyric, max, want float64
	}{
		{2.0, 10, 3},  // below floor
		{3.0, 10, 3},  // at floor
		{5.5, 10, 5.5},
		{10.0, 10, 10},
		{22.0, 10, 10}, // above cap
		{15.0, 0, 10},  // zero max falls back to default
	}
	for _, tt := range tests {
		if got := CalculateVideoDuration(tt.lyric, tt.max); got != tt.want {
			t.Errorf("CalculateVideoDuration(%.1f, %.1f) = %.1f, want %.1f", tt.lyric, tt.max, got, tt.want)
		}
	}
}

func TestOptimizeForBudgetKeepsLongest(t *testing.T) {
	durations := []float64{3, 7, 5}
	classified := make([]models.ClassifiedSegment, len(durations))
	start := 0.0
	for i, d := range durations {
		classified[i] = models.ClassifiedSegment{
			LyricSegment:  lyricSeg(i+1, start, d),
			Priority:      models.PriorityHigh,
			RenderType:    models.RenderVideo,
			VideoDuration: d,
		}
		start += d
	}

	out, downgraded := OptimizeForBudget(classified, Budget{MaxVideos: 1})

	if downgraded != 2 {
		t.Fatalf("downgraded = %d, want 2", downgraded)
	}
	for _, cs := range out {
		if cs.Duration == 7 {
			if cs.RenderType != models.RenderVideo {
				t.Errorf("longest segment downgraded, want it kept as VIDEO")
			}
			continue
		}
		if cs.RenderType != models.RenderAnimation {
			t.Errorf("segment %d (%.1fs): renderType = %s, want ANIMATION", cs.Index, cs.Duration, cs.RenderType)
		}
		if cs.VideoDuration != 0 {
			t.Errorf("segment %d: videoDuration = %.1f after downgrade, want 0", cs.Index, cs.VideoDuration)
		}
	}

	// Index order of the slice is untouched by the ranking pass.
	for i, cs := range out {
		if cs.Index != i+1 {
			t.Errorf("slice reordered: position %d has index %d", i, cs.Index)
		}
	}
}

func TestOptimizeForBudgetStableTies(t *testing.T) {
	classified := make([]models.ClassifiedSegment, 3)
	for i := range classified {
		classified[i] = models.ClassifiedSegment{
			LyricSegment:  lyricSeg(i+1, float64(i)*5, 5),
			Priority:      models.PriorityHigh,
			RenderType:    models.RenderVideo,
			VideoDuration: 5,
		}
	}

	out, downgraded := OptimizeForBudget(classified, Budget{MaxVideos: 1})
	if downgraded != 2 {
		t.Fatalf("downgraded = %d, want 2", downgraded)
	}
	if out[0].RenderType != models.RenderVideo {
		t.Errorf("equal ranking keys: earliest segment should keep VIDEO, got %s", out[0].RenderType)
	}
	for _, cs := range out[1:] {
		if cs.RenderType == models.RenderVideo {
			t.Errorf("segment %d kept VIDEO, want only the first on ties", cs.Index)
		}
	}
}

func TestOptimizeForBudgetUnlimited(t *testing.T) {
	classified := []models.ClassifiedSegment{
		{LyricSegment: lyricSeg(1, 0, 5), Priority: models.PriorityHigh, RenderType: models.RenderVideo},
	}
	out, downgraded := OptimizeForBudget(classified, Budget{})
	if downgraded != 0 || out[0].RenderType != models.RenderVideo {
		t.Errorf("zero budget must mean unlimited, got downgraded=%d type=%s", downgraded, out[0].RenderType)
	}
}

func TestMergeAdjacentSegments(t *testing.T) {
	segs := []models.ClassifiedSegment{
		{LyricSegment: lyricSeg(1, 0, 1.5), RenderType: models.RenderAnimation, Prompt: "sunrise"},
		{LyricSegment: lyricSeg(2, 1.5, 1.0), RenderType: models.RenderAnimation, Prompt: "rooftop"},
		{LyricSegment: lyricSeg(3, 2.5, 5.0), RenderType: models.RenderVideo},
		{LyricSegment: lyricSeg(4, 7.5, 1.0), RenderType: models.RenderAnimation},
		{LyricSegment: lyricSeg(5, 8.5, 1.0), RenderType: models.RenderAnimation},
	}
	segs[0].Text = "first"
	segs[1].Text = "second"
	segs[3].SpecialType = models.SpecialInterlude

	out := MergeAdjacentSegments(segs, 2.0)

	if len(out) != 4 {
		t.Fatalf("len = %d, want 4 (only the first pair merges)", len(out))
	}

	merged := out[0]
	if merged.Text != "first second" {
		t.Errorf("merged text = %q", merged.Text)
	}
	if merged.Prompt != "sunrise rooftop" {
		t.Errorf("merged prompt = %q", merged.Prompt)
	}
	if merged.StartTime != 0 || merged.EndTime != 2.5 {
		t.Errorf("merged window = [%.1f, %.1f], want [0.0, 2.5]", merged.StartTime, merged.EndTime)
	}
	if merged.Duration != 2.5 {
		t.Errorf("merged duration = %.1f, want 2.5", merged.Duration)
	}

	// The special segment blocks merging with its neighbor.
	if out[2].SpecialType != models.SpecialInterlude || out[3].Duration != 1.0 {
		t.Errorf("special segment merged across: %+v %+v", out[2], out[3])
	}

	// Indices are renumbered contiguously.
	for i, cs := range out {
		if cs.Index != i+1 {
			t.Errorf("position %d has index %d, want %d", i, cs.Index, i+1)
		}
	}
}

func TestMergeNeverTouchesVideo(t *testing.T) {
	segs := []models.ClassifiedSegment{
		{LyricSegment: lyricSeg(1, 0, 1.0), RenderType: models.RenderVideo},
		{LyricSegment: lyricSeg(2, 1, 1.0), RenderType: models.RenderVideo},
	}
	out := MergeAdjacentSegments(segs, 2.0)
	if len(out) != 2 {
		t.Fatalf("video segments merged, want them kept apart")
	}
}

func TestClassifyRespectsBudget(t *testing.T) {
	var segs []models.LyricSegment
	var scenes []models.StoryboardScene
	start := 0.0
	for i := 1; i <= 12; i++ {
		segs = append(segs, lyricSeg(i, start, 8))
		scenes = append(scenes, models.StoryboardScene{Index: i, Prompt: "scene"})
		start += 8
	}

	classified, stats := Classify(segs, scenes, Options{Budget: Budget{MaxVideos: 3}})

	videos := 0
	for _, cs := range classified {
		if cs.RenderType == models.RenderVideo {
			videos++
		}
	}
	if videos > 3 {
		t.Errorf("classify produced %d VIDEO segments, budget is 3", videos)
	}
	if stats.Videos != videos {
		t.Errorf("stats.Videos = %d, counted %d", stats.Videos, videos)
	}
	if stats.Total != len(classified) {
		t.Errorf("stats.Total = %d, want %d", stats.Total, len(classified))
	}

	for _, cs := range classified {
		if cs.Prompt == "" {
			t.Errorf("segment %d lost its storyboard prompt", cs.Index)
		}
		if cs.RenderType == models.RenderVideo && cs.VideoDuration == 0 {
			t.Errorf("VIDEO segment %d has no requested duration", cs.Index)
		}
		if cs.RenderType != models.RenderVideo && cs.VideoDuration != 0 {
			t.Errorf("non-VIDEO segment %d kept videoDuration %.1f", cs.Index, cs.VideoDuration)
		}
	}
}
