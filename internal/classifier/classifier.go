package classifier

import (
	"log"
	"sort"
	"strings"

	"github.com/renlei/mvstudio/internal/models"
)

// Defaults for the tier thresholds. All tunable via Options / config.
const (
	DefaultMinVideoThreshold     = 4.0  // seconds
	DefaultMinAnimationThreshold = 2.0  // seconds
	DefaultMaxVideoDuration      = 10.0 // seconds a single generation call can produce
	DefaultMergeThreshold        = 2.0  // seconds

	// MinVideoDuration is the floor for a requested generation duration.
	MinVideoDuration = 3.0

	// Chorus/climax window: segments whose normalized position falls inside
	// [chorusWindowStart, chorusWindowEnd] are rated HIGH.
	chorusWindowStart = 0.5
	chorusWindowEnd   = 0.8

	// Segments at least this long are HIGH even outside the chorus window.
	longSegmentPriority = 6.0

	// First/last N positions get MEDIUM (opening and closing shots matter
	// more than mid-verse lines).
	edgePositions = 2
)

// Budget caps the number of cost-heavy segments. Zero means unlimited.
// MaxImages is carried for reporting; the spec defines no image downgrade.
type Budget struct {
	MaxVideos int
	MaxImages int
}

// Options steer a classification pass.
type Options struct {
	AllVideo              bool              // force every segment to VIDEO
	ForceType             models.RenderType // force every segment to this tier ("" = off)
	MinVideoThreshold     float64
	MinAnimationThreshold float64
	MaxVideoDuration      float64
	MergeThreshold        float64
	Budget                Budget
}

func (o Options) withDefaults() Options {
	if o.MinVideoThreshold <= 0 {
		o.MinVideoThreshold = DefaultMinVideoThreshold
	}
	if o.MinAnimationThreshold <= 0 {
		o.MinAnimationThreshold = DefaultMinAnimationThreshold
	}
	if o.MaxVideoDuration <= 0 {
		o.MaxVideoDuration = DefaultMaxVideoDuration
	}
	if o.MergeThreshold <= 0 {
		o.MergeThreshold = DefaultMergeThreshold
	}
	return o
}

// Classify is the full deterministic pass: per-segment priority and tier,
// budget capping, then short-segment merging. Storyboard scenes are matched
// by index; a missing scene leaves the storyboard fields empty.
func Classify(segments []models.LyricSegment, storyboard []models.StoryboardScene, opts Options) ([]models.ClassifiedSegment, models.ClassificationStats) {
	opts = opts.withDefaults()

	scenes := make(map[int]models.StoryboardScene, len(storyboard))
	for _, sc := range storyboard {
		scenes[sc.Index] = sc
	}

	classified := make([]models.ClassifiedSegment, 0, len(segments))
	for i, seg := range segments {
		priority := AnalyzePriority(seg, i+1, len(segments))
		renderType := DetermineRenderType(seg, priority, opts)

		cs := models.ClassifiedSegment{
			LyricSegment: seg,
			Priority:     priority,
			RenderType:   renderType,
		}
		if renderType == models.RenderVideo {
			cs.VideoDuration = CalculateVideoDuration(seg.Duration, opts.MaxVideoDuration)
		}
		if sc, ok := scenes[seg.Index]; ok {
			cs.Prompt = sc.Prompt
			cs.SceneType = sc.SceneType
			cs.HasCharacter = sc.HasCharacter
		}
		classified = append(classified, cs)
	}

	classified, downgraded := OptimizeForBudget(classified, opts.Budget)
	merged := MergeAdjacentSegments(classified, opts.MergeThreshold)

	stats := buildStats(merged, opts.Budget)
	stats.Merged = len(classified) - len(merged)
	stats.Downgraded = downgraded

	log.Printf("[Classifier] %d segments → %d video, %d animation, %d static (%d merged, %d downgraded)",
		stats.Total, stats.Videos, stats.Animations, stats.Statics, stats.Merged, stats.Downgraded)

	return merged, stats
}

// AnalyzePriority rates a segment's visual importance. index is 1-based;
// total is the segment count.
//
// Specials are LOW — they carry no lyric content. Segments in the
// 50-80% span of the song are HIGH (the chorus/climax window). Opening and
// closing positions are MEDIUM, long segments elsewhere are HIGH, everything
// else is MEDIUM.
func AnalyzePriority(seg models.LyricSegment, index, total int) models.Priority {
	if seg.IsSpecial() {
		return models.PriorityLow
	}
	if total <= 0 {
		return models.PriorityMedium
	}

	p := float64(index) / float64(total)
	if p >= chorusWindowStart && p <= chorusWindowEnd {
		return models.PriorityHigh
	}
	if index <= edgePositions || index > total-edgePositions {
		return models.PriorityMedium
	}
	if seg.Duration >= longSegmentPriority {
		return models.PriorityHigh
	}
	return models.PriorityMedium
}

// DetermineRenderType assigns the cost tier. Overrides win: all-video mode
// forces VIDEO, a forced type forces that type. Specials never get VIDEO.
func DetermineRenderType(seg models.LyricSegment, priority models.Priority, opts Options) models.RenderType {
	opts = opts.withDefaults()

	if opts.AllVideo {
		return models.RenderVideo
	}
	if opts.ForceType != "" {
		return opts.ForceType
	}

	if seg.IsSpecial() {
		if seg.Duration >= opts.MinAnimationThreshold {
			return models.RenderAnimation
		}
		return models.RenderStatic
	}

	switch {
	case priority == models.PriorityHigh && seg.Duration >= opts.MinVideoThreshold:
		return models.RenderVideo
	case priority == models.PriorityMedium && seg.Duration >= 1.5*opts.MinVideoThreshold:
		return models.RenderVideo
	case seg.Duration >= opts.MinAnimationThreshold:
		return models.RenderAnimation
	default:
		return models.RenderStatic
	}
}

// CalculateVideoDuration clamps the lyric duration into the range a single
// generation call accepts. This is the requested duration; the segment's
// true duration remains the reconciliation target.
func CalculateVideoDuration(lyricDuration, maxDuration float64) float64 {
	if maxDuration <= 0 {
		maxDuration = DefaultMaxVideoDuration
	}
	if lyricDuration < MinVideoDuration {
		return MinVideoDuration
	}
	if lyricDuration > maxDuration {
		return maxDuration
	}
	return lyricDuration
}

// OptimizeForBudget downgrades VIDEO segments past the MaxVideos cap to
// ANIMATION. Candidates are ranked VIDEO-first, then HIGH < MEDIUM < LOW,
// then longer-first; the sort is stable so equal keys keep their original
// relative order. Returns the adjusted slice and the number downgraded.
func OptimizeForBudget(classified []models.ClassifiedSegment, budget Budget) ([]models.ClassifiedSegment, int) {
	if budget.MaxVideos <= 0 {
		return classified, 0
	}

	videoCount := 0
	for _, cs := range classified {
		if cs.RenderType == models.RenderVideo {
			videoCount++
		}
	}
	if videoCount <= budget.MaxVideos {
		return classified, 0
	}

	// Rank a copy; the original slice keeps its index order.
	ranked := make([]*models.ClassifiedSegment, len(classified))
	for i := range classified {
		ranked[i] = &classified[i]
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if (a.RenderType == models.RenderVideo) != (b.RenderType == models.RenderVideo) {
			return a.RenderType == models.RenderVideo
		}
		if pa, pb := priorityRank(a.Priority), priorityRank(b.Priority); pa != pb {
			return pa < pb
		}
		return a.Duration > b.Duration
	})

	kept := 0
	downgraded := 0
	for _, cs := range ranked {
		if cs.RenderType != models.RenderVideo {
			continue
		}
		if kept < budget.MaxVideos {
			kept++
			continue
		}
		cs.RenderType = models.RenderAnimation
		cs.VideoDuration = 0
		downgraded++
	}
	return classified, downgraded
}

func priorityRank(p models.Priority) int {
	switch p {
	case models.PriorityHigh:
		return 0
	case models.PriorityMedium:
		return 1
	default:
		return 2
	}
}

// MergeAdjacentSegments collapses runs of very short neighbors. Two adjacent
// segments merge only when both are non-special, share a renderType other
// than VIDEO, and both run shorter than threshold. Video segments never
// merge — their generation cost is already committed. Indices are
// renumbered 1..N afterwards.
func MergeAdjacentSegments(classified []models.ClassifiedSegment, threshold float64) []models.ClassifiedSegment {
	if threshold <= 0 {
		threshold = DefaultMergeThreshold
	}
	if len(classified) == 0 {
		return classified
	}

	out := make([]models.ClassifiedSegment, 0, len(classified))
	out = append(out, classified[0])

	for _, next := range classified[1:] {
		cur := &out[len(out)-1]
		if canMerge(*cur, next, threshold) {
			cur.Text = joinText(cur.Text, next.Text)
			cur.Prompt = joinText(cur.Prompt, next.Prompt)
			cur.EndTime = next.EndTime
			cur.Duration = cur.EndTime - cur.StartTime
			continue
		}
		out = append(out, next)
	}

	for i := range out {
		out[i].Index = i + 1
	}
	return out
}

func canMerge(a, b models.ClassifiedSegment, threshold float64) bool {
	return !a.IsSpecial() && !b.IsSpecial() &&
		a.RenderType == b.RenderType &&
		a.RenderType != models.RenderVideo &&
		a.Duration < threshold && b.Duration < threshold
}

func joinText(a, b string) string {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}

func buildStats(classified []models.ClassifiedSegment, budget Budget) models.ClassificationStats {
	stats := models.ClassificationStats{
		Total:     len(classified),
		MaxVideos: budget.MaxVideos,
		MaxImages: budget.MaxImages,
	}
	for _, cs := range classified {
		stats.TotalDuration += cs.Duration
		switch cs.RenderType {
		case models.RenderVideo:
			stats.Videos++
		case models.RenderAnimation:
			stats.Animations++
		case models.RenderStatic:
			stats.Statics++
		}
	}
	return stats
}
