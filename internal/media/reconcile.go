package media

import (
	"context"
	"fmt"
	"log"
	"math"
	"path/filepath"
	"strings"

	"github.com/renlei/mvstudio/internal/models"
)

// Duration reconciliation: force a generated clip to land on its segment's
// exact target duration.
const (
	// Durations within this tolerance are accepted unchanged.
	durationTolerance = 0.1

	// Above this target/actual ratio, time-stretching would look like slow
	// motion; freeze the final frame instead.
	maxStretchRatio = 1.5

	// LongSegmentThreshold marks segments that need chained generation.
	LongSegmentThreshold = 15.0
)

type reconcileMethod int

const (
	methodKeep reconcileMethod = iota
	methodTrim
	methodStretch
	methodFreeze
)

func (m reconcileMethod) String() string {
	switch m {
	case methodKeep:
		return "keep"
	case methodTrim:
		return "trim"
	case methodStretch:
		return "stretch"
	default:
		return "freeze"
	}
}

// chooseMethod picks the reconciliation strategy for a measured/target pair.
func chooseMethod(actual, target float64) reconcileMethod {
	switch {
	case math.Abs(actual-target) < durationTolerance:
		return methodKeep
	case actual > target:
		return methodTrim
	case target/actual <= maxStretchRatio:
		return methodStretch
	default:
		return methodFreeze
	}
}

// VideoGenerator is the external video-generation collaborator. It must
// support repeated invocation with a supplied reference image so chained
// sub-clips stay visually continuous.
type VideoGenerator interface {
	Generate(ctx context.Context, seg models.ClassifiedSegment, imagePath, outputPath string, duration float64) (float64, error)
}

// Reconciler adjusts clip durations and drives chained generation for
// segments too long for a single generation call.
type Reconciler struct {
	ff *FFmpegService

	// MaxGenerationDuration is the most a single generation call can
	// produce (seconds).
	MaxGenerationDuration float64
}

func NewReconciler(ff *FFmpegService, maxGenerationDuration float64) *Reconciler {
	if maxGenerationDuration <= 0 {
		maxGenerationDuration = 10
	}
	return &Reconciler{ff: ff, MaxGenerationDuration: maxGenerationDuration}
}

// Reconcile returns the path of a clip whose duration matches target within
// the tolerance. The input file is left untouched; adjusted output lands
// next to it with a suffix. The strategy chain is trim → stretch (falling
// back to freeze on encode failure) → freeze-frame extension.
func (r *Reconciler) Reconcile(ctx context.Context, clipPath string, target float64) (string, error) {
	actual, err := r.ff.ProbeDuration(ctx, clipPath)
	if err != nil {
		return "", fmt.Errorf("failed to probe clip duration: %w", err)
	}

	method := chooseMethod(actual, target)
	if method == methodKeep {
		return clipPath, nil
	}

	outputPath := suffixPath(clipPath, "adjusted")
	log.Printf("[Reconcile] %s: actual=%.2fs target=%.2fs method=%s", filepath.Base(clipPath), actual, target, method)

	switch method {
	case methodTrim:
		if err := r.ff.Trim(ctx, clipPath, outputPath, target); err != nil {
			return "", err
		}

	case methodStretch:
		ratio := target / actual
		if err := r.ff.Stretch(ctx, clipPath, outputPath, ratio); err != nil {
			// Stretch re-encode failed — fall back to freezing the last frame.
			log.Printf("[Reconcile] stretch failed, falling back to freeze-frame: %v", err)
			if err := r.freezeExtend(ctx, clipPath, outputPath, target-actual); err != nil {
				return "", err
			}
		}

	case methodFreeze:
		if err := r.freezeExtend(ctx, clipPath, outputPath, target-actual); err != nil {
			return "", err
		}
	}

	return outputPath, nil
}

// freezeExtend appends a still clip of the final frame, synthesized at the
// clip's native frame rate, then concatenates original + still.
func (r *Reconciler) freezeExtend(ctx context.Context, clipPath, outputPath string, extra float64) error {
	base := strings.TrimSuffix(filepath.Base(clipPath), filepath.Ext(clipPath))
	framePath := r.ff.CreateTempFile(base + "_lastframe.png")
	stillPath := r.ff.CreateTempFile(base + "_still.mp4")
	defer r.ff.Cleanup(framePath, stillPath)

	if err := r.ff.ExtractLastFrame(ctx, clipPath, framePath); err != nil {
		return err
	}

	fps, err := r.ff.ProbeFrameRate(ctx, clipPath)
	if err != nil {
		log.Printf("[Reconcile] could not detect frame rate, using %d: %v", videoFPS, err)
		fps = videoFPS
	}

	if err := r.ff.StillClip(ctx, framePath, stillPath, extra, fps); err != nil {
		return err
	}

	// Re-encode the concat: the synthesized still rarely matches the
	// generated clip's stream parameters exactly.
	return r.ff.Concat(ctx, []string{clipPath, stillPath}, outputPath, true)
}

// ChainCount returns how many sequential generation calls a target duration
// needs given the per-call maximum.
func ChainCount(target, maxPerCall float64) int {
	if maxPerCall <= 0 || target <= maxPerCall {
		return 1
	}
	return int(math.Ceil(target / maxPerCall))
}

// NeedsChaining reports whether the segment's target duration requires
// multiple generation calls.
func (r *Reconciler) NeedsChaining(target float64) bool {
	return target > LongSegmentThreshold && target > r.MaxGenerationDuration
}

// GenerateSegmentClip produces the clip for one VIDEO-tier segment, chaining
// generation calls for long segments. The first call uses the segment's
// reference image; each subsequent call is seeded with the last frame of
// the previous sub-clip so the seam stays visually continuous. Any sub-clip
// failure aborts the chain, removes partial artifacts, and propagates the
// error — no partial result is accepted.
func (r *Reconciler) GenerateSegmentClip(ctx context.Context, gen VideoGenerator, seg models.ClassifiedSegment, imagePath, outputPath string) (float64, error) {
	target := seg.Duration

	if !r.NeedsChaining(target) {
		requested := seg.VideoDuration
		if requested <= 0 {
			requested = math.Min(math.Max(target, 3), r.MaxGenerationDuration)
		}
		return gen.Generate(ctx, seg, imagePath, outputPath, requested)
	}

	calls := ChainCount(target, r.MaxGenerationDuration)
	log.Printf("[Reconcile] segment %d: target %.1fs needs %d chained generation calls", seg.Index, target, calls)

	base := strings.TrimSuffix(filepath.Base(outputPath), filepath.Ext(outputPath))
	var (
		subClips  []string
		tempFiles []string
		refImage  = imagePath
		remaining = target
	)
	cleanup := func() { r.ff.Cleanup(tempFiles...) }

	for i := 0; i < calls; i++ {
		requested := math.Min(remaining, r.MaxGenerationDuration)
		if requested < 3 {
			requested = 3
		}

		subPath := r.ff.CreateTempFile(fmt.Sprintf("%s_part%d.mp4", base, i+1))
		tempFiles = append(tempFiles, subPath)

		if _, err := gen.Generate(ctx, seg, refImage, subPath, requested); err != nil {
			cleanup()
			return 0, fmt.Errorf("chained generation call %d/%d failed for segment %d: %w", i+1, calls, seg.Index, err)
		}
		subClips = append(subClips, subPath)
		remaining -= requested

		// Seed the next call with this sub-clip's final frame.
		if i+1 < calls {
			framePath := r.ff.CreateTempFile(fmt.Sprintf("%s_seed%d.png", base, i+1))
			tempFiles = append(tempFiles, framePath)
			if err := r.ff.ExtractLastFrame(ctx, subPath, framePath); err != nil {
				cleanup()
				return 0, fmt.Errorf("failed to extract seam frame after call %d: %w", i+1, err)
			}
			refImage = framePath
		}
	}

	if err := r.ff.Concat(ctx, subClips, outputPath, true); err != nil {
		cleanup()
		return 0, fmt.Errorf("failed to join chained sub-clips for segment %d: %w", seg.Index, err)
	}
	cleanup()

	return r.ff.ProbeDuration(ctx, outputPath)
}

// suffixPath inserts a suffix before the extension: clip.mp4 → clip_adjusted.mp4.
func suffixPath(path, suffix string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + suffix + ext
}
