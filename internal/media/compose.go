package media

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"

	"github.com/renlei/mvstudio/internal/models"
)

// Composition constants.
const (
	// Per-clip reconciliation only runs when the measured duration is off
	// target by more than this.
	composeAdjustTolerance = 0.2

	// The video is freeze-extended when it runs shorter than the audio by
	// more than this; otherwise it is trimmed to the audio's length.
	audioGapTolerance = 0.5
)

// ComposeOptions steer the final assembly.
type ComposeOptions struct {
	OutputName         string // final file base name, default "mv"
	Transitions        bool
	TransitionType     string  // crossfade, fade, wipe-left, wipe-right
	TransitionDuration float64 // seconds, default 0.5
}

// Assembler builds the final music video: per-segment clip resolution with
// tier fallback, duration reconciliation, concatenation, subtitle burn-in,
// and the audio mux with the song as the duration authority.
type Assembler struct {
	ff  *FFmpegService
	rec *Reconciler
}

func NewAssembler(ff *FFmpegService, rec *Reconciler) *Assembler {
	return &Assembler{ff: ff, rec: rec}
}

// Compose assembles the final video. It returns the composed output, the
// per-segment clip records (with as-measured durations and adjusted flags),
// and the retained subtitle file path.
//
// Missing clips are logged and skipped — remaining segments keep their own
// subtitle timing, which stays correct because subtitles are cut from lyric
// windows, not from clip offsets. Reconciliation failures degrade to the
// unreconciled clip. Concatenation, subtitle burn and mux failures are fatal.
func (a *Assembler) Compose(ctx context.Context, layout ProjectLayout, segments []models.ClassifiedSegment, audioPath string, opts ComposeOptions) (*models.ComposedOutput, []models.VideoSegment, string, error) {
	if len(segments) == 0 {
		return nil, nil, "", fmt.Errorf("no segments to compose")
	}
	if opts.OutputName == "" {
		opts.OutputName = "mv"
	}
	if opts.TransitionDuration <= 0 {
		opts.TransitionDuration = 0.5
	}
	if err := layout.EnsureDirs(); err != nil {
		return nil, nil, "", err
	}

	resolved := a.resolveClips(ctx, layout, segments)
	if len(resolved) == 0 {
		return nil, nil, "", fmt.Errorf("no clips available for any segment")
	}

	// Reconcile each clip to its segment's target duration.
	clips := make([]models.VideoSegment, 0, len(resolved))
	for _, rc := range resolved {
		clips = append(clips, a.reconcileClip(ctx, rc))
	}

	// Concatenate, with the transition chain falling back to plain concat.
	concatPath := filepath.Join(layout.OutputDir(), opts.OutputName+"_concat.mp4")
	if err := a.concatenate(ctx, clips, concatPath, opts); err != nil {
		return nil, nil, "", err
	}
	defer a.ff.Cleanup(concatPath)

	// Burn lyric subtitles.
	subtitlePath := filepath.Join(layout.OutputDir(), opts.OutputName+".ass")
	if err := GenerateLyricsASS(lyricWindows(segments), subtitlePath); err != nil {
		return nil, nil, "", fmt.Errorf("failed to generate subtitles: %w", err)
	}

	subtitledPath := filepath.Join(layout.OutputDir(), opts.OutputName+"_subtitled.mp4")
	if err := a.ff.BurnSubtitles(ctx, concatPath, subtitlePath, subtitledPath); err != nil {
		return nil, nil, "", err
	}
	defer a.ff.Cleanup(subtitledPath)

	// Mux the song. The audio track is the duration authority.
	outputPath := filepath.Join(layout.OutputDir(), opts.OutputName+".mp4")
	if err := a.muxAudio(ctx, subtitledPath, audioPath, outputPath); err != nil {
		return nil, nil, "", err
	}

	finalDuration, err := a.ff.ProbeDuration(ctx, outputPath)
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to measure composed output: %w", err)
	}

	log.Printf("[Compose] done: %s (%.2fs, %d/%d segments)", outputPath, finalDuration, len(clips), len(segments))

	return &models.ComposedOutput{Path: outputPath, Duration: finalDuration}, clips, subtitlePath, nil
}

// resolvedClip pairs a segment with the physical clip chosen for it.
type resolvedClip struct {
	seg  models.ClassifiedSegment
	path string
}

// resolveClips picks the physical file for each segment: the file matching
// its assigned tier first, the other tier's file as fallback. Segments with
// no file at all are reported missing and excluded; the remaining segments
// are never renumbered.
func (a *Assembler) resolveClips(_ context.Context, layout ProjectLayout, segments []models.ClassifiedSegment) []resolvedClip {
	var out []resolvedClip
	for _, seg := range segments {
		preferred := layout.AnimatedPath(seg.Index)
		fallback := layout.VideoPath(seg.Index)
		if seg.RenderType == models.RenderVideo {
			preferred, fallback = fallback, preferred
		}

		switch {
		case fileExists(preferred):
			out = append(out, resolvedClip{seg: seg, path: preferred})
		case fileExists(fallback):
			log.Printf("[Compose] segment %d: %s missing, using %s", seg.Index, filepath.Base(preferred), filepath.Base(fallback))
			out = append(out, resolvedClip{seg: seg, path: fallback})
		default:
			log.Printf("[Compose] segment %d: no clip found (tried %s, %s) — skipping", seg.Index, filepath.Base(preferred), filepath.Base(fallback))
		}
	}
	return out
}

// reconcileClip forces the clip onto its segment's target duration when the
// measured difference exceeds the tolerance. A reconciliation failure keeps
// the original clip — imprecise timing for one segment beats losing the
// whole composition.
func (a *Assembler) reconcileClip(ctx context.Context, rc resolvedClip) models.VideoSegment {
	target := rc.seg.Duration
	vs := models.VideoSegment{Index: rc.seg.Index, Path: rc.path, Duration: target}

	actual, err := a.ff.ProbeDuration(ctx, rc.path)
	if err != nil {
		log.Printf("[Compose] segment %d: could not measure clip, using as-is: %v", rc.seg.Index, err)
		return vs
	}
	vs.Duration = actual

	if math.Abs(actual-target) <= composeAdjustTolerance {
		return vs
	}

	adjustedPath, err := a.rec.Reconcile(ctx, rc.path, target)
	if err != nil {
		log.Printf("[Compose] segment %d: reconciliation failed, keeping original clip: %v", rc.seg.Index, err)
		return vs
	}

	vs.Path = adjustedPath
	vs.Adjusted = adjustedPath != rc.path
	if d, err := a.ff.ProbeDuration(ctx, adjustedPath); err == nil {
		vs.Duration = d
	} else {
		vs.Duration = target
	}
	return vs
}

func (a *Assembler) concatenate(ctx context.Context, clips []models.VideoSegment, outputPath string, opts ComposeOptions) error {
	paths := make([]string, len(clips))
	durations := make([]float64, len(clips))
	for i, c := range clips {
		paths[i] = c.Path
		durations[i] = c.Duration
	}

	if opts.Transitions && len(paths) >= 2 {
		err := a.ff.TransitionChain(ctx, paths, durations, outputPath, opts.TransitionType, opts.TransitionDuration)
		if err == nil {
			return nil
		}
		log.Printf("[Compose] transition chain failed, falling back to plain concatenation: %v", err)
	}

	if err := a.ff.Concat(ctx, paths, outputPath, false); err != nil {
		return fmt.Errorf("concatenation failed: %w", err)
	}
	return nil
}

// muxAudio reconciles the video against the song before muxing: a video
// short by more than the gap tolerance is freeze-extended; otherwise the
// container is cut at the audio's length.
func (a *Assembler) muxAudio(ctx context.Context, videoPath, audioPath, outputPath string) error {
	audioDur, err := a.ff.ProbeDuration(ctx, audioPath)
	if err != nil {
		return fmt.Errorf("failed to measure audio track: %w", err)
	}
	videoDur, err := a.ff.ProbeDuration(ctx, videoPath)
	if err != nil {
		return fmt.Errorf("failed to measure subtitled video: %w", err)
	}

	muxInput := videoPath
	if gap := audioDur - videoDur; gap > audioGapTolerance {
		log.Printf("[Compose] video is %.2fs shorter than audio, freeze-extending", gap)
		extendedPath := suffixPath(videoPath, "extended")
		if err := a.ff.ExtendWithFreeze(ctx, videoPath, extendedPath, gap); err != nil {
			return fmt.Errorf("failed to extend video to audio length: %w", err)
		}
		defer a.ff.Cleanup(extendedPath)
		muxInput = extendedPath
	}

	if err := a.ff.MuxAudio(ctx, muxInput, audioPath, outputPath, audioDur); err != nil {
		return err
	}
	return nil
}

// lyricWindows projects classified segments back to their lyric timing for
// subtitle generation.
func lyricWindows(segments []models.ClassifiedSegment) []models.LyricSegment {
	out := make([]models.LyricSegment, 0, len(segments))
	for _, seg := range segments {
		out = append(out, seg.LyricSegment)
	}
	return out
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
