package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/renlei/mvstudio/internal/classifier"
	"github.com/renlei/mvstudio/internal/lyrics"
	"github.com/renlei/mvstudio/internal/media"
	"github.com/renlei/mvstudio/internal/models"
	"github.com/renlei/mvstudio/internal/pipeline"
	"github.com/renlei/mvstudio/internal/queue"
)

// layoutFor resolves the project's media tree.
func (w *Worker) layoutFor(snap models.Snapshot) media.ProjectLayout {
	if snap.Data.WorkDir != "" {
		return media.ProjectLayout{Root: snap.Data.WorkDir}
	}
	return media.NewProjectLayout(w.workDir, snap.ID.String())
}

// failStage marks the project FAILED and returns the original error.
func (w *Worker) failStage(ctx context.Context, p *pipeline.Pipeline, err error) error {
	if ferr := p.Fail(ctx, err); ferr != nil {
		log.Printf("[Worker] could not mark project %s failed: %v", p.ID(), ferr)
	}
	return err
}

// ---------------------------------------------------------------------------
// recognize_lyrics — runs the whole front half of the pipeline: lyric
// recognition, storyboard, default classification, then image generation,
// ending suspended at the image confirmation gate.
// ---------------------------------------------------------------------------

func (w *Worker) handleRecognizeLyrics(ctx context.Context, job *queue.Job) error {
	p, err := w.manager.Get(ctx, job.ProjectID)
	if err != nil {
		return err
	}
	snap := p.Snapshot()

	if err := p.BeginRecognize(ctx); err != nil {
		return err
	}

	audioDuration, err := w.ffmpeg.ProbeDuration(ctx, snap.Data.AudioPath)
	if err != nil {
		return w.failStage(ctx, p, fmt.Errorf("failed to measure audio: %w", err))
	}

	// LRC file wins over transcription when the project supplies one.
	var segs []models.LyricSegment
	if snap.Data.LyricsPath != "" {
		segs, err = lyrics.ParseFile(snap.Data.LyricsPath, audioDuration)
	} else {
		segs, err = w.openai.TranscribeLyrics(ctx, snap.Data.AudioPath, audioDuration)
	}
	if err != nil {
		return w.failStage(ctx, p, fmt.Errorf("lyric recognition failed: %w", err))
	}
	if err := p.SetLyrics(ctx, segs); err != nil {
		return w.failStage(ctx, p, err)
	}

	// Storyboard
	if err := p.BeginStoryboard(ctx); err != nil {
		return w.failStage(ctx, p, err)
	}
	scenes, err := w.openai.GenerateStoryboard(ctx, snap.Data.Title, segs)
	if err != nil {
		return w.failStage(ctx, p, fmt.Errorf("storyboard generation failed: %w", err))
	}
	if err := p.SetStoryboard(ctx, scenes); err != nil {
		return w.failStage(ctx, p, err)
	}

	// Default classification; the classify endpoint can re-run it with
	// different options any time before video generation.
	classified, stats := classifier.Classify(segs, scenes, w.classifierOpts)
	if err := p.SetClassification(ctx, classified, stats, w.classifierOpts.AllVideo); err != nil {
		return w.failStage(ctx, p, err)
	}

	return w.generateImages(ctx, p)
}

// ---------------------------------------------------------------------------
// generate_images — one keyframe per classified segment, in parallel
// ---------------------------------------------------------------------------

func (w *Worker) handleGenerateImages(ctx context.Context, job *queue.Job) error {
	p, err := w.manager.Get(ctx, job.ProjectID)
	if err != nil {
		return err
	}
	return w.generateImages(ctx, p)
}

func (w *Worker) generateImages(ctx context.Context, p *pipeline.Pipeline) error {
	if err := p.BeginImages(ctx); err != nil {
		return err
	}
	snap := p.Snapshot()
	segments := snap.Data.ClassifiedSegments
	if len(segments) == 0 {
		return w.failStage(ctx, p, fmt.Errorf("no classified segments to render"))
	}

	layout := w.layoutFor(snap)
	if err := layout.EnsureDirs(); err != nil {
		return w.failStage(ctx, p, err)
	}

	results := make([]models.GenerationResult, len(segments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.imageConcurrency)
	for i, seg := range segments {
		i, seg := i, seg
		g.Go(func() error {
			results[i] = w.generateImage(gctx, layout, seg)
			return nil
		})
	}
	_ = g.Wait()

	if err := p.RecordImageResults(ctx, results); err != nil {
		return w.failStage(ctx, p, err)
	}
	return nil
}

// generateImage renders one keyframe; failures are per-segment results, not
// batch errors.
func (w *Worker) generateImage(ctx context.Context, layout media.ProjectLayout, seg models.ClassifiedSegment) models.GenerationResult {
	scene := models.StoryboardScene{
		Index:        seg.Index,
		Prompt:       seg.Prompt,
		SceneType:    seg.SceneType,
		HasCharacter: seg.HasCharacter,
	}

	data, err := w.gemini.GenerateSceneImage(ctx, scene)
	if err != nil {
		log.Printf("[Worker] image for segment %d failed: %v", seg.Index, err)
		return models.GenerationResult{Index: seg.Index, Error: err.Error()}
	}

	path := layout.ImagePath(seg.Index)
	if err := writeFile(path, data); err != nil {
		log.Printf("[Worker] could not write image for segment %d: %v", seg.Index, err)
		return models.GenerationResult{Index: seg.Index, Error: err.Error()}
	}

	return models.GenerationResult{Index: seg.Index, Success: true, Path: path}
}

func (w *Worker) handleRegenerateImage(ctx context.Context, job *queue.Job) error {
	p, err := w.manager.Get(ctx, job.ProjectID)
	if err != nil {
		return err
	}
	snap := p.Snapshot()

	seg, ok := findSegment(snap.Data.ClassifiedSegments, job.SegmentIndex)
	if !ok {
		result := models.GenerationResult{Index: job.SegmentIndex, Error: "unknown segment"}
		return p.FinishRegenerate(ctx, pipeline.GateImages, result)
	}
	if job.Prompt != "" {
		seg.Prompt = job.Prompt
	}

	result := w.generateImage(ctx, w.layoutFor(snap), seg)
	return p.FinishRegenerate(ctx, pipeline.GateImages, result)
}

// ---------------------------------------------------------------------------
// generate_videos — AI clips for VIDEO-tier segments, chained for long ones
// ---------------------------------------------------------------------------

func (w *Worker) handleGenerateVideos(ctx context.Context, job *queue.Job) error {
	p, err := w.manager.Get(ctx, job.ProjectID)
	if err != nil {
		return err
	}
	snap := p.Snapshot()
	layout := w.layoutFor(snap)

	allVideo := job.AllVideo || snap.Data.AllVideo
	var targets []models.ClassifiedSegment
	for _, seg := range snap.Data.ClassifiedSegments {
		if allVideo || seg.RenderType == models.RenderVideo {
			targets = append(targets, seg)
		}
	}
	if len(targets) == 0 {
		log.Printf("[Worker] project %s has no VIDEO-tier segments, nothing to generate", p.ID())
		return nil
	}

	results := make([]models.GenerationResult, 0, len(targets))
	for _, seg := range targets {
		results = append(results, w.generateVideo(ctx, layout, seg))
	}

	anySuccess := false
	for _, r := range results {
		if r.Success {
			anySuccess = true
			break
		}
	}
	if !anySuccess {
		// Every clip fell back to animation: nothing enters the video gate,
		// composition proceeds on the fallback clips.
		log.Printf("[Worker] project %s: all %d video generations failed, composition will use fallbacks", p.ID(), len(targets))
		return nil
	}

	if err := p.RecordVideoResults(ctx, results); err != nil {
		return w.failStage(ctx, p, err)
	}
	return nil
}

// generateVideo produces the clip for one segment. A generation failure
// degrades to an animated still so composition always has a clip to pick up.
func (w *Worker) generateVideo(ctx context.Context, layout media.ProjectLayout, seg models.ClassifiedSegment) models.GenerationResult {
	imagePath := layout.ImagePath(seg.Index)
	outputPath := layout.VideoPath(seg.Index)

	if w.veo == nil {
		w.animateFallback(ctx, layout, seg)
		return models.GenerationResult{Index: seg.Index, Error: "video generation disabled"}
	}

	duration, err := w.rec.GenerateSegmentClip(ctx, w.veo, seg, imagePath, outputPath)
	if err != nil {
		log.Printf("[Worker] video for segment %d failed: %v", seg.Index, err)
		w.animateFallback(ctx, layout, seg)
		return models.GenerationResult{Index: seg.Index, Error: err.Error()}
	}

	return models.GenerationResult{Index: seg.Index, Success: true, Path: outputPath, Duration: duration}
}

func (w *Worker) animateFallback(ctx context.Context, layout media.ProjectLayout, seg models.ClassifiedSegment) {
	fallbackPath := layout.AnimatedPath(seg.Index)
	if err := w.ffmpeg.AnimateStill(ctx, layout.ImagePath(seg.Index), fallbackPath, media.RandomEffect(), seg.Duration); err != nil {
		log.Printf("[Worker] fallback animation for segment %d also failed: %v", seg.Index, err)
	}
}

func (w *Worker) handleRegenerateVideo(ctx context.Context, job *queue.Job) error {
	p, err := w.manager.Get(ctx, job.ProjectID)
	if err != nil {
		return err
	}
	snap := p.Snapshot()

	seg, ok := findSegment(snap.Data.ClassifiedSegments, job.SegmentIndex)
	if !ok {
		result := models.GenerationResult{Index: job.SegmentIndex, Error: "unknown segment"}
		return p.FinishRegenerate(ctx, pipeline.GateVideos, result)
	}
	if job.Prompt != "" {
		seg.Prompt = job.Prompt
	}

	result := w.generateVideo(ctx, w.layoutFor(snap), seg)
	return p.FinishRegenerate(ctx, pipeline.GateVideos, result)
}

// ---------------------------------------------------------------------------
// animate_images — motion clips for the ANIMATION and STATIC tiers
// ---------------------------------------------------------------------------

func (w *Worker) handleAnimateImages(ctx context.Context, job *queue.Job) error {
	p, err := w.manager.Get(ctx, job.ProjectID)
	if err != nil {
		return err
	}
	snap := p.Snapshot()
	layout := w.layoutFor(snap)

	if snap.Data.AllVideo {
		log.Printf("[Worker] project %s is all-video, no stills to animate", p.ID())
		return nil
	}

	var failed int
	var total int
	for _, seg := range snap.Data.ClassifiedSegments {
		if seg.RenderType == models.RenderVideo {
			continue
		}
		total++

		imagePath := layout.ImagePath(seg.Index)
		outputPath := layout.AnimatedPath(seg.Index)

		var err error
		if seg.RenderType == models.RenderStatic {
			err = w.ffmpeg.StillClip(ctx, imagePath, outputPath, seg.Duration, 0)
		} else {
			err = w.ffmpeg.AnimateStill(ctx, imagePath, outputPath, media.RandomEffect(), seg.Duration)
		}
		if err != nil {
			failed++
			log.Printf("[Worker] animating segment %d failed: %v", seg.Index, err)
		}
	}

	if total > 0 && failed == total {
		return w.failStage(ctx, p, fmt.Errorf("all %d still animations failed", total))
	}

	log.Printf("[Worker] project %s: animated %d/%d stills", p.ID(), total-failed, total)
	return nil
}

// ---------------------------------------------------------------------------
// compose_mv — final assembly
// ---------------------------------------------------------------------------

func (w *Worker) handleComposeMV(ctx context.Context, job *queue.Job) error {
	p, err := w.manager.Get(ctx, job.ProjectID)
	if err != nil {
		return err
	}
	snap := p.Snapshot()
	layout := w.layoutFor(snap)

	assembler := media.NewAssembler(w.ffmpeg, w.rec)
	opts := media.ComposeOptions{
		Transitions:        job.Transitions,
		TransitionType:     job.TransitionType,
		TransitionDuration: job.TransitionDuration,
	}

	output, _, subtitlePath, err := assembler.Compose(ctx, layout, snap.Data.ClassifiedSegments, snap.Data.AudioPath, opts)
	if err != nil {
		return w.failStage(ctx, p, fmt.Errorf("composition failed: %w", err))
	}

	if err := p.Complete(ctx, *output, subtitlePath); err != nil {
		return w.failStage(ctx, p, err)
	}
	return nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func findSegment(segments []models.ClassifiedSegment, index int) (models.ClassifiedSegment, bool) {
	for _, seg := range segments {
		if seg.Index == index {
			return seg, true
		}
	}
	return models.ClassifiedSegment{}, false
}
