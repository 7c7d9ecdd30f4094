package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/renlei/mvstudio/internal/models"
	"github.com/renlei/mvstudio/internal/store"
)

func newTestPipeline(t *testing.T) (*Pipeline, store.Store) {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	p, err := NewProject(context.Background(), st, models.ProjectData{
		Title:     "test song",
		AudioPath: "/songs/test.mp3",
	})
	if err != nil {
		t.Fatalf("NewProject: %v", err)
	}
	return p, st
}

func testLyrics() []models.LyricSegment {
	return []models.LyricSegment{
		{Index: 1, Text: "one", StartTime: 0, EndTime: 5, Duration: 5},
		{Index: 2, Text: "two", StartTime: 5, EndTime: 10, Duration: 5},
	}
}

func testClassified() []models.ClassifiedSegment {
	return []models.ClassifiedSegment{
		{LyricSegment: models.LyricSegment{Index: 1, StartTime: 0, EndTime: 5, Duration: 5}, Priority: models.PriorityHigh, RenderType: models.RenderVideo, VideoDuration: 5},
		{LyricSegment: models.LyricSegment{Index: 2, StartTime: 5, EndTime: 10, Duration: 5}, Priority: models.PriorityMedium, RenderType: models.RenderAnimation},
	}
}

// driveToImageGate walks a fresh project to AWAITING_IMAGE_CONFIRM.
func driveToImageGate(t *testing.T, p *Pipeline) {
	t.Helper()
	ctx := context.Background()

	steps := []func() error{
		func() error { return p.BeginRecognize(ctx) },
		func() error { return p.SetLyrics(ctx, testLyrics()) },
		func() error { return p.BeginStoryboard(ctx) },
		func() error {
			return p.SetStoryboard(ctx, []models.StoryboardScene{
				{Index: 1, Prompt: "a"}, {Index: 2, Prompt: "b"},
			})
		},
		func() error {
			return p.SetClassification(ctx, testClassified(), models.ClassificationStats{Total: 2}, false)
		},
		func() error { return p.BeginImages(ctx) },
		func() error {
			return p.RecordImageResults(ctx, []models.GenerationResult{
				{Index: 1, Success: true, Path: "image_1.png"},
				{Index: 2, Success: true, Path: "image_2.png"},
			})
		},
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	if got := p.Snapshot().Status; got != models.StatusAwaitingImageConfirm {
		t.Fatalf("status = %s, want AWAITING_IMAGE_CONFIRM", got)
	}
}

func TestVideoGenerationGateFailsFast(t *testing.T) {
	p, st := newTestPipeline(t)
	ctx := context.Background()
	driveToImageGate(t, p)

	err := p.BeginVideoGeneration(ctx)
	if !errors.Is(err, ErrImagesUnconfirmed) {
		t.Fatalf("BeginVideoGeneration = %v, want ErrImagesUnconfirmed", err)
	}

	// No state change, in memory or on disk.
	if got := p.Snapshot().Status; got != models.StatusAwaitingImageConfirm {
		t.Errorf("status moved to %s on a failed gate", got)
	}
	persisted, err := st.Load(ctx, p.ID())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if persisted.Status != models.StatusAwaitingImageConfirm {
		t.Errorf("persisted status moved to %s on a failed gate", persisted.Status)
	}
}

func TestConfirmAllOpensImageGate(t *testing.T) {
	p, _ := newTestPipeline(t)
	ctx := context.Background()
	driveToImageGate(t, p)

	if p.ImagesConfirmed() {
		t.Fatal("gate open before any confirmation")
	}
	if err := p.ConfirmAll(ctx, GateImages); err != nil {
		t.Fatalf("ConfirmAll: %v", err)
	}
	if !p.ImagesConfirmed() {
		t.Fatal("gate still closed after ConfirmAll")
	}

	if err := p.BeginVideoGeneration(ctx); err != nil {
		t.Fatalf("BeginVideoGeneration after confirmation: %v", err)
	}
	if got := p.Snapshot().Status; got != models.StatusGeneratingVideos {
		t.Errorf("status = %s, want GENERATING_VIDEOS", got)
	}
}

func TestRegenerationReclosesGate(t *testing.T) {
	p, _ := newTestPipeline(t)
	ctx := context.Background()
	driveToImageGate(t, p)

	if err := p.ConfirmAll(ctx, GateImages); err != nil {
		t.Fatal(err)
	}
	if err := p.BeginRegenerate(ctx, GateImages, 2); err != nil {
		t.Fatalf("BeginRegenerate: %v", err)
	}
	if p.ImagesConfirmed() {
		t.Fatal("gate open while index 2 is regenerating")
	}
	if !errors.Is(p.BeginVideoGeneration(ctx), ErrImagesUnconfirmed) {
		t.Fatal("video generation allowed during regeneration")
	}

	// A fresh artifact goes back to pending, never straight to confirmed.
	result := models.GenerationResult{Index: 2, Success: true, Path: "image_2.png"}
	if err := p.FinishRegenerate(ctx, GateImages, result); err != nil {
		t.Fatalf("FinishRegenerate: %v", err)
	}
	if p.ImagesConfirmed() {
		t.Fatal("regenerated image auto-confirmed")
	}
	if err := p.Confirm(ctx, GateImages, 2); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if !p.ImagesConfirmed() {
		t.Fatal("gate closed after re-confirming the regenerated image")
	}
}

func TestConfirmUnknownIndex(t *testing.T) {
	p, _ := newTestPipeline(t)
	ctx := context.Background()
	driveToImageGate(t, p)

	if !errors.Is(p.Confirm(ctx, GateImages, 99), ErrInvalidIndex) {
		t.Error("confirming an untracked index must fail with ErrInvalidIndex")
	}
}

func TestComposeGate(t *testing.T) {
	p, _ := newTestPipeline(t)
	ctx := context.Background()
	driveToImageGate(t, p)

	if err := p.ConfirmAll(ctx, GateImages); err != nil {
		t.Fatal(err)
	}
	if err := p.BeginVideoGeneration(ctx); err != nil {
		t.Fatal(err)
	}
	if err := p.RecordVideoResults(ctx, []models.GenerationResult{
		{Index: 1, Success: true, Path: "video_1.mp4", Duration: 5},
	}); err != nil {
		t.Fatal(err)
	}

	if !errors.Is(p.BeginCompose(ctx), ErrVideosUnconfirmed) {
		t.Fatal("compose allowed with an unconfirmed video")
	}

	if err := p.Confirm(ctx, GateVideos, 1); err != nil {
		t.Fatal(err)
	}
	if err := p.BeginAnimate(ctx); err != nil {
		t.Fatal(err)
	}
	if err := p.BeginCompose(ctx); err != nil {
		t.Fatalf("BeginCompose after confirmation: %v", err)
	}

	output := models.ComposedOutput{Path: "output/mv.mp4", Duration: 10.2}
	if err := p.Complete(ctx, output, "output/mv.ass"); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	snap := p.Snapshot()
	if snap.Status != models.StatusCompleted || snap.Progress != 100 {
		t.Errorf("final state = %s/%d%%, want COMPLETED/100%%", snap.Status, snap.Progress)
	}
	if snap.Data.OutputPath != "output/mv.mp4" || snap.Data.SubtitlePath != "output/mv.ass" {
		t.Errorf("output paths not recorded: %+v", snap.Data)
	}
}

func TestComposeWithoutVideosPassesGate(t *testing.T) {
	p, _ := newTestPipeline(t)
	ctx := context.Background()
	driveToImageGate(t, p)

	if err := p.ConfirmAll(ctx, GateImages); err != nil {
		t.Fatal(err)
	}
	// No video generation at all: animation-only project.
	if err := p.BeginAnimate(ctx); err != nil {
		t.Fatal(err)
	}
	if err := p.BeginCompose(ctx); err != nil {
		t.Fatalf("compose with no generated videos must pass the gate: %v", err)
	}
}

func TestResumeFromStore(t *testing.T) {
	p, st := newTestPipeline(t)
	ctx := context.Background()
	driveToImageGate(t, p)
	if err := p.Confirm(ctx, GateImages, 1); err != nil {
		t.Fatal(err)
	}

	// A fresh manager simulates a process restart.
	m := NewManager(st)
	resumed, err := m.Get(ctx, p.ID())
	if err != nil {
		t.Fatalf("Get after restart: %v", err)
	}

	snap := resumed.Snapshot()
	if snap.Status != models.StatusAwaitingImageConfirm {
		t.Errorf("resumed status = %s, want AWAITING_IMAGE_CONFIRM", snap.Status)
	}
	cs := snap.Data.ImageConfirmation
	if cs == nil || !cs.Has(1) || !cs.Has(2) {
		t.Fatalf("resumed confirmation set = %+v", cs)
	}
	if len(cs.Confirmed) != 1 || cs.Confirmed[0] != 1 {
		t.Errorf("confirmed = %v, want [1]", cs.Confirmed)
	}
}

func TestInvalidTransition(t *testing.T) {
	p, _ := newTestPipeline(t)
	ctx := context.Background()

	// Lyrics cannot land before recognition started.
	if !errors.Is(p.SetLyrics(ctx, testLyrics()), ErrInvalidTransition) {
		t.Error("SetLyrics from CREATED must be an invalid transition")
	}
}

func TestFailIsTerminal(t *testing.T) {
	p, _ := newTestPipeline(t)
	ctx := context.Background()

	if err := p.Fail(ctx, errors.New("whisper quota exceeded")); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	snap := p.Snapshot()
	if snap.Status != models.StatusFailed || snap.Error == "" {
		t.Errorf("after Fail: status=%s error=%q", snap.Status, snap.Error)
	}

	if err := p.BeginRecognize(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("operation on FAILED project = %v, want ErrInvalidTransition", err)
	}
	if err := p.Fail(ctx, errors.New("again")); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("double Fail = %v, want ErrInvalidTransition", err)
	}
}

func TestManagerUnknownProject(t *testing.T) {
	st, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	m := NewManager(st)
	_, err = m.Get(context.Background(), uuid.New())
	if !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("Get unknown id = %v, want ErrProjectNotFound", err)
	}
}
