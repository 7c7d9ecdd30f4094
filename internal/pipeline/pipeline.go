package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/renlei/mvstudio/internal/models"
	"github.com/renlei/mvstudio/internal/store"
)

// Change is one applied event paired with the snapshot it produced. Emitted
// on the pipeline's change channel for observers; delivery is best effort.
type Change struct {
	Event    string
	Snapshot models.Snapshot
}

// Pipeline owns the state of one project. The snapshot is held by value and
// every mutation goes through a pure event: apply on a copy, persist, then
// swap in the new value. A persistence failure leaves the in-memory state
// unchanged, so memory never runs ahead of disk.
type Pipeline struct {
	mu      sync.Mutex
	snap    models.Snapshot
	store   store.Store
	changes chan Change
}

// New wraps an existing snapshot. The store is a collaborator, not a global:
// the pipeline saves through whatever backend it was constructed with.
func New(st store.Store, snap models.Snapshot) *Pipeline {
	return &Pipeline{
		snap:    snap,
		store:   st,
		changes: make(chan Change, 16),
	}
}

// NewProject creates and persists a fresh CREATED snapshot.
func NewProject(ctx context.Context, st store.Store, data models.ProjectData) (*Pipeline, error) {
	now := time.Now().UTC()
	snap := models.Snapshot{
		Version:   models.SnapshotVersion,
		ID:        uuid.New(),
		Status:    models.StatusCreated,
		Progress:  0,
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := st.Save(ctx, &snap); err != nil {
		return nil, fmt.Errorf("failed to persist new project: %w", err)
	}
	return New(st, snap), nil
}

// ID returns the project id.
func (p *Pipeline) ID() uuid.UUID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap.ID
}

// Snapshot returns a copy of the current state.
func (p *Pipeline) Snapshot() models.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}

// Changes is the observer channel. Slow observers lose changes rather than
// blocking the pipeline.
func (p *Pipeline) Changes() <-chan Change {
	return p.changes
}

// Apply runs one event: reduce, persist, swap. Any error leaves both the
// in-memory and persisted snapshot exactly as they were.
func (p *Pipeline) Apply(ctx context.Context, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.applyLocked(ctx, ev)
}

func (p *Pipeline) applyLocked(ctx context.Context, ev Event) error {
	next, err := ev.apply(p.snap)
	if err != nil {
		return err
	}
	next.UpdatedAt = time.Now().UTC()

	if err := p.store.Save(ctx, &next); err != nil {
		return fmt.Errorf("failed to persist %s: %w", ev.Kind(), err)
	}
	p.snap = next

	log.Printf("[Pipeline] %s: %s (status=%s, progress=%d%%)", p.snap.ID, ev.Kind(), p.snap.Status, p.snap.Progress)

	select {
	case p.changes <- Change{Event: ev.Kind(), Snapshot: next}:
	default:
	}
	return nil
}

// ---------------------------------------------------------------------------
// Stage operations
// ---------------------------------------------------------------------------

func (p *Pipeline) BeginRecognize(ctx context.Context) error {
	return p.Apply(ctx, eventStatus{To: models.StatusRecognizingLyrics})
}

func (p *Pipeline) SetLyrics(ctx context.Context, segments []models.LyricSegment) error {
	return p.Apply(ctx, eventSetLyrics{Segments: segments})
}

func (p *Pipeline) BeginStoryboard(ctx context.Context) error {
	return p.Apply(ctx, eventStatus{To: models.StatusGeneratingStoryboard})
}

func (p *Pipeline) SetStoryboard(ctx context.Context, scenes []models.StoryboardScene) error {
	return p.Apply(ctx, eventSetStoryboard{Scenes: scenes})
}

func (p *Pipeline) SetClassification(ctx context.Context, segments []models.ClassifiedSegment, stats models.ClassificationStats, allVideo bool) error {
	return p.Apply(ctx, eventSetClassification{Segments: segments, Stats: stats, AllVideo: allVideo})
}

func (p *Pipeline) BeginImages(ctx context.Context) error {
	return p.Apply(ctx, eventStatus{To: models.StatusGeneratingImages})
}

// RecordImageResults stores the batch outcome, seeds the image gate with
// every successful index pending, and suspends the project at the gate.
func (p *Pipeline) RecordImageResults(ctx context.Context, results []models.GenerationResult) error {
	return p.Apply(ctx, eventGenerationResults{Gate: GateImages, Results: results})
}

// RecordVideoResults stores the batch outcome and seeds the video gate.
// The status does not move: composition is user-triggered after confirmation.
func (p *Pipeline) RecordVideoResults(ctx context.Context, results []models.GenerationResult) error {
	return p.Apply(ctx, eventGenerationResults{Gate: GateVideos, Results: results})
}

// ---------------------------------------------------------------------------
// Confirmation gates
// ---------------------------------------------------------------------------

func (p *Pipeline) Confirm(ctx context.Context, gate Gate, index int) error {
	return p.Apply(ctx, eventConfirm{Gate: gate, Index: index})
}

func (p *Pipeline) ConfirmAll(ctx context.Context, gate Gate) error {
	return p.Apply(ctx, eventConfirm{Gate: gate, All: true})
}

func (p *Pipeline) BeginRegenerate(ctx context.Context, gate Gate, index int) error {
	return p.Apply(ctx, eventBeginRegenerate{Gate: gate, Index: index})
}

func (p *Pipeline) FinishRegenerate(ctx context.Context, gate Gate, result models.GenerationResult) error {
	return p.Apply(ctx, eventFinishRegenerate{Gate: gate, Result: result})
}

// ImagesConfirmed reports the image gate predicate.
func (p *Pipeline) ImagesConfirmed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap.Data.ImageConfirmation.AllConfirmed()
}

// VideosConfirmed reports the video gate predicate. A project with no
// generated videos (nothing to confirm) passes.
func (p *Pipeline) VideosConfirmed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return videosConfirmed(p.snap)
}

func videosConfirmed(s models.Snapshot) bool {
	return s.Data.VideoConfirmation == nil || s.Data.VideoConfirmation.AllConfirmed()
}

// ---------------------------------------------------------------------------
// Gated stage starts — the gate check and the transition happen under one
// lock, and a failed gate changes nothing.
// ---------------------------------------------------------------------------

// BeginVideoGeneration starts the VIDEO-tier generation stage. It fails fast
// with ErrImagesUnconfirmed while any image is pending or regenerating; no
// status change and no dispatch happen in that case.
func (p *Pipeline) BeginVideoGeneration(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.snap.Data.ImageConfirmation.AllConfirmed() {
		return ErrImagesUnconfirmed
	}
	return p.applyLocked(ctx, eventStatus{To: models.StatusGeneratingVideos})
}

// BeginAnimate starts the animation/static rendering stage. Same image gate
// as video generation.
func (p *Pipeline) BeginAnimate(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.snap.Data.ImageConfirmation.AllConfirmed() {
		return ErrImagesUnconfirmed
	}
	return p.applyLocked(ctx, eventStatus{To: models.StatusAnimatingImages})
}

// BeginCompose starts the final assembly. It fails fast with
// ErrVideosUnconfirmed while any generated video is pending or regenerating.
func (p *Pipeline) BeginCompose(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !videosConfirmed(p.snap) {
		return ErrVideosUnconfirmed
	}
	return p.applyLocked(ctx, eventStatus{To: models.StatusComposingMV})
}

// ---------------------------------------------------------------------------
// Terminal transitions
// ---------------------------------------------------------------------------

func (p *Pipeline) Complete(ctx context.Context, output models.ComposedOutput, subtitlePath string) error {
	return p.Apply(ctx, eventComposed{Output: output, SubtitlePath: subtitlePath})
}

// Fail moves the project to FAILED from any non-terminal status.
func (p *Pipeline) Fail(ctx context.Context, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return p.Apply(ctx, eventFail{Message: msg})
}

// Status is the read-only projection served by the status endpoint.
func (p *Pipeline) Status() models.StatusResponse {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.snap
	return models.StatusResponse{
		ID:                s.ID,
		Status:            s.Status,
		Progress:          s.Progress,
		Error:             s.Error,
		LyricCount:        len(s.Data.Lyrics),
		StoryboardCount:   len(s.Data.Storyboard),
		Stats:             s.Data.ClassificationStats,
		ImageConfirmation: s.Data.ImageConfirmation.Clone(),
		VideoConfirmation: s.Data.VideoConfirmation.Clone(),
		OutputPath:        s.Data.OutputPath,
		OutputDuration:    s.Data.OutputDuration,
	}
}
