package pipeline

import (
	"fmt"

	"github.com/renlei/mvstudio/internal/models"
)

// Event is a single state transition request. Events are pure: apply takes
// the current snapshot by value and returns the next one, or an error that
// leaves the snapshot untouched. All persistence and locking live in the
// Pipeline, never in an event.
type Event interface {
	Kind() string
	apply(s models.Snapshot) (models.Snapshot, error)
}

// Gate selects which confirmation gate an event targets.
type Gate string

const (
	GateImages Gate = "images"
	GateVideos Gate = "videos"
)

// allowedTransitions is the normal-progress graph. FAILED is reachable from
// any non-terminal status and is handled separately.
var allowedTransitions = map[models.ProjectStatus][]models.ProjectStatus{
	models.StatusCreated:              {models.StatusRecognizingLyrics},
	models.StatusRecognizingLyrics:    {models.StatusLyricsReady},
	models.StatusLyricsReady:          {models.StatusGeneratingStoryboard},
	models.StatusGeneratingStoryboard: {models.StatusGeneratingImages},
	models.StatusGeneratingImages:     {models.StatusAwaitingImageConfirm},
	// Image generation can be re-triggered from the gate, rebuilding every
	// keyframe and reseeding the gate.
	models.StatusAwaitingImageConfirm: {models.StatusGeneratingVideos, models.StatusAnimatingImages, models.StatusGeneratingImages},
	models.StatusGeneratingVideos:     {models.StatusAnimatingImages, models.StatusComposingMV},
	models.StatusAnimatingImages:      {models.StatusComposingMV},
	models.StatusComposingMV:          {models.StatusCompleted},
}

// progressFor maps each status to its progress milestone.
var progressFor = map[models.ProjectStatus]int{
	models.StatusCreated:              0,
	models.StatusRecognizingLyrics:    10,
	models.StatusLyricsReady:          20,
	models.StatusGeneratingStoryboard: 30,
	models.StatusGeneratingImages:     40,
	models.StatusAwaitingImageConfirm: 50,
	models.StatusGeneratingVideos:     70,
	models.StatusAnimatingImages:      80,
	models.StatusComposingMV:          90,
	models.StatusCompleted:            100,
}

func transitionAllowed(from, to models.ProjectStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// advance moves the snapshot to a new status, enforcing the transition graph
// and updating the progress milestone.
func advance(s models.Snapshot, to models.ProjectStatus) (models.Snapshot, error) {
	if s.Status.Terminal() {
		return s, fmt.Errorf("%w: project is %s", ErrInvalidTransition, s.Status)
	}
	if !transitionAllowed(s.Status, to) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, to)
	}
	s.Status = to
	if p, ok := progressFor[to]; ok && p > s.Progress {
		s.Progress = p
	}
	return s, nil
}

// gateOf returns the confirmation set for the gate, which may be nil.
func gateOf(d *models.ProjectData, gate Gate) **models.ConfirmationSet {
	if gate == GateVideos {
		return &d.VideoConfirmation
	}
	return &d.ImageConfirmation
}

// ---------------------------------------------------------------------------
// Status events
// ---------------------------------------------------------------------------

type eventStatus struct {
	To models.ProjectStatus
}

func (e eventStatus) Kind() string { return "status:" + string(e.To) }

func (e eventStatus) apply(s models.Snapshot) (models.Snapshot, error) {
	return advance(s, e.To)
}

type eventFail struct {
	Message string
}

func (e eventFail) Kind() string { return "fail" }

func (e eventFail) apply(s models.Snapshot) (models.Snapshot, error) {
	if s.Status.Terminal() {
		return s, fmt.Errorf("%w: project is %s", ErrInvalidTransition, s.Status)
	}
	s.Status = models.StatusFailed
	s.Error = e.Message
	return s, nil
}

// ---------------------------------------------------------------------------
// Stage output events
// ---------------------------------------------------------------------------

type eventSetLyrics struct {
	Segments []models.LyricSegment
}

func (e eventSetLyrics) Kind() string { return "set_lyrics" }

func (e eventSetLyrics) apply(s models.Snapshot) (models.Snapshot, error) {
	if len(e.Segments) == 0 {
		return s, fmt.Errorf("no lyric segments recognized")
	}
	s.Data.Lyrics = e.Segments
	return advance(s, models.StatusLyricsReady)
}

type eventSetStoryboard struct {
	Scenes []models.StoryboardScene
}

func (e eventSetStoryboard) Kind() string { return "set_storyboard" }

func (e eventSetStoryboard) apply(s models.Snapshot) (models.Snapshot, error) {
	if len(e.Scenes) == 0 {
		return s, fmt.Errorf("storyboard is empty")
	}
	if s.Status != models.StatusGeneratingStoryboard {
		return s, fmt.Errorf("%w: storyboard arrived while %s", ErrInvalidTransition, s.Status)
	}
	s.Data.Storyboard = e.Scenes
	return s, nil
}

type eventSetClassification struct {
	Segments []models.ClassifiedSegment
	Stats    models.ClassificationStats
	AllVideo bool
}

func (e eventSetClassification) Kind() string { return "set_classification" }

// Classification never changes status: it can be re-run with different
// options any time before video generation starts.
func (e eventSetClassification) apply(s models.Snapshot) (models.Snapshot, error) {
	if len(e.Segments) == 0 {
		return s, fmt.Errorf("classification produced no segments")
	}
	if s.Status.Rank() >= models.StatusGeneratingVideos.Rank() {
		return s, fmt.Errorf("%w: cannot reclassify while %s", ErrInvalidTransition, s.Status)
	}
	stats := e.Stats
	s.Data.ClassifiedSegments = e.Segments
	s.Data.ClassificationStats = &stats
	s.Data.AllVideo = e.AllVideo
	return s, nil
}

// ---------------------------------------------------------------------------
// Generation result events — each seeds or updates a confirmation gate
// ---------------------------------------------------------------------------

type eventGenerationResults struct {
	Gate    Gate
	Results []models.GenerationResult
}

func (e eventGenerationResults) Kind() string { return "results:" + string(e.Gate) }

// apply records the batch outcome and seeds the gate with every successful
// index pending. Image results also suspend the project at the image gate.
func (e eventGenerationResults) apply(s models.Snapshot) (models.Snapshot, error) {
	var succeeded []int
	for _, r := range e.Results {
		if r.Success {
			succeeded = append(succeeded, r.Index)
		}
	}
	if len(succeeded) == 0 {
		return s, fmt.Errorf("every %s generation in the batch failed", e.Gate)
	}

	if e.Gate == GateImages {
		s.Data.ImageResults = e.Results
		s.Data.ImageConfirmation = models.NewConfirmationSet(succeeded)
		return advance(s, models.StatusAwaitingImageConfirm)
	}

	s.Data.VideoResults = e.Results
	s.Data.VideoConfirmation = models.NewConfirmationSet(succeeded)
	return s, nil
}

// ---------------------------------------------------------------------------
// Confirmation gate events
// ---------------------------------------------------------------------------

type eventConfirm struct {
	Gate  Gate
	Index int
	All   bool
}

func (e eventConfirm) Kind() string { return "confirm:" + string(e.Gate) }

func (e eventConfirm) apply(s models.Snapshot) (models.Snapshot, error) {
	slot := gateOf(&s.Data, e.Gate)
	if *slot == nil {
		return s, fmt.Errorf("%w: no %s generated yet", ErrInvalidTransition, e.Gate)
	}
	cs := (*slot).Clone()
	if e.All {
		cs.ConfirmAll()
	} else if !cs.Confirm(e.Index) {
		return s, fmt.Errorf("%w: %s index %d", ErrInvalidIndex, e.Gate, e.Index)
	}
	*slot = cs
	return s, nil
}

type eventBeginRegenerate struct {
	Gate  Gate
	Index int
}

func (e eventBeginRegenerate) Kind() string { return "begin_regenerate:" + string(e.Gate) }

func (e eventBeginRegenerate) apply(s models.Snapshot) (models.Snapshot, error) {
	slot := gateOf(&s.Data, e.Gate)
	if *slot == nil {
		return s, fmt.Errorf("%w: no %s generated yet", ErrInvalidTransition, e.Gate)
	}
	cs := (*slot).Clone()
	if !cs.BeginRegenerate(e.Index) {
		return s, fmt.Errorf("%w: %s index %d", ErrInvalidIndex, e.Gate, e.Index)
	}
	*slot = cs
	return s, nil
}

type eventFinishRegenerate struct {
	Gate   Gate
	Result models.GenerationResult
}

func (e eventFinishRegenerate) Kind() string { return "finish_regenerate:" + string(e.Gate) }

// apply resolves one regeneration. A successful artifact returns to pending,
// never straight to confirmed. A failed one leaves the gate entirely; the
// prior artifact file remains on disk but is excluded from confirmation.
func (e eventFinishRegenerate) apply(s models.Snapshot) (models.Snapshot, error) {
	slot := gateOf(&s.Data, e.Gate)
	if *slot == nil {
		return s, fmt.Errorf("%w: no %s generated yet", ErrInvalidTransition, e.Gate)
	}
	cs := (*slot).Clone()
	if !cs.FinishRegenerate(e.Result.Index, e.Result.Success) {
		return s, fmt.Errorf("%w: %s index %d is not regenerating", ErrInvalidIndex, e.Gate, e.Result.Index)
	}
	*slot = cs

	if e.Gate == GateImages {
		s.Data.ImageResults = upsertResult(s.Data.ImageResults, e.Result)
	} else {
		s.Data.VideoResults = upsertResult(s.Data.VideoResults, e.Result)
	}
	return s, nil
}

func upsertResult(results []models.GenerationResult, r models.GenerationResult) []models.GenerationResult {
	out := make([]models.GenerationResult, len(results))
	copy(out, results)
	for i := range out {
		if out[i].Index == r.Index {
			out[i] = r
			return out
		}
	}
	return append(out, r)
}

// ---------------------------------------------------------------------------
// Completion
// ---------------------------------------------------------------------------

type eventComposed struct {
	Output       models.ComposedOutput
	SubtitlePath string
}

func (e eventComposed) Kind() string { return "composed" }

func (e eventComposed) apply(s models.Snapshot) (models.Snapshot, error) {
	s.Data.OutputPath = e.Output.Path
	s.Data.OutputDuration = e.Output.Duration
	s.Data.SubtitlePath = e.SubtitlePath
	return advance(s, models.StatusCompleted)
}
