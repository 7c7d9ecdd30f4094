package models

import (
	"time"

	"github.com/google/uuid"
)

// Enums

// ProjectStatus is the pipeline state of a project. Statuses form a total
// order of normal progress; StatusFailed is terminal and reachable from any
// state.
type ProjectStatus string

const (
	StatusCreated              ProjectStatus = "CREATED"
	StatusRecognizingLyrics    ProjectStatus = "RECOGNIZING_LYRICS"
	StatusLyricsReady          ProjectStatus = "LYRICS_READY"
	StatusGeneratingStoryboard ProjectStatus = "GENERATING_STORYBOARD"
	StatusGeneratingImages     ProjectStatus = "GENERATING_IMAGES"
	StatusAwaitingImageConfirm ProjectStatus = "AWAITING_IMAGE_CONFIRM"
	StatusGeneratingVideos     ProjectStatus = "GENERATING_VIDEOS"
	StatusAnimatingImages      ProjectStatus = "ANIMATING_IMAGES"
	StatusComposingMV          ProjectStatus = "COMPOSING_MV"
	StatusCompleted            ProjectStatus = "COMPLETED"
	StatusFailed               ProjectStatus = "FAILED"
)

// statusRank orders the normal-progress statuses. FAILED is intentionally
// absent — it is reachable from anywhere.
var statusRank = map[ProjectStatus]int{
	StatusCreated:              0,
	StatusRecognizingLyrics:    1,
	StatusLyricsReady:          2,
	StatusGeneratingStoryboard: 3,
	StatusGeneratingImages:     4,
	StatusAwaitingImageConfirm: 5,
	StatusGeneratingVideos:     6,
	StatusAnimatingImages:      7,
	StatusComposingMV:          8,
	StatusCompleted:            9,
}

// Rank returns the position of s in the normal-progress order, or -1 for
// FAILED/unknown statuses.
func (s ProjectStatus) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// Terminal reports whether the project can never advance again.
func (s ProjectStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Priority is the importance class the classifier assigns to a segment.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// RenderType is the cost tier a segment is rendered with.
type RenderType string

const (
	RenderVideo     RenderType = "VIDEO"     // AI video generation
	RenderAnimation RenderType = "ANIMATION" // pan/zoom over a still image
	RenderStatic    RenderType = "STATIC"    // unanimated still
)

// SpecialType marks non-sung segments synthesized from song structure.
// Special segments are never merged across.
type SpecialType string

const (
	SpecialPrelude   SpecialType = "prelude"
	SpecialInterlude SpecialType = "interlude"
	SpecialOutro     SpecialType = "outro"
	SpecialBridge    SpecialType = "bridge"
	SpecialChorus    SpecialType = "chorus"
)

// Core segment types

// LyricSegment is one lyric line (or synthesized special section) with its
// timing window. Index is 1-based and contiguous; it stays contiguous under
// merges by renumbering.
type LyricSegment struct {
	Index       int         `json:"index"`
	Text        string      `json:"text"`
	StartTime   float64     `json:"start_time"`
	EndTime     float64     `json:"end_time"`
	Duration    float64     `json:"duration"`
	SpecialType SpecialType `json:"special_type,omitempty"`
}

// IsSpecial reports whether the segment is a synthesized section rather than
// a sung lyric line.
func (s LyricSegment) IsSpecial() bool {
	return s.SpecialType != ""
}

// StoryboardScene is the per-segment visual direction produced by the
// storyboard collaborator.
type StoryboardScene struct {
	Index        int    `json:"index"`
	Prompt       string `json:"prompt"`
	SceneType    string `json:"scene_type"`
	HasCharacter bool   `json:"has_character"`
}

// ClassifiedSegment is a lyric segment with its assigned rendering tier and
// storyboard fields. VideoDuration is the requested generation duration and
// is only set when RenderType is VIDEO; the segment's own Duration remains
// the reconciliation target.
type ClassifiedSegment struct {
	LyricSegment
	Priority      Priority   `json:"priority"`
	RenderType    RenderType `json:"render_type"`
	VideoDuration float64    `json:"video_duration,omitempty"`
	Prompt        string     `json:"prompt"`
	SceneType     string     `json:"scene_type"`
	HasCharacter  bool       `json:"has_character"`
}

// ClassificationStats summarizes a classification pass.
type ClassificationStats struct {
	Total         int     `json:"total"`
	Videos        int     `json:"videos"`
	Animations    int     `json:"animations"`
	Statics       int     `json:"statics"`
	Merged        int     `json:"merged"`
	Downgraded    int     `json:"downgraded"`
	MaxVideos     int     `json:"max_videos,omitempty"`
	MaxImages     int     `json:"max_images,omitempty"`
	TotalDuration float64 `json:"total_duration"`
}

// GenerationResult is the per-segment outcome of an external generation call.
type GenerationResult struct {
	Index    int     `json:"index"`
	Success  bool    `json:"success"`
	Path     string  `json:"path,omitempty"`
	Error    string  `json:"error,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// VideoSegment is a resolved, possibly reconciled clip at composition time.
type VideoSegment struct {
	Index    int     `json:"index"`
	Path     string  `json:"path"`
	Duration float64 `json:"duration"`
	Adjusted bool    `json:"adjusted"`
}

// ComposedOutput is the final artifact.
type ComposedOutput struct {
	Path     string  `json:"path"`
	Duration float64 `json:"duration"`
}

// SnapshotVersion is the current snapshot schema version.
const SnapshotVersion = 1

// Snapshot is the persisted per-project state. It is written in full after
// every mutation; reloading re-hydrates status/progress/data/error verbatim.
// Version identifies the snapshot schema so old files fail loudly instead of
// silently misparsing.
type Snapshot struct {
	Version   int           `json:"version"`
	ID        uuid.UUID     `json:"id"`
	Status    ProjectStatus `json:"status"`
	Progress  int           `json:"progress"`
	Error     string        `json:"error,omitempty"`
	Data      ProjectData   `json:"data"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ProjectData is the bag of stage outputs owned by the pipeline.
type ProjectData struct {
	Title      string `json:"title,omitempty"`
	AudioPath  string `json:"audio_path"`
	LyricsPath string `json:"lyrics_path,omitempty"`
	WorkDir    string `json:"work_dir"`

	Lyrics              []LyricSegment       `json:"lyrics,omitempty"`
	Storyboard          []StoryboardScene    `json:"storyboard,omitempty"`
	ClassifiedSegments  []ClassifiedSegment  `json:"classified_segments,omitempty"`
	ClassificationStats *ClassificationStats `json:"classification_stats,omitempty"`

	ImageResults []GenerationResult `json:"image_results,omitempty"`
	VideoResults []GenerationResult `json:"video_results,omitempty"`

	ImageConfirmation *ConfirmationSet `json:"image_confirmation,omitempty"`
	VideoConfirmation *ConfirmationSet `json:"video_confirmation,omitempty"`

	AllVideo bool `json:"all_video,omitempty"`

	OutputPath     string  `json:"output_path,omitempty"`
	OutputDuration float64 `json:"output_duration,omitempty"`
	SubtitlePath   string  `json:"subtitle_path,omitempty"`
}

// StatusResponse is the read-only projection returned by getStatus.
type StatusResponse struct {
	ID                uuid.UUID            `json:"id"`
	Status            ProjectStatus        `json:"status"`
	Progress          int                  `json:"progress"`
	Error             string               `json:"error,omitempty"`
	LyricCount        int                  `json:"lyric_count"`
	StoryboardCount   int                  `json:"storyboard_count"`
	Stats             *ClassificationStats `json:"classification_stats,omitempty"`
	ImageConfirmation *ConfirmationSet     `json:"image_confirmation,omitempty"`
	VideoConfirmation *ConfirmationSet     `json:"video_confirmation,omitempty"`
	OutputPath        string               `json:"output_path,omitempty"`
	OutputDuration    float64              `json:"output_duration,omitempty"`
}

// API DTOs

type CreateProjectRequest struct {
	Title      string `json:"title,omitempty"`
	AudioPath  string `json:"audio_path"`
	LyricsPath string `json:"lyrics_path,omitempty"`
}

type CreateProjectResponse struct {
	ProjectID uuid.UUID     `json:"project_id"`
	Status    ProjectStatus `json:"status"`
}

type ClassifyRequest struct {
	AllVideo              bool       `json:"all_video,omitempty"`
	ForceType             RenderType `json:"force_type,omitempty"`
	MinVideoThreshold     float64    `json:"min_video_threshold,omitempty"`
	MinAnimationThreshold float64    `json:"min_animation_threshold,omitempty"`
	MaxVideos             int        `json:"max_videos,omitempty"`
	MaxImages             int        `json:"max_images,omitempty"`
}

type GenerateVideosRequest struct {
	AllVideo bool `json:"all_video,omitempty"`
}

type RegenerateRequest struct {
	Prompt string `json:"prompt,omitempty"`
}

type ComposeRequest struct {
	Transitions        bool    `json:"transitions,omitempty"`
	TransitionType     string  `json:"transition_type,omitempty"`
	TransitionDuration float64 `json:"transition_duration,omitempty"`
}
