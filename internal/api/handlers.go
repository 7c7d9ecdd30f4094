package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/renlei/mvstudio/internal/classifier"
	"github.com/renlei/mvstudio/internal/config"
	"github.com/renlei/mvstudio/internal/models"
	"github.com/renlei/mvstudio/internal/pipeline"
	"github.com/renlei/mvstudio/internal/queue"
)

// Handler wires HTTP requests to project pipelines. Stage triggers enqueue a
// job and return immediately; the status endpoint is how callers observe
// completion.
type Handler struct {
	manager *pipeline.Manager
	queue   *queue.Queue
	cfg     *config.Config
}

func NewHandler(manager *pipeline.Manager, q *queue.Queue, cfg *config.Config) *Handler {
	return &Handler{
		manager: manager,
		queue:   q,
		cfg:     cfg,
	}
}

// CreateProject handles POST /v1/projects
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req models.CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.AudioPath == "" {
		respondError(w, http.StatusBadRequest, "audio_path is required")
		return
	}
	if _, err := os.Stat(req.AudioPath); err != nil {
		respondError(w, http.StatusBadRequest, "audio_path does not exist")
		return
	}
	if req.LyricsPath != "" {
		if _, err := os.Stat(req.LyricsPath); err != nil {
			respondError(w, http.StatusBadRequest, "lyrics_path does not exist")
			return
		}
	}

	p, err := h.manager.Create(r.Context(), models.ProjectData{
		Title:      req.Title,
		AudioPath:  req.AudioPath,
		LyricsPath: req.LyricsPath,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create project")
		return
	}

	if err := h.queue.EnqueueRecognizeLyrics(r.Context(), p.ID()); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue lyric recognition")
		return
	}

	respondJSON(w, http.StatusAccepted, models.CreateProjectResponse{
		ProjectID: p.ID(),
		Status:    p.Snapshot().Status,
	})
}

// ListProjects handles GET /v1/projects
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	ids, err := h.manager.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list projects")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"projects": ids})
}

// GetStatus handles GET /v1/projects/{id}/status
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, p.Status())
}

// Classify handles POST /v1/projects/{id}/classify. Classification is pure
// and runs inline; re-running with different options is allowed any time
// before video generation starts.
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}

	var req models.ClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	snap := p.Snapshot()
	if len(snap.Data.Lyrics) == 0 || len(snap.Data.Storyboard) == 0 {
		respondError(w, http.StatusConflict, "Project has no lyrics or storyboard yet")
		return
	}

	opts := h.classifierOptions(req)
	classified, stats := classifier.Classify(snap.Data.Lyrics, snap.Data.Storyboard, opts)

	if err := p.SetClassification(r.Context(), classified, stats, opts.AllVideo); err != nil {
		h.respondOpError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"segments": classified,
		"stats":    stats,
	})
}

// classifierOptions merges request overrides over the configured defaults.
// Zero-valued request fields keep the defaults.
func (h *Handler) classifierOptions(req models.ClassifyRequest) classifier.Options {
	opts := classifier.Options{
		AllVideo:              req.AllVideo,
		ForceType:             req.ForceType,
		MinVideoThreshold:     h.cfg.MinVideoThreshold,
		MinAnimationThreshold: h.cfg.MinAnimationThreshold,
		MaxVideoDuration:      h.cfg.MaxVideoDuration,
		MergeThreshold:        h.cfg.MergeThreshold,
		Budget: classifier.Budget{
			MaxVideos: h.cfg.MaxVideos,
			MaxImages: h.cfg.MaxImages,
		},
	}
	if req.MinVideoThreshold > 0 {
		opts.MinVideoThreshold = req.MinVideoThreshold
	}
	if req.MinAnimationThreshold > 0 {
		opts.MinAnimationThreshold = req.MinAnimationThreshold
	}
	if req.MaxVideos > 0 {
		opts.Budget.MaxVideos = req.MaxVideos
	}
	if req.MaxImages > 0 {
		opts.Budget.MaxImages = req.MaxImages
	}
	return opts
}

// GenerateImages handles POST /v1/projects/{id}/images — regenerates every
// keyframe and reseeds the image gate.
func (h *Handler) GenerateImages(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	if err := h.queue.EnqueueGenerateImages(r.Context(), p.ID()); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue image generation")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// ConfirmImage handles POST /v1/projects/{id}/images/{index}/confirm
func (h *Handler) ConfirmImage(w http.ResponseWriter, r *http.Request) {
	h.confirm(w, r, pipeline.GateImages)
}

// ConfirmAllImages handles POST /v1/projects/{id}/images/confirm-all
func (h *Handler) ConfirmAllImages(w http.ResponseWriter, r *http.Request) {
	h.confirmAll(w, r, pipeline.GateImages)
}

// RegenerateImage handles POST /v1/projects/{id}/images/{index}/regenerate
func (h *Handler) RegenerateImage(w http.ResponseWriter, r *http.Request) {
	h.regenerate(w, r, pipeline.GateImages)
}

// GenerateVideos handles POST /v1/projects/{id}/videos. The image gate is
// enforced here, before anything is dispatched: an unconfirmed image means
// no status change and no job.
func (h *Handler) GenerateVideos(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}

	var req models.GenerateVideosRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	if err := p.BeginVideoGeneration(r.Context()); err != nil {
		h.respondOpError(w, err)
		return
	}
	if err := h.queue.EnqueueGenerateVideos(r.Context(), p.ID(), req.AllVideo); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue video generation")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// ConfirmVideo handles POST /v1/projects/{id}/videos/{index}/confirm
func (h *Handler) ConfirmVideo(w http.ResponseWriter, r *http.Request) {
	h.confirm(w, r, pipeline.GateVideos)
}

// ConfirmAllVideos handles POST /v1/projects/{id}/videos/confirm-all
func (h *Handler) ConfirmAllVideos(w http.ResponseWriter, r *http.Request) {
	h.confirmAll(w, r, pipeline.GateVideos)
}

// RegenerateVideo handles POST /v1/projects/{id}/videos/{index}/regenerate
func (h *Handler) RegenerateVideo(w http.ResponseWriter, r *http.Request) {
	h.regenerate(w, r, pipeline.GateVideos)
}

// Animate handles POST /v1/projects/{id}/animate — renders the ANIMATION and
// STATIC tiers. Gated on image confirmation like video generation.
func (h *Handler) Animate(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	if err := p.BeginAnimate(r.Context()); err != nil {
		h.respondOpError(w, err)
		return
	}
	if err := h.queue.EnqueueAnimateImages(r.Context(), p.ID()); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue animation")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// Compose handles POST /v1/projects/{id}/compose. The video gate is enforced
// here: an unconfirmed generated video means no dispatch.
func (h *Handler) Compose(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}

	req := models.ComposeRequest{
		TransitionType:     h.cfg.TransitionType,
		TransitionDuration: h.cfg.TransitionDuration,
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.TransitionType == "" {
			req.TransitionType = h.cfg.TransitionType
		}
		if req.TransitionDuration <= 0 {
			req.TransitionDuration = h.cfg.TransitionDuration
		}
	}

	if err := p.BeginCompose(r.Context()); err != nil {
		h.respondOpError(w, err)
		return
	}
	if err := h.queue.EnqueueComposeMV(r.Context(), p.ID(), req.Transitions, req.TransitionType, req.TransitionDuration); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue composition")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// ---------------------------------------------------------------------------
// Shared gate handlers
// ---------------------------------------------------------------------------

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request, gate pipeline.Gate) {
	p, index, ok := h.projectSegment(w, r)
	if !ok {
		return
	}
	if err := p.Confirm(r.Context(), gate, index); err != nil {
		h.respondOpError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p.Status())
}

func (h *Handler) confirmAll(w http.ResponseWriter, r *http.Request, gate pipeline.Gate) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	if err := p.ConfirmAll(r.Context(), gate); err != nil {
		h.respondOpError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p.Status())
}

func (h *Handler) regenerate(w http.ResponseWriter, r *http.Request, gate pipeline.Gate) {
	p, index, ok := h.projectSegment(w, r)
	if !ok {
		return
	}

	var req models.RegenerateRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	if err := p.BeginRegenerate(r.Context(), gate, index); err != nil {
		h.respondOpError(w, err)
		return
	}

	var err error
	if gate == pipeline.GateImages {
		err = h.queue.EnqueueRegenerateImage(r.Context(), p.ID(), index, req.Prompt)
	} else {
		err = h.queue.EnqueueRegenerateVideo(r.Context(), p.ID(), index, req.Prompt)
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue regeneration")
		return
	}
	respondJSON(w, http.StatusAccepted, p.Status())
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (h *Handler) project(w http.ResponseWriter, r *http.Request) (*pipeline.Pipeline, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid project ID")
		return nil, false
	}
	p, err := h.manager.Get(r.Context(), id)
	if err != nil {
		h.respondOpError(w, err)
		return nil, false
	}
	return p, true
}

func (h *Handler) projectSegment(w http.ResponseWriter, r *http.Request) (*pipeline.Pipeline, int, bool) {
	p, ok := h.project(w, r)
	if !ok {
		return nil, 0, false
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 1 {
		respondError(w, http.StatusBadRequest, "Invalid segment index")
		return nil, 0, false
	}
	return p, index, true
}

// respondOpError maps pipeline errors onto HTTP statuses.
func (h *Handler) respondOpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrProjectNotFound):
		respondError(w, http.StatusNotFound, "Project not found")
	case errors.Is(err, pipeline.ErrInvalidIndex):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, pipeline.ErrImagesUnconfirmed),
		errors.Is(err, pipeline.ErrVideosUnconfirmed),
		errors.Is(err, pipeline.ErrInvalidTransition):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
