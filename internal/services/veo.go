package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/renlei/mvstudio/internal/media"
	"github.com/renlei/mvstudio/internal/models"
)

// ---------------------------------------------------------------------------
// Veo Video Generation Service
// Uses the Google Gen AI SDK to generate clips from still keyframes. The
// reference image is passed as the first frame; chained generation for long
// segments feeds the previous sub-clip's final frame back in through the
// same path.
// ---------------------------------------------------------------------------

const (
	defaultVeoModel    = "veo-3.1-generate-preview"
	veoPollInterval    = 10 * time.Second
	veoMaxPollDuration = 5 * time.Minute // Max time to wait for a single clip
)

// VeoService handles clip generation for VIDEO-tier segments. It satisfies
// media.VideoGenerator. When nil or disabled, the worker falls back to
// motion effects on still images.
type VeoService struct {
	apiKey string
	model  string
	ff     *media.FFmpegService
}

var _ media.VideoGenerator = (*VeoService)(nil)

// NewVeoService creates a new Veo video generation service.
// apiKey: the Gemini API key (same key works for both Gemini and Veo)
// model: the Veo model to use (empty string defaults to veo-3.1-generate-preview)
func NewVeoService(apiKey, model string, ff *media.FFmpegService) *VeoService {
	if model == "" {
		model = defaultVeoModel
	}
	return &VeoService{
		apiKey: apiKey,
		model:  model,
		ff:     ff,
	}
}

// buildVeoPrompt wraps the segment's scene prompt with motion direction
// suited to a music video: expressive but continuous movement, no style
// drift from the reference frame, and no generated audio (the song is
// muxed at composition).
func buildVeoPrompt(scenePrompt string, seg models.ClassifiedSegment) string {
	mood := "Cinematic, emotionally resonant motion that follows the energy of a song."
	if seg.IsSpecial() {
		mood = "Slow, atmospheric instrumental-break motion: drifting camera, ambient movement, no sudden action."
	}

	return fmt.Sprintf(`%s

Visual style direction: Match the artistic style of the input image exactly. Maintain its color grading, lighting, and rendering quality — the clip should look like the frame has come to life, with no style drift between frames.

Motion direction: %s Favor grounded, natural movement:
- Camera drift, push-in, or slow pan that follows the subject
- Hair, fabric, smoke, or particles moving with the scene
- Subject gestures and expressions that read as performance
- Environmental motion (rain, leaves, city lights, crowd sway)

Avoid: jerky cuts, morphing, cartoonish motion, or style changes between frames.

Important: This is a fictional artistic scene. All subjects are unnamed, generic figures. Do not identify or associate any subject with a real person, celebrity, or public figure.

No generated audio or dialogue. Silent video only.`, scenePrompt, mood)
}

// Generate produces one clip from a reference image and writes it to
// outputPath. It blocks while polling the async operation — intentional,
// each segment is processed in its own goroutine. Returns the measured
// duration of the produced clip.
func (s *VeoService) Generate(ctx context.Context, seg models.ClassifiedSegment, imagePath, outputPath string, duration float64) (float64, error) {
	imageData, err := os.ReadFile(imagePath)
	if err != nil {
		return 0, fmt.Errorf("failed to read reference image: %w", err)
	}

	videoBytes, err := s.generateClip(ctx, buildVeoPrompt(seg.Prompt, seg), imageData, imageMimeType(imagePath), duration)
	if err != nil {
		return 0, err
	}

	if err := os.WriteFile(outputPath, videoBytes, 0644); err != nil {
		return 0, fmt.Errorf("failed to write generated clip: %w", err)
	}

	if s.ff != nil {
		if actual, err := s.ff.ProbeDuration(ctx, outputPath); err == nil {
			return actual, nil
		}
	}
	return duration, nil
}

// generateClip runs one async Veo operation to completion and returns the
// raw MP4 bytes.
func (s *VeoService) generateClip(ctx context.Context, prompt string, imageData []byte, mimeType string, duration float64) ([]byte, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	firstFrame := &genai.Image{
		ImageBytes: imageData,
		MIMEType:   mimeType,
	}

	config := &genai.GenerateVideosConfig{
		AspectRatio:      "16:9",
		Resolution:       "1080p",
		PersonGeneration: "allow_adult",
		NumberOfVideos:   1,
	}
	if duration > 0 {
		config.DurationSeconds = genai.Ptr(int32(math.Round(duration)))
	}

	log.Printf("[Veo] Starting clip generation (model=%s, duration=%.1fs, imageSize=%d bytes)", s.model, duration, len(imageData))

	operation, err := client.Models.GenerateVideos(ctx, s.model, prompt, firstFrame, config)
	if err != nil {
		return nil, fmt.Errorf("failed to start video generation: %w", err)
	}

	log.Printf("[Veo] Operation started: %s", operation.Name)

	// Poll until done, cancelled, or timed out
	deadline := time.Now().Add(veoMaxPollDuration)
	pollCount := 0
	for !operation.Done {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("video generation timed out after %v (polled %d times)", veoMaxPollDuration, pollCount)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("video generation cancelled: %w", ctx.Err())
		case <-time.After(veoPollInterval):
		}

		pollCount++
		operation, err = client.Operations.GetVideosOperation(ctx, operation, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to poll operation (attempt %d): %w", pollCount, err)
		}

		log.Printf("[Veo] Poll %d: done=%v", pollCount, operation.Done)
	}

	if operation.Error != nil && len(operation.Error) > 0 {
		errJSON, _ := json.Marshal(operation.Error)
		return nil, fmt.Errorf("video generation operation failed: %s", string(errJSON))
	}

	if operation.Response == nil {
		if operation.Metadata != nil {
			metaJSON, _ := json.Marshal(operation.Metadata)
			log.Printf("[Veo] Operation metadata: %s", string(metaJSON))
		}
		return nil, fmt.Errorf("no response in completed operation after %d polls (operation: %s)", pollCount, operation.Name)
	}

	if operation.Response.RAIMediaFilteredCount > 0 {
		reasons := "unknown"
		if len(operation.Response.RAIMediaFilteredReasons) > 0 {
			reasons = strings.Join(operation.Response.RAIMediaFilteredReasons, ", ")
		}
		return nil, fmt.Errorf("video blocked by safety filters: %d video(s) filtered, reasons: %s", operation.Response.RAIMediaFilteredCount, reasons)
	}

	if len(operation.Response.GeneratedVideos) == 0 {
		respJSON, _ := json.Marshal(operation.Response)
		return nil, fmt.Errorf("no videos in response (full response: %s)", string(respJSON))
	}

	video := operation.Response.GeneratedVideos[0]
	if video.Video == nil {
		return nil, fmt.Errorf("generated video object is nil")
	}

	log.Printf("[Veo] Clip ready, downloading...")

	downloadURI := genai.NewDownloadURIFromVideo(video.Video)
	videoBytes, err := client.Files.Download(ctx, downloadURI, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download generated video: %w", err)
	}

	if len(videoBytes) == 0 {
		return nil, fmt.Errorf("downloaded video is empty (0 bytes)")
	}

	log.Printf("[Veo] Clip generated successfully (%d bytes, %d polls)", len(videoBytes), pollCount)

	return videoBytes, nil
}

func imageMimeType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "image/png"
	}
}
