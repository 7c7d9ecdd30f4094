package media

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Output / rendering constants — 1080p landscape at 30fps. Clips carry no
// audio track of their own; the song is muxed in at composition time.
const (
	outputWidth  = 1920
	outputHeight = 1080
	videoFPS     = 30
)

// ---------------------------------------------------------------------------
// FFmpegService
// ---------------------------------------------------------------------------

type FFmpegService struct {
	tempDir string
}

func NewFFmpegService(tempDir string) *FFmpegService {
	// Create temp directory if it doesn't exist
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		panic(fmt.Sprintf("failed to create temp dir: %v", err))
	}

	return &FFmpegService{
		tempDir: tempDir,
	}
}

func (s *FFmpegService) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// ProbeDuration returns the duration of a media file in seconds.
func (s *FFmpegService) ProbeDuration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration failed: %w", err)
	}

	var durationSec float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(output)), "%f", &durationSec); err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}

	return durationSec, nil
}

// ProbeFrameRate returns the native frame rate of a video stream. ffprobe
// reports it as a rational like "30000/1001".
func (s *FFmpegService) ProbeFrameRate(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=r_frame_rate",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe frame rate failed: %w", err)
	}

	return parseFrameRate(strings.TrimSpace(string(output)))
}

// parseFrameRate converts ffprobe's rational frame rate ("30/1",
// "30000/1001") or a bare number into a float.
func parseFrameRate(raw string) (float64, error) {
	if raw == "" {
		return 0, fmt.Errorf("empty frame rate")
	}
	if num, den, ok := strings.Cut(raw, "/"); ok {
		n, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, fmt.Errorf("failed to parse frame rate %q: %w", raw, err)
		}
		d, err := strconv.ParseFloat(den, 64)
		if err != nil || d == 0 {
			return 0, fmt.Errorf("failed to parse frame rate %q", raw)
		}
		return n / d, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse frame rate %q: %w", raw, err)
	}
	return f, nil
}

// Trim re-encodes the clip cut down to the given duration.
func (s *FFmpegService) Trim(ctx context.Context, inputPath, outputPath string, duration float64) error {
	args := []string{
		"-i", inputPath,
		"-t", formatSeconds(duration),
		"-an",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-y",
		outputPath,
	}

	if err := s.run(ctx, args...); err != nil {
		return fmt.Errorf("ffmpeg trim failed: %w", err)
	}
	return nil
}

// Stretch rescales presentation timestamps so the whole clip plays out over
// ratio times its original length (ratio > 1 slows the clip down).
func (s *FFmpegService) Stretch(ctx context.Context, inputPath, outputPath string, ratio float64) error {
	args := []string{
		"-i", inputPath,
		"-filter:v", fmt.Sprintf("setpts=%.6f*PTS", ratio),
		"-an",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-y",
		outputPath,
	}

	if err := s.run(ctx, args...); err != nil {
		return fmt.Errorf("ffmpeg stretch failed: %w", err)
	}
	return nil
}

// ExtractLastFrame writes the final frame of a video as a PNG. Used both for
// freeze-frame extension and as the reference image linking chained
// generation calls.
func (s *FFmpegService) ExtractLastFrame(ctx context.Context, videoPath, outputPath string) error {
	args := []string{
		"-sseof", "-0.5",
		"-i", videoPath,
		"-update", "1",
		"-vframes", "1",
		"-q:v", "2",
		"-y",
		outputPath,
	}

	if err := s.run(ctx, args...); err != nil {
		return fmt.Errorf("ffmpeg last frame extraction failed: %w", err)
	}
	return nil
}

// StillClip renders a still image into a video of the given duration at the
// given frame rate.
func (s *FFmpegService) StillClip(ctx context.Context, imagePath, outputPath string, duration, fps float64) error {
	if fps <= 0 {
		fps = videoFPS
	}
	args := []string{
		"-loop", "1",
		"-i", imagePath,
		"-t", formatSeconds(duration),
		"-r", formatSeconds(fps),
		"-vf", fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2", outputWidth, outputHeight, outputWidth, outputHeight),
		"-an",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-y",
		outputPath,
	}

	if err := s.run(ctx, args...); err != nil {
		return fmt.Errorf("ffmpeg still clip failed: %w", err)
	}
	return nil
}

// ExtendWithFreeze appends extra seconds of the clip's final frame using
// tpad's clone mode.
func (s *FFmpegService) ExtendWithFreeze(ctx context.Context, inputPath, outputPath string, extra float64) error {
	args := []string{
		"-i", inputPath,
		"-vf", fmt.Sprintf("tpad=stop_mode=clone:stop_duration=%s", formatSeconds(extra)),
		"-an",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-y",
		outputPath,
	}

	if err := s.run(ctx, args...); err != nil {
		return fmt.Errorf("ffmpeg freeze extend failed: %w", err)
	}
	return nil
}

// Concat joins clips in order. Stream copy via a concat list is the fast
// path and always succeeds for uniformly encoded clips; reencode forces a
// re-encode for inputs with mismatched parameters (e.g. a synthesized still
// appended to a generated clip).
func (s *FFmpegService) Concat(ctx context.Context, clipPaths []string, outputPath string, reencode bool) error {
	if len(clipPaths) == 0 {
		return fmt.Errorf("no clips to concatenate")
	}

	// Create a concat list file
	listPath := filepath.Join(s.tempDir, fmt.Sprintf("concat_%s.txt", filepath.Base(outputPath)))
	f, err := os.Create(listPath)
	if err != nil {
		return fmt.Errorf("failed to create concat list: %w", err)
	}

	for _, path := range clipPaths {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		fmt.Fprintf(f, "file '%s'\n", abs)
	}
	f.Close()
	defer os.Remove(listPath)

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
	}
	if reencode {
		args = append(args, "-an", "-c:v", "libx264", "-pix_fmt", "yuv420p")
	} else {
		args = append(args, "-c", "copy")
	}
	args = append(args, "-y", outputPath)

	if err := s.run(ctx, args...); err != nil {
		return fmt.Errorf("ffmpeg concatenate failed: %w", err)
	}
	return nil
}

// TransitionChain renders all clips into one video connected by xfade
// transitions. Each transition starts at the cumulative duration so far
// minus the transition duration. Fails for fewer than two clips or when any
// clip is shorter than the transition itself; callers fall back to Concat.
func (s *FFmpegService) TransitionChain(ctx context.Context, clipPaths []string, durations []float64, outputPath, transitionType string, transitionDur float64) error {
	if len(clipPaths) < 2 {
		return fmt.Errorf("transition chain needs at least 2 clips, got %d", len(clipPaths))
	}
	if len(clipPaths) != len(durations) {
		return fmt.Errorf("clip/duration count mismatch: %d vs %d", len(clipPaths), len(durations))
	}

	xfade := xfadeTransition(transitionType)

	var args []string
	for _, path := range clipPaths {
		args = append(args, "-i", path)
	}

	var filter strings.Builder
	prev := "[0:v]"
	offset := 0.0
	for i := 1; i < len(clipPaths); i++ {
		offset += durations[i-1] - transitionDur
		out := fmt.Sprintf("[x%d]", i)
		if i == len(clipPaths)-1 {
			out = "[v]"
		}
		fmt.Fprintf(&filter, "%s[%d:v]xfade=transition=%s:duration=%s:offset=%s%s;",
			prev, i, xfade, formatSeconds(transitionDur), formatSeconds(offset), out)
		prev = out
	}

	args = append(args,
		"-filter_complex", strings.TrimSuffix(filter.String(), ";"),
		"-map", "[v]",
		"-an",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-y",
		outputPath,
	)

	log.Printf("[FFmpeg] Rendering transition chain (%d clips, %s, %.2fs)", len(clipPaths), xfade, transitionDur)

	if err := s.run(ctx, args...); err != nil {
		return fmt.Errorf("ffmpeg transition chain failed: %w", err)
	}
	return nil
}

// xfadeTransition maps our transition names onto ffmpeg xfade transitions.
func xfadeTransition(name string) string {
	switch name {
	case "fade":
		return "fadeblack"
	case "wipe-left", "wipeleft":
		return "wipeleft"
	case "wipe-right", "wiperight":
		return "wiperight"
	default: // crossfade
		return "fade"
	}
}

// BurnSubtitles hard-burns an ASS subtitle file into the video.
func (s *FFmpegService) BurnSubtitles(ctx context.Context, videoPath, subtitlePath, outputPath string) error {
	escapedPath := escapeFFmpegFilterPath(subtitlePath)

	log.Printf("[FFmpeg] Burning in subtitles from %s", subtitlePath)

	args := []string{
		"-i", videoPath,
		"-vf", fmt.Sprintf("ass='%s'", escapedPath),
		"-an",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-y",
		outputPath,
	}

	if err := s.run(ctx, args...); err != nil {
		return fmt.Errorf("ffmpeg subtitle burn failed: %w", err)
	}
	return nil
}

// MuxAudio puts the song under the video, copying the video stream and
// cutting the container at the audio's duration. The audio track is the
// duration authority — callers freeze-extend the video first if it runs
// short.
func (s *FFmpegService) MuxAudio(ctx context.Context, videoPath, audioPath, outputPath string, audioDuration float64) error {
	args := []string{
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v",
		"-map", "1:a",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-t", formatSeconds(audioDuration),
		"-y",
		outputPath,
	}

	if err := s.run(ctx, args...); err != nil {
		return fmt.Errorf("ffmpeg audio mux failed: %w", err)
	}
	return nil
}

// escapeFFmpegFilterPath escapes special characters in file paths for FFmpeg filter syntax.
// FFmpeg filter strings treat colons, backslashes, and single quotes specially.
func escapeFFmpegFilterPath(path string) string {
	path = strings.ReplaceAll(path, "\\", "\\\\")
	path = strings.ReplaceAll(path, ":", "\\:")
	path = strings.ReplaceAll(path, "'", "'\\''")
	return path
}

// formatSeconds renders a duration for ffmpeg args without scientific
// notation or trailing noise.
func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// CreateTempFile creates a temporary file path in the service's temp directory
func (s *FFmpegService) CreateTempFile(filename string) string {
	return filepath.Join(s.tempDir, filename)
}

// Cleanup removes temporary files
func (s *FFmpegService) Cleanup(paths ...string) {
	for _, path := range paths {
		os.Remove(path)
	}
}
