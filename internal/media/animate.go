package media

import (
	"context"
	"fmt"
	"log"
	"math/rand"
)

// ---------------------------------------------------------------------------
// Motion effect types — the animation fallback pans/zooms over a still image
// ---------------------------------------------------------------------------

// ClipEffect defines the type of Ken Burns / motion effect applied to a still image
type ClipEffect string

const (
	EffectZoomIn   ClipEffect = "zoom_in"   // Slow push toward center
	EffectZoomOut  ClipEffect = "zoom_out"  // Starts zoomed, pulls back wide
	EffectPanLeft  ClipEffect = "pan_left"  // Drifts right to left
	EffectPanRight ClipEffect = "pan_right" // Drifts left to right
	EffectPanUp    ClipEffect = "pan_up"    // Drifts bottom to top
	EffectPanDown  ClipEffect = "pan_down"  // Drifts top to bottom
)

// allEffects is the pool from which a random effect is chosen per segment
var allEffects = []ClipEffect{
	EffectZoomIn,
	EffectZoomOut,
	EffectPanLeft,
	EffectPanRight,
	EffectPanUp,
	EffectPanDown,
}

// RandomEffect picks a random motion effect for a segment
func RandomEffect() ClipEffect {
	return allEffects[rand.Intn(len(allEffects))]
}

// AnimateStill renders a still image into a clip of the given duration with
// a pan/zoom motion effect. This is the ANIMATION tier and the fallback when
// AI video generation fails for a segment.
func (s *FFmpegService) AnimateStill(ctx context.Context, imagePath, outputPath string, effect ClipEffect, duration float64) error {
	vf := buildMotionFilter(effect, duration)

	log.Printf("[FFmpeg] Animating still with effect=%s, duration=%.2fs", effect, duration)

	args := []string{
		"-i", imagePath,
		"-vf", vf,
		"-t", formatSeconds(duration),
		"-an",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-y",
		outputPath,
	}

	if err := s.run(ctx, args...); err != nil {
		return fmt.Errorf("ffmpeg animate still failed (effect=%s): %w", effect, err)
	}
	return nil
}

// buildMotionFilter constructs the FFmpeg -vf filter chain for a given
// effect: a zoompan over the still, scaled to the output resolution.
// Source images come back from the generator larger than the output frame,
// so panning and zooming have headroom without quality loss.
func buildMotionFilter(effect ClipEffect, duration float64) string {
	totalFrames := int(duration*videoFPS) + videoFPS // one second of slack; -t trims
	if totalFrames < videoFPS {
		totalFrames = videoFPS // minimum 1 second
	}

	var zExpr, xExpr, yExpr string

	switch effect {

	case EffectZoomIn:
		// Zoom from 1.0 → 1.3 centered
		zExpr = fmt.Sprintf("1.0+0.3*on/%d", totalFrames)
		xExpr = "iw/2-(iw/zoom/2)"
		yExpr = "ih/2-(ih/zoom/2)"

	case EffectZoomOut:
		// Zoom from 1.3 → 1.0 centered
		zExpr = fmt.Sprintf("1.3-0.3*on/%d", totalFrames)
		xExpr = "iw/2-(iw/zoom/2)"
		yExpr = "ih/2-(ih/zoom/2)"

	case EffectPanRight:
		// Fixed 1.2x zoom, camera drifts from left to right
		zExpr = "1.2"
		xExpr = fmt.Sprintf("(iw-iw/zoom)*on/%d", totalFrames)
		yExpr = "ih/2-(ih/zoom/2)"

	case EffectPanLeft:
		// Fixed 1.2x zoom, camera drifts from right to left
		zExpr = "1.2"
		xExpr = fmt.Sprintf("(iw-iw/zoom)*(1-on/%d)", totalFrames)
		yExpr = "ih/2-(ih/zoom/2)"

	case EffectPanUp:
		// Fixed 1.2x zoom, camera drifts from bottom to top
		zExpr = "1.2"
		xExpr = "iw/2-(iw/zoom/2)"
		yExpr = fmt.Sprintf("(ih-ih/zoom)*(1-on/%d)", totalFrames)

	case EffectPanDown:
		// Fixed 1.2x zoom, camera drifts from top to bottom
		zExpr = "1.2"
		xExpr = "iw/2-(iw/zoom/2)"
		yExpr = fmt.Sprintf("(ih-ih/zoom)*on/%d", totalFrames)

	default:
		zExpr = fmt.Sprintf("1.0+0.3*on/%d", totalFrames)
		xExpr = "iw/2-(iw/zoom/2)"
		yExpr = "ih/2-(ih/zoom/2)"
	}

	return fmt.Sprintf(
		"zoompan=z='%s':x='%s':y='%s':d=%d:s=%dx%d:fps=%d",
		zExpr, xExpr, yExpr,
		totalFrames,
		outputWidth, outputHeight,
		videoFPS,
	)
}
