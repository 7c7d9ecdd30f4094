package media

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/renlei/mvstudio/internal/models"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
}

func classifiedSeg(index int, rt models.RenderType) models.ClassifiedSegment {
	return models.ClassifiedSegment{
		LyricSegment: models.LyricSegment{Index: index, StartTime: float64(index) * 5, EndTime: float64(index)*5 + 5, Duration: 5},
		RenderType:   rt,
	}
}

func TestResolveClipsPrefersAssignedTier(t *testing.T) {
	layout := NewProjectLayout(t.TempDir(), "p1")
	touch(t, layout.VideoPath(1))
	touch(t, layout.AnimatedPath(1))

	a := &Assembler{}
	resolved := a.resolveClips(context.Background(), layout, []models.ClassifiedSegment{
		classifiedSeg(1, models.RenderVideo),
	})

	if len(resolved) != 1 {
		t.Fatalf("resolved %d clips, want 1", len(resolved))
	}
	if resolved[0].path != layout.VideoPath(1) {
		t.Errorf("VIDEO segment resolved to %s, want the generated clip", resolved[0].path)
	}
}

func TestResolveClipsFallsBackAcrossTiers(t *testing.T) {
	layout := NewProjectLayout(t.TempDir(), "p1")
	// VIDEO segment whose generated clip is missing, animated fallback present.
	touch(t, layout.AnimatedPath(1))
	// ANIMATION segment whose animated clip is missing, generated clip present.
	touch(t, layout.VideoPath(2))

	a := &Assembler{}
	resolved := a.resolveClips(context.Background(), layout, []models.ClassifiedSegment{
		classifiedSeg(1, models.RenderVideo),
		classifiedSeg(2, models.RenderAnimation),
	})

	if len(resolved) != 2 {
		t.Fatalf("resolved %d clips, want 2", len(resolved))
	}
	if resolved[0].path != layout.AnimatedPath(1) {
		t.Errorf("segment 1 resolved to %s, want the animated fallback", resolved[0].path)
	}
	if resolved[1].path != layout.VideoPath(2) {
		t.Errorf("segment 2 resolved to %s, want the generated clip", resolved[1].path)
	}
}

func TestResolveClipsSkipsMissing(t *testing.T) {
	layout := NewProjectLayout(t.TempDir(), "p1")
	touch(t, layout.AnimatedPath(1))
	// Segment 2 has no clip at all.
	touch(t, layout.AnimatedPath(3))

	a := &Assembler{}
	resolved := a.resolveClips(context.Background(), layout, []models.ClassifiedSegment{
		classifiedSeg(1, models.RenderAnimation),
		classifiedSeg(2, models.RenderAnimation),
		classifiedSeg(3, models.RenderStatic),
	})

	if len(resolved) != 2 {
		t.Fatalf("resolved %d clips, want 2 (segment 2 skipped)", len(resolved))
	}
	if resolved[0].seg.Index != 1 || resolved[1].seg.Index != 3 {
		t.Errorf("surviving segments keep their indices, got %d and %d", resolved[0].seg.Index, resolved[1].seg.Index)
	}
}

func TestProjectLayoutPaths(t *testing.T) {
	layout := NewProjectLayout("/work", "abc")

	if got := layout.ImagePath(3); got != filepath.Join("/work", "abc", "images", "image_3.png") {
		t.Errorf("ImagePath = %s", got)
	}
	if got := layout.VideoPath(3); got != filepath.Join("/work", "abc", "videos", "video_3.mp4") {
		t.Errorf("VideoPath = %s", got)
	}
	if got := layout.AnimatedPath(3); got != filepath.Join("/work", "abc", "videos", "animated_3.mp4") {
		t.Errorf("AnimatedPath = %s", got)
	}
}

func TestLyricWindows(t *testing.T) {
	segs := []models.ClassifiedSegment{
		classifiedSeg(1, models.RenderVideo),
		classifiedSeg(2, models.RenderStatic),
	}
	segs[0].Text = "line one"

	windows := lyricWindows(segs)
	if len(windows) != 2 {
		t.Fatalf("len = %d", len(windows))
	}
	if windows[0].Text != "line one" || windows[0].StartTime != 5 {
		t.Errorf("window 0 = %+v", windows[0])
	}
}

func TestXfadeTransition(t *testing.T) {
	tests := []struct{ in, want string }{
		{"crossfade", "fade"},
		{"fade", "fadeblack"},
		{"wipe-left", "wipeleft"},
		{"wipe-right", "wiperight"},
		{"", "fade"},
		{"unknown", "fade"},
	}
	for _, tt := range tests {
		if got := xfadeTransition(tt.in); got != tt.want {
			t.Errorf("xfadeTransition(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
