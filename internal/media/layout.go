package media

import (
	"fmt"
	"os"
	"path/filepath"
)

// ProjectLayout is the per-project media tree:
//
//	<root>/images/image_<index>.png        generated stills
//	<root>/videos/video_<index>.mp4        AI-generated clips
//	<root>/videos/animated_<index>.mp4     animation/static fallback clips
//	<root>/output/<name>.mp4               final composition (+ retained .ass)
type ProjectLayout struct {
	Root string
}

func NewProjectLayout(workRoot, projectID string) ProjectLayout {
	return ProjectLayout{Root: filepath.Join(workRoot, projectID)}
}

func (l ProjectLayout) ImagesDir() string { return filepath.Join(l.Root, "images") }
func (l ProjectLayout) VideosDir() string { return filepath.Join(l.Root, "videos") }
func (l ProjectLayout) OutputDir() string { return filepath.Join(l.Root, "output") }

func (l ProjectLayout) ImagePath(index int) string {
	return filepath.Join(l.ImagesDir(), fmt.Sprintf("image_%d.png", index))
}

func (l ProjectLayout) VideoPath(index int) string {
	return filepath.Join(l.VideosDir(), fmt.Sprintf("video_%d.mp4", index))
}

func (l ProjectLayout) AnimatedPath(index int) string {
	return filepath.Join(l.VideosDir(), fmt.Sprintf("animated_%d.mp4", index))
}

func (l ProjectLayout) EnsureDirs() error {
	for _, dir := range []string{l.ImagesDir(), l.VideosDir(), l.OutputDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
