package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/renlei/mvstudio/internal/models"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	st, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return st
}

func testSnapshot() *models.Snapshot {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.Snapshot{
		Version:  models.SnapshotVersion,
		ID:       uuid.New(),
		Status:   models.StatusLyricsReady,
		Progress: 20,
		Data: models.ProjectData{
			Title:     "test song",
			AudioPath: "/songs/test.mp3",
			Lyrics: []models.LyricSegment{
				{Index: 1, Text: "hello", StartTime: 0, EndTime: 2, Duration: 2},
			},
			ImageConfirmation: models.NewConfirmationSet([]int{1}),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	snap := testSnapshot()
	if err := st.Save(ctx, snap); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := st.Load(ctx, snap.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.Status != snap.Status || loaded.Progress != snap.Progress {
		t.Errorf("loaded status/progress = %s/%d, want %s/%d", loaded.Status, loaded.Progress, snap.Status, snap.Progress)
	}
	if len(loaded.Data.Lyrics) != 1 || loaded.Data.Lyrics[0].Text != "hello" {
		t.Errorf("lyrics did not survive the roundtrip: %+v", loaded.Data.Lyrics)
	}
	if loaded.Data.ImageConfirmation == nil || !loaded.Data.ImageConfirmation.Has(1) {
		t.Errorf("confirmation set did not survive the roundtrip")
	}
}

func TestSaveOverwrites(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	snap := testSnapshot()
	if err := st.Save(ctx, snap); err != nil {
		t.Fatalf("Save: %v", err)
	}
	snap.Status = models.StatusGeneratingImages
	snap.Progress = 40
	if err := st.Save(ctx, snap); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	loaded, err := st.Load(ctx, snap.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Status != models.StatusGeneratingImages || loaded.Progress != 40 {
		t.Errorf("overwrite lost: status=%s progress=%d", loaded.Status, loaded.Progress)
	}
}

func TestLoadMissing(t *testing.T) {
	st := newTestStore(t)
	if _, err := st.Load(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load of missing id: err = %v, want ErrNotFound", err)
	}
}

func TestLoadRejectsWrongVersion(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	snap := testSnapshot()
	snap.Version = models.SnapshotVersion + 1
	if err := st.Save(ctx, snap); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := st.Load(ctx, snap.ID); err == nil {
		t.Error("Load accepted a snapshot with a future version")
	}
}

func TestListSkipsStrayFiles(t *testing.T) {
	dir := t.TempDir()
	st, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	a, b := testSnapshot(), testSnapshot()
	if err := st.Save(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := st.Save(ctx, b); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.json"), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	ids, err := st.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("List returned %d ids, want 2", len(ids))
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	st, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	if err := st.Save(context.Background(), testSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}
