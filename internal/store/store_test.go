package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayusman/posebake/internal/detector"
)

// newTestStore creates a new Store backed by a temporary database file.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})

	return s
}

func TestNewStore_CreatesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		t.Fatal("database file should not exist before creating store")
	}

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Fatal("database file should exist after creating store")
	}
	if s.Path() != dbPath {
		t.Errorf("expected path %q, got %q", dbPath, s.Path())
	}
}

func TestNewStore_RunsMigrations(t *testing.T) {
	s := newTestStore(t)

	for _, table := range []string{"sources", "landmark_frames", "clips"} {
		var name string
		err := s.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q should exist: %v", table, err)
		}
	}
}

func TestNewStore_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := s.Clips().Create(&Clip{Name: "walk", SourcePath: "walk.mp4", Document: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("failed to create clip: %v", err)
	}
	s.Close()

	s, err = New(dbPath)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer s.Close()

	clips, err := s.Clips().List()
	if err != nil {
		t.Fatalf("failed to list clips: %v", err)
	}
	if len(clips) != 1 {
		t.Errorf("expected 1 clip after reopening, got %d", len(clips))
	}
}

func testKey() SourceKey {
	return SourceKey{
		Path:            "/videos/walk.mp4",
		Size:            1024,
		ModTime:         time.Unix(1700000000, 123456789),
		SampleFPS:       20,
		ModelComplexity: 1,
	}
}

func createTestSource(t *testing.T, s *Store) *Source {
	t.Helper()
	key := testKey()
	src := &Source{
		Path:            key.Path,
		Size:            key.Size,
		ModTime:         key.ModTime,
		FPS:             30,
		FrameCount:      90,
		SampleFPS:       key.SampleFPS,
		ModelComplexity: key.ModelComplexity,
	}
	if err := s.Sources().Create(src); err != nil {
		t.Fatalf("failed to create source: %v", err)
	}
	return src
}

func TestSourceRepository(t *testing.T) {
	t.Run("create and get by key", func(t *testing.T) {
		s := newTestStore(t)
		src := createTestSource(t, s)

		if src.ID == "" {
			t.Fatal("expected ID to be assigned")
		}

		got, err := s.Sources().GetByKey(testKey())
		if err != nil {
			t.Fatalf("failed to get source: %v", err)
		}
		if got.ID != src.ID {
			t.Errorf("ID mismatch: got %q, want %q", got.ID, src.ID)
		}
		if !got.ModTime.Equal(src.ModTime) {
			t.Errorf("ModTime mismatch: got %v, want %v", got.ModTime, src.ModTime)
		}
		if got.FPS != 30 || got.FrameCount != 90 {
			t.Errorf("unexpected video info: fps %v, frames %d", got.FPS, got.FrameCount)
		}
		if got.Seek != "time" {
			t.Errorf("expected default seek mode time, got %q", got.Seek)
		}
	})

	t.Run("changed file is a different source", func(t *testing.T) {
		s := newTestStore(t)
		createTestSource(t, s)

		key := testKey()
		key.ModTime = key.ModTime.Add(time.Second)
		if _, err := s.Sources().GetByKey(key); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for modified file, got %v", err)
		}

		key = testKey()
		key.SampleFPS = 30
		if _, err := s.Sources().GetByKey(key); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for other sample rate, got %v", err)
		}

		key = testKey()
		key.Seek = "frame"
		if _, err := s.Sources().GetByKey(key); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for other seek mode, got %v", err)
		}
	})

	t.Run("delete cascades to landmarks", func(t *testing.T) {
		s := newTestStore(t)
		src := createTestSource(t, s)

		if err := s.Landmarks().Put(src.ID, &LandmarkFrame{Index: 0, Detection: detector.TPoseDetection()}); err != nil {
			t.Fatalf("failed to put landmarks: %v", err)
		}
		if err := s.Sources().Delete(src.ID); err != nil {
			t.Fatalf("failed to delete source: %v", err)
		}

		n, err := s.Landmarks().Count(src.ID)
		if err != nil {
			t.Fatalf("failed to count landmarks: %v", err)
		}
		if n != 0 {
			t.Errorf("expected landmarks to be deleted, got %d", n)
		}

		if err := s.Sources().Delete(src.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}
	})

	t.Run("delete by path", func(t *testing.T) {
		s := newTestStore(t)
		createTestSource(t, s)

		n, err := s.Sources().DeleteByPath(testKey().Path)
		if err != nil {
			t.Fatalf("failed to delete by path: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 source deleted, got %d", n)
		}
	})
}

func TestLandmarkRepository(t *testing.T) {
	s := newTestStore(t)
	src := createTestSource(t, s)
	repo := s.Landmarks()

	det := detector.TPoseDetection()
	if err := repo.Put(src.ID, &LandmarkFrame{Index: 3, Timestamp: 150 * time.Millisecond, Detection: det}); err != nil {
		t.Fatalf("failed to put detected frame: %v", err)
	}
	if err := repo.Put(src.ID, &LandmarkFrame{Index: 4, Timestamp: 200 * time.Millisecond}); err != nil {
		t.Fatalf("failed to put empty frame: %v", err)
	}

	t.Run("detected frame round trips", func(t *testing.T) {
		got, err := repo.Get(src.ID, 3)
		if err != nil {
			t.Fatalf("failed to get frame: %v", err)
		}
		if got.Timestamp != 150*time.Millisecond {
			t.Errorf("expected timestamp 150ms, got %v", got.Timestamp)
		}
		if got.Detection == nil {
			t.Fatal("expected detection")
		}
		if got.Detection.World != det.World {
			t.Error("world landmarks differ after round trip")
		}
		if got.Detection.Image != det.Image {
			t.Error("image landmarks differ after round trip")
		}
		if got.Detection.Score != det.Score {
			t.Errorf("expected score %v, got %v", det.Score, got.Detection.Score)
		}
	})

	t.Run("missing detection is cached too", func(t *testing.T) {
		got, err := repo.Get(src.ID, 4)
		if err != nil {
			t.Fatalf("failed to get frame: %v", err)
		}
		if got.Detection != nil {
			t.Errorf("expected no detection, got %+v", got.Detection)
		}
	})

	t.Run("unknown frame", func(t *testing.T) {
		if _, err := repo.Get(src.ID, 99); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("put replaces", func(t *testing.T) {
		if err := repo.Put(src.ID, &LandmarkFrame{Index: 3, Timestamp: 150 * time.Millisecond}); err != nil {
			t.Fatalf("failed to replace frame: %v", err)
		}
		got, err := repo.Get(src.ID, 3)
		if err != nil {
			t.Fatalf("failed to get frame: %v", err)
		}
		if got.Detection != nil {
			t.Error("expected replaced frame to have no detection")
		}

		n, err := repo.Count(src.ID)
		if err != nil {
			t.Fatalf("failed to count: %v", err)
		}
		if n != 2 {
			t.Errorf("expected 2 frames, got %d", n)
		}
	})
}

func TestClipRepository(t *testing.T) {
	s := newTestStore(t)
	repo := s.Clips()

	first := &Clip{Name: "walk", SourcePath: "/videos/walk.mp4", Frames: 40, Length: 2, Document: json.RawMessage(`{"format_version":"1.8.0"}`)}
	if err := repo.Create(first); err != nil {
		t.Fatalf("failed to create clip: %v", err)
	}
	second := &Clip{Name: "jump", SourcePath: "/videos/jump.mp4", Frames: 20, Length: 1, Document: json.RawMessage(`{}`)}
	if err := repo.Create(second); err != nil {
		t.Fatalf("failed to create clip: %v", err)
	}

	t.Run("get by id", func(t *testing.T) {
		got, err := repo.GetByID(first.ID)
		if err != nil {
			t.Fatalf("failed to get clip: %v", err)
		}
		if got.Name != "walk" || got.Frames != 40 || got.Length != 2 {
			t.Errorf("unexpected clip %+v", got)
		}
		if string(got.Document) != `{"format_version":"1.8.0"}` {
			t.Errorf("unexpected document %s", got.Document)
		}
		if got.CreatedAt.IsZero() {
			t.Error("expected CreatedAt to be set")
		}
	})

	t.Run("list newest first", func(t *testing.T) {
		clips, err := repo.List()
		if err != nil {
			t.Fatalf("failed to list clips: %v", err)
		}
		if len(clips) != 2 {
			t.Fatalf("expected 2 clips, got %d", len(clips))
		}
		if clips[0].ID != second.ID {
			t.Errorf("expected newest clip first, got %s", clips[0].Name)
		}
		if clips[0].Document != nil {
			t.Error("expected List to omit documents")
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := repo.Delete(first.ID); err != nil {
			t.Fatalf("failed to delete clip: %v", err)
		}
		if _, err := repo.GetByID(first.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		if err := repo.Delete(first.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}
	})
}
