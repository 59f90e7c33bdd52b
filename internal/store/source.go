package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Source identifies one version of a video file sampled at a given rate.
// A changed size or modification time makes a new source, which keeps stale
// landmarks out of later conversions.
type Source struct {
	ID              string
	Path            string
	Size            int64
	ModTime         time.Time
	FPS             float64
	FrameCount      int
	SampleFPS       float64
	ModelComplexity int
	// Seek is how frames were located: "time" or "frame".
	Seek      string
	CreatedAt time.Time
}

// SourceKey holds the columns that identify a source.
type SourceKey struct {
	Path            string
	Size            int64
	ModTime         time.Time
	SampleFPS       float64
	ModelComplexity int
	Seek            string
}

// SourceRepository provides access to sources.
type SourceRepository struct {
	db *sql.DB
}

// Sources returns the source repository for this store.
func (s *Store) Sources() *SourceRepository {
	return &SourceRepository{db: s.db}
}

// Create inserts a new source, assigning an ID when it has none.
func (r *SourceRepository) Create(src *Source) error {
	if src.ID == "" {
		src.ID = uuid.New().String()
	}
	src.CreatedAt = time.Now()
	if src.Seek == "" {
		src.Seek = "time"
	}

	_, err := r.db.Exec(
		`INSERT INTO sources (id, path, size, mod_time, fps, frame_count, sample_fps, model_complexity, seek, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		src.ID, src.Path, src.Size, src.ModTime.UnixNano(), src.FPS, src.FrameCount,
		src.SampleFPS, src.ModelComplexity, src.Seek, src.CreatedAt,
	)
	return err
}

// GetByKey retrieves the source matching key.
func (r *SourceRepository) GetByKey(key SourceKey) (*Source, error) {
	src := &Source{}
	var modTime int64
	seek := key.Seek
	if seek == "" {
		seek = "time"
	}

	err := r.db.QueryRow(
		`SELECT id, path, size, mod_time, fps, frame_count, sample_fps, model_complexity, seek, created_at
		 FROM sources
		 WHERE path = ? AND size = ? AND mod_time = ? AND sample_fps = ? AND model_complexity = ? AND seek = ?`,
		key.Path, key.Size, key.ModTime.UnixNano(), key.SampleFPS, key.ModelComplexity, seek,
	).Scan(&src.ID, &src.Path, &src.Size, &modTime, &src.FPS, &src.FrameCount,
		&src.SampleFPS, &src.ModelComplexity, &src.Seek, &src.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	src.ModTime = time.Unix(0, modTime)
	return src, nil
}

// Delete removes a source and its cached landmarks.
func (r *SourceRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM sources WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return rowsAffected(result)
}

// DeleteByPath removes every version of the video at path and returns how
// many were removed.
func (r *SourceRepository) DeleteByPath(path string) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM sources WHERE path = ?`, path)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
