package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/posebake/internal/detector"
)

// LandmarkFrame is the cached detector output for one sampled timestamp.
// Detection is nil when the detector found nobody in the frame.
type LandmarkFrame struct {
	Index     int
	Timestamp time.Duration
	Detection *detector.Detection
}

// LandmarkRepository provides access to cached landmarks.
type LandmarkRepository struct {
	db *sql.DB
}

// Landmarks returns the landmark repository for this store.
func (s *Store) Landmarks() *LandmarkRepository {
	return &LandmarkRepository{db: s.db}
}

// Put stores or replaces one frame for the source.
func (r *LandmarkRepository) Put(sourceID string, f *LandmarkFrame) error {
	var world, image sql.NullString
	var score float64
	detected := 0

	if f.Detection != nil {
		w, err := json.Marshal(f.Detection.World.Points)
		if err != nil {
			return fmt.Errorf("encode world landmarks: %w", err)
		}
		im, err := json.Marshal(f.Detection.Image.Points)
		if err != nil {
			return fmt.Errorf("encode image landmarks: %w", err)
		}
		world = sql.NullString{String: string(w), Valid: true}
		image = sql.NullString{String: string(im), Valid: true}
		score = f.Detection.Score
		detected = 1
	}

	_, err := r.db.Exec(
		`INSERT OR REPLACE INTO landmark_frames (source_id, frame_index, timestamp_ms, detected, world, image, score)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sourceID, f.Index, f.Timestamp.Milliseconds(), detected, world, image, score,
	)
	return err
}

// Get retrieves one frame for the source.
func (r *LandmarkRepository) Get(sourceID string, index int) (*LandmarkFrame, error) {
	var (
		timestampMS  int64
		detected     int
		world, image sql.NullString
		score        float64
	)

	err := r.db.QueryRow(
		`SELECT timestamp_ms, detected, world, image, score
		 FROM landmark_frames WHERE source_id = ? AND frame_index = ?`,
		sourceID, index,
	).Scan(&timestampMS, &detected, &world, &image, &score)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	f := &LandmarkFrame{
		Index:     index,
		Timestamp: time.Duration(timestampMS) * time.Millisecond,
	}
	if detected == 0 {
		return f, nil
	}

	det := &detector.Detection{Score: score}
	if err := decodePoints(world.String, &det.World); err != nil {
		return nil, fmt.Errorf("frame %d world landmarks: %w", index, err)
	}
	if err := decodePoints(image.String, &det.Image); err != nil {
		return nil, fmt.Errorf("frame %d image landmarks: %w", index, err)
	}
	f.Detection = det
	return f, nil
}

// Count returns how many frames are cached for the source.
func (r *LandmarkRepository) Count(sourceID string) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM landmark_frames WHERE source_id = ?`, sourceID).Scan(&n)
	return n, err
}

func decodePoints(data string, lm *detector.PoseLandmarks) error {
	var points []detector.Point3D
	if err := json.Unmarshal([]byte(data), &points); err != nil {
		return err
	}
	parsed, err := detector.NewPoseLandmarks(points)
	if err != nil {
		return err
	}
	*lm = parsed
	return nil
}
