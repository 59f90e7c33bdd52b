package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Clip is a converted animation kept for later download.
type Clip struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	SourcePath string          `json:"source_path"`
	Frames     int             `json:"frames"`
	Length     float64         `json:"length"`
	Document   json.RawMessage `json:"-"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ClipRepository provides CRUD operations for clips.
type ClipRepository struct {
	db *sql.DB
}

// Clips returns the clip repository for this store.
func (s *Store) Clips() *ClipRepository {
	return &ClipRepository{db: s.db}
}

// Create inserts a new clip, assigning an ID when it has none.
func (r *ClipRepository) Create(c *Clip) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.CreatedAt = time.Now()

	_, err := r.db.Exec(
		`INSERT INTO clips (id, name, source_path, frames, length, document, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.SourcePath, c.Frames, c.Length, string(c.Document), c.CreatedAt,
	)
	return err
}

// GetByID retrieves a clip, including its document, by ID.
func (r *ClipRepository) GetByID(id string) (*Clip, error) {
	c := &Clip{}
	var document string

	err := r.db.QueryRow(
		`SELECT id, name, source_path, frames, length, document, created_at
		 FROM clips WHERE id = ?`,
		id,
	).Scan(&c.ID, &c.Name, &c.SourcePath, &c.Frames, &c.Length, &document, &c.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	c.Document = json.RawMessage(document)
	return c, nil
}

// List retrieves all clips without their documents, newest first.
func (r *ClipRepository) List() ([]*Clip, error) {
	rows, err := r.db.Query(
		`SELECT id, name, source_path, frames, length, created_at
		 FROM clips ORDER BY created_at DESC, rowid DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clips []*Clip
	for rows.Next() {
		c := &Clip{}
		if err := rows.Scan(&c.ID, &c.Name, &c.SourcePath, &c.Frames, &c.Length, &c.CreatedAt); err != nil {
			return nil, err
		}
		clips = append(clips, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return clips, nil
}

// Delete removes a clip by ID.
func (r *ClipRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM clips WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return rowsAffected(result)
}
