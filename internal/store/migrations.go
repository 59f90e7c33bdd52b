package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Sources table - one row per video file version and sampling setup
		`CREATE TABLE IF NOT EXISTS sources (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			size INTEGER NOT NULL,
			mod_time INTEGER NOT NULL,
			fps REAL NOT NULL,
			frame_count INTEGER NOT NULL,
			sample_fps REAL NOT NULL,
			model_complexity INTEGER NOT NULL DEFAULT 1,
			seek TEXT NOT NULL DEFAULT 'time',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(path, size, mod_time, sample_fps, model_complexity, seek)
		)`,

		// Landmark frames table - detector output per sampled timestamp
		`CREATE TABLE IF NOT EXISTS landmark_frames (
			source_id TEXT NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
			frame_index INTEGER NOT NULL,
			timestamp_ms INTEGER NOT NULL,
			detected INTEGER NOT NULL,
			world TEXT,
			image TEXT,
			score REAL NOT NULL DEFAULT 0,
			PRIMARY KEY (source_id, frame_index)
		)`,

		// Clips table - converted animations, one document per clip
		`CREATE TABLE IF NOT EXISTS clips (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			source_path TEXT NOT NULL,
			frames INTEGER NOT NULL,
			length REAL NOT NULL,
			document TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_clips_name ON clips(name)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
