package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	_ "modernc.org/sqlite"

	"github.com/baiqwe/vidguide/internal/types"
)

// ErrNoProject is returned by ClaimNextPending when the queue is empty.
var ErrNoProject = errors.New("no pending project")

// maxErrorLen bounds the persisted error message.
const maxErrorLen = 500

// Store handles SQLite database operations for projects and steps
type Store struct {
	db *sql.DB
}

// New opens (and if needed creates) the project database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		video_source_url TEXT NOT NULL,
		status TEXT NOT NULL,
		generation_mode TEXT NOT NULL,
		video_duration_seconds REAL NOT NULL DEFAULT 0,
		title TEXT NOT NULL DEFAULT '',
		credits_cost INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS steps (
		project_id TEXT NOT NULL,
		step_order INTEGER NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		timestamp_seconds REAL NOT NULL,
		image_path TEXT NOT NULL DEFAULT '',
		UNIQUE(project_id, step_order)
	);

	CREATE TABLE IF NOT EXISTS prompt_templates (
		mode TEXT PRIMARY KEY,
		template TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_projects_status ON projects(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_steps_project ON steps(project_id, step_order);
	`

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// CreateProject inserts a new project in pending state.
func (s *Store) CreateProject(p *types.Project) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.Status = types.StatusPending

	_, err := s.db.Exec(`
	INSERT INTO projects (id, video_source_url, status, generation_mode, video_duration_seconds, title, credits_cost, error_message, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, '', ?)`,
		p.ID, p.VideoSourceURL, p.Status, p.GenerationMode, p.DurationSeconds,
		p.Title, p.CreditsCost, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// ClaimNextPending marks the oldest pending project as processing and returns
// it. The update is conditional on the row still being pending, so two
// workers can never claim the same project: the loser's update matches zero
// rows and it moves on to the next candidate.
func (s *Store) ClaimNextPending() (*types.Project, error) {
	for {
		var id string
		err := s.db.QueryRow(`
		SELECT id FROM projects WHERE status = ? ORDER BY created_at LIMIT 1`,
			types.StatusPending).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoProject
		}
		if err != nil {
			return nil, fmt.Errorf("failed to select pending project: %w", err)
		}

		res, err := s.db.Exec(`
		UPDATE projects SET status = ? WHERE id = ? AND status = ?`,
			types.StatusProcessing, id, types.StatusPending)
		if err != nil {
			return nil, fmt.Errorf("failed to claim project %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to claim project %s: %w", id, err)
		}
		if n == 0 {
			// Lost the race for this row, try the next oldest.
			continue
		}
		return s.GetProject(id)
	}
}

// GetProject retrieves a project by ID.
func (s *Store) GetProject(id string) (*types.Project, error) {
	row := s.db.QueryRow(`
	SELECT id, video_source_url, status, generation_mode, video_duration_seconds, title, credits_cost, error_message, created_at
	FROM projects WHERE id = ?`, id)

	p := &types.Project{}
	err := row.Scan(&p.ID, &p.VideoSourceURL, &p.Status, &p.GenerationMode,
		&p.DurationSeconds, &p.Title, &p.CreditsCost, &p.ErrorMessage, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get project %s: %w", id, err)
	}
	return p, nil
}

// ListProjects returns the most recently created projects.
func (s *Store) ListProjects(limit int) ([]*types.Project, error) {
	rows, err := s.db.Query(`
	SELECT id, video_source_url, status, generation_mode, video_duration_seconds, title, credits_cost, error_message, created_at
	FROM projects ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*types.Project
	for rows.Next() {
		p := &types.Project{}
		if err := rows.Scan(&p.ID, &p.VideoSourceURL, &p.Status, &p.GenerationMode,
			&p.DurationSeconds, &p.Title, &p.CreditsCost, &p.ErrorMessage, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// SetDuration persists the resolved video duration.
func (s *Store) SetDuration(id string, seconds float64) error {
	_, err := s.db.Exec(`UPDATE projects SET video_duration_seconds = ? WHERE id = ?`, seconds, id)
	if err != nil {
		return fmt.Errorf("failed to set duration for %s: %w", id, err)
	}
	return nil
}

// SetTitle persists the display title derived from the analysis summary.
func (s *Store) SetTitle(id, title string) error {
	_, err := s.db.Exec(`UPDATE projects SET title = ? WHERE id = ?`, title, id)
	if err != nil {
		return fmt.Errorf("failed to set title for %s: %w", id, err)
	}
	return nil
}

// InsertStep persists one section of the guide.
func (s *Store) InsertStep(projectID string, sec types.Section) error {
	_, err := s.db.Exec(`
	INSERT INTO steps (project_id, step_order, title, description, timestamp_seconds, image_path)
	VALUES (?, ?, ?, ?, ?, ?)`,
		projectID, sec.Order, sec.Title, sec.Content, sec.TimestampSeconds, sec.ImagePath)
	if err != nil {
		return fmt.Errorf("failed to insert step %d for %s: %w", sec.Order, projectID, err)
	}
	return nil
}

// ListSteps returns a project's sections in reading order.
func (s *Store) ListSteps(projectID string) ([]types.Section, error) {
	rows, err := s.db.Query(`
	SELECT step_order, title, description, timestamp_seconds, image_path
	FROM steps WHERE project_id = ? ORDER BY step_order`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps for %s: %w", projectID, err)
	}
	defer rows.Close()

	var sections []types.Section
	for rows.Next() {
		var sec types.Section
		if err := rows.Scan(&sec.Order, &sec.Title, &sec.Content, &sec.TimestampSeconds, &sec.ImagePath); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		sections = append(sections, sec)
	}
	return sections, rows.Err()
}

// MarkCompleted moves a project to its terminal completed state.
func (s *Store) MarkCompleted(id string, creditsCost int) error {
	_, err := s.db.Exec(`
	UPDATE projects SET status = ?, credits_cost = ?, error_message = '' WHERE id = ?`,
		types.StatusCompleted, creditsCost, id)
	if err != nil {
		return fmt.Errorf("failed to mark %s completed: %w", id, err)
	}
	return nil
}

// MarkFailed moves a project to its terminal failed state with a bounded
// human-readable message.
func (s *Store) MarkFailed(id, message string) error {
	if len(message) > maxErrorLen {
		cut := maxErrorLen
		for cut > 0 && !utf8.RuneStart(message[cut]) {
			cut--
		}
		message = message[:cut]
	}
	_, err := s.db.Exec(`
	UPDATE projects SET status = ?, error_message = ? WHERE id = ?`,
		types.StatusFailed, message, id)
	if err != nil {
		return fmt.Errorf("failed to mark %s failed: %w", id, err)
	}
	return nil
}

// ResetProject returns a terminal project to pending for another attempt,
// clearing its error and deleting any previously persisted sections so the
// next run produces a fresh, non-overlapping set.
func (s *Store) ResetProject(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin reset for %s: %w", id, err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
	UPDATE projects SET status = ?, error_message = '', title = ''
	WHERE id = ? AND status IN (?, ?)`,
		types.StatusPending, id, types.StatusCompleted, types.StatusFailed)
	if err != nil {
		return fmt.Errorf("failed to reset %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to reset %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("project %s is not in a terminal state", id)
	}

	if _, err := tx.Exec(`DELETE FROM steps WHERE project_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete steps for %s: %w", id, err)
	}

	return tx.Commit()
}

// GetPromptTemplate returns the operator override for a generation mode.
// sql.ErrNoRows is passed through so callers can fall back to the built-in.
func (s *Store) GetPromptTemplate(mode string) (string, error) {
	var tpl string
	err := s.db.QueryRow(`SELECT template FROM prompt_templates WHERE mode = ?`, mode).Scan(&tpl)
	if err != nil {
		return "", err
	}
	return tpl, nil
}

// SetPromptTemplate stores an operator prompt override for a generation mode.
func (s *Store) SetPromptTemplate(mode, template string) error {
	_, err := s.db.Exec(`
	INSERT INTO prompt_templates (mode, template) VALUES (?, ?)
	ON CONFLICT(mode) DO UPDATE SET template = excluded.template`, mode, template)
	if err != nil {
		return fmt.Errorf("failed to set prompt template for %s: %w", mode, err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
