package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store provides access to sessions, visualizations and chat history.
type Store struct {
	db DBTX
}

// NewStore creates a Store on an open database handle or transaction.
func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

func (s *Store) CreateSession(ctx context.Context, sess *Session) error {
	now := time.Now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = now
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, created_at, updated_at, dataset_info, session_metadata)
		 VALUES (?, ?, ?, ?, ?)`,
		sess.ID,
		sess.CreatedAt.Format(time.RFC3339),
		sess.UpdatedAt.Format(time.RFC3339),
		nullJSON(sess.DatasetInfo),
		nullJSON(sess.Metadata),
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, updated_at, dataset_info, session_metadata
		 FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// ListSessions returns up to limit sessions, most recently updated first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, updated_at, dataset_info, session_metadata
		 FROM sessions ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// UpdateSessionInfo replaces the session's dataset info and metadata and
// bumps its updated_at. Nil values leave the stored column untouched.
func (s *Store) UpdateSessionInfo(ctx context.Context, id string, datasetInfo, metadata []byte) error {
	query := `UPDATE sessions SET updated_at = ?`
	args := []any{time.Now().UTC().Format(time.RFC3339)}
	if datasetInfo != nil {
		query += `, dataset_info = ?`
		args = append(args, string(datasetInfo))
	}
	if metadata != nil {
		query += `, session_metadata = ?`
		args = append(args, string(metadata))
	}
	query += ` WHERE id = ?`
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

// TouchSession bumps the session's updated_at to now.
func (s *Store) TouchSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	return nil
}

func (s *Store) SaveVisualization(ctx context.Context, v *Visualization) error {
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO visualizations (id, session_id, query, chart_spec, chart_data, chart_type, created_at, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.SessionID, v.Query,
		string(v.ChartSpec), string(v.ChartData), v.ChartType,
		v.CreatedAt.Format(time.RFC3339),
		nullJSON(v.Metadata),
	)
	if err != nil {
		return fmt.Errorf("inserting visualization: %w", err)
	}
	return nil
}

func (s *Store) GetVisualization(ctx context.Context, id string) (*Visualization, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, query, chart_spec, chart_data, chart_type, created_at, metadata
		 FROM visualizations WHERE id = ?`, id)
	return scanVisualization(row)
}

// ListVisualizations returns a session's visualizations, newest first.
func (s *Store) ListVisualizations(ctx context.Context, sessionID string) ([]*Visualization, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, query, chart_spec, chart_data, chart_type, created_at, metadata
		 FROM visualizations WHERE session_id = ? ORDER BY created_at DESC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing visualizations: %w", err)
	}
	defer rows.Close()

	var vizzes []*Visualization
	for rows.Next() {
		v, err := scanVisualizationRows(rows)
		if err != nil {
			return nil, err
		}
		vizzes = append(vizzes, v)
	}
	return vizzes, rows.Err()
}

func (s *Store) DeleteVisualization(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM visualizations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting visualization: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("visualization %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) SaveChatEntry(ctx context.Context, e *ChatEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	var vizID any
	if e.VisualizationID != "" {
		vizID = e.VisualizationID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_entries (id, session_id, query, response, visualization_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.Query, e.Response, vizID,
		e.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting chat entry: %w", err)
	}
	return nil
}

// ChatHistory returns a session's chat entries in chronological order.
func (s *Store) ChatHistory(ctx context.Context, sessionID string) ([]*ChatEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, query, response, visualization_id, created_at
		 FROM chat_entries WHERE session_id = ? ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing chat entries: %w", err)
	}
	defer rows.Close()

	var entries []*ChatEntry
	for rows.Next() {
		var e ChatEntry
		var vizID sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Query, &e.Response, &vizID, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning chat entry: %w", err)
		}
		e.VisualizationID = vizID.String
		e.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing chat entry created_at: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row *sql.Row) (*Session, error) {
	sess, err := scanSessionFrom(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session: %w", ErrNotFound)
	}
	return sess, err
}

func scanSessionRows(rows *sql.Rows) (*Session, error) {
	return scanSessionFrom(rows)
}

func scanSessionFrom(r rowScanner) (*Session, error) {
	var sess Session
	var createdAt, updatedAt string
	var datasetInfo, metadata sql.NullString

	if err := r.Scan(&sess.ID, &createdAt, &updatedAt, &datasetInfo, &metadata); err != nil {
		return nil, err
	}

	var err error
	if sess.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing session created_at: %w", err)
	}
	if sess.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing session updated_at: %w", err)
	}
	if datasetInfo.Valid {
		sess.DatasetInfo = []byte(datasetInfo.String)
	}
	if metadata.Valid {
		sess.Metadata = []byte(metadata.String)
	}
	return &sess, nil
}

func scanVisualization(row *sql.Row) (*Visualization, error) {
	v, err := scanVisualizationFrom(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("visualization: %w", ErrNotFound)
	}
	return v, err
}

func scanVisualizationRows(rows *sql.Rows) (*Visualization, error) {
	return scanVisualizationFrom(rows)
}

func scanVisualizationFrom(r rowScanner) (*Visualization, error) {
	var v Visualization
	var chartSpec, chartData, createdAt string
	var metadata sql.NullString

	if err := r.Scan(&v.ID, &v.SessionID, &v.Query, &chartSpec, &chartData, &v.ChartType, &createdAt, &metadata); err != nil {
		return nil, err
	}

	v.ChartSpec = []byte(chartSpec)
	v.ChartData = []byte(chartData)

	var err error
	if v.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing visualization created_at: %w", err)
	}
	if metadata.Valid {
		v.Metadata = []byte(metadata.String)
	}
	return &v, nil
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
