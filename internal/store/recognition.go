package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// DefaultListLimit caps history queries that do not specify a limit.
const DefaultListLimit = 100

// Recognition is one recognized sign.
type Recognition struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Label       string    `json:"label"`
	Probability float64   `json:"probability"`
	TimestampMs int64     `json:"timestamp"`
	CreatedAt   time.Time `json:"created_at"`
}

// RecognitionRepository stores the recognition history.
type RecognitionRepository struct {
	db *sql.DB
}

// Recognitions returns the recognition repository for this store.
func (s *Store) Recognitions() *RecognitionRepository {
	return &RecognitionRepository{db: s.db}
}

// Create records a recognition. An empty ID is replaced by a new UUID.
func (r *RecognitionRepository) Create(rec *Recognition) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err := r.db.Exec(
		`INSERT INTO recognitions (id, session_id, label, probability, timestamp_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.Label, rec.Probability, rec.TimestampMs, rec.CreatedAt,
	)
	return err
}

// List returns up to limit recognitions, newest first. A sessionID other
// than "" restricts the result to that session.
func (r *RecognitionRepository) List(sessionID string, limit int) ([]*Recognition, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT id, session_id, label, probability, timestamp_ms, created_at FROM recognitions`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*Recognition
	for rows.Next() {
		rec := &Recognition{}
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Label, &rec.Probability, &rec.TimestampMs, &rec.CreatedAt); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return recs, nil
}

// Count returns the number of stored recognitions.
func (r *RecognitionRepository) Count() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM recognitions`).Scan(&n)
	return n, err
}

// Clear deletes the whole history and returns the number of removed rows.
func (r *RecognitionRepository) Clear() (int64, error) {
	result, err := r.db.Exec(`DELETE FROM recognitions`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
