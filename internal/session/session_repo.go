package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/finadvisor/internal/contracts"
)

// SessionRepository handles data persistence for sessions and session details
type SessionRepository struct {
	db *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository instance
func NewSessionRepository(db *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{db: db}
}

var _ contracts.SessionRepository = (*SessionRepository)(nil)

// CreateSession inserts a session and fills in ID and AuditAt
func (r *SessionRepository) CreateSession(ctx context.Context, s *contracts.Session) error {
	query := `
		INSERT INTO sessions (user_id, capital, risk_level, topic)
		VALUES ($1, $2, $3, $4)
		RETURNING session_id, audit_dtm
	`

	if err := r.db.QueryRow(ctx, query, s.UserID, s.Capital, s.RiskLevel, s.Topic).Scan(&s.ID, &s.AuditAt); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by id
func (r *SessionRepository) GetSession(ctx context.Context, id int64) (*contracts.Session, error) {
	query := `
		SELECT session_id, user_id, capital, risk_level, topic, audit_dtm
		FROM sessions
		WHERE session_id = $1
	`

	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	s, err := pgx.CollectExactlyOneRow(rows, scanSession)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %d: %w", id, contracts.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &s, nil
}

// ListByUser returns a user's sessions, newest first
func (r *SessionRepository) ListByUser(ctx context.Context, userID int64) ([]contracts.Session, error) {
	query := `
		SELECT session_id, user_id, capital, risk_level, topic, audit_dtm
		FROM sessions
		WHERE user_id = $1
		ORDER BY audit_dtm DESC, session_id DESC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	sessions, err := pgx.CollectRows(rows, scanSession)
	if err != nil {
		return nil, fmt.Errorf("scan sessions: %w", err)
	}
	return sessions, nil
}

func scanSession(row pgx.CollectableRow) (contracts.Session, error) {
	var s contracts.Session
	err := row.Scan(&s.ID, &s.UserID, &s.Capital, &s.RiskLevel, &s.Topic, &s.AuditAt)
	return s, err
}

// DeleteSession removes a session. It reports whether a row was deleted.
func (r *SessionRepository) DeleteSession(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE session_id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CreateDetail stores the serialized final state of a session
func (r *SessionRepository) CreateDetail(ctx context.Context, d *contracts.SessionDetail) error {
	query := `
		INSERT INTO session_details (session_id, response)
		VALUES ($1, $2)
		RETURNING audit_dtm
	`

	if err := r.db.QueryRow(ctx, query, d.SessionID, d.Response).Scan(&d.AuditAt); err != nil {
		return fmt.Errorf("insert session detail: %w", err)
	}
	return nil
}

// GetDetail retrieves the stored state of a session
func (r *SessionRepository) GetDetail(ctx context.Context, sessionID int64) (*contracts.SessionDetail, error) {
	query := `
		SELECT session_id, COALESCE(response, ''), audit_dtm
		FROM session_details
		WHERE session_id = $1
	`

	var d contracts.SessionDetail
	err := r.db.QueryRow(ctx, query, sessionID).Scan(&d.SessionID, &d.Response, &d.AuditAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session detail %d: %w", sessionID, contracts.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query session detail: %w", err)
	}
	return &d, nil
}

// DeleteDetail removes a session detail. It reports whether a row was deleted.
func (r *SessionRepository) DeleteDetail(ctx context.Context, sessionID int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM session_details WHERE session_id = $1`, sessionID)
	if err != nil {
		return false, fmt.Errorf("delete session detail: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
