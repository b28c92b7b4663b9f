package lead

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUnavailable indicates the lead store could not reach PostgreSQL.
var ErrUnavailable = errors.New("lead store unavailable")

// leadCols is the SELECT column list for scanRecords. Text columns are
// coalesced so callers never see NULLs from partially filled rows.
const leadCols = `session_id,
	COALESCE(contact_name, ''), COALESCE(email, ''), COALESCE(mobile, ''),
	COALESCE(country, ''), COALESCE(status, 'OPEN'), COALESCE(remarks, ''),
	COALESCE(request_type, ''), metadata, created_at`

// Store manages lead records backed by PostgreSQL.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a lead Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// SaveExtraction upserts extracted contact details for a session.
//
// Merge rules (per field): a non-empty incoming value replaces the stored
// value; an empty incoming value leaves the stored value untouched. Metadata
// maps are shallow-merged with incoming keys winning. created_at and status
// are stamped on first insert only, so the record keeps its original creation
// time and any operator-assigned status across later extractions.
//
// The merge is commutative over the fields each extraction fills, so
// concurrent extractions for the same session cannot erase each other's
// contact details.
func (s *Store) SaveExtraction(ctx context.Context, sessionID string, ex Extraction, requestType RequestType) error {
	metadata := ex.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_info (session_id, contact_name, email, mobile, country, status, request_type, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		 ON CONFLICT (session_id) DO UPDATE SET
		   contact_name = CASE WHEN EXCLUDED.contact_name <> '' THEN EXCLUDED.contact_name ELSE chat_info.contact_name END,
		   email        = CASE WHEN EXCLUDED.email        <> '' THEN EXCLUDED.email        ELSE chat_info.email        END,
		   mobile       = CASE WHEN EXCLUDED.mobile       <> '' THEN EXCLUDED.mobile       ELSE chat_info.mobile       END,
		   country      = CASE WHEN EXCLUDED.country      <> '' THEN EXCLUDED.country      ELSE chat_info.country      END,
		   request_type = CASE WHEN chat_info.request_type IS NULL OR chat_info.request_type = ''
		                       THEN EXCLUDED.request_type ELSE chat_info.request_type END,
		   metadata     = chat_info.metadata || EXCLUDED.metadata`,
		sessionID, ex.ContactName, ex.Email, ex.Mobile, ex.Country,
		StatusOpen, string(requestType), metadata,
	)
	if err != nil {
		return fmt.Errorf("%w: saving extraction for session %s: %v", ErrUnavailable, sessionID, err)
	}
	return nil
}

// LockRequestType records the classification on a session's existing lead
// record. An existing non-empty request_type is never overwritten; the first
// write wins for the lifetime of the session.
//
// This is a plain UPDATE: sessions without a lead record are left without
// one. Records come into existence only through SaveExtraction (contact
// details found) or Update (operator annotation), both of which carry the
// classification themselves.
func (s *Store) LockRequestType(ctx context.Context, sessionID string, requestType RequestType) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE chat_info
		 SET request_type = $2
		 WHERE session_id = $1
		   AND (request_type IS NULL OR request_type = '')`,
		sessionID, string(requestType),
	)
	if err != nil {
		return fmt.Errorf("%w: locking request type for session %s: %v", ErrUnavailable, sessionID, err)
	}
	return nil
}

// List returns all lead records, newest first.
func (s *Store) List(ctx context.Context) ([]*Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+leadCols+`
		 FROM chat_info
		 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: listing leads: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Get returns the lead record for a session, or pgx.ErrNoRows wrapped when
// the session has no record.
func (s *Store) Get(ctx context.Context, sessionID string) (*Record, error) {
	r := &Record{}
	var createdAt *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT `+leadCols+`
		 FROM chat_info
		 WHERE session_id = $1`,
		sessionID,
	).Scan(
		&r.SessionID, &r.ContactName, &r.Email, &r.Mobile,
		&r.Country, &r.Status, &r.Remarks,
		&r.RequestType, &r.Metadata, &createdAt,
	)
	if createdAt != nil {
		r.CreatedAt = *createdAt
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("lead for session %s: %w", sessionID, err)
		}
		return nil, fmt.Errorf("%w: getting lead for session %s: %v", ErrUnavailable, sessionID, err)
	}
	return r, nil
}

// Update sets the status and/or remarks of a session's lead record.
// A nil pointer leaves that field untouched. If no record exists yet, one is
// created so operators can annotate a session before extraction has run.
func (s *Store) Update(ctx context.Context, sessionID string, status, remarks *string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_info (session_id, status, remarks, created_at)
		 VALUES ($1, COALESCE($2, $4), COALESCE($3, ''), now())
		 ON CONFLICT (session_id) DO UPDATE SET
		   status  = COALESCE($2, chat_info.status),
		   remarks = COALESCE($3, chat_info.remarks)`,
		sessionID, status, remarks, StatusOpen,
	)
	if err != nil {
		return fmt.Errorf("%w: updating lead for session %s: %v", ErrUnavailable, sessionID, err)
	}
	return nil
}

// Delete removes the lead record for a session. Returns false if no record
// existed.
func (s *Store) Delete(ctx context.Context, sessionID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM chat_info WHERE session_id = $1`,
		sessionID,
	)
	if err != nil {
		return false, fmt.Errorf("%w: deleting lead for session %s: %v", ErrUnavailable, sessionID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// scanRecords reads Record structs from pgx.Rows (standard column set).
func scanRecords(rows pgx.Rows) ([]*Record, error) {
	records := []*Record{}
	for rows.Next() {
		r := &Record{}
		var createdAt *time.Time
		if err := rows.Scan(
			&r.SessionID, &r.ContactName, &r.Email, &r.Mobile,
			&r.Country, &r.Status, &r.Remarks,
			&r.RequestType, &r.Metadata, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scanning lead: %w", err)
		}
		if createdAt != nil {
			r.CreatedAt = *createdAt
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating leads: %w", err)
	}
	return records, nil
}
