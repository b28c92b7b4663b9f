package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUnavailable indicates the turn log could not reach PostgreSQL.
var ErrUnavailable = errors.New("history store unavailable")

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store manages the per-session turn log backed by PostgreSQL.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a history Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Append adds a single turn to the session log.
func (s *Store) Append(ctx context.Context, sessionID, role, content string) error {
	return s.appendTurns(ctx, sessionID, []Turn{{Role: role, Content: content}})
}

// AppendExchange atomically appends a human turn followed by the ai reply.
// Either both turns are stored or neither is; a reader never observes a
// human turn without its reply from a completed exchange.
func (s *Store) AppendExchange(ctx context.Context, sessionID, userText, aiText string) error {
	return s.appendTurns(ctx, sessionID, []Turn{
		{Role: RoleHuman, Content: userText},
		{Role: RoleAI, Content: aiText},
	})
}

// appendTurns inserts turns in one transaction. A per-session advisory lock
// serializes concurrent appends so sequence numbers stay gapless and unique.
// pg_advisory_xact_lock releases automatically at commit/rollback.
func (s *Store) appendTurns(ctx context.Context, sessionID string, turns []Turn) error {
	if len(turns) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %v", ErrUnavailable, err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	if _, lockErr := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, sessionID); lockErr != nil {
		return fmt.Errorf("%w: acquiring advisory lock: %v", ErrUnavailable, lockErr)
	}

	var maxSeq int
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) FROM chat_turns WHERE session_id = $1`,
		sessionID,
	).Scan(&maxSeq); err != nil {
		return fmt.Errorf("%w: reading max sequence number: %v", ErrUnavailable, err)
	}

	for i, turn := range turns {
		if _, err := tx.Exec(ctx,
			`INSERT INTO chat_turns (session_id, role, content, sequence_number)
			 VALUES ($1, $2, $3, $4)`,
			sessionID, turn.Role, turn.Content, maxSeq+i+1,
		); err != nil {
			return fmt.Errorf("%w: inserting turn %d: %v", ErrUnavailable, i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: committing turns: %v", ErrUnavailable, err)
	}

	s.logger.Debug("appended turns", "session_id", sessionID, "count", len(turns))
	return nil
}

// Turns returns the session's log ordered oldest first. Unknown sessions
// yield an empty slice, not an error.
func (s *Store) Turns(ctx context.Context, sessionID string) ([]Turn, error) {
	return s.turns(ctx, s.pool, sessionID)
}

func (s *Store) turns(ctx context.Context, q querier, sessionID string) ([]Turn, error) {
	rows, err := q.Query(ctx,
		`SELECT session_id, role, content, sequence_number, created_at
		 FROM chat_turns
		 WHERE session_id = $1
		 ORDER BY sequence_number ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: querying turns for session %s: %v", ErrUnavailable, sessionID, err)
	}
	defer rows.Close()

	turns := []Turn{}
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.SessionID, &t.Role, &t.Content, &t.SequenceNumber, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating turns: %w", err)
	}
	return turns, nil
}

// Bootstrap returns the session's turns, seeding a welcome ai turn for
// sessions seen for the first time. The returned created flag reports
// whether the welcome turn was inserted by this call.
//
// The check and insert run under the session's advisory lock, so two
// concurrent bootstraps of a fresh session produce exactly one welcome turn.
func (s *Store) Bootstrap(ctx context.Context, sessionID string) (turns []Turn, created bool, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("%w: beginning transaction: %v", ErrUnavailable, err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	if _, lockErr := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, sessionID); lockErr != nil {
		return nil, false, fmt.Errorf("%w: acquiring advisory lock: %v", ErrUnavailable, lockErr)
	}

	turns, err = s.turns(ctx, tx, sessionID)
	if err != nil {
		return nil, false, err
	}

	if len(turns) == 0 {
		if _, err := tx.Exec(ctx,
			`INSERT INTO chat_turns (session_id, role, content, sequence_number)
			 VALUES ($1, $2, $3, 1)`,
			sessionID, RoleAI, WelcomeMessage,
		); err != nil {
			return nil, false, fmt.Errorf("%w: inserting welcome turn: %v", ErrUnavailable, err)
		}
		created = true
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("%w: committing bootstrap: %v", ErrUnavailable, err)
	}

	if created {
		// Reflect the welcome turn in the returned slice without re-querying.
		turns = append(turns, Turn{
			SessionID:      sessionID,
			Role:           RoleAI,
			Content:        WelcomeMessage,
			SequenceNumber: 1,
		})
		s.logger.Debug("bootstrapped session", "session_id", sessionID)
	}

	return turns, created, nil
}
