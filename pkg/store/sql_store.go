package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Calibrant-Labs/theatre/core/pkg/contracts"
	"github.com/Calibrant-Labs/theatre/core/pkg/lifecycle"
)

// SQLStore implements Store using database/sql.
// It works with SQLite (modernc.org/sqlite) and Postgres via standard drivers.
//
// The full Theatre record is stored as a JSON document; state and timestamps
// are duplicated into columns so listing never deserializes the world.
type SQLStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, clock: time.Now}
}

// WithClock overrides the clock for testing.
func (s *SQLStore) WithClock(clock func() time.Time) *SQLStore {
	s.clock = clock
	return s
}

const schema = `
CREATE TABLE IF NOT EXISTS theatres (
	id TEXT PRIMARY KEY,
	state TEXT NOT NULL,
	document TEXT NOT NULL,
	created_at TIMESTAMP,
	committed_at TIMESTAMP
);
`

func (s *SQLStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *SQLStore) Create(ctx context.Context, t contracts.Theatre) error {
	if t.TheatreID == "" {
		return fmt.Errorf("store: theatre id required")
	}
	if t.State == "" {
		t.State = lifecycle.StateDraft
	}
	if !lifecycle.IsKnown(t.State) {
		return fmt.Errorf("store: unknown state %q", t.State)
	}
	t.CreatedAt = s.clock()

	doc, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("store: marshal theatre: %w", err)
	}

	query := `INSERT INTO theatres (id, state, document, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := s.db.ExecContext(ctx, query, t.TheatreID, string(t.State), string(doc), t.CreatedAt); err != nil {
		return fmt.Errorf("store: create %s: %w", t.TheatreID, err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (contracts.Theatre, error) {
	query := `SELECT document FROM theatres WHERE id = $1`
	row := s.db.QueryRowContext(ctx, query, id)

	var doc string
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return contracts.Theatre{}, ErrNotFound
		}
		return contracts.Theatre{}, err
	}
	return decodeTheatre(doc)
}

// UpdateState runs in a transaction: the stored state is read, the
// transition checked, and the row rewritten, so two racing callers cannot
// both move the same Theatre.
func (s *SQLStore) UpdateState(ctx context.Context, id string, target lifecycle.State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var doc string
	row := tx.QueryRowContext(ctx, `SELECT document FROM theatres WHERE id = $1`, id)
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	t, err := decodeTheatre(doc)
	if err != nil {
		return err
	}
	if err := checkTransition(id, t.State, target); err != nil {
		return err
	}

	t.State = target
	if target == lifecycle.StateCommitted {
		t.CommittedAt = s.clock()
	}

	updated, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("store: marshal theatre: %w", err)
	}

	query := `UPDATE theatres SET state = $1, document = $2, committed_at = $3 WHERE id = $4`
	var committedAt any
	if !t.CommittedAt.IsZero() {
		committedAt = t.CommittedAt
	}
	if _, err := tx.ExecContext(ctx, query, string(target), string(updated), committedAt, id); err != nil {
		return fmt.Errorf("store: update state %s: %w", id, err)
	}
	return tx.Commit()
}

func (s *SQLStore) Update(ctx context.Context, t contracts.Theatre) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var storedState string
	row := tx.QueryRowContext(ctx, `SELECT state FROM theatres WHERE id = $1`, t.TheatreID)
	if err := row.Scan(&storedState); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if storedState != string(t.State) {
		return fmt.Errorf("store: state change through Update is not allowed (stored %s, given %s)", storedState, t.State)
	}

	doc, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("store: marshal theatre: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE theatres SET document = $1 WHERE id = $2`, string(doc), t.TheatreID); err != nil {
		return fmt.Errorf("store: update %s: %w", t.TheatreID, err)
	}
	return tx.Commit()
}

func (s *SQLStore) ListByState(ctx context.Context, state lifecycle.State) ([]contracts.Theatre, error) {
	query := `SELECT document FROM theatres WHERE state = $1 ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, string(state))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanTheatres(rows)
}

func (s *SQLStore) ListAll(ctx context.Context) ([]contracts.Theatre, error) {
	query := `SELECT document FROM theatres ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanTheatres(rows)
}

func scanTheatres(rows *sql.Rows) ([]contracts.Theatre, error) {
	result := make([]contracts.Theatre, 0)
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		t, err := decodeTheatre(doc)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func decodeTheatre(doc string) (contracts.Theatre, error) {
	var t contracts.Theatre
	if err := json.Unmarshal([]byte(doc), &t); err != nil {
		return contracts.Theatre{}, fmt.Errorf("store: corrupt theatre document: %w", err)
	}
	return t, nil
}
