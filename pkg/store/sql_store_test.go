package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Calibrant-Labs/theatre/core/pkg/contracts"
	"github.com/Calibrant-Labs/theatre/core/pkg/lifecycle"
	"github.com/Calibrant-Labs/theatre/core/pkg/store"
)

func newSQLStore(t *testing.T) (*store.SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s := store.NewSQLStore(db).WithClock(func() time.Time { return frozen })
	return s, mock
}

func document(t *testing.T, th contracts.Theatre) string {
	t.Helper()
	raw, err := json.Marshal(th)
	require.NoError(t, err)
	return string(raw)
}

func TestSQLStoreInit(t *testing.T) {
	s, mock := newSQLStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS theatres").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.Init(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreCreate(t *testing.T) {
	s, mock := newSQLStore(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO theatres (id, state, document, created_at) VALUES ($1, $2, $3, $4)`)).
		WithArgs("qa_bot_v1", "DRAFT", sqlmock.AnyArg(), frozen).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.Create(context.Background(), theatre("qa_bot_v1")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreCreateRequiresID(t *testing.T) {
	s, _ := newSQLStore(t)
	assert.Error(t, s.Create(context.Background(), contracts.Theatre{}))
}

func TestSQLStoreGet(t *testing.T) {
	s, mock := newSQLStore(t)

	th := theatre("qa_bot_v1")
	th.State = lifecycle.StateCommitted
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT document FROM theatres WHERE id = $1`)).
		WithArgs("qa_bot_v1").
		WillReturnRows(sqlmock.NewRows([]string{"document"}).AddRow(document(t, th)))

	got, err := s.Get(context.Background(), "qa_bot_v1")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StateCommitted, got.State)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreGetNotFound(t *testing.T) {
	s, mock := newSQLStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT document FROM theatres WHERE id = $1`)).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"document"}))

	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreUpdateState(t *testing.T) {
	s, mock := newSQLStore(t)

	th := theatre("qa_bot_v1")
	th.State = lifecycle.StateDraft

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT document FROM theatres WHERE id = $1`)).
		WithArgs("qa_bot_v1").
		WillReturnRows(sqlmock.NewRows([]string{"document"}).AddRow(document(t, th)))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE theatres SET state = $1, document = $2, committed_at = $3 WHERE id = $4`)).
		WithArgs("COMMITTED", sqlmock.AnyArg(), frozen, "qa_bot_v1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.UpdateState(context.Background(), "qa_bot_v1", lifecycle.StateCommitted))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreUpdateStateRejectsIllegalTransition(t *testing.T) {
	s, mock := newSQLStore(t)

	th := theatre("qa_bot_v1")
	th.State = lifecycle.StateDraft

	// The transition check fails after the read; no UPDATE is ever issued.
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT document FROM theatres WHERE id = $1`)).
		WithArgs("qa_bot_v1").
		WillReturnRows(sqlmock.NewRows([]string{"document"}).AddRow(document(t, th)))
	mock.ExpectRollback()

	err := s.UpdateState(context.Background(), "qa_bot_v1", lifecycle.StateResolved)
	require.Error(t, err)
	var ite *lifecycle.InvalidTransitionError
	assert.True(t, errors.As(err, &ite))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreUpdateStateNotFound(t *testing.T) {
	s, mock := newSQLStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT document FROM theatres WHERE id = $1`)).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"document"}))
	mock.ExpectRollback()

	err := s.UpdateState(context.Background(), "nope", lifecycle.StateCommitted)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreUpdateRejectsStateChange(t *testing.T) {
	s, mock := newSQLStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT state FROM theatres WHERE id = $1`)).
		WithArgs("qa_bot_v1").
		WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow("COMMITTED"))
	mock.ExpectRollback()

	modified := theatre("qa_bot_v1")
	modified.State = lifecycle.StateActive
	err := s.Update(context.Background(), modified)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state change through Update")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreUpdateContent(t *testing.T) {
	s, mock := newSQLStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT state FROM theatres WHERE id = $1`)).
		WithArgs("qa_bot_v1").
		WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow("DRAFT"))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE theatres SET document = $1 WHERE id = $2`)).
		WithArgs(sqlmock.AnyArg(), "qa_bot_v1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	modified := theatre("qa_bot_v1")
	modified.State = lifecycle.StateDraft
	modified.EpisodesTotal = 50
	require.NoError(t, s.Update(context.Background(), modified))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreListByState(t *testing.T) {
	s, mock := newSQLStore(t)

	a := theatre("a_theatre_v1")
	a.State = lifecycle.StateDraft
	b := theatre("b_theatre_v1")
	b.State = lifecycle.StateDraft

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT document FROM theatres WHERE state = $1 ORDER BY id`)).
		WithArgs("DRAFT").
		WillReturnRows(sqlmock.NewRows([]string{"document"}).
			AddRow(document(t, a)).
			AddRow(document(t, b)))

	out, err := s.ListByState(context.Background(), lifecycle.StateDraft)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a_theatre_v1", out[0].TheatreID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
