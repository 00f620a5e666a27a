package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/listingwatch/internal/scraper"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(sqlx.NewDb(db, "sqlite3")), mock
}

func TestUpsertRecordWrapsExecError(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO records").WillReturnError(errors.New("disk I/O error"))

	_, err := s.UpsertRecord(context.Background(), scraper.Record{CanonicalURL: "https://a.example.org/1"})
	require.ErrorContains(t, err, "insert record")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRecordReportsInsertion(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO records").WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec("INSERT INTO records").WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := s.UpsertRecord(context.Background(), scraper.Record{CanonicalURL: "https://a.example.org/1"})
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = s.UpsertRecord(context.Background(), scraper.Record{CanonicalURL: "https://a.example.org/1"})
	require.NoError(t, err)
	require.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPageStateNoRows(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM page_state").
		WithArgs("Uni A").
		WillReturnError(sql.ErrNoRows)

	state, err := s.GetPageState(context.Background(), "Uni A")
	require.NoError(t, err)
	require.Nil(t, state)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatisticsPropagatesErrors(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT COUNT").WillReturnError(errors.New("locked"))

	_, err := s.Statistics(context.Background())
	require.ErrorContains(t, err, "count active")
	require.NoError(t, mock.ExpectationsWereMet())
}
