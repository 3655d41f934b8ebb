package migrate

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

// A closed *sql.DB is enough to exercise the error path of every exported
// function here without depending on goose's exact query sequence for a
// given dialect.
func closedDB(t *testing.T) *sql.DB {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()
	require.NoError(t, db.Close())
	return db
}

func TestUp_WrapsProviderErrorOnClosedDB(t *testing.T) {
	err := Up(context.Background(), closedDB(t))
	require.Error(t, err)
}

func TestStatus_WrapsProviderErrorOnClosedDB(t *testing.T) {
	_, err := Status(context.Background(), closedDB(t))
	require.Error(t, err)
}

func TestDown_WrapsProviderErrorOnClosedDB(t *testing.T) {
	err := Down(context.Background(), closedDB(t))
	require.Error(t, err)
}
