package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := New(sqlx.NewDb(db, "postgres"), "handler_mappings")
	require.NoError(t, err)
	return store, mock
}

func TestLoadSource(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"mode", "parameter", "handler"}).
		AddRow("edit", nil, "editHome").
		AddRow("edit", "prefs", "preferences").
		AddRow("view", "add", "addItem").
		AddRow(" view ", "delete", "deleteItem")
	mock.ExpectQuery("SELECT mode, parameter, handler FROM handler_mappings").WillReturnRows(rows)

	src, err := store.LoadSource(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "postgres:handler_mappings", src.Name)
	assert.Equal(t, map[string]map[string]string{
		"edit": {"prefs": "preferences"},
		"view": {"add": "addItem", "delete": "deleteItem"},
	}, src.Parameters)
	assert.Equal(t, map[string]string{"edit": "editHome"}, src.Defaults)
	assert.Equal(t, 4, src.Len())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadSource_Conflicts(t *testing.T) {
	tests := []struct {
		name    string
		rows    *sqlmock.Rows
		message string
	}{
		{
			"two handlers for one key",
			sqlmock.NewRows([]string{"mode", "parameter", "handler"}).
				AddRow("view", "add", "a").
				AddRow("view", "add", "b"),
			"has two handlers",
		},
		{
			"two defaults",
			sqlmock.NewRows([]string{"mode", "parameter", "handler"}).
				AddRow("view", nil, "a").
				AddRow("view", nil, "b"),
			"has two defaults",
		},
		{
			"blank handler",
			sqlmock.NewRows([]string{"mode", "parameter", "handler"}).
				AddRow("view", "add", " "),
			"mode and handler are required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			mock.ExpectQuery("SELECT").WillReturnRows(tt.rows)

			_, err := store.LoadSource(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestLoadSource_QueryError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT").WillReturnError(errors.New("connection reset"))

	_, err := store.LoadSource(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestEnsureSchema(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS handler_mappings").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNew_RejectsBadTableName(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for _, name := range []string{"", "mappings; DROP TABLE x", "1table", "a.b.c"} {
		_, err := New(sqlx.NewDb(db, "postgres"), name)
		assert.Error(t, err, name)
	}
	_, err = New(sqlx.NewDb(db, "postgres"), "dispatch.handler_mappings")
	assert.NoError(t, err)
}
