package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/akinalp/sohbet/database"
	"github.com/akinalp/sohbet/models"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "repo.db"), database.Migrations())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db.Conn
}

func seedUsers(t *testing.T, db *sql.DB, ids ...string) {
	t.Helper()
	repo := NewSQLiteUserRepo(db)
	for _, id := range ids {
		require.NoError(t, repo.Create(context.Background(), &models.User{ID: id, Username: "user_" + id}))
	}
}
