package database

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/tasksphere/internal/config"
	"github.com/iliyamo/tasksphere/internal/database/migrations"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DBConfig{User: "app", Pass: "s3cret", Host: "db", Port: "3306", Name: "tasksphere"})
	assert.True(t, strings.HasPrefix(dsn, "app:s3cret@tcp(db:3306)/tasksphere?"), dsn)
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
	assert.Contains(t, dsn, "clientFoundRows=true")
}

func TestMigrationsEmbedded(t *testing.T) {
	b, err := fs.ReadFile(migrations.FS, "00001_init.sql")
	require.NoError(t, err)
	sqlText := string(b)
	assert.Contains(t, sqlText, "-- +goose Up")
	assert.Contains(t, sqlText, "reset_token_hash")
	assert.Contains(t, sqlText, "uq_task_notes_owner_task")
	assert.Regexp(t, `reset_token_expires_at\s+DATETIME\(6\)`, sqlText)
}

func TestMigrate_UsesEmbeddedRoot(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orig := gooseUp
	defer func() { gooseUp = orig }()
	var dir string
	gooseUp = func(_ context.Context, _ *sql.DB, d string) error {
		dir = d
		return nil
	}

	require.NoError(t, Migrate(context.Background(), db))
	assert.Equal(t, ".", dir)
}

func TestMigrate_WrapsError(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orig := gooseUp
	defer func() { gooseUp = orig }()
	boom := errors.New("boom")
	gooseUp = func(context.Context, *sql.DB, string) error { return boom }

	err = Migrate(context.Background(), db)
	assert.ErrorIs(t, err, boom)
}

func TestOpen_UnreachableHost(t *testing.T) {
	if testing.Short() {
		t.Skip("dials the network")
	}
	_, err := Open(config.DBConfig{
		User: "u", Host: "127.0.0.1", Port: "1", Name: "x",
		MaxOpenConns: 1, ConnMaxLifetime: time.Minute,
	})
	assert.Error(t, err)
}
