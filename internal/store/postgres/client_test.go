package postgres

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnString(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ClientConfig
		want    string
		wantErr bool
	}{
		{
			name: "dsn wins",
			cfg:  ClientConfig{DSN: " postgres://x ", Host: "ignored"},
			want: "postgres://x",
		},
		{
			name: "discrete fields",
			cfg:  ClientConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "cric", SSLMode: "require"},
			want: "postgres://u:p@db:5432/cric?sslmode=require",
		},
		{
			name: "password is escaped",
			cfg:  ClientConfig{Host: "db", Port: 6543, User: "u", Password: "p@ss/word", Database: "cric"},
			want: "postgres://u:p%40ss%2Fword@db:6543/cric",
		},
		{
			name:    "no host",
			cfg:     ClientConfig{User: "u"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.ConnString()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	files, err := migrationFiles(migrationsFS)
	require.NoError(t, err)
	require.Equal(t, []string{"001_bet_audit.sql"}, files)

	data, err := migrationsFS.ReadFile("migrations/001_bet_audit.sql")
	require.NoError(t, err)
	assert.Contains(t, string(data), "CREATE TABLE IF NOT EXISTS bet_audit")
}

func TestMigrationFilesOrdering(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_index.sql":     {Data: []byte("--")},
		"migrations/README.md":         {Data: []byte("notes")},
		"migrations/001_bet_audit.sql": {Data: []byte("--")},
	}
	files, err := migrationFiles(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_bet_audit.sql", "002_index.sql"}, files)
}

func TestPendingMigrations(t *testing.T) {
	files := []string{"001_bet_audit.sql", "002_index.sql"}
	assert.Equal(t, []string{"002_index.sql"}, pendingMigrations(files, map[string]bool{"001_bet_audit.sql": true}))
	assert.Equal(t, files, pendingMigrations(files, nil))
	assert.Empty(t, pendingMigrations(files, map[string]bool{"001_bet_audit.sql": true, "002_index.sql": true}))
}
