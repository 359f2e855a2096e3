package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cricbot/internal/domain"
)

func writeCreds(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".credentials.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestToken_ExplicitCredentialsWin(t *testing.T) {
	path := writeCreds(t, `{"player_id":"file","sportsbook_token":"file-tok"}`)
	p := New(Config{PlayerID: "env", Token: "env-tok", CredentialsFile: path})

	s, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "env", s.PlayerID)
	assert.Equal(t, "env-tok", s.Token)
}

func TestToken_FromFile(t *testing.T) {
	path := writeCreds(t, `{"player_id":"p-1","sportsbook_token":"tok","timestamp":"2026-04-12T10:00:00.123456","cookies":{}}`)
	p := New(Config{CredentialsFile: path, MaxAge: 12 * time.Hour})
	p.now = func() time.Time { return time.Date(2026, 4, 12, 18, 0, 0, 0, time.Local) }

	s, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "p-1", s.PlayerID)
	assert.Equal(t, 10, s.IssuedAt.Hour())
}

func TestToken_Expired(t *testing.T) {
	path := writeCreds(t, `{"player_id":"p-1","sportsbook_token":"tok","timestamp":"2026-04-10T10:00:00Z"}`)
	p := New(Config{CredentialsFile: path, MaxAge: 12 * time.Hour})
	p.now = func() time.Time { return time.Date(2026, 4, 12, 10, 0, 0, 0, time.UTC) }

	_, err := p.Token(context.Background())
	assert.ErrorIs(t, err, domain.ErrAuthRequired)
}

func TestToken_Missing(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"nothing configured", Config{}},
		{"half env", Config{PlayerID: "only-id"}},
		{"missing file", Config{CredentialsFile: filepath.Join(t.TempDir(), "none.json")}},
		{"empty token", Config{CredentialsFile: writeCreds(t, `{"player_id":"p"}`)}},
		{"corrupt file", Config{CredentialsFile: writeCreds(t, `{`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg).Token(context.Background())
			assert.ErrorIs(t, err, domain.ErrAuthRequired)
		})
	}
}
