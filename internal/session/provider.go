// Package session supplies platform credentials from the environment or from
// the credentials file written by the browser login.
package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/cricbot/internal/domain"
	"github.com/alanyoungcy/cricbot/internal/store/jsonfile"
)

// credentialsFile is the subset of .credentials.json that is used.
type credentialsFile struct {
	PlayerID        string `json:"player_id"`
	SportsbookToken string `json:"sportsbook_token"`
	Timestamp       string `json:"timestamp"`
}

// Config selects the credential sources.
type Config struct {
	PlayerID        string
	Token           string
	CredentialsFile string
	// MaxAge expires file credentials older than this. Zero disables expiry.
	MaxAge time.Duration
}

// Provider implements domain.SessionProvider. Explicit credentials take
// precedence over the credentials file, which is re-read on every call so a
// fresh login is picked up without restarting.
type Provider struct {
	cfg Config
	now func() time.Time
}

// New creates a Provider.
func New(cfg Config) *Provider {
	return &Provider{cfg: cfg, now: time.Now}
}

// Token returns the current session or domain.ErrAuthRequired.
func (p *Provider) Token(ctx context.Context) (domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return domain.Session{}, err
	}
	if p.cfg.PlayerID != "" && p.cfg.Token != "" {
		return domain.Session{Token: p.cfg.Token, PlayerID: p.cfg.PlayerID}, nil
	}
	if p.cfg.CredentialsFile == "" {
		return domain.Session{}, fmt.Errorf("session: %w: no credentials configured", domain.ErrAuthRequired)
	}

	var cf credentialsFile
	ok, err := jsonfile.Read(p.cfg.CredentialsFile, &cf)
	if err != nil {
		return domain.Session{}, fmt.Errorf("session: %w: %v", domain.ErrAuthRequired, err)
	}
	if !ok || cf.PlayerID == "" || cf.SportsbookToken == "" {
		return domain.Session{}, fmt.Errorf("session: %w: %s has no credentials", domain.ErrAuthRequired, p.cfg.CredentialsFile)
	}

	issued, _ := parseTimestamp(cf.Timestamp)
	if p.cfg.MaxAge > 0 && !issued.IsZero() && p.now().Sub(issued) > p.cfg.MaxAge {
		return domain.Session{}, fmt.Errorf("session: %w: credentials from %s are expired", domain.ErrAuthRequired, issued.Format(time.RFC3339))
	}
	return domain.Session{
		Token:    cf.SportsbookToken,
		PlayerID: cf.PlayerID,
		IssuedAt: issued,
	}, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// parseTimestamp accepts RFC 3339 and naive ISO timestamps, the latter in
// local time.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("session: unrecognised timestamp %q", s)
}

var _ domain.SessionProvider = (*Provider)(nil)
