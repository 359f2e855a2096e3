package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/cricbot/internal/domain"
)

// AuditStore implements domain.AuditStore over the bet_audit table. The
// ledger file stays the source of truth; this is a queryable mirror.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore creates a new AuditStore backed by the given connection pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// auditRow is the denormalized form of one entry. The identifying fields are
// lifted out of detail so they can be indexed.
type auditRow struct {
	Event       string
	RecordID    *string
	EventID     *string
	SelectionID *string
	Status      *string
	DryRun      bool
	Detail      []byte
}

func newAuditRow(event string, detail map[string]any) (auditRow, error) {
	if detail == nil {
		detail = map[string]any{}
	}
	data, err := json.Marshal(detail)
	if err != nil {
		return auditRow{}, fmt.Errorf("postgres: marshal audit detail: %w", err)
	}
	row := auditRow{
		Event:       event,
		RecordID:    stringField(detail, "record_id"),
		EventID:     stringField(detail, "event_id"),
		SelectionID: stringField(detail, "selection_id"),
		Status:      stringField(detail, "status"),
		Detail:      data,
	}
	if b, ok := detail["dry_run"].(bool); ok {
		row.DryRun = b
	}
	return row, nil
}

func stringField(detail map[string]any, key string) *string {
	s, ok := detail[key].(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}

// Log appends a new audit entry with the given event name and detail map.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	row, err := newAuditRow(event, detail)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO bet_audit (event, record_id, event_id, selection_id, status, dry_run, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = s.pool.Exec(ctx, query,
		row.Event, row.RecordID, row.EventID, row.SelectionID, row.Status, row.DryRun, row.Detail)
	if err != nil {
		return fmt.Errorf("postgres: log audit event %s: %w", event, err)
	}
	return nil
}

// buildListQuery assembles the paginated, time-filtered select.
func buildListQuery(opts domain.ListOpts) (string, []any) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`SELECT id, event, detail, created_at FROM bet_audit WHERE 1=1`)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if opts.Since != nil {
		sb.WriteString(" AND created_at >= " + arg(*opts.Since))
	}
	if opts.Until != nil {
		sb.WriteString(" AND created_at <= " + arg(*opts.Until))
	}
	sb.WriteString(" ORDER BY created_at DESC, id DESC")
	if opts.Limit > 0 {
		sb.WriteString(" LIMIT " + arg(opts.Limit))
	}
	if opts.Offset > 0 {
		sb.WriteString(" OFFSET " + arg(opts.Offset))
	}
	return sb.String(), args
}

// List returns audit entries newest first with pagination and optional time
// filtering.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	query, args := buildListQuery(opts)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var detailJSON []byte

		if err := rows.Scan(&e.ID, &e.Event, &detailJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan audit entry: %w", err)
		}
		if detailJSON != nil {
			if err := json.Unmarshal(detailJSON, &e.Detail); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal audit detail: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list audit entries rows: %w", err)
	}
	return entries, nil
}

// Compile-time interface check.
var _ domain.AuditStore = (*AuditStore)(nil)
