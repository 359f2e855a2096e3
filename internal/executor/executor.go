// Package executor turns sanctioned bets into ledger records, submitting them
// to the platform unless running dry.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/cricbot/internal/domain"
)

// Notifier delivers bet outcome notifications.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Recorder receives bet outcome counts.
type Recorder interface {
	BetRecorded(status string, dryRun bool)
}

// Notification event types.
const (
	EventBetPlaced = "bet_placed"
	EventBetFailed = "bet_failed"
	EventBetDryRun = "bet_dry_run"
)

// Options tunes the executor.
type Options struct {
	Constants     Constants
	OddsMaxAge    time.Duration
	SubmitTimeout time.Duration
}

// Executor builds, gates and submits bets. Every call to Execute writes
// exactly one ledger record.
type Executor struct {
	ledger   domain.Ledger
	placer   domain.BetPlacer
	sessions domain.SessionProvider
	opts     Options
	logger   *slog.Logger

	blob     domain.BlobWriter
	audit    domain.AuditStore
	notifier Notifier
	recorder Recorder

	now   func() time.Time
	newID func() string
}

// New creates an Executor.
func New(ledger domain.Ledger, placer domain.BetPlacer, sessions domain.SessionProvider, opts Options, logger *slog.Logger) *Executor {
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = 30 * time.Second
	}
	return &Executor{
		ledger:   ledger,
		placer:   placer,
		sessions: sessions,
		opts:     opts,
		logger:   logger.With(slog.String("component", "executor")),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.New().String() },
	}
}

// SetArchive enables payload and response archival.
func (e *Executor) SetArchive(blob domain.BlobWriter) { e.blob = blob }

// SetAudit mirrors every outcome into an audit store.
func (e *Executor) SetAudit(audit domain.AuditStore) { e.audit = audit }

// SetNotifier enables outcome notifications.
func (e *Executor) SetNotifier(n Notifier) { e.notifier = n }

// SetRecorder enables outcome metrics.
func (e *Executor) SetRecorder(r Recorder) { e.recorder = r }

// Execute validates bet and records the outcome. In dry-run mode the placer
// is never called. A live submission is not cancelled by ctx once started.
//
// It returns domain.ErrDuplicateBet when another process already holds a
// blocking record for the selection, and a domain.ErrLedgerIO error when the
// outcome could not be persisted.
func (e *Executor) Execute(ctx context.Context, bet domain.SanctionedBet, dryRun bool) (domain.BetRecord, error) {
	now := e.now()
	rec := domain.BetRecord{
		ID:              e.newID(),
		Bet:             bet,
		PotentialReturn: bet.PotentialReturn(),
		PlacedAt:        now,
	}
	log := e.logger.With(
		slog.String("record_id", rec.ID),
		slog.String("event_id", bet.EventID),
		slog.String("selection_id", bet.SelectionID),
		slog.Bool("dry_run", dryRun),
	)

	if err := Validate(bet, now, e.opts.OddsMaxAge); err != nil {
		log.Warn("bet failed validation", slog.String("error", err.Error()))
		return e.finishLocal(ctx, log, rec, CodeValidation, err, dryRun)
	}

	sess, err := e.sessions.Token(ctx)
	if err != nil {
		if !dryRun {
			log.Error("no session for live bet", slog.String("error", err.Error()))
			return e.finishLocal(ctx, log, rec, CodeAuthRequired, err, dryRun)
		}
		// Dry runs only need the payload shape.
		sess = domain.Session{}
	}

	payload := BuildPayload(rec.ID, bet, sess, e.opts.Constants)
	body, err := payload.Encode()
	if err != nil {
		return e.finishLocal(ctx, log, rec, CodeValidation, fmt.Errorf("%w: encode payload: %v", domain.ErrValidation, err), dryRun)
	}

	if dryRun {
		rec.Status = domain.BetStatusDryRun
		if err := e.ledger.Append(ctx, rec); err != nil {
			return domain.BetRecord{}, fmt.Errorf("executor: record dry run: %w", err)
		}
		log.Info("dry run bet recorded",
			slog.String("odds", bet.OddsAtMatch.String()),
			slog.String("stake", bet.Stake.String()),
		)
		e.archive(ctx, log, rec.ID, "payload.json", redactPayload(payload))
		e.report(ctx, log, rec, dryRun)
		return rec, nil
	}

	rec.Status = domain.BetStatusPending
	if err := e.ledger.Reserve(ctx, rec); err != nil {
		if errors.Is(err, domain.ErrDuplicateBet) {
			log.Warn("selection already reserved by another pass")
		}
		return domain.BetRecord{}, fmt.Errorf("executor: reserve: %w", err)
	}

	// Once reserved, the submission and its resolution run to completion.
	detached := context.WithoutCancel(ctx)
	submitCtx, cancel := context.WithTimeout(detached, e.opts.SubmitTimeout)
	res, subErr := e.placer.Submit(submitCtx, sess, body)
	cancel()

	done := e.now()
	rec.UpdatedAt = &done
	switch {
	case subErr == nil:
		rec.Status = domain.BetStatusPlaced
		rec.BetID = res.BetID
		log.Info("bet placed", slog.String("bet_id", res.BetID))
	default:
		rec.Status = domain.BetStatusFailed
		var pe *domain.PlacementError
		if errors.As(subErr, &pe) {
			rec.ErrorCode, rec.Error = pe.Code, pe.Message
		} else {
			rec.ErrorCode, rec.Error = CodeSubmit, subErr.Error()
		}
		log.Warn("bet rejected",
			slog.String("error_code", rec.ErrorCode),
			slog.String("error", rec.Error),
		)
	}

	if err := e.ledger.Resolve(detached, rec); err != nil {
		log.Error("bet outcome not persisted, record left pending", slog.String("error", err.Error()))
		return rec, fmt.Errorf("executor: resolve: %w", err)
	}

	e.archive(detached, log, rec.ID, "payload.json", redactPayload(payload))
	if len(res.Raw) > 0 {
		e.archive(detached, log, rec.ID, "response.json", res.Raw)
	}
	e.report(detached, log, rec, dryRun)
	return rec, nil
}

// finishLocal records a failure decided before any submission.
func (e *Executor) finishLocal(ctx context.Context, log *slog.Logger, rec domain.BetRecord, code string, cause error, dryRun bool) (domain.BetRecord, error) {
	rec.Status = domain.BetStatusFailed
	rec.ErrorCode = code
	rec.Error = cause.Error()
	if err := e.ledger.Append(ctx, rec); err != nil {
		return domain.BetRecord{}, fmt.Errorf("executor: record failure: %w", err)
	}
	e.report(ctx, log, rec, dryRun)
	if code == CodeAuthRequired {
		return rec, fmt.Errorf("executor: %w", domain.ErrAuthRequired)
	}
	return rec, nil
}

func (e *Executor) archive(ctx context.Context, log *slog.Logger, recordID, name string, data []byte) {
	if e.blob == nil || len(data) == 0 {
		return
	}
	path := fmt.Sprintf("bets/%s/%s", recordID, name)
	if err := e.blob.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		log.Warn("archive failed", slog.String("path", path), slog.String("error", err.Error()))
	}
}

func (e *Executor) report(ctx context.Context, log *slog.Logger, rec domain.BetRecord, dryRun bool) {
	if e.recorder != nil {
		e.recorder.BetRecorded(string(rec.Status), dryRun)
	}
	if e.audit != nil {
		detail := map[string]any{
			"record_id":    rec.ID,
			"event_id":     rec.Bet.EventID,
			"selection_id": rec.Bet.SelectionID,
			"market_id":    rec.Bet.MarketID,
			"odds":         rec.Bet.OddsAtMatch.String(),
			"stake":        rec.Bet.Stake.String(),
			"status":       string(rec.Status),
			"dry_run":      dryRun,
		}
		if rec.BetID != "" {
			detail["bet_id"] = rec.BetID
		}
		if rec.ErrorCode != "" {
			detail["error_code"] = rec.ErrorCode
			detail["error"] = rec.Error
		}
		if err := e.audit.Log(ctx, "bet_"+string(rec.Status), detail); err != nil {
			log.Warn("audit log failed", slog.String("error", err.Error()))
		}
	}
	if e.notifier != nil {
		event, title := notification(rec)
		msg := fmt.Sprintf("%s\n%s @ %s, stake %s\nreturn %s",
			rec.Bet.EventName, rec.Bet.SelectionName, rec.Bet.OddsAtMatch, rec.Bet.Stake, rec.PotentialReturn.StringFixed(2))
		if rec.Status == domain.BetStatusFailed {
			msg += fmt.Sprintf("\n%s: %s", rec.ErrorCode, rec.Error)
		}
		if err := e.notifier.Notify(ctx, event, title, msg); err != nil {
			log.Warn("notify failed", slog.String("error", err.Error()))
		}
	}
}

func notification(rec domain.BetRecord) (event, title string) {
	switch rec.Status {
	case domain.BetStatusPlaced:
		return EventBetPlaced, "Bet placed"
	case domain.BetStatusDryRun:
		return EventBetDryRun, "Bet (dry run)"
	default:
		return EventBetFailed, "Bet failed"
	}
}

// redactPayload encodes the payload for archival without the session token.
func redactPayload(p BetPayload) []byte {
	if p.SportToken != "" {
		p.SportToken = "***"
	}
	b, err := p.Encode()
	if err != nil {
		return nil
	}
	return b
}
