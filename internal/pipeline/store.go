package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/alanyoungcy/cricbot/internal/domain"
	"github.com/alanyoungcy/cricbot/internal/store/jsonfile"
)

// ScheduleCache persists the events found by discovery so later passes can
// run without it.
type ScheduleCache struct {
	path string
}

// NewScheduleCache stores the schedule at path.
func NewScheduleCache(path string) *ScheduleCache {
	return &ScheduleCache{path: path}
}

// Load returns the cached events and whether a cache exists.
func (c *ScheduleCache) Load() ([]domain.Event, bool, error) {
	var events []domain.Event
	ok, err := jsonfile.Read(c.path, &events)
	if err != nil {
		return nil, ok, fmt.Errorf("pipeline: load schedule: %w", err)
	}
	return events, ok, nil
}

// Save replaces the cached schedule.
func (c *ScheduleCache) Save(events []domain.Event) error {
	if events == nil {
		events = []domain.Event{}
	}
	if err := jsonfile.Write(c.path, events); err != nil {
		return fmt.Errorf("pipeline: save schedule: %w", err)
	}
	return nil
}

// SnapshotWriter writes normalized markets for audit: always to the local
// snapshot directory, and to the market cache and blob storage when set.
type SnapshotWriter struct {
	dir    string
	cache  domain.MarketCache
	blob   domain.BlobWriter
	logger *slog.Logger
}

// NewSnapshotWriter writes snapshot files under dir.
func NewSnapshotWriter(dir string, cache domain.MarketCache, blob domain.BlobWriter, logger *slog.Logger) *SnapshotWriter {
	return &SnapshotWriter{dir: dir, cache: cache, blob: blob, logger: logger}
}

// Path returns the snapshot file for an event.
func (w *SnapshotWriter) Path(eventID string) string {
	return filepath.Join(w.dir, "markets_"+eventID+".json")
}

// Write persists markets for eventID. Only the local file is required to
// succeed; cache and archive failures are logged.
func (w *SnapshotWriter) Write(ctx context.Context, eventID string, markets []domain.Market, at time.Time) error {
	if markets == nil {
		markets = []domain.Market{}
	}
	if err := jsonfile.Write(w.Path(eventID), markets); err != nil {
		return fmt.Errorf("pipeline: write snapshot %s: %w", eventID, err)
	}

	if w.cache != nil {
		if err := w.cache.SetMarkets(ctx, eventID, markets); err != nil {
			w.logger.Warn("market cache write failed",
				slog.String("event_id", eventID),
				slog.String("error", err.Error()),
			)
		}
	}
	if w.blob != nil {
		data, err := json.Marshal(markets)
		if err != nil {
			return nil
		}
		key := fmt.Sprintf("snapshots/%s/markets_%s_%s.json", at.Format("2006-01-02"), eventID, at.Format("150405"))
		if err := w.blob.Put(ctx, key, bytes.NewReader(data), "application/json"); err != nil {
			w.logger.Warn("snapshot archive failed",
				slog.String("event_id", eventID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}
