package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/cricbot/internal/pipeline"
)

// PassSource exposes the reports of recently completed passes.
type PassSource interface {
	RecentPasses() []pipeline.PassReport
}

// PipelineHandler serves pass reports and manual pass triggers.
type PipelineHandler struct {
	logger   *slog.Logger
	passes   PassSource
	triggers map[pipeline.Phase]chan<- struct{}
}

// NewPipelineHandler creates a PipelineHandler with the given logger.
func NewPipelineHandler(passes PassSource, logger *slog.Logger) *PipelineHandler {
	return &PipelineHandler{
		logger:   logger.With(slog.String("handler", "pipeline")),
		passes:   passes,
		triggers: make(map[pipeline.Phase]chan<- struct{}),
	}
}

// WithTrigger registers the channel that starts one pass of phase. The
// scheduler loop must receive from it.
func (h *PipelineHandler) WithTrigger(phase pipeline.Phase, ch chan<- struct{}) *PipelineHandler {
	h.triggers[phase] = ch
	return h
}

// RecentPasses lists the latest pass reports, newest first.
// GET /api/passes
func (h *PipelineHandler) RecentPasses(w http.ResponseWriter, r *http.Request) {
	var reports []pipeline.PassReport
	if h.passes != nil {
		reports = h.passes.RecentPasses()
	}
	if reports == nil {
		reports = []pipeline.PassReport{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"passes": reports})
}

// TriggerPass enqueues one pass of the phase named in the path. The send is
// non-blocking, so repeated triggers collapse into one pending run.
// POST /api/passes/{phase}/trigger
func (h *PipelineHandler) TriggerPass(w http.ResponseWriter, r *http.Request) {
	phase := pipeline.Phase(r.PathValue("phase"))
	ch, ok := h.triggers[phase]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown phase "+string(phase))
		return
	}

	h.logger.InfoContext(r.Context(), "pass trigger requested", slog.String("phase", string(phase)))
	queued := true
	select {
	case ch <- struct{}{}:
	default:
		queued = false
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"phase":        phase,
		"queued":       queued,
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
