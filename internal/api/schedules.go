package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"coursepulse/internal/dispatch"
	"coursepulse/internal/types"
)

// Dispatcher runs one dispatch batch. Implemented by dispatch.Loop.
type Dispatcher interface {
	Run(ctx context.Context, batchLimit int, userFilter int64) (dispatch.Stats, error)
}

// ScheduleReader provides read access to schedule rows for inspection.
type ScheduleReader interface {
	GetByID(ctx context.Context, id string) (*types.Schedule, error)
	ListStuck(ctx context.Context, olderThan time.Time, limit int) ([]*types.Schedule, error)
}

// ScheduleHandler exposes queue inspection and the interactive trigger.
type ScheduleHandler struct {
	dispatcher     Dispatcher
	schedules      ScheduleReader
	clock          types.Clock
	logger         types.Logger
	batchLimit     int
	stuckThreshold time.Duration
}

func NewScheduleHandler(
	dispatcher Dispatcher,
	schedules ScheduleReader,
	clock types.Clock,
	logger types.Logger,
	batchLimit int,
	stuckThreshold time.Duration,
) *ScheduleHandler {
	return &ScheduleHandler{
		dispatcher:     dispatcher,
		schedules:      schedules,
		clock:          clock,
		logger:         logger,
		batchLimit:     batchLimit,
		stuckThreshold: stuckThreshold,
	}
}

// RegisterRoutes mounts schedule routes on the provided chi.Router.
func (h *ScheduleHandler) RegisterRoutes(r chi.Router) {
	r.Route("/schedules", func(r chi.Router) {
		r.Post("/trigger", h.Trigger)
		r.Get("/stuck", h.ListStuck)
		r.Get("/{id}", h.Get)
	})
}

// Trigger runs one dispatch batch immediately. A user_id query parameter
// restricts the run to a single user's due schedules; without it the full
// due set is drained, exactly as the periodic job would.
func (h *ScheduleHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var userFilter int64
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
				"user_id must be an integer", err))
			return
		}
		userFilter = parsed
	}

	stats, err := h.dispatcher.Run(r.Context(), h.batchLimit, userFilter)
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: stats})
}

func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.schedules.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: s})
}

// ListStuck returns queued schedules overdue past the stuck threshold,
// for operator attention.
func (h *ScheduleHandler) ListStuck(w http.ResponseWriter, r *http.Request) {
	olderThan := h.clock.Now().Add(-h.stuckThreshold)

	rows, err := h.schedules.ListStuck(r.Context(), olderThan, h.batchLimit)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: rows})
}
