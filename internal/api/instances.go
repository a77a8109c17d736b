package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"coursepulse/internal/types"
)

// InstanceRepo defines the data access contract for instance operations.
// Mirrors the concrete db.InstanceRepository methods used by this handler.
type InstanceRepo interface {
	Create(ctx context.Context, in *types.Instance) error
	GetByID(ctx context.Context, id string) (*types.Instance, error)
	Update(ctx context.Context, in *types.Instance) error
	Delete(ctx context.Context, id string) error
	ListByCourse(ctx context.Context, courseID int64) ([]*types.Instance, error)
	SetCondition(ctx context.Context, instanceID string, setting types.ConditionSetting) error
	RemoveCondition(ctx context.Context, instanceID, component string) error
}

// OverrideService handles explicit override removal.
// Implemented by overrides.Resolver.
type OverrideService interface {
	RemoveOverrides(ctx context.Context, instanceID string, fields []string) error
}

// EffectiveSource resolves an instance's fully merged configuration.
// Implemented by overrides.Loader.
type EffectiveSource interface {
	Effective(ctx context.Context, instanceID string) (*types.EffectiveConfig, error)
}

// InstanceEvents receives edit notifications so the schedule queue can be
// requalified. Implemented by events.Hooks.
type InstanceEvents interface {
	HandleInstanceSaved(ctx context.Context, instanceID string) error
}

// CreateInstanceRequest is the request body for POST /v1/instances.
type CreateInstanceRequest struct {
	TemplateID string                 `json:"template_id" validate:"required"`
	CourseID   int64                  `json:"course_id" validate:"required"`
	Status     types.Status           `json:"status" validate:"omitempty,oneof=enabled disabled"`
	Overrides  types.InstanceOverride `json:"overrides"`
}

// UpdateInstanceRequest is the request body for PUT /v1/instances/{id}.
// The override record replaces the stored one wholesale; fields left as
// inherited (JSON null or absent) stay inherited. Resetting a previously
// overridden field back to inherited goes through the remove-overrides
// endpoint instead, so storage records the reset explicitly.
type UpdateInstanceRequest struct {
	Status    types.Status           `json:"status" validate:"omitempty,oneof=enabled disabled"`
	Overrides types.InstanceOverride `json:"overrides"`
}

// RemoveOverridesRequest names the override fields to reset to inherited.
type RemoveOverridesRequest struct {
	Fields []string `json:"fields" validate:"required,min=1"`
}

// SetConditionRequest configures one condition component on an instance.
type SetConditionRequest struct {
	Component    string               `json:"component" validate:"required"`
	Status       types.ConditionStatus `json:"status" validate:"min=0,max=2"`
	UpcomingTime *string              `json:"upcoming_time,omitempty"`
	Extra        map[string]any       `json:"extra,omitempty"`
}

// InstanceHandler manages instances, their overrides and their condition
// settings.
type InstanceHandler struct {
	repo      InstanceRepo
	overrides OverrideService
	effective EffectiveSource
	events    InstanceEvents
	validator *validator.Validate
	logger    types.Logger
}

func NewInstanceHandler(
	repo InstanceRepo,
	overrides OverrideService,
	effective EffectiveSource,
	events InstanceEvents,
	v *validator.Validate,
	logger types.Logger,
) *InstanceHandler {
	return &InstanceHandler{
		repo:      repo,
		overrides: overrides,
		effective: effective,
		events:    events,
		validator: v,
		logger:    logger,
	}
}

// RegisterRoutes mounts instance routes on the provided chi.Router.
func (h *InstanceHandler) RegisterRoutes(r chi.Router) {
	r.Route("/instances", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.ListByCourse)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Get("/effective", h.GetEffective)
			r.Put("/", h.Update)
			r.Delete("/", h.Delete)
			r.Post("/remove-overrides", h.RemoveOverrides)
			r.Put("/conditions", h.SetCondition)
			r.Delete("/conditions/{component}", h.RemoveCondition)
		})
	})
}

func (h *InstanceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateInstanceRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, err.Error(), err))
		return
	}

	status := req.Status
	if status == "" {
		status = types.StatusDisabled
	}

	in := &types.Instance{
		TemplateID: req.TemplateID,
		CourseID:   req.CourseID,
		Status:     status,
		Overrides:  req.Overrides,
	}
	if err := h.repo.Create(r.Context(), in); err != nil {
		Error(w, r, err)
		return
	}

	h.notifySaved(r.Context(), in.ID)
	JSON(w, r, http.StatusCreated, APIResponse{Data: in})
}

func (h *InstanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	in, err := h.repo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: in})
}

// GetEffective returns the instance's fully resolved configuration: every
// override applied over the template defaults, condition map merged.
func (h *InstanceHandler) GetEffective(w http.ResponseWriter, r *http.Request) {
	eff, err := h.effective.Effective(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: eff})
}

func (h *InstanceHandler) ListByCourse(w http.ResponseWriter, r *http.Request) {
	courseID, err := strconv.ParseInt(r.URL.Query().Get("course_id"), 10, 64)
	if err != nil {
		Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"course_id query parameter is required", err))
		return
	}

	instances, err := h.repo.ListByCourse(r.Context(), courseID)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: instances})
}

func (h *InstanceHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateInstanceRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}

	in, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		Error(w, r, err)
		return
	}

	if req.Status != "" {
		in.Status = req.Status
	}
	in.Overrides = req.Overrides

	if err := h.repo.Update(r.Context(), in); err != nil {
		Error(w, r, err)
		return
	}

	h.notifySaved(r.Context(), id)
	JSON(w, r, http.StatusOK, APIResponse{Data: in})
}

func (h *InstanceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveOverrides resets the named override fields back to inherited.
func (h *InstanceHandler) RemoveOverrides(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req RemoveOverridesRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, err.Error(), err))
		return
	}

	if err := h.overrides.RemoveOverrides(r.Context(), id, req.Fields); err != nil {
		Error(w, r, err)
		return
	}

	h.notifySaved(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *InstanceHandler) SetCondition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req SetConditionRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, err.Error(), err))
		return
	}

	// A condition set through this endpoint is always an explicit
	// instance-level override, never an inherited template default.
	setting := types.ConditionSetting{
		Component:    req.Component,
		Status:       req.Status,
		IsOverridden: true,
		Extra:        req.Extra,
	}
	if req.UpcomingTime != nil {
		t, err := parseRFC3339(*req.UpcomingTime)
		if err != nil {
			Error(w, r, err)
			return
		}
		setting.UpcomingTime = t
	}

	if err := h.repo.SetCondition(r.Context(), id, setting); err != nil {
		Error(w, r, err)
		return
	}

	h.notifySaved(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *InstanceHandler) RemoveCondition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	component := chi.URLParam(r, "component")

	if err := h.repo.RemoveCondition(r.Context(), id, component); err != nil {
		Error(w, r, err)
		return
	}

	h.notifySaved(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

func parseRFC3339(s string) (*time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationOverride,
			"upcoming_time must be RFC 3339", err)
	}
	t = t.UTC()
	return &t, nil
}

// notifySaved fans the edit out to schedule requalification. Failures are
// logged; the write itself already committed.
func (h *InstanceHandler) notifySaved(ctx context.Context, instanceID string) {
	if err := h.events.HandleInstanceSaved(ctx, instanceID); err != nil {
		h.logger.Error("instance saved but requalification failed",
			"instance_id", instanceID,
			"error", err,
		)
	}
}
