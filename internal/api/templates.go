package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"coursepulse/internal/types"
)

// TemplateRepo defines the data access contract for template operations.
// Mirrors the concrete db.TemplateRepository methods used by this handler.
type TemplateRepo interface {
	Create(ctx context.Context, t *types.Template) error
	GetByID(ctx context.Context, id string) (*types.Template, error)
	Update(ctx context.Context, t *types.Template) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, onlyVisible bool) ([]*types.Template, error)
}

// TemplateEvents receives edit notifications so the schedule queue can be
// requalified. Implemented by events.Hooks.
type TemplateEvents interface {
	HandleTemplateSaved(ctx context.Context, templateID string) error
}

// CreateTemplateRequest is the request body for POST /v1/templates.
type CreateTemplateRequest struct {
	Title             string                   `json:"title" validate:"required,max=255"`
	Visible           bool                     `json:"visible"`
	Status            types.Status             `json:"status" validate:"omitempty,oneof=enabled disabled"`
	Categories        []int64                  `json:"categories,omitempty"`
	Config            types.NotificationConfig `json:"config"`
	TriggerOperator   types.ConditionLogic     `json:"trigger_operator" validate:"omitempty,oneof=ANY ALL"`
	TriggerConditions types.ConditionMap       `json:"trigger_conditions,omitempty"`
}

// UpdateTemplateRequest is the request body for PUT /v1/templates/{id}.
// Whole-record replacement; sparse overrides live on instances, not here.
type UpdateTemplateRequest struct {
	Title             string                   `json:"title" validate:"required,max=255"`
	Visible           bool                     `json:"visible"`
	Status            types.Status             `json:"status" validate:"omitempty,oneof=enabled disabled"`
	Categories        []int64                  `json:"categories,omitempty"`
	Config            types.NotificationConfig `json:"config"`
	TriggerOperator   types.ConditionLogic     `json:"trigger_operator" validate:"omitempty,oneof=ANY ALL"`
	TriggerConditions types.ConditionMap       `json:"trigger_conditions,omitempty"`
}

// TemplateHandler manages template CRUD.
type TemplateHandler struct {
	repo      TemplateRepo
	events    TemplateEvents
	validator *validator.Validate
	logger    types.Logger
}

func NewTemplateHandler(repo TemplateRepo, events TemplateEvents, v *validator.Validate, logger types.Logger) *TemplateHandler {
	return &TemplateHandler{
		repo:      repo,
		events:    events,
		validator: v,
		logger:    logger,
	}
}

// RegisterRoutes mounts template routes on the provided chi.Router.
func (h *TemplateHandler) RegisterRoutes(r chi.Router) {
	r.Route("/templates", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Put("/", h.Update)
			r.Delete("/", h.Delete)
		})
	})
}

func (h *TemplateHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTemplateRequest
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
	operator := req.TriggerOperator
	if operator == "" {
		operator = types.LogicAll
	}

	t := &types.Template{
		Title:             req.Title,
		Visible:           req.Visible,
		Status:            status,
		Categories:        req.Categories,
		Config:            req.Config,
		TriggerOperator:   operator,
		TriggerConditions: req.TriggerConditions,
	}
	if err := h.repo.Create(r.Context(), t); err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusCreated, APIResponse{Data: t})
}

func (h *TemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.repo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: t})
}

func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	onlyVisible := r.URL.Query().Get("visible") == "true"
	templates, err := h.repo.List(r.Context(), onlyVisible)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: templates})
}

func (h *TemplateHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateTemplateRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, err.Error(), err))
		return
	}

	t, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		Error(w, r, err)
		return
	}

	t.Title = req.Title
	t.Visible = req.Visible
	if req.Status != "" {
		t.Status = req.Status
	}
	t.Categories = req.Categories
	t.Config = req.Config
	if req.TriggerOperator != "" {
		t.TriggerOperator = req.TriggerOperator
	}
	t.TriggerConditions = req.TriggerConditions

	if err := h.repo.Update(r.Context(), t); err != nil {
		Error(w, r, err)
		return
	}

	// A template edit changes the inherited config of every bound instance;
	// fan out requalification so queued schedules track the new settings.
	if err := h.events.HandleTemplateSaved(r.Context(), id); err != nil {
		h.logger.Error("template saved but requalification failed",
			"template_id", id,
			"error", err,
		)
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: t})
}

func (h *TemplateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
