package approvalrule

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/transport"
)

type ServiceAPI interface {
	ListRules(ctx context.Context, actor internal.ActorContext) ([]*Rule, error)
	GetRule(ctx context.Context, actor internal.ActorContext, id int64) (*Rule, error)
	CreateRule(ctx context.Context, actor internal.ActorContext, dto CreateRuleDTO) (*Rule, error)
	UpdateRule(ctx context.Context, actor internal.ActorContext, id int64, dto UpdateRuleDTO) (*Rule, error)
	DeleteRule(ctx context.Context, actor internal.ActorContext, id int64) error
	ToggleRule(ctx context.Context, actor internal.ActorContext, id int64) (*Rule, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(svc ServiceAPI, lg *slog.Logger) *Handler {
	return &Handler{BaseHandler: transport.NewBaseHandler(lg), Service: svc}
}

// ListRules handles GET /approval-rules
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Actor(w, r)
	if !ok {
		return
	}
	rules, err := h.Service.ListRules(r.Context(), actor)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"rules": rules})
}

// GetRule handles GET /approval-rules/{id}
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Actor(w, r)
	if !ok {
		return
	}
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	rule, err := h.Service.GetRule(r.Context(), actor, id)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, rule)
}

// CreateRule handles POST /approval-rules
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Actor(w, r)
	if !ok {
		return
	}
	var dto CreateRuleDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	rule, err := h.Service.CreateRule(r.Context(), actor, dto)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, rule)
}

// UpdateRule handles PUT /approval-rules/{id}
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Actor(w, r)
	if !ok {
		return
	}
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	var dto UpdateRuleDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	rule, err := h.Service.UpdateRule(r.Context(), actor, id, dto)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, rule)
}

// DeleteRule handles DELETE /approval-rules/{id}
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Actor(w, r)
	if !ok {
		return
	}
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	if err := h.Service.DeleteRule(r.Context(), actor, id); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleRule handles PATCH /approval-rules/{id}/toggle
func (h *Handler) ToggleRule(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Actor(w, r)
	if !ok {
		return
	}
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	rule, err := h.Service.ToggleRule(r.Context(), actor, id)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, rule)
}
