package approval

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/expense"
	"github.com/frahmantamala/expense-approval/internal/transport"
)

type LifecycleAPI interface {
	Submit(ctx context.Context, actor internal.ActorContext, expenseID int64) (*expense.Expense, error)
	Decide(ctx context.Context, actor internal.ActorContext, expenseID int64, dto expense.DecisionDTO) (*expense.Expense, error)
}

// QueryAPI is the read side served from the expense service.
type QueryAPI interface {
	ListPendingFor(ctx context.Context, actor internal.ActorContext, limit, offset int) ([]*expense.Expense, error)
	ListStalled(ctx context.Context, actor internal.ActorContext) ([]*expense.Expense, error)
	History(ctx context.Context, actor internal.ActorContext, id int64) ([]expense.HistoryEntry, error)
}

type Handler struct {
	*transport.BaseHandler
	Lifecycle LifecycleAPI
	Queries   QueryAPI
}

func NewHandler(lifecycle LifecycleAPI, queries QueryAPI, lg *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Lifecycle:   lifecycle,
		Queries:     queries,
	}
}

// SubmitExpense handles POST /expenses/{id}/submit
func (h *Handler) SubmitExpense(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Actor(w, r)
	if !ok {
		return
	}
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	e, err := h.Lifecycle.Submit(r.Context(), actor, id)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, e)
}

// PendingApprovals handles GET /approvals/pending
func (h *Handler) PendingApprovals(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Actor(w, r)
	if !ok {
		return
	}
	limit, offset := h.Pagination(r)

	expenses, err := h.Queries.ListPendingFor(r.Context(), actor, limit, offset)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	if expenses == nil {
		expenses = []*expense.Expense{}
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"expenses": expenses,
		"limit":    limit,
		"offset":   offset,
	})
}

// Decide handles POST /approvals/{id}/action
func (h *Handler) Decide(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Actor(w, r)
	if !ok {
		return
	}
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	var dto expense.DecisionDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	e, err := h.Lifecycle.Decide(r.Context(), actor, id, dto)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, e)
}

// History handles GET /approvals/{id}/history
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Actor(w, r)
	if !ok {
		return
	}
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	history, err := h.Queries.History(r.Context(), actor, id)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	if history == nil {
		history = []expense.HistoryEntry{}
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"expense_id": id, "history": history})
}

// StalledExpenses handles GET /approvals/stalled
func (h *Handler) StalledExpenses(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Actor(w, r)
	if !ok {
		return
	}

	expenses, err := h.Queries.ListStalled(r.Context(), actor)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	if expenses == nil {
		expenses = []*expense.Expense{}
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"expenses": expenses})
}
