package expense

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/transport"
)

type ServiceAPI interface {
	CreateExpense(ctx context.Context, actor internal.ActorContext, dto CreateExpenseDTO) (*Expense, error)
	GetExpense(ctx context.Context, actor internal.ActorContext, id int64) (*Expense, error)
	ListMine(ctx context.Context, actor internal.ActorContext, status *Status, limit, offset int) ([]*Expense, error)
	ListExpenses(ctx context.Context, actor internal.ActorContext, status *Status, limit, offset int) ([]*Expense, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(svc ServiceAPI, lg *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
	}
}

// CreateExpense handles POST /expenses
func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Actor(w, r)
	if !ok {
		return
	}

	var dto CreateExpenseDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	e, err := h.Service.CreateExpense(r.Context(), actor, dto)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, e)
}

// ListMine handles GET /expenses/mine
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Actor(w, r)
	if !ok {
		return
	}
	status, err := statusParam(r)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	limit, offset := h.Pagination(r)

	expenses, err := h.Service.ListMine(r.Context(), actor, status, limit, offset)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, listResponse(expenses, limit, offset))
}

// ListExpenses handles GET /expenses
func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Actor(w, r)
	if !ok {
		return
	}
	status, err := statusParam(r)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	limit, offset := h.Pagination(r)

	expenses, err := h.Service.ListExpenses(r.Context(), actor, status, limit, offset)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, listResponse(expenses, limit, offset))
}

// GetExpense handles GET /expenses/{id}
func (h *Handler) GetExpense(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Actor(w, r)
	if !ok {
		return
	}
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	e, err := h.Service.GetExpense(r.Context(), actor, id)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, e)
}

func statusParam(r *http.Request) (*Status, error) {
	raw := r.URL.Query().Get("status")
	if raw == "" {
		return nil, nil
	}
	st := Status(raw)
	if !st.Valid() {
		return nil, internal.NewValidationFieldError("status", "status must be one of [draft pending approved rejected]", internal.ErrCodeValidationFailed)
	}
	return &st, nil
}

func listResponse(expenses []*Expense, limit, offset int) map[string]interface{} {
	if expenses == nil {
		expenses = []*Expense{}
	}
	return map[string]interface{}{
		"expenses": expenses,
		"limit":    limit,
		"offset":   offset,
	}
}
