package currency

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/core/common/validation"
	"github.com/frahmantamala/expense-approval/internal/transport"
)

type ConvertDTO struct {
	Amount decimal.Decimal `json:"amount"`
	From   string          `json:"from" validate:"required,currency_code"`
	To     string          `json:"to" validate:"required,currency_code"`
}

type Handler struct {
	*transport.BaseHandler
	Rates RateService
}

func NewHandler(rates RateService, lg *slog.Logger) *Handler {
	return &Handler{BaseHandler: transport.NewBaseHandler(lg), Rates: rates}
}

// ListCountries handles GET /currency/countries
func (h *Handler) ListCountries(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"countries": Countries()})
}

// Convert handles POST /currency/convert
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	var dto ConvertDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	if err := validation.Struct(dto); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	if !dto.Amount.IsPositive() {
		h.HandleServiceError(w, r, internal.NewValidationFieldError("amount", "amount must be greater than 0", internal.ErrCodeInvalidAmount))
		return
	}

	conv, err := h.Rates.Convert(r.Context(), dto.Amount, dto.From, dto.To)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, conv)
}

// GetRates handles GET /currency/rates/{base}
func (h *Handler) GetRates(w http.ResponseWriter, r *http.Request) {
	table, err := h.Rates.RateTable(r.Context(), chi.URLParam(r, "base"))
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, table)
}
