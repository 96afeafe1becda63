package tax

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/billing-engine/internal/common"
)

// Handler exposes tax calculation and rate management endpoints.
type Handler struct {
	Service  *Service
	Registry *Registry
	Validate *validator.Validate
}

type calculateRequest struct {
	Amount       int64  `json:"amount" validate:"min=0"`
	Jurisdiction string `json:"jurisdiction"`
	Rates        []Rate `json:"rates"`
	Inclusive    bool   `json:"inclusive"`
}

// Calculate handles POST /api/v1/tax/calculate.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.Service.Calculate(r.Context(), req.Amount, req.Jurisdiction, req.Rates, req.Inclusive)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

type lineItemsRequest struct {
	Items        []LineItem `json:"items" validate:"required,min=1"`
	Jurisdiction string     `json:"jurisdiction"`
	Rates        []Rate     `json:"rates"`
	Inclusive    bool       `json:"inclusive"`
}

// LineItems handles POST /api/v1/tax/line-items.
func (h *Handler) LineItems(w http.ResponseWriter, r *http.Request) {
	var req lineItemsRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.Service.CalculateLineItems(r.Context(), req.Items, req.Jurisdiction, req.Rates, req.Inclusive)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

type reverseRequest struct {
	TotalAmount  int64  `json:"total_amount" validate:"min=0"`
	Jurisdiction string `json:"jurisdiction"`
	Rates        []Rate `json:"rates"`
}

// Reverse handles POST /api/v1/tax/reverse: extracting tax from a known
// tax-inclusive total.
func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	var req reverseRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.Service.ReverseCalculate(r.Context(), req.TotalAmount, req.Jurisdiction, req.Rates)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

// EffectiveRate handles GET /api/v1/tax/effective-rate?jurisdiction=US-CA.
func (h *Handler) EffectiveRate(w http.ResponseWriter, r *http.Request) {
	jurisdiction := strings.TrimSpace(r.URL.Query().Get("jurisdiction"))
	rate, err := h.Service.EffectiveRate(r.Context(), jurisdiction)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"jurisdiction":   jurisdiction,
		"effective_rate": rate,
	}})
}

// AddRate handles POST /api/v1/tax/rates.
func (h *Handler) AddRate(w http.ResponseWriter, r *http.Request) {
	var req AddRateParams
	if !h.decode(w, r, &req) {
		return
	}
	rate, err := h.Registry.AddRate(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": rate})
}

// ListRates handles GET /api/v1/tax/rates.
func (h *Handler) ListRates(w http.ResponseWriter, r *http.Request) {
	rates, err := h.Registry.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rates})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON payload", nil)
		return false
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(dst); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
			return false
		}
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidTaxRate):
		common.JSONError(w, http.StatusBadRequest, "INVALID_TAX_RATE", err.Error(), nil)
	case errors.Is(err, ErrRateNotFound):
		common.JSONError(w, http.StatusNotFound, "TAX_RATE_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrCombinedRateOutOfRange):
		common.JSONError(w, http.StatusUnprocessableEntity, "COMBINED_RATE_OUT_OF_RANGE", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "tax calculation failed", nil)
	}
}
