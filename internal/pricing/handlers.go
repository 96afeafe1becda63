package pricing

import (
	"encoding/json"
	"errors"
	"net/http"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/billing-engine/internal/catalog"
	"github.com/noah-isme/billing-engine/internal/common"
	"github.com/noah-isme/billing-engine/internal/currency"
	"github.com/noah-isme/billing-engine/internal/rule"
	"github.com/noah-isme/billing-engine/internal/tax"
)

// Handler exposes price calculation endpoints. When a jurisdiction is given
// the response also carries the tax on the final price.
type Handler struct {
	Service  *Service
	Tax      *tax.Service
	Validate *validator.Validate
}

type calculateRequest struct {
	CalculateParams
	Jurisdiction string `json:"jurisdiction"`
	TaxInclusive bool   `json:"tax_inclusive"`
}

type calculateResponse struct {
	Result
	Tax *tax.Result `json:"tax,omitempty"`
}

// Preview handles POST /api/v1/pricing/preview. No usage counters move.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	h.calculate(w, r, false)
}

// Calculate handles POST /api/v1/pricing/calculate and commits usage for
// every applied rule.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	h.calculate(w, r, true)
}

func (h *Handler) calculate(w http.ResponseWriter, r *http.Request, commit bool) {
	var req calculateRequest
	if !h.decode(w, r, &req) {
		return
	}

	var result Result
	var err error
	if commit {
		result, err = h.Service.Calculate(r.Context(), req.CalculateParams)
	} else {
		result, err = h.Service.Preview(r.Context(), req.CalculateParams)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := calculateResponse{Result: result}
	if req.Jurisdiction != "" && h.Tax != nil {
		taxed, err := h.Tax.Calculate(r.Context(), result.FinalPrice, req.Jurisdiction, nil, req.TaxInclusive)
		if err != nil {
			h.writeError(w, err)
			return
		}
		resp.Tax = &taxed
	}

	common.JSON(w, http.StatusOK, map[string]any{"data": resp})
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
	case errors.Is(err, ErrInvalidQuantity):
		common.JSONError(w, http.StatusBadRequest, "INVALID_QUANTITY", err.Error(), nil)
	case errors.Is(err, catalog.ErrProductNotFound):
		common.JSONError(w, http.StatusNotFound, "PRODUCT_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, rule.ErrInvalidPricingRule):
		common.JSONError(w, http.StatusBadRequest, "INVALID_PRICING_RULE", err.Error(), nil)
	case errors.Is(err, currency.ErrNoConversionRate):
		common.JSONError(w, http.StatusUnprocessableEntity, "NO_CONVERSION_RATE", err.Error(), nil)
	case errors.Is(err, tax.ErrCombinedRateOutOfRange):
		common.JSONError(w, http.StatusUnprocessableEntity, "COMBINED_RATE_OUT_OF_RANGE", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "price calculation failed", nil)
	}
}
