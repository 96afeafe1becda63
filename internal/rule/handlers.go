package rule

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/noah-isme/billing-engine/internal/common"
)

// Handler exposes pricing rule management endpoints.
type Handler struct {
	Store    *Store
	Validate *validator.Validate
}

// Create handles POST /api/v1/rules.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateParams
	if !h.decode(w, r, &req) {
		return
	}
	created, err := h.Store.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": created})
}

// Update handles PATCH /api/v1/rules/{id} with partial fields.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	var req UpdateParams
	if !h.decode(w, r, &req) {
		return
	}
	updated, err := h.Store.Update(r.Context(), id, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": updated})
}

// Get handles GET /api/v1/rules/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	found, err := h.Store.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": found})
}

// List handles GET /api/v1/rules with optional product, category, and active
// filters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := ListFilter{
		ProductID:  strings.TrimSpace(query.Get("product_id")),
		Category:   strings.TrimSpace(query.Get("category")),
		ActiveOnly: query.Get("active") == "true",
	}
	rules, err := h.Store.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rules})
}

// Activate handles POST /api/v1/rules/{id}/activate.
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

// Deactivate handles POST /api/v1/rules/{id}/deactivate. Rules are soft
// deactivated, never deleted.
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	id, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	var err error
	if active {
		err = h.Store.Activate(r.Context(), id)
	} else {
		err = h.Store.Deactivate(r.Context(), id)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"id": id, "is_active": active}})
}

type bulkRequest struct {
	RuleIDs []uuid.UUID `json:"rule_ids" validate:"required,min=1"`
}

// BulkActivate handles POST /api/v1/rules/bulk-activate.
func (h *Handler) BulkActivate(w http.ResponseWriter, r *http.Request) {
	h.bulkSetActive(w, r, true)
}

// BulkDeactivate handles POST /api/v1/rules/bulk-deactivate.
func (h *Handler) BulkDeactivate(w http.ResponseWriter, r *http.Request) {
	h.bulkSetActive(w, r, false)
}

func (h *Handler) bulkSetActive(w http.ResponseWriter, r *http.Request, active bool) {
	var req bulkRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.Store.BulkSetActive(r.Context(), req.RuleIDs, active)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

// ResetUsage handles POST /api/v1/rules/{id}/reset-usage.
func (h *Handler) ResetUsage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	if err := h.Store.ResetUsage(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"id": id, "current_uses": 0}})
}

// UsageStats handles GET /api/v1/rules/{id}/usage.
func (h *Handler) UsageStats(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	stats, err := h.Store.GetUsageStats(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": stats})
}

// Conflicts handles GET /api/v1/rules/conflicts.
func (h *Handler) Conflicts(w http.ResponseWriter, r *http.Request) {
	conflicts, err := h.Store.Conflicts(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": conflicts})
}

func (h *Handler) ruleID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid rule id", nil)
		return uuid.Nil, false
	}
	return id, true
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
	case errors.Is(err, ErrInvalidPricingRule):
		common.JSONError(w, http.StatusBadRequest, "INVALID_PRICING_RULE", err.Error(), nil)
	case errors.Is(err, ErrRuleNotFound):
		common.JSONError(w, http.StatusNotFound, "RULE_NOT_FOUND", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "rule operation failed", nil)
	}
}
