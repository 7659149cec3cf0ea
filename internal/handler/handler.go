package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ticket-validation-api/internal/logging"
	"ticket-validation-api/internal/models"
	"ticket-validation-api/internal/service"
	"ticket-validation-api/internal/validation"
)

// Handler provides HTTP handlers for the API.
type Handler struct {
	service     *service.Service
	maxBodySize int64
}

// NewHandlerOptions holds options for creating a handler.
type NewHandlerOptions struct {
	MaxBodySize int64
}

// DefaultHandlerOptions returns default handler options.
func DefaultHandlerOptions() NewHandlerOptions {
	return NewHandlerOptions{
		MaxBodySize: 1 << 20, // 1MB default
	}
}

// NewHandler creates a new handler instance.
func NewHandler(svc *service.Service) *Handler {
	return NewHandlerWithOptions(svc, DefaultHandlerOptions())
}

// NewHandlerWithOptions creates a new handler instance with custom options.
func NewHandlerWithOptions(svc *service.Service, opts NewHandlerOptions) *Handler {
	return &Handler{
		service:     svc,
		maxBodySize: opts.MaxBodySize,
	}
}

// Routes mounts the API on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/locations", h.ListLocations)

	r.Route("/cards", func(r chi.Router) {
		r.Post("/", h.IssueCard)
		r.Get("/{card_id}", h.GetCard)
		r.Post("/{card_id}/validations", h.ValidateCard)
		r.Get("/{card_id}/validations", h.ListValidations)
	})

	r.Get("/validations/{validation_id}", h.GetValidation)

	r.Route("/features", func(r chi.Router) {
		r.Get("/", h.ListFeatures)
		r.Put("/{name}", h.SetFeature)
	})
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// ListLocations handles GET /locations
func (h *Handler) ListLocations(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.service.Locations())
}

// IssueCard handles POST /cards
func (h *Handler) IssueCard(w http.ResponseWriter, r *http.Request) {
	var req models.IssueCardRequest
	if !h.decode(w, r, &req, true) {
		return
	}

	req.Product = validation.SanitizeString(req.Product)
	req.DFName = validation.SanitizeString(req.DFName)
	req.EnvironmentEndDate = validation.SanitizeString(req.EnvironmentEndDate)
	for i := range req.Contracts {
		c := &req.Contracts[i]
		c.Tariff = validation.SanitizeString(c.Tariff)
		c.ValidityEndDate = validation.SanitizeString(c.ValidityEndDate)
	}

	summary, err := h.service.IssueCard(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, summary)
}

// GetCard handles GET /cards/{card_id}
func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	cardID := validation.SanitizeString(chi.URLParam(r, "card_id"))

	summary, err := h.service.GetCard(r.Context(), cardID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, summary)
}

// ValidateCard handles POST /cards/{card_id}/validations
//
// The body is optional: an empty one taps with the terminal defaults.
// Business rejections are still 200 responses, the status lives in the
// outcome.
func (h *Handler) ValidateCard(w http.ResponseWriter, r *http.Request) {
	cardID := validation.SanitizeString(chi.URLParam(r, "card_id"))

	var req models.ValidateRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	receipt, err := h.service.Validate(r.Context(), cardID, req)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, receipt)
}

// ListValidations handles GET /cards/{card_id}/validations
func (h *Handler) ListValidations(w http.ResponseWriter, r *http.Request) {
	cardID := validation.SanitizeString(chi.URLParam(r, "card_id"))

	limit := 0
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		parsed, err := strconv.Atoi(validation.SanitizeString(limitParam))
		if err != nil || parsed <= 0 {
			h.respondError(w, http.StatusBadRequest, "invalid 'limit' parameter, must be a positive integer")
			return
		}
		limit = parsed
	}

	response, err := h.service.ListValidations(r.Context(), cardID, limit)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, response)
}

// GetValidation handles GET /validations/{validation_id}
func (h *Handler) GetValidation(w http.ResponseWriter, r *http.Request) {
	id := validation.SanitizeString(chi.URLParam(r, "validation_id"))

	receipt, err := h.service.GetValidation(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, receipt)
}

// ListFeatures handles GET /features
func (h *Handler) ListFeatures(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.service.Features())
}

// SetFeatureRequest is the body of PUT /features/{name}.
type SetFeatureRequest struct {
	Enabled *bool `json:"enabled"`
}

// SetFeature handles PUT /features/{name}
func (h *Handler) SetFeature(w http.ResponseWriter, r *http.Request) {
	name := validation.SanitizeString(chi.URLParam(r, "name"))

	var req SetFeatureRequest
	if !h.decode(w, r, &req, true) {
		return
	}
	if req.Enabled == nil {
		h.respondError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	if err := h.service.SetFeature(name, *req.Enabled); err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, h.service.Features())
}

// decode reads a JSON body into dst. It reports false after writing the
// error response.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any, required bool) bool {
	// Limit request body size to prevent abuse
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if err == io.EOF {
			if !required {
				return true
			}
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return false
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return false
	}
	return true
}

// respondServiceError maps a service error to a status code.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.ValidationError
	switch {
	case errors.As(err, &verr):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrCardNotFound),
		errors.Is(err, service.ErrValidationNotFound),
		errors.Is(err, service.ErrUnknownFeature):
		h.respondError(w, http.StatusNotFound, err.Error())
	default:
		logging.FromContext(r.Context()).Error("request failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// respondJSON sends a JSON response with the given status code.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response with the given status code and message.
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, models.ErrorResponse{Error: message})
}
