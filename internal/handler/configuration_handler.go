// Package handler provides the HTTP request handlers for the config
// server.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/bhdrerdem/config-server/internal/apperr"
	"github.com/bhdrerdem/config-server/internal/health"
	"github.com/bhdrerdem/config-server/internal/model"
	"github.com/bhdrerdem/config-server/internal/service"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	service      *service.ConfigurationService
	readiness    *health.Readiness
	errorHandler *apperr.Handler
	logger       *zap.Logger
	timeout      time.Duration
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	svc *service.ConfigurationService,
	readiness *health.Readiness,
	errorHandler *apperr.Handler,
	logger *zap.Logger,
	timeout time.Duration,
) *Handlers {
	return &Handlers{
		service:      svc,
		readiness:    readiness,
		errorHandler: errorHandler,
		logger:       logger,
		timeout:      timeout,
	}
}

// Create handles POST /configurations requests.
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	var in model.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.errorHandler.WriteValidationError(w, "invalid request body", requestID)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cfg, err := h.service.Create(ctx, in)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, cfg)
}

// GetByID handles GET /configurations/{id} requests.
func (h *Handlers) GetByID(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cfg, err := h.service.GetByID(ctx, id)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, cfg)
}

// Update handles PUT /configurations/{id} requests.
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	id := mux.Vars(r)["id"]

	var in model.Update
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.errorHandler.WriteValidationError(w, "invalid request body", requestID)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cfg, err := h.service.Update(ctx, id, in)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, cfg)
}

// Delete handles DELETE /configurations/{id} requests.
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.service.Delete(ctx, id); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetAll handles GET /configurations requests.
func (h *Handlers) GetAll(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	configs, err := h.service.GetAll(ctx)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, configs)
}

// GetAllForMobile handles GET /configurations-mobile requests,
// returning the flat parameterKey to value mapping bulk consumers use.
func (h *Handlers) GetAllForMobile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	configs, err := h.service.GetAllForMobile(ctx)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, configs)
}

// HealthStatus is the GET /health response body.
type HealthStatus struct {
	Status string `json:"status"`
}

// Health handles GET /health requests from external monitors.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.readiness.IsHealthy() {
		h.writeJSON(w, http.StatusOK, HealthStatus{Status: "UP"})
		return
	}

	state := h.readiness.Snapshot()
	h.logger.Warn("health check reporting down",
		zap.String("reason", state.Reason),
		zap.Time("since", state.Since))
	h.writeJSON(w, http.StatusInternalServerError, HealthStatus{Status: "DOWN"})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}
