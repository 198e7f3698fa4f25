// Package rest provides HTTP handlers for order-related operations.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	ordererrors "github.com/avolkov/orderhub/internal/errors"
	"github.com/avolkov/orderhub/internal/order/service"
	"github.com/avolkov/orderhub/internal/search"
	"github.com/avolkov/orderhub/pkg/web"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Searcher executes read-only order queries against the search index.
type Searcher interface {
	Search(ctx context.Context, params search.Params) (*search.Result, error)
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	service  service.OrderService
	searcher Searcher
	db       Pinger
	idx      Pinger
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler creates a new instance of Handler with the provided service and searcher.
func NewHandler(service service.OrderService, searcher Searcher, db, idx Pinger, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		searcher: searcher,
		db:       db,
		idx:      idx,
		validate: validator.New(),
		logger:   logger.With("component", "rest"),
	}
}

// RegisterRoutes registers the HTTP routes for the order service.
func (h *Handler) RegisterRoutes(r *chi.Mux) {
	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Get("/", h.Search)
		r.Post("/", h.Create)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.FindByID)
			r.Put("/", h.Update)
			r.Delete("/", h.Delete)
		})
	})
	r.Get("/healthz", h.HealthCheck)
}

// FindByID retrieves an order by its ID, items included.
func (h *Handler) FindByID(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}

	mLogger.DebugContext(r.Context(), "Received request to find order by ID", "ID", id)
	found, err := h.service.FindByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ordererrors.ErrOrderNotFound) {
			mLogger.WarnContext(r.Context(), "Order not found", "ID", id)
			web.RespondError(w, mLogger, http.StatusNotFound, fmt.Sprintf("Order with ID %d not found", id))
			return
		}
		mLogger.ErrorContext(r.Context(), "Error retrieving order", "ID", id, "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve order with ID %d", id))
		return
	}
	mLogger.DebugContext(r.Context(), "Successfully retrieved order", "ID", found.ID)
	web.RespondJSON(w, mLogger, http.StatusOK, found)
}

// Search serves the order search: substring term over name and description,
// inclusive date range, newest first.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	params := parseSearchParams(r)

	mLogger.DebugContext(r.Context(), "Received search request",
		"term", params.Term, "page", params.Page, "size", params.Size)
	result, err := h.searcher.Search(r.Context(), params)
	if err != nil {
		mLogger.ErrorContext(r.Context(), "Error searching orders", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Failed to search orders")
		return
	}
	mLogger.DebugContext(r.Context(), "Search completed", "total", result.Total)
	web.RespondJSON(w, mLogger, http.StatusOK, result)
}

// Create handles the creation of a new order.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	var orderCreateDto service.OrderCreateDto
	if err := json.NewDecoder(r.Body).Decode(&orderCreateDto); err != nil {
		mLogger.ErrorContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return
	}

	mLogger.DebugContext(r.Context(), "Received request to create order")
	if !h.validateStruct(w, r, mLogger, orderCreateDto) {
		return
	}

	newOrder, err := h.service.Create(r.Context(), orderCreateDto)
	if err != nil {
		switch {
		case errors.Is(err, ordererrors.ErrProductNotFound):
			mLogger.WarnContext(r.Context(), "Unknown product in order", "error", err)
			web.RespondError(w, mLogger, http.StatusBadRequest, err.Error())
		case errors.Is(err, ordererrors.ErrInsufficientStock):
			mLogger.WarnContext(r.Context(), "Insufficient stock for order", "error", err)
			web.RespondError(w, mLogger, http.StatusBadRequest, err.Error())
		default:
			mLogger.ErrorContext(r.Context(), "Error creating order", "error", err)
			web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to create order")
		}
		return
	}
	mLogger.InfoContext(r.Context(), "Order created successfully", "ID", newOrder.ID)
	web.RespondJSON(w, mLogger, http.StatusOK, newOrder)
}

// Update applies a partial update to an order. The caller must supply the
// version it last saw; a mismatch yields 409.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	version, ok := web.ParseVersion(w, r, mLogger)
	if !ok {
		return
	}

	mLogger.DebugContext(r.Context(), "Received request to update order", "ID", id, "version", version)
	var orderUpdateDto service.OrderUpdateDto
	if err := json.NewDecoder(r.Body).Decode(&orderUpdateDto); err != nil {
		mLogger.ErrorContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return
	}

	if !h.validateStruct(w, r, mLogger, orderUpdateDto) {
		return
	}

	updated, err := h.service.Update(r.Context(), id, version, orderUpdateDto)
	if err != nil {
		h.respondMutationError(w, r, mLogger, err, id, "update")
		return
	}
	mLogger.InfoContext(r.Context(), "Order updated successfully", "ID", updated.ID, "version", updated.Version)
	web.RespondJSON(w, mLogger, http.StatusOK, map[string]any{"id": updated.ID, "version": updated.Version})
}

// Delete removes an order under the version check and restores its stock.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	version, ok := web.ParseVersion(w, r, mLogger)
	if !ok {
		return
	}

	mLogger.DebugContext(r.Context(), "Received request to delete order", "ID", id, "version", version)
	if err := h.service.Delete(r.Context(), id, version); err != nil {
		h.respondMutationError(w, r, mLogger, err, id, "delete")
		return
	}
	mLogger.InfoContext(r.Context(), "Order deleted successfully", "ID", id)
	web.RespondJSON(w, mLogger, http.StatusOK, map[string]any{"id": id})
}

// HealthCheck reports whether the database and the search index are reachable.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	status := map[string]string{"database": "ok", "index": "ok"}
	healthy := true

	if err := h.db.Ping(r.Context()); err != nil {
		mLogger.ErrorContext(r.Context(), "Database health check failed", "error", err)
		status["database"] = "unavailable"
		healthy = false
	}
	if err := h.idx.Ping(r.Context()); err != nil {
		mLogger.ErrorContext(r.Context(), "Index health check failed", "error", err)
		status["index"] = "unavailable"
		healthy = false
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	web.RespondJSON(w, mLogger, code, status)
}

// respondMutationError maps service errors of update and delete to statuses.
func (h *Handler) respondMutationError(w http.ResponseWriter, r *http.Request, mLogger *slog.Logger, err error, id int64, op string) {
	switch {
	case errors.Is(err, ordererrors.ErrOrderNotFound):
		mLogger.WarnContext(r.Context(), "Order not found", "ID", id, "op", op)
		web.RespondError(w, mLogger, http.StatusNotFound, fmt.Sprintf("Order with ID %d not found", id))
	case errors.Is(err, ordererrors.ErrVersionConflict):
		mLogger.WarnContext(r.Context(), "Version conflict", "ID", id, "op", op)
		web.RespondError(w, mLogger, http.StatusConflict, fmt.Sprintf("Order with ID %d has been modified by another transaction", id))
	case errors.Is(err, ordererrors.ErrProductNotFound), errors.Is(err, ordererrors.ErrInsufficientStock):
		mLogger.WarnContext(r.Context(), "Order lines cannot be satisfied", "ID", id, "op", op, "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, err.Error())
	default:
		mLogger.ErrorContext(r.Context(), "Error mutating order", "ID", id, "op", op, "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, fmt.Sprintf("Failed to %s order with ID %d", op, id))
	}
}

// validateStruct runs the DTO through the validator and writes the field
// errors when validation fails.
func (h *Handler) validateStruct(w http.ResponseWriter, r *http.Request, mLogger *slog.Logger, dto any) bool {
	err := h.validate.Struct(dto)
	if err == nil {
		return true
	}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		errorResponse := make(map[string]string)
		for _, fieldErr := range validationErrors {
			errorResponse[fieldErr.Field()] = "failed on rule: " + fieldErr.Tag()
		}
		mLogger.WarnContext(r.Context(), "Validation errors occurred", "errors", errorResponse)
		web.RespondJSON(w, mLogger, http.StatusBadRequest, map[string]any{"validation_errors": errorResponse})
		return false
	}
	mLogger.ErrorContext(r.Context(), "Error validating request body", "error", err)
	web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
	return false
}

// parseSearchParams reads the search filters from the query string.
// Unparseable dates and numbers are ignored rather than rejected.
func parseSearchParams(r *http.Request) search.Params {
	q := r.URL.Query()
	params := search.Params{Term: q.Get("term")}

	if from, err := time.Parse(time.RFC3339, q.Get("dateFrom")); err == nil {
		params.DateFrom = &from
	}
	if to, err := time.Parse(time.RFC3339, q.Get("dateTo")); err == nil {
		params.DateTo = &to
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil {
		params.Page = page
	}
	if size, err := strconv.Atoi(q.Get("size")); err == nil {
		// An explicit sub-1 size clamps to 1; the zero value stays reserved
		// for "not supplied", which the search service defaults.
		if size < 1 {
			size = 1
		}
		params.Size = size
	}
	return params
}

// loggerWithReqID creates a logger with the request ID from the context.
func (h *Handler) loggerWithReqID(r *http.Request) *slog.Logger {
	reqID, _ := web.GetRequestID(r.Context())
	return h.logger.With("request_id", reqID)
}
