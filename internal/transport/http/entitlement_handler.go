package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "droppy/internal/errors"
	"droppy/internal/infrastructure"
	"droppy/internal/services"
	"droppy/pkg/contracts/domain"
)

// EntitlementHandler exposes the engine to the host UI over localhost HTTP
type EntitlementHandler struct {
	service services.EntitlementService
	logger  *slog.Logger
}

// NewEntitlementHandler creates the entitlement handler
func NewEntitlementHandler(service services.EntitlementService, logger *slog.Logger) *EntitlementHandler {
	return &EntitlementHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "entitlement")),
	}
}

// StatusEnvelope wraps every successful response with the fresh snapshot
type StatusEnvelope struct {
	Success bool                     `json:"success"`
	Status  domain.EntitlementStatus `json:"status"`
	TraceID string                   `json:"trace_id,omitempty"`
}

// Routes returns the chi router for entitlement endpoints
func (h *EntitlementHandler) Routes(rateLimit func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Get("/status", h.Status)
	r.Post("/revalidate", h.Revalidate)
	r.Post("/deactivate", h.Deactivate)

	// Seat claims and trial starts are the abuse-sensitive routes
	r.Group(func(r chi.Router) {
		if rateLimit != nil {
			r.Use(rateLimit)
		}
		r.Post("/activate", h.Activate)
		r.Post("/trial/start", h.StartTrial)
	})

	return r
}

// Status handles GET /api/entitlement/status
func (h *EntitlementHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.respond(w, r, h.service.Status(ctx))
}

// Activate handles POST /api/entitlement/activate
func (h *EntitlementHandler) Activate(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("entitlement-handler").Start(r.Context(), "entitlement.activate",
		trace.WithAttributes(attribute.String("http.route", "/api/entitlement/activate")),
	)
	defer span.End()

	var req services.ActivateRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		apperrors.WriteError(w, apperrors.InvalidRequestWithError(err))
		return
	}

	status, err := h.service.Activate(ctx, req)
	if err != nil {
		span.SetAttributes(attribute.String("activation.result", "error"))
		h.writeError(w, r, err)
		return
	}
	span.SetAttributes(attribute.String("activation.result", "success"))

	h.logger.InfoContext(ctx, "activation succeeded",
		slog.String("trace_id", infrastructure.TraceIDFromContext(ctx)),
	)
	h.respond(w, r, status)
}

// StartTrial handles POST /api/entitlement/trial/start
func (h *EntitlementHandler) StartTrial(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req services.StartTrialRequest
	if r.ContentLength != 0 {
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			apperrors.WriteError(w, apperrors.InvalidRequestWithError(err))
			return
		}
	}

	status, err := h.service.StartTrial(ctx, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, status)
}

// Deactivate handles POST /api/entitlement/deactivate
func (h *EntitlementHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req services.DeactivateRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		apperrors.WriteError(w, apperrors.InvalidRequestWithError(err))
		return
	}

	status, err := h.service.Deactivate(ctx, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, status)
}

// Revalidate handles POST /api/entitlement/revalidate
func (h *EntitlementHandler) Revalidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status, err := h.service.Revalidate(ctx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, status)
}

func (h *EntitlementHandler) respond(w http.ResponseWriter, r *http.Request, status domain.EntitlementStatus) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, StatusEnvelope{
		Success: true,
		Status:  status,
		TraceID: infrastructure.TraceIDFromContext(r.Context()),
	})
}

func (h *EntitlementHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *apperrors.APIError
	if !errors.As(err, &apiErr) {
		apiErr = apperrors.MapEntitlementError(err)
	}

	h.logger.WarnContext(r.Context(), "entitlement request failed",
		slog.String("path", r.URL.Path),
		slog.String("error_code", apiErr.ErrorCode),
		slog.Int("status", apiErr.StatusCode),
	)
	apperrors.WriteError(w, apiErr)
}
