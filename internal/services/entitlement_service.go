package services

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"droppy/internal/entitlement"
	apperrors "droppy/internal/errors"
	"droppy/internal/infrastructure"
	"droppy/pkg/contracts/domain"
)

// EntitlementService sits between the transport layer and the engine. It
// validates request payloads, collapses concurrent revalidations, and
// returns a fresh status snapshot with every mutation.
type EntitlementService interface {
	Status(ctx context.Context) domain.EntitlementStatus
	Activate(ctx context.Context, req ActivateRequest) (domain.EntitlementStatus, error)
	StartTrial(ctx context.Context, req StartTrialRequest) (domain.EntitlementStatus, error)
	Deactivate(ctx context.Context, req DeactivateRequest) (domain.EntitlementStatus, error)
	Revalidate(ctx context.Context) (domain.EntitlementStatus, error)
}

// ActivateRequest is the activation payload from the host UI
type ActivateRequest struct {
	LicenseKey string `json:"license_key" validate:"required,min=4"`
	Email      string `json:"email" validate:"required,email"`
}

// StartTrialRequest is the trial start payload. Email is optional in local
// trial mode and required by the engine in remote mode when no account
// hash has been cached.
type StartTrialRequest struct {
	Email string `json:"email" validate:"omitempty,email"`
}

// DeactivateRequest selects the deactivation scope: "local" clears this
// machine only, "device" also releases the remote seat.
type DeactivateRequest struct {
	Scope string `json:"scope" validate:"required,oneof=local device"`
}

type entitlementService struct {
	engine   *entitlement.Engine
	validate *validator.Validate
	logger   *slog.Logger
	reval    singleflight.Group
}

// NewEntitlementService creates the service facade over the engine
func NewEntitlementService(engine *entitlement.Engine, logger *slog.Logger) EntitlementService {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &entitlementService{
		engine:   engine,
		validate: validator.New(),
		logger:   logger.With(slog.String("component", "entitlement_service")),
	}
}

func (s *entitlementService) Status(ctx context.Context) domain.EntitlementStatus {
	return s.engine.Status(ctx)
}

func (s *entitlementService) Activate(ctx context.Context, req ActivateRequest) (domain.EntitlementStatus, error) {
	if err := s.validate.Struct(req); err != nil {
		return s.engine.Status(ctx), validationError(err)
	}
	if err := s.engine.Activate(ctx, req.LicenseKey, req.Email); err != nil {
		return s.engine.Status(ctx), err
	}
	return s.engine.Status(ctx), nil
}

func (s *entitlementService) StartTrial(ctx context.Context, req StartTrialRequest) (domain.EntitlementStatus, error) {
	if err := s.validate.Struct(req); err != nil {
		return s.engine.Status(ctx), validationError(err)
	}
	if err := s.engine.StartTrial(ctx, req.Email); err != nil {
		return s.engine.Status(ctx), err
	}
	return s.engine.Status(ctx), nil
}

func (s *entitlementService) Deactivate(ctx context.Context, req DeactivateRequest) (domain.EntitlementStatus, error) {
	if err := s.validate.Struct(req); err != nil {
		return s.engine.Status(ctx), validationError(err)
	}

	var err error
	switch req.Scope {
	case "device":
		err = s.engine.DeactivateCurrentDevice(ctx)
	default:
		err = s.engine.DeactivateLocally(ctx)
	}
	return s.engine.Status(ctx), err
}

// Revalidate re-checks the stored license and the remote trial. Concurrent
// callers share one in-flight revalidation instead of stacking server
// round trips.
func (s *entitlementService) Revalidate(ctx context.Context) (domain.EntitlementStatus, error) {
	_, err, shared := s.reval.Do("revalidate", func() (any, error) {
		if terr := s.engine.SyncTrial(ctx); terr != nil {
			s.logger.DebugContext(ctx, "trial sync during revalidation failed",
				slog.String("error", terr.Error()),
			)
		}
		return nil, s.engine.RevalidateStoredLicense(ctx)
	})
	if shared {
		s.logger.DebugContext(ctx, "revalidation shared with concurrent caller")
	}
	return s.engine.Status(ctx), err
}

// validationError converts validator output into a structured APIError
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fields := make([]apperrors.ValidationError, 0, len(verrs))
		for _, verr := range verrs {
			fields = append(fields, apperrors.ValidationError{
				Field:   verr.Field(),
				Message: verr.Error(),
			})
		}
		return apperrors.NewWithDetails(http.StatusBadRequest, "VALIDATION_ERROR",
			"Invalid request payload", fields)
	}
	return apperrors.New(http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request payload")
}
