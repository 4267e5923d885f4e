package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"expensa/internal/assistant"
	"expensa/internal/auth"
	"expensa/internal/core"
	"expensa/internal/log"
	"expensa/internal/services"
)

// sessionHandler is a handler that runs with an authenticated session.
type sessionHandler func(w http.ResponseWriter, r *http.Request, sess auth.Session)

// authed resolves the bearer token to a session before calling h. The
// request logger is enriched with the owner.
func (s *Server) authed(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.auth.Authenticate(r.Context(), bearerToken(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		logger := log.FromContext(r.Context()).With(log.FieldOwnerID, sess.UserID)
		ctx := log.NewContext(r.Context(), logger)
		h(w, r.WithContext(ctx), sess)
	}
}

// writeError maps service errors onto status codes. Unknown errors are
// logged and reported without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	logger := log.FromContext(ctx)

	var (
		limitErr *services.LimitExceededError
		tooLarge *http.MaxBytesError
	)
	switch {
	case errors.As(err, &limitErr):
		logger.InfoContext(ctx, "Limit warning returned",
			log.FieldCategoryID, limitErr.Warning.Category.ID,
			log.FieldExceedance, limitErr.Warning.Exceedance.Cents)
		LimitExceededResponse(err.Error(), toWarning(limitErr.Warning)).Write(w)

	case errors.As(err, &tooLarge):
		ErrorResponse(http.StatusRequestEntityTooLarge, CodeBadRequest, "request body too large").Write(w)

	case errors.Is(err, errMalformedBody), errors.Is(err, errInvalidQuery):
		BadRequestError(err.Error()).Write(w)

	case errors.Is(err, auth.ErrUnauthorized):
		UnauthorizedError("missing or expired session").Write(w)

	case errors.Is(err, auth.ErrInvalidCredentials):
		UnauthorizedError(auth.ErrInvalidCredentials.Error()).Write(w)

	case errors.Is(err, auth.ErrEmailTaken):
		ConflictError(auth.ErrEmailTaken.Error()).Write(w)

	case errors.Is(err, core.ErrNotFound):
		NotFoundError("not found").Write(w)

	case core.IsValidationError(err),
		errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrPasswordTooLong),
		errors.Is(err, assistant.ErrEmptyQuery):
		UnprocessableEntityError(validationMessage(err)).Write(w)

	case errors.Is(err, assistant.ErrAssistantUnavailable):
		ErrorResponse(http.StatusBadGateway, CodeUpstream, assistant.ErrAssistantUnavailable.Error()).Write(w)

	default:
		log.NewStructuredLogger(logger).LogError(ctx, "Request failed", err, log.ErrorTypeInternal,
			log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.UserAgent()))
		InternalServerError("internal server error").Write(w)
	}
}

// validationMessage strips the wrapping added on the way up so clients see
// the validation sentence itself.
func validationMessage(err error) string {
	for _, target := range []error{
		core.ErrInvalidMonth, core.ErrInvalidAmount, core.ErrEmptyDescription,
		core.ErrDescriptionTooLong, core.ErrCategoryRequired, core.ErrInvalidLimit,
		core.ErrEmptyName, core.ErrNameTooLong, core.ErrInvalidIcon, core.ErrInvalidColor,
		auth.ErrInvalidEmail, auth.ErrWeakPassword, auth.ErrPasswordTooLong, assistant.ErrEmptyQuery,
	} {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return err.Error()
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.store == nil {
		checks["store"] = "not_configured"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else if err := s.store.Ping(ctx); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed",
			log.FieldErrorType, log.ErrorTypeDatabase,
			log.FieldError, err)
		checks["store"] = "failed: " + err.Error()
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	rl := s.rateLimiter.GetMetrics()
	checks["rate_limiter"] = map[string]any{
		"active_clients": rl.ClientCount,
		"rejected":       rl.TotalHits,
	}
	sec := s.securityDetector.GetMetrics()
	checks["security"] = map[string]any{
		"suspicious_requests": sec.SuspiciousRequests,
		"invalid_ip_attempts": sec.InvalidIPAttempts,
	}
	tr := s.traceMiddleware.GetMetrics()
	checks["requests"] = map[string]any{
		"total":           tr.TotalRequests,
		"avg_response_ms": tr.AverageResponseTime().Milliseconds(),
	}
	checks["assistant"] = map[string]any{"enabled": s.assistant.Enabled()}

	NewJSONResponse().Status(httpStatus).Body(map[string]any{
		"status":    status,
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}
