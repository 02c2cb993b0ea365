package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-pkgz/routegroup"
	"golang.org/x/crypto/bcrypt"

	"github.com/fsonner/restauth-bridge/internal/app/api/core"
	"github.com/fsonner/restauth-bridge/internal/app/api/v0/model"
	"github.com/fsonner/restauth-bridge/internal/config"
	"github.com/fsonner/restauth-bridge/internal/domain"
)

type Handler interface {
	// GetName returns the name of the handler.
	GetName() string
	// RegisterRoutes registers the routes for the handler.
	RegisterRoutes(g *routegroup.Bundle)
}

// NewRestApi sets up the v0 endpoint group. All routes are protected by the
// bridge API token, the wiki platform is the only intended caller.
func NewRestApi(cfg *config.Config, handlers ...Handler) core.ApiEndpointSetupFunc {
	return func() (core.ApiVersion, core.GroupSetupFn) {
		return "v0", func(group *routegroup.Bundle) {
			group.Use(tokenAuthMiddleware(cfg.Web.ApiTokenHash))

			for _, h := range handlers {
				h.RegisterRoutes(group)
			}
		}
	}
}

// tokenAuthMiddleware checks the bearer token of every request against the
// configured bcrypt hash. An empty hash disables the check, which is only
// acceptable if the listener is bound to localhost. Authenticated requests
// run as the system admin user, so audit columns record who wrote a row.
func tokenAuthMiddleware(tokenHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenHash == "" {
				next.ServeHTTP(w, adminRequest(r))
				return
			}

			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if token == "" {
				core.JSON(w, http.StatusUnauthorized,
					model.Error{Code: http.StatusUnauthorized, Message: "missing api token"})
				return
			}

			if err := bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)); err != nil {
				core.JSON(w, http.StatusUnauthorized,
					model.Error{Code: http.StatusUnauthorized, Message: "invalid api token"})
				return
			}

			next.ServeHTTP(w, adminRequest(r))
		})
	}
}

func adminRequest(r *http.Request) *http.Request {
	return r.WithContext(domain.SetUserInfo(r.Context(), domain.SystemAdminContextUserInfo()))
}

func respondError(w http.ResponseWriter, err error) {
	code, e := ParseServiceError(err)
	core.JSON(w, code, e)
}

// ParseServiceError maps domain errors to HTTP status codes. Remote
// infrastructure failures surface as 503 so the wiki platform can show its
// generic service-unavailable page.
func ParseServiceError(err error) (int, model.Error) {
	code := http.StatusInternalServerError
	switch {
	case domain.IsServiceUnavailable(err):
		code = http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrInvalidCredentials):
		code = http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, domain.ErrNotUnique):
		code = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidUsername):
		code = http.StatusBadRequest
	}

	var key string
	var svcErr *domain.ServiceError
	if errors.As(err, &svcErr) {
		key = svcErr.MessageKey()
	}

	return code, model.Error{
		Code:    code,
		Message: err.Error(),
		Key:     key,
	}
}
