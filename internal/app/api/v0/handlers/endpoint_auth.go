package handlers

import (
	"context"
	"net/http"

	"github.com/go-pkgz/routegroup"

	"github.com/fsonner/restauth-bridge/internal/app/api/core"
	"github.com/fsonner/restauth-bridge/internal/app/api/v0/model"
	"github.com/fsonner/restauth-bridge/internal/domain"
)

// region dependencies

type AuthenticationService interface {
	// Authenticate verifies the given credentials and returns the local user.
	Authenticate(ctx context.Context, raw, password string) (*domain.User, error)
	// ChangePassword verifies the old password before storing the new one.
	ChangePassword(ctx context.Context, raw, oldPassword, newPassword string) error
	// SetPassword stores a new password without verification.
	SetPassword(ctx context.Context, raw, newPassword string) error
}

// endregion dependencies

type AuthEndpoint struct {
	auth AuthenticationService
}

func NewAuthEndpoint(auth AuthenticationService) *AuthEndpoint {
	return &AuthEndpoint{auth: auth}
}

func (e AuthEndpoint) GetName() string {
	return "AuthEndpoint"
}

func (e AuthEndpoint) RegisterRoutes(g *routegroup.Bundle) {
	apiGroup := g.Mount("/auth")

	apiGroup.HandleFunc("POST /login", e.handleLoginPost())
	apiGroup.HandleFunc("POST /password", e.handlePasswordChangePost())
	apiGroup.HandleFunc("PUT /password", e.handlePasswordResetPut())
}

// handleLoginPost verifies the submitted credentials. A success response
// carries the refreshed local user record.
func (e AuthEndpoint) handleLoginPost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.LoginRequest
		if err := core.BodyJson(r, &req); err != nil {
			core.JSON(w, http.StatusBadRequest,
				model.Error{Code: http.StatusBadRequest, Message: err.Error()})
			return
		}

		user, err := e.auth.Authenticate(r.Context(), req.Username, req.Password)
		if err != nil {
			respondError(w, err)
			return
		}

		core.JSON(w, http.StatusOK, model.NewUser(user))
	}
}

// handlePasswordChangePost changes a password after verifying the old one.
func (e AuthEndpoint) handlePasswordChangePost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.PasswordChangeRequest
		if err := core.BodyJson(r, &req); err != nil {
			core.JSON(w, http.StatusBadRequest,
				model.Error{Code: http.StatusBadRequest, Message: err.Error()})
			return
		}

		err := e.auth.ChangePassword(r.Context(), req.Username, req.OldPassword, req.NewPassword)
		if err != nil {
			respondError(w, err)
			return
		}

		core.Status(w, http.StatusNoContent)
	}
}

// handlePasswordResetPut stores a new password without verification, the
// administrative reset path.
func (e AuthEndpoint) handlePasswordResetPut() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.PasswordResetRequest
		if err := core.BodyJson(r, &req); err != nil {
			core.JSON(w, http.StatusBadRequest,
				model.Error{Code: http.StatusBadRequest, Message: err.Error()})
			return
		}

		if err := e.auth.SetPassword(r.Context(), req.Username, req.NewPassword); err != nil {
			respondError(w, err)
			return
		}

		core.Status(w, http.StatusNoContent)
	}
}
