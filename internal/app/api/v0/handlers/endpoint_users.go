package handlers

import (
	"context"
	"net/http"

	"github.com/go-pkgz/routegroup"

	"github.com/fsonner/restauth-bridge/internal/app/api/core"
	"github.com/fsonner/restauth-bridge/internal/app/api/v0/model"
	appsync "github.com/fsonner/restauth-bridge/internal/app/sync"
	"github.com/fsonner/restauth-bridge/internal/domain"
)

// region dependencies

type UserService interface {
	// NormalizeUsername validates and canonicalizes a raw username.
	NormalizeUsername(raw string) (domain.UserIdentifier, error)
	// UserExists checks the account against the remote service.
	UserExists(ctx context.Context, raw string) (bool, error)
	// CreateUser registers a new remote and local account.
	CreateUser(ctx context.Context, raw, password, realName, email string) (*domain.User, error)
	// InitUser stores the host platform's numeric id and pulls group memberships.
	InitUser(ctx context.Context, raw string, legacyId int64) error
	// HandlePageView triggers a refresh if one is due.
	HandlePageView(ctx context.Context, raw string, view appsync.PageView) error
	// SavePreferences stores the submitted preferences and pushes the drift.
	SavePreferences(ctx context.Context, raw, realName, email string, emailConfirmed bool,
		prefs map[string]domain.PreferenceValue) error
}

type UserStore interface {
	// GetUser returns a user with preference and group rows preloaded.
	GetUser(ctx context.Context, id domain.UserIdentifier) (*domain.User, error)
	// GetAllUsers returns all locally known users.
	GetAllUsers(ctx context.Context) ([]domain.User, error)
	// DeleteUser removes the local user record and all associated rows. The
	// remote account is not touched.
	DeleteUser(ctx context.Context, id domain.UserIdentifier) error
}

type UserSynchronizer interface {
	// RefreshUser pulls remote state into the local database.
	RefreshUser(ctx context.Context, id domain.UserIdentifier) error
}

// endregion dependencies

type UserEndpoint struct {
	users  UserService
	store  UserStore
	syncer UserSynchronizer
}

func NewUserEndpoint(users UserService, store UserStore, syncer UserSynchronizer) *UserEndpoint {
	return &UserEndpoint{users: users, store: store, syncer: syncer}
}

func (e UserEndpoint) GetName() string {
	return "UserEndpoint"
}

func (e UserEndpoint) RegisterRoutes(g *routegroup.Bundle) {
	apiGroup := g.Mount("/users")

	apiGroup.HandleFunc("GET /", e.handleAllGet())
	apiGroup.HandleFunc("POST /", e.handleCreatePost())
	apiGroup.HandleFunc("GET /normalize", e.handleNormalizeGet())
	apiGroup.HandleFunc("GET /{id}", e.handleSingleGet())
	apiGroup.HandleFunc("DELETE /{id}", e.handleDelete())
	apiGroup.HandleFunc("GET /{id}/exists", e.handleExistsGet())
	apiGroup.HandleFunc("POST /{id}/init", e.handleInitPost())
	apiGroup.HandleFunc("POST /{id}/refresh", e.handleRefreshPost())
	apiGroup.HandleFunc("POST /{id}/page-view", e.handlePageViewPost())
	apiGroup.HandleFunc("PUT /{id}/preferences", e.handlePreferencesPut())
}

// handleNormalizeGet canonicalizes the username given in the name query
// parameter, the pre-account-creation validation hook.
func (e UserEndpoint) handleNormalizeGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := core.Query(r, "name")
		if raw == "" {
			core.JSON(w, http.StatusBadRequest,
				model.Error{Code: http.StatusBadRequest, Message: "missing name parameter"})
			return
		}

		id, err := e.users.NormalizeUsername(raw)
		if err != nil {
			respondError(w, err)
			return
		}

		core.JSON(w, http.StatusOK, model.NormalizedNameResponse{Name: string(id)})
	}
}

func (e UserEndpoint) handleAllGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := e.store.GetAllUsers(r.Context())
		if err != nil {
			respondError(w, err)
			return
		}

		out := make([]model.User, 0, len(users))
		for i := range users {
			out = append(out, model.NewUser(&users[i]))
		}
		core.JSON(w, http.StatusOK, out)
	}
}

func (e UserEndpoint) handleDelete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := e.users.NormalizeUsername(core.Path(r, "id"))
		if err != nil {
			respondError(w, err)
			return
		}

		if err := e.store.DeleteUser(r.Context(), id); err != nil {
			respondError(w, err)
			return
		}

		core.Status(w, http.StatusNoContent)
	}
}

func (e UserEndpoint) handleSingleGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := e.users.NormalizeUsername(core.Path(r, "id"))
		if err != nil {
			respondError(w, err)
			return
		}

		user, err := e.store.GetUser(r.Context(), id)
		if err != nil {
			respondError(w, err)
			return
		}

		core.JSON(w, http.StatusOK, model.NewUser(user))
	}
}

func (e UserEndpoint) handleExistsGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		exists, err := e.users.UserExists(r.Context(), core.Path(r, "id"))
		if err != nil {
			respondError(w, err)
			return
		}

		core.JSON(w, http.StatusOK, model.ExistsResponse{Exists: exists})
	}
}

// handleCreatePost registers a new account. A taken username yields 409.
func (e UserEndpoint) handleCreatePost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.CreateUserRequest
		if err := core.BodyJson(r, &req); err != nil {
			core.JSON(w, http.StatusBadRequest,
				model.Error{Code: http.StatusBadRequest, Message: err.Error()})
			return
		}

		user, err := e.users.CreateUser(r.Context(), req.Username, req.Password, req.RealName, req.Email)
		if err != nil {
			respondError(w, err)
			return
		}

		core.JSON(w, http.StatusCreated, model.NewUser(user))
	}
}

func (e UserEndpoint) handleInitPost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.InitUserRequest
		if err := core.BodyJson(r, &req); err != nil {
			core.JSON(w, http.StatusBadRequest,
				model.Error{Code: http.StatusBadRequest, Message: err.Error()})
			return
		}

		if err := e.users.InitUser(r.Context(), core.Path(r, "id"), req.LegacyId); err != nil {
			respondError(w, err)
			return
		}

		core.Status(w, http.StatusNoContent)
	}
}

// handleRefreshPost forces a remote-to-local refresh regardless of the
// refresh interval.
func (e UserEndpoint) handleRefreshPost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := e.users.NormalizeUsername(core.Path(r, "id"))
		if err != nil {
			respondError(w, err)
			return
		}

		if err := e.syncer.RefreshUser(r.Context(), id); err != nil {
			respondError(w, err)
			return
		}

		core.Status(w, http.StatusNoContent)
	}
}

func (e UserEndpoint) handlePageViewPost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.PageViewRequest
		if err := core.BodyJson(r, &req); err != nil {
			core.JSON(w, http.StatusBadRequest,
				model.Error{Code: http.StatusBadRequest, Message: err.Error()})
			return
		}

		view := appsync.PageView{
			OwnPreferencesPage: req.OwnPreferencesPage,
			FormSubmission:     req.FormSubmission,
		}
		if err := e.users.HandlePageView(r.Context(), core.Path(r, "id"), view); err != nil {
			respondError(w, err)
			return
		}

		core.Status(w, http.StatusNoContent)
	}
}

// handlePreferencesPut is the preference-save hook: the submitted settings
// and preferences are stored locally and the drift is pushed to the remote
// property store.
func (e UserEndpoint) handlePreferencesPut() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.SavePreferencesRequest
		if err := core.BodyJson(r, &req); err != nil {
			core.JSON(w, http.StatusBadRequest,
				model.Error{Code: http.StatusBadRequest, Message: err.Error()})
			return
		}

		prefs := make(map[string]domain.PreferenceValue, len(req.Preferences))
		for key, p := range req.Preferences {
			prefs[key] = p.DomainValue()
		}

		err := e.users.SavePreferences(r.Context(), core.Path(r, "id"),
			req.RealName, req.Email, req.EmailConfirmed, prefs)
		if err != nil {
			respondError(w, err)
			return
		}

		core.Status(w, http.StatusNoContent)
	}
}
