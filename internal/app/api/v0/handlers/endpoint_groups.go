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

// GroupService covers the administrative group hooks. Remote group changes
// happen here only, the synchronizer never writes remotely.
type GroupService interface {
	// NormalizeUsername validates and canonicalizes a raw username.
	NormalizeUsername(raw string) (domain.UserIdentifier, error)
	// AddUserToGroup grants a membership, creating the remote group on demand.
	AddUserToGroup(ctx context.Context, raw, group string) error
	// RemoveUserFromGroup revokes a membership.
	RemoveUserFromGroup(ctx context.Context, raw, group string) error
}

type GroupStore interface {
	// GetUserGroups returns the current local group memberships.
	GetUserGroups(ctx context.Context, id domain.UserIdentifier) ([]domain.UserGroup, error)
	// GetFormerUserGroups returns the append-only history of past memberships.
	GetFormerUserGroups(ctx context.Context, id domain.UserIdentifier) ([]domain.FormerUserGroup, error)
}

// endregion dependencies

type GroupEndpoint struct {
	groups GroupService
	store  GroupStore
}

func NewGroupEndpoint(groups GroupService, store GroupStore) *GroupEndpoint {
	return &GroupEndpoint{groups: groups, store: store}
}

func (e GroupEndpoint) GetName() string {
	return "GroupEndpoint"
}

func (e GroupEndpoint) RegisterRoutes(g *routegroup.Bundle) {
	apiGroup := g.Mount("/users")

	apiGroup.HandleFunc("GET /{id}/groups", e.handleAllGet())
	apiGroup.HandleFunc("PUT /{id}/groups/{group}", e.handleAddPut())
	apiGroup.HandleFunc("DELETE /{id}/groups/{group}", e.handleRemoveDelete())
}

func (e GroupEndpoint) handleAllGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := e.groups.NormalizeUsername(core.Path(r, "id"))
		if err != nil {
			respondError(w, err)
			return
		}

		current, err := e.store.GetUserGroups(r.Context(), id)
		if err != nil {
			respondError(w, err)
			return
		}
		former, err := e.store.GetFormerUserGroups(r.Context(), id)
		if err != nil {
			respondError(w, err)
			return
		}

		resp := model.GroupsResponse{
			Groups:       make([]string, 0, len(current)),
			FormerGroups: make([]string, 0, len(former)),
		}
		for _, g := range current {
			resp.Groups = append(resp.Groups, g.Group)
		}
		for _, g := range former {
			resp.FormerGroups = append(resp.FormerGroups, g.Group)
		}

		core.JSON(w, http.StatusOK, resp)
	}
}

func (e GroupEndpoint) handleAddPut() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := e.groups.AddUserToGroup(r.Context(), core.Path(r, "id"), core.Path(r, "group"))
		if err != nil {
			respondError(w, err)
			return
		}

		core.Status(w, http.StatusNoContent)
	}
}

func (e GroupEndpoint) handleRemoveDelete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := e.groups.RemoveUserFromGroup(r.Context(), core.Path(r, "id"), core.Path(r, "group"))
		if err != nil {
			respondError(w, err)
			return
		}

		core.Status(w, http.StatusNoContent)
	}
}
