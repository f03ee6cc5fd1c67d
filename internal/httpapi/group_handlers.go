package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"identra.org/internal/catalog"
	"identra.org/internal/membership"
)

type groupRequest struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

type addMembersRequest struct {
	UserIDs []string `json:"user_ids"`
}

func (a *API) handleGroups(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		groups, err := a.groups.GetAll(r.Context())
		if err != nil {
			handleCatalogError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"groups": groups})

	case http.MethodPost:
		var req groupRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		group, err := a.groups.Create(r.Context(), req.Name, toPermissions(req.Permissions))
		if err != nil {
			handleCatalogError(w, r, err)
			return
		}
		a.audit.Event(r.Context(), "catalog.group.create", "group", group.ID, map[string]string{
			"name": group.Name,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/groups/%s", group.ID))
		writeJSON(w, http.StatusCreated, group)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleGroupScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/groups/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1:
		a.handleGroupByID(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "members":
		a.handleGroupMembers(w, r, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleGroupByID(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		group, err := a.groups.GetByID(r.Context(), id)
		if err != nil {
			handleCatalogError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, group)

	case http.MethodPut:
		var req groupRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		group, err := a.groups.Update(r.Context(), id, req.Name, toPermissions(req.Permissions))
		if err != nil {
			handleCatalogError(w, r, err)
			return
		}
		a.audit.Event(r.Context(), "catalog.group.update", "group", group.ID, map[string]string{
			"name": group.Name,
		})
		writeJSON(w, http.StatusOK, group)

	case http.MethodDelete:
		if err := a.groups.Delete(r.Context(), id); err != nil {
			handleCatalogError(w, r, err)
			return
		}
		a.audit.Event(r.Context(), "catalog.group.delete", "group", id, nil)
		w.WriteHeader(http.StatusNoContent)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

// handleGroupMembers links users into the group. A fresh membership row
// answers 201, a union-merge into an existing row answers 200, so callers can
// tell the outcomes apart.
func (a *API) handleGroupMembers(w http.ResponseWriter, r *http.Request, groupID string) {
	switch r.Method {
	case http.MethodGet:
		row, err := a.members.GetForGroup(r.Context(), groupID)
		if err != nil {
			handleMembershipError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, row)

	case http.MethodPost:
		var req addMembersRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		row, outcome, err := a.members.AddUsersToGroup(r.Context(), groupID, req.UserIDs)
		if err != nil {
			handleMembershipError(w, r, err)
			return
		}
		a.audit.Event(r.Context(), "membership.add_users", "group", groupID, map[string]string{
			"outcome": outcome.String(),
		})
		code := http.StatusOK
		if outcome == membership.OutcomeCreated {
			code = http.StatusCreated
		}
		writeJSON(w, code, row)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func toPermissions(values []string) []catalog.Permission {
	perms := make([]catalog.Permission, 0, len(values))
	for _, v := range values {
		perms = append(perms, catalog.Permission(v))
	}
	return perms
}

func handleCatalogError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, catalog.ErrInvalidInput), errors.Is(err, catalog.ErrInvalidPermission):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, catalog.ErrNameTaken):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "catalog operation failed")
	}
}

func handleMembershipError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, membership.ErrInvalidInput), errors.Is(err, membership.ErrUnknownUsers):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, membership.ErrGroupNotFound), errors.Is(err, membership.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "membership operation failed")
	}
}
