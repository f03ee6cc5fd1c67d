package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"identra.org/internal/directory"
)

const (
	minAge = 4
	maxAge = 130
)

type userRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Age      int    `json:"age"`
}

func (req *userRequest) validate() error {
	req.Login = strings.TrimSpace(req.Login)
	if req.Login == "" {
		return errors.New("login is required")
	}
	if req.Password == "" {
		return errors.New("password is required")
	}
	if req.Age < minAge || req.Age > maxAge {
		return fmt.Errorf("age must be between %d and %d", minAge, maxAge)
	}
	return nil
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req userRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user, err := a.users.Create(r.Context(), directory.Candidate{
		Login:    req.Login,
		Password: req.Password,
		Age:      req.Age,
	})
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	a.audit.Event(r.Context(), "directory.user.create", "user", user.ID, map[string]string{
		"login": user.Login,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/users/%s", user.ID))
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleUserByID(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		user, err := a.users.GetByID(r.Context(), id)
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)

	case http.MethodPut:
		var req userRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := req.validate(); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.users.Update(r.Context(), id, directory.Candidate{
			Login:    req.Login,
			Password: req.Password,
			Age:      req.Age,
		})
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		a.audit.Event(r.Context(), "directory.user.update", "user", user.ID, map[string]string{
			"login": user.Login,
		})
		writeJSON(w, http.StatusOK, user)

	case http.MethodDelete:
		if err := a.users.Delete(r.Context(), id); err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		a.audit.Event(r.Context(), "directory.user.delete", "user", id, nil)
		w.WriteHeader(http.StatusNoContent)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleUserSuggest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	substring := r.URL.Query().Get("login_substring")
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 10, 1, 100)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	users, err := a.users.AutoSuggest(r.Context(), substring, limit)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < min || val > max {
		return 0, fmt.Errorf("limit must be between %d and %d", min, max)
	}
	return val, nil
}

func handleDirectoryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, directory.ErrInvalidInput), errors.Is(err, directory.ErrNoSubstring):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, directory.ErrLoginTaken):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, directory.ErrNotFound), errors.Is(err, directory.ErrNoMatches):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "directory operation failed")
	}
}
