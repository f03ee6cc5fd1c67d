package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"identra.org/internal/authn"
	"identra.org/internal/directory"
)

// refreshCookie is the httpOnly cookie carrying the refresh token. The access
// token travels in the response body and is presented back as a bearer header.
const refreshCookie = "jwt"

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type accessTokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "username and password are required")
		return
	}

	pair, err := a.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, directory.ErrNotFound), errors.Is(err, authn.ErrPasswordMismatch):
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, directory.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, err.Error())
		default:
			writeError(w, r, http.StatusInternalServerError, "login failed")
		}
		return
	}

	a.audit.Event(r.Context(), "authn.login", "user", req.Username, nil)
	setRefreshCookie(w, pair.RefreshToken, pair.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, accessTokenResponse{
		AccessToken: pair.AccessToken,
		ExpiresAt:   pair.AccessExpiresAt,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	token := refreshTokenFromCookie(r)

	err := a.auth.Logout(r.Context(), token)
	switch {
	case err == nil, errors.Is(err, authn.ErrAlreadyLoggedOut):
		a.audit.Event(r.Context(), "authn.logout", "user", "", nil)
		clearRefreshCookie(w)
		writeJSON(w, http.StatusOK, map[string]any{"status": "logged out"})
	case errors.Is(err, directory.ErrNotFound):
		clearRefreshCookie(w)
		writeError(w, r, http.StatusUnauthorized, "unknown session")
	default:
		writeError(w, r, http.StatusInternalServerError, "logout failed")
	}
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	token := refreshTokenFromCookie(r)

	access, expiresAt, err := a.auth.Refresh(r.Context(), token)
	if err != nil {
		clearRefreshCookie(w)
		switch {
		case errors.Is(err, authn.ErrUnauthorized),
			errors.Is(err, authn.ErrInvalidToken),
			errors.Is(err, authn.ErrTokenExpired),
			errors.Is(err, directory.ErrNotFound):
			writeError(w, r, http.StatusUnauthorized, "refresh token rejected")
		default:
			writeError(w, r, http.StatusInternalServerError, "refresh failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, accessTokenResponse{
		AccessToken: access,
		ExpiresAt:   expiresAt,
	})
}

func refreshTokenFromCookie(r *http.Request) string {
	c, err := r.Cookie(refreshCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

func setRefreshCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
