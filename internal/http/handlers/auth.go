package handlers

import (
	"net/http"
	"time"

	"edugen/internal/middleware"
)

const refreshCookie = "refresh_token"

type refreshResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// AuthRefresh exchanges the refresh cookie for a new access token and
// rotates the cookie.
func (a *App) AuthRefresh(w http.ResponseWriter, r *http.Request) {
	ck, err := r.Cookie(refreshCookie)
	if err != nil || ck.Value == "" {
		a.error(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing refresh token")
		return
	}
	claims, err := middleware.VerifyJWT(a.JWTSecret, ck.Value, middleware.TokenRefresh)
	if err != nil {
		a.clearRefreshCookie(w)
		a.error(w, http.StatusUnauthorized, "UNAUTHORIZED", "refresh token is invalid or expired")
		return
	}

	now := a.Clock.Now()
	access, expires, err := middleware.IssueToken(a.JWTSecret, middleware.TokenAccess, claims.Subject, claims.Locale, a.AccessTokenTTL, now)
	if err != nil {
		a.Logger.Error().Err(err).Msg("sign access token failed")
		a.error(w, http.StatusInternalServerError, "INTERNAL", "failed to sign token")
		return
	}
	refresh, refreshExpires, err := middleware.IssueToken(a.JWTSecret, middleware.TokenRefresh, claims.Subject, claims.Locale, a.RefreshTokenTTL, now)
	if err != nil {
		a.Logger.Error().Err(err).Msg("sign refresh token failed")
		a.error(w, http.StatusInternalServerError, "INTERNAL", "failed to sign token")
		return
	}
	a.setRefreshCookie(w, refresh, refreshExpires)
	a.json(w, http.StatusOK, refreshResponse{AccessToken: access, ExpiresAt: expires.UTC()})
}

func (a *App) setRefreshCookie(w http.ResponseWriter, value string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    value,
		Path:     "/v1/auth",
		Expires:  expires,
		HttpOnly: true,
		Secure:   a.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *App) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    "",
		Path:     "/v1/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
