package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rvelez/storefront-backend/api/responses"
	"github.com/rvelez/storefront-backend/api/validators"
	"github.com/rvelez/storefront-backend/internal/sessions"
	"github.com/rvelez/storefront-backend/pkg/logger"
)

const (
	// SessionCookieName carries the opaque guest session token.
	SessionCookieName = "sf_session"

	maxUserAgentLen = 512
)

// SessionParams configures the guest session middleware.
type SessionParams struct {
	Sessions     sessions.Service
	CookieTTL    time.Duration
	SecureCookie bool
	Logger       *logger.Logger
}

// Session guarantees every storefront request runs under a usable session.
// Missing, expired and revoked tokens are silently replaced with a fresh one,
// the cookie is re-issued on every mint so the browser tracks rotation.
func Session(params SessionParams) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token := ""
			if cookie, err := r.Cookie(SessionCookieName); err == nil {
				token = strings.TrimSpace(cookie.Value)
			}

			session, err := params.Sessions.Ensure(ctx, token, sessionMetadata(r))
			if err != nil {
				responses.WriteError(ctx, params.Logger, w, err)
				return
			}

			if session.Token != token {
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookieName,
					Value:    session.Token,
					Path:     "/",
					MaxAge:   int(params.CookieTTL.Seconds()),
					HttpOnly: true,
					Secure:   params.SecureCookie,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx = WithSessionToken(ctx, session.Token)
			if params.Logger != nil {
				ctx = params.Logger.WithSessionToken(ctx, session.Token)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionMetadata(r *http.Request) sessions.Metadata {
	ip := r.Header.Get("X-Forwarded-For")
	if ip != "" {
		ip = strings.TrimSpace(strings.SplitN(ip, ",", 2)[0])
	}
	if ip == "" {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err == nil {
			ip = host
		} else {
			ip = r.RemoteAddr
		}
	}
	return sessions.Metadata{
		UserAgent: validators.SanitizeString(r.UserAgent(), maxUserAgentLen),
		IPAddress: ip,
	}
}
