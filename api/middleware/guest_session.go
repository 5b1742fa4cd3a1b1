package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	GuestSessionHeader = "X-Cart-Session"
	GuestSessionCookie = "cart_session"
)

// GuestSession resolves the anonymous cart session from the X-Cart-Session
// header or the cart_session cookie. A missing or malformed id is replaced by
// a fresh one which is echoed back in both places.
func GuestSession(ttl time.Duration, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			guestID := guestIDFromRequest(r)
			if guestID == "" {
				guestID = uuid.NewString()
				cookie := &http.Cookie{
					Name:     GuestSessionCookie,
					Value:    guestID,
					Path:     "/",
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				}
				if ttl > 0 {
					cookie.MaxAge = int(ttl.Seconds())
				}
				http.SetCookie(w, cookie)
			}
			w.Header().Set(GuestSessionHeader, guestID)
			next.ServeHTTP(w, r.WithContext(WithGuestID(r.Context(), guestID)))
		})
	}
}

func guestIDFromRequest(r *http.Request) string {
	if raw := strings.TrimSpace(r.Header.Get(GuestSessionHeader)); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			return id.String()
		}
	}
	if cookie, err := r.Cookie(GuestSessionCookie); err == nil {
		if id, err := uuid.Parse(strings.TrimSpace(cookie.Value)); err == nil {
			return id.String()
		}
	}
	return ""
}
