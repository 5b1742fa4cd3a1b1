package middleware

import (
	"net/http"

	"github.com/angelmondragon/marketplace-backend/api/responses"
	"github.com/angelmondragon/marketplace-backend/internal/access"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

// Access enforces the route policy against the identity seeded by OptionalAuth.
// Anonymous callers on guarded paths are redirected to the login page with the
// original path in the redirect query parameter.
func Access(policy access.Policy, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := access.Identity{}
			if _, ok := UserUUIDFromContext(r.Context()); ok {
				identity.Authenticated = true
				identity.Role = enums.UserRole(RoleFromContext(r.Context()))
			}

			decision := policy.Decide(r.URL.Path, identity)
			switch decision.Outcome {
			case access.Redirect:
				w.Header().Set("Location", decision.Location)
				err := pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required").
					WithDetails(map[string]any{"redirect": decision.Location})
				responses.WriteErrorStatus(r.Context(), logg, w, http.StatusFound, err)
				return
			case access.Forbidden:
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "role not permitted"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
