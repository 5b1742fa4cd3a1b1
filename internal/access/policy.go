// Package access decides which callers may reach which route groups.
package access

import (
	"net/url"
	"strings"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// Audience is the set of callers a route group admits.
type Audience int

const (
	AudiencePublic Audience = iota
	// AudienceAuthenticated admits any signed-in user.
	AudienceAuthenticated
	AudienceStoreOwner
	AudienceAdmin
)

// Outcome is the verdict for one request.
type Outcome int

const (
	Allow Outcome = iota
	Redirect
	Forbidden
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case Redirect:
		return "redirect"
	case Forbidden:
		return "forbidden"
	}
	return "unknown"
}

// Identity is what the policy knows about the caller.
type Identity struct {
	Authenticated bool
	Role          enums.UserRole
}

type Decision struct {
	Outcome Outcome
	// Location is the login URL carrying the original path, set on Redirect.
	Location string
}

// Rule binds a path prefix to an audience. Prefixes match whole segments.
type Rule struct {
	Prefix   string
	Audience Audience
}

// Policy is a pure prefix table. The zero value allows everything.
type Policy struct {
	BasePath  string
	LoginPath string
	Public    []string
	Rules     []Rule
}

// DefaultPolicy returns the marketplace route table.
func DefaultPolicy() Policy {
	return Policy{
		BasePath:  "/api/v1",
		LoginPath: "/login",
		Public:    []string{"/api/v1/webhooks", "/health", "/metrics"},
		Rules: []Rule{
			{Prefix: "/orders", Audience: AudienceAuthenticated},
			{Prefix: "/profile", Audience: AudienceAuthenticated},
			{Prefix: "/checkout", Audience: AudienceAuthenticated},
			{Prefix: "/reviews", Audience: AudienceAuthenticated},
			{Prefix: "/cart/merge", Audience: AudienceAuthenticated},
			{Prefix: "/auth/logout", Audience: AudienceAuthenticated},
			{Prefix: "/dashboard", Audience: AudienceStoreOwner},
			{Prefix: "/admin", Audience: AudienceAdmin},
		},
	}
}

// Decide returns the verdict for path. Paths outside every rule are allowed.
func (p Policy) Decide(path string, id Identity) Decision {
	for _, prefix := range p.Public {
		if hasSegmentPrefix(path, prefix) {
			return Decision{Outcome: Allow}
		}
	}

	audience := p.audienceFor(path)
	if audience == AudiencePublic {
		return Decision{Outcome: Allow}
	}
	if !id.Authenticated {
		return Decision{Outcome: Redirect, Location: p.loginURL(path)}
	}
	if admits(audience, id.Role) {
		return Decision{Outcome: Allow}
	}
	return Decision{Outcome: Forbidden}
}

// Audience reports the audience that guards path.
func (p Policy) Audience(path string) Audience {
	return p.audienceFor(path)
}

func (p Policy) audienceFor(path string) Audience {
	rel := path
	if p.BasePath != "" && hasSegmentPrefix(path, p.BasePath) {
		rel = strings.TrimPrefix(path, p.BasePath)
		if rel == "" {
			rel = "/"
		}
	}
	best, bestLen := AudiencePublic, -1
	for _, rule := range p.Rules {
		if hasSegmentPrefix(rel, rule.Prefix) && len(rule.Prefix) > bestLen {
			best, bestLen = rule.Audience, len(rule.Prefix)
		}
	}
	return best
}

func (p Policy) loginURL(path string) string {
	login := p.LoginPath
	if login == "" {
		login = "/login"
	}
	return login + "?redirect=" + url.QueryEscape(path)
}

func admits(audience Audience, role enums.UserRole) bool {
	switch audience {
	case AudienceAuthenticated:
		return role.IsValid()
	case AudienceStoreOwner:
		return role == enums.UserRoleStoreOwner || role == enums.UserRoleAdmin
	case AudienceAdmin:
		return role == enums.UserRoleAdmin
	}
	return true
}

func hasSegmentPrefix(path, prefix string) bool {
	if prefix == "" || !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/' || strings.HasSuffix(prefix, "/")
}
