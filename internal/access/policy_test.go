package access

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

func TestDecideTable(t *testing.T) {
	policy := DefaultPolicy()
	anon := Identity{}
	buyer := Identity{Authenticated: true, Role: enums.UserRoleBuyer}
	owner := Identity{Authenticated: true, Role: enums.UserRoleStoreOwner}
	admin := Identity{Authenticated: true, Role: enums.UserRoleAdmin}

	cases := []struct {
		path     string
		id       Identity
		outcome  Outcome
		location string
	}{
		{"/api/v1/products", anon, Allow, ""},
		{"/api/v1/cart/items", anon, Allow, ""},
		{"/health/ready", anon, Allow, ""},
		{"/api/v1/webhooks/stripe", anon, Allow, ""},

		{"/api/v1/orders", anon, Redirect, "/login?redirect=%2Fapi%2Fv1%2Forders"},
		{"/api/v1/orders/123", anon, Redirect, "/login?redirect=%2Fapi%2Fv1%2Forders%2F123"},
		{"/api/v1/checkout", anon, Redirect, "/login?redirect=%2Fapi%2Fv1%2Fcheckout"},
		{"/api/v1/cart/merge", anon, Redirect, "/login?redirect=%2Fapi%2Fv1%2Fcart%2Fmerge"},
		{"/api/v1/orders", buyer, Allow, ""},
		{"/api/v1/profile", owner, Allow, ""},
		{"/api/v1/reviews", admin, Allow, ""},

		{"/api/v1/dashboard/orders", anon, Redirect, "/login?redirect=%2Fapi%2Fv1%2Fdashboard%2Forders"},
		{"/api/v1/dashboard/orders", buyer, Forbidden, ""},
		{"/api/v1/dashboard/orders", owner, Allow, ""},
		{"/api/v1/dashboard/orders", admin, Allow, ""},

		{"/api/v1/admin/stores", anon, Redirect, "/login?redirect=%2Fapi%2Fv1%2Fadmin%2Fstores"},
		{"/api/v1/admin/stores", buyer, Forbidden, ""},
		{"/api/v1/admin/stores", owner, Forbidden, ""},
		{"/api/v1/admin/stores", admin, Allow, ""},

		// prefixes match whole segments only
		{"/api/v1/ordersummary", anon, Allow, ""},
		{"/api/v1/administrators", anon, Allow, ""},
	}
	for _, tc := range cases {
		t.Run(tc.path+"/"+string(tc.id.Role), func(t *testing.T) {
			decision := policy.Decide(tc.path, tc.id)
			assert.Equal(t, tc.outcome, decision.Outcome, "outcome=%s", decision.Outcome)
			assert.Equal(t, tc.location, decision.Location)
		})
	}
}

func TestUnknownRoleIsForbidden(t *testing.T) {
	decision := DefaultPolicy().Decide("/api/v1/orders", Identity{Authenticated: true, Role: "ghost"})
	assert.Equal(t, Forbidden, decision.Outcome)
}

func TestZeroPolicyAllows(t *testing.T) {
	assert.Equal(t, Allow, Policy{}.Decide("/anything", Identity{}).Outcome)
}

func TestLongestPrefixWins(t *testing.T) {
	policy := Policy{Rules: []Rule{
		{Prefix: "/stores", Audience: AudiencePublic},
		{Prefix: "/stores/mine", Audience: AudienceStoreOwner},
	}}
	assert.Equal(t, Allow, policy.Decide("/stores/abc", Identity{}).Outcome)
	assert.Equal(t, Redirect, policy.Decide("/stores/mine", Identity{}).Outcome)
	assert.Equal(t, AudienceStoreOwner, policy.Audience("/stores/mine/edit"))
}
