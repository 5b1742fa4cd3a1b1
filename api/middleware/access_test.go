package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/angelmondragon/marketplace-backend/internal/access"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/google/uuid"
)

func accessRequest(path string, role enums.UserRole) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if role == "" {
		return req
	}
	ctx := WithUserID(req.Context(), uuid.NewString())
	ctx = WithRole(ctx, string(role))
	return req.WithContext(ctx)
}

func TestAccessRedirectsAnonymousToLogin(t *testing.T) {
	handler := Access(access.DefaultPolicy(), nil)(okHandler())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, accessRequest("/api/v1/orders/abc", ""))

	if resp.Code != http.StatusFound {
		t.Fatalf("expected 302 got %d", resp.Code)
	}
	want := "/login?redirect=%2Fapi%2Fv1%2Forders%2Fabc"
	if got := resp.Header().Get("Location"); got != want {
		t.Fatalf("expected location %s got %s", want, got)
	}
	var payload struct {
		Error struct {
			Details map[string]string `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload.Error.Details["redirect"] != want {
		t.Fatalf("expected redirect in body, got %v", payload.Error.Details)
	}
}

func TestAccessDecisions(t *testing.T) {
	cases := []struct {
		name string
		path string
		role enums.UserRole
		want int
	}{
		{"public catalog", "/api/v1/products", "", http.StatusOK},
		{"guest cart", "/api/v1/cart", "", http.StatusOK},
		{"webhook", "/api/v1/webhooks/stripe", "", http.StatusOK},
		{"buyer orders", "/api/v1/orders", enums.UserRoleBuyer, http.StatusOK},
		{"buyer dashboard", "/api/v1/dashboard/store", enums.UserRoleBuyer, http.StatusForbidden},
		{"owner dashboard", "/api/v1/dashboard/store", enums.UserRoleStoreOwner, http.StatusOK},
		{"admin dashboard", "/api/v1/dashboard/orders", enums.UserRoleAdmin, http.StatusOK},
		{"owner admin", "/api/v1/admin/users", enums.UserRoleStoreOwner, http.StatusForbidden},
		{"admin admin", "/api/v1/admin/users", enums.UserRoleAdmin, http.StatusOK},
		{"anonymous admin", "/api/v1/admin/users", "", http.StatusFound},
	}

	handler := Access(access.DefaultPolicy(), nil)(okHandler())
	for _, tc := range cases {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, accessRequest(tc.path, tc.role))
		if resp.Code != tc.want {
			t.Fatalf("%s: expected %d got %d", tc.name, tc.want, resp.Code)
		}
	}
}
