package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/archops/governor/pkg/auth"
	_ "github.com/archops/governor/pkg/auth/static" // register static provider
	"github.com/archops/governor/pkg/config"
)

func staticValidator(t *testing.T, cfgJSON string) auth.Validator {
	t.Helper()
	v, err := auth.NewValidator(auth.ProviderConfig{Type: "static", Config: json.RawMessage(cfgJSON)})
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	return v
}

func runAuth(t *testing.T, validator auth.Validator, authHeader string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)
	ctx.Request = httptest.NewRequest(http.MethodGet, "/v1/governor/agents", nil)
	if authHeader != "" {
		ctx.Request.Header.Set("Authorization", authHeader)
	}
	AuthMiddleware(validator, &config.Config{Env: "test"})(ctx)
	return ctx, rec
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	v := staticValidator(t, `{"token":"t-1","subject":"user-1","email":"u@local","scopes":["governor:admin"]}`)

	ctx, _ := runAuth(t, v, "Bearer t-1")

	if ctx.IsAborted() {
		t.Fatal("expected request to pass")
	}
	email, _ := ctx.Get("userEmail")
	if email != "u@local" {
		t.Fatalf("expected userEmail u@local, got %v", email)
	}
	claimsV, ok := ctx.Get("userClaims")
	if !ok {
		t.Fatal("expected userClaims to be set")
	}
	if claims := claimsV.(*auth.Claims); !claims.HasScope(AdminScope) {
		t.Fatal("expected admin scope on claims")
	}
}

func TestAuthMiddleware_MissingAndMalformedHeader(t *testing.T) {
	v := staticValidator(t, `{"token":"t-1"}`)

	ctx, rec := runAuth(t, v, "")
	if !ctx.IsAborted() || rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing header, got %d", rec.Code)
	}

	ctx, rec = runAuth(t, v, "Basic dXNlcjpwYXNz")
	if !ctx.IsAborted() || rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for non-bearer header, got %d", rec.Code)
	}
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	v := staticValidator(t, `{"token":"t-1"}`)

	ctx, rec := runAuth(t, v, "Bearer wrong")
	if !ctx.IsAborted() || rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid token, got %d", rec.Code)
	}
}

func TestAuthMiddleware_NilValidatorPassesThrough(t *testing.T) {
	ctx, _ := runAuth(t, nil, "")
	if ctx.IsAborted() {
		t.Fatal("expected pass-through when auth is disabled")
	}
}

func TestRequireAdmin_ScopeGrantsAccess(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)
	ctx.Request = httptest.NewRequest(http.MethodPost, "/v1/governor/agents", nil)
	ctx.Set("userClaims", &auth.Claims{Scopes: []string{AdminScope}})

	RequireAdmin()(ctx)

	if ctx.IsAborted() {
		t.Fatal("expected admin scope to grant access")
	}
}

func TestRequireAdmin_RoleGrantsAccess(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)
	ctx.Request = httptest.NewRequest(http.MethodPost, "/v1/governor/agents", nil)
	ctx.Set("userRole", "ADMIN")

	RequireAdmin()(ctx)

	if ctx.IsAborted() {
		t.Fatal("expected ADMIN role to grant access")
	}
}

func TestRequireAdmin_RejectsUser(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)
	ctx.Request = httptest.NewRequest(http.MethodPost, "/v1/governor/agents", nil)
	ctx.Set("userRole", "USER")

	RequireAdmin()(ctx)

	if !ctx.IsAborted() || rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for non-admin, got %d", rec.Code)
	}
}
