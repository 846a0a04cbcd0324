package routes_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	_ "github.com/arklim/realm-auth-service/gen/docs/swagger"
	"github.com/arklim/realm-auth-service/internal/core/domain"
	"github.com/arklim/realm-auth-service/internal/infra/bloom"
	"github.com/arklim/realm-auth-service/internal/infra/config"
	"github.com/arklim/realm-auth-service/internal/infra/security"
	"github.com/arklim/realm-auth-service/internal/transport/http/handlers"
	"github.com/arklim/realm-auth-service/internal/transport/http/middleware"
	httproutes "github.com/arklim/realm-auth-service/internal/transport/http/routes"
)

type fakeUsers struct {
	realm       domain.Realm
	registerErr error
	loginErr    error
	verifyErr   error
	resetErr    error
	loggedOut   []string
	deleted     []string
	lastPhone   string
	profile     domain.User
}

func (f *fakeUsers) Realm() domain.Realm { return f.realm }

func (f *fakeUsers) Register(_ context.Context, p domain.Profile) (domain.User, error) {
	if f.registerErr != nil {
		return domain.User{}, f.registerErr
	}
	return domain.User{ID: "Ab12Cd3", Email: p.Email}, nil
}

func (f *fakeUsers) VerifyEmail(context.Context, string) (bool, error) {
	return f.verifyErr == nil, f.verifyErr
}

func (f *fakeUsers) Login(_ context.Context, email, _ string) (string, domain.SessionClaims, error) {
	if f.loginErr != nil {
		return "", domain.SessionClaims{}, f.loginErr
	}
	return "session-token", domain.SessionClaims{Email: email}, nil
}

func (f *fakeUsers) Logout(_ context.Context, claims domain.SessionClaims) error {
	f.loggedOut = append(f.loggedOut, claims.JTI)
	return nil
}

func (f *fakeUsers) GetProfile(context.Context, string) (domain.User, error) {
	return f.profile, nil
}

func (f *fakeUsers) RequestPasswordReset(context.Context, string) error { return nil }

func (f *fakeUsers) ValidateResetToken(context.Context, string) error { return f.resetErr }

func (f *fakeUsers) ResetPassword(context.Context, string, string) error { return f.resetErr }

func (f *fakeUsers) Delete(_ context.Context, id, _ string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeUsers) GenerateOTP(_ context.Context, _, phone string) (string, error) {
	f.lastPhone = phone
	return "otp-token", nil
}

func (f *fakeUsers) VerifyOTP(context.Context, string, string) (bool, error) {
	return false, domain.ErrValidationFailed
}

type statsSource []bloom.FilterStats

func (s statsSource) Stats() []bloom.FilterStats { return s }

type failingCache struct{}

func (failingCache) HealthCheck(context.Context) error { return errors.New("connection refused") }

type revokedSet map[string]bool

func (r revokedSet) IsRevoked(_ context.Context, jti string) bool { return r[jti] }

type routeFixture struct {
	engine  *gin.Engine
	user1   *fakeUsers
	user2   *fakeUsers
	tokens  *security.TokenService
	revoked revokedSet
}

func newRouteFixture(t *testing.T) *routeFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens, err := security.NewTokenService("route-test-secret", time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	fx := &routeFixture{
		user1:   &fakeUsers{realm: domain.NewRealm("User1")},
		user2:   &fakeUsers{realm: domain.NewRealm("User2")},
		tokens:  tokens,
		revoked: revokedSet{},
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("NewHTTPMetrics: %v", err)
	}

	fx.engine = httproutes.Register(httproutes.Dependencies{
		Config:      &config.AppConfig{App: config.AppSettings{Env: "test"}},
		Logger:      zaptest.NewLogger(t),
		Realms:      []handlers.UserLifecycle{fx.user1, fx.user2},
		Sessions:    tokens,
		Revocations: fx.revoked,
		HTTPMetrics: httpMetrics,
		Filters:     statsSource{{Name: bloom.BlacklistedTokens, Capacity: 100}},
		Cache:       failingCache{},
	})
	return fx
}

func (fx *routeFixture) sessionFor(t *testing.T, realm string) (string, domain.SessionClaims) {
	t.Helper()
	token, claims, err := fx.tokens.IssueSessionToken(domain.SessionClaims{UserID: "Ab12Cd3", Email: "a@example.com", Realm: realm})
	if err != nil {
		t.Fatalf("IssueSessionToken: %v", err)
	}
	return token, claims
}

func (fx *routeFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	fx.engine.ServeHTTP(rr, req)
	return rr
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return out
}

func TestHealthEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger, _ := zap.NewDevelopment()
	cfg := &config.AppConfig{App: config.AppSettings{Env: "test"}}

	r := httproutes.Register(httproutes.Dependencies{
		Config: cfg,
		Logger: logger,
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected security headers, got %q", got)
	}
}

func TestReadinessReportsFailingDependency(t *testing.T) {
	fx := newRouteFixture(t)

	rr := fx.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	body := decode(t, rr)
	if body["status"] != "not_ready" {
		t.Fatalf("unexpected readiness body: %v", body)
	}
}

func TestFilterStatsEndpoint(t *testing.T) {
	fx := newRouteFixture(t)

	rr := fx.do(httptest.NewRequest(http.MethodGet, "/filters/stats", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), bloom.BlacklistedTokens) {
		t.Fatalf("expected filter name in body: %s", rr.Body.String())
	}
}

func TestSwaggerDocumentsRealmRoutes(t *testing.T) {
	fx := newRouteFixture(t)

	rr := fx.do(httptest.NewRequest(http.MethodGet, "/docs/doc.json", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var doc struct {
		Paths map[string]map[string]json.RawMessage `json:"paths"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &doc); err != nil {
		t.Fatalf("doc.json is not valid JSON: %v", err)
	}

	routes := fx.engine.Routes()
	documented := 0
	for _, route := range routes {
		if !strings.HasPrefix(route.Path, "/User1/") {
			continue
		}
		path := "/{realm}" + strings.TrimPrefix(route.Path, "/User1")
		if _, ok := doc.Paths[path][strings.ToLower(route.Method)]; !ok {
			t.Fatalf("route %s %s is missing from doc.json", route.Method, path)
		}
		documented++
	}
	if documented != 11 {
		t.Fatalf("expected 11 realm routes, found %d", documented)
	}
}

func TestCreateUser(t *testing.T) {
	fx := newRouteFixture(t)
	payload := `{"first_name":"Alice","email":"alice@example.com","password":"Str0ng!Passw0rd"}`

	rr := fx.do(jsonRequest(http.MethodPost, "/User1/create", payload))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if body := decode(t, rr); body["id"] != "Ab12Cd3" || body["message"] != "User created" {
		t.Fatalf("unexpected body: %v", body)
	}

	fx.user1.registerErr = domain.ErrConflict
	rr = fx.do(jsonRequest(http.MethodPost, "/User1/create", payload))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if body := decode(t, rr); body["message"] != "Email already exists" || body["email"] != "alice@example.com" {
		t.Fatalf("unexpected conflict body: %v", body)
	}
}

func TestCreateUserValidation(t *testing.T) {
	fx := newRouteFixture(t)

	rr := fx.do(jsonRequest(http.MethodPost, "/User1/create", `{"first_name":"Alice","email":"not-an-email","password":"short"}`))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	fields, _ := decode(t, rr)["fields"].(map[string]any)
	if fields["email"] != "email" || fields["password"] != "min" {
		t.Fatalf("unexpected field errors: %v", fields)
	}

	rr = fx.do(jsonRequest(http.MethodPost, "/User1/create", `{`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", rr.Code)
	}

	fx.user1.registerErr = &security.PasswordValidationError{Code: "uppercase", Message: "password must include an uppercase letter"}
	rr = fx.do(jsonRequest(http.MethodPost, "/User1/create", `{"first_name":"Alice","email":"alice@example.com","password":"weakpassword"}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for policy violation, got %d", rr.Code)
	}
	if body := decode(t, rr); body["detail"] != "password must include an uppercase letter" {
		t.Fatalf("unexpected policy body: %v", body)
	}
}

func TestLoginAcceptsForm(t *testing.T) {
	fx := newRouteFixture(t)

	form := url.Values{"username": {"alice@example.com"}, "password": {"secret-pass"}}
	req := httptest.NewRequest(http.MethodPost, "/User2/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rr := fx.do(req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if body := decode(t, rr); body["access_token"] != "session-token" || body["token_type"] != "bearer" {
		t.Fatalf("unexpected login body: %v", body)
	}
}

func TestLoginErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{name: "bad credentials", err: domain.ErrUnauthorized, want: http.StatusUnauthorized},
		{name: "unverified", err: domain.ErrForbidden, want: http.StatusForbidden},
		{name: "store down", err: domain.ErrInternal, want: http.StatusInternalServerError},
		{name: "unknown", err: errors.New("surprise"), want: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newRouteFixture(t)
			fx.user1.loginErr = tc.err

			rr := fx.do(jsonRequest(http.MethodPost, "/User1/login", `{"email":"alice@example.com","password":"x"}`))
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rr.Code)
			}
		})
	}
}

func TestAuthenticatedRoutes(t *testing.T) {
	fx := newRouteFixture(t)
	fx.user1.profile = domain.User{ID: "Ab12Cd3", Email: "a@example.com", PasswordHash: "secret-hash"}

	rr := fx.do(httptest.NewRequest(http.MethodGet, "/User1/get", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	token, claims := fx.sessionFor(t, "User1")
	req := httptest.NewRequest(http.MethodGet, "/User1/get", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = fx.do(req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "secret-hash") {
		t.Fatal("profile must not expose the password hash")
	}

	req = httptest.NewRequest(http.MethodGet, "/User2/get", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	if rr = fx.do(req); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign realm, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/User1/logout", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	if rr = fx.do(req); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 on logout, got %d", rr.Code)
	}
	if len(fx.user1.loggedOut) != 1 || fx.user1.loggedOut[0] != claims.JTI {
		t.Fatalf("expected logout of %s, got %v", claims.JTI, fx.user1.loggedOut)
	}

	fx.revoked[claims.JTI] = true
	req = httptest.NewRequest(http.MethodDelete, "/User1/delete", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	if rr = fx.do(req); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for revoked token, got %d", rr.Code)
	}
	if len(fx.user1.deleted) != 0 {
		t.Fatal("revoked token must not delete the account")
	}
}

func TestDeleteAndOTPUseCallerIdentity(t *testing.T) {
	fx := newRouteFixture(t)
	token, _ := fx.sessionFor(t, "User2")

	req := httptest.NewRequest(http.MethodDelete, "/User2/delete", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	if rr := fx.do(req); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if len(fx.user2.deleted) != 1 || fx.user2.deleted[0] != "Ab12Cd3" {
		t.Fatalf("unexpected deletes: %v", fx.user2.deleted)
	}

	req = httptest.NewRequest(http.MethodPost, "/User2/otp_phone", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := fx.do(req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if body := decode(t, rr); body["token"] != "otp-token" {
		t.Fatalf("unexpected otp body: %v", body)
	}
	if fx.user2.lastPhone != "" {
		t.Fatalf("expected stored phone fallback, got %q", fx.user2.lastPhone)
	}
}

func TestTokenLinkRoutes(t *testing.T) {
	fx := newRouteFixture(t)

	if rr := fx.do(httptest.NewRequest(http.MethodGet, "/User1/reset_password_form?token=abc", nil)); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	} else if body := decode(t, rr); body["valid"] != true {
		t.Fatalf("unexpected form body: %v", body)
	}

	fx.user1.verifyErr = domain.ErrExpiredToken
	if rr := fx.do(httptest.NewRequest(http.MethodGet, "/User1/verify?token=abc", nil)); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for expired link, got %d", rr.Code)
	}

	if rr := fx.do(httptest.NewRequest(http.MethodGet, "/User1/verify", nil)); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without token, got %d", rr.Code)
	}

	fx.user1.resetErr = domain.ErrInvalidToken
	rr := fx.do(jsonRequest(http.MethodPost, "/User1/reset_password", `{"token":"abc","new_password":"N3w!Password"}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid reset token, got %d", rr.Code)
	}

	rr = fx.do(jsonRequest(http.MethodPost, "/User1/verify_otp_phone", `{"token":"t","code":"123456"}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for otp mismatch, got %d", rr.Code)
	}
}
