package misc_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/2beens/trainlog/internal/auth"
	"github.com/2beens/trainlog/internal/middleware"
	"github.com/2beens/trainlog/internal/misc"
	"github.com/2beens/trainlog/internal/telemetry/metrics"

	"github.com/go-redis/redis_rate/v9"
	"github.com/golang/mock/gomock"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// use TestMain(m *testing.M) { ... } for
// global set-up/tear-down for all the tests in a package
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testRequestRateLimiter struct {
	// key prefix to remaining allowed requests
	Limits map[string]int
}

func (l *testRequestRateLimiter) Allow(_ context.Context, key string, _ redis_rate.Limit) (*redis_rate.Result, error) {
	res := &redis_rate.Result{}
	for prefix, remaining := range l.Limits {
		if strings.HasPrefix(key, prefix) && remaining > 0 {
			res.Allowed = 1
			l.Limits[prefix]--
		}
	}
	return res, nil
}

func setupRouterForTests(
	t *testing.T,
	authService *MockauthService,
	reqRateLimiter *testRequestRateLimiter,
	metricsManager *metrics.Manager,
) *mux.Router {
	t.Helper()

	r := mux.NewRouter()
	handler := misc.NewHandler("dummy", authService, metricsManager)
	handler.SetupRoutes(r, reqRateLimiter, 5)

	// user id as the auth middleware would set it
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID := r.Header.Get("X-Test-User"); userID != "" {
				r = r.WithContext(auth.ContextWithUserID(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	})

	return r
}

func TestNewMiscHandler_Routes(t *testing.T) {
	mainRouter := mux.NewRouter()
	handler := misc.NewHandler("dummy", nil, metrics.NewTestManager())
	handler.SetupRoutes(mainRouter, nil, 5)

	for caseName, route := range map[string]struct {
		name   string
		path   string
		method string
	}{
		"root-get":          {name: "root", path: "/", method: "GET"},
		"root-options":      {name: "root", path: "/", method: "OPTIONS"},
		"myip":              {name: "myip", path: "/myip", method: "GET"},
		"version":           {name: "version", path: "/version", method: "GET"},
		"signin":            {name: "signin", path: "/a/signin", method: "POST"},
		"signin-options":    {name: "signin", path: "/a/signin", method: "OPTIONS"},
		"signout":           {name: "signout", path: "/a/signout", method: "POST"},
		"passphrase":        {name: "passphrase", path: "/a/passphrase", method: "POST"},
		"passphrase-option": {name: "passphrase", path: "/a/passphrase", method: "OPTIONS"},
	} {
		t.Run(caseName, func(t *testing.T) {
			req, err := http.NewRequest(route.method, route.path, nil)
			require.NoError(t, err)

			routeMatch := &mux.RouteMatch{}
			route := mainRouter.Get(route.name)
			require.NotNil(t, route)
			assert.True(t, route.Match(req, routeMatch), caseName)
		})
	}
}

func TestHandler_SignInAnonymously(t *testing.T) {
	ctrl := gomock.NewController(t)
	authService := NewMockauthService(ctrl)
	metricsManager := metrics.NewTestManager()
	reqRateLimiter := &testRequestRateLimiter{Limits: map[string]int{"signin||": 1}}
	r := setupRouterForTests(t, authService, reqRateLimiter, metricsManager)

	authService.EXPECT().
		SignInAnonymously(gomock.Any(), gomock.Any()).
		Return(&auth.Session{Token: "test_token", UserID: "user-1"}, nil).
		Times(1)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/a/signin", nil)
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp misc.SignInResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "test_token", resp.Token)
	assert.Equal(t, "user-1", resp.UserID)
	assert.Equal(t, float64(1), testutil.ToFloat64(metricsManager.CounterSignIns.WithLabelValues("anonymous")))

	// next time rate limited
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/a/signin", nil))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Body.String(), "retry after"))
	assert.Equal(t, float64(1), testutil.ToFloat64(metricsManager.CounterRateLimitedRequests))
}

func TestHandler_SignInWithPassphrase(t *testing.T) {
	ctrl := gomock.NewController(t)
	authService := NewMockauthService(ctrl)
	metricsManager := metrics.NewTestManager()
	reqRateLimiter := &testRequestRateLimiter{Limits: map[string]int{"signin||": 10}}
	r := setupRouterForTests(t, authService, reqRateLimiter, metricsManager)

	authService.EXPECT().
		SignInWithPassphrase(gomock.Any(), "user-1", "testpass", gomock.Any()).
		Return(&auth.Session{Token: "second_device_token", UserID: "user-1"}, nil)
	authService.EXPECT().
		SignInWithPassphrase(gomock.Any(), "user-1", "wrong", gomock.Any()).
		Return(nil, auth.ErrWrongPassphrase)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/a/signin", strings.NewReader(`{"userId":"user-1","passphrase":"testpass"}`))
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"token":"second_device_token","userId":"user-1"}`, rr.Body.String())
	assert.Equal(t, float64(1), testutil.ToFloat64(metricsManager.CounterSignIns.WithLabelValues("passphrase")))

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/a/signin", strings.NewReader(`{"userId":"user-1","passphrase":"wrong"}`))
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/a/signin", strings.NewReader(`{"userId":`))
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandler_SignOut(t *testing.T) {
	ctrl := gomock.NewController(t)
	authService := NewMockauthService(ctrl)
	reqRateLimiter := &testRequestRateLimiter{Limits: map[string]int{"signin||": 10}}
	r := setupRouterForTests(t, authService, reqRateLimiter, metrics.NewTestManager())

	authService.EXPECT().Logout(gomock.Any(), "token1").Return(true, nil)
	authService.EXPECT().Logout(gomock.Any(), "token2").Return(false, nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/a/signout", nil)
	req.Header.Set(middleware.AuthTokenHeader, "token1")
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "signed-out", rr.Body.String())

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/a/signout", nil)
	req.Header.Set(middleware.AuthTokenHeader, "token2")
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/a/signout", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHandler_SetPassphrase(t *testing.T) {
	ctrl := gomock.NewController(t)
	authService := NewMockauthService(ctrl)
	reqRateLimiter := &testRequestRateLimiter{Limits: map[string]int{"signin||": 10}}
	r := setupRouterForTests(t, authService, reqRateLimiter, metrics.NewTestManager())

	authService.EXPECT().SetPassphrase(gomock.Any(), "user-1", "testpass").Return(nil)
	authService.EXPECT().SetPassphrase(gomock.Any(), "user-1", "short").Return(auth.ErrPassphraseTooShort)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/a/passphrase", strings.NewReader(`{"passphrase":"testpass"}`))
	req.Header.Set("X-Test-User", "user-1")
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/a/passphrase", strings.NewReader(`{"passphrase":"short"}`))
	req.Header.Set("X-Test-User", "user-1")
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// no signed in user
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/a/passphrase", strings.NewReader(`{"passphrase":"testpass"}`))
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
