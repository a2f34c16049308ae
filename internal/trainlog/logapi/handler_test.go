package logapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/2beens/trainlog/internal/auth"
	"github.com/2beens/trainlog/internal/telemetry/metrics"
	"github.com/2beens/trainlog/internal/trainlog"
	"github.com/2beens/trainlog/internal/trainlog/logapi"
	"github.com/2beens/trainlog/internal/trainlog/logsync"

	"github.com/golang/mock/gomock"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const testUserID = "user-1"

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testEnv struct {
	router   *mux.Router
	repo     *logsync.MemoryRepo
	tracker  *logsync.Tracker
	registry *MocktrackerRegistry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo := logsync.NewMemoryRepo()
	tracker := logsync.NewTracker(logsync.NewTrackerParams{
		Repo:           repo,
		MetricsManager: metrics.NewTestManager(),
	})
	require.NoError(t, tracker.SetIdentity(context.Background(), testUserID))
	t.Cleanup(tracker.Close)

	ctrl := gomock.NewController(t)
	registry := NewMocktrackerRegistry(ctrl)
	registry.EXPECT().Tracker(gomock.Any(), testUserID).Return(tracker, nil).AnyTimes()

	r := mux.NewRouter()
	logapi.NewHandler(registry, nil).SetupRoutes(r)

	return &testEnv{
		router:   r,
		repo:     repo,
		tracker:  tracker,
		registry: registry,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reqBody)
	req = req.WithContext(auth.ContextWithUserID(req.Context(), testUserID))

	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decodeMutation(t *testing.T, rr *httptest.ResponseRecorder) logapi.MutationResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp logapi.MutationResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func TestHandler_Curriculum(t *testing.T) {
	r := mux.NewRouter()
	logapi.NewHandler(nil, nil).SetupRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/trainlog/curriculum/3", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var plan trainlog.WeekPlan
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &plan))
	assert.Equal(t, 3, plan.Week)
	assert.Equal(t, "Adaptation", plan.Phase.Name)
	assert.Equal(t, 12, plan.LongRunKm)
	assert.Len(t, plan.Days, 5)

	for _, path := range []string{"/trainlog/curriculum/0", "/trainlog/curriculum/17", "/trainlog/curriculum/abc"} {
		rr = httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code, path)
	}
}

func TestHandler_Mutations(t *testing.T) {
	env := newTestEnv(t)

	resp := decodeMutation(t, env.do(t, http.MethodPut, "/trainlog/weeks/1/monday/0/done", `{"done":true}`))
	assert.True(t, resp.Done)
	assert.Equal(t, trainlog.Monday, resp.Day)
	assert.Empty(t, resp.SyncWarning)

	resp = decodeMutation(t, env.do(t, http.MethodPost, "/trainlog/weeks/1/Monday/0/toggle", ""))
	assert.False(t, resp.Done)

	resp = decodeMutation(t, env.do(t, http.MethodPut, "/trainlog/weeks/2/monday/0/value", `{"value":"60"}`))
	assert.Equal(t, "60", resp.Value)

	assert.Equal(t, "60", env.tracker.Store().Value(2, trainlog.Monday, 0))
	snapshot, err := env.repo.Load(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Equal(t, "60", snapshot[trainlog.EncodeKey(2, trainlog.Monday, 0, trainlog.KindValue)])

	rr := env.do(t, http.MethodGet, "/trainlog/snapshot", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"w1_Monday_0":false,"w2_val_Monday_0":"60"}`, rr.Body.String())

	resp = decodeMutation(t, env.do(t, http.MethodDelete, "/trainlog", ""))
	assert.Empty(t, resp.SyncWarning)
	assert.Equal(t, 0, env.tracker.Store().Len())
}

func TestHandler_Mutations_InvalidInput(t *testing.T) {
	env := newTestEnv(t)

	for name, tc := range map[string]struct {
		method string
		path   string
		body   string
	}{
		"week-out-of-range": {http.MethodPut, "/trainlog/weeks/17/monday/0/done", `{"done":true}`},
		"unknown-day":       {http.MethodPut, "/trainlog/weeks/1/friday/0/done", `{"done":true}`},
		"task-out-of-range": {http.MethodPost, "/trainlog/weeks/1/monday/9/toggle", ""},
		"negative-task":     {http.MethodPost, "/trainlog/weeks/1/monday/-1/toggle", ""},
		"missing-done":      {http.MethodPut, "/trainlog/weeks/1/monday/0/done", `{}`},
		"missing-value":     {http.MethodPut, "/trainlog/weeks/1/monday/0/value", `{"val":"1"}`},
	} {
		t.Run(name, func(t *testing.T) {
			rr := env.do(t, tc.method, tc.path, tc.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}

	assert.Equal(t, 0, env.tracker.Store().Len())
}

func TestHandler_Mutations_SyncWarning(t *testing.T) {
	env := newTestEnv(t)
	env.repo.FailSaves(errors.New("remote down"))

	resp := decodeMutation(t, env.do(t, http.MethodPut, "/trainlog/weeks/1/tuesday/0/done", `{"done":true}`))
	assert.True(t, resp.Done)
	assert.Contains(t, resp.SyncWarning, "remote down")

	// local state keeps the change
	assert.True(t, env.tracker.Store().Completion(1, trainlog.Tuesday, 0))
}

func TestHandler_WeekProgressAndPersonalBests(t *testing.T) {
	env := newTestEnv(t)

	for week, kg := range map[int]string{1: "60", 2: "40", 3: "80"} {
		path := "/trainlog/weeks/" + strconv.Itoa(week) + "/monday/0/value"
		decodeMutation(t, env.do(t, http.MethodPut, path, `{"value":"`+kg+`"}`))
	}
	decodeMutation(t, env.do(t, http.MethodPut, "/trainlog/weeks/3/monday/0/done", `{"done":true}`))

	rr := env.do(t, http.MethodGet, "/trainlog/weeks/3", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var progress trainlog.WeekProgress
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &progress))
	assert.Equal(t, 3, progress.Week)
	assert.Equal(t, 1, progress.Done)
	assert.Equal(t, "80", progress.Days[0].Tasks[0].Value)

	rr = env.do(t, http.MethodGet, "/trainlog/personal-bests", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var pbs map[string]struct {
		Value *float64 `json:"value"`
		Week  *int     `json:"week"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &pbs))
	require.NotNil(t, pbs["squat"].Value)
	assert.Equal(t, 80.0, *pbs["squat"].Value)
	assert.Equal(t, 3, *pbs["squat"].Week)
	assert.Nil(t, pbs["bench"].Value)
}

func TestHandler_NoUser(t *testing.T) {
	r := mux.NewRouter()
	logapi.NewHandler(nil, nil).SetupRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/trainlog/snapshot", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHandler_RegistryError(t *testing.T) {
	ctrl := gomock.NewController(t)
	registry := NewMocktrackerRegistry(ctrl)
	registry.EXPECT().Tracker(gomock.Any(), testUserID).Return(nil, logsync.ErrTrackerClosed)

	r := mux.NewRouter()
	logapi.NewHandler(registry, nil).SetupRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/trainlog/personal-bests", nil)
	req = req.WithContext(auth.ContextWithUserID(req.Context(), testUserID))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestHandler_TrackerEvictedDuringRequest(t *testing.T) {
	repo := logsync.NewMemoryRepo()
	newTracker := func() *logsync.Tracker {
		tracker := logsync.NewTracker(logsync.NewTrackerParams{Repo: repo})
		require.NoError(t, tracker.SetIdentity(context.Background(), testUserID))
		return tracker
	}

	evicted := newTracker()
	evicted.Close()
	fresh := newTracker()
	t.Cleanup(fresh.Close)

	ctrl := gomock.NewController(t)
	registry := NewMocktrackerRegistry(ctrl)
	gomock.InOrder(
		registry.EXPECT().Tracker(gomock.Any(), testUserID).Return(evicted, nil),
		registry.EXPECT().Tracker(gomock.Any(), testUserID).Return(fresh, nil),
	)

	r := mux.NewRouter()
	logapi.NewHandler(registry, nil).SetupRoutes(r)

	req := httptest.NewRequest(http.MethodPut, "/trainlog/weeks/2/monday/0/value", strings.NewReader(`{"value":"70"}`))
	req = req.WithContext(auth.ContextWithUserID(req.Context(), testUserID))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "70", fresh.Store().Value(2, trainlog.Monday, 0))

	snapshot, err := repo.Load(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Equal(t, trainlog.Snapshot{"w2_val_Monday_0": "70"}, snapshot)
}

func TestHandler_TrackerClosed(t *testing.T) {
	closed := logsync.NewTracker(logsync.NewTrackerParams{Repo: logsync.NewMemoryRepo()})
	require.NoError(t, closed.SetIdentity(context.Background(), testUserID))
	closed.Close()

	ctrl := gomock.NewController(t)
	registry := NewMocktrackerRegistry(ctrl)
	registry.EXPECT().Tracker(gomock.Any(), testUserID).Return(closed, nil).Times(2)

	r := mux.NewRouter()
	logapi.NewHandler(registry, nil).SetupRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/trainlog/weeks/2/monday/0/toggle", nil)
	req = req.WithContext(auth.ContextWithUserID(req.Context(), testUserID))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
