//go:build integration_test || all_tests

package test

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/2beens/trainlog/internal/trainlog"
	"github.com/2beens/trainlog/internal/trainlog/logapi"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *IntegrationTestSuite) TestSignIn() {
	t := s.T()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	phone := &device{t: t, endpoint: serverEndpointA}
	phone.signIn(ctx, "")

	// no token
	anon := &device{t: t, endpoint: serverEndpointA}
	status, _ := anon.do(ctx, http.MethodGet, "/trainlog/snapshot", "")
	assert.Equal(t, http.StatusUnauthorized, status)

	// passphrase too short
	status, _ = phone.do(ctx, http.MethodPost, "/a/passphrase", `{"passphrase":"short"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = phone.do(ctx, http.MethodPost, "/a/passphrase", `{"passphrase":"correct horse"}`)
	require.Equal(t, http.StatusOK, status)

	laptop := &device{t: t, endpoint: serverEndpointB}
	status, _ = laptop.do(ctx, http.MethodPost, "/a/signin", `{"userId":"`+phone.userID+`","passphrase":"wrong horse"}`)
	assert.Equal(t, http.StatusUnauthorized, status)

	laptop.signIn(ctx, `{"userId":"`+phone.userID+`","passphrase":"correct horse"}`)
	assert.Equal(t, phone.userID, laptop.userID)
	assert.NotEqual(t, phone.token, laptop.token)

	status, _ = laptop.do(ctx, http.MethodPost, "/a/signout", "")
	assert.Equal(t, http.StatusOK, status)
	status, _ = laptop.do(ctx, http.MethodGet, "/trainlog/snapshot", "")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func (s *IntegrationTestSuite) TestTrainingLog_TwoInstances() {
	t := s.T()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	phone := &device{t: t, endpoint: serverEndpointA}
	phone.signIn(ctx, "")
	status, _ := phone.do(ctx, http.MethodPost, "/a/passphrase", `{"passphrase":"correct horse"}`)
	require.Equal(t, http.StatusOK, status)

	laptop := &device{t: t, endpoint: serverEndpointB}
	laptop.signIn(ctx, `{"userId":"`+phone.userID+`","passphrase":"correct horse"}`)

	// the laptop instance loads the (empty) log and subscribes
	var snapshot trainlog.Snapshot
	laptop.getJSON(ctx, "/trainlog/snapshot", &snapshot)
	assert.Empty(t, snapshot)

	for week, kg := range map[int]string{1: "60", 2: "40", 3: "80"} {
		status, body := phone.do(ctx, http.MethodPut, weekPath(week, "monday", 0, "value"), `{"value":"`+kg+`"}`)
		require.Equal(t, http.StatusOK, status, string(body))
	}
	status, body := phone.do(ctx, http.MethodPost, weekPath(3, "monday", 0, "toggle"), "")
	require.Equal(t, http.StatusOK, status)
	var mutation logapi.MutationResponse
	require.NoError(t, json.Unmarshal(body, &mutation))
	assert.True(t, mutation.Done)
	assert.Empty(t, mutation.SyncWarning)

	n, err := s.storedEntries(phone.userID)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	// the other instance gets the snapshot through the database notification
	assert.Eventually(t, func() bool {
		var progress trainlog.WeekProgress
		laptop.getJSON(ctx, "/trainlog/weeks/3", &progress)
		return progress.Done == 1 && progress.Days[0].Tasks[0].Value == "80"
	}, 10*time.Second, 100*time.Millisecond)

	var pbs map[string]struct {
		Value *float64 `json:"value"`
		Week  *int     `json:"week"`
	}
	laptop.getJSON(ctx, "/trainlog/personal-bests", &pbs)
	require.NotNil(t, pbs["squat"].Value)
	assert.Equal(t, 80.0, *pbs["squat"].Value)
	assert.Equal(t, 3, *pbs["squat"].Week)

	// invalid task
	status, _ = laptop.do(ctx, http.MethodPut, weekPath(3, "friday", 0, "done"), `{"done":true}`)
	assert.Equal(t, http.StatusBadRequest, status)

	// reset from the laptop reaches the phone
	status, _ = laptop.do(ctx, http.MethodDelete, "/trainlog", "")
	require.Equal(t, http.StatusOK, status)
	assert.Eventually(t, func() bool {
		var snapshot trainlog.Snapshot
		phone.getJSON(ctx, "/trainlog/snapshot", &snapshot)
		return len(snapshot) == 0
	}, 10*time.Second, 100*time.Millisecond)

	n, err = s.storedEntries(phone.userID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func (s *IntegrationTestSuite) TestCurriculum_Public() {
	t := s.T()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	anon := &device{t: t, endpoint: serverEndpointB}
	var plan trainlog.WeekPlan
	anon.getJSON(ctx, "/trainlog/curriculum/10", &plan)
	assert.Equal(t, "Peak", plan.Phase.Name)
	assert.Equal(t, 21, plan.LongRunKm)
}
