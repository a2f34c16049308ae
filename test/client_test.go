//go:build integration_test || all_tests

package test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/2beens/trainlog/internal/middleware"
	"github.com/2beens/trainlog/internal/misc"

	"github.com/stretchr/testify/require"
)

// device is one client of the service, e.g. the phone or the laptop of the same user.
type device struct {
	t        *testing.T
	endpoint string
	token    string
	userID   string
}

func (d *device) do(ctx context.Context, method, path, body string) (int, []byte) {
	d.t.Helper()

	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, d.endpoint+path, reqBody)
	require.NoError(d.t, err)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		req.Header.Set(middleware.AuthTokenHeader, d.token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(d.t, err)
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(d.t, err)

	return resp.StatusCode, respBytes
}

func (d *device) signIn(ctx context.Context, body string) {
	d.t.Helper()

	status, respBytes := d.do(ctx, http.MethodPost, "/a/signin", body)
	require.Equal(d.t, http.StatusOK, status, string(respBytes))

	var signInResp misc.SignInResponse
	require.NoError(d.t, json.Unmarshal(respBytes, &signInResp))
	require.NotEmpty(d.t, signInResp.Token)
	require.NotEmpty(d.t, signInResp.UserID)

	d.token = signInResp.Token
	d.userID = signInResp.UserID
}

func (d *device) getJSON(ctx context.Context, path string, v any) {
	d.t.Helper()

	status, respBytes := d.do(ctx, http.MethodGet, path, "")
	require.Equal(d.t, http.StatusOK, status, string(respBytes))
	require.NoError(d.t, json.Unmarshal(respBytes, v))
}
