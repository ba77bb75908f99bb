//go:build integration

package app_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantguard/internal/app"
	"github.com/dmitrymomot/tenantguard/internal/pgtest"
	"github.com/dmitrymomot/tenantguard/internal/records"
	"github.com/dmitrymomot/tenantguard/pkg/httpserver"
	"github.com/dmitrymomot/tenantguard/pkg/queue"
	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

func TestApp_EndToEnd(t *testing.T) {
	pdb := pgtest.Start(t)
	a, b := tenant.New(), tenant.New()

	cfg := validConfig()
	cfg.JWTSecret = ""
	cfg.StaticCredentials = "key-a=" + a.String() + "/alice,key-b=" + b.String() + "/bob"
	cfg.DB = pdb.Config
	cfg.SystemDB = pdb.SystemDSN
	cfg.HTTP = httpserver.Config{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second}
	cfg.Queue = queue.Config{
		Queues:             []string{"default"},
		PollInterval:       50 * time.Millisecond,
		LockTimeout:        time.Minute,
		MaxConcurrentTasks: 2,
	}
	cfg.ResetTimeout = time.Second
	cfg.ReadinessTimeout = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	svc, err := app.New(ctx, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	require.NoError(t, svc.Verify(ctx))

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(srv.Close)

	call := func(method, path, key, body string) (int, []byte) {
		t.Helper()
		req, err := http.NewRequestWithContext(ctx, method, srv.URL+path, strings.NewReader(body))
		require.NoError(t, err)
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Authorization", "Bearer "+key)
		resp, err := srv.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, raw
	}

	status, raw := call(http.MethodPost, "/records", "key-a", `{"title":"launch","body":"checklist"}`)
	require.Equal(t, http.StatusCreated, status, string(raw))
	var created struct {
		Data records.Record `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &created))
	assert.Equal(t, a, created.Data.TenantID)
	path := "/records/" + created.Data.ID.String()

	status, _ = call(http.MethodGet, path, "key-a", "")
	assert.Equal(t, http.StatusOK, status)

	foreign, foreignBody := call(http.MethodGet, path, "key-b", "")
	assert.Equal(t, http.StatusNotFound, foreign)
	assert.NotContains(t, string(foreignBody), "launch")

	activity := func() []records.Activity {
		status, raw := call(http.MethodGet, path+"/activity", "key-a", "")
		require.Equal(t, http.StatusOK, status, string(raw))
		var body struct {
			Data []records.Activity `json:"data"`
		}
		require.NoError(t, json.Unmarshal(raw, &body))
		return body.Data
	}

	// The projection runs on the worker under the stamped tenant.
	require.Eventually(t, func() bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+path+"/activity", nil)
		if err != nil {
			return false
		}
		req.Header.Set("Authorization", "Bearer key-a")
		resp, err := srv.Client().Do(req)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var body struct {
			Data []records.Activity `json:"data"`
		}
		return resp.StatusCode == http.StatusOK &&
			json.NewDecoder(resp.Body).Decode(&body) == nil &&
			len(body.Data) == 1
	}, 10*time.Second, 100*time.Millisecond)
	got := activity()[0]
	assert.Equal(t, records.ActionCreated, got.Action)
	assert.Equal(t, "alice", got.Actor)

	last, err := svc.Replay(ctx, 0)
	require.NoError(t, err)
	assert.Positive(t, last)
	assert.Len(t, activity(), 1)

	status, _ = call(http.MethodGet, path+"/activity", "key-b", "")
	assert.Equal(t, http.StatusNotFound, status)
}
