package records_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantguard/internal/records"
	"github.com/dmitrymomot/tenantguard/pkg/command"
	"github.com/dmitrymomot/tenantguard/pkg/dbsession"
	"github.com/dmitrymomot/tenantguard/pkg/httpapi"
	"github.com/dmitrymomot/tenantguard/pkg/identity"
	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

// memoryRecords filters by the active tenant the way the row policy does.
type memoryRecords struct {
	mu   sync.Mutex
	rows map[uuid.UUID]records.Record
}

func (m *memoryRecords) create(ctx context.Context, cmd records.CreateRecord) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	id, err := tenant.Current(ctx)
	if err != nil {
		return err
	}
	actor, _ := tenant.ActorFromContext(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[cmd.RecordID] = records.Record{
		ID: cmd.RecordID, TenantID: id, Title: cmd.Title, Body: cmd.Body,
		CreatedBy: actor, CreatedAt: time.Now().UTC(),
	}
	return nil
}

func (m *memoryRecords) Get(ctx context.Context, recordID uuid.UUID) (records.Record, error) {
	id, err := tenant.Current(ctx)
	if err != nil {
		return records.Record{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[recordID]
	if !ok || rec.TenantID != id {
		return records.Record{}, dbsession.ErrNotFound
	}
	return rec, nil
}

func (m *memoryRecords) List(ctx context.Context, limit int) ([]records.Record, error) {
	id, err := tenant.Current(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []records.Record
	for _, rec := range m.rows {
		if rec.TenantID == id && (limit <= 0 || len(out) < limit) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memoryRecords) Activity(ctx context.Context, recordID uuid.UUID) ([]records.Activity, error) {
	if _, err := m.Get(ctx, recordID); err != nil {
		return nil, err
	}
	return nil, nil
}

type api struct {
	handler http.Handler
	tenantA tenant.ID
	tenantB tenant.ID
}

func newAPI(t *testing.T) *api {
	t.Helper()

	a, b := tenant.New(), tenant.New()
	store := &memoryRecords{rows: make(map[uuid.UUID]records.Record)}
	bus := command.NewBus()
	require.NoError(t, command.Handle(bus, store.create))

	resolver := identity.NewStaticResolver(map[string]tenant.Principal{
		"key-a": {TenantID: a, Actor: "alice"},
		"key-b": {TenantID: b, Actor: "bob"},
	})
	onError := httpapi.Error(nil)

	r := chi.NewRouter()
	r.Use(tenant.Middleware(tenant.BearerExtractor, resolver, tenant.WithErrorHandler(onError)))
	r.Mount("/records", records.Routes(bus, store, onError))

	return &api{handler: r, tenantA: a, tenantB: b}
}

func (a *api) do(t *testing.T, method, path, key, body string) (*httptest.ResponseRecorder, httpapi.Envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	var env httpapi.Envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func (a *api) create(t *testing.T, key, title string) records.Record {
	t.Helper()
	rec, _ := a.do(t, http.MethodPost, "/records", key, `{"title":"`+title+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body struct {
		Data records.Record `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Data
}

func TestHTTP_CreateAndGet(t *testing.T) {
	t.Parallel()

	a := newAPI(t)
	created := a.create(t, "key-a", "first")
	assert.Equal(t, a.tenantA, created.TenantID)
	assert.Equal(t, "alice", created.CreatedBy)

	rec, env := a.do(t, http.MethodGet, "/records/"+created.ID.String(), "key-a", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, env.Error)
}

func TestHTTP_ForeignRecordLooksMissing(t *testing.T) {
	t.Parallel()

	a := newAPI(t)
	created := a.create(t, "key-a", "secret")

	foreign, foreignEnv := a.do(t, http.MethodGet, "/records/"+created.ID.String(), "key-b", "")
	missing, missingEnv := a.do(t, http.MethodGet, "/records/"+uuid.NewString(), "key-b", "")
	malformed, _ := a.do(t, http.MethodGet, "/records/not-a-uuid", "key-b", "")

	assert.Equal(t, http.StatusNotFound, foreign.Code)
	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.Equal(t, http.StatusNotFound, malformed.Code)
	require.NotNil(t, foreignEnv.Error)
	require.NotNil(t, missingEnv.Error)
	assert.Equal(t, missingEnv.Error.Code, foreignEnv.Error.Code)
	assert.Equal(t, missingEnv.Error.Message, foreignEnv.Error.Message)

	act, _ := a.do(t, http.MethodGet, "/records/"+created.ID.String()+"/activity", "key-b", "")
	assert.Equal(t, http.StatusNotFound, act.Code)
}

func TestHTTP_ListIsTenantScoped(t *testing.T) {
	t.Parallel()

	a := newAPI(t)
	a.create(t, "key-a", "a1")
	a.create(t, "key-a", "a2")
	a.create(t, "key-b", "b1")

	rec, env := a.do(t, http.MethodGet, "/records", "key-a", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, env.Meta["count"])

	rec, env = a.do(t, http.MethodGet, "/records?limit=1", "key-b", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, env.Meta["count"])

	rec, _ = a.do(t, http.MethodGet, "/records?limit=zero", "key-b", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHTTP_CreateErrors(t *testing.T) {
	t.Parallel()

	a := newAPI(t)

	tests := []struct {
		name   string
		key    string
		body   string
		status int
		code   string
	}{
		{"no credential", "", `{"title":"x"}`, http.StatusUnauthorized, "unauthorized"},
		{"unknown credential", "key-x", `{"title":"x"}`, http.StatusUnauthorized, "unauthorized"},
		{"empty title", "key-a", `{"title":""}`, http.StatusUnprocessableEntity, "validation_error"},
		{"tenant in body", "key-a", `{"title":"x","tenant_id":"` + tenant.New().String() + `"}`, http.StatusBadRequest, "invalid_json"},
		{"broken json", "key-a", `{"title":`, http.StatusBadRequest, "invalid_json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec, env := a.do(t, http.MethodPost, "/records", tt.key, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}
