package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bhdrerdem/config-server/internal/apperr"
	"github.com/bhdrerdem/config-server/internal/config"
	"github.com/bhdrerdem/config-server/internal/handler"
	"github.com/bhdrerdem/config-server/internal/health"
	"github.com/bhdrerdem/config-server/internal/model"
	"github.com/bhdrerdem/config-server/internal/server"
	"github.com/bhdrerdem/config-server/internal/service"
	"github.com/bhdrerdem/config-server/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockDocumentStore struct {
	mock.Mock
}

func (m *mockDocumentStore) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	args := m.Called(ctx, collection, fields)
	return args.String(0), args.Error(1)
}

func (m *mockDocumentStore) GetByID(ctx context.Context, collection, id string) (map[string]any, error) {
	args := m.Called(ctx, collection, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]any), args.Error(1)
}

func (m *mockDocumentStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	args := m.Called(ctx, collection, id, fields)
	return args.Error(0)
}

func (m *mockDocumentStore) Delete(ctx context.Context, collection, id string) error {
	args := m.Called(ctx, collection, id)
	return args.Error(0)
}

func (m *mockDocumentStore) QueryAll(ctx context.Context, collection string) ([]store.Record, error) {
	args := m.Called(ctx, collection)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.Record), args.Error(1)
}

func (m *mockDocumentStore) QueryProjected(ctx context.Context, collection string, fields []string) ([]map[string]any, error) {
	args := m.Called(ctx, collection, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]map[string]any), args.Error(1)
}

func (m *mockDocumentStore) Ping(ctx context.Context) error      { return nil }
func (m *mockDocumentStore) Healthy() bool                       { return true }
func (m *mockDocumentStore) Reconnect(ctx context.Context) error { return nil }
func (m *mockDocumentStore) Close()                              {}

type mockCache struct {
	mock.Mock
}

func (m *mockCache) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *mockCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *mockCache) Ping(ctx context.Context) error      { return nil }
func (m *mockCache) Healthy() bool                       { return true }
func (m *mockCache) Reconnect(ctx context.Context) error { return nil }
func (m *mockCache) Close() error                        { return nil }

type testServer struct {
	handler   http.Handler
	documents *mockDocumentStore
	cache     *mockCache
	readiness *health.Readiness
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := zap.NewNop()
	documents := new(mockDocumentStore)
	cache := new(mockCache)
	readiness := health.NewReadiness()

	svc := service.NewConfigurationService(documents, cache, nil, logger)
	errorHandler := apperr.NewHandler(logger)
	handlers := handler.NewHandlers(svc, readiness, errorHandler, logger, 5*time.Second)

	srv := server.NewServer(config.DefaultConfig(), handlers, errorHandler, nil, logger)
	srv.SetupRoutes()

	return &testServer{
		handler:   srv.GetHandler(),
		documents: documents,
		cache:     cache,
		readiness: readiness,
	}
}

func (ts *testServer) do(method, path string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func storedRecord(key, value string, version int64) map[string]any {
	now := time.Now().UTC().Format(time.RFC3339)
	return map[string]any{
		"parameterKey": key,
		"value":        value,
		"description":  "",
		"createdAt":    now,
		"updatedAt":    now,
		"version":      float64(version),
	}
}

func TestCreateConfiguration(t *testing.T) {
	ts := newTestServer(t)

	ts.documents.On("Create", mock.Anything, "configurations", mock.Anything).Return("id-1", nil)

	w := ts.do(http.MethodPost, "/configurations", `{"parameterKey":"max  retries","value":" 5 "}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var cfg model.Configuration
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cfg))
	assert.Equal(t, "id-1", cfg.ID)
	assert.Equal(t, "max_retries", cfg.ParameterKey)
	assert.Equal(t, "5", cfg.Value)
	assert.Equal(t, int64(1), cfg.Version)
}

func TestCreateConfiguration_InvalidBody(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPost, "/configurations", `{invalid}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
}

func TestCreateConfiguration_EmptyKey(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPost, "/configurations", `{"parameterKey":"  ","value":"v"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "parameterKey")
}

func TestGetConfiguration_NotFound(t *testing.T) {
	ts := newTestServer(t)

	ts.cache.On("Get", mock.Anything, "configuration:missing").Return("", store.ErrNotFound)
	ts.documents.On("GetByID", mock.Anything, "configurations", "missing").Return(nil, store.ErrNotFound)

	w := ts.do(http.MethodGet, "/configurations/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND")
}

func TestGetConfiguration(t *testing.T) {
	ts := newTestServer(t)

	ts.cache.On("Get", mock.Anything, "configuration:id-1").Return("", store.ErrNotFound)
	ts.documents.On("GetByID", mock.Anything, "configurations", "id-1").
		Return(storedRecord("k", "v", 3), nil)
	ts.cache.On("Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	w := ts.do(http.MethodGet, "/configurations/id-1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var cfg model.Configuration
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cfg))
	assert.Equal(t, int64(3), cfg.Version)
}

func TestUpdateConfiguration_StaleVersion(t *testing.T) {
	ts := newTestServer(t)

	ts.cache.On("Get", mock.Anything, mock.Anything).Return("", store.ErrNotFound)
	ts.documents.On("GetByID", mock.Anything, "configurations", "id-1").
		Return(storedRecord("k", "v", 2), nil)
	ts.cache.On("Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	w := ts.do(http.MethodPut, "/configurations/id-1", `{"value":"new","version":1}`)
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
	assert.Contains(t, w.Body.String(), "VERSION_CONFLICT")

	ts.documents.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateConfiguration(t *testing.T) {
	ts := newTestServer(t)

	ts.cache.On("Get", mock.Anything, mock.Anything).Return("", store.ErrNotFound)
	ts.documents.On("GetByID", mock.Anything, "configurations", "id-1").
		Return(storedRecord("k", "v", 1), nil)
	ts.documents.On("Update", mock.Anything, "configurations", "id-1", mock.Anything).Return(nil)
	ts.cache.On("Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	w := ts.do(http.MethodPut, "/configurations/id-1", `{"value":"new","version":1}`)
	require.Equal(t, http.StatusOK, w.Code)

	var cfg model.Configuration
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cfg))
	assert.Equal(t, int64(2), cfg.Version)
	assert.Equal(t, "new", cfg.Value)
}

func TestDeleteConfiguration(t *testing.T) {
	ts := newTestServer(t)

	ts.documents.On("Delete", mock.Anything, "configurations", "id-1").Return(nil)
	ts.cache.On("Delete", mock.Anything, "configuration:id-1").Return(nil)

	w := ts.do(http.MethodDelete, "/configurations/id-1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestDeleteConfiguration_NotFound(t *testing.T) {
	ts := newTestServer(t)

	ts.documents.On("Delete", mock.Anything, "configurations", "id-1").Return(store.ErrNotFound)
	ts.cache.On("Delete", mock.Anything, "configuration:id-1").Return(nil)

	w := ts.do(http.MethodDelete, "/configurations/id-1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListConfigurations(t *testing.T) {
	ts := newTestServer(t)

	ts.documents.On("QueryAll", mock.Anything, "configurations").Return([]store.Record{
		{ID: "id-1", Data: storedRecord("a", "1", 1)},
		{ID: "id-2", Data: storedRecord("b", "2", 1)},
	}, nil)

	w := ts.do(http.MethodGet, "/configurations", "")
	require.Equal(t, http.StatusOK, w.Code)

	var configs []model.Configuration
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &configs))
	require.Len(t, configs, 2)
	assert.Equal(t, "a", configs[0].ParameterKey)
}

func TestListConfigurationsForMobile(t *testing.T) {
	ts := newTestServer(t)

	ts.documents.On("QueryProjected", mock.Anything, "configurations", []string{"parameterKey", "value"}).
		Return([]map[string]any{
			{"parameterKey": "a", "value": "1"},
			{"parameterKey": "b", "value": "2"},
		}, nil)

	w := ts.do(http.MethodGet, "/configurations-mobile", "")
	require.Equal(t, http.StatusOK, w.Code)

	var result map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, result)
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"UP"}`, w.Body.String())

	ts.readiness.Degrade("cache probe failed")

	w = ts.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"status":"DOWN"}`, w.Body.String())
}

func TestUnknownEndpoint(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "endpoint not found")
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPatch, "/configurations/id-1", `{}`)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
