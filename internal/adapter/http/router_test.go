package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell/contractflow/internal/adapter/memory"
	"github.com/inkwell/contractflow/internal/auth"
	"github.com/inkwell/contractflow/internal/domain"
	"github.com/inkwell/contractflow/internal/usecase"
)

type apiClient struct {
	t       *testing.T
	handler http.Handler
}

func newAPI(t *testing.T, opts Options) *apiClient {
	t.Helper()
	engine := usecase.NewEngine(usecase.Dependencies{Store: memory.NewStore()})
	handler, err := NewRouter(ServerConfig{
		AllowedOrigins:   []string{"https://app.example"},
		AllowUserHeader:  true,
		EnableRequestLog: false,
	}, ServicesFromEngine(engine), opts)
	require.NoError(t, err)
	return &apiClient{t: t, handler: handler}
}

func (c *apiClient) do(method, path, userID string, body interface{}, data interface{}) (int, Envelope) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set(userIDHeader, userID)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	if rec.Code == http.StatusNoContent {
		return rec.Code, Envelope{Status: true}
	}
	return rec.Code, decodeEnvelope(c.t, rec, data)
}

func TestRouter_Lifecycle(t *testing.T) {
	api := newAPI(t, Options{})

	var contract domain.Contract
	status, _ := api.do("POST", "/api/v1/contracts", "alice", map[string]interface{}{"title": "Supply agreement", "value": 1200}, &contract)
	require.Equal(t, http.StatusCreated, status)
	require.NotEmpty(t, contract.ID)
	base := "/api/v1/contracts/" + contract.ID

	var bob domain.Collaborator
	status, _ = api.do("POST", base+"/collaborators", "alice", map[string]string{"user_id": "bob", "role": "REVIEWER"}, &bob)
	require.Equal(t, http.StatusCreated, status)

	var draft domain.Draft
	status, _ = api.do("GET", base+"/draft", "alice", nil, &draft)
	require.Equal(t, http.StatusOK, status)

	var saved domain.Draft
	status, _ = api.do("PUT", base+"/draft", "alice", map[string]string{"stage": "DRAFT", "body": "v1 terms", "version_token": draft.VersionToken}, &saved)
	require.Equal(t, http.StatusOK, status)

	var stale staleDraftData
	status, env := api.do("PUT", base+"/draft", "alice", map[string]string{"stage": "DRAFT", "body": "late", "version_token": draft.VersionToken}, &stale)
	require.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "STALE_DRAFT_CONFLICT", env.Code)
	require.NotNil(t, stale.Current)
	assert.Equal(t, "v1 terms", stale.Current.Body)

	status, env = api.do("POST", base+"/transitions", "bob", map[string]string{"action": "submitForReview"}, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "PERMISSION_DENIED", env.Code)

	for _, step := range []struct{ user, action string }{
		{"alice", "submitForReview"},
		{"bob", "approve"},
		{"alice", "publish"},
	} {
		status, env = api.do("POST", base+"/transitions", step.user, map[string]string{"action": step.action}, nil)
		require.Equal(t, http.StatusOK, status, "%s: %s", step.action, env.Message)
	}

	var published publishedResponse
	status, _ = api.do("GET", base+"/published", "bob", nil, &published)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "v1 terms", published.Body)

	var versions []domain.Version
	status, _ = api.do("GET", base+"/versions", "bob", nil, &versions)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, versions, 1)
	assert.Equal(t, int64(1), versions[0].Sequence)

	var page auditPage
	status, _ = api.do("GET", base+"/audit?limit=2&offset=1", "bob", nil, &page)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, page.Entries, 2)
	assert.Equal(t, 6, page.Total)

	var report domain.ChainReport
	status, _ = api.do("GET", base+"/audit/verify", "alice", nil, &report)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, report.Valid)

	status, env = api.do("GET", base, "mallory", nil, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "NOT_A_COLLABORATOR", env.Code)
}

func TestRouter_CollaboratorRoutes(t *testing.T) {
	api := newAPI(t, Options{})

	var contract domain.Contract
	_, _ = api.do("POST", "/api/v1/contracts", "alice", map[string]interface{}{"title": "NDA"}, &contract)
	base := "/api/v1/contracts/" + contract.ID

	var carol domain.Collaborator
	status, _ := api.do("POST", base+"/collaborators", "alice", map[string]string{"user_id": "carol", "role": "VIEWER"}, &carol)
	require.Equal(t, http.StatusCreated, status)

	status, env := api.do("POST", base+"/collaborators", "alice", map[string]string{"user_id": "dave", "role": "OWNER"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "INVALID_ROLE_ASSIGNMENT", env.Code)

	status, env = api.do("POST", base+"/collaborators", "alice", map[string]string{"user_id": "dave", "role": "ADMIN"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", env.Code)

	var updated domain.Collaborator
	status, _ = api.do("PATCH", "/api/v1/collaborators/"+carol.ID, "alice", map[string]string{"role": "EDITOR"}, &updated)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, domain.RoleEditor, updated.Role)

	status, _ = api.do("POST", base+"/ownership", "alice", map[string]string{"to_user_id": "carol"}, nil)
	require.Equal(t, http.StatusOK, status)

	var perm domain.EffectivePermission
	status, _ = api.do("GET", base+"/permissions", "carol", nil, &perm)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, perm.IsOwner)

	var list []domain.Collaborator
	status, _ = api.do("GET", base+"/collaborators", "alice", nil, &list)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, list, 2)

	var alice domain.Collaborator
	for _, c := range list {
		if c.UserID == "alice" {
			alice = c
		}
	}
	status, _ = api.do("DELETE", "/api/v1/collaborators/"+alice.ID, "carol", nil, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = api.do("DELETE", base, "carol", nil, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, env = api.do("GET", base, "carol", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "CONTRACT_NOT_FOUND", env.Code)
}

func TestRouter_Authentication(t *testing.T) {
	tokens, err := auth.NewTokenService("secret", "contractflow", time.Hour)
	require.NoError(t, err)
	api := newAPI(t, Options{Tokens: tokens})

	req := httptest.NewRequest("GET", "/api/v1/contracts", nil)
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest("GET", "/api/v1/contracts", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rec = httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := tokens.Issue("alice")
	require.NoError(t, err)
	req = httptest.NewRequest("POST", "/api/v1/contracts", strings.NewReader(`{"title":"Lease"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var contract domain.Contract
	decodeEnvelope(t, rec, &contract)
	assert.Equal(t, "alice", contract.OwnerID)
}

func TestRouter_HealthMetricsAndCORS(t *testing.T) {
	reg := prometheus.NewRegistry()
	healthy := true
	api := newAPI(t, Options{
		Registry: reg,
		Health: func(ctx context.Context) error {
			if !healthy {
				return errors.New("db down")
			}
			return nil
		},
	})

	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(defaultCorrelationHeader))

	healthy = false
	rec = httptest.NewRecorder()
	api.handler.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	api.handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "contractflow_http_requests_total")

	req := httptest.NewRequest("OPTIONS", "/api/v1/contracts", nil)
	req.Header.Set("Origin", "https://app.example")
	rec = httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_CorrelationIDPropagates(t *testing.T) {
	api := newAPI(t, Options{})
	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set(defaultCorrelationHeader, "abc-123")
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(defaultCorrelationHeader))
}
