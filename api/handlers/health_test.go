package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHealthz_AlwaysHealthy(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())

	rec := httptest.NewRecorder()
	h.HandleHealthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
}

func TestReady_AllChecksPass(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())
	h.RegisterCheck(NewDatabaseHealthCheck("sqlite", func(ctx context.Context) error {
		return nil
	}))

	rec := httptest.NewRecorder()
	h.HandleReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	require.Contains(t, status.Checks, "sqlite")
	assert.Equal(t, "pass", status.Checks["sqlite"].Status)
}

func TestReady_FailingCheckReports503(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())
	h.RegisterCheck(NewDatabaseHealthCheck("sqlite", func(ctx context.Context) error {
		return nil
	}))
	h.RegisterCheck(NewDatabaseHealthCheck("broken", func(ctx context.Context) error {
		return errors.New("connection refused")
	}))

	rec := httptest.NewRecorder()
	h.HandleReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "pass", status.Checks["sqlite"].Status)
	assert.Equal(t, "fail", status.Checks["broken"].Status)
	assert.Equal(t, "connection refused", status.Checks["broken"].Message)
}

func TestReady_NoChecksIsHealthy(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())

	rec := httptest.NewRecorder()
	h.HandleReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVersion_ReturnsBuildInfo(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())
	handler := h.HandleVersion("1.2.3", "2026-08-31T00:00:00Z", "abc1234")

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData[map[string]string](t, rec)
	assert.Equal(t, "1.2.3", data["version"])
	assert.Equal(t, "abc1234", data["git_commit"])
}
