package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePinger is a Pinger returning a fixed error.
type fakePinger struct {
	err   error
	calls int
}

func (p *fakePinger) Ping(ctx context.Context) error {
	p.calls++
	return p.err
}

// setupTestRouter creates a test Gin router.
func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func TestHealthHandler_Health(t *testing.T) {
	handler := NewHealthHandler(nil, "test", nil)

	router := setupTestRouter()
	router.GET("/health", handler.Health)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, HealthResponse{Status: "healthy"}, response)
}

func TestHealthHandler_Ready(t *testing.T) {
	tests := []struct {
		name           string
		databaseErr    error
		cacheErr       error
		expectedStatus int
		expectedBody   ReadyResponse
	}{
		{
			name:           "all dependencies connected",
			expectedStatus: http.StatusOK,
			expectedBody: ReadyResponse{
				Status: "ready",
				Checks: map[string]string{"database": "connected", "cache": "connected"},
			},
		},
		{
			name:           "database down",
			databaseErr:    errors.New("connection refused"),
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody: ReadyResponse{
				Status: "not_ready",
				Checks: map[string]string{"database": "disconnected", "cache": "connected"},
			},
		},
		{
			name:           "cache down",
			cacheErr:       context.DeadlineExceeded,
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody: ReadyResponse{
				Status: "not_ready",
				Checks: map[string]string{"database": "connected", "cache": "disconnected"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &fakePinger{err: tt.databaseErr}
			cache := &fakePinger{err: tt.cacheErr}
			handler := NewHealthHandler(map[string]Pinger{"database": db, "cache": cache}, "test", nil)

			router := setupTestRouter()
			router.GET("/health/ready", handler.Ready)

			req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var response ReadyResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, tt.expectedBody, response)
			assert.Equal(t, 1, db.calls)
			assert.Equal(t, 1, cache.calls)
		})
	}
}

func TestHealthHandler_ReadyWithoutChecks(t *testing.T) {
	handler := NewHealthHandler(nil, "test", nil)

	router := setupTestRouter()
	router.GET("/health/ready", handler.Ready)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ready","checks":{}}`, w.Body.String())
}

func TestPingFunc(t *testing.T) {
	want := errors.New("boom")
	var p Pinger = PingFunc(func(ctx context.Context) error { return want })
	assert.ErrorIs(t, p.Ping(context.Background()), want)
}

func TestHealthHandler_Info(t *testing.T) {
	tests := []struct {
		name         string
		env          string
		gateways     []string
		startTime    time.Time
		wantGateways []string
	}{
		{
			name:         "development with both gateways",
			env:          "development",
			gateways:     []string{"flutterwave", "paystack"},
			startTime:    time.Now().Add(-2 * time.Hour),
			wantGateways: []string{"flutterwave", "paystack"},
		},
		{
			name:         "production without gateways",
			env:          "production",
			startTime:    time.Now().Add(-24 * time.Hour),
			wantGateways: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(nil, tt.env, tt.gateways)
			handler.startTime = tt.startTime

			router := setupTestRouter()
			router.GET("/api/v1/info", handler.Info)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/info", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)

			var response InfoResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))

			assert.Equal(t, APIVersion, response.Version)
			assert.Equal(t, tt.env, response.Environment)
			assert.Equal(t, tt.wantGateways, response.Gateways)
			assert.NotEmpty(t, response.Uptime)
		})
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{name: "formats seconds only", duration: 45 * time.Second, expected: "0h 0m 45s"},
		{name: "formats minutes and seconds", duration: 5*time.Minute + 30*time.Second, expected: "0h 5m 30s"},
		{name: "formats hours, minutes and seconds", duration: 2*time.Hour + 15*time.Minute + 45*time.Second, expected: "2h 15m 45s"},
		{name: "formats days", duration: 3*24*time.Hour + 5*time.Hour + 30*time.Minute + 15*time.Second, expected: "3d 5h 30m 15s"},
		{name: "formats exactly one day", duration: 24 * time.Hour, expected: "1d 0h 0m 0s"},
		{name: "formats zero duration", duration: 0, expected: "0h 0m 0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatUptime(tt.duration))
		})
	}
}
