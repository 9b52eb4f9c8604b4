// Copyright (C) 2025 The image-variant-worker Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package healthcheck

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusStarting, "starting"},
		{StatusHealthy, "healthy"},
		{StatusUnhealthy, "unhealthy"},
		{Status(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
		})
	}
}

func TestGetConfigFromEnv(t *testing.T) {
	t.Setenv("HEALTH_CHECK_PORT", "")
	assert.Equal(t, defaultPort, GetConfigFromEnv().Port)

	t.Setenv("HEALTH_CHECK_PORT", "9090")
	assert.Equal(t, 9090, GetConfigFromEnv().Port)

	t.Setenv("HEALTH_CHECK_PORT", "invalid")
	assert.Equal(t, defaultPort, GetConfigFromEnv().Port)

	t.Setenv("HEALTH_CHECK_PORT", "70000")
	assert.Equal(t, defaultPort, GetConfigFromEnv().Port)
}

func TestNewServer(t *testing.T) {
	assert.Equal(t, defaultPort, NewServer(Config{}).port)
	assert.Equal(t, 9999, NewServer(Config{Port: 9999}).port)
}

func TestReadiness(t *testing.T) {
	s := NewServer(Config{})
	assert.False(t, s.IsReady(), "no conditions registered")

	s.SetReadyCondition("storage", true)
	s.SetReadyCondition("transport", false)
	assert.False(t, s.IsReady())

	s.SetReadyCondition("transport", true)
	assert.True(t, s.IsReady())

	s.ClearReadyCondition("transport")
	assert.True(t, s.IsReady())
}

func get(t *testing.T, h http.Handler, path string) (int, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	return rec.Code, resp
}

func TestHandlers(t *testing.T) {
	s := NewServer(Config{})
	h := s.Handler()

	code, _ := get(t, h, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	code, _ = get(t, h, "/livez")
	assert.Equal(t, http.StatusOK, code)

	s.SetReadyCondition("transport", false)
	code, resp := get(t, h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, []string{"transport"}, resp.Pending)

	s.SetStatus(StatusHealthy)
	s.SetReadyCondition("transport", true)
	code, resp = get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", resp.Status)
	code, _ = get(t, h, "/readyz")
	assert.Equal(t, http.StatusOK, code)

	s.SetStatus(StatusUnhealthy)
	code, _ = get(t, h, "/livez")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestStartStopsOnCancel(t *testing.T) {
	s := NewServer(Config{Port: 18091})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestStopWithoutStart(t *testing.T) {
	assert.NoError(t, NewServer(Config{}).Stop())
}
