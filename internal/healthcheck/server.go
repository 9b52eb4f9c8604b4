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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sigysmund/function-image-upload-resize/internal/helpers"
)

const defaultPort = 8090

type Status int32

const (
	StatusStarting Status = iota
	StatusHealthy
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusHealthy:
		return "healthy"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

type Response struct {
	Healthy bool   `json:"healthy"`
	Status  string `json:"status"`

	// Pending lists readiness conditions that are not yet met.
	Pending []string `json:"pending,omitempty"`
}

// Server serves /healthz, /readyz and /livez for the worker. Readiness is
// the conjunction of named conditions, e.g. "storage" and "transport".
type Server struct {
	port       int
	status     atomic.Int32
	conditions sync.Map // map[string]bool
	server     *http.Server
}

type Config struct {
	Port int
}

func GetConfigFromEnv() Config {
	port := helpers.GetIntEnv("HEALTH_CHECK_PORT", defaultPort)
	if port <= 0 || port >= 65536 {
		port = defaultPort
	}
	return Config{Port: port}
}

func NewServer(config Config) *Server {
	if config.Port == 0 {
		config.Port = defaultPort
	}
	return &Server{port: config.Port}
}

func (s *Server) SetStatus(status Status) {
	s.status.Store(int32(status))
	slog.Debug("Health check status updated", slog.String("status", status.String()))
}

func (s *Server) GetStatus() Status {
	return Status(s.status.Load())
}

// SetReadyCondition sets a named readiness condition. IsReady is true once
// at least one condition is registered and all of them are true.
func (s *Server) SetReadyCondition(name string, ready bool) {
	s.conditions.Store(name, ready)
	slog.Debug("Ready condition updated", slog.String("condition", name), slog.Bool("ready", ready))
}

func (s *Server) ClearReadyCondition(name string) {
	s.conditions.Delete(name)
}

func (s *Server) pending() (pending []string, registered bool) {
	s.conditions.Range(func(key, value any) bool {
		registered = true
		if !value.(bool) {
			pending = append(pending, key.(string))
		}
		return true
	})
	sort.Strings(pending)
	return pending, registered
}

func (s *Server) IsReady() bool {
	pending, registered := s.pending()
	return registered && len(pending) == 0
}

// Handler returns the health endpoints without starting a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		s.writeResponse(w, s.GetStatus() == StatusHealthy, nil)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		pending, registered := s.pending()
		s.writeResponse(w, registered && len(pending) == 0, pending)
	})
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		s.writeResponse(w, s.GetStatus() != StatusUnhealthy, nil)
	})
	return mux
}

// Start serves until ctx is done, then shuts the listener down.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.SetStatus(StatusStarting)
	slog.Info("Starting health check server", slog.Int("port", s.port))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Health check server error", slog.Any("error", err))
		}
	}()

	<-ctx.Done()
	return s.Stop()
}

func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	slog.Info("Stopping health check server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

func (s *Server) writeResponse(w http.ResponseWriter, ok bool, pending []string) {
	w.Header().Set("Content-Type", "application/json")
	if ok {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	response := Response{Healthy: ok, Status: s.GetStatus().String(), Pending: pending}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Failed to encode health check response", slog.Any("error", err))
	}
}
