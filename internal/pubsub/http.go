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

package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/sigysmund/function-image-upload-resize/config"
	"github.com/sigysmund/function-image-upload-resize/internal/imageconv"
)

const (
	defaultHTTPBodyLimit    = 1 << 20
	defaultHTTPDrainTimeout = 30 * time.Second
)

// HTTPService accepts Event Grid, CloudEvents, S3 and GCS notification
// payloads as webhook POSTs. Payloads are parsed on the request path so a
// bad payload gets a 400; conversion happens on a background worker.
type HTTPService struct {
	addr         string
	maxBodyBytes int64
	drainTimeout time.Duration
	handler      *Handler
	workChan     chan []imageconv.Notification
	tracer       trace.Tracer
	wg           sync.WaitGroup
}

var _ Backend = (*HTTPService)(nil)

func NewHTTPService(cfg config.HTTPConfig, handler *Handler) *HTTPService {
	limit := cfg.MaxBodyBytes
	if limit <= 0 {
		limit = defaultHTTPBodyLimit
	}
	drain := cfg.DrainTimeout
	if drain <= 0 {
		drain = defaultHTTPDrainTimeout
	}
	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}
	return &HTTPService{
		addr:         addr,
		maxBodyBytes: limit,
		drainTimeout: drain,
		handler:      handler,
		workChan:     make(chan []imageconv.Notification, 100),
		tracer:       otel.Tracer("github.com/sigysmund/function-image-upload-resize/internal/pubsub"),
	}
}

func (ps *HTTPService) GetName() string {
	return string(BackendTypeHTTP)
}

func (ps *HTTPService) Run(doneCtx context.Context) error {
	slog.Info("Starting HTTP notification service", slog.String("addr", ps.addr))

	srv := &http.Server{
		Addr:              ps.addr,
		Handler:           ps,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Accepted webhooks have already been answered 200, so the worker keeps
	// going past doneCtx and is only canceled once the drain timeout expires.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(doneCtx))
	defer cancelWork()

	ps.wg.Add(1)
	go func() {
		defer ps.wg.Done()
		ps.Process(workCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-doneCtx.Done():
	case err := <-errCh:
		if err != nil {
			slog.Error("HTTP server failed", slog.Any("error", err))
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	slog.Info("Shutting down HTTP notification service")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(doneCtx), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Failed to shutdown HTTP server", slog.Any("error", err))
		if runErr == nil {
			runErr = fmt.Errorf("failed to shutdown HTTP server: %w", err)
		}
	}

	close(ps.workChan)
	ps.drain(cancelWork)
	return runErr
}

// drain waits for the worker to finish the queued notifications. After
// drainTimeout it cancels the work context so the remaining variants fail
// fast as canceled, then waits for the worker to return.
func (ps *HTTPService) drain(cancelWork context.CancelFunc) {
	drained := make(chan struct{})
	go func() {
		ps.wg.Wait()
		close(drained)
	}()

	timer := time.NewTimer(ps.drainTimeout)
	defer timer.Stop()
	select {
	case <-drained:
		return
	case <-timer.C:
	}

	slog.Warn("Drain timeout reached, canceling queued notifications",
		slog.Duration("drainTimeout", ps.drainTimeout),
		slog.Int("queued", len(ps.workChan)))
	cancelWork()
	<-drained
}

func (ps *HTTPService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// CloudEvents webhook abuse protection handshake.
	if r.Method == http.MethodOptions {
		if origin := r.Header.Get("WebHook-Request-Origin"); origin != "" {
			w.Header().Set("WebHook-Allowed-Origin", origin)
			w.Header().Set("WebHook-Allowed-Rate", "*")
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST, OPTIONS")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, ps.maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesError *http.MaxBytesError
		if errors.As(err, &maxBytesError) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Error reading request body", http.StatusInternalServerError)
		return
	}

	source := string(BackendTypeHTTP)
	messagesReceived.Add(r.Context(), 1, metric.WithAttributes(attribute.String("source", source)))

	res, err := ParseNotifications(body)
	if err != nil {
		itemsSkipped.Add(r.Context(), 1, metric.WithAttributes(
			attribute.String("source", source),
			attribute.String("reason", "malformed"),
		))
		slog.Warn("Rejected notification payload", slog.Any("error", err))
		http.Error(w, "Malformed notification payload", http.StatusBadRequest)
		return
	}

	if res.ValidationCode != "" {
		slog.Info("Answering Event Grid subscription validation")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"validationResponse": res.ValidationCode})
		return
	}

	if len(res.Notifications) > 0 {
		select {
		case ps.workChan <- res.Notifications:
		case <-r.Context().Done():
			http.Error(w, "Service busy", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

// Process drains queued notifications until the work channel is closed.
func (ps *HTTPService) Process(ctx context.Context) {
	slog.Info("Starting worker to process incoming notifications")

	for batch := range ps.workChan {
		func() {
			ctx, span := ps.tracer.Start(ctx, "HTTPService.Process",
				trace.WithAttributes(attribute.Int("notifications", len(batch))))
			defer span.End()

			if err := ps.handler.HandleNotifications(ctx, batch, string(BackendTypeHTTP)); err != nil {
				span.RecordError(err)
				slog.Error("Failed to handle notifications", slog.Any("error", err))
			}
		}()
	}
}
