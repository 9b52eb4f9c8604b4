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
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/sigysmund/function-image-upload-resize/internal/imageconv"
)

var (
	messagesReceived metric.Int64Counter
	itemsProcessed   metric.Int64Counter
	itemsSkipped     metric.Int64Counter
	itemsDuplicated  metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/sigysmund/function-image-upload-resize/internal/pubsub")

	var err error
	messagesReceived, err = meter.Int64Counter(
		"imagefn.pubsub.messages",
		metric.WithDescription("Number of notification payloads received"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create messagesReceived counter: %w", err))
	}

	itemsProcessed, err = meter.Int64Counter(
		"imagefn.pubsub.items.processed",
		metric.WithDescription("Number of notifications handed to the converter"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create itemsProcessed counter: %w", err))
	}

	itemsSkipped, err = meter.Int64Counter(
		"imagefn.pubsub.items.skipped",
		metric.WithDescription("Number of notifications or payloads rejected before conversion"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create itemsSkipped counter: %w", err))
	}

	itemsDuplicated, err = meter.Int64Counter(
		"imagefn.notifications.duplicate",
		metric.WithDescription("Number of redelivered notifications dropped by de-duplication"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create itemsDuplicated counter: %w", err))
	}
}

// Handler parses raw payloads and feeds each notification to the converter.
type Handler struct {
	converter NotificationHandler
	dedup     *Deduplicator
	timeout   time.Duration
}

// NewHandler wires a converter to the transports. dedup may be nil; a zero
// timeout means notifications run under the caller's context only.
func NewHandler(converter NotificationHandler, dedup *Deduplicator, timeout time.Duration) *Handler {
	return &Handler{
		converter: converter,
		dedup:     dedup,
		timeout:   timeout,
	}
}

// ItemTimeout is the limit applied to each notification, zero when unbounded.
func (h *Handler) ItemTimeout() time.Duration {
	if h == nil {
		return 0
	}
	return h.timeout
}

// HandleMessage parses msg and processes every notification in it. The
// returned error wraps imageconv.ErrMalformedEvent; the message should not
// be acknowledged.
func (h *Handler) HandleMessage(ctx context.Context, msg []byte, source string) error {
	messagesReceived.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))

	res, err := ParseNotifications(msg)
	if err != nil {
		itemsSkipped.Add(ctx, 1, metric.WithAttributes(
			attribute.String("source", source),
			attribute.String("reason", "malformed"),
		))
		return err
	}
	if res.Ignored > 0 {
		slog.Debug("Ignored events that are not object creations",
			slog.String("source", source),
			slog.Int("count", res.Ignored))
	}
	return h.HandleNotifications(ctx, res.Notifications, source)
}

// HandleNotifications processes already parsed notifications in order.
func (h *Handler) HandleNotifications(ctx context.Context, notifications []imageconv.Notification, source string) error {
	var result *multierror.Error
	for _, n := range notifications {
		if !h.dedup.CheckAndRecord(ctx, n, source) {
			continue
		}
		if err := h.handleOne(ctx, n); err != nil {
			h.dedup.Forget(n.ID)
			itemsSkipped.Add(ctx, 1, metric.WithAttributes(
				attribute.String("source", source),
				attribute.String("reason", "malformed"),
			))
			slog.Error("Rejected notification",
				slog.String("notificationID", n.ID),
				slog.String("source", source),
				slog.Any("error", err))
			result = multierror.Append(result, err)
			continue
		}
		itemsProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
	}
	return result.ErrorOrNil()
}

func (h *Handler) handleOne(ctx context.Context, n imageconv.Notification) error {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	_, err := h.converter.Handle(ctx, n)
	return err
}
