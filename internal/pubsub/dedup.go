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
	"log/slog"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/sigysmund/function-image-upload-resize/config"
	"github.com/sigysmund/function-image-upload-resize/internal/imageconv"
)

// Deduplicator drops notifications whose id was seen within the TTL.
// Queue transports deliver at least once, so the same event can arrive
// more than once.
type Deduplicator struct {
	cache *ttlcache.Cache[string, struct{}]
}

func NewDeduplicator(ttl time.Duration, capacity uint64) *Deduplicator {
	opts := []ttlcache.Option[string, struct{}]{
		ttlcache.WithTTL[string, struct{}](ttl),
		ttlcache.WithDisableTouchOnHit[string, struct{}](),
	}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, struct{}](capacity))
	}
	cache := ttlcache.New(opts...)
	go cache.Start()
	return &Deduplicator{cache: cache}
}

// NewDeduplicatorFromConfig returns nil when de-duplication is disabled.
func NewDeduplicatorFromConfig(cfg config.DedupConfig) *Deduplicator {
	if cfg.TTL <= 0 {
		return nil
	}
	return NewDeduplicator(cfg.TTL, cfg.Capacity)
}

// CheckAndRecord returns true if the notification should be processed.
// A nil Deduplicator lets everything through.
func (d *Deduplicator) CheckAndRecord(ctx context.Context, n imageconv.Notification, source string) bool {
	if d == nil || n.ID == "" {
		return true
	}
	if _, found := d.cache.GetOrSet(n.ID, struct{}{}); !found {
		return true
	}

	slog.Info("Duplicate notification detected, skipping",
		slog.String("notificationID", n.ID),
		slog.String("url", n.URL),
		slog.String("source", source))
	recordDuplicate(ctx, source)
	return false
}

// Forget removes an id so a redelivery is processed again.
func (d *Deduplicator) Forget(id string) {
	if d == nil || id == "" {
		return
	}
	d.cache.Delete(id)
}

func (d *Deduplicator) Close() {
	if d != nil {
		d.cache.Stop()
	}
}

func recordDuplicate(ctx context.Context, source string) {
	itemsDuplicated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
	))
}
