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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigysmund/function-image-upload-resize/config"
	"github.com/sigysmund/function-image-upload-resize/internal/imageconv"
)

// recordingConverter stands in for the orchestrator.
type recordingConverter struct {
	mu    sync.Mutex
	seen  []imageconv.Notification
	errFn func(n imageconv.Notification) error
}

func (c *recordingConverter) Handle(ctx context.Context, n imageconv.Notification) (imageconv.Report, error) {
	c.mu.Lock()
	c.seen = append(c.seen, n)
	c.mu.Unlock()
	if c.errFn != nil {
		if err := c.errFn(n); err != nil {
			return imageconv.Report{NotificationID: n.ID, URL: n.URL}, err
		}
	}
	return imageconv.Report{NotificationID: n.ID, URL: n.URL}, nil
}

func (c *recordingConverter) urls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.seen))
	for _, n := range c.seen {
		out = append(out, n.URL)
	}
	return out
}

func TestDeduplicator_CheckAndRecord(t *testing.T) {
	d := NewDeduplicator(time.Minute, 100)
	defer d.Close()

	ctx := context.Background()
	n := imageconv.Notification{ID: "evt-1", URL: "s3://b/a.png"}

	assert.True(t, d.CheckAndRecord(ctx, n, "test"))
	assert.False(t, d.CheckAndRecord(ctx, n, "test"))

	other := imageconv.Notification{ID: "evt-2", URL: "s3://b/a.png"}
	assert.True(t, d.CheckAndRecord(ctx, other, "test"))
}

func TestDeduplicator_EmptyIDAlwaysPasses(t *testing.T) {
	d := NewDeduplicator(time.Minute, 0)
	defer d.Close()

	n := imageconv.Notification{URL: "s3://b/a.png"}
	assert.True(t, d.CheckAndRecord(context.Background(), n, "test"))
	assert.True(t, d.CheckAndRecord(context.Background(), n, "test"))
}

func TestDeduplicator_Forget(t *testing.T) {
	d := NewDeduplicator(time.Minute, 100)
	defer d.Close()

	ctx := context.Background()
	n := imageconv.Notification{ID: "evt-1"}
	require.True(t, d.CheckAndRecord(ctx, n, "test"))
	d.Forget(n.ID)
	assert.True(t, d.CheckAndRecord(ctx, n, "test"))
}

func TestDeduplicator_Expires(t *testing.T) {
	d := NewDeduplicator(20*time.Millisecond, 100)
	defer d.Close()

	ctx := context.Background()
	n := imageconv.Notification{ID: "evt-1"}
	require.True(t, d.CheckAndRecord(ctx, n, "test"))
	require.Eventually(t, func() bool {
		return d.CheckAndRecord(ctx, n, "test")
	}, time.Second, 10*time.Millisecond)
}

func TestDeduplicator_NilIsPassThrough(t *testing.T) {
	var d *Deduplicator
	n := imageconv.Notification{ID: "evt-1"}
	assert.True(t, d.CheckAndRecord(context.Background(), n, "test"))
	assert.True(t, d.CheckAndRecord(context.Background(), n, "test"))
	d.Forget("evt-1")
	d.Close()
}

func TestNewDeduplicatorFromConfig(t *testing.T) {
	assert.Nil(t, NewDeduplicatorFromConfig(config.DedupConfig{}))

	d := NewDeduplicatorFromConfig(config.DedupConfig{TTL: time.Minute, Capacity: 10})
	require.NotNil(t, d)
	d.Close()
}
