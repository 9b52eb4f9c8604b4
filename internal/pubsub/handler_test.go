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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigysmund/function-image-upload-resize/internal/imageconv"
)

const s3Payload = `{"Records":[{"eventName":"ObjectCreated:Put","eventTime":"2025-01-02T03:04:05.000Z",
"s3":{"bucket":{"name":"photos"},"object":{"key":"a.png","size":10,"sequencer":"001"}}}]}`

func TestHandler_HandleMessage(t *testing.T) {
	conv := &recordingConverter{}
	h := NewHandler(conv, nil, time.Second)

	require.NoError(t, h.HandleMessage(context.Background(), []byte(s3Payload), "test"))
	assert.Equal(t, []string{"s3://photos/a.png"}, conv.urls())
}

func TestHandler_MalformedPayload(t *testing.T) {
	conv := &recordingConverter{}
	h := NewHandler(conv, nil, 0)

	err := h.HandleMessage(context.Background(), []byte(`{"hello":"world"}`), "test")
	require.ErrorIs(t, err, imageconv.ErrMalformedEvent)
	assert.Empty(t, conv.urls())
}

func TestHandler_DropsDuplicates(t *testing.T) {
	conv := &recordingConverter{}
	d := NewDeduplicator(time.Minute, 10)
	defer d.Close()
	h := NewHandler(conv, d, 0)

	ctx := context.Background()
	require.NoError(t, h.HandleMessage(ctx, []byte(s3Payload), "test"))
	require.NoError(t, h.HandleMessage(ctx, []byte(s3Payload), "test"))
	assert.Len(t, conv.urls(), 1)
}

func TestHandler_FailureIsRetriedOnRedelivery(t *testing.T) {
	fail := true
	conv := &recordingConverter{errFn: func(imageconv.Notification) error {
		if fail {
			return imageconv.ErrMalformedEvent
		}
		return nil
	}}
	d := NewDeduplicator(time.Minute, 10)
	defer d.Close()
	h := NewHandler(conv, d, 0)

	ctx := context.Background()
	require.Error(t, h.HandleMessage(ctx, []byte(s3Payload), "test"))

	fail = false
	require.NoError(t, h.HandleMessage(ctx, []byte(s3Payload), "test"))
	assert.Len(t, conv.urls(), 2)
}

func TestHandler_ContinuesPastFailures(t *testing.T) {
	boom := errors.New("boom")
	conv := &recordingConverter{errFn: func(n imageconv.Notification) error {
		if n.ID == "a" {
			return boom
		}
		return nil
	}}
	h := NewHandler(conv, nil, 0)

	err := h.HandleNotifications(context.Background(), []imageconv.Notification{
		{ID: "a", URL: "s3://b/a.png"},
		{ID: "b", URL: "s3://b/b.png"},
	}, "test")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"s3://b/a.png", "s3://b/b.png"}, conv.urls())
}

func TestHandler_AppliesTimeout(t *testing.T) {
	var deadline time.Time
	var ok bool
	conv := &recordingConverter{}
	h := NewHandler(handlerFunc(func(ctx context.Context, n imageconv.Notification) (imageconv.Report, error) {
		deadline, ok = ctx.Deadline()
		return conv.Handle(ctx, n)
	}), nil, time.Minute)

	require.NoError(t, h.HandleNotifications(context.Background(), []imageconv.Notification{{ID: "a", URL: "s3://b/a.png"}}, "test"))
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
}

type handlerFunc func(ctx context.Context, n imageconv.Notification) (imageconv.Report, error)

func (f handlerFunc) Handle(ctx context.Context, n imageconv.Notification) (imageconv.Report, error) {
	return f(ctx, n)
}
