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
	"fmt"
	"log/slog"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sigysmund/function-image-upload-resize/config"
	"github.com/sigysmund/function-image-upload-resize/internal/gcpclient"
	"github.com/sigysmund/function-image-upload-resize/internal/imageconv"
)

// Cloud Storage Pub/Sub notification attributes.
const (
	gcsAttrEventType  = "eventType"
	gcsAttrBucketID   = "bucketId"
	gcsAttrObjectID   = "objectId"
	gcsAttrGeneration = "objectGeneration"

	gcsEventFinalize = "OBJECT_FINALIZE"
)

type GCPPubSubService struct {
	tracer  trace.Tracer
	client  *pubsub.Client
	sub     *pubsub.Subscription
	handler *Handler
}

var _ Backend = (*GCPPubSubService)(nil)

func NewGCPPubSubService(ctx context.Context, cfg config.GCPPubSubConfig, handler *Handler) (*GCPPubSubService, error) {
	if cfg.SubscriptionID == "" {
		return nil, fmt.Errorf("pubsub.gcp.subscription_id is required")
	}

	mgr, err := gcpclient.NewManager(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCP manager: %w", err)
	}
	psClient, err := mgr.GetPubSub(ctx,
		gcpclient.WithProjectID(cfg.ProjectID),
		gcpclient.WithCredentialsFile(cfg.CredentialsFile),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	slog.Info("GCP Pub/Sub service initialized",
		slog.String("project", cfg.ProjectID),
		slog.String("subscription", cfg.SubscriptionID))

	return &GCPPubSubService{
		tracer:  otel.Tracer("github.com/sigysmund/function-image-upload-resize/internal/pubsub/gcp-pubsub"),
		client:  psClient.Client,
		sub:     psClient.Client.Subscription(cfg.SubscriptionID),
		handler: handler,
	}, nil
}

func (ps *GCPPubSubService) GetName() string {
	return string(BackendTypeGCPPubSub)
}

func (ps *GCPPubSubService) Run(doneCtx context.Context) error {
	slog.Info("Starting GCP Pub/Sub service for Cloud Storage events")

	defer func() {
		if err := ps.client.Close(); err != nil {
			slog.Error("Failed to close GCP Pub/Sub client", slog.Any("error", err))
		}
	}()

	err := ps.sub.Receive(doneCtx, ps.messageHandler)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("GCP Pub/Sub receive error: %w", err)
	}
	return nil
}

func (ps *GCPPubSubService) messageHandler(ctx context.Context, msg *pubsub.Message) {
	ctx, span := ps.tracer.Start(ctx, "gcp_pubsub.message_handler",
		trace.WithAttributes(
			attribute.String("message_id", msg.ID),
			attribute.String("publish_time", msg.PublishTime.String()),
		))
	defer span.End()

	if err := ps.handle(ctx, msg.Data, msg.Attributes); err != nil {
		span.RecordError(err)
		slog.Error("Failed to handle Cloud Storage event",
			slog.Any("error", err),
			slog.String("message_id", msg.ID))
		// Redelivery, or the dead-letter topic after max attempts.
		msg.Nack()
		return
	}
	msg.Ack()
}

func (ps *GCPPubSubService) handle(ctx context.Context, data []byte, attrs map[string]string) error {
	source := string(BackendTypeGCPPubSub)

	if et := attrs[gcsAttrEventType]; et != "" && et != gcsEventFinalize {
		slog.Debug("Ignoring Cloud Storage event", slog.String("eventType", et))
		return nil
	}

	if len(data) == 0 {
		n, ok := notificationFromAttributes(attrs)
		if !ok {
			return fmt.Errorf("%w: empty message without object attributes", imageconv.ErrMalformedEvent)
		}
		return ps.handler.HandleNotifications(ctx, []imageconv.Notification{n}, source)
	}

	return ps.handler.HandleMessage(ctx, data, source)
}

// notificationFromAttributes covers subscriptions created with
// payload format NONE, where only the attributes describe the object.
func notificationFromAttributes(attrs map[string]string) (imageconv.Notification, bool) {
	u := objectURL("gs", attrs[gcsAttrBucketID], attrs[gcsAttrObjectID])
	if u == "" {
		return imageconv.Notification{}, false
	}
	// Same shape as the JSON resource id: bucket/object/generation.
	id := attrs[gcsAttrBucketID] + "/" + attrs[gcsAttrObjectID]
	if gen := attrs[gcsAttrGeneration]; gen != "" {
		id += "/" + gen
	}
	return imageconv.Notification{
		ID:     id,
		URL:    u,
		Source: "gcs",
	}, true
}
