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
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sigysmund/function-image-upload-resize/config"
	"github.com/sigysmund/function-image-upload-resize/internal/azureclient"
)

// maxDequeueCount is how many deliveries a failing message gets before it
// is dropped as poison.
const maxDequeueCount = 5

const (
	defaultAzureBatchSize = 8
	maxAzureBatchSize     = 32
)

// queueAPI is the subset of *azqueue.QueueClient the poller uses.
type queueAPI interface {
	DequeueMessages(ctx context.Context, o *azqueue.DequeueMessagesOptions) (azqueue.DequeueMessagesResponse, error)
	DeleteMessage(ctx context.Context, messageID string, popReceipt string, o *azqueue.DeleteMessageOptions) (azqueue.DeleteMessageResponse, error)
}

// AzureQueueService polls an Azure Storage queue that an Event Grid
// subscription delivers BlobCreated events into.
type AzureQueueService struct {
	tracer     trace.Tracer
	client     queueAPI
	queueName  string
	handler    *Handler
	idleDelay  time.Duration
	retryDelay time.Duration
	batchSize  int32
	visibility int32
}

var _ Backend = (*AzureQueueService)(nil)

func NewAzureQueueService(ctx context.Context, cfg config.AzureQueueConfig, handler *Handler) (*AzureQueueService, error) {
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("pubsub.azure.queue_name is required")
	}
	if cfg.ConnectionString == "" && cfg.Account == "" && cfg.Endpoint == "" {
		return nil, fmt.Errorf("pubsub.azure needs a connection_string, account or endpoint")
	}

	var mgrOpts []azureclient.ManagerOption
	if cfg.ConnectionString != "" {
		mgrOpts = append(mgrOpts, azureclient.WithConnectionString(cfg.ConnectionString))
	}
	azureMgr, err := azureclient.NewManager(ctx, mgrOpts...)
	if err != nil {
		slog.Error("Failed to create Azure manager", slog.Any("error", err))
		return nil, fmt.Errorf("failed to create Azure manager: %w", err)
	}

	queueClient, err := azureMgr.GetQueue(ctx,
		azureclient.WithQueueStorageAccount(cfg.Account),
		azureclient.WithQueueEndpoint(cfg.Endpoint),
		azureclient.WithQueueName(cfg.QueueName),
	)
	if err != nil {
		slog.Error("Failed to create Azure Queue client", slog.Any("error", err))
		return nil, fmt.Errorf("failed to create Azure Queue client: %w", err)
	}

	return newAzureQueueService(queueClient.Client, cfg, handler), nil
}

func newAzureQueueService(client queueAPI, cfg config.AzureQueueConfig, handler *Handler) *AzureQueueService {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultAzureBatchSize
	}
	batchSize = min(batchSize, maxAzureBatchSize)

	// Messages of a batch are handled one after another.
	visibility := batchVisibility(handler.ItemTimeout(), batchSize, 1, maxAzureVisibility)
	return &AzureQueueService{
		tracer:     otel.Tracer("github.com/sigysmund/function-image-upload-resize/internal/pubsub/azure"),
		client:     client,
		queueName:  cfg.QueueName,
		handler:    handler,
		idleDelay:  time.Second,
		retryDelay: 5 * time.Second,
		batchSize:  int32(batchSize),
		visibility: visibilitySeconds(visibility),
	}
}

func (ps *AzureQueueService) GetName() string {
	return string(BackendTypeAzure)
}

func (ps *AzureQueueService) Run(doneCtx context.Context) error {
	slog.Info("Starting Azure Queue Storage notification service",
		slog.String("queue", ps.queueName),
		slog.Int("batchSize", int(ps.batchSize)),
		slog.Int("visibilityTimeoutSeconds", int(ps.visibility)))

	for {
		if doneCtx.Err() != nil {
			slog.Info("Azure Queue polling loop stopped")
			return nil
		}

		n, err := ps.pollOnce(doneCtx)
		if err != nil {
			if doneCtx.Err() != nil {
				continue
			}
			slog.Error("Failed to receive messages from Azure Queue", slog.Any("error", err))
			sleepCtx(doneCtx, ps.retryDelay)
			continue
		}
		if n == 0 {
			sleepCtx(doneCtx, ps.idleDelay)
		}
	}
}

// pollOnce dequeues one batch and handles it, returning the batch size.
func (ps *AzureQueueService) pollOnce(doneCtx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(doneCtx, 30*time.Second)
	result, err := ps.client.DequeueMessages(ctx, &azqueue.DequeueMessagesOptions{
		NumberOfMessages:  &ps.batchSize,
		VisibilityTimeout: &ps.visibility,
	})
	cancel()
	if err != nil {
		return 0, err
	}

	for _, message := range result.Messages {
		if message == nil || message.MessageID == nil || message.PopReceipt == nil {
			continue
		}
		ps.processMessage(doneCtx, message)
	}
	return len(result.Messages), nil
}

func (ps *AzureQueueService) processMessage(doneCtx context.Context, message *azqueue.DequeuedMessage) {
	ctx, span := ps.tracer.Start(doneCtx, "azure_queue.process_message",
		trace.WithAttributes(attribute.String("message_id", *message.MessageID)))
	defer span.End()

	var err error
	if message.MessageText != nil {
		err = ps.handler.HandleMessage(ctx, decodeIfBase64(*message.MessageText), string(BackendTypeAzure))
	}

	if err != nil {
		span.RecordError(err)
		var dequeueCount int64
		if message.DequeueCount != nil {
			dequeueCount = *message.DequeueCount
		}
		if dequeueCount < maxDequeueCount {
			slog.Error("Failed to handle Azure Queue message, leaving it for redelivery",
				slog.Any("error", err),
				slog.String("messageId", *message.MessageID),
				slog.Int64("dequeueCount", dequeueCount))
			return
		}
		slog.Error("Dropping poison Azure Queue message",
			slog.Any("error", err),
			slog.String("messageId", *message.MessageID),
			slog.Int64("dequeueCount", dequeueCount))
	}

	deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(doneCtx), 10*time.Second)
	defer cancel()
	if _, err := ps.client.DeleteMessage(deleteCtx, *message.MessageID, *message.PopReceipt, nil); err != nil {
		slog.Error("Failed to delete Azure Queue message",
			slog.Any("error", err),
			slog.String("messageId", *message.MessageID))
	}
}

// decodeIfBase64 undoes the base64 encoding Event Grid applies to queue
// deliveries; plain JSON passes through untouched.
func decodeIfBase64(s string) []byte {
	if len(s)%4 != 0 {
		return []byte(s)
	}

	for _, c := range s {
		if !(('A' <= c && c <= 'Z') ||
			('a' <= c && c <= 'z') ||
			('0' <= c && c <= '9') ||
			c == '+' || c == '/' || c == '=') {
			return []byte(s)
		}
	}

	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return []byte(s)
	}
	return decoded
}
