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
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sigysmund/function-image-upload-resize/config"
	"github.com/sigysmund/function-image-upload-resize/internal/awsclient"
)

const sqsBatchSize = 10

// sqsAPI is the subset of *sqs.Client the poller uses.
type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSService long-polls an SQS queue fed by S3 event notifications,
// directly or through SNS.
type SQSService struct {
	tracer         trace.Tracer
	client         sqsAPI
	queueURL       string
	maxConcurrency int
	handler        *Handler
	retryDelay     time.Duration
	visibility     int32
}

var _ Backend = (*SQSService)(nil)

func NewSQSService(ctx context.Context, cfg config.SQSConfig, handler *Handler) (*SQSService, error) {
	if cfg.QueueURL == "" {
		return nil, fmt.Errorf("pubsub.sqs.queue_url is required")
	}

	awsMgr, err := awsclient.NewManager(ctx, awsclient.WithAssumeRoleSessionName("image-variant-worker-sqs"))
	if err != nil {
		slog.Error("Failed to create AWS manager", slog.Any("error", err))
		return nil, fmt.Errorf("failed to create AWS manager: %w", err)
	}

	sqsClient, err := awsMgr.GetSQS(ctx,
		awsclient.WithSQSRole(cfg.RoleARN),
		awsclient.WithSQSRegion(cfg.Region),
	)
	if err != nil {
		slog.Error("Failed to create SQS client", slog.Any("error", err))
		return nil, fmt.Errorf("failed to create SQS client: %w", err)
	}

	return newSQSService(sqsClient.Client, cfg, handler), nil
}

func newSQSService(client sqsAPI, cfg config.SQSConfig, handler *Handler) *SQSService {
	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	visibility := batchVisibility(handler.ItemTimeout(), sqsBatchSize, maxConcurrency, maxSQSVisibility)
	return &SQSService{
		tracer:         otel.Tracer("github.com/sigysmund/function-image-upload-resize/internal/pubsub/sqs"),
		client:         client,
		queueURL:       cfg.QueueURL,
		maxConcurrency: maxConcurrency,
		handler:        handler,
		retryDelay:     5 * time.Second,
		visibility:     visibilitySeconds(visibility),
	}
}

func (ps *SQSService) GetName() string {
	return string(BackendTypeSQS)
}

func (ps *SQSService) Run(doneCtx context.Context) error {
	slog.Info("Starting SQS notification service",
		slog.String("queueURL", ps.queueURL),
		slog.Int("visibilityTimeoutSeconds", int(ps.visibility)))

	for {
		if doneCtx.Err() != nil {
			slog.Info("SQS polling loop stopped")
			return nil
		}

		result, err := ps.client.ReceiveMessage(doneCtx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(ps.queueURL),
			MaxNumberOfMessages: sqsBatchSize,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   ps.visibility,
		})
		if err != nil {
			if doneCtx.Err() != nil {
				continue
			}
			slog.Error("Failed to receive messages from SQS", slog.Any("error", err))
			sleepCtx(doneCtx, ps.retryDelay)
			continue
		}

		if len(result.Messages) > 0 {
			ps.processMessages(doneCtx, result.Messages)
		}
	}
}

// processMessages handles a batch with bounded concurrency. A message is
// deleted only when every notification in it was accepted.
func (ps *SQSService) processMessages(doneCtx context.Context, messages []types.Message) {
	sem := make(chan struct{}, ps.maxConcurrency)
	var wg sync.WaitGroup

	for _, message := range messages {
		if doneCtx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}

		go func(msg types.Message) {
			defer wg.Done()
			defer func() { <-sem }()
			ps.processMessage(doneCtx, msg)
		}(message)
	}

	wg.Wait()
}

func (ps *SQSService) processMessage(doneCtx context.Context, msg types.Message) {
	messageID := aws.ToString(msg.MessageId)
	ctx, span := ps.tracer.Start(doneCtx, "sqs.process_message",
		trace.WithAttributes(attribute.String("message_id", messageID)))
	defer span.End()

	if msg.Body == nil {
		slog.Warn("Received SQS message with nil body", slog.String("messageId", messageID))
		ps.deleteMessage(doneCtx, msg)
		return
	}

	if err := ps.handler.HandleMessage(ctx, []byte(*msg.Body), string(BackendTypeSQS)); err != nil {
		span.RecordError(err)
		slog.Error("Failed to handle S3 event, leaving message in SQS for retry",
			slog.Any("error", err),
			slog.String("messageId", messageID))
		return
	}

	ps.deleteMessage(doneCtx, msg)
}

func (ps *SQSService) deleteMessage(doneCtx context.Context, msg types.Message) {
	// Delete even if the poll loop is shutting down; the work is done.
	deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(doneCtx), 5*time.Second)
	defer cancel()

	_, err := ps.client.DeleteMessage(deleteCtx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(ps.queueURL),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		slog.Error("Failed to delete SQS message",
			slog.Any("error", err),
			slog.String("messageId", aws.ToString(msg.MessageId)))
		return
	}
	slog.Debug("Deleted SQS message", slog.String("messageId", aws.ToString(msg.MessageId)))
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
