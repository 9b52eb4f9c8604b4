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

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigysmund/function-image-upload-resize/config"
)

type fakeSQS struct {
	mu        sync.Mutex
	batches   [][]types.Message
	deleted   []string
	received  int
	lastInput *sqs.ReceiveMessageInput
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received++
	f.lastInput = in
	if len(f.batches) == 0 {
		// Stand-in for the long poll wait.
		time.Sleep(time.Millisecond)
		return &sqs.ReceiveMessageOutput{}, ctx.Err()
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	return &sqs.ReceiveMessageOutput{Messages: b}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *fakeSQS) deletedHandles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func sqsMessage(id, body string) types.Message {
	return types.Message{
		MessageId:     aws.String(id),
		ReceiptHandle: aws.String("rh-" + id),
		Body:          aws.String(body),
	}
}

func TestSQSService_DeletesOnlyHandledMessages(t *testing.T) {
	conv := &recordingConverter{}
	fake := &fakeSQS{}
	ps := newSQSService(fake, config.SQSConfig{QueueURL: "https://sqs.local/q", MaxConcurrency: 2}, NewHandler(conv, nil, 0))

	ps.processMessages(context.Background(), []types.Message{
		sqsMessage("good", s3Payload),
		sqsMessage("bad", `{"hello":"world"}`),
		{MessageId: aws.String("empty"), ReceiptHandle: aws.String("rh-empty")},
	})

	assert.ElementsMatch(t, []string{"rh-good", "rh-empty"}, fake.deletedHandles())
	assert.Equal(t, []string{"s3://photos/a.png"}, conv.urls())
}

func TestSQSService_RunPollsUntilCanceled(t *testing.T) {
	conv := &recordingConverter{}
	fake := &fakeSQS{batches: [][]types.Message{{sqsMessage("m1", s3Payload)}}}
	ps := newSQSService(fake, config.SQSConfig{QueueURL: "https://sqs.local/q"}, NewHandler(conv, nil, 0))
	ps.retryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ps.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(fake.deletedHandles()) == 1
	}, 5*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, []string{"s3://photos/a.png"}, conv.urls())
}

func TestNewSQSService_RequiresQueueURL(t *testing.T) {
	_, err := NewSQSService(context.Background(), config.SQSConfig{}, nil)
	assert.Error(t, err)
}

func TestSQSService_VisibilityCoversBatch(t *testing.T) {
	fake := &fakeSQS{}
	conv := &recordingConverter{}
	ps := newSQSService(fake, config.SQSConfig{QueueURL: "https://sqs.local/q", MaxConcurrency: 5}, NewHandler(conv, nil, 2*time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ps.Run(ctx) }()
	require.Eventually(t, func() bool {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		return fake.lastInput != nil
	}, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	// 10 messages, 5 at a time, 2m each: two rounds plus slack.
	assert.EqualValues(t, 270, fake.lastInput.VisibilityTimeout)
	assert.EqualValues(t, 10, fake.lastInput.MaxNumberOfMessages)
}
