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

package azureclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"go.opentelemetry.io/otel/trace"
)

type QueueClient struct {
	Client *azqueue.QueueClient
	Tracer trace.Tracer
}

type queueConfig struct {
	StorageAccount string
	Endpoint       string
	QueueName      string
}

type QueueOption func(*queueConfig)

func WithQueueStorageAccount(storageAccount string) QueueOption {
	return func(c *queueConfig) {
		c.StorageAccount = storageAccount
	}
}

func WithQueueEndpoint(endpoint string) QueueOption {
	return func(c *queueConfig) {
		c.Endpoint = endpoint
	}
}

func WithQueueName(name string) QueueOption {
	return func(c *queueConfig) {
		c.QueueName = name
	}
}

func (m *Manager) GetQueue(ctx context.Context, opts ...QueueOption) (*QueueClient, error) {
	qc := queueConfig{}
	for _, o := range opts {
		o(&qc)
	}
	if qc.QueueName == "" {
		return nil, fmt.Errorf("queue name is required")
	}

	key := clientKey{Account: qc.StorageAccount, Endpoint: qc.Endpoint, Queue: qc.QueueName}
	m.RLock()
	client, ok := m.queueClients[key]
	m.RUnlock()
	if ok {
		return client, nil
	}

	m.Lock()
	defer m.Unlock()
	if client, ok = m.queueClients[key]; ok {
		return client, nil
	}

	var (
		c   *azqueue.QueueClient
		err error
	)
	if m.connectionString != "" {
		c, err = azqueue.NewQueueClientFromConnectionString(m.connectionString, qc.QueueName, nil)
	} else {
		var endpoint string
		if endpoint, err = serviceURL(qc.Endpoint, qc.StorageAccount, "queue"); err != nil {
			return nil, err
		}
		cred, cerr := m.credential()
		if cerr != nil {
			return nil, cerr
		}
		c, err = azqueue.NewQueueClient(strings.TrimSuffix(endpoint, "/")+"/"+qc.QueueName, cred, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create queue client: %w", err)
	}

	client = &QueueClient{Client: c, Tracer: m.tracer}
	m.queueClients[key] = client
	return client, nil
}
