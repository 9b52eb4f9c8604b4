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

package gcpclient

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/option"
)

type PubSubClient struct {
	Client *pubsub.Client
	Tracer trace.Tracer
}

type pubsubClientKey struct {
	ProjectID       string
	CredentialsFile string
}

type pubsubConfig struct {
	ProjectID       string
	CredentialsFile string
}

type PubSubOption func(*pubsubConfig)

func WithProjectID(projectID string) PubSubOption {
	return func(c *pubsubConfig) {
		c.ProjectID = projectID
	}
}

// WithCredentialsFile authenticates with a service account key file instead
// of application default credentials.
func WithCredentialsFile(path string) PubSubOption {
	return func(c *pubsubConfig) {
		c.CredentialsFile = path
	}
}

func (m *Manager) GetPubSub(ctx context.Context, opts ...PubSubOption) (*PubSubClient, error) {
	cfg := pubsubConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project id is required")
	}

	key := pubsubClientKey(cfg)
	m.RLock()
	client, ok := m.pubsubClients[key]
	m.RUnlock()
	if ok {
		return client, nil
	}

	m.Lock()
	defer m.Unlock()
	if client, ok = m.pubsubClients[key]; ok {
		return client, nil
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	c, err := pubsub.NewClient(ctx, cfg.ProjectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating GCP pubsub client: %w", err)
	}

	client = &PubSubClient{Client: c, Tracer: m.tracer}
	m.pubsubClients[key] = client
	return client, nil
}
