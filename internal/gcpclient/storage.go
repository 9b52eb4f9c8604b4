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

	"cloud.google.com/go/storage"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/impersonate"
	"google.golang.org/api/option"

	appconfig "github.com/sigysmund/function-image-upload-resize/config"
)

type StorageClient struct {
	Client *storage.Client
	Tracer trace.Tracer
}

// storageClientKey is the identity a client acts as; one client per identity.
type storageClientKey struct {
	ServiceAccountEmail string
}

type storageConfig struct {
	ServiceAccountEmail string
}

type StorageOption func(*storageConfig)

// WithImpersonateServiceAccount reads and writes objects as the given
// service account rather than the ambient credentials.
func WithImpersonateServiceAccount(email string) StorageOption {
	return func(c *storageConfig) {
		c.ServiceAccountEmail = email
	}
}

// StorageOptions translates the gcp storage settings into StorageOption values.
func StorageOptions(c appconfig.GCPStorageConfig) []StorageOption {
	if c.ImpersonateServiceAccount == "" {
		return nil
	}
	return []StorageOption{WithImpersonateServiceAccount(c.ImpersonateServiceAccount)}
}

func (m *Manager) GetStorage(ctx context.Context, opts ...StorageOption) (*StorageClient, error) {
	var sc storageConfig
	for _, opt := range opts {
		opt(&sc)
	}

	key := storageClientKey(sc)
	m.RLock()
	client, ok := m.storageClients[key]
	m.RUnlock()
	if ok {
		return client, nil
	}

	m.Lock()
	defer m.Unlock()
	if client, ok = m.storageClients[key]; ok {
		return client, nil
	}

	clientOpts, err := impersonationOptions(ctx, sc.ServiceAccountEmail)
	if err != nil {
		return nil, err
	}
	c, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating GCP storage client: %w", err)
	}

	client = &StorageClient{Client: c, Tracer: m.tracer}
	m.storageClients[key] = client
	return client, nil
}

// impersonationOptions returns no options when email is empty, so the
// client falls back to application default credentials.
func impersonationOptions(ctx context.Context, email string) ([]option.ClientOption, error) {
	if email == "" {
		return nil, nil
	}
	ts, err := impersonate.CredentialsTokenSource(ctx, impersonate.CredentialsConfig{
		TargetPrincipal: email,
		Scopes:          []string{storage.ScopeReadWrite},
	})
	if err != nil {
		return nil, fmt.Errorf("impersonating %s: %w", email, err)
	}
	return []option.ClientOption{option.WithTokenSource(ts)}, nil
}
