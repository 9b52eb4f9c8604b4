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
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Manager caches blob and queue clients for a storage account. When a
// connection string is configured it takes precedence over
// DefaultAzureCredential.
type Manager struct {
	connectionString string
	newCredential    func() (azcore.TokenCredential, error)

	sync.RWMutex
	cred         azcore.TokenCredential
	blobClients  map[clientKey]*BlobClient
	queueClients map[clientKey]*QueueClient
	tracer       trace.Tracer
}

type ManagerOption func(*Manager)

// WithConnectionString authenticates with an account connection string
// (including the "UseDevelopmentStorage=true" shorthand for Azurite).
func WithConnectionString(cs string) ManagerOption {
	return func(mgr *Manager) {
		mgr.connectionString = cs
	}
}

type clientKey struct {
	Account  string
	Endpoint string
	Queue    string
}

func NewManager(ctx context.Context, opts ...ManagerOption) (*Manager, error) {
	mgr := &Manager{
		newCredential: func() (azcore.TokenCredential, error) {
			return azidentity.NewDefaultAzureCredential(nil)
		},
		blobClients:  make(map[clientKey]*BlobClient),
		queueClients: make(map[clientKey]*QueueClient),
		tracer:       otel.Tracer("github.com/sigysmund/function-image-upload-resize/internal/azureclient"),
	}
	for _, opt := range opts {
		opt(mgr)
	}
	return mgr, nil
}

// credential is called with the write lock held.
func (m *Manager) credential() (azcore.TokenCredential, error) {
	if m.cred != nil {
		return m.cred, nil
	}
	cred, err := m.newCredential()
	if err != nil {
		return nil, fmt.Errorf("loading Azure credentials: %w", err)
	}
	m.cred = cred
	return cred, nil
}

func serviceURL(endpoint, account, service string) (string, error) {
	if endpoint != "" {
		return endpoint, nil
	}
	if account == "" {
		return "", fmt.Errorf("storage account or endpoint is required")
	}
	return fmt.Sprintf("https://%s.%s.core.windows.net/", account, service), nil
}
