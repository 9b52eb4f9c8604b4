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
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Manager caches Cloud Storage and Pub/Sub clients keyed by the identity
// they act as.
type Manager struct {
	sync.RWMutex
	storageClients map[storageClientKey]*StorageClient
	pubsubClients  map[pubsubClientKey]*PubSubClient
	tracer         trace.Tracer
}

func NewManager(ctx context.Context) (*Manager, error) {
	tracer := otel.Tracer("github.com/sigysmund/function-image-upload-resize/internal/gcpclient")
	return &Manager{
		storageClients: make(map[storageClientKey]*StorageClient),
		pubsubClients:  make(map[pubsubClientKey]*PubSubClient),
		tracer:         tracer,
	}, nil
}
