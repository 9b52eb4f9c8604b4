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

	"github.com/sigysmund/function-image-upload-resize/config"
)

// NewBackend creates a new Backend implementation based on the specified type
func NewBackend(ctx context.Context, backendType BackendType, cfg config.PubSubConfig, handler *Handler) (Backend, error) {
	switch backendType {
	case BackendTypeHTTP:
		return NewHTTPService(cfg.HTTP, handler), nil
	case BackendTypeSQS:
		return NewSQSService(ctx, cfg.SQS, handler)
	case BackendTypeGCPPubSub:
		return NewGCPPubSubService(ctx, cfg.GCP, handler)
	case BackendTypeAzure:
		return NewAzureQueueService(ctx, cfg.Azure, handler)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", backendType)
	}
}
