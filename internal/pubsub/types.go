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

	"github.com/sigysmund/function-image-upload-resize/internal/imageconv"
)

// Service defines the interface for pubsub services
type Service interface {
	Run(ctx context.Context) error
}

// BackendType represents supported pubsub backend types
type BackendType string

const (
	BackendTypeHTTP      BackendType = "http"
	BackendTypeSQS       BackendType = "sqs"
	BackendTypeGCPPubSub BackendType = "gcp"
	BackendTypeAzure     BackendType = "azure"
)

// Backend defines the interface for different pubsub backends
type Backend interface {
	Service
	GetName() string
}

// NotificationHandler converts one object-created notification.
// *imageconv.Orchestrator satisfies it.
type NotificationHandler interface {
	Handle(ctx context.Context, n imageconv.Notification) (imageconv.Report, error)
}
