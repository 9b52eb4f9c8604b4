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

package cloudstorage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sigysmund/function-image-upload-resize/config"
	"github.com/sigysmund/function-image-upload-resize/internal/awsclient"
	"github.com/sigysmund/function-image-upload-resize/internal/azureclient"
	"github.com/sigysmund/function-image-upload-resize/internal/gcpclient"
)

// ErrObjectNotFound is returned by GetObject when the object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// writerName is recorded in the metadata of every object we write.
const writerName = "image-variant-worker"

// Client reads and writes whole objects. Containers are buckets on S3 and GCS.
type Client interface {
	// GetObject opens an object for reading. The caller closes the reader.
	GetObject(ctx context.Context, container, name string) (io.ReadCloser, error)

	// PutObject creates or replaces an object.
	PutObject(ctx context.Context, container, name string, data []byte, contentType string) error
}

// NewClient returns the client for the configured storage provider.
func NewClient(ctx context.Context, cfg config.StorageConfig) (Client, error) {
	switch cfg.Provider {
	case "azure", "":
		var opts []azureclient.ManagerOption
		if cfg.Azure.ConnectionString != "" {
			opts = append(opts, azureclient.WithConnectionString(cfg.Azure.ConnectionString))
		}
		mgr, err := azureclient.NewManager(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure manager: %w", err)
		}
		blobClient, err := mgr.GetBlob(ctx,
			azureclient.WithBlobStorageAccount(cfg.Azure.Account),
			azureclient.WithBlobEndpoint(cfg.Azure.Endpoint),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure blob client: %w", err)
		}
		return newAzureClient(blobClient), nil
	case "aws":
		mgr, err := awsclient.NewManager(ctx, awsclient.WithAssumeRoleSessionName(writerName))
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS manager: %w", err)
		}
		s3Client, err := mgr.GetS3(ctx, awsclient.S3Options(cfg.AWS)...)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		return newS3Client(s3Client), nil
	case "gcp":
		mgr, err := gcpclient.NewManager(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCP manager: %w", err)
		}
		storageClient, err := mgr.GetStorage(ctx, gcpclient.StorageOptions(cfg.GCP)...)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCS client: %w", err)
		}
		return newGCSClient(storageClient), nil
	case "file":
		if cfg.File.BasePath == "" {
			return nil, fmt.Errorf("storage.file.base_path is required for the file provider")
		}
		return NewFileClient(cfg.File.BasePath), nil
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", cfg.Provider)
	}
}
