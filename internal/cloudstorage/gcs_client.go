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

	"cloud.google.com/go/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sigysmund/function-image-upload-resize/internal/gcpclient"
	"github.com/sigysmund/function-image-upload-resize/internal/idgen"
)

type gcsClient struct {
	storageClient *gcpclient.StorageClient
}

func newGCSClient(c *gcpclient.StorageClient) Client {
	return &gcsClient{storageClient: c}
}

func (c *gcsClient) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	ctx, span := c.storageClient.Tracer.Start(ctx, "cloudstorage.gcsGetObject",
		trace.WithAttributes(
			attribute.String("bucket", bucket),
			attribute.String("key", key),
		),
	)
	defer span.End()

	reader, err := c.storageClient.Client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			recordDownloadError(ctx, "gcp", bucket, "not_found")
			return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
		}
		recordDownloadError(ctx, "gcp", bucket, "unknown")
		span.RecordError(err)
		return nil, fmt.Errorf("download %s/%s: %w", bucket, key, err)
	}

	return &countingReader{ctx: ctx, body: reader, provider: "gcp", container: bucket}, nil
}

func (c *gcsClient) PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	ctx, span := c.storageClient.Tracer.Start(ctx, "cloudstorage.gcsPutObject",
		trace.WithAttributes(
			attribute.String("bucket", bucket),
			attribute.String("key", key),
			attribute.Int("size", len(data)),
		),
	)
	defer span.End()

	err := c.write(ctx, bucket, key, data, contentType)
	recordUpload(ctx, "gcp", bucket, len(data), err)
	if err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (c *gcsClient) write(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	writer := c.storageClient.Client.Bucket(bucket).Object(key).NewWriter(ctx)
	writer.ContentType = contentType
	writer.Metadata = map[string]string{
		"writer":          writerName,
		"writer_instance": idgen.InstanceID(),
	}

	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to upload object %s/%s: %w", bucket, key, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer for %s/%s: %w", bucket, key, err)
	}
	return nil
}
