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
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sigysmund/function-image-upload-resize/internal/azureclient"
	"github.com/sigysmund/function-image-upload-resize/internal/idgen"
)

type azureClient struct {
	blobClient *azureclient.BlobClient
}

func newAzureClient(blobClient *azureclient.BlobClient) Client {
	return &azureClient{blobClient: blobClient}
}

func (c *azureClient) GetObject(ctx context.Context, container, name string) (io.ReadCloser, error) {
	ctx, span := c.blobClient.Tracer.Start(ctx, "cloudstorage.azureGetObject",
		trace.WithAttributes(
			attribute.String("container", container),
			attribute.String("name", name),
		),
	)
	defer span.End()

	resp, err := c.blobClient.Client.DownloadStream(ctx, container, name, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			recordDownloadError(ctx, "azure", container, "not_found")
			return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, container, name)
		}
		recordDownloadError(ctx, "azure", container, "unknown")
		span.RecordError(err)
		return nil, fmt.Errorf("download blob %s/%s: %w", container, name, err)
	}

	return &countingReader{ctx: ctx, body: resp.Body, provider: "azure", container: container}, nil
}

func (c *azureClient) PutObject(ctx context.Context, container, name string, data []byte, contentType string) error {
	ctx, span := c.blobClient.Tracer.Start(ctx, "cloudstorage.azurePutObject",
		trace.WithAttributes(
			attribute.String("container", container),
			attribute.String("name", name),
			attribute.Int("size", len(data)),
		),
	)
	defer span.End()

	_, err := c.blobClient.Client.UploadStream(ctx, container, name, bytes.NewReader(data), &azblob.UploadStreamOptions{
		Metadata: map[string]*string{
			"writer":          to.Ptr(writerName),
			"writer_instance": to.Ptr(idgen.InstanceID()),
		},
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: to.Ptr(contentType),
		},
	})
	recordUpload(ctx, "azure", container, len(data), err)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upload blob %s/%s: %w", container, name, err)
	}
	return nil
}
