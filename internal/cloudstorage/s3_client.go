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
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sigysmund/function-image-upload-resize/internal/awsclient"
	"github.com/sigysmund/function-image-upload-resize/internal/idgen"
)

type s3Client struct {
	awsS3Client *awsclient.S3Client
	uploader    *manager.Uploader
}

func newS3Client(c *awsclient.S3Client) Client {
	return &s3Client{
		awsS3Client: c,
		uploader:    manager.NewUploader(c.Client),
	}
}

func s3ErrorIs404(err error) bool {
	var noKeyErr *types.NoSuchKey
	if errors.As(err, &noKeyErr) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchBucket":
			return true
		}
	}
	return false
}

func (c *s3Client) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	ctx, span := c.awsS3Client.Tracer.Start(ctx, "cloudstorage.s3GetObject",
		trace.WithAttributes(
			attribute.String("bucketID", bucket),
			attribute.String("objectID", key),
		),
	)
	defer span.End()

	out, err := c.awsS3Client.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if s3ErrorIs404(err) {
			recordDownloadError(ctx, "aws", bucket, "not_found")
			return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
		}
		recordDownloadError(ctx, "aws", bucket, "unknown")
		span.RecordError(err)
		return nil, fmt.Errorf("download %s/%s: %w", bucket, key, err)
	}

	return &countingReader{ctx: ctx, body: out.Body, provider: "aws", container: bucket}, nil
}

func (c *s3Client) PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	ctx, span := c.awsS3Client.Tracer.Start(ctx, "cloudstorage.s3PutObject",
		trace.WithAttributes(
			attribute.String("bucketID", bucket),
			attribute.String("objectID", key),
			attribute.Int("size", len(data)),
		),
	)
	defer span.End()

	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"writer":          writerName,
			"writer_instance": idgen.InstanceID(),
		},
	})
	recordUpload(ctx, "aws", bucket, len(data), err)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upload S3 object %s/%s: %w", bucket, key, err)
	}
	return nil
}
