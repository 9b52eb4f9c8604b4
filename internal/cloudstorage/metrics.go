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
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	downloadErrors metric.Int64Counter
	downloadCount  metric.Int64Counter
	downloadBytes  metric.Int64Counter
	uploadErrors   metric.Int64Counter
	uploadCount    metric.Int64Counter
	uploadBytes    metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/sigysmund/function-image-upload-resize/internal/cloudstorage")

	var err error
	downloadErrors, err = meter.Int64Counter(
		"imagefn.storage.download.errors",
		metric.WithDescription("Number of object download errors"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create download.errors counter: %w", err))
	}

	downloadCount, err = meter.Int64Counter(
		"imagefn.storage.download.count",
		metric.WithDescription("Number of object downloads"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create download.count counter: %w", err))
	}

	downloadBytes, err = meter.Int64Counter(
		"imagefn.storage.download.bytes",
		metric.WithDescription("Bytes downloaded from object storage"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create download.bytes counter: %w", err))
	}

	uploadErrors, err = meter.Int64Counter(
		"imagefn.storage.upload.errors",
		metric.WithDescription("Number of object upload errors"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create upload.errors counter: %w", err))
	}

	uploadCount, err = meter.Int64Counter(
		"imagefn.storage.upload.count",
		metric.WithDescription("Number of object uploads"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create upload.count counter: %w", err))
	}

	uploadBytes, err = meter.Int64Counter(
		"imagefn.storage.upload.bytes",
		metric.WithDescription("Bytes uploaded to object storage"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create upload.bytes counter: %w", err))
	}
}

func recordDownloadError(ctx context.Context, provider, container, reason string) {
	downloadErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("bucket", container),
		attribute.String("reason", reason),
	))
}

// countingReader reports download metrics once the body is closed.
type countingReader struct {
	ctx       context.Context
	body      io.ReadCloser
	provider  string
	container string
	n         int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.body.Read(p)
	r.n += int64(n)
	return n, err
}

func (r *countingReader) Close() error {
	attrs := metric.WithAttributes(
		attribute.String("provider", r.provider),
		attribute.String("bucket", r.container),
	)
	downloadCount.Add(r.ctx, 1, attrs)
	downloadBytes.Add(r.ctx, r.n, attrs)
	return r.body.Close()
}

func recordUpload(ctx context.Context, provider, container string, size int, err error) {
	if err != nil {
		uploadErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("bucket", container),
		))
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("bucket", container),
	)
	uploadCount.Add(ctx, 1, attrs)
	uploadBytes.Add(ctx, int64(size), attrs)
}
