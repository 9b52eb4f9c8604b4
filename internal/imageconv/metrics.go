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

package imageconv

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("github.com/sigysmund/function-image-upload-resize/internal/imageconv")

	variantsConverted    metric.Int64Counter
	variantsFailed       metric.Int64Counter
	variantDuration      metric.Float64Histogram
	notificationsHandled metric.Int64Counter
	notificationsSkipped metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/sigysmund/function-image-upload-resize/internal/imageconv")

	var err error
	variantsConverted, err = meter.Int64Counter(
		"imagefn.variants.converted",
		metric.WithDescription("Number of image variants written successfully"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create variants.converted counter: %w", err))
	}

	variantsFailed, err = meter.Int64Counter(
		"imagefn.variants.failed",
		metric.WithDescription("Number of image variants that could not be produced"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create variants.failed counter: %w", err))
	}

	variantDuration, err = meter.Float64Histogram(
		"imagefn.variant.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Time spent converting and writing one variant"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create variant.duration histogram: %w", err))
	}

	notificationsHandled, err = meter.Int64Counter(
		"imagefn.notifications.handled",
		metric.WithDescription("Number of notifications for which variants were attempted"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create notifications.handled counter: %w", err))
	}

	notificationsSkipped, err = meter.Int64Counter(
		"imagefn.notifications.skipped",
		metric.WithDescription("Number of notifications for which no variant was attempted"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create notifications.skipped counter: %w", err))
	}
}

func recordOutcome(ctx context.Context, o Outcome) {
	variantDuration.Record(ctx, o.Duration.Seconds(), metric.WithAttributes(
		attribute.String("variant", o.Variant),
	))
	if o.Err == nil {
		variantsConverted.Add(ctx, 1, metric.WithAttributes(
			attribute.String("variant", o.Variant),
			attribute.String("format", o.Format),
		))
		return
	}
	variantsFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("variant", o.Variant),
		attribute.String("reason", o.Reason()),
	))
}

func recordSkipped(ctx context.Context, reason string) {
	notificationsSkipped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

func recordHandled(ctx context.Context, r Report) {
	notificationsHandled.Add(ctx, 1, metric.WithAttributes(
		attribute.String("encoder", r.Encoder),
		attribute.Bool("partial", r.Failed() > 0),
	))
}
