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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/sigysmund/function-image-upload-resize/config"
	"github.com/sigysmund/function-image-upload-resize/internal/cloudstorage"
)

// ObjectReader fetches a source object. Missing objects are reported with
// cloudstorage.ErrObjectNotFound.
type ObjectReader interface {
	GetObject(ctx context.Context, container, name string) (io.ReadCloser, error)
}

// Orchestrator turns one notification into every configured variant.
type Orchestrator struct {
	reader         ObjectReader
	executor       *Executor
	resolver       *EncoderResolver
	variants       []config.VariantConfig
	parallel       bool
	maxConcurrency int
	maxSourceBytes int64
	logger         *slog.Logger
}

type OrchestratorOption func(*Orchestrator)

// WithParallelVariants runs variants concurrently, at most limit at a time.
func WithParallelVariants(limit int) OrchestratorOption {
	return func(o *Orchestrator) {
		o.parallel = true
		if limit > 0 {
			o.maxConcurrency = limit
		}
	}
}

// WithMaxSourceBytes bounds how much of a source object is read. Zero means no limit.
func WithMaxSourceBytes(n int64) OrchestratorOption {
	return func(o *Orchestrator) {
		o.maxSourceBytes = n
	}
}

func WithLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func NewOrchestrator(reader ObjectReader, executor *Executor, resolver *EncoderResolver, variants []config.VariantConfig, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		reader:         reader,
		executor:       executor,
		resolver:       resolver,
		variants:       append([]config.VariantConfig(nil), variants...),
		maxConcurrency: 4,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewOrchestratorFromConfig builds the resolver, executor and orchestrator
// described by cfg on top of the given storage.
func NewOrchestratorFromConfig(cfg *config.Config, reader ObjectReader, writer ObjectWriter) (*Orchestrator, error) {
	if _, err := ParsePNGCompression(cfg.Conversion.PNGCompression); err != nil {
		return nil, err
	}
	filter, err := ParseResampleFilter(cfg.Conversion.ResampleFilter)
	if err != nil {
		return nil, err
	}

	resolver := NewEncoderResolver(
		WithJPEGQuality(cfg.Conversion.JPEGQuality),
		WithPNGCompression(cfg.Conversion.PNGCompression),
	)
	executor := NewExecutor(writer, WithResampleFilter(filter))

	opts := []OrchestratorOption{WithMaxSourceBytes(cfg.Conversion.MaxSourceBytes)}
	if cfg.Conversion.Parallel {
		opts = append(opts, WithParallelVariants(cfg.Conversion.MaxConcurrency))
	}
	return NewOrchestrator(reader, executor, resolver, cfg.Variants.Definitions, opts...), nil
}

// Handle processes one notification. The returned error is non-nil only for
// ErrMalformedEvent, which means the notification carries no object url at
// all; every other problem is logged and reflected in the Report.
func (o *Orchestrator) Handle(ctx context.Context, n Notification) (Report, error) {
	report := Report{NotificationID: n.ID, URL: n.URL}

	if strings.TrimSpace(n.URL) == "" {
		return report, fmt.Errorf("%w: notification %s has no object url", ErrMalformedEvent, n.ID)
	}

	logger := o.logger.With(
		slog.String("notificationID", n.ID),
		slog.String("url", n.URL),
	)

	// The payload parsed, so an odd URL is not worth a redelivery.
	ref, err := ParseObjectURL(n.URL)
	if err != nil {
		report.NoPayload = true
		report.SkipReason = FailureReason(err)
		logger.Warn("Skipping notification with unusable object url", slog.Any("error", err))
		recordSkipped(ctx, report.SkipReason)
		return report, nil
	}

	ctx, span := tracer.Start(ctx, "imageconv.Handle", trace.WithAttributes(
		attribute.String("notification.id", n.ID),
		attribute.String("source.container", ref.Container),
		attribute.String("source.object", ref.Name),
	))
	defer span.End()

	enc, err := o.resolver.Resolve(ref.Extension())
	if err != nil {
		report.Unsupported = true
		report.SkipReason = "unsupported_format"
		logger.Info("Skipping object with unsupported image format", slog.String("extension", ref.Extension()))
		recordSkipped(ctx, report.SkipReason)
		return report, nil
	}
	report.Encoder = enc.Format()

	src, reason, err := o.readSource(ctx, n.URL, ref)
	if err != nil {
		report.NoPayload = true
		report.SkipReason = reason
		if reason == "not_found" {
			logger.Warn("Source object not found", slog.Any("error", err))
		} else {
			logger.Error("Failed to read source object", slog.String("reason", reason), slog.Any("error", err))
		}
		recordSkipped(ctx, reason)
		return report, nil
	}

	report.Outcomes = o.runVariants(ctx, src, enc, logger)

	recordHandled(ctx, report)
	if err := report.Err(); err != nil {
		logger.Warn("Notification handled with failed variants",
			slog.Int("succeeded", report.Succeeded()),
			slog.Int("failed", report.Failed()),
			slog.Any("error", err))
	} else {
		logger.Info("Notification handled",
			slog.Int("succeeded", report.Succeeded()),
			slog.Int("failed", report.Failed()))
	}
	return report, nil
}

func (o *Orchestrator) readSource(ctx context.Context, url string, ref ObjectRef) (*SourceImage, string, error) {
	rc, err := o.reader.GetObject(ctx, ref.Container, ref.Name)
	if err != nil {
		if errors.Is(err, cloudstorage.ErrObjectNotFound) {
			return nil, "not_found", err
		}
		return nil, "read", err
	}
	defer rc.Close()

	r := io.Reader(rc)
	if o.maxSourceBytes > 0 {
		r = io.LimitReader(rc, o.maxSourceBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "read", fmt.Errorf("reading %s/%s: %w", ref.Container, ref.Name, err)
	}
	if o.maxSourceBytes > 0 && int64(len(data)) > o.maxSourceBytes {
		return nil, "too_large", fmt.Errorf("source %s/%s exceeds %d bytes", ref.Container, ref.Name, o.maxSourceBytes)
	}
	if len(data) == 0 {
		return nil, "empty", fmt.Errorf("source %s/%s is empty", ref.Container, ref.Name)
	}
	return NewSourceImage(url, ref, data), "", nil
}

func (o *Orchestrator) runVariants(ctx context.Context, src *SourceImage, enc Encoder, logger *slog.Logger) []Outcome {
	outcomes := make([]Outcome, len(o.variants))

	if !o.parallel {
		for i, vc := range o.variants {
			outcomes[i] = o.executor.Convert(ctx, src, enc, vc)
			logOutcome(logger, outcomes[i])
		}
		return outcomes
	}

	g := new(errgroup.Group)
	g.SetLimit(o.maxConcurrency)
	for i, vc := range o.variants {
		g.Go(func() error {
			outcomes[i] = o.executor.Convert(ctx, src, enc, vc)
			logOutcome(logger, outcomes[i])
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func logOutcome(logger *slog.Logger, out Outcome) {
	if out.Err != nil {
		logger.Warn("Variant conversion failed", out.logAttrs()...)
		return
	}
	logger.Info("Variant written", out.logAttrs()...)
}
