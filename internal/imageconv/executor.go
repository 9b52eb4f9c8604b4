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
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sigysmund/function-image-upload-resize/config"
)

// ObjectWriter stores an encoded variant, replacing any existing object.
type ObjectWriter interface {
	PutObject(ctx context.Context, container, name string, data []byte, contentType string) error
}

// Executor produces and stores a single variant of a source image.
type Executor struct {
	store    ObjectWriter
	filter   imaging.ResampleFilter
	validate *validator.Validate
}

type ExecutorOption func(*Executor)

// WithResampleFilter selects the filter used when resizing.
func WithResampleFilter(f imaging.ResampleFilter) ExecutorOption {
	return func(e *Executor) {
		e.filter = f
	}
}

func NewExecutor(store ObjectWriter, opts ...ExecutorOption) *Executor {
	e := &Executor{
		store:    store,
		filter:   imaging.Lanczos,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ParseResampleFilter maps a configured filter name to an imaging filter.
func ParseResampleFilter(name string) (imaging.ResampleFilter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "lanczos":
		return imaging.Lanczos, nil
	case "catmullrom":
		return imaging.CatmullRom, nil
	case "mitchellnetravali":
		return imaging.MitchellNetravali, nil
	case "linear":
		return imaging.Linear, nil
	case "box":
		return imaging.Box, nil
	case "nearest", "nearestneighbor":
		return imaging.NearestNeighbor, nil
	default:
		return imaging.ResampleFilter{}, fmt.Errorf("unknown resample filter %q", name)
	}
}

// Convert decodes (once, shared), resizes, encodes and writes one variant.
// It never returns an error or panics; failures are carried in the Outcome.
func (e *Executor) Convert(ctx context.Context, src *SourceImage, enc Encoder, vc config.VariantConfig) (out Outcome) {
	start := time.Now()
	out = Outcome{Variant: vc.Name, Container: vc.Container}

	ctx, span := tracer.Start(ctx, "imageconv.Convert", trace.WithAttributes(
		attribute.String("variant", vc.Name),
		attribute.String("container", vc.Container),
	))
	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("panic converting variant %s: %v", vc.Name, r)
		}
		out.Duration = time.Since(start)
		if out.Err != nil {
			span.RecordError(out.Err)
			span.SetStatus(codes.Error, out.Reason())
		}
		recordOutcome(ctx, out)
		span.End()
	}()

	out.Err = e.convert(ctx, src, enc, vc, &out)
	return out
}

func (e *Executor) convert(ctx context.Context, src *SourceImage, enc Encoder, vc config.VariantConfig, out *Outcome) error {
	if enc == nil {
		return fmt.Errorf("%w: no encoder", ErrUnsupportedFormat)
	}
	out.Format = enc.Format()

	def, err := ResolveVariant(e.validate, vc)
	if err != nil {
		return err
	}
	out.Container = def.Container

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCanceled, err)
	}

	img, err := src.Image()
	if err != nil {
		return err
	}
	srcW, srcH := img.Bounds().Dx(), img.Bounds().Dy()

	anim := src.Animation()
	animEnc, ok := enc.(animationEncoder)
	if !ok {
		anim = nil
	}
	if anim != nil {
		srcW, srcH = anim.Config.Width, anim.Config.Height
	}

	height, err := PlanHeight(srcW, srcH, def.Width)
	if err != nil {
		return err
	}
	out.Width, out.Height = def.Width, height

	name, err := NameFor(src.URL)
	if err != nil {
		return err
	}
	out.ObjectName = name

	var buf bytes.Buffer
	if anim != nil {
		err = animEnc.EncodeAnimation(&buf, resizeAnimation(anim, def.Width, height, e.filter))
	} else {
		resized := img
		if srcW != def.Width || srcH != height {
			resized = imaging.Resize(img, def.Width, height, e.filter)
		}
		err = enc.Encode(&buf, resized)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrEncodeFailure, enc.Format(), err)
	}
	out.Bytes = buf.Len()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCanceled, err)
	}
	if err := e.store.PutObject(ctx, def.Container, name, buf.Bytes(), enc.ContentType()); err != nil {
		return fmt.Errorf("%w: %s/%s: %v", ErrStorageWrite, def.Container, name, err)
	}
	return nil
}
