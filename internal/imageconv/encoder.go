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
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"strings"
)

// Encoder serializes an in-memory image into one output format.
type Encoder interface {
	Format() string
	ContentType() string
	Encode(w io.Writer, img image.Image) error
}

const DefaultJPEGQuality = 75

type jpegEncoder struct {
	quality int
}

func (e jpegEncoder) Format() string      { return "jpeg" }
func (e jpegEncoder) ContentType() string { return "image/jpeg" }

func (e jpegEncoder) Encode(w io.Writer, img image.Image) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: e.quality})
}

type pngEncoder struct {
	compression png.CompressionLevel
}

func (e pngEncoder) Format() string      { return "png" }
func (e pngEncoder) ContentType() string { return "image/png" }

func (e pngEncoder) Encode(w io.Writer, img image.Image) error {
	enc := png.Encoder{CompressionLevel: e.compression}
	return enc.Encode(w, img)
}

type gifEncoder struct{}

func (gifEncoder) Format() string      { return "gif" }
func (gifEncoder) ContentType() string { return "image/gif" }

func (gifEncoder) Encode(w io.Writer, img image.Image) error {
	return gif.Encode(w, img, &gif.Options{NumColors: 256, Drawer: draw.FloydSteinberg})
}

func (gifEncoder) EncodeAnimation(w io.Writer, g *gif.GIF) error {
	return gif.EncodeAll(w, g)
}

// EncoderResolver maps a source file extension onto an Encoder.
type EncoderResolver struct {
	jpegQuality    int
	pngCompression png.CompressionLevel
}

// ResolverOption is a functional option for NewEncoderResolver.
type ResolverOption func(*EncoderResolver)

// WithJPEGQuality sets the JPEG quality (1-100). Out of range values are ignored.
func WithJPEGQuality(q int) ResolverOption {
	return func(r *EncoderResolver) {
		if q >= 1 && q <= 100 {
			r.jpegQuality = q
		}
	}
}

// WithPNGCompression sets the PNG compression level by name:
// "default", "none", "speed" or "best".
func WithPNGCompression(level string) ResolverOption {
	return func(r *EncoderResolver) {
		if l, err := ParsePNGCompression(level); err == nil {
			r.pngCompression = l
		}
	}
}

func NewEncoderResolver(opts ...ResolverOption) *EncoderResolver {
	r := &EncoderResolver{
		jpegQuality:    DefaultJPEGQuality,
		pngCompression: png.DefaultCompression,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the encoder for ext. One leading "." is stripped and the
// match is case-insensitive; anything other than gif, png, jpg or jpeg is
// ErrUnsupportedFormat.
func (r *EncoderResolver) Resolve(ext string) (Encoder, error) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "png":
		return pngEncoder{compression: r.pngCompression}, nil
	case "jpg", "jpeg":
		return jpegEncoder{quality: r.jpegQuality}, nil
	case "gif":
		return gifEncoder{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func ParsePNGCompression(level string) (png.CompressionLevel, error) {
	switch strings.ToLower(level) {
	case "", "default":
		return png.DefaultCompression, nil
	case "none":
		return png.NoCompression, nil
	case "speed":
		return png.BestSpeed, nil
	case "best":
		return png.BestCompression, nil
	default:
		return png.DefaultCompression, fmt.Errorf("unknown png compression level %q", level)
	}
}
