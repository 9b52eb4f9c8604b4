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
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigysmund/function-image-upload-resize/config"
	"github.com/sigysmund/function-image-upload-resize/internal/cloudstorage"
)

var (
	red   = color.RGBA{R: 255, A: 255}
	green = color.RGBA{G: 255, A: 255}
	blue  = color.RGBA{B: 255, A: 255}
)

func solidFrame(pal color.Palette, r image.Rectangle, c color.Color) *image.Paletted {
	img := image.NewPaletted(r, pal)
	draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

// animatedGIF is 40x30: red, then a green square over it, then blue.
func animatedGIF(t *testing.T) []byte {
	t.Helper()
	pal := color.Palette{color.Black, red, green, blue}
	full := image.Rect(0, 0, 40, 30)
	g := &gif.GIF{
		Image: []*image.Paletted{
			solidFrame(pal, full, red),
			solidFrame(pal, image.Rect(10, 10, 30, 20), green),
			solidFrame(pal, full, blue),
		},
		Delay:     []int{10, 20, 30},
		LoopCount: 3,
		Config:    image.Config{ColorModel: pal, Width: 40, Height: 30},
	}
	var buf bytes.Buffer
	require.NoError(t, gif.EncodeAll(&buf, g))
	return buf.Bytes()
}

func TestConvertKeepsGIFAnimation(t *testing.T) {
	const url = "https://acct.blob.core.windows.net/images/spin.gif"
	ref, err := ParseObjectURL(url)
	require.NoError(t, err)
	src := NewSourceImage(url, ref, animatedGIF(t))
	require.NotNil(t, src.Animation())

	enc, err := NewEncoderResolver().Resolve(".gif")
	require.NoError(t, err)

	store := cloudstorage.NewMemoryClient()
	out := NewExecutor(store).Convert(context.Background(), src, enc, config.VariantConfig{
		Name: "THUMBNAIL_20", Width: "20", Container: "thumbs",
	})
	require.NoError(t, out.Err)
	assert.Equal(t, 20, out.Width)
	assert.Equal(t, 15, out.Height)

	obj, ok := store.Object("thumbs", "spin.gif")
	require.True(t, ok)
	assert.Equal(t, "image/gif", obj.ContentType)

	got, err := gif.DecodeAll(bytes.NewReader(obj.Data))
	require.NoError(t, err)
	require.Len(t, got.Image, 3)
	assert.Equal(t, []int{10, 20, 30}, got.Delay)
	assert.Equal(t, 3, got.LoopCount)
	for _, frame := range got.Image {
		assert.Equal(t, image.Rect(0, 0, 20, 15), frame.Bounds())
	}

	// The second frame is the green square composited over the red first frame.
	assertColor(t, red, got.Image[0].At(10, 7))
	assertColor(t, red, got.Image[1].At(1, 1))
	assertColor(t, green, got.Image[1].At(10, 7))
	assertColor(t, blue, got.Image[2].At(10, 7))
}

func TestSourceAnimationOnlyForMultiFrameGIF(t *testing.T) {
	single := NewSourceImage("s3://b/one.gif", ObjectRef{Container: "b", Name: "one.gif"}, encodeTestImage(t, "gif", 8, 8))
	assert.Nil(t, single.Animation())
	img, err := single.Image()
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())

	still := NewSourceImage("s3://b/a.png", ObjectRef{Container: "b", Name: "a.png"}, encodeTestImage(t, "png", 8, 8))
	assert.Nil(t, still.Animation())

	broken := NewSourceImage("s3://b/x.gif", ObjectRef{Container: "b", Name: "x.gif"}, []byte("GIF89a nope"))
	assert.Nil(t, broken.Animation())
	_, err = broken.Image()
	assert.ErrorIs(t, err, ErrDecodeFailure)
}

func assertColor(t *testing.T, want color.RGBA, got color.Color) {
	t.Helper()
	r, g, b, a := got.RGBA()
	assert.Equal(t, want, color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(a >> 8)})
}
