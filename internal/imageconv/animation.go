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
	"image"
	"image/color"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"io"

	"github.com/disintegration/imaging"
)

// animationEncoder is implemented by encoders that can write every frame of
// an animated source.
type animationEncoder interface {
	EncodeAnimation(w io.Writer, g *gif.GIF) error
}

// resizeAnimation scales every frame of g to w x h. Frames are composited
// onto the logical screen first, honouring each frame's disposal, so every
// output frame is a complete picture. Delays and loop count carry over.
func resizeAnimation(g *gif.GIF, w, h int, filter imaging.ResampleFilter) *gif.GIF {
	canvas := image.NewRGBA(image.Rect(0, 0, g.Config.Width, g.Config.Height))
	out := &gif.GIF{
		Image:     make([]*image.Paletted, 0, len(g.Image)),
		Delay:     make([]int, 0, len(g.Image)),
		LoopCount: g.LoopCount,
	}

	for i, frame := range g.Image {
		var disposal byte
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}
		var previous *image.RGBA
		if disposal == gif.DisposalPrevious {
			previous = image.NewRGBA(canvas.Bounds())
			copy(previous.Pix, canvas.Pix)
		}

		fb := frame.Bounds()
		draw.Draw(canvas, fb, frame, fb.Min, draw.Over)

		var resized image.Image = canvas
		if canvas.Bounds().Dx() != w || canvas.Bounds().Dy() != h {
			resized = imaging.Resize(canvas, w, h, filter)
		}
		pal := color.Palette(frame.Palette)
		if len(pal) == 0 {
			pal = palette.Plan9
		}
		dst := image.NewPaletted(image.Rect(0, 0, w, h), pal)
		draw.FloydSteinberg.Draw(dst, dst.Bounds(), resized, image.Point{})
		out.Image = append(out.Image, dst)

		delay := 0
		if i < len(g.Delay) {
			delay = g.Delay[i]
		}
		out.Delay = append(out.Delay, delay)

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, fb, image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			canvas = previous
		}
	}
	return out
}
