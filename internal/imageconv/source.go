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
	"fmt"
	"image"
	"image/gif"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
)

// Notification is a "new object created" event, reduced to what conversion
// needs.
type Notification struct {
	ID            string
	URL           string
	Source        string
	ContentLength int64
	EventTime     time.Time
}

// SourceImage is the uploaded object for one event. The bytes are decoded at
// most once and the decoded image is shared, read-only, by every variant.
type SourceImage struct {
	URL       string
	Ref       ObjectRef
	Extension string

	data   []byte
	decode func() (decoded, error)
}

type decoded struct {
	img image.Image
	// anim is set only for GIF sources with more than one frame.
	anim *gif.GIF
}

func NewSourceImage(url string, ref ObjectRef, data []byte) *SourceImage {
	s := &SourceImage{
		URL:       url,
		Ref:       ref,
		Extension: ref.Extension(),
		data:      data,
	}
	s.decode = sync.OnceValues(s.decodeData)
	return s
}

func (s *SourceImage) decodeData() (decoded, error) {
	if strings.EqualFold(s.Extension, ".gif") {
		if g, err := gif.DecodeAll(bytes.NewReader(s.data)); err == nil && len(g.Image) > 0 {
			d := decoded{img: g.Image[0]}
			if len(g.Image) > 1 {
				if g.Config.Width <= 0 || g.Config.Height <= 0 {
					b := g.Image[0].Bounds()
					g.Config.Width, g.Config.Height = b.Max.X, b.Max.Y
				}
				d.anim = g
			}
			return d, nil
		}
	}
	img, err := imaging.Decode(bytes.NewReader(s.data))
	if err != nil {
		return decoded{}, fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}
	return decoded{img: img}, nil
}

// Image returns the decoded source, the first frame for an animation.
// Safe for concurrent use.
func (s *SourceImage) Image() (image.Image, error) {
	d, err := s.decode()
	return d.img, err
}

// Animation returns every frame of an animated GIF source, or nil for
// anything else. Callers must not modify it.
func (s *SourceImage) Animation() *gif.GIF {
	d, err := s.decode()
	if err != nil {
		return nil
	}
	return d.anim
}

func (s *SourceImage) Size() int {
	return len(s.data)
}
