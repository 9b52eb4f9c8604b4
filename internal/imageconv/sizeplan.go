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
	"math"
)

// PlanHeight returns the height that keeps the source aspect ratio when the
// image is scaled to targetWidth. The divisor is computed in floating point
// and the result is rounded half-to-even, never below 1.
func PlanHeight(sourceWidth, sourceHeight, targetWidth int) (int, error) {
	if sourceWidth <= 0 {
		return 0, fmt.Errorf("%w: source width %d", ErrInvalidDimension, sourceWidth)
	}
	if targetWidth <= 0 {
		return 0, fmt.Errorf("%w: target width %d", ErrInvalidDimension, targetWidth)
	}
	if sourceHeight < 0 {
		return 0, fmt.Errorf("%w: source height %d", ErrInvalidDimension, sourceHeight)
	}

	divisor := float64(sourceWidth) / float64(targetWidth)
	h := math.RoundToEven(float64(sourceHeight) / divisor)
	if h < 1 {
		return 1, nil
	}
	if h > math.MaxInt32 {
		return 0, fmt.Errorf("%w: planned height %.0f overflows", ErrInvalidDimension, h)
	}
	return int(h), nil
}
