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

import "errors"

// Error taxonomy for conversion. Callers classify with errors.Is.
var (
	// ErrUnsupportedFormat aborts every variant of an event.
	ErrUnsupportedFormat = errors.New("unsupported image format")

	// ErrMalformedEvent is the only error that escapes to the transport.
	ErrMalformedEvent = errors.New("malformed notification")

	ErrInvalidDimension = errors.New("invalid dimension")
	ErrInvalidReference = errors.New("invalid object reference")
	ErrInvalidVariant   = errors.New("invalid variant configuration")
	ErrDecodeFailure    = errors.New("decode failed")
	ErrEncodeFailure    = errors.New("encode failed")
	ErrStorageWrite     = errors.New("storage write failed")
	ErrCanceled         = errors.New("conversion abandoned")
)

// FailureReason maps a variant error onto a short, stable label used for
// log attributes and metric dimensions.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidVariant):
		return "invalid_variant"
	case errors.Is(err, ErrInvalidDimension):
		return "invalid_dimension"
	case errors.Is(err, ErrInvalidReference):
		return "invalid_reference"
	case errors.Is(err, ErrDecodeFailure):
		return "decode"
	case errors.Is(err, ErrEncodeFailure):
		return "encode"
	case errors.Is(err, ErrStorageWrite):
		return "storage_write"
	case errors.Is(err, ErrCanceled):
		return "canceled"
	case errors.Is(err, ErrUnsupportedFormat):
		return "unsupported_format"
	default:
		return "unknown"
	}
}
