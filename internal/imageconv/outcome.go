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
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Outcome is the result of converting one variant. Err is nil on success.
type Outcome struct {
	Variant    string
	Container  string
	ObjectName string
	Format     string
	Width      int
	Height     int
	Bytes      int
	Duration   time.Duration
	Err        error
}

func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

func (o Outcome) Reason() string {
	return FailureReason(o.Err)
}

func (o Outcome) logAttrs() []any {
	attrs := []any{
		slog.String("variant", o.Variant),
		slog.String("container", o.Container),
		slog.String("object", o.ObjectName),
		slog.Duration("duration", o.Duration),
	}
	if o.Err != nil {
		return append(attrs, slog.String("reason", o.Reason()), slog.Any("error", o.Err))
	}
	return append(attrs,
		slog.String("format", o.Format),
		slog.Int("width", o.Width),
		slog.Int("height", o.Height),
		slog.Int("bytes", o.Bytes),
	)
}

// Report collects what happened to one notification.
type Report struct {
	NotificationID string
	URL            string
	Encoder        string

	// Unsupported is set when the extension has no encoder; no variant ran.
	Unsupported bool
	// NoPayload is set when the source could not be identified or obtained;
	// no variant ran.
	NoPayload  bool
	SkipReason string

	// Outcomes follows the configured variant order.
	Outcomes []Outcome
}

func (r Report) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Succeeded() {
			n++
		}
	}
	return n
}

func (r Report) Failed() int {
	return len(r.Outcomes) - r.Succeeded()
}

// Err combines the failed variants into one error, or nil.
func (r Report) Err() error {
	var result *multierror.Error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			result = multierror.Append(result, fmt.Errorf("variant %s: %w", o.Variant, o.Err))
		}
	}
	return result.ErrorOrNil()
}
