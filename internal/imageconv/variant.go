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
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sigysmund/function-image-upload-resize/config"
)

// VariantDefinition is a VariantConfig that has passed validation.
type VariantDefinition struct {
	Name      string `validate:"required"`
	Width     int    `validate:"gt=0"`
	Container string `validate:"required"`
}

// ResolveVariant turns raw variant configuration into a definition.
// Any problem is reported as ErrInvalidVariant for this variant alone.
func ResolveVariant(v *validator.Validate, vc config.VariantConfig) (VariantDefinition, error) {
	raw := strings.TrimSpace(vc.Width)
	if raw == "" {
		return VariantDefinition{}, fmt.Errorf("%w: %s: width is not configured", ErrInvalidVariant, vc.Name)
	}
	width, err := strconv.Atoi(raw)
	if err != nil {
		return VariantDefinition{}, fmt.Errorf("%w: %s: width %q is not an integer", ErrInvalidVariant, vc.Name, vc.Width)
	}

	def := VariantDefinition{
		Name:      vc.Name,
		Width:     width,
		Container: strings.TrimSpace(vc.Container),
	}
	if err := v.Struct(def); err != nil {
		return VariantDefinition{}, fmt.Errorf("%w: %s: %v", ErrInvalidVariant, vc.Name, err)
	}
	return def, nil
}
