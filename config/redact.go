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

package config

// Redacted returns a copy of cfg with credentials masked, for display.
func (c Config) Redacted() Config {
	out := c
	out.Variants.Definitions = append([]VariantConfig(nil), c.Variants.Definitions...)
	out.Variants.Names = append([]string(nil), c.Variants.Names...)
	out.Storage.Azure.ConnectionString = mask(c.Storage.Azure.ConnectionString)
	out.PubSub.Azure.ConnectionString = mask(c.PubSub.Azure.ConnectionString)
	return out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
