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

import (
	"strings"

	"github.com/spf13/viper"
)

// DefaultVariantNames is the declared order of the variants produced for
// every uploaded image.
var DefaultVariantNames = []string{
	"THUMBNAIL_128",
	"THUMBNAIL_256",
	"THUMBNAIL_512",
	"NORMAL",
	"FULL",
}

type VariantsConfig struct {
	Names []string `mapstructure:"names" yaml:"names"`

	// Definitions follows Names order. Width is kept as written so a bad
	// value only fails its own variant.
	Definitions []VariantConfig `mapstructure:"-" yaml:"definitions"`
}

// VariantConfig is one configured output, unvalidated.
type VariantConfig struct {
	Name      string `yaml:"name"`
	Width     string `yaml:"width"`
	Container string `yaml:"container"`
}

// loadVariants reads width and container for each name from
// variants.<name>.width / variants.<name>.container, falling back to the
// <NAME>_WIDTH and <NAME>_CONTAINER_NAME environment variables.
func loadVariants(v *viper.Viper, names []string) []VariantConfig {
	out := make([]VariantConfig, 0, len(names))
	for _, name := range names {
		base := "variants." + strings.ToLower(name)
		upper := strings.ToUpper(name)

		_ = v.BindEnv(base+".width", envName(base+".width"), upper+"_WIDTH")
		_ = v.BindEnv(base+".container", envName(base+".container"), upper+"_CONTAINER_NAME")

		out = append(out, VariantConfig{
			Name:      name,
			Width:     strings.TrimSpace(v.GetString(base + ".width")),
			Container: strings.TrimSpace(v.GetString(base + ".container")),
		})
	}
	return out
}

func normalizeNames(in []string) []string {
	var out []string
	seen := make(map[string]bool, len(in))
	for _, entry := range in {
		for _, name := range strings.Split(entry, ",") {
			name = strings.ToUpper(strings.TrimSpace(name))
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}
