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

package idgen

import (
	"encoding/base32"
	"encoding/binary"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/sony/sonyflake"
)

var (
	defaultOnce sync.Once
	defaultGen  *SonyFlakeGenerator

	instanceOnce sync.Once
	instanceID   string
)

var base32NoPad = base32.StdEncoding.WithPadding(base32.NoPadding)

type SonyFlakeGenerator struct {
	sf *sonyflake.Sonyflake
}

func newFlakeGenerator() (*SonyFlakeGenerator, error) {
	settings := sonyflake.Settings{
		StartTime: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	sf, err := sonyflake.New(settings)
	if err != nil {
		return nil, err
	}
	if sf == nil {
		return nil, errors.New("failed to create Sonyflake instance")
	}
	return &SonyFlakeGenerator{sf: sf}, nil
}

func defaultGenerator() *SonyFlakeGenerator {
	defaultOnce.Do(func() {
		gen, err := newFlakeGenerator()
		if err != nil {
			// No usable machine id (no private IPv4 address); NextID falls
			// back to random values.
			gen = &SonyFlakeGenerator{}
		}
		defaultGen = gen
	})
	return defaultGen
}

// NextID returns a positive int64 that'll increase roughly in time order.
func (g *SonyFlakeGenerator) NextID() int64 {
	if g.sf == nil {
		return rand.Int64()
	}
	v, err := g.sf.NextID()
	if err != nil {
		return rand.Int64()
	}
	return int64(v)
}

// NextBase32ID returns NextID as lower case, unpadded base32.
func (g *SonyFlakeGenerator) NextBase32ID() string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(g.NextID()))
	return strings.ToLower(base32NoPad.EncodeToString(b[:]))
}

func NextBase32ID() string {
	return defaultGenerator().NextBase32ID()
}

// InstanceID identifies this worker process in logs and object metadata.
// It is fixed for the life of the process.
func InstanceID() string {
	instanceOnce.Do(func() {
		instanceID = NextBase32ID()
	})
	return instanceID
}
