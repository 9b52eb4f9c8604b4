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

package pubsub

import "time"

const (
	// defaultItemTimeout stands in for an unbounded handler when sizing
	// queue visibility.
	defaultItemTimeout = 5 * time.Minute
	visibilitySlack    = 30 * time.Second

	maxSQSVisibility   = 12 * time.Hour
	maxAzureVisibility = 7 * 24 * time.Hour
)

// batchVisibility returns how long a received batch must stay hidden from
// other consumers so that none of it is redelivered while this process is
// still working through it. Items run concurrency at a time, each bounded
// by perItem.
func batchVisibility(perItem time.Duration, batch, concurrency int, limit time.Duration) time.Duration {
	if perItem <= 0 {
		perItem = defaultItemTimeout
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if batch < 1 {
		batch = 1
	}
	rounds := (batch + concurrency - 1) / concurrency
	return min(time.Duration(rounds)*perItem+visibilitySlack, limit)
}

// visibilitySeconds rounds d up to whole seconds, the unit both queue APIs take.
func visibilitySeconds(d time.Duration) int32 {
	return int32((d + time.Second - 1) / time.Second)
}
