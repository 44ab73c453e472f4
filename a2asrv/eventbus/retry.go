// Copyright 2025 The A2A Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package eventbus

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy is used to configure the topic polling loop behavior in case of errors.
type RetryPolicy interface {
	// NextDelay returns the sleep duration after a failed poll attempt.
	NextDelay(attempt int) time.Duration
}

// FixedBackoff is a [RetryPolicy] which always waits for the same Delay.
type FixedBackoff struct {
	Delay time.Duration
}

// NextDelay implements [RetryPolicy] interface.
func (f FixedBackoff) NextDelay(int) time.Duration {
	return f.Delay
}

// ExponentialBackoff is a [RetryPolicy] implementation which uses exponential backoff with full jitter.
type ExponentialBackoff struct {
	// BaseDelay is used for calculating retry interval as base * 2 ^ attempt.
	BaseDelay time.Duration
	// MaxDelay sets a cap for the value returned from NextDelay.
	MaxDelay time.Duration
}

// NextDelay implements [RetryPolicy] interface.
func (e *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	delay := min(float64(e.BaseDelay)*math.Pow(2.0, float64(attempt)), float64(e.MaxDelay))
	return time.Duration(rand.Int63n(int64(delay + 1)))
}
