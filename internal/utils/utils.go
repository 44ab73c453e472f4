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

// Package utils contains helpers shared across the module.
package utils

import (
	"encoding/json"
	"fmt"
)

// DeepCopy creates a deep copy of the provided value by round-tripping it through its
// JSON encoding. The result shares no memory with the original and keeps zero values
// behind pointers, e.g. an artifact index of 0.
func DeepCopy[T any](src T) (T, error) {
	var dst T
	data, err := json.Marshal(src)
	if err != nil {
		return dst, fmt.Errorf("deep copy encode failed: %w", err)
	}
	if err := json.Unmarshal(data, &dst); err != nil {
		return dst, fmt.Errorf("deep copy decode failed: %w", err)
	}
	return dst, nil
}

// Truncate returns the last n elements of the slice, or the whole slice if it is shorter.
func Truncate[T any](s []T, n int) []T {
	if n < 0 || len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
