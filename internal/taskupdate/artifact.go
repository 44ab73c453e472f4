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
package taskupdate

import (
	"fmt"
	"maps"
	"slices"

	"github.com/a2aproject/a2a-relay/a2a"
	"github.com/a2aproject/a2a-relay/internal/utils"
)

// MergeArtifact integrates an artifact update into the list of task artifacts and
// returns the new list. The provided list and artifact are not modified.
//
// The artifact to update is found by Index if it is within list bounds, and by Name
// otherwise. A found artifact is replaced, or extended with the update parts if Append
// is set. Artifacts which were not found are added and the list is kept sorted by index
// as long as any artifact has one.
func MergeArtifact(artifacts []*a2a.Artifact, update *a2a.Artifact) ([]*a2a.Artifact, error) {
	if update == nil {
		return nil, fmt.Errorf("artifact is required")
	}
	incoming, err := utils.DeepCopy(update)
	if err != nil {
		return nil, fmt.Errorf("failed to copy artifact: %w", err)
	}
	result := slices.Clone(artifacts)

	pos := findArtifact(result, incoming)
	if pos < 0 {
		result = append(result, incoming)
		if slices.ContainsFunc(result, func(a *a2a.Artifact) bool { return a.Index != nil }) {
			slices.SortStableFunc(result, func(a, b *a2a.Artifact) int {
				return a.IndexOrZero() - b.IndexOrZero()
			})
		}
		return result, nil
	}

	if !incoming.Append {
		result[pos] = incoming
		return result, nil
	}

	appended, err := utils.DeepCopy(result[pos])
	if err != nil {
		return nil, fmt.Errorf("failed to copy artifact: %w", err)
	}
	appended.Parts = append(appended.Parts, incoming.Parts...)
	if incoming.Metadata != nil {
		if appended.Metadata == nil {
			appended.Metadata = make(map[string]any, len(incoming.Metadata))
		}
		maps.Copy(appended.Metadata, incoming.Metadata)
	}
	appended.LastChunk = incoming.LastChunk
	if incoming.Description != "" {
		appended.Description = incoming.Description
	}
	result[pos] = appended
	return result, nil
}

func findArtifact(artifacts []*a2a.Artifact, update *a2a.Artifact) int {
	if update.Index != nil && *update.Index >= 0 && *update.Index < len(artifacts) {
		return *update.Index
	}
	if update.Name != "" {
		return slices.IndexFunc(artifacts, func(a *a2a.Artifact) bool { return a.Name == update.Name })
	}
	return -1
}
