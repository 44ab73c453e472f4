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
package main

import (
	"context"
	"iter"
	"strings"

	"github.com/a2aproject/a2a-relay/a2a"
	"github.com/a2aproject/a2a-relay/a2asrv"
)

// newEchoExecutor creates an agent which answers with the text parts of the user message.
func newEchoExecutor() a2asrv.AgentExecutor {
	return a2asrv.NewTaskHandlerExecutor(echo)
}

func echo(ctx context.Context, reqCtx *a2asrv.RequestContext) iter.Seq2[a2a.Event, error] {
	return func(yield func(a2a.Event, error) bool) {
		if !yield(a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateWorking, nil), nil) {
			return
		}

		var texts []string
		for _, part := range reqCtx.UserMessage.Parts {
			if text := part.Text(); text != "" {
				texts = append(texts, text)
			}
		}
		reply := strings.Join(texts, "\n")

		artifact := &a2a.Artifact{Index: a2a.Ptr(0), Name: "echo", Parts: a2a.ContentParts{a2a.NewTextPart(reply)}}
		if !yield(a2a.NewArtifactEvent(reqCtx, artifact), nil) {
			return
		}
		msg := a2a.NewMessageForTask(a2a.MessageRoleAgent, reqCtx, a2a.NewTextPart(reply))
		yield(a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateCompleted, msg), nil)
	}
}
