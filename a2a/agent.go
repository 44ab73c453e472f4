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

package a2a

// AgentCapabilities define optional capabilities supported by an agent.
type AgentCapabilities struct {
	// Streaming indicates if the agent supports 'tasks/sendSubscribe'.
	Streaming bool `json:"streaming,omitempty" mapstructure:"streaming"`

	// PushNotifications indicates if the agent supports sending push notifications.
	PushNotifications bool `json:"pushNotifications,omitempty" mapstructure:"pushNotifications"`

	// StateTransitionHistory indicates if the agent exposes status change history.
	StateTransitionHistory bool `json:"stateTransitionHistory,omitempty" mapstructure:"stateTransitionHistory"`
}

// AgentProvider represents the service provider of an agent.
type AgentProvider struct {
	// Organization is the name of the agent provider's organization.
	Organization string `json:"organization" mapstructure:"organization"`

	// URL is a URL for the agent provider's website or relevant documentation.
	URL string `json:"url,omitempty" mapstructure:"url"`
}

// AgentSkill represents a distinct capability or function that an agent can perform.
type AgentSkill struct {
	// ID is a unique identifier for the agent's skill.
	ID string `json:"id" mapstructure:"id"`

	// Name is a human-readable name for the skill.
	Name string `json:"name" mapstructure:"name"`

	// Description is an optional detailed description of the skill.
	Description string `json:"description,omitempty" mapstructure:"description"`

	// Tags is a set of keywords describing the skill's capabilities.
	Tags []string `json:"tags,omitempty" mapstructure:"tags"`

	// Examples are example prompts or scenarios that this skill can handle.
	Examples []string `json:"examples,omitempty" mapstructure:"examples"`

	// InputModes overrides the agent's default input MIME types for this skill.
	InputModes []string `json:"inputModes,omitempty" mapstructure:"inputModes"`

	// OutputModes overrides the agent's default output MIME types for this skill.
	OutputModes []string `json:"outputModes,omitempty" mapstructure:"outputModes"`
}

// AgentCard is a self-describing manifest for an agent served at the well-known path.
type AgentCard struct {
	// Name is a human-readable name for the agent.
	Name string `json:"name" mapstructure:"name"`

	// Description is a human-readable description of the agent.
	Description string `json:"description,omitempty" mapstructure:"description"`

	// URL is the endpoint which accepts JSON-RPC requests.
	URL string `json:"url" mapstructure:"url"`

	// Provider contains information about the agent's service provider.
	Provider *AgentProvider `json:"provider,omitempty" mapstructure:"provider"`

	// Version is the agent's own version number.
	Version string `json:"version" mapstructure:"version"`

	// DocumentationURL is an optional URL to the agent's documentation.
	DocumentationURL string `json:"documentationUrl,omitempty" mapstructure:"documentationUrl"`

	// Capabilities is a declaration of optional capabilities supported by the agent.
	Capabilities AgentCapabilities `json:"capabilities" mapstructure:"capabilities"`

	// DefaultInputModes is the default set of supported input MIME types.
	DefaultInputModes []string `json:"defaultInputModes" mapstructure:"defaultInputModes"`

	// DefaultOutputModes is the default set of supported output MIME types.
	DefaultOutputModes []string `json:"defaultOutputModes" mapstructure:"defaultOutputModes"`

	// Skills is the set of skills that the agent can perform.
	Skills []AgentSkill `json:"skills" mapstructure:"skills"`
}
