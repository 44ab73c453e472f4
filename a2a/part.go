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

import (
	"encoding/json"
	"fmt"
)

// ContentParts is an array of content parts that form the message body or an artifact.
type ContentParts []*Part

// MarshalJSON encodes nil as an empty array.
func (j ContentParts) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]*Part(j))
}

// Part is a discriminated union representing a part of a message or artifact, which can
// be text, a file, or structured data.
type Part struct {
	// Types that are valid to be assigned to Content are [Text], [Data] and [File].
	Content PartContent

	// Metadata is the optional metadata associated with this part.
	Metadata map[string]any
}

// NewTextPart creates a Part that contains text.
func NewTextPart(text string) *Part {
	return &Part{Content: Text(text)}
}

// NewDataPart creates a Part that contains structured data.
func NewDataPart(data map[string]any) *Part {
	return &Part{Content: Data(data)}
}

// NewFileBytesPart creates a Part with base64 encoded file content.
func NewFileBytesPart(name, mimeType, base64Bytes string) *Part {
	return &Part{Content: File{Name: name, MimeType: mimeType, Bytes: base64Bytes}}
}

// NewFileURIPart creates a Part that references a file by URI.
func NewFileURIPart(name, mimeType, uri string) *Part {
	return &Part{Content: File{Name: name, MimeType: mimeType, URI: uri}}
}

// Text is a helper that returns the text content of the part if it is a Text part.
func (p *Part) Text() string {
	if v, ok := p.Content.(Text); ok {
		return string(v)
	}
	return ""
}

// Data is a helper that returns the data content of the part if it is a Data part.
func (p *Part) Data() map[string]any {
	if v, ok := p.Content.(Data); ok {
		return v
	}
	return nil
}

// File is a helper that returns the file content of the part if it is a File part.
func (p *Part) File() (File, bool) {
	v, ok := p.Content.(File)
	return v, ok
}

// Meta implements MetadataCarrier.
func (p *Part) Meta() map[string]any {
	return p.Metadata
}

// SetMeta implements MetadataCarrier.
func (p *Part) SetMeta(k string, v any) {
	setMeta(&p.Metadata, k, v)
}

// PartContent is a sealed discriminated type union for supported part content types.
type PartContent interface {
	isPartContent()
}

func (Text) isPartContent() {}
func (Data) isPartContent() {}
func (File) isPartContent() {}

// Text represents content of a Part carrying text.
type Text string

// Data represents content of a Part carrying structured data.
type Data map[string]any

// File represents content of a Part carrying a file. Exactly one of Bytes and URI is set.
type File struct {
	// Name is an optional file name.
	Name string `json:"name,omitempty"`
	// MimeType is an optional media type of the file.
	MimeType string `json:"mimeType,omitempty"`
	// Bytes is base64 encoded file content.
	Bytes string `json:"bytes,omitempty"`
	// URI points to the file content.
	URI string `json:"uri,omitempty"`
}

// MarshalJSON encodes the part with a kind discriminator.
func (p Part) MarshalJSON() ([]byte, error) {
	switch v := p.Content.(type) {
	case Text:
		return json.Marshal(struct {
			Kind     string         `json:"kind"`
			Text     string         `json:"text"`
			Metadata map[string]any `json:"metadata,omitempty"`
		}{Kind: "text", Text: string(v), Metadata: p.Metadata})
	case Data:
		return json.Marshal(struct {
			Kind     string         `json:"kind"`
			Data     map[string]any `json:"data"`
			Metadata map[string]any `json:"metadata,omitempty"`
		}{Kind: "data", Data: v, Metadata: p.Metadata})
	case File:
		return json.Marshal(struct {
			Kind     string         `json:"kind"`
			File     File           `json:"file"`
			Metadata map[string]any `json:"metadata,omitempty"`
		}{Kind: "file", File: v, Metadata: p.Metadata})
	default:
		return nil, fmt.Errorf("unknown part content type: %T", v)
	}
}

// UnmarshalJSON decodes the part based on its kind discriminator.
func (p *Part) UnmarshalJSON(b []byte) error {
	var decoded struct {
		Kind     string         `json:"kind"`
		Text     string         `json:"text"`
		Data     map[string]any `json:"data"`
		File     *File          `json:"file"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := json.Unmarshal(b, &decoded); err != nil {
		return err
	}

	switch decoded.Kind {
	case "text":
		p.Content = Text(decoded.Text)
	case "data":
		p.Content = Data(decoded.Data)
	case "file":
		if decoded.File == nil {
			return fmt.Errorf("invalid file part: file is missing")
		}
		if (decoded.File.Bytes == "") == (decoded.File.URI == "") {
			return fmt.Errorf("invalid file part: exactly one of bytes and uri must be set")
		}
		p.Content = *decoded.File
	default:
		return fmt.Errorf("unknown part kind %q", decoded.Kind)
	}
	p.Metadata = decoded.Metadata
	return nil
}
