package client

import (
	"strings"

	"github.com/google/uuid"
)

// Role identifies who produced a ResponseItem.
type Role string

const (
	// RoleAssistant marks content produced by the agent.
	RoleAssistant Role = "assistant"
	// RoleSystem marks notices produced by the adapter itself.
	RoleSystem Role = "system"
	// RoleUser marks caller input.
	RoleUser Role = "user"
)

// ItemKind refines what a ResponseItem carries so the UI can react to it.
type ItemKind string

const (
	KindOutput          ItemKind = "output"
	KindNotice          ItemKind = "notice"
	KindError           ItemKind = "error"
	KindPlan            ItemKind = "plan"
	KindApprovalRequest ItemKind = "approval_request"
)

// Content part types.
const (
	PartOutputText = "output_text"
	PartInputText  = "input_text"
	PartInputImage = "input_image"
	PartInputFile  = "input_file"
	PartFile       = "file"
)

// ContentPart is one segment of an item's content.
type ContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	URL      string `json:"url,omitempty"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// ResponseItem is the normalized unit delivered to the UI.
type ResponseItem struct {
	ID      string        `json:"id"`
	Type    string        `json:"type"`
	Role    Role          `json:"role"`
	Kind    ItemKind      `json:"kind,omitempty"`
	Content []ContentPart `json:"content"`
}

// Text joins the text of every content part, one per line.
func (r ResponseItem) Text() string {
	var parts []string
	for _, c := range r.Content {
		if c.Text != "" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Files returns the file parts of the item.
func (r ResponseItem) Files() []ContentPart {
	var files []ContentPart
	for _, c := range r.Content {
		if c.Type == PartFile {
			files = append(files, c)
		}
	}
	return files
}

// NewAssistantText builds an assistant message with a fresh ID.
func NewAssistantText(kind ItemKind, text string) ResponseItem {
	return ResponseItem{
		ID:      uuid.NewString(),
		Type:    "message",
		Role:    RoleAssistant,
		Kind:    kind,
		Content: []ContentPart{{Type: PartOutputText, Text: text}},
	}
}

// NewSystemText builds an adapter notice with a fresh ID.
func NewSystemText(kind ItemKind, text string) ResponseItem {
	return ResponseItem{
		ID:      uuid.NewString(),
		Type:    "message",
		Role:    RoleSystem,
		Kind:    kind,
		Content: []ContentPart{{Type: PartOutputText, Text: text}},
	}
}

// InputItem is one entry of caller input.
type InputItem struct {
	Role    Role          `json:"role"`
	Content []ContentPart `json:"content"`
}

// UserText builds a user input item holding text.
func UserText(text string) InputItem {
	return InputItem{
		Role:    RoleUser,
		Content: []ContentPart{{Type: PartInputText, Text: text}},
	}
}

// UserFile builds a user input item referencing an uploaded file or image.
func UserFile(partType, url string) InputItem {
	return InputItem{
		Role:    RoleUser,
		Content: []ContentPart{{Type: partType, URL: url}},
	}
}

// Attachment references an uploaded file.
type Attachment struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
}
