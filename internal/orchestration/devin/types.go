package devin

import (
	"encoding/json"
	"strings"

	"github.com/zjrosen/agentbridge/internal/orchestration/client"
)

// EffortLevel selects the Devin agent tier.
type EffortLevel string

const (
	EffortStandard EffortLevel = "standard"
	EffortDeep     EffortLevel = "deep"
)

// PlanningMode controls whether Devin waits for plan approval.
type PlanningMode string

const (
	PlanningAutoConfirm PlanningMode = "auto_confirm"
	PlanningSyncConfirm PlanningMode = "sync_confirm"
)

// EffortForModel maps a model identifier to an effort level. Models
// ending in "-deep" run at EffortDeep.
func EffortForModel(model string) EffortLevel {
	if strings.HasSuffix(strings.ToLower(model), "-deep") {
		return EffortDeep
	}
	return EffortStandard
}

// PlanningModeForPolicy maps an approval policy to a planning mode.
func PlanningModeForPolicy(policy client.ApprovalPolicy) PlanningMode {
	if policy == client.PolicyApprovePlan {
		return PlanningSyncConfirm
	}
	return PlanningAutoConfirm
}

// CreateSessionRequest is the body of POST /sessions.
type CreateSessionRequest struct {
	Prompt          string       `json:"prompt"`
	EffortLevel     EffortLevel  `json:"effort_level"`
	PlanningMode    PlanningMode `json:"planning_mode_agency"`
	Tags            []string     `json:"tags,omitempty"`
	ParentSessionID string       `json:"parent_session_id,omitempty"`
}

type createSessionResponse struct {
	ID        string               `json:"id"`
	SessionID string               `json:"session_id"`
	Status    client.SessionStatus `json:"status"`
	Title     string               `json:"title"`
}

type sendMessageRequest struct {
	Content     string   `json:"content"`
	Attachments []string `json:"attachments,omitempty"`
}

// PlanStatus is the approval state of a plan.
type PlanStatus string

const (
	PlanPending  PlanStatus = "pending"
	PlanApproved PlanStatus = "approved"
	PlanRejected PlanStatus = "rejected"
)

// Plan is the optional plan attached to a status response.
type Plan struct {
	Content string     `json:"content"`
	Status  PlanStatus `json:"status"`
}

// StatusResponse is the body of GET /sessions/{id}.
type StatusResponse struct {
	ID     string               `json:"id"`
	Status client.SessionStatus `json:"status"`
	Title  string               `json:"title,omitempty"`
	// Output is either a JSON string or an array of OutputEntry.
	Output json.RawMessage `json:"output,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`
	Plan   *Plan           `json:"plan,omitempty"`
}

// HasOutput reports whether the response carries a non-null output.
func (s *StatusResponse) HasOutput() bool {
	trimmed := strings.TrimSpace(string(s.Output))
	return trimmed != "" && trimmed != "null" && trimmed != `""` && trimmed != "[]"
}

// ErrorText returns the service-reported error as text, or "" when absent.
// The error may be a string or an object with a message field.
func (s *StatusResponse) ErrorText() string {
	if len(s.Error) == 0 || string(s.Error) == "null" {
		return ""
	}
	var text string
	if err := json.Unmarshal(s.Error, &text); err == nil {
		return text
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(s.Error, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(s.Error)
}

// OutputEntry is one typed element of a structured output array.
type OutputEntry struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
	// Language is the fence tag for code entries that carry a string content.
	Language string `json:"language,omitempty"`
}

type listSessionsResponse struct {
	Sessions []struct {
		SessionID string               `json:"session_id"`
		Status    client.SessionStatus `json:"status"`
		Title     string               `json:"title"`
	} `json:"sessions"`
}

type uploadResponse struct {
	URL string `json:"url"`
}
