package devin

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zjrosen/agentbridge/internal/log"
	"github.com/zjrosen/agentbridge/internal/orchestration/client"
)

// Output entry types.
const (
	EntryText       = "text"
	EntryCode       = "code"
	EntryTable      = "table"
	EntryList       = "list"
	EntryAttachment = "attachment"
)

// DefaultMimeType is used when an attachment does not declare one.
const DefaultMimeType = "application/octet-stream"

// ApprovalPrompt is the yes/no question emitted for a pending plan under
// the approve-plan policy.
const ApprovalPrompt = "Devin is waiting for you to approve this plan. Reply yes to approve or no to reject."

// Normalizer converts status responses into response items.
type Normalizer struct {
	Policy client.ApprovalPolicy

	// Now stamps placeholder attachment names. Defaults to time.Now.
	Now func() time.Time
}

// Normalize converts the plan and then the output of resp. It never
// fails: a malformed output is logged and replaced by one system error item.
func (n Normalizer) Normalize(resp *StatusResponse) (items []client.ResponseItem) {
	if resp == nil {
		return nil
	}

	items = append(items, n.Plan(resp.Plan)...)
	if !resp.HasOutput() {
		return items
	}

	out, err := n.safeOutput(resp.Output)
	if err != nil {
		log.ErrorErr(log.CatAgent, "normalize output failed", err, "session", resp.ID)
		return append(items, client.NewSystemText(client.KindError, DescribeError(err)))
	}
	return append(items, out...)
}

func (n Normalizer) safeOutput(raw json.RawMessage) (items []client.ResponseItem, err error) {
	defer func() {
		if r := recover(); r != nil {
			items = nil
			err = &NormalizationError{Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return n.Output(raw)
}

// Plan renders a plan notice, followed by an approval request when the
// plan is pending and the policy is approve-plan.
func (n Normalizer) Plan(plan *Plan) []client.ResponseItem {
	if plan == nil || (plan.Content == "" && plan.Status == "") {
		return nil
	}

	items := []client.ResponseItem{
		client.NewAssistantText(client.KindPlan, planMarker(plan.Status)+"\n\n"+plan.Content),
	}
	if plan.Status == PlanPending && n.Policy == client.PolicyApprovePlan {
		items = append(items, client.NewSystemText(client.KindApprovalRequest, ApprovalPrompt))
	}
	return items
}

func planMarker(status PlanStatus) string {
	switch status {
	case PlanPending:
		return "[Plan awaiting approval]"
	case PlanApproved:
		return "[Plan approved]"
	case PlanRejected:
		return "[Plan rejected]"
	default:
		return "[Plan]"
	}
}

// Output converts an output payload: a JSON string becomes one item,
// an array is converted entry by entry in order.
func (n Normalizer) Output(raw json.RawMessage) ([]client.ResponseItem, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	switch trimmed[0] {
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return nil, &NormalizationError{Err: err}
		}
		return []client.ResponseItem{client.NewAssistantText(client.KindOutput, text)}, nil
	case '[':
		var entries []OutputEntry
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, &NormalizationError{Err: err}
		}
		return n.Entries(entries)
	case '{':
		var entry OutputEntry
		if err := json.Unmarshal(trimmed, &entry); err != nil || entry.Type == "" {
			return nil, &NormalizationError{Err: errors.New("output object has no type")}
		}
		return n.Entries([]OutputEntry{entry})
	default:
		return []client.ResponseItem{client.NewAssistantText(client.KindOutput, string(trimmed))}, nil
	}
}

// Entries converts structured output entries, one item per entry.
func (n Normalizer) Entries(entries []OutputEntry) ([]client.ResponseItem, error) {
	var items []client.ResponseItem
	for _, e := range entries {
		item, ok, err := n.entry(e)
		if err != nil {
			return nil, &NormalizationError{Entry: e.Type, Err: err}
		}
		if ok {
			items = append(items, item)
		}
	}
	return items, nil
}

func (n Normalizer) entry(e OutputEntry) (client.ResponseItem, bool, error) {
	switch e.Type {
	case EntryText:
		return client.NewAssistantText(client.KindOutput, coerceText(e.Content)), true, nil
	case EntryCode:
		text, err := renderCode(e)
		if err != nil {
			return client.ResponseItem{}, false, err
		}
		return client.NewAssistantText(client.KindOutput, text), true, nil
	case EntryTable:
		lines, err := RenderTable(e.Content)
		if err != nil || len(lines) == 0 {
			return client.ResponseItem{}, false, err
		}
		return client.NewAssistantText(client.KindOutput, strings.Join(lines, "\n")), true, nil
	case EntryList:
		lines, err := renderList(e.Content)
		if err != nil || len(lines) == 0 {
			return client.ResponseItem{}, false, err
		}
		return client.NewAssistantText(client.KindOutput, strings.Join(lines, "\n")), true, nil
	case EntryAttachment:
		item, err := n.attachment(e.Content)
		if err != nil {
			return client.ResponseItem{}, false, err
		}
		return item, true, nil
	default:
		log.Warn(log.CatAgent, "unknown output entry type, rendering as text", "type", e.Type)
		text := coerceText(e.Content)
		if text == "" {
			return client.ResponseItem{}, false, nil
		}
		return client.NewAssistantText(client.KindOutput, text), true, nil
	}
}

func renderCode(e OutputEntry) (string, error) {
	code, language := "", e.Language
	trimmed := bytes.TrimSpace(e.Content)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var obj struct {
			Code     json.RawMessage `json:"code"`
			Language string          `json:"language"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return "", err
		}
		code = coerceText(obj.Code)
		if obj.Language != "" {
			language = obj.Language
		}
	} else {
		code = coerceText(e.Content)
	}
	return "```" + language + "\n" + strings.TrimRight(code, "\n") + "\n```", nil
}

// RenderTable renders {headers, rows} as markdown table lines. It returns
// no lines when headers are absent or empty.
func RenderTable(raw json.RawMessage) ([]string, error) {
	var table struct {
		Headers []json.RawMessage   `json:"headers"`
		Rows    [][]json.RawMessage `json:"rows"`
	}
	if err := json.Unmarshal(raw, &table); err != nil {
		return nil, err
	}
	if len(table.Headers) == 0 {
		return nil, nil
	}

	cols := len(table.Headers)
	lines := make([]string, 0, len(table.Rows)+2)
	lines = append(lines, tableRow(table.Headers, cols))

	sep := make([]string, cols)
	for i := range sep {
		sep[i] = "---"
	}
	lines = append(lines, "| "+strings.Join(sep, " | ")+" |")

	for _, row := range table.Rows {
		lines = append(lines, tableRow(row, cols))
	}
	return lines, nil
}

func tableRow(cells []json.RawMessage, cols int) string {
	n := max(cols, len(cells))
	out := make([]string, n)
	for i := range out {
		if i < len(cells) {
			out[i] = strings.ReplaceAll(coerceText(cells[i]), "|", `\|`)
		}
	}
	return "| " + strings.Join(out, " | ") + " |"
}

func renderList(raw json.RawMessage) ([]string, error) {
	var list struct {
		Items   []json.RawMessage `json:"items"`
		Ordered bool              `json:"ordered"`
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(list.Items))
	for i, item := range list.Items {
		if list.Ordered {
			lines = append(lines, strconv.Itoa(i+1)+". "+coerceText(item))
		} else {
			lines = append(lines, "- "+coerceText(item))
		}
	}
	return lines, nil
}

func (n Normalizer) attachment(raw json.RawMessage) (client.ResponseItem, error) {
	var att struct {
		URL      string `json:"url"`
		Filename string `json:"filename"`
		MimeType string `json:"mime_type"`
		MimeAlt  string `json:"mimeType"`
	}
	if err := json.Unmarshal(raw, &att); err != nil {
		return client.ResponseItem{}, err
	}
	if att.URL == "" {
		return client.ResponseItem{}, errors.New("attachment has no url")
	}

	if att.Filename == "" {
		now := time.Now
		if n.Now != nil {
			now = n.Now
		}
		att.Filename = fmt.Sprintf("attachment-%d", now().UnixMilli())
	}
	mimeType := att.MimeType
	if mimeType == "" {
		mimeType = att.MimeAlt
	}
	if mimeType == "" {
		mimeType = DefaultMimeType
	}

	item := client.NewAssistantText(client.KindOutput, fmt.Sprintf("Attachment: %s (%s)", att.Filename, att.URL))
	item.Content = append(item.Content, client.ContentPart{
		Type:     client.PartFile,
		URL:      att.URL,
		Filename: att.Filename,
		MimeType: mimeType,
	})
	return item, nil
}

// coerceText renders a JSON value as text: strings verbatim, null as
// empty, anything else as compact JSON.
func coerceText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err == nil {
		return buf.String()
	}
	return string(trimmed)
}
