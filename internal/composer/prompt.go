// Package composer turns a chat request into the provider request: history
// with provider roles plus a system instruction enriched with the caller's
// selection and color tokens.
package composer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kalambet/dscopilot/internal/design"
	"github.com/kalambet/dscopilot/internal/intent"
	"github.com/kalambet/dscopilot/internal/llm"
)

const defaultMaxContextTokens = 2000

// ErrEmptyMessage is returned when the last message has no content.
var ErrEmptyMessage = errors.New("last message content is empty")

// Input is the decoded body of a chat request.
type Input struct {
	Messages     []design.Message             `json:"messages"`
	Selection    *design.SelectionInfo        `json:"selection,omitempty"`
	DesignSystem *design.DesignSystemSnapshot `json:"designSystem,omitempty"`
}

// LastContent returns the trimmed content of the last message.
func (in Input) LastContent() string {
	if len(in.Messages) == 0 {
		return ""
	}
	return strings.TrimSpace(in.Messages[len(in.Messages)-1].Content)
}

// Composer assembles provider requests. Injected document context is capped
// at MaxContextTokens.
type Composer struct {
	MaxContextTokens int
	Model            string
}

// New creates a Composer with the given token budget for injected context.
// If maxContextTokens <= 0, the default (2000) is used.
func New(maxContextTokens int, model string) *Composer {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return &Composer{MaxContextTokens: maxContextTokens, Model: model}
}

// Compose builds the request for path. On the action path the last message
// is rewritten to ask for a bare Automator script.
func (c *Composer) Compose(in Input, path intent.Path) (llm.Request, error) {
	last := in.LastContent()
	if last == "" {
		return llm.Request{}, ErrEmptyMessage
	}

	history := make([]llm.Message, 0, len(in.Messages))
	for i, m := range in.Messages {
		content := m.Content
		if i == len(in.Messages)-1 {
			content = last
			if path == intent.PathAction {
				content = intent.ActionPrompt(last)
			}
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		history = append(history, llm.Message{Role: ProviderRole(m.Role), Content: content})
	}

	return llm.Request{
		Model:   c.Model,
		System:  c.systemInstruction(in),
		History: history,
	}, nil
}

// ProviderRole maps a chat role to a provider role. Everything that is not
// an assistant turn is sent as a user turn.
func ProviderRole(r design.Role) string {
	if r == design.RoleAssistant {
		return llm.RoleModel
	}
	return llm.RoleUser
}

func (c *Composer) systemInstruction(in Input) string {
	enrichment := c.buildEnrichment(in)
	if enrichment == "" {
		return intent.SystemInstruction
	}
	return intent.SystemInstruction + "\n\n---\n\n" + enrichment
}

// buildEnrichment lists the selection and the color tokens, dropping token
// entries once the budget is spent.
func (c *Composer) buildEnrichment(in Input) string {
	var sb strings.Builder

	if in.Selection != nil && in.Selection.Count > 0 {
		sb.WriteString("[Current Selection]\n")
		for _, it := range in.Selection.Items {
			fmt.Fprintf(&sb, "- %s (%s, %.0fx%.0f)\n", it.Name, it.Type, it.Width, it.Height)
		}
		if in.Selection.Page.Name != "" {
			fmt.Fprintf(&sb, "Page: %s\n", in.Selection.Page.Name)
		}
	}

	if in.DesignSystem == nil {
		return strings.TrimRight(sb.String(), "\n")
	}
	rows := design.ColorInfoFrom(in.DesignSystem).Colors
	if len(rows) == 0 {
		return strings.TrimRight(sb.String(), "\n")
	}

	header := "[Color Tokens]\n"
	if sb.Len() > 0 {
		header = "\n" + header
	}
	remaining := c.MaxContextTokens - EstimateTokens(sb.String()) - EstimateTokens(header)

	var entries []string
	for _, r := range rows {
		entry := formatColor(r)
		tokens := EstimateTokens(entry)
		if tokens > remaining {
			break
		}
		entries = append(entries, entry)
		remaining -= tokens
	}
	if len(entries) > 0 {
		sb.WriteString(header)
		for _, e := range entries {
			sb.WriteString(e)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatColor(r design.ColorRow) string {
	return fmt.Sprintf("- %s [%s/%s]: %s\n", r.Name, r.Collection, r.Mode, r.Hex)
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
