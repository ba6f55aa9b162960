package design

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultScriptName  = "Generated Automator"
	defaultScriptColor = "#0D99FF"
)

// ErrNoActions is returned by DecodeScript when the value has no actions array.
var ErrNoActions = errors.New("script has no actions")

// rawScript is the lenient wire form of a script as models tend to emit it:
// createdAt may be a string, a number or missing, and a command may be a bare
// string instead of an object.
type rawScript struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Color       string          `json:"color"`
	Actions     []rawAction     `json:"actions"`
	CreatedAt   json.RawMessage `json:"createdAt"`
}

type rawAction struct {
	ID      string      `json:"id"`
	Command rawCommand  `json:"command"`
	Actions []rawAction `json:"actions"`
}

type rawCommand Command

func (c *rawCommand) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*c = rawCommand{Name: name}
		return nil
	}
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return err
	}
	*c = rawCommand(cmd)
	return nil
}

// DecodeScript decodes data as an AutomatorScript. The value must be a JSON
// object with an "actions" array; everything else is optional.
func DecodeScript(data []byte) (AutomatorScript, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return AutomatorScript{}, fmt.Errorf("decoding script: %w", err)
	}
	if a, ok := fields["actions"]; !ok || len(a) == 0 || a[0] != '[' {
		return AutomatorScript{}, ErrNoActions
	}

	var raw rawScript
	if err := json.Unmarshal(data, &raw); err != nil {
		return AutomatorScript{}, fmt.Errorf("decoding script: %w", err)
	}

	return AutomatorScript{
		ID:          raw.ID,
		Name:        raw.Name,
		Description: raw.Description,
		Color:       raw.Color,
		Actions:     convertActions(raw.Actions),
		CreatedAt:   parseCreatedAt(raw.CreatedAt),
	}, nil
}

func convertActions(in []rawAction) []AutomatorAction {
	out := make([]AutomatorAction, 0, len(in))
	for _, a := range in {
		out = append(out, AutomatorAction{
			ID:      a.ID,
			Command: Command(a.Command),
			Actions: convertActions(a.Actions),
		})
	}
	return out
}

func parseCreatedAt(raw json.RawMessage) time.Time {
	if len(raw) == 0 {
		return time.Time{}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
		return time.Time{}
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC()
	}
	return time.Time{}
}

// Sanitize returns a copy of s with ids, defaults and timestamps filled in.
// Actions without a command name are dropped; unknown command names are kept
// and left for the executor to skip.
func Sanitize(s AutomatorScript, now time.Time) AutomatorScript {
	out := s
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	out.Name = strings.TrimSpace(out.Name)
	if out.Name == "" {
		out.Name = defaultScriptName
	}
	if out.Color == "" {
		out.Color = defaultScriptColor
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = now.UTC()
	}
	out.Actions = sanitizeActions(s.Actions)
	return out
}

func sanitizeActions(in []AutomatorAction) []AutomatorAction {
	out := make([]AutomatorAction, 0, len(in))
	for _, a := range in {
		name := strings.TrimSpace(a.Command.Name)
		if name == "" {
			continue
		}
		cmd := a.Command
		cmd.Name = name
		if cmd.Metadata == nil {
			cmd.Metadata = map[string]any{}
		}
		if cmd.Title == "" {
			cmd.Title = CommandTitle(name)
		}
		id := a.ID
		if id == "" {
			id = uuid.New().String()
		}
		out = append(out, AutomatorAction{
			ID:      id,
			Command: cmd,
			Actions: sanitizeActions(a.Actions),
		})
	}
	return out
}

// DefaultScript is substituted when a generated script cannot be recovered:
// a single cloneFrame action.
func DefaultScript(now time.Time) AutomatorScript {
	return Sanitize(AutomatorScript{
		Name:        "Clone Frame",
		Description: "Clones the selected frame next to the original.",
		Actions: []AutomatorAction{{
			Command: Command{
				Name:        CmdCloneFrame,
				Description: "Clone the first selected frame.",
			},
		}},
	}, now)
}
