package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kalambet/dscopilot/internal/design"
)

// Plugin message types. The first three flow from the UI to the plugin, the
// rest from the plugin to the UI.
const (
	MsgGetSelection        = "GET_SELECTION"
	MsgUpdateDesignSystem  = "UPDATE_DESIGN_SYSTEM"
	MsgExecuteAutomator    = "EXECUTE_AUTOMATOR"
	MsgSelectionInfo       = "SELECTION_INFO"
	MsgSelectionChanged    = "SELECTION_CHANGED"
	MsgDesignSystemUpdated = "DESIGN_SYSTEM_UPDATED"
	MsgAutomatorComplete   = "AUTOMATOR_COMPLETE"
	MsgAutomatorError      = "AUTOMATOR_ERROR"
)

// PluginMessage is the envelope exchanged over the UI bridge. Only the fields
// relevant to Type are set.
type PluginMessage struct {
	Type         string                       `json:"type"`
	ID           string                       `json:"id,omitempty"`
	Script       *design.AutomatorScript      `json:"script,omitempty"`
	Selection    *design.SelectionInfo        `json:"selection,omitempty"`
	DesignSystem *design.DesignSystemSnapshot `json:"designSystem,omitempty"`
	Error        string                       `json:"error,omitempty"`
}

// FromUI reports whether t is a UI → plugin message type.
func FromUI(t string) bool {
	switch t {
	case MsgGetSelection, MsgUpdateDesignSystem, MsgExecuteAutomator:
		return true
	}
	return false
}

// FromPlugin reports whether t is a plugin → UI message type.
func FromPlugin(t string) bool {
	switch t {
	case MsgSelectionInfo, MsgSelectionChanged, MsgDesignSystemUpdated, MsgAutomatorComplete, MsgAutomatorError:
		return true
	}
	return false
}

// ErrInvalidScript marks a message whose envelope decoded but whose script
// did not.
var ErrInvalidScript = errors.New("invalid automator script")

// DecodePluginMessage decodes data and checks that it carries a type. The
// script of an EXECUTE_AUTOMATOR message is decoded leniently. When only the
// script is bad the envelope is still returned, with an ErrInvalidScript
// error, so the sender can be answered.
func DecodePluginMessage(data []byte) (PluginMessage, error) {
	var env struct {
		PluginMessage
		Script json.RawMessage `json:"script,omitempty"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return PluginMessage{}, fmt.Errorf("decoding plugin message: %w", err)
	}
	msg := env.PluginMessage
	if msg.Type == "" {
		return PluginMessage{}, fmt.Errorf("plugin message has no type")
	}
	if len(env.Script) > 0 && string(env.Script) != "null" {
		s, err := design.DecodeScript(env.Script)
		if err != nil {
			return msg, fmt.Errorf("%w: %v", ErrInvalidScript, err)
		}
		msg.Script = &s
	}
	return msg, nil
}

// Rejection builds the AUTOMATOR_ERROR reply for an EXECUTE_AUTOMATOR whose
// script failed to decode. ok is false for any other decode failure.
func Rejection(msg PluginMessage, err error) (reply PluginMessage, ok bool) {
	if msg.Type != MsgExecuteAutomator || !errors.Is(err, ErrInvalidScript) {
		return PluginMessage{}, false
	}
	return PluginMessage{Type: MsgAutomatorError, ID: msg.ID, Error: err.Error()}, true
}
