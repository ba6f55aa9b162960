// Package design holds the request-scoped values exchanged between the chat
// endpoint, the web UI and the host plugin: conversation messages, selection
// summaries, design-system snapshots and Automator scripts.
package design

import "time"

// Role is the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one turn of the conversation. Order is significant and the
// whole history is replayed to the provider on every turn.
type Message struct {
	ID      string `json:"id,omitempty"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SelectionInfo summarizes the current selection of the host document.
type SelectionInfo struct {
	Count int             `json:"count"`
	Items []SelectionItem `json:"items"`
	Page  PageInfo        `json:"page"`
}

type SelectionItem struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	X          float64        `json:"x"`
	Y          float64        `json:"y"`
	Width      float64        `json:"width"`
	Height     float64        `json:"height"`
	Properties map[string]any `json:"properties,omitempty"`
}

type PageInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	ChildCount int    `json:"childCount"`
}

// DesignSystemSnapshot is a read-only projection of the document's variable
// collections. It is rebuilt on demand and never cached.
type DesignSystemSnapshot struct {
	Variables Variables `json:"variables"`
}

type Variables struct {
	Colors     ColorVariables    `json:"colors"`
	Typography []TypographyToken `json:"typography,omitempty"`
	Screens    []Screen          `json:"screens"`
}

type ColorVariables struct {
	Collections []ColorCollection `json:"collections"`
	Modes       []Mode            `json:"modes"`
}

type Mode struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ColorCollection struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Modes  []Mode       `json:"modes"`
	Tokens []ColorToken `json:"tokens"`
}

// ColorToken is a color variable. Values maps mode name to an uppercase
// #RRGGBB string. AliasOf names the referenced variable when the value in
// some mode is an alias.
type ColorToken struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Values  map[string]string `json:"values"`
	AliasOf string            `json:"aliasOf,omitempty"`
}

type TypographyToken struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Collection string         `json:"collection"`
	Values     map[string]any `json:"values"`
}

// Screen is a top-level frame on the current page.
type Screen struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ColorInfo is the payload of a getColorInfo tool call: the snapshot's color
// tokens flattened to one row per token and mode.
type ColorInfo struct {
	Colors []ColorRow `json:"colors"`
}

type ColorRow struct {
	Name       string `json:"name"`
	Collection string `json:"collection"`
	Mode       string `json:"mode"`
	Hex        string `json:"hex"`
}

// ColorInfoFrom flattens the color collections of snap.
func ColorInfoFrom(snap *DesignSystemSnapshot) ColorInfo {
	info := ColorInfo{Colors: []ColorRow{}}
	if snap == nil {
		return info
	}
	for _, c := range snap.Variables.Colors.Collections {
		for _, tok := range c.Tokens {
			for _, m := range c.Modes {
				hex, ok := tok.Values[m.Name]
				if !ok {
					continue
				}
				info.Colors = append(info.Colors, ColorRow{
					Name:       tok.Name,
					Collection: c.Name,
					Mode:       m.Name,
					Hex:        hex,
				})
			}
		}
	}
	return info
}

// AutomatorScript is a declarative tree of document mutations.
type AutomatorScript struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Color       string            `json:"color"`
	Actions     []AutomatorAction `json:"actions"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// AutomatorAction runs Command and then each of Actions, depth first.
type AutomatorAction struct {
	ID      string            `json:"id"`
	Command Command           `json:"command"`
	Actions []AutomatorAction `json:"actions"`
}

type Command struct {
	Name        string         `json:"name"`
	Metadata    map[string]any `json:"metadata"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
}

// Recognized command names.
const (
	CmdCloneFrame          = "cloneFrame"
	CmdCreateVariant       = "createVariant"
	CmdConvertToComponent  = "convertToComponent"
	CmdSetInstanceProperty = "setInstanceProperty"
	CmdSetVariable         = "setVariable"
)

var commandTitles = map[string]string{
	CmdCloneFrame:          "Clone Frame",
	CmdCreateVariant:       "Create Variant",
	CmdConvertToComponent:  "Convert to Component",
	CmdSetInstanceProperty: "Set Instance Property",
	CmdSetVariable:         "Set Variable",
}

// IsKnownCommand reports whether name is one of the five command identifiers.
func IsKnownCommand(name string) bool {
	_, ok := commandTitles[name]
	return ok
}

// CommandTitle returns the display title for a known command, or name itself.
func CommandTitle(name string) string {
	if t, ok := commandTitles[name]; ok {
		return t
	}
	return name
}

// Depth returns the nesting depth of the action tree (0 for no actions).
func Depth(actions []AutomatorAction) int {
	deepest := 0
	for _, a := range actions {
		if d := 1 + Depth(a.Actions); d > deepest {
			deepest = d
		}
	}
	return deepest
}
