// Package intent classifies chat messages with keyword heuristics and holds
// the prompts sent to the model for each path.
package intent

import "strings"

// Path is the response-shaping path a message takes.
type Path string

const (
	PathAction    Path = "action"
	PathSelection Path = "selection"
	PathColors    Path = "colors"
	PathChat      Path = "chat"
)

// Flags records which keyword groups matched.
type Flags struct {
	Action    bool
	Selection bool
	Colors    bool
}

var actionKeywords = []string{
	"clone",
	"duplicate",
	"create",
	"convert",
	"make",
	"set",
	"variant",
	"automat",
	"bind",
}

var selectionKeywords = []string{
	"select",
}

var colorKeywords = []string{
	"color",
	"colour",
	"palette",
	"token",
}

// Classify lower-cases msg and tests it for keyword substrings. It is a best
// effort heuristic: "settings" matches "set" and "unselected" matches
// "select".
func Classify(msg string) Flags {
	lower := strings.ToLower(msg)
	return Flags{
		Action:    containsAny(lower, actionKeywords),
		Selection: containsAny(lower, selectionKeywords),
		Colors:    containsAny(lower, colorKeywords),
	}
}

// Path picks the response path. Selection wins over everything, so any
// message mentioning "select" gets the selection summary; Action comes next,
// then Colors.
func (f Flags) Path() Path {
	switch {
	case f.Selection:
		return PathSelection
	case f.Action:
		return PathAction
	case f.Colors:
		return PathColors
	}
	return PathChat
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
