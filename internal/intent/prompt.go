package intent

import (
	"fmt"
	"strings"
)

// SystemInstruction describes the assistant and the Automator schema. It is
// sent as the provider's system instruction on every request.
const SystemInstruction = `You are Design System Copilot, an assistant embedded in a design tool. You help designers understand their design system (color tokens, typography, screens) and automate repetitive edits.

When the user asks you to change the document, you answer with an Automator script: a JSON object of this shape

{
  "name": "short title",
  "description": "what the script does",
  "color": "#RRGGBB",
  "actions": [
    {
      "id": "unique id",
      "command": {"name": "<command>", "metadata": {...}},
      "actions": [ nested actions run after their parent ]
    }
  ]
}

Commands:
- "cloneFrame": duplicate the first selected frame next to it. metadata: {"name": optional new name}
- "createVariant": add a variant to the selected component. metadata: {"variant": value for the variant property}
- "convertToComponent": turn the selection into a component. metadata: {"name": optional component name}
- "setInstanceProperty": set a property on selected instances. metadata: {"property": name, "value": value}
- "setVariable": set a variable value and bind it to selected instances. metadata: {"key": variable name, "value": new value, "field": optional bound field}

Otherwise answer concisely in plain prose. Refer to tokens by name and give colors as hex.`

const actionPromptTemplate = `Produce an Automator script for the following request. Respond with ONLY the JSON object, no prose and no markdown fences.

Request: %s`

// ActionPrompt wraps the user's request for the action path.
func ActionPrompt(request string) string {
	return fmt.Sprintf(actionPromptTemplate, strings.TrimSpace(request))
}

// Fixed narrative text around informational replies, keyed by path. Empty
// strings are not emitted.
var (
	prefixes = map[Path]string{
		PathSelection: "Here is what you have selected.",
		PathColors:    "Here are the color tokens in your design system.",
	}
	suffixes = map[Path]string{
		PathSelection: "Ask me to clone or convert it and I will build an Automator for you.",
	}
)

// Prefix returns the text emitted before the model's reply on path p.
func Prefix(p Path) string { return prefixes[p] }

// Suffix returns the text emitted after the model's reply on path p.
func Suffix(p Path) string { return suffixes[p] }
