// Package chunk decodes the accumulated body of a chat reply into renderable
// elements. Decoding is best effort and never fails.
package chunk

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kalambet/dscopilot/internal/design"
	"github.com/kalambet/dscopilot/internal/protocol"
)

// Element kinds.
const (
	// KindText is model text carried by text chunks. Adjacent text chunks
	// are concatenated.
	KindText = "text"
	// KindLiteral is a run of lines that did not decode as chunks, joined
	// with newlines.
	KindLiteral = "literal"
	// KindTool is a tool-call with a known tool name.
	KindTool = "tool"
)

// Element is one renderable unit of a reply.
type Element struct {
	Kind string
	Text string
	Tool string
	Data json.RawMessage
}

// Parse decodes content. The whole content is first tried as a single chunk,
// then each non-blank line is decoded on its own. Lines that are not chunks
// become literal text in their original order, untrimmed, with blank lines
// between them preserved. Tool calls naming an unknown
// tool and chunks of unknown type produce no element.
func Parse(content string) []Element {
	if c, ok := decodeChunk(strings.TrimSpace(content)); ok {
		var out []Element
		return appendChunk(out, c)
	}

	var out []Element
	blanks := 0
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSuffix(line, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			blanks++
			continue
		}
		if c, ok := decodeChunk(trimmed); ok {
			out = appendChunk(out, c)
		} else {
			out = appendLiteral(out, line, blanks)
		}
		blanks = 0
	}
	return out
}

// decodeChunk reports whether s is a JSON object with a type field.
func decodeChunk(s string) (protocol.Chunk, bool) {
	if !strings.HasPrefix(s, "{") {
		return protocol.Chunk{}, false
	}
	var c protocol.Chunk
	if err := json.Unmarshal([]byte(s), &c); err != nil || c.Type == "" {
		return protocol.Chunk{}, false
	}
	return c, true
}

func appendChunk(out []Element, c protocol.Chunk) []Element {
	switch c.Type {
	case protocol.ChunkText:
		if c.Content == "" {
			return out
		}
		if n := len(out); n > 0 && out[n-1].Kind == KindText {
			out[n-1].Text += c.Content
			return out
		}
		return append(out, Element{Kind: KindText, Text: c.Content})
	case protocol.ChunkToolCall:
		if !protocol.KnownTool(c.Name) {
			return out
		}
		return append(out, Element{Kind: KindTool, Tool: c.Name, Data: c.Data})
	}
	return out
}

// appendLiteral adds line verbatim. Blank lines directly before it are kept
// when it continues a literal run.
func appendLiteral(out []Element, line string, blanks int) []Element {
	if n := len(out); n > 0 && out[n-1].Kind == KindLiteral {
		out[n-1].Text += strings.Repeat("\n", blanks+1) + line
		return out
	}
	return append(out, Element{Kind: KindLiteral, Text: line})
}

var fencedBlock = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// ParseScript looks for an Automator script in content. It tries, in order:
// the whole content as a script, a runAutomator tool call in the content,
// the first fenced code block, and the first balanced {...} span. Each
// candidate is tried once. The returned script is not sanitized.
func ParseScript(content string) (design.AutomatorScript, bool) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return design.AutomatorScript{}, false
	}

	if s, err := design.DecodeScript([]byte(trimmed)); err == nil {
		return s, true
	}

	for _, el := range Parse(content) {
		if el.Kind == KindTool && el.Tool == protocol.ToolRunAutomator && len(el.Data) > 0 {
			if s, err := design.DecodeScript(el.Data); err == nil {
				return s, true
			}
			break
		}
	}

	if m := fencedBlock.FindStringSubmatch(content); m != nil {
		if s, err := design.DecodeScript([]byte(strings.TrimSpace(m[1]))); err == nil {
			return s, true
		}
	}

	if obj := ExtractObject(content); obj != "" {
		if s, err := design.DecodeScript([]byte(obj)); err == nil {
			return s, true
		}
	}
	return design.AutomatorScript{}, false
}

// ExtractObject returns the first balanced {...} span of text, ignoring
// braces inside JSON strings. It returns "" when no balanced span exists.
func ExtractObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		ch := text[i]

		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch ch {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
