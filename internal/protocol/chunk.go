// Package protocol defines the wire units shared by the chat endpoint, its
// clients and the host plugin bridge.
package protocol

import (
	"encoding/json"
	"io"
)

// Chunk types.
const (
	ChunkText     = "text"
	ChunkToolCall = "tool-call"
)

// Tool names carried by tool-call chunks. Consumers treat any other name as a
// no-op.
const (
	ToolGetColorInfo     = "getColorInfo"
	ToolGetSelectionInfo = "getSelectionInfo"
	ToolDisplayWeather   = "displayWeather"
	ToolRunAutomator     = "runAutomator"
)

// KnownTool reports whether name belongs to the closed tool set.
func KnownTool(name string) bool {
	switch name {
	case ToolGetColorInfo, ToolGetSelectionInfo, ToolDisplayWeather, ToolRunAutomator:
		return true
	}
	return false
}

// Chunk is one line of a chat reply body.
type Chunk struct {
	Type    string          `json:"type"`
	Content string          `json:"content,omitempty"`
	Name    string          `json:"name,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// TextChunk returns a text chunk carrying s.
func TextChunk(s string) Chunk {
	return Chunk{Type: ChunkText, Content: s}
}

// ToolCallChunk marshals data and wraps it in a tool-call chunk.
func ToolCallChunk(name string, data any) (Chunk, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Chunk{}, err
	}
	return Chunk{Type: ChunkToolCall, Name: name, Data: raw}, nil
}

// Encoder writes chunks as newline-delimited JSON.
type Encoder struct {
	w io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes c followed by a newline.
func (e *Encoder) Encode(c Chunk) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = e.w.Write(b)
	return err
}

// WeatherInfo is the payload of a displayWeather tool call.
type WeatherInfo struct {
	Location    string  `json:"location"`
	Temperature float64 `json:"temperature"`
	Unit        string  `json:"unit,omitempty"`
	Condition   string  `json:"condition,omitempty"`
}
