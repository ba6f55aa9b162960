// Package extract projects live host-document state into the plain data
// shapes sent to the UI and the chat endpoint. Nothing here mutates the
// document.
package extract

import (
	"fmt"
	"math"
	"strings"

	"github.com/kalambet/dscopilot/internal/design"
	"github.com/kalambet/dscopilot/internal/figma"
)

// Selection summarizes the current selection and page.
func Selection(doc figma.Document) design.SelectionInfo {
	sel := doc.Selection()
	info := design.SelectionInfo{
		Count: len(sel),
		Items: make([]design.SelectionItem, 0, len(sel)),
	}
	for _, n := range sel {
		item := design.SelectionItem{
			ID:     n.ID,
			Name:   n.Name,
			Type:   string(n.Type),
			X:      n.X,
			Y:      n.Y,
			Width:  n.Width,
			Height: n.Height,
		}
		if len(n.Properties) > 0 {
			item.Properties = make(map[string]any, len(n.Properties))
			for k, v := range n.Properties {
				item.Properties[k] = v
			}
		}
		info.Items = append(info.Items, item)
	}
	if page := doc.CurrentPage(); page != nil {
		info.Page = design.PageInfo{
			ID:         page.ID,
			Name:       page.Name,
			Type:       string(page.Type),
			ChildCount: len(page.Children),
		}
	}
	return info
}

// DesignSystem reads every local variable collection. Color values are
// normalized to uppercase #RRGGBB. Aliases are followed one hop only: an alias
// pointing at another alias is left unresolved and only AliasOf is set.
func DesignSystem(doc figma.Document) design.DesignSystemSnapshot {
	snap := design.DesignSystemSnapshot{
		Variables: design.Variables{
			Colors: design.ColorVariables{
				Collections: []design.ColorCollection{},
				Modes:       []design.Mode{},
			},
			Screens: []design.Screen{},
		},
	}
	seenModes := make(map[string]bool)

	for _, c := range doc.LocalVariableCollections() {
		colors := design.ColorCollection{ID: c.ID, Name: c.Name, Tokens: []design.ColorToken{}}
		for _, m := range c.Modes {
			colors.Modes = append(colors.Modes, design.Mode{ID: m.ID, Name: m.Name})
		}

		for _, id := range c.VariableIDs {
			v, ok := doc.VariableByID(id)
			if !ok {
				continue
			}
			switch {
			case v.ResolvedType == figma.VarColor:
				colors.Tokens = append(colors.Tokens, colorToken(doc, c, v))
			case isTypography(c, v):
				snap.Variables.Typography = append(snap.Variables.Typography, typographyToken(doc, c, v))
			}
		}

		if len(colors.Tokens) == 0 {
			continue
		}
		snap.Variables.Colors.Collections = append(snap.Variables.Colors.Collections, colors)
		for _, m := range colors.Modes {
			if !seenModes[m.ID] {
				seenModes[m.ID] = true
				snap.Variables.Colors.Modes = append(snap.Variables.Colors.Modes, m)
			}
		}
	}

	if page := doc.CurrentPage(); page != nil {
		for _, n := range page.Children {
			if n.Type != figma.TypeFrame {
				continue
			}
			snap.Variables.Screens = append(snap.Variables.Screens, design.Screen{
				ID: n.ID, Name: n.Name, Width: n.Width, Height: n.Height,
			})
		}
	}
	return snap
}

func colorToken(doc figma.Document, c *figma.VariableCollection, v *figma.Variable) design.ColorToken {
	tok := design.ColorToken{ID: v.ID, Name: v.Name, Values: make(map[string]string)}
	for _, m := range c.Modes {
		raw, ok := v.ValuesByMode[m.ID]
		if !ok {
			continue
		}
		switch val := raw.(type) {
		case figma.RGBA:
			tok.Values[m.Name] = Hex(val)
		case figma.Alias:
			target, ok := doc.VariableByID(val.ID)
			if !ok {
				continue
			}
			tok.AliasOf = target.Name
			if rgba, ok := aliasTargetValue(doc, target, m.ID).(figma.RGBA); ok {
				tok.Values[m.Name] = Hex(rgba)
			}
		}
	}
	return tok
}

// aliasTargetValue returns target's value for modeID, or for its own
// collection's default mode when target lives in a collection with other modes.
func aliasTargetValue(doc figma.Document, target *figma.Variable, modeID string) any {
	if v, ok := target.ValuesByMode[modeID]; ok {
		return v
	}
	for _, c := range doc.LocalVariableCollections() {
		if c.ID == target.CollectionID {
			return target.ValuesByMode[c.DefaultModeID]
		}
	}
	return nil
}

func isTypography(c *figma.VariableCollection, v *figma.Variable) bool {
	if v.ResolvedType != figma.VarFloat && v.ResolvedType != figma.VarString {
		return false
	}
	name := strings.ToLower(c.Name)
	return strings.Contains(name, "typo") || strings.Contains(name, "font") || strings.Contains(name, "text")
}

func typographyToken(doc figma.Document, c *figma.VariableCollection, v *figma.Variable) design.TypographyToken {
	tok := design.TypographyToken{ID: v.ID, Name: v.Name, Collection: c.Name, Values: make(map[string]any)}
	for _, m := range c.Modes {
		raw, ok := v.ValuesByMode[m.ID]
		if !ok {
			continue
		}
		if a, ok := raw.(figma.Alias); ok {
			target, ok := doc.VariableByID(a.ID)
			if !ok {
				continue
			}
			raw = aliasTargetValue(doc, target, m.ID)
			if _, still := raw.(figma.Alias); still || raw == nil {
				continue
			}
		}
		tok.Values[m.Name] = raw
	}
	return tok
}

// Hex formats c as an uppercase #RRGGBB string. Alpha is dropped.
func Hex(c figma.RGBA) string {
	return fmt.Sprintf("#%02X%02X%02X", channel(c.R), channel(c.G), channel(c.B))
}

func channel(v float64) int {
	return int(math.Round(math.Max(0, math.Min(1, v)) * 255))
}

// ParseHex parses #RGB, #RRGGBB or #RRGGBBAA (the leading # is optional)
// into an RGBA value.
func ParseHex(s string) (figma.RGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 && len(h) != 8 {
		return figma.RGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
	var r, g, b, a uint8 = 0, 0, 0, 255
	var err error
	if len(h) == 6 {
		_, err = fmt.Sscanf(h, "%02x%02x%02x", &r, &g, &b)
	} else {
		_, err = fmt.Sscanf(h, "%02x%02x%02x%02x", &r, &g, &b, &a)
	}
	if err != nil {
		return figma.RGBA{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return figma.RGBA{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255, A: float64(a) / 255}, nil
}
