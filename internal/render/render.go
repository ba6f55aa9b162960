// Package render maps parsed reply elements to terminal components.
package render

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kalambet/dscopilot/internal/chunk"
	"github.com/kalambet/dscopilot/internal/design"
	"github.com/kalambet/dscopilot/internal/protocol"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	hexStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)

	paragraphStyle = lipgloss.NewStyle()
)

// Component is one renderable piece of an assistant reply.
type Component interface {
	View() string
}

// Paragraph is plain reply text.
type Paragraph struct {
	Text string
}

func (p Paragraph) View() string {
	return paragraphStyle.Render(p.Text)
}

// ColorTable lists color tokens with a swatch per row.
type ColorTable struct {
	Info design.ColorInfo
}

func (c ColorTable) View() string {
	if len(c.Info.Colors) == 0 {
		return dimStyle.Render("No color tokens.")
	}

	nameWidth, collWidth := len("Token"), len("Collection")
	for _, r := range c.Info.Colors {
		nameWidth = max(nameWidth, len(r.Name))
		collWidth = max(collWidth, len(r.Collection+"/"+r.Mode))
	}

	var sb strings.Builder
	sb.WriteString(headerStyle.Render(fmt.Sprintf("   %-*s  %-*s  %s", nameWidth, "Token", collWidth, "Collection", "Hex")))
	for _, r := range c.Info.Colors {
		swatch := lipgloss.NewStyle().Background(lipgloss.Color(r.Hex)).Render("  ")
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "%s %s  %s  %s",
			swatch,
			nameStyle.Render(fmt.Sprintf("%-*s", nameWidth, r.Name)),
			dimStyle.Render(fmt.Sprintf("%-*s", collWidth, r.Collection+"/"+r.Mode)),
			hexStyle.Render(r.Hex),
		)
	}
	return sb.String()
}

// SelectionSummary describes the selected nodes.
type SelectionSummary struct {
	Info design.SelectionInfo
}

func (s SelectionSummary) View() string {
	if s.Info.Count == 0 {
		return dimStyle.Render("Nothing is selected.")
	}

	var sb strings.Builder
	label := "item"
	if s.Info.Count != 1 {
		label = "items"
	}
	sb.WriteString(headerStyle.Render(fmt.Sprintf("%d %s selected", s.Info.Count, label)))
	if s.Info.Page.Name != "" {
		sb.WriteString(dimStyle.Render(" on " + s.Info.Page.Name))
	}
	for _, it := range s.Info.Items {
		fmt.Fprintf(&sb, "\n  %s %s", nameStyle.Render(it.Name),
			dimStyle.Render(fmt.Sprintf("%s %.0fx%.0f at (%.0f, %.0f)", it.Type, it.Width, it.Height, it.X, it.Y)))
	}
	return sb.String()
}

// WeatherCard shows a displayWeather payload.
type WeatherCard struct {
	Info protocol.WeatherInfo
}

func (w WeatherCard) View() string {
	unit := w.Info.Unit
	if unit == "" {
		unit = "°C"
	}
	body := headerStyle.Render(w.Info.Location) + "\n" + fmt.Sprintf("%.0f%s", w.Info.Temperature, unit)
	if w.Info.Condition != "" {
		body += " " + dimStyle.Render(w.Info.Condition)
	}
	return cardStyle.Render(body)
}

// AutomatorCard shows a script and its action tree.
type AutomatorCard struct {
	Script design.AutomatorScript
}

func (a AutomatorCard) View() string {
	title := lipgloss.NewStyle().Bold(true)
	if a.Script.Color != "" {
		title = title.Foreground(lipgloss.Color(a.Script.Color))
	}

	var sb strings.Builder
	sb.WriteString(title.Render(a.Script.Name))
	if a.Script.Description != "" {
		sb.WriteString("\n" + dimStyle.Render(a.Script.Description))
	}
	writeActions(&sb, a.Script.Actions, 0)
	return cardStyle.Render(sb.String())
}

func writeActions(sb *strings.Builder, actions []design.AutomatorAction, depth int) {
	for _, a := range actions {
		title := a.Command.Title
		if title == "" {
			title = design.CommandTitle(a.Command.Name)
		}
		line := strings.Repeat("  ", depth) + "└ " + title
		if meta := formatMetadata(a.Command.Metadata); meta != "" {
			line += " " + dimStyle.Render(meta)
		}
		if !design.IsKnownCommand(a.Command.Name) {
			line += " " + dimStyle.Render("(unsupported)")
		}
		sb.WriteString("\n" + line)
		writeActions(sb, a.Actions, depth+1)
	}
}

func formatMetadata(m map[string]any) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, m[k])
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Components maps elements to components in order. Tool calls whose data
// does not decode are dropped.
func Components(elems []chunk.Element) []Component {
	out := make([]Component, 0, len(elems))
	for _, el := range elems {
		switch el.Kind {
		case chunk.KindText, chunk.KindLiteral:
			if strings.TrimSpace(el.Text) != "" {
				out = append(out, Paragraph{Text: el.Text})
			}
		case chunk.KindTool:
			if c, ok := toolComponent(el); ok {
				out = append(out, c)
			}
		}
	}
	return out
}

func toolComponent(el chunk.Element) (Component, bool) {
	switch el.Tool {
	case protocol.ToolGetColorInfo:
		var info design.ColorInfo
		if json.Unmarshal(el.Data, &info) != nil {
			return nil, false
		}
		return ColorTable{Info: info}, true
	case protocol.ToolGetSelectionInfo:
		var info design.SelectionInfo
		if json.Unmarshal(el.Data, &info) != nil {
			return nil, false
		}
		return SelectionSummary{Info: info}, true
	case protocol.ToolDisplayWeather:
		var info protocol.WeatherInfo
		if json.Unmarshal(el.Data, &info) != nil {
			return nil, false
		}
		return WeatherCard{Info: info}, true
	case protocol.ToolRunAutomator:
		s, err := design.DecodeScript(el.Data)
		if err != nil {
			return nil, false
		}
		return AutomatorCard{Script: s}, true
	}
	return nil, false
}

// Render parses content and renders every component, separated by blank
// lines.
func Render(content string) string {
	return View(Components(chunk.Parse(content)))
}

// View joins the views of cs.
func View(cs []Component) string {
	views := make([]string, len(cs))
	for i, c := range cs {
		views[i] = c.View()
	}
	return strings.Join(views, "\n\n")
}

// Scripts returns the scripts carried by the AutomatorCards in cs.
func Scripts(cs []Component) []design.AutomatorScript {
	var out []design.AutomatorScript
	for _, c := range cs {
		if a, ok := c.(AutomatorCard); ok {
			out = append(out, a.Script)
		}
	}
	return out
}
