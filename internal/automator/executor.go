// Package automator executes Automator scripts against a host document.
package automator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/dscopilot/internal/design"
	"github.com/kalambet/dscopilot/internal/extract"
	"github.com/kalambet/dscopilot/internal/figma"
)

const (
	cloneGap   = 100
	variantGap = 20
)

// Result counts what a run did. Skipped covers unmet preconditions and
// unknown command names.
type Result struct {
	Applied int
	Skipped int
}

// Executor applies script actions depth first, parent before children.
// A parent whose preconditions are unmet is skipped and its children still
// run. An error from the document aborts the remaining actions; mutations
// already applied stay in place.
type Executor struct {
	logger *slog.Logger
}

func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{logger: logger}
}

// Run executes every action of script. A panic raised by the document is
// converted to an error.
func (e *Executor) Run(ctx context.Context, doc figma.Document, script design.AutomatorScript) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("automator %s panicked: %v", script.ID, r)
		}
	}()

	for _, a := range script.Actions {
		if err := e.execute(ctx, doc, a, &res); err != nil {
			return res, err
		}
	}
	e.logger.Debug("automator finished", "script_id", script.ID, "applied", res.Applied, "skipped", res.Skipped)
	return res, nil
}

func (e *Executor) execute(ctx context.Context, doc figma.Document, a design.AutomatorAction, res *Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	applied, err := e.apply(doc, a.Command)
	if err != nil {
		return fmt.Errorf("%s (%s): %w", a.Command.Name, a.ID, err)
	}
	if applied {
		res.Applied++
	} else {
		res.Skipped++
	}

	for _, child := range a.Actions {
		if err := e.execute(ctx, doc, child, res); err != nil {
			return err
		}
	}
	return nil
}

// apply runs one command. It returns false when the command was skipped.
func (e *Executor) apply(doc figma.Document, cmd design.Command) (bool, error) {
	switch cmd.Name {
	case design.CmdCloneFrame:
		return e.cloneFrame(doc, cmd)
	case design.CmdCreateVariant:
		return e.createVariant(doc, cmd)
	case design.CmdConvertToComponent:
		return e.convertToComponent(doc, cmd)
	case design.CmdSetInstanceProperty:
		return e.setInstanceProperty(doc, cmd)
	case design.CmdSetVariable:
		return e.setVariable(doc, cmd)
	}
	e.logger.Info("skipping unknown automator command", "command", cmd.Name)
	return false, nil
}

func (e *Executor) skip(cmd design.Command, reason string) (bool, error) {
	e.logger.Info("automator command skipped", "command", cmd.Name, "reason", reason)
	return false, nil
}

func parentOf(doc figma.Document, n *figma.Node) *figma.Node {
	if n.Parent != nil {
		return n.Parent
	}
	return doc.CurrentPage()
}

func (e *Executor) cloneFrame(doc figma.Document, cmd design.Command) (bool, error) {
	sel := doc.Selection()
	if len(sel) == 0 {
		return e.skip(cmd, "empty selection")
	}
	orig := sel[0]
	if !orig.Clonable() {
		return e.skip(cmd, "first selected node is not clonable")
	}

	clone, err := doc.Clone(orig)
	if err != nil {
		return false, err
	}
	clone.X = orig.X + orig.Width + cloneGap
	clone.Y = orig.Y
	if name := metaString(cmd.Metadata, "name", "newName"); name != "" {
		clone.Name = name
	}
	if err := doc.AppendChild(parentOf(doc, orig), clone); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Executor) createVariant(doc figma.Document, cmd design.Command) (bool, error) {
	sel := doc.Selection()
	if len(sel) == 0 {
		return e.skip(cmd, "empty selection")
	}
	node := sel[0]

	if node.Type != figma.TypeComponent {
		return e.wrapInComponent(doc, node, cmd)
	}

	variant, err := doc.Clone(node)
	if err != nil {
		return false, err
	}
	prop, _ := splitVariantName(node.Name)
	value := metaString(cmd.Metadata, "variant", "value", "variantName")
	if value == "" {
		value = "Variant"
	}
	variant.Name = prop + "=" + value
	variant.X = node.X + node.Width + variantGap
	variant.Y = node.Y

	// Already part of a set: the new variant joins it as a sibling.
	if node.Parent != nil && node.Parent.Type == figma.TypeComponentSet {
		if err := doc.AppendChild(node.Parent, variant); err != nil {
			return false, err
		}
		return true, nil
	}

	parent := parentOf(doc, node)
	if err := doc.AppendChild(parent, variant); err != nil {
		return false, err
	}
	set, err := doc.CombineAsVariants([]*figma.Node{node, variant}, parent)
	if err != nil {
		return false, err
	}
	set.Name = setNameFor(node.Name)
	return true, nil
}

// wrapInComponent creates a standalone component holding a clone of node,
// placed next to it.
func (e *Executor) wrapInComponent(doc figma.Document, node *figma.Node, cmd design.Command) (bool, error) {
	if !node.Clonable() {
		return e.skip(cmd, "first selected node is not clonable")
	}
	clone, err := doc.Clone(node)
	if err != nil {
		return false, err
	}
	comp := doc.CreateComponent()
	comp.Name = node.Name
	comp.X = node.X + node.Width + cloneGap
	comp.Y = node.Y
	comp.Width = node.Width
	comp.Height = node.Height

	if err := doc.AppendChild(parentOf(doc, node), comp); err != nil {
		return false, err
	}
	clone.X, clone.Y = 0, 0
	if err := doc.AppendChild(comp, clone); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Executor) convertToComponent(doc figma.Document, cmd design.Command) (bool, error) {
	sel := doc.Selection()
	if len(sel) == 0 {
		return e.skip(cmd, "empty selection")
	}
	first := sel[0]

	comp := doc.CreateComponent()
	comp.Name = first.Name
	if name := metaString(cmd.Metadata, "name", "componentName"); name != "" {
		comp.Name = name
	}
	comp.X, comp.Y = first.X, first.Y
	comp.Width, comp.Height = first.Width, first.Height

	if err := doc.AppendChild(parentOf(doc, first), comp); err != nil {
		return false, err
	}
	for _, n := range sel {
		n.X -= comp.X
		n.Y -= comp.Y
		if err := doc.AppendChild(comp, n); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (e *Executor) setInstanceProperty(doc figma.Document, cmd design.Command) (bool, error) {
	prop := metaString(cmd.Metadata, "property", "propertyName", "name")
	if prop == "" {
		return e.skip(cmd, "no property name")
	}
	value, ok := cmd.Metadata["value"]
	if !ok {
		return e.skip(cmd, "no property value")
	}

	applied := false
	for _, n := range doc.Selection() {
		if !n.SupportsProperties() {
			e.logger.Info("node does not support properties", "node", n.ID, "type", n.Type)
			continue
		}
		if err := doc.SetProperties(n, map[string]any{prop: value}); err != nil {
			return false, err
		}
		applied = true
	}
	if !applied {
		return e.skip(cmd, "no selected node supports properties")
	}
	return true, nil
}

func (e *Executor) setVariable(doc figma.Document, cmd design.Command) (bool, error) {
	sel := doc.Selection()
	if len(sel) == 0 {
		return e.skip(cmd, "empty selection")
	}
	key := metaString(cmd.Metadata, "key", "variable", "name")
	if key == "" {
		return e.skip(cmd, "no variable key")
	}

	collections := doc.LocalVariableCollections()
	if len(collections) == 0 {
		return e.skip(cmd, "no local variable collections")
	}
	coll := collections[0]

	var target *figma.Variable
	for _, id := range coll.VariableIDs {
		if v, ok := doc.VariableByID(id); ok && v.Name == key {
			target = v
			break
		}
	}
	if target == nil {
		return e.skip(cmd, fmt.Sprintf("variable %q not found", key))
	}

	if raw, ok := cmd.Metadata["value"]; ok {
		value, err := convertValue(target.ResolvedType, raw)
		if err != nil {
			return e.skip(cmd, err.Error())
		}
		if err := doc.SetVariableValue(target, coll.DefaultModeID, value); err != nil {
			return false, err
		}
	}

	field := metaString(cmd.Metadata, "field")
	if field == "" {
		field = "fills"
	}
	for _, n := range sel {
		if n.Type != figma.TypeInstance {
			continue
		}
		if err := doc.BindVariable(n, field, target); err != nil {
			return false, err
		}
	}
	return true, nil
}

func convertValue(resolvedType string, raw any) (any, error) {
	switch resolvedType {
	case figma.VarColor:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("color value must be a hex string, got %T", raw)
		}
		return extract.ParseHex(s)
	case figma.VarFloat:
		f, ok := raw.(float64)
		if !ok {
			return nil, fmt.Errorf("float value expected, got %T", raw)
		}
		return f, nil
	case figma.VarString:
		return fmt.Sprint(raw), nil
	case figma.VarBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("boolean value expected, got %T", raw)
		}
		return b, nil
	}
	return raw, nil
}

func metaString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// splitVariantName splits "State=Default" into ("State", "Default"). Names
// without '=' yield ("Property 1", name).
func splitVariantName(name string) (string, string) {
	prop, value, ok := strings.Cut(name, "=")
	if !ok {
		return "Property 1", name
	}
	return strings.TrimSpace(prop), strings.TrimSpace(value)
}

func setNameFor(componentName string) string {
	prop, value := splitVariantName(componentName)
	if prop == "Property 1" {
		return value
	}
	return prop
}
