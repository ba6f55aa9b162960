package figma

import (
	"fmt"
	"slices"
)

// MemoryDocument is an in-memory Document. It backs the demo host and tests.
type MemoryDocument struct {
	page        *Node
	nodes       map[string]*Node
	selection   []string
	collections []*VariableCollection
	variables   map[string]*Variable
	nextID      int
}

// NewMemoryDocument returns an empty document with a single page.
func NewMemoryDocument(pageName string) *MemoryDocument {
	d := &MemoryDocument{
		nodes:     make(map[string]*Node),
		variables: make(map[string]*Variable),
	}
	d.page = &Node{ID: d.newID(), Name: pageName, Type: TypePage}
	d.nodes[d.page.ID] = d.page
	return d
}

func (d *MemoryDocument) newID() string {
	d.nextID++
	return fmt.Sprintf("%d:%d", 1+d.nextID/1000, d.nextID%1000)
}

// AddNode attaches n under parent (the page when parent is nil) and assigns
// an id if n has none.
func (d *MemoryDocument) AddNode(parent *Node, n *Node) *Node {
	if parent == nil {
		parent = d.page
	}
	if n.ID == "" {
		n.ID = d.newID()
	}
	d.nodes[n.ID] = n
	n.Parent = parent
	parent.Children = append(parent.Children, n)
	return n
}

// Node returns the node with the given id.
func (d *MemoryDocument) Node(id string) (*Node, bool) {
	n, ok := d.nodes[id]
	return n, ok
}

// Select replaces the selection. Unknown ids are ignored.
func (d *MemoryDocument) Select(ids ...string) {
	d.selection = d.selection[:0]
	for _, id := range ids {
		if _, ok := d.nodes[id]; ok {
			d.selection = append(d.selection, id)
		}
	}
}

// AddCollection creates a local variable collection. The first mode is the
// default mode.
func (d *MemoryDocument) AddCollection(name string, modeNames ...string) *VariableCollection {
	c := &VariableCollection{ID: "VariableCollectionId:" + d.newID(), Name: name}
	for _, m := range modeNames {
		c.Modes = append(c.Modes, Mode{ID: d.newID(), Name: m})
	}
	if len(c.Modes) > 0 {
		c.DefaultModeID = c.Modes[0].ID
	}
	d.collections = append(d.collections, c)
	return c
}

// AddVariable creates a variable in c. values are given in mode order.
func (d *MemoryDocument) AddVariable(c *VariableCollection, name, resolvedType string, values ...any) *Variable {
	v := &Variable{
		ID:           "VariableID:" + d.newID(),
		Name:         name,
		CollectionID: c.ID,
		ResolvedType: resolvedType,
		ValuesByMode: make(map[string]any),
	}
	for i, val := range values {
		if i < len(c.Modes) {
			v.ValuesByMode[c.Modes[i].ID] = val
		}
	}
	d.variables[v.ID] = v
	c.VariableIDs = append(c.VariableIDs, v.ID)
	return v
}

func (d *MemoryDocument) Selection() []*Node {
	out := make([]*Node, 0, len(d.selection))
	for _, id := range d.selection {
		if n, ok := d.nodes[id]; ok {
			out = append(out, n)
		}
	}
	return out
}

func (d *MemoryDocument) CurrentPage() *Node {
	return d.page
}

func (d *MemoryDocument) LocalVariableCollections() []*VariableCollection {
	return d.collections
}

func (d *MemoryDocument) VariableByID(id string) (*Variable, bool) {
	v, ok := d.variables[id]
	return v, ok
}

func (d *MemoryDocument) Clone(n *Node) (*Node, error) {
	if !n.Clonable() {
		return nil, ErrNotClonable
	}
	return d.cloneTree(n), nil
}

func (d *MemoryDocument) cloneTree(n *Node) *Node {
	c := &Node{
		ID:     d.newID(),
		Name:   n.Name,
		Type:   n.Type,
		X:      n.X,
		Y:      n.Y,
		Width:  n.Width,
		Height: n.Height,
	}
	if n.Properties != nil {
		c.Properties = make(map[string]any, len(n.Properties))
		for k, v := range n.Properties {
			c.Properties[k] = v
		}
	}
	if n.BoundVariables != nil {
		c.BoundVariables = make(map[string]string, len(n.BoundVariables))
		for k, v := range n.BoundVariables {
			c.BoundVariables[k] = v
		}
	}
	d.nodes[c.ID] = c
	for _, child := range n.Children {
		cc := d.cloneTree(child)
		cc.Parent = c
		c.Children = append(c.Children, cc)
	}
	return c
}

func (d *MemoryDocument) CreateComponent() *Node {
	return d.AddNode(d.page, &Node{Name: "Component", Type: TypeComponent, Width: 100, Height: 100})
}

func (d *MemoryDocument) CombineAsVariants(components []*Node, parent *Node) (*Node, error) {
	if len(components) == 0 {
		return nil, fmt.Errorf("combine as variants: no components")
	}
	for _, c := range components {
		if c.Type != TypeComponent {
			return nil, fmt.Errorf("combine as variants: %s is %s, not a component", c.ID, c.Type)
		}
	}
	if parent == nil {
		parent = d.page
	}
	set := d.AddNode(parent, &Node{Name: "Component Set", Type: TypeComponentSet})
	minX, minY := components[0].X, components[0].Y
	for _, c := range components {
		minX = min(minX, c.X)
		minY = min(minY, c.Y)
	}
	set.X, set.Y = minX, minY
	for _, c := range components {
		if err := d.AppendChild(set, c); err != nil {
			return nil, err
		}
		set.Width = max(set.Width, c.X-minX+c.Width)
		set.Height = max(set.Height, c.Y-minY+c.Height)
	}
	return set, nil
}

func (d *MemoryDocument) AppendChild(parent, child *Node) error {
	if parent == nil || child == nil {
		return ErrNotFound
	}
	for p := parent; p != nil; p = p.Parent {
		if p == child {
			return fmt.Errorf("append %s under %s: would create a cycle", child.ID, parent.ID)
		}
	}
	if old := child.Parent; old != nil {
		old.Children = slices.DeleteFunc(old.Children, func(n *Node) bool { return n == child })
	}
	child.Parent = parent
	parent.Children = append(parent.Children, child)
	d.nodes[child.ID] = child
	return nil
}

func (d *MemoryDocument) SetProperties(n *Node, props map[string]any) error {
	if !n.SupportsProperties() {
		return ErrNoProperties
	}
	if n.Properties == nil {
		n.Properties = make(map[string]any)
	}
	for k, v := range props {
		n.Properties[k] = v
	}
	return nil
}

func (d *MemoryDocument) SetVariableValue(v *Variable, modeID string, value any) error {
	switch v.ResolvedType {
	case VarColor:
		switch value.(type) {
		case RGBA, Alias:
		default:
			return fmt.Errorf("%w: %T for color variable %s", ErrInvalidValue, value, v.Name)
		}
	case VarFloat:
		if _, ok := value.(float64); !ok {
			return fmt.Errorf("%w: %T for float variable %s", ErrInvalidValue, value, v.Name)
		}
	case VarString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("%w: %T for string variable %s", ErrInvalidValue, value, v.Name)
		}
	case VarBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%w: %T for boolean variable %s", ErrInvalidValue, value, v.Name)
		}
	}
	v.ValuesByMode[modeID] = value
	return nil
}

func (d *MemoryDocument) BindVariable(n *Node, field string, v *Variable) error {
	if _, ok := d.nodes[n.ID]; !ok {
		return ErrNotFound
	}
	if n.BoundVariables == nil {
		n.BoundVariables = make(map[string]string)
	}
	n.BoundVariables[field] = v.ID
	return nil
}

// NewDemoDocument returns a small document with a couple of screens, a
// button instance and a two-mode color collection.
func NewDemoDocument() *MemoryDocument {
	d := NewMemoryDocument("Design System")

	home := d.AddNode(nil, &Node{Name: "Home", Type: TypeFrame, Width: 390, Height: 844})
	d.AddNode(nil, &Node{Name: "Settings", Type: TypeFrame, X: 490, Width: 390, Height: 844})
	d.AddNode(nil, &Node{Name: "State=Default", Type: TypeComponent, Y: 1000, Width: 120, Height: 40})
	d.AddNode(home, &Node{
		Name: "Primary Button", Type: TypeInstance, X: 24, Y: 760, Width: 120, Height: 40,
		Properties: map[string]any{"State": "Default", "Label": "Continue"},
	})

	colors := d.AddCollection("Colors", "Light", "Dark")
	primary := d.AddVariable(colors, "primary", VarColor,
		RGBA{R: 0.051, G: 0.6, B: 1, A: 1},
		RGBA{R: 0.039, G: 0.478, B: 0.8, A: 1})
	d.AddVariable(colors, "background", VarColor,
		RGBA{R: 1, G: 1, B: 1, A: 1},
		RGBA{R: 0.118, G: 0.118, B: 0.118, A: 1})
	d.AddVariable(colors, "button/fill", VarColor, Alias{ID: primary.ID}, Alias{ID: primary.ID})

	typo := d.AddCollection("Typography", "Default")
	d.AddVariable(typo, "body/size", VarFloat, 16.0)
	d.AddVariable(typo, "body/family", VarString, "Inter")

	d.Select(home.ID)
	return d
}
