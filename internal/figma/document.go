// Package figma models the slice of the design tool's plugin API that the
// host side of the copilot needs: the selection, the current page, local
// variables, and the handful of node mutations Automator scripts perform.
package figma

import "errors"

// NodeType mirrors the design tool's node type names.
type NodeType string

const (
	TypePage         NodeType = "PAGE"
	TypeFrame        NodeType = "FRAME"
	TypeGroup        NodeType = "GROUP"
	TypeComponent    NodeType = "COMPONENT"
	TypeComponentSet NodeType = "COMPONENT_SET"
	TypeInstance     NodeType = "INSTANCE"
	TypeRectangle    NodeType = "RECTANGLE"
	TypeText         NodeType = "TEXT"
)

// Variable resolved types.
const (
	VarColor   = "COLOR"
	VarFloat   = "FLOAT"
	VarString  = "STRING"
	VarBoolean = "BOOLEAN"
)

var (
	ErrNotFound     = errors.New("node not found")
	ErrNotClonable  = errors.New("node cannot be cloned")
	ErrNoProperties = errors.New("node does not support component properties")
	ErrInvalidValue = errors.New("invalid variable value")
)

// Node is a scene node. Parent is nil for detached nodes and for pages.
type Node struct {
	ID       string
	Name     string
	Type     NodeType
	X, Y     float64
	Width    float64
	Height   float64
	Parent   *Node
	Children []*Node

	// Properties holds component properties of instances.
	Properties map[string]any
	// BoundVariables maps a bindable field to a variable id.
	BoundVariables map[string]string
}

// Clonable reports whether n can be duplicated.
func (n *Node) Clonable() bool {
	return n != nil && n.Type != TypePage
}

// SupportsProperties reports whether component properties can be set on n.
func (n *Node) SupportsProperties() bool {
	return n != nil && n.Type == TypeInstance
}

// RGBA is a color with channels in [0, 1].
type RGBA struct {
	R, G, B, A float64
}

// Alias is a variable value that refers to another variable.
type Alias struct {
	ID string
}

type Mode struct {
	ID   string
	Name string
}

type VariableCollection struct {
	ID            string
	Name          string
	Modes         []Mode
	DefaultModeID string
	VariableIDs   []string
}

// Variable holds one value per mode. Values are RGBA, Alias, float64,
// string or bool depending on ResolvedType.
type Variable struct {
	ID           string
	Name         string
	CollectionID string
	ResolvedType string
	ValuesByMode map[string]any
}

// Document is the host document. Implementations need not be safe for
// concurrent use; callers serialize access.
type Document interface {
	Selection() []*Node
	CurrentPage() *Node

	LocalVariableCollections() []*VariableCollection
	VariableByID(id string) (*Variable, bool)

	// Clone returns a detached deep copy of n with fresh ids.
	Clone(n *Node) (*Node, error)
	// CreateComponent creates an empty component on the current page.
	CreateComponent() *Node
	// CombineAsVariants moves components into a new component set under parent.
	CombineAsVariants(components []*Node, parent *Node) (*Node, error)
	// AppendChild reparents child under parent.
	AppendChild(parent, child *Node) error

	SetProperties(n *Node, props map[string]any) error
	SetVariableValue(v *Variable, modeID string, value any) error
	BindVariable(n *Node, field string, v *Variable) error
}
