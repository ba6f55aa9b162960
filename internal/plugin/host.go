// Package plugin plays the host-plugin side of the UI bridge: it answers
// selection and design-system requests from the document and runs Automator
// scripts.
package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kalambet/dscopilot/internal/automator"
	"github.com/kalambet/dscopilot/internal/design"
	"github.com/kalambet/dscopilot/internal/extract"
	"github.com/kalambet/dscopilot/internal/figma"
	"github.com/kalambet/dscopilot/internal/protocol"
)

// Poster delivers a message to the UI side. Delivery is fire-and-forget.
type Poster interface {
	Post(msg protocol.PluginMessage)
}

// PosterFunc adapts a function to Poster.
type PosterFunc func(msg protocol.PluginMessage)

func (f PosterFunc) Post(msg protocol.PluginMessage) { f(msg) }

// Host owns a document and serializes every access to it.
type Host struct {
	mu     sync.Mutex
	doc    figma.Document
	exec   *automator.Executor
	post   Poster
	logger *slog.Logger
}

// NewHost creates a Host. A nil poster discards replies.
func NewHost(doc figma.Document, post Poster, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	if post == nil {
		post = PosterFunc(func(protocol.PluginMessage) {})
	}
	return &Host{
		doc:    doc,
		exec:   automator.NewExecutor(logger),
		post:   post,
		logger: logger,
	}
}

// SetPoster replaces the reply sink. It is used when the bridge is created
// after the host.
func (h *Host) SetPoster(p Poster) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.post = p
}

func (h *Host) poster() Poster {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.post
}

// Handle dispatches one UI message. Plugin-originated types and unknown types
// are ignored.
func (h *Host) Handle(ctx context.Context, msg protocol.PluginMessage) {
	switch msg.Type {
	case protocol.MsgGetSelection:
		sel := h.Selection()
		h.poster().Post(protocol.PluginMessage{Type: protocol.MsgSelectionInfo, ID: msg.ID, Selection: &sel})

	case protocol.MsgUpdateDesignSystem:
		snap := h.DesignSystem()
		h.poster().Post(protocol.PluginMessage{Type: protocol.MsgDesignSystemUpdated, ID: msg.ID, DesignSystem: &snap})

	case protocol.MsgExecuteAutomator:
		if msg.Script == nil {
			h.poster().Post(protocol.PluginMessage{Type: protocol.MsgAutomatorError, ID: msg.ID, Error: "no script"})
			return
		}
		if _, err := h.Execute(ctx, *msg.Script); err != nil {
			h.logger.Warn("automator failed", "id", msg.ID, "script_id", msg.Script.ID, "error", err)
			h.poster().Post(protocol.PluginMessage{Type: protocol.MsgAutomatorError, ID: msg.ID, Error: err.Error()})
			return
		}
		h.poster().Post(protocol.PluginMessage{Type: protocol.MsgAutomatorComplete, ID: msg.ID})

	default:
		h.logger.Debug("ignoring plugin message", "type", msg.Type)
	}
}

// Selection returns the current selection summary.
func (h *Host) Selection() design.SelectionInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	return extract.Selection(h.doc)
}

// DesignSystem returns a snapshot of the document's variables and screens.
func (h *Host) DesignSystem() design.DesignSystemSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return extract.DesignSystem(h.doc)
}

// Execute runs script against the document.
func (h *Host) Execute(ctx context.Context, script design.AutomatorScript) (automator.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	res, err := h.exec.Run(ctx, h.doc, script)
	if err != nil {
		return res, fmt.Errorf("running automator %q: %w", script.Name, err)
	}
	h.logger.Info("automator complete", "script_id", script.ID, "applied", res.Applied, "skipped", res.Skipped)
	return res, nil
}

// Do runs fn with exclusive access to the document. Tests and the demo
// server use it to change the selection.
func (h *Host) Do(fn func(doc figma.Document)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(h.doc)
}
