// Package bridge relays plugin messages between UI and plugin connections.
package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kalambet/dscopilot/internal/protocol"
)

// Connection roles.
const (
	RoleUI     = "ui"
	RolePlugin = "plugin"
)

const (
	sendBuffer = 64
	writeWait  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Plugin iframes run with a null origin.
		return true
	},
}

type peer struct {
	role string
	send chan []byte
}

// Hub fans messages out from each side to every peer on the other side.
// Messages carry no correlation beyond the echoed id. A peer whose buffer is
// full misses the message.
type Hub struct {
	mu     sync.RWMutex
	peers  map[*peer]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		peers:  make(map[*peer]struct{}),
		logger: logger,
	}
}

func (h *Hub) add(role string) *peer {
	p := &peer{role: role, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.peers[p] = struct{}{}
	h.mu.Unlock()
	return p
}

func (h *Hub) remove(p *peer) {
	h.mu.Lock()
	delete(h.peers, p)
	h.mu.Unlock()
}

// Peers returns the number of connected peers with the given role.
func (h *Hub) Peers(role string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for p := range h.peers {
		if p.role == role {
			n++
		}
	}
	return n
}

// ToPlugins sends msg to every plugin peer and returns how many accepted it.
func (h *Hub) ToPlugins(msg protocol.PluginMessage) int {
	return h.broadcast(RolePlugin, msg)
}

// ToUIs sends msg to every UI peer and returns how many accepted it.
func (h *Hub) ToUIs(msg protocol.PluginMessage) int {
	return h.broadcast(RoleUI, msg)
}

func (h *Hub) broadcast(role string, msg protocol.PluginMessage) int {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encoding plugin message", "type", msg.Type, "error", err)
		return 0
	}
	return h.relay(role, data)
}

// sendTo queues msg for a single peer.
func (h *Hub) sendTo(p *peer, msg protocol.PluginMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encoding plugin message", "type", msg.Type, "error", err)
		return
	}
	select {
	case p.send <- data:
	default:
		h.logger.Warn("dropping plugin message, peer buffer full", "role", p.role)
	}
}

// writeError answers a plain HTTP request with the {"error": ...} body the
// API uses.
func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (h *Hub) relay(role string, data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for p := range h.peers {
		if p.role != role {
			continue
		}
		select {
		case p.send <- data:
			sent++
		default:
			h.logger.Warn("dropping plugin message, peer buffer full", "role", role)
		}
	}
	return sent
}

// Post implements plugin.Poster for an in-process plugin: replies go to the UIs.
func (h *Hub) Post(msg protocol.PluginMessage) {
	h.ToUIs(msg)
}

// AttachPlugin registers an in-process plugin peer. Every UI message is
// decoded and passed to handle until ctx is cancelled.
func (h *Hub) AttachPlugin(ctx context.Context, handle func(context.Context, protocol.PluginMessage)) {
	p := h.add(RolePlugin)
	go func() {
		defer h.remove(p)
		for {
			select {
			case <-ctx.Done():
				return
			case data := <-p.send:
				msg, err := protocol.DecodePluginMessage(data)
				if err != nil {
					h.logger.Warn("in-process plugin: bad message", "error", err)
					if reply, ok := protocol.Rejection(msg, err); ok {
						h.ToUIs(reply)
					}
					continue
				}
				handle(ctx, msg)
			}
		}
	}()
}

// ServeHTTP upgrades the request to a WebSocket peer. The role query
// parameter selects the side; it defaults to ui.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	if role == "" {
		role = RoleUI
	}
	if role != RoleUI && role != RolePlugin {
		writeError(w, http.StatusBadRequest, "role must be ui or plugin")
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade websocket", "error", err)
		return
	}
	defer ws.Close()

	p := h.add(role)
	defer h.remove(p)
	h.logger.Info("bridge peer connected", "role", role)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	// Writer loop.
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			case data := <-p.send:
				ws.SetWriteDeadline(time.Now().Add(writeWait))
				if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
					h.logger.Warn("bridge write failed", "role", role, "error", err)
					ws.Close()
					return
				}
			}
		}
	}()

	target := RolePlugin
	if role == RolePlugin {
		target = RoleUI
	}

	// Reader loop.
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("bridge read ended", "role", role, "error", err)
			}
			break
		}
		msg, err := protocol.DecodePluginMessage(data)
		if err != nil {
			h.logger.Warn("dropping malformed plugin message", "role", role, "error", err)
			if reply, ok := protocol.Rejection(msg, err); ok && role == RoleUI {
				h.sendTo(p, reply)
			}
			continue
		}
		if role == RoleUI && !protocol.FromUI(msg.Type) || role == RolePlugin && !protocol.FromPlugin(msg.Type) {
			h.logger.Warn("dropping message sent from the wrong side", "role", role, "type", msg.Type)
			continue
		}
		h.relay(target, data)
	}

	close(done)
	wg.Wait()
	h.logger.Info("bridge peer disconnected", "role", role)
}
