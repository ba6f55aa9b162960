package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/dscopilot/internal/design"
	"github.com/kalambet/dscopilot/internal/protocol"
	"github.com/kalambet/dscopilot/internal/storage"
)

// ScriptStore is the script library as seen by the API layer.
type ScriptStore interface {
	ScriptSaver
	GetScript(id string) (storage.Script, error)
	ListScripts(source string, limit int) ([]storage.Script, error)
	DeleteScript(id string) error
	MarkScriptRun(id string, at time.Time) error
}

// PluginRelay delivers messages to every connected plugin and reports how
// many accepted them.
type PluginRelay interface {
	ToPlugins(msg protocol.PluginMessage) int
}

type AppDeps struct {
	Store  ScriptStore
	Relay  PluginRelay  // optional; run returns 503 if nil
	Bridge http.Handler // optional; mounted at /plugin/ws
	Token  string
	Logger *slog.Logger
}

// RunResponse is returned by POST /scripts/{id}/run.
type RunResponse struct {
	ID      string `json:"id"`
	Script  string `json:"scriptId"`
	Plugins int    `json:"plugins"`
}

// NewAppHandler returns the authenticated routes, relative to /api.
func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(BearerAuth(deps.Token))

	r.Get("/scripts", handleListScripts(deps))
	r.Post("/scripts", handleSaveScript(deps))
	r.Get("/scripts/{id}", handleGetScript(deps))
	r.Delete("/scripts/{id}", handleDeleteScript(deps))
	r.Post("/scripts/{id}/run", handleRunScript(deps))
	if deps.Bridge != nil {
		r.Handle("/plugin/ws", deps.Bridge)
	}

	return r
}

func handleListScripts(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50, 500)
		source := r.URL.Query().Get("source")
		if source != "" && source != storage.SourceUser && source != storage.SourceGenerated {
			httpError(w, http.StatusBadRequest, "source must be %q or %q", storage.SourceUser, storage.SourceGenerated)
			return
		}

		scripts, err := deps.Store.ListScripts(source, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to list scripts: %v", err)
			return
		}
		if scripts == nil {
			scripts = []storage.Script{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(scripts)
	}
}

func handleSaveScript(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var raw json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		script, err := design.DecodeScript(raw)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid script: %v", err)
			return
		}
		script = design.Sanitize(script, time.Now())
		if len(script.Actions) == 0 {
			httpError(w, http.StatusBadRequest, "script has no actions")
			return
		}

		if err := deps.Store.SaveScript(script, storage.SourceUser); err != nil {
			httpError(w, http.StatusInternalServerError, "failed to save script: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{
			"id":     script.ID,
			"status": "saved",
		})
	}
}

func handleGetScript(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		script, err := deps.Store.GetScript(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "script not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to get script: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(script)
	}
}

func handleDeleteScript(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Store.DeleteScript(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "script not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to delete script: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

// handleRunScript relays a stored script to the connected plugins. Delivery
// is fire and forget: completion arrives on the bridge, not in this reply.
func handleRunScript(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Relay == nil {
			httpError(w, http.StatusServiceUnavailable, "plugin bridge not available")
			return
		}
		id := chi.URLParam(r, "id")

		script, err := deps.Store.GetScript(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "script not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to get script: %v", err)
			return
		}

		runID := uuid.New().String()
		sc := script.AutomatorScript
		n := deps.Relay.ToPlugins(protocol.PluginMessage{
			Type:   protocol.MsgExecuteAutomator,
			ID:     runID,
			Script: &sc,
		})
		if n == 0 {
			httpError(w, http.StatusConflict, "no plugin connected")
			return
		}
		if err := deps.Store.MarkScriptRun(id, time.Now()); err != nil {
			deps.Logger.Warn("recording script run", "id", id, "error", err)
		}
		deps.Logger.Info("script relayed", "script", id, "run", runID, "plugins", n)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(RunResponse{ID: runID, Script: id, Plugins: n})
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
