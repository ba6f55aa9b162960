package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/dscopilot/internal/chunk"
	"github.com/kalambet/dscopilot/internal/composer"
	"github.com/kalambet/dscopilot/internal/design"
	"github.com/kalambet/dscopilot/internal/intent"
	"github.com/kalambet/dscopilot/internal/llm"
	"github.com/kalambet/dscopilot/internal/protocol"
	"github.com/kalambet/dscopilot/internal/storage"
)

const maxRequestBodySize = 4 << 20 // 4MB, snapshots of large files are big

const (
	contentTypeNDJSON = "application/x-ndjson"
	contentTypeText   = "text/plain; charset=utf-8"
)

// streamErrorNotice replaces the rest of a reply when the provider fails
// after streaming has started.
const streamErrorNotice = "\n\nSorry, something went wrong while generating this reply. Please try again."

// ScriptSaver stores generated scripts in the library.
type ScriptSaver interface {
	SaveScript(s design.AutomatorScript, source string) error
}

// ChatDeps holds the dependencies of the chat endpoint.
type ChatDeps struct {
	Provider llm.Provider
	Composer *composer.Composer
	Library  ScriptSaver // optional; generated scripts are not kept if nil
	Autosave bool
	Logger   *slog.Logger
	Now      func() time.Time // optional; defaults to time.Now
}

// NewChatHandler returns the chat endpoint together with the health and
// model list routes.
func NewChatHandler(deps ChatDeps) http.Handler {
	if deps.Composer == nil {
		deps.Composer = composer.New(0, "")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Get("/api/models", handleModels(deps.Provider))
	r.Post("/api/chat", handleChat(deps))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleModels(p llm.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		models, err := p.ListModels(r.Context())
		if err != nil {
			httpError(w, http.StatusBadGateway, "failed to list models: %v", err)
			return
		}
		if models == nil {
			models = []string{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"models": models})
	}
}

func handleChat(deps ChatDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var in composer.Input
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}

		last := in.LastContent()
		if last == "" {
			httpError(w, http.StatusBadRequest, "last message content is required")
			return
		}

		flags := intent.Classify(last)
		path := flags.Path()
		req, err := deps.Composer.Compose(in, path)
		if errors.Is(err, composer.ErrEmptyMessage) {
			httpError(w, http.StatusBadRequest, "last message content is required")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "composing request: %v", err)
			return
		}

		plain := r.URL.Query().Get("format") == "text"
		deps.Logger.Debug("chat request",
			"path", path,
			"messages", len(in.Messages),
			"has_selection", in.Selection != nil,
			"has_design_system", in.DesignSystem != nil,
		)

		if path == intent.PathAction {
			generateScript(w, r, deps, req, plain)
			return
		}
		streamReply(w, r, deps, req, in, flags, path, plain)
	}
}

// providerErrorMessage is the 500 body for provider failures. The cause is
// only logged.
const providerErrorMessage = "provider request failed"

// generateScript runs the buffered action path and emits one runAutomator
// chunk. Unrecoverable model output falls back to the default script.
func generateScript(w http.ResponseWriter, r *http.Request, deps ChatDeps, req llm.Request, plain bool) {
	text, err := deps.Provider.Generate(r.Context(), req)
	if err != nil {
		deps.Logger.Error("provider generate failed", "error", err)
		httpError(w, http.StatusInternalServerError, providerErrorMessage)
		return
	}

	now := deps.Now()
	script, ok := chunk.ParseScript(text)
	if ok {
		script = design.Sanitize(script, now)
	}
	if !ok || len(script.Actions) == 0 {
		deps.Logger.Warn("model output is not a usable script, using default", "output_len", len(text))
		script = design.DefaultScript(now)
	}

	if deps.Autosave && deps.Library != nil {
		if err := deps.Library.SaveScript(script, storage.SourceGenerated); err != nil {
			deps.Logger.Warn("saving generated script", "id", script.ID, "error", err)
		}
	}

	if plain {
		w.Header().Set("Content-Type", contentTypeText)
		json.NewEncoder(w).Encode(script)
		return
	}

	c, err := protocol.ToolCallChunk(protocol.ToolRunAutomator, script)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "encoding script: %v", err)
		return
	}
	w.Header().Set("Content-Type", contentTypeNDJSON)
	protocol.NewEncoder(w).Encode(c)
}

// streamReply runs the informational path. The first delta is pulled before
// any header is written so that an early provider failure still gets a 500.
func streamReply(w http.ResponseWriter, r *http.Request, deps ChatDeps, req llm.Request, in composer.Input, flags intent.Flags, path intent.Path, plain bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	stream, err := deps.Provider.Stream(r.Context(), req)
	if err != nil {
		deps.Logger.Error("provider stream failed", "error", err)
		httpError(w, http.StatusInternalServerError, providerErrorMessage)
		return
	}
	defer stream.Close()

	first, err := stream.Next()
	if err != nil && err != io.EOF {
		deps.Logger.Error("provider stream failed", "error", err)
		httpError(w, http.StatusInternalServerError, providerErrorMessage)
		return
	}
	done := err == io.EOF

	out := newReplyWriter(w, flusher, plain)
	w.Header().Set("Cache-Control", "no-cache")
	if plain {
		w.Header().Set("Content-Type", contentTypeText)
	} else {
		w.Header().Set("Content-Type", contentTypeNDJSON)
	}
	w.WriteHeader(http.StatusOK)

	if prefix := intent.Prefix(path); prefix != "" {
		out.text(prefix + "\n\n")
	}
	if flags.Selection && in.Selection != nil {
		out.tool(protocol.ToolGetSelectionInfo, in.Selection)
	}
	if flags.Colors && in.DesignSystem != nil {
		out.tool(protocol.ToolGetColorInfo, design.ColorInfoFrom(in.DesignSystem))
	}

	if first != "" {
		out.text(first)
	}
	for !done {
		delta, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			deps.Logger.Error("provider stream interrupted", "error", err)
			out.text(streamErrorNotice)
			return
		}
		if delta != "" {
			out.text(delta)
		}
	}

	if suffix := intent.Suffix(path); suffix != "" {
		out.text("\n\n" + suffix)
	}
}

// replyWriter writes reply pieces either as NDJSON chunks or as raw text and
// flushes after each one. Tool calls are dropped in raw text mode.
type replyWriter struct {
	w       io.Writer
	flusher http.Flusher
	enc     *protocol.Encoder
	plain   bool
}

func newReplyWriter(w io.Writer, flusher http.Flusher, plain bool) *replyWriter {
	return &replyWriter{w: w, flusher: flusher, enc: protocol.NewEncoder(w), plain: plain}
}

func (rw *replyWriter) text(s string) {
	if rw.plain {
		io.WriteString(rw.w, s)
	} else {
		rw.enc.Encode(protocol.TextChunk(s))
	}
	rw.flusher.Flush()
}

func (rw *replyWriter) tool(name string, data any) {
	if rw.plain {
		return
	}
	c, err := protocol.ToolCallChunk(name, data)
	if err != nil {
		slog.Warn("encoding tool call", "name", name, "error", err)
		return
	}
	rw.enc.Encode(c)
	rw.flusher.Flush()
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": fmt.Sprintf(format, args...),
	})
}
