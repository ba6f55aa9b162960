//go:build integration

package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/kalambet/dscopilot/internal/chunk"
	"github.com/kalambet/dscopilot/internal/design"
	"github.com/kalambet/dscopilot/internal/llm"
	"github.com/kalambet/dscopilot/internal/protocol"
)

func newGeminiServer(t *testing.T) *httptest.Server {
	t.Helper()
	key := os.Getenv("DSCOPILOT_GEMINI_API_KEY")
	if key == "" {
		t.Skip("DSCOPILOT_GEMINI_API_KEY not set")
	}
	g, err := llm.NewGemini(context.Background(), key, os.Getenv("DSCOPILOT_GEMINI_MODEL"))
	if err != nil {
		t.Fatalf("NewGemini: %v", err)
	}
	t.Cleanup(func() { g.Close() })

	srv := httptest.NewServer(NewChatHandler(ChatDeps{
		Provider: g,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGeminiRoundTrip_Informational(t *testing.T) {
	srv := newGeminiServer(t)

	body := `{"messages":[{"role":"user","content":"In one sentence, what is a design token?"}]}`
	resp, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	raw, _ := io.ReadAll(resp.Body)
	elems := chunk.Parse(string(raw))
	if len(elems) == 0 || elems[0].Kind != chunk.KindText || strings.TrimSpace(elems[0].Text) == "" {
		t.Errorf("elements = %+v", elems)
	}
}

func TestGeminiRoundTrip_Action(t *testing.T) {
	srv := newGeminiServer(t)

	body := `{"messages":[{"role":"user","content":"Clone the selected frame twice"}]}`
	resp, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	elems := chunk.Parse(string(raw))
	if len(elems) != 1 || elems[0].Tool != protocol.ToolRunAutomator {
		t.Fatalf("elements = %+v", elems)
	}
	s, err := design.DecodeScript(elems[0].Data)
	if err != nil {
		t.Fatalf("DecodeScript: %v", err)
	}
	if len(s.Actions) == 0 {
		t.Error("script has no actions")
	}
}
