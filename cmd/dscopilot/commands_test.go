package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/dscopilot/internal/bridge"
	"github.com/kalambet/dscopilot/internal/composer"
	"github.com/kalambet/dscopilot/internal/config"
	"github.com/kalambet/dscopilot/internal/design"
	"github.com/kalambet/dscopilot/internal/figma"
	"github.com/kalambet/dscopilot/internal/plugin"
	"github.com/kalambet/dscopilot/internal/storage"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"script not found"}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

const automatorReply = `{"type":"tool-call","name":"runAutomator","data":{"id":"s1","name":"Clone Home","actions":[{"id":"a1","command":{"name":"cloneFrame"}}]}}` + "\n"

func TestSendChat(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/chat": `{"type":"text","content":"hello"}` + "\n",
	})

	sel := &design.SelectionInfo{Count: 1}
	content, err := sendChat(ctx, ts.client(), composer.Input{
		Messages:  []design.Message{{Role: design.RoleUser, Content: "hi"}},
		Selection: sel,
	})
	if err != nil {
		t.Fatalf("sendChat: %v", err)
	}
	if !strings.Contains(content, `"hello"`) {
		t.Errorf("content = %q", content)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	req := ts.requests[0]
	if req.Auth != "Bearer test-token" {
		t.Errorf("auth = %q", req.Auth)
	}
	var in composer.Input
	if err := json.Unmarshal([]byte(req.Body), &in); err != nil {
		t.Fatalf("body: %v", err)
	}
	if len(in.Messages) != 1 || in.Messages[0].Content != "hi" || in.Selection == nil || in.Selection.Count != 1 {
		t.Errorf("body = %+v", in)
	}
}

func TestChatSession_TurnKeepsHistory(t *testing.T) {
	noColor = true
	ts := newTestServer(t, map[string]string{
		"POST /api/chat": automatorReply,
	})

	var out bytes.Buffer
	s := &chatSession{client: ts.client(), out: &out}

	if err := s.turn(ctx, "clone the frame"); err != nil {
		t.Fatalf("turn: %v", err)
	}
	if err := s.turn(ctx, "again"); err != nil {
		t.Fatalf("turn: %v", err)
	}

	if len(s.history) != 4 {
		t.Fatalf("history = %d messages, want 4", len(s.history))
	}
	if s.history[1].Role != design.RoleAssistant || s.history[1].Content != automatorReply {
		t.Errorf("assistant turn = %+v", s.history[1])
	}

	var second composer.Input
	json.Unmarshal([]byte(ts.requests[1].Body), &second)
	if len(second.Messages) != 3 {
		t.Errorf("second request carried %d messages, want 3", len(second.Messages))
	}

	if !strings.Contains(out.String(), "Clone Home") || !strings.Contains(out.String(), "Clone Frame") {
		t.Errorf("rendered output = %q", out.String())
	}
}

func TestChatSession_FailedTurnIsDropped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})

	s := &chatSession{client: ts.client(), out: io.Discard}
	if err := s.turn(ctx, "hello"); err == nil {
		t.Fatal("expected error")
	}
	if len(s.history) != 0 {
		t.Errorf("history = %+v, want empty", s.history)
	}
}

func TestChatSession_Raw(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/chat": automatorReply,
	})

	var out bytes.Buffer
	s := &chatSession{client: ts.client(), out: &out, raw: true}
	if err := s.turn(ctx, "clone"); err != nil {
		t.Fatalf("turn: %v", err)
	}
	if strings.TrimSpace(out.String()) != strings.TrimSpace(automatorReply) {
		t.Errorf("raw output = %q", out.String())
	}
}

func TestChatSession_REPL(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/chat": `{"type":"text","content":"ok"}` + "\n",
	})

	s := &chatSession{client: ts.client(), out: io.Discard}
	in := strings.NewReader("first\n\n/reset\nsecond\n/exit\nignored\n")
	if err := s.repl(ctx, in); err != nil {
		t.Fatalf("repl: %v", err)
	}
	if len(ts.requests) != 2 {
		t.Errorf("expected 2 requests, got %d", len(ts.requests))
	}
	if len(s.history) != 2 {
		t.Errorf("history after reset = %d messages, want 2", len(s.history))
	}
}

func TestDecodeJSON_ErrorBody(t *testing.T) {
	ts := newTestServer(t, map[string]string{})

	resp, err := ts.client().get(ctx, "/api/scripts/missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var s storage.Script
	err = decodeJSON(resp, &s)
	if err == nil || !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "script not found") {
		t.Errorf("err = %v", err)
	}
}

func TestClient_ServerUnreachable(t *testing.T) {
	c := &apiClient{baseURL: "http://127.0.0.1:1", httpClient: &http.Client{Timeout: time.Second}}
	_, err := c.get(ctx, "/health")
	if err == nil || !strings.Contains(err.Error(), "dscopilot serve") {
		t.Errorf("err = %v", err)
	}
}

func TestPrintScriptList(t *testing.T) {
	noColor = true
	ts := newTestServer(t, map[string]string{
		"GET /api/scripts": `[{"id":"s1","name":"Clone Home","actions":[{"id":"a","command":{"name":"cloneFrame"}}],"source":"generated","runCount":2,"lastRunAt":"2026-01-02T03:04:05Z"},{"id":"s2","name":"Variants","actions":[],"source":"user","runCount":0}]`,
	})

	resp, err := ts.client().get(ctx, "/api/scripts?limit=50")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var scripts []storage.Script
	if err := decodeJSON(resp, &scripts); err != nil {
		t.Fatalf("decode: %v", err)
	}

	var out bytes.Buffer
	printScriptList(&out, scripts)
	got := out.String()
	for _, want := range []string{"s1", "Clone Home", "generated", "1 actions", "2 runs", "Variants", "never run"} {
		if !strings.Contains(got, want) {
			t.Errorf("list missing %q:\n%s", want, got)
		}
	}

	out.Reset()
	printScriptList(&out, nil)
	if !strings.Contains(out.String(), "No scripts saved") {
		t.Errorf("empty list = %q", out.String())
	}
}

func TestExportImportYAML(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	orig := design.AutomatorScript{
		ID:    "s1",
		Name:  "Hover state",
		Color: "#0D99FF",
		Actions: []design.AutomatorAction{{
			ID:      "a1",
			Command: design.Command{Name: design.CmdCreateVariant, Metadata: map[string]any{"variant": "Hover"}},
			Actions: []design.AutomatorAction{{
				ID:      "a2",
				Command: design.Command{Name: design.CmdSetInstanceProperty, Metadata: map[string]any{"property": "State", "value": "Hover"}},
			}},
		}},
		CreatedAt: created,
	}

	data, err := yamlExport(orig)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(string(data), "command: createVariant") {
		t.Errorf("yaml = %s", data)
	}

	got, err := parseScriptFile("hover.yaml", data)
	if err != nil {
		t.Fatalf("parseScriptFile: %v", err)
	}
	if got.ID != "s1" || got.Name != "Hover state" || !got.CreatedAt.Equal(created) {
		t.Errorf("script = %+v", got)
	}
	if len(got.Actions) != 1 || len(got.Actions[0].Actions) != 1 {
		t.Fatalf("actions = %+v", got.Actions)
	}
	child := got.Actions[0].Actions[0].Command
	if child.Name != design.CmdSetInstanceProperty || child.Metadata["value"] != "Hover" {
		t.Errorf("child command = %+v", child)
	}
}

func TestParseScriptFile(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		data    string
		wantErr bool
	}{
		{"json", "s.json", `{"name":"x","actions":[{"command":{"name":"cloneFrame"}}]}`, false},
		{"json without actions", "s.JSON", `{"name":"x"}`, true},
		{"yaml without actions", "s.yaml", "name: x\n", true},
		{"bad yaml", "s.yml", "name: [\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseScriptFile(tt.file, []byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseOutput(t *testing.T) {
	var out bytes.Buffer
	if err := parseOutput(&out, `{"type":"text","content":"Here you go"}`+"\n", false); err != nil {
		t.Fatalf("parseOutput: %v", err)
	}
	if !strings.Contains(out.String(), "Here you go") {
		t.Errorf("render = %q", out.String())
	}

	out.Reset()
	model := "Sure:\n```json\n{\"name\":\"Clone\",\"actions\":[{\"command\":{\"name\":\"cloneFrame\"}}]}\n```"
	if err := parseOutput(&out, model, true); err != nil {
		t.Fatalf("parseOutput script: %v", err)
	}
	var s design.AutomatorScript
	if err := json.Unmarshal(out.Bytes(), &s); err != nil {
		t.Fatalf("output is not a script: %v\n%s", err, out.String())
	}
	if s.Name != "Clone" || len(s.Actions) != 1 {
		t.Errorf("script = %+v", s)
	}

	if err := parseOutput(io.Discard, "no json here", true); err == nil {
		t.Error("expected error for input without a script")
	}
}

func TestColorize_NoColor(t *testing.T) {
	noColor = true
	if got := colorize(labelStyle, "plain"); got != "plain" {
		t.Errorf("colorize = %q", got)
	}
}

func TestPrintConfig(t *testing.T) {
	noColor = true
	var out bytes.Buffer
	printConfig(&out, []config.KeyInfo{
		{Key: "gemini.api_key", EnvVar: "DSCOPILOT_GEMINI_API_KEY", Value: "****"},
		{Key: "server.port", EnvVar: "DSCOPILOT_SERVER_PORT", Value: "4000"},
	})
	got := out.String()
	for _, want := range []string{"gemini.api_key = ****", "(DSCOPILOT_GEMINI_API_KEY)", "server.port = 4000"} {
		if !strings.Contains(got, want) {
			t.Errorf("config output missing %q:\n%s", want, got)
		}
	}
}

// newBridgeServer runs a hub with the demo document attached as an
// in-process plugin.
func newBridgeServer(t *testing.T) (*apiClient, *plugin.Host) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := bridge.NewHub(logger)
	host := plugin.NewHost(figma.NewDemoDocument(), hub, logger)

	hctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub.AttachPlugin(hctx, host.Handle)

	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	return &apiClient{baseURL: srv.URL, httpClient: srv.Client()}, host
}

func TestFetchContext_ThroughBridge(t *testing.T) {
	client, _ := newBridgeServer(t)

	conn, err := bridge.Dial(ctx, client.baseURL, bridge.RoleUI, "")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	sel, snap, err := fetchContext(conn)
	if err != nil {
		t.Fatalf("fetchContext: %v", err)
	}
	if sel == nil || sel.Count != 1 || sel.Items[0].Name != "Home" {
		t.Errorf("selection = %+v", sel)
	}
	if snap == nil || len(design.ColorInfoFrom(snap).Colors) == 0 {
		t.Errorf("design system = %+v", snap)
	}
}

func TestExecuteScript_ThroughBridge(t *testing.T) {
	client, host := newBridgeServer(t)

	script := design.AutomatorScript{
		ID:   "s1",
		Name: "Clone Home",
		Actions: []design.AutomatorAction{{
			ID:      "a1",
			Command: design.Command{Name: design.CmdCloneFrame},
		}},
	}
	if err := executeScript(ctx, client, script); err != nil {
		t.Fatalf("executeScript: %v", err)
	}

	homes := 0
	host.Do(func(doc figma.Document) {
		for _, n := range doc.CurrentPage().Children {
			if n.Name == "Home" {
				homes++
			}
		}
	})
	if homes != 2 {
		t.Errorf("Home frames = %d, want 2", homes)
	}
}
