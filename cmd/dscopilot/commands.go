package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kalambet/dscopilot/internal/bridge"
	"github.com/kalambet/dscopilot/internal/chunk"
	"github.com/kalambet/dscopilot/internal/composer"
	"github.com/kalambet/dscopilot/internal/config"
	"github.com/kalambet/dscopilot/internal/design"
	"github.com/kalambet/dscopilot/internal/protocol"
	"github.com/kalambet/dscopilot/internal/render"
	"github.com/kalambet/dscopilot/internal/storage"
)

// bridgeTimeout bounds every wait for a plugin reply.
const bridgeTimeout = 10 * time.Second

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Chat about the design document",
	Long: `Send a message to the copilot and render the reply. Without a message,
start an interactive session that keeps the conversation history.

Examples:
  dscopilot chat "What colors do we use?"
  dscopilot chat --context "Summarize my selection"
  dscopilot chat --context --execute "Clone the selected frame"
  dscopilot chat --selection sel.json --design-system ds.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		selFile, _ := cmd.Flags().GetString("selection")
		dsFile, _ := cmd.Flags().GetString("design-system")
		fromBridge, _ := cmd.Flags().GetBool("context")
		execute, _ := cmd.Flags().GetBool("execute")
		raw, _ := cmd.Flags().GetBool("raw")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		s := &chatSession{
			client:  client,
			out:     cmd.OutOrStdout(),
			raw:     raw,
			execute: execute,
			bridge:  fromBridge,
		}
		if selFile != "" {
			var sel design.SelectionInfo
			if err := readJSONFile(selFile, &sel); err != nil {
				return err
			}
			s.selection = &sel
		}
		if dsFile != "" {
			var snap design.DesignSystemSnapshot
			if err := readJSONFile(dsFile, &snap); err != nil {
				return err
			}
			s.designSystem = &snap
		}

		ctx := cmd.Context()
		if len(args) > 0 {
			return s.turn(ctx, strings.Join(args, " "))
		}
		return s.repl(ctx, cmd.InOrStdin())
	},
}

func init() {
	chatCmd.Flags().String("selection", "", "JSON file with a selection summary to send as context")
	chatCmd.Flags().String("design-system", "", "JSON file with a design-system snapshot to send as context")
	chatCmd.Flags().Bool("context", false, "fetch selection and design system from the connected plugin before each turn")
	chatCmd.Flags().Bool("execute", false, "send generated scripts to the connected plugin")
	chatCmd.Flags().Bool("raw", false, "print the raw response instead of rendering it")
}

type chatSession struct {
	client       *apiClient
	out          io.Writer
	raw          bool
	execute      bool
	bridge       bool
	history      []design.Message
	selection    *design.SelectionInfo
	designSystem *design.DesignSystemSnapshot
}

func (s *chatSession) repl(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	fmt.Fprintln(s.out, colorize(dimStyle, "Type a message, or /exit to quit."))
	for {
		fmt.Fprint(s.out, colorize(stepStyle, "> "))
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			s.history = nil
			printSuccess("Conversation cleared")
			continue
		}
		if err := s.turn(ctx, line); err != nil {
			printError("%v", err)
		}
	}
}

// turn sends text with the whole history and renders the reply. A failed
// turn is removed from the history.
func (s *chatSession) turn(ctx context.Context, text string) error {
	if s.bridge {
		if err := s.refreshContext(ctx); err != nil {
			printWarning("plugin context unavailable: %v", err)
		}
	}

	s.history = append(s.history, design.Message{ID: uuid.NewString(), Role: design.RoleUser, Content: text})
	content, err := sendChat(ctx, s.client, composer.Input{
		Messages:     s.history,
		Selection:    s.selection,
		DesignSystem: s.designSystem,
	})
	if err != nil {
		s.history = s.history[:len(s.history)-1]
		return err
	}
	s.history = append(s.history, design.Message{ID: uuid.NewString(), Role: design.RoleAssistant, Content: content})

	if s.raw {
		fmt.Fprintln(s.out, content)
		return nil
	}

	components := render.Components(chunk.Parse(content))
	fmt.Fprintln(s.out, render.View(components))

	scripts := render.Scripts(components)
	if !s.execute {
		if len(scripts) > 0 {
			printStep("Run with --execute to apply this script, or save it with dscopilot scripts")
		}
		return nil
	}
	for _, script := range scripts {
		if err := executeScript(ctx, s.client, script); err != nil {
			return err
		}
	}
	return nil
}

func (s *chatSession) refreshContext(ctx context.Context) error {
	conn, err := bridge.Dial(ctx, s.client.baseURL, bridge.RoleUI, s.client.token)
	if err != nil {
		return err
	}
	defer conn.Close()

	sel, snap, err := fetchContext(conn)
	if err != nil {
		return err
	}
	s.selection, s.designSystem = sel, snap
	return nil
}

// fetchContext asks the plugin for the current selection and design system.
func fetchContext(conn *bridge.Client) (*design.SelectionInfo, *design.DesignSystemSnapshot, error) {
	if err := conn.SetDeadline(time.Now().Add(bridgeTimeout)); err != nil {
		return nil, nil, err
	}

	selID := uuid.NewString()
	if err := conn.Send(protocol.PluginMessage{Type: protocol.MsgGetSelection, ID: selID}); err != nil {
		return nil, nil, fmt.Errorf("requesting selection: %w", err)
	}
	selMsg, err := conn.Await(selID, protocol.MsgSelectionInfo)
	if err != nil {
		return nil, nil, fmt.Errorf("waiting for selection: %w", err)
	}

	dsID := uuid.NewString()
	if err := conn.Send(protocol.PluginMessage{Type: protocol.MsgUpdateDesignSystem, ID: dsID}); err != nil {
		return nil, nil, fmt.Errorf("requesting design system: %w", err)
	}
	dsMsg, err := conn.Await(dsID, protocol.MsgDesignSystemUpdated)
	if err != nil {
		return nil, nil, fmt.Errorf("waiting for design system: %w", err)
	}
	return selMsg.Selection, dsMsg.DesignSystem, nil
}

// executeScript sends script to the plugin and waits for its outcome.
func executeScript(ctx context.Context, client *apiClient, script design.AutomatorScript) error {
	conn, err := bridge.Dial(ctx, client.baseURL, bridge.RoleUI, client.token)
	if err != nil {
		return err
	}
	defer conn.Close()

	id := uuid.NewString()
	printStep("Running %q", script.Name)
	if err := conn.Send(protocol.PluginMessage{Type: protocol.MsgExecuteAutomator, ID: id, Script: &script}); err != nil {
		return fmt.Errorf("sending script: %w", err)
	}
	if err := conn.SetDeadline(time.Now().Add(bridgeTimeout)); err != nil {
		return err
	}
	reply, err := conn.Await(id, protocol.MsgAutomatorComplete, protocol.MsgAutomatorError)
	if err != nil {
		return fmt.Errorf("waiting for plugin: %w", err)
	}
	if reply.Type == protocol.MsgAutomatorError {
		return fmt.Errorf("automator failed: %s", reply.Error)
	}
	printSuccess("Applied %q", script.Name)
	return nil
}

// sendChat posts one turn and returns the full response body.
func sendChat(ctx context.Context, client *apiClient, in composer.Input) (string, error) {
	resp, err := client.post(ctx, "/api/chat", in)
	if err != nil {
		return "", err
	}
	body, err := readBody(resp)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// --- parse ---

var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Render a saved chat response (reads stdin without a file)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asScript, _ := cmd.Flags().GetBool("script")

		var data []byte
		var err error
		if len(args) == 1 {
			data, err = os.ReadFile(args[0])
		} else {
			data, err = io.ReadAll(cmd.InOrStdin())
		}
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		return parseOutput(cmd.OutOrStdout(), string(data), asScript)
	},
}

func init() {
	parseCmd.Flags().Bool("script", false, "extract the Automator script from model output and print it as JSON")
}

func parseOutput(w io.Writer, content string, asScript bool) error {
	if !asScript {
		fmt.Fprintln(w, render.Render(content))
		return nil
	}
	script, ok := chunk.ParseScript(content)
	if !ok {
		return fmt.Errorf("no Automator script found in input")
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(script)
}

// --- scripts ---

var scriptsCmd = &cobra.Command{
	Use:   "scripts",
	Short: "Manage the Automator script library",
}

var scriptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved scripts",
	RunE: func(cmd *cobra.Command, args []string) error {
		source, _ := cmd.Flags().GetString("source")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/api/scripts?limit=%d", limit)
		if source != "" {
			path += "&source=" + source
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var scripts []storage.Script
		if err := decodeJSON(resp, &scripts); err != nil {
			return err
		}
		printScriptList(cmd.OutOrStdout(), scripts)
		return nil
	},
}

func printScriptList(w io.Writer, scripts []storage.Script) {
	if len(scripts) == 0 {
		fmt.Fprintln(w, "No scripts saved.")
		return
	}
	for _, s := range scripts {
		runs := "never run"
		if s.LastRunAt != nil {
			runs = fmt.Sprintf("%d runs, last %s", s.RunCount, s.LastRunAt.Local().Format(time.DateTime))
		}
		fmt.Fprintf(w, "%s  %s  %s\n", s.ID, colorize(labelStyle, s.Name),
			colorize(dimStyle, fmt.Sprintf("[%s, %d actions, %s]", s.Source, len(s.Actions), runs)))
	}
}

var scriptsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Render a saved script",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		script, err := fetchScript(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), render.AutomatorCard{Script: script.AutomatorScript}.View())
		return nil
	},
}

var scriptsExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a saved script as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		script, err := fetchScript(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		data, err := yamlExport(script.AutomatorScript)
		if err != nil {
			return err
		}

		if output == "" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(output, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", output, err)
		}
		printSuccess("Exported %q to %s", script.Name, output)
		return nil
	},
}

var scriptsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Save a script from a YAML or JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}
		script, err := parseScriptFile(args[0], data)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/scripts", script)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Saved script %s", result["id"])
		return nil
	},
}

var scriptsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved script",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/api/scripts/"+args[0])
		if err != nil {
			return err
		}
		if _, err := readBody(resp); err != nil {
			return err
		}
		printSuccess("Deleted script %s", args[0])
		return nil
	},
}

var scriptsRunCmd = &cobra.Command{
	Use:   "run <id>",
	Short: "Send a saved script to the connected plugin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/scripts/"+args[0]+"/run", nil)
		if err != nil {
			return err
		}
		var result struct {
			ID      string `json:"id"`
			Plugins int    `json:"plugins"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Sent to %d plugin(s) as run %s", result.Plugins, result.ID)
		return nil
	},
}

func init() {
	scriptsListCmd.Flags().String("source", "", "filter by source (user or generated)")
	scriptsListCmd.Flags().Int("limit", 50, "maximum number of scripts")
	scriptsExportCmd.Flags().StringP("output", "o", "", "write to file instead of stdout")

	scriptsCmd.AddCommand(scriptsListCmd)
	scriptsCmd.AddCommand(scriptsShowCmd)
	scriptsCmd.AddCommand(scriptsExportCmd)
	scriptsCmd.AddCommand(scriptsImportCmd)
	scriptsCmd.AddCommand(scriptsDeleteCmd)
	scriptsCmd.AddCommand(scriptsRunCmd)
}

func fetchScript(ctx context.Context, id string) (storage.Script, error) {
	client, err := newAPIClient()
	if err != nil {
		return storage.Script{}, err
	}
	resp, err := client.get(ctx, "/api/scripts/"+id)
	if err != nil {
		return storage.Script{}, err
	}
	var script storage.Script
	if err := decodeJSON(resp, &script); err != nil {
		return storage.Script{}, err
	}
	return script, nil
}

// exportedScript is the YAML form of a script. Library bookkeeping is not
// exported.
type exportedScript struct {
	ID          string           `yaml:"id"`
	Name        string           `yaml:"name"`
	Description string           `yaml:"description,omitempty"`
	Color       string           `yaml:"color,omitempty"`
	CreatedAt   time.Time        `yaml:"created_at"`
	Actions     []exportedAction `yaml:"actions"`
}

type exportedAction struct {
	ID       string           `yaml:"id"`
	Command  string           `yaml:"command"`
	Title    string           `yaml:"title,omitempty"`
	Metadata map[string]any   `yaml:"metadata,omitempty"`
	Actions  []exportedAction `yaml:"actions,omitempty"`
}

func exportScript(s design.AutomatorScript) exportedScript {
	return exportedScript{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		Color:       s.Color,
		CreatedAt:   s.CreatedAt.UTC(),
		Actions:     exportActions(s.Actions),
	}
}

func yamlExport(s design.AutomatorScript) ([]byte, error) {
	data, err := yaml.Marshal(exportScript(s))
	if err != nil {
		return nil, fmt.Errorf("encoding script: %w", err)
	}
	return data, nil
}

func exportActions(in []design.AutomatorAction) []exportedAction {
	if len(in) == 0 {
		return nil
	}
	out := make([]exportedAction, len(in))
	for i, a := range in {
		out[i] = exportedAction{
			ID:       a.ID,
			Command:  a.Command.Name,
			Title:    a.Command.Title,
			Metadata: a.Command.Metadata,
			Actions:  exportActions(a.Actions),
		}
	}
	return out
}

func (e exportedScript) script() design.AutomatorScript {
	return design.AutomatorScript{
		ID:          e.ID,
		Name:        e.Name,
		Description: e.Description,
		Color:       e.Color,
		CreatedAt:   e.CreatedAt,
		Actions:     importActions(e.Actions),
	}
}

func importActions(in []exportedAction) []design.AutomatorAction {
	out := make([]design.AutomatorAction, len(in))
	for i, a := range in {
		out[i] = design.AutomatorAction{
			ID: a.ID,
			Command: design.Command{
				Name:     a.Command,
				Title:    a.Title,
				Metadata: a.Metadata,
			},
			Actions: importActions(a.Actions),
		}
	}
	return out
}

// parseScriptFile decodes a script by file extension: .json uses the wire
// form, anything else the YAML export form.
func parseScriptFile(name string, data []byte) (design.AutomatorScript, error) {
	if strings.EqualFold(filepath.Ext(name), ".json") {
		s, err := design.DecodeScript(data)
		if err != nil {
			return design.AutomatorScript{}, fmt.Errorf("decoding %s: %w", name, err)
		}
		return s, nil
	}

	var e exportedScript
	if err := yaml.Unmarshal(data, &e); err != nil {
		return design.AutomatorScript{}, fmt.Errorf("decoding %s: %w", name, err)
	}
	if len(e.Actions) == 0 {
		return design.AutomatorScript{}, fmt.Errorf("decoding %s: %w", name, design.ErrNoActions)
	}
	return e.script(), nil
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		printConfig(cmd.OutOrStdout(), config.ShowAll(config.LoadOptional()))
		return nil
	},
}

func printConfig(w io.Writer, keys []config.KeyInfo) {
	for _, k := range keys {
		fmt.Fprintf(w, "  %s = %s %s\n", colorize(labelStyle, k.Key), k.Value, colorize(dimStyle, "("+k.EnvVar+")"))
	}
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.SetKey(key, value); err != nil {
			return err
		}
		printSuccess("Set %s", key)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Reset a configuration value to its default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
