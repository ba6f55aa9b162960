package design

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestScriptRoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := Sanitize(AutomatorScript{
		Name: "Variants",
		Actions: []AutomatorAction{
			{
				Command: Command{Name: CmdConvertToComponent},
				Actions: []AutomatorAction{
					{Command: Command{Name: CmdCreateVariant}},
					{
						Command: Command{Name: CmdSetInstanceProperty, Metadata: map[string]any{"property": "State", "value": "Hover"}},
						Actions: []AutomatorAction{{Command: Command{Name: CmdCloneFrame}}},
					},
				},
			},
		},
	}, now)

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := DecodeScript(data)
	if err != nil {
		t.Fatalf("DecodeScript: %v", err)
	}

	if got.ID != s.ID || got.Name != s.Name || !got.CreatedAt.Equal(now) {
		t.Errorf("header mismatch: got %+v", got)
	}
	if Depth(got.Actions) != 3 {
		t.Errorf("Depth = %d, want 3", Depth(got.Actions))
	}
	assertSameTree(t, s.Actions, got.Actions)
}

func assertSameTree(t *testing.T, want, got []AutomatorAction) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if want[i].Command.Name != got[i].Command.Name {
			t.Errorf("command[%d] = %q, want %q", i, got[i].Command.Name, want[i].Command.Name)
		}
		if want[i].ID != got[i].ID {
			t.Errorf("id[%d] = %q, want %q", i, got[i].ID, want[i].ID)
		}
		assertSameTree(t, want[i].Actions, got[i].Actions)
	}
}

func TestDecodeScript_Lenient(t *testing.T) {
	data := []byte(`{"name":"x","createdAt":1700000000000,"actions":[{"command":"cloneFrame"},{"command":{"name":"setVariable","metadata":{"key":"primary","value":"#ff0000"}}}]}`)

	s, err := DecodeScript(data)
	if err != nil {
		t.Fatalf("DecodeScript: %v", err)
	}
	if len(s.Actions) != 2 {
		t.Fatalf("got %d actions, want 2", len(s.Actions))
	}
	if s.Actions[0].Command.Name != CmdCloneFrame {
		t.Errorf("actions[0] = %q", s.Actions[0].Command.Name)
	}
	if s.Actions[1].Command.Metadata["key"] != "primary" {
		t.Errorf("metadata = %v", s.Actions[1].Command.Metadata)
	}
	if s.CreatedAt.IsZero() {
		t.Error("CreatedAt not parsed from epoch millis")
	}
}

func TestDecodeScript_NoActions(t *testing.T) {
	for _, in := range []string{`{"name":"x"}`, `{"actions":"nope"}`} {
		if _, err := DecodeScript([]byte(in)); !errors.Is(err, ErrNoActions) {
			t.Errorf("DecodeScript(%s) err = %v, want ErrNoActions", in, err)
		}
	}
	if _, err := DecodeScript([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestSanitize_Defaults(t *testing.T) {
	now := time.Now()
	s := Sanitize(AutomatorScript{
		Actions: []AutomatorAction{
			{Command: Command{Name: ""}},
			{Command: Command{Name: " unknownThing "}},
			{Command: Command{Name: CmdCloneFrame}},
		},
	}, now)

	if s.ID == "" {
		t.Error("ID not assigned")
	}
	if s.Name != defaultScriptName {
		t.Errorf("Name = %q", s.Name)
	}
	if s.Color != defaultScriptColor {
		t.Errorf("Color = %q", s.Color)
	}
	if len(s.Actions) != 2 {
		t.Fatalf("got %d actions, want 2 (empty command dropped)", len(s.Actions))
	}
	if s.Actions[0].Command.Name != "unknownThing" {
		t.Errorf("unknown command not kept: %q", s.Actions[0].Command.Name)
	}
	if s.Actions[1].Command.Title != "Clone Frame" {
		t.Errorf("Title = %q", s.Actions[1].Command.Title)
	}
	for _, a := range s.Actions {
		if a.ID == "" || a.Command.Metadata == nil || a.Actions == nil {
			t.Errorf("action not fully sanitized: %+v", a)
		}
	}
}

func TestDefaultScript(t *testing.T) {
	s := DefaultScript(time.Now())
	if len(s.Actions) != 1 || s.Actions[0].Command.Name != CmdCloneFrame {
		t.Errorf("DefaultScript actions = %+v", s.Actions)
	}
}

func TestColorInfoFrom(t *testing.T) {
	snap := &DesignSystemSnapshot{Variables: Variables{Colors: ColorVariables{
		Collections: []ColorCollection{{
			Name:  "Brand",
			Modes: []Mode{{ID: "1", Name: "Light"}, {ID: "2", Name: "Dark"}},
			Tokens: []ColorToken{
				{Name: "primary", Values: map[string]string{"Light": "#0D99FF", "Dark": "#0A7ACC"}},
				{Name: "accent", Values: map[string]string{"Light": "#FF00FF"}},
			},
		}},
	}}}

	info := ColorInfoFrom(snap)
	if len(info.Colors) != 3 {
		t.Fatalf("got %d rows, want 3", len(info.Colors))
	}
	if info.Colors[1].Mode != "Dark" || info.Colors[1].Hex != "#0A7ACC" {
		t.Errorf("row[1] = %+v", info.Colors[1])
	}

	if got := ColorInfoFrom(nil); got.Colors == nil || len(got.Colors) != 0 {
		t.Errorf("ColorInfoFrom(nil) = %+v", got)
	}
}
