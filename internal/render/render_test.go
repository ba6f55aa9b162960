package render

import (
	"strings"
	"testing"
	"time"

	"github.com/kalambet/dscopilot/internal/chunk"
	"github.com/kalambet/dscopilot/internal/design"
)

func TestComponents_TextThenColorTable(t *testing.T) {
	content := `{"type":"text","content":"hi"}` + "\n" +
		`{"type":"tool-call","name":"getColorInfo","data":{"colors":[{"name":"primary","collection":"Brand","mode":"Light","hex":"#0D99FF"}]}}`

	cs := Components(chunk.Parse(content))
	if len(cs) != 2 {
		t.Fatalf("got %d components, want 2", len(cs))
	}
	if p, ok := cs[0].(Paragraph); !ok || p.Text != "hi" {
		t.Errorf("first = %#v", cs[0])
	}
	table, ok := cs[1].(ColorTable)
	if !ok {
		t.Fatalf("second = %#v, want ColorTable", cs[1])
	}
	if len(table.Info.Colors) != 1 || table.Info.Colors[0].Hex != "#0D99FF" {
		t.Errorf("table = %+v", table.Info)
	}

	view := table.View()
	for _, want := range []string{"primary", "Brand/Light", "#0D99FF"} {
		if !strings.Contains(view, want) {
			t.Errorf("table view missing %q:\n%s", want, view)
		}
	}
}

func TestComponents_PlainText(t *testing.T) {
	cs := Components(chunk.Parse("not json at all"))
	if len(cs) != 1 {
		t.Fatalf("got %d components, want 1", len(cs))
	}
	if p, ok := cs[0].(Paragraph); !ok || p.Text != "not json at all" {
		t.Errorf("component = %#v", cs[0])
	}
}

func TestComponents_AllTools(t *testing.T) {
	content := strings.Join([]string{
		`{"type":"tool-call","name":"getSelectionInfo","data":{"count":2,"items":[{"id":"1","name":"Card","type":"FRAME","width":300,"height":200},{"id":"2","name":"Icon","type":"VECTOR","width":24,"height":24}],"page":{"name":"Page 1"}}}`,
		`{"type":"tool-call","name":"displayWeather","data":{"location":"Lisbon","temperature":21.4,"condition":"Sunny"}}`,
		`{"type":"tool-call","name":"runAutomator","data":{"name":"Hover","color":"#FF00AA","actions":[{"id":"a","command":{"name":"createVariant","metadata":{"variant":"Hover"}},"actions":[{"id":"b","command":{"name":"teleport"}}]}]}}`,
		`{"type":"tool-call","name":"getColorInfo","data":"not an object"}`,
	}, "\n")

	cs := Components(chunk.Parse(content))
	if len(cs) != 3 {
		t.Fatalf("got %d components, want 3 (bad color data dropped): %#v", len(cs), cs)
	}

	sel := cs[0].(SelectionSummary).View()
	for _, want := range []string{"2 items selected", "Page 1", "Card", "FRAME 300x200", "Icon"} {
		if !strings.Contains(sel, want) {
			t.Errorf("selection view missing %q:\n%s", want, sel)
		}
	}

	weather := cs[1].(WeatherCard).View()
	for _, want := range []string{"Lisbon", "21°C", "Sunny"} {
		if !strings.Contains(weather, want) {
			t.Errorf("weather view missing %q:\n%s", want, weather)
		}
	}

	card := cs[2].(AutomatorCard).View()
	for _, want := range []string{"Hover", "Create Variant", "(variant=Hover)", "teleport", "(unsupported)"} {
		if !strings.Contains(card, want) {
			t.Errorf("automator view missing %q:\n%s", want, card)
		}
	}
}

func TestSelectionSummary_Empty(t *testing.T) {
	if v := (SelectionSummary{}).View(); !strings.Contains(v, "Nothing is selected") {
		t.Errorf("view = %q", v)
	}
}

func TestColorTable_Empty(t *testing.T) {
	if v := (ColorTable{}).View(); !strings.Contains(v, "No color tokens") {
		t.Errorf("view = %q", v)
	}
}

func TestScripts(t *testing.T) {
	s := design.DefaultScript(time.Now())
	cs := []Component{Paragraph{Text: "x"}, AutomatorCard{Script: s}}

	got := Scripts(cs)
	if len(got) != 1 || got[0].ID != s.ID {
		t.Errorf("Scripts = %+v", got)
	}
	if Scripts([]Component{Paragraph{Text: "x"}}) != nil {
		t.Error("expected no scripts")
	}
}

func TestRender_JoinsViews(t *testing.T) {
	out := Render(`{"type":"text","content":"first"}` + "\n" + "second line")
	if !strings.Contains(out, "first") || !strings.Contains(out, "second line") {
		t.Errorf("Render = %q", out)
	}
	if Render("") != "" {
		t.Error("empty content should render nothing")
	}
}
