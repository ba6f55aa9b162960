package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/kalambet/dscopilot/internal/design"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) == 0 || len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	for _, idx := range []string{"idx_scripts_created", "idx_scripts_source"} {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

func testScript(id string, created time.Time) design.AutomatorScript {
	return design.AutomatorScript{
		ID:          id,
		Name:        "Script " + id,
		Description: "makes variants",
		Color:       "#0D99FF",
		CreatedAt:   created,
		Actions: []design.AutomatorAction{
			{
				ID:      id + "-a1",
				Command: design.Command{Name: design.CmdCreateVariant, Metadata: map[string]any{"variant": "Hover"}},
				Actions: []design.AutomatorAction{
					{ID: id + "-a2", Command: design.Command{Name: design.CmdCloneFrame, Metadata: map[string]any{}}},
				},
			},
		},
	}
}

func TestSaveAndGetScript(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	if err := s.SaveScript(testScript("s1", now), SourceGenerated); err != nil {
		t.Fatalf("SaveScript: %v", err)
	}

	got, err := s.GetScript("s1")
	if err != nil {
		t.Fatalf("GetScript: %v", err)
	}
	if got.Name != "Script s1" || got.Color != "#0D99FF" || got.Source != SourceGenerated {
		t.Errorf("got = %+v", got)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, now)
	}
	if len(got.Actions) != 1 || len(got.Actions[0].Actions) != 1 || got.Actions[0].Actions[0].Command.Name != design.CmdCloneFrame {
		t.Errorf("actions tree not preserved: %+v", got.Actions)
	}
	if got.Actions[0].Command.Metadata["variant"] != "Hover" {
		t.Errorf("metadata = %v", got.Actions[0].Command.Metadata)
	}
	if got.RunCount != 0 || got.LastRunAt != nil {
		t.Errorf("run bookkeeping = %d, %v", got.RunCount, got.LastRunAt)
	}
}

func TestScriptTimestamps_AnyPrecision(t *testing.T) {
	s := openTestStore(t)
	stamps := map[string]time.Time{
		"whole":  time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
		"millis": time.Date(2026, 10, 19, 12, 0, 1, 937_000_000, time.UTC),
		"nanos":  time.Date(2026, 10, 19, 12, 0, 2, 123_456_789, time.UTC),
		"offset": time.Date(2026, 10, 19, 14, 0, 3, 0, time.FixedZone("CEST", 2*3600)),
	}
	for id, ts := range stamps {
		if err := s.SaveScript(testScript(id, ts), ""); err != nil {
			t.Fatalf("SaveScript(%s): %v", id, err)
		}
	}
	runAt := time.Date(2026, 10, 19, 13, 0, 0, 0, time.UTC)
	if err := s.MarkScriptRun("whole", runAt); err != nil {
		t.Fatalf("MarkScriptRun: %v", err)
	}

	for id, ts := range stamps {
		got, err := s.GetScript(id)
		if err != nil {
			t.Fatalf("GetScript(%s): %v", id, err)
		}
		if !got.CreatedAt.Equal(ts) {
			t.Errorf("%s: CreatedAt = %v, want %v", id, got.CreatedAt, ts)
		}
	}
	whole, _ := s.GetScript("whole")
	if whole.LastRunAt == nil || !whole.LastRunAt.Equal(runAt) {
		t.Errorf("LastRunAt = %v, want %v", whole.LastRunAt, runAt)
	}

	list, err := s.ListScripts("", 10)
	if err != nil {
		t.Fatalf("ListScripts: %v", err)
	}
	want := []string{"offset", "nanos", "millis", "whole"}
	if len(list) != len(want) {
		t.Fatalf("listed %d scripts, want %d", len(list), len(want))
	}
	for i, id := range want {
		if list[i].ID != id {
			t.Errorf("list[%d] = %s, want %s", i, list[i].ID, id)
		}
	}
}

func TestStoredTime(t *testing.T) {
	want := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	for _, v := range []any{want, "2026-10-19T12:00:00Z", []byte("2026-10-19T12:00:00.000000000Z")} {
		got, err := storedTime(v)
		if err != nil || !got.Equal(want) {
			t.Errorf("storedTime(%v) = %v, %v", v, got, err)
		}
	}
	if _, err := storedTime(int64(5)); err == nil {
		t.Error("expected error for integer timestamp")
	}
}

func TestGetScriptNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetScript("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSaveScript_EmptyID(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveScript(design.AutomatorScript{}, ""); err == nil {
		t.Error("expected error for empty id")
	}
}

func TestSaveScript_UpsertKeepsRuns(t *testing.T) {
	s := openTestStore(t)
	sc := testScript("s1", time.Now())
	if err := s.SaveScript(sc, SourceUser); err != nil {
		t.Fatalf("SaveScript: %v", err)
	}
	if err := s.MarkScriptRun("s1", time.Now()); err != nil {
		t.Fatalf("MarkScriptRun: %v", err)
	}

	sc.Name = "Renamed"
	if err := s.SaveScript(sc, SourceUser); err != nil {
		t.Fatalf("SaveScript (update): %v", err)
	}
	got, err := s.GetScript("s1")
	if err != nil {
		t.Fatalf("GetScript: %v", err)
	}
	if got.Name != "Renamed" || got.RunCount != 1 || got.LastRunAt == nil {
		t.Errorf("got = %+v", got)
	}
}

func TestListScripts(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		source := SourceUser
		if id == "mid" {
			source = SourceGenerated
		}
		if err := s.SaveScript(testScript(id, base.Add(time.Duration(i)*time.Minute)), source); err != nil {
			t.Fatalf("SaveScript(%s): %v", id, err)
		}
	}

	all, err := s.ListScripts("", 0)
	if err != nil {
		t.Fatalf("ListScripts: %v", err)
	}
	if len(all) != 3 || all[0].ID != "new" || all[2].ID != "old" {
		t.Errorf("order = %v", ids(all))
	}

	limited, err := s.ListScripts("", 2)
	if err != nil {
		t.Fatalf("ListScripts: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limit 2 returned %d", len(limited))
	}

	gen, err := s.ListScripts(SourceGenerated, 10)
	if err != nil {
		t.Fatalf("ListScripts: %v", err)
	}
	if len(gen) != 1 || gen[0].ID != "mid" {
		t.Errorf("generated = %v", ids(gen))
	}
}

func TestListScripts_Empty(t *testing.T) {
	s := openTestStore(t)
	got, err := s.ListScripts("", 10)
	if err != nil {
		t.Fatalf("ListScripts: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("got %v, want empty non-nil slice", got)
	}
}

func TestDeleteScript(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveScript(testScript("s1", time.Now()), ""); err != nil {
		t.Fatalf("SaveScript: %v", err)
	}
	if err := s.DeleteScript("s1"); err != nil {
		t.Fatalf("DeleteScript: %v", err)
	}
	if _, err := s.GetScript("s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("after delete err = %v", err)
	}
	if err := s.DeleteScript("s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestMarkScriptRun_NotFound(t *testing.T) {
	s := openTestStore(t)
	if err := s.MarkScriptRun("missing", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func ids(scripts []Script) []string {
	out := make([]string, len(scripts))
	for i, s := range scripts {
		out[i] = s.ID
	}
	return out
}
