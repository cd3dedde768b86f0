package persistence_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/basket/astrobot/internal/persistence"
	"github.com/google/go-cmp/cmp"
)

func openTestStore(t *testing.T) (*persistence.Store, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "astrobot.db")
	store, err := persistence.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store, dbPath
}

func queryOneString(t *testing.T, db *sql.DB, q string) string {
	t.Helper()
	var out string
	if err := db.QueryRow(q).Scan(&out); err != nil {
		t.Fatalf("query %q: %v", q, err)
	}
	return out
}

func seedSession(t *testing.T, store *persistence.Store, tgID int64) (persistence.User, int64) {
	t.Helper()
	ctx := context.Background()
	u, err := store.EnsureUser(ctx, tgID, "Ann")
	if err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	id, err := store.CreateSession(ctx, persistence.Session{
		UserID: u.ID, Name: "Ann", Gender: "female", SystemCode: "western", SystemTitle: "Western",
		BirthDate: "1990-05-17", Lat: 55.75, Lon: 37.62, TZ: "Europe/Moscow",
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return u, id
}

func TestStore_OpenConfiguresWALAndSchema(t *testing.T) {
	store, _ := openTestStore(t)
	db := store.DB()

	if journal := queryOneString(t, db, "PRAGMA journal_mode;"); journal != "wal" {
		t.Fatalf("expected journal_mode=wal, got %q", journal)
	}
	var foreignKeys int
	if err := db.QueryRow("PRAGMA foreign_keys;").Scan(&foreignKeys); err != nil {
		t.Fatalf("pragma foreign_keys: %v", err)
	}
	if foreignKeys != 1 {
		t.Fatalf("expected foreign_keys=1, got %d", foreignKeys)
	}

	required := []string{"schema_migrations", "users", "sessions", "session_facts", "session_facts_versions",
		"session_summary", "llm_messages", "admin_settings", "admin_scenarios", "referrals"}
	for _, table := range required {
		var got string
		if err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name = ?", table).Scan(&got); err != nil {
			t.Fatalf("table %s not found: %v", table, err)
		}
	}
}

func TestStore_ReopenKeepsLedger(t *testing.T) {
	store, path := openTestStore(t)
	_ = store.Close()

	again, err := persistence.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer again.Close()
	if got := queryOneString(t, again.DB(), "SELECT checksum FROM schema_migrations WHERE version = 1;"); got == "" {
		t.Fatal("expected checksum in ledger")
	}
}

func TestStore_CreateSessionDeactivatesPrevious(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	u, first := seedSession(t, store, 100)

	second, err := store.CreateSession(ctx, persistence.Session{UserID: u.ID, Name: "Ann", BirthDate: "1991-01-01"})
	if err != nil {
		t.Fatalf("create second session: %v", err)
	}
	old, err := store.GetSession(ctx, first)
	if err != nil {
		t.Fatalf("get first: %v", err)
	}
	if old.IsActive {
		t.Fatal("expected first session to be deactivated")
	}
	active, err := store.ActiveSession(ctx, u.ID)
	if err != nil {
		t.Fatalf("active session: %v", err)
	}
	if active.ID != second {
		t.Fatalf("expected active session %d, got %d", second, active.ID)
	}
	if active.BirthTime != "" {
		t.Fatalf("expected unknown birth time, got %q", active.BirthTime)
	}

	if err := store.DeactivateSessions(ctx, u.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := store.ActiveSession(ctx, u.ID); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after reset, got %v", err)
	}
}

func TestStore_EnsureUserKeepsNameOnEmpty(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	if _, err := store.EnsureUser(ctx, 7, "Boris"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	u, err := store.EnsureUser(ctx, 7, "")
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if u.Name != "Boris" {
		t.Fatalf("expected name kept, got %q", u.Name)
	}
}

func TestStore_Referrals(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	inviter, _ := store.EnsureUser(ctx, 1, "a")
	b, _ := store.EnsureUser(ctx, 2, "b")
	c, _ := store.EnsureUser(ctx, 3, "c")

	tests := []struct {
		name    string
		invited int64
		want    bool
	}{
		{"first invite", b.ID, true},
		{"duplicate invite ignored", b.ID, false},
		{"self referral rejected", inviter.ID, false},
		{"second invite", c.ID, true},
	}
	for _, tc := range tests {
		got, err := store.RegisterReferral(ctx, inviter.ID, tc.invited)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: inserted=%v, want %v", tc.name, got, tc.want)
		}
	}
	n, err := store.CountReferrals(ctx, inviter.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 referrals, got %d", n)
	}
}

func TestStore_SettingsSeedDoesNotOverwrite(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	if err := store.SetSetting(ctx, "strict_json", "false"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.SeedSetting(ctx, "strict_json", "true"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.SeedSetting(ctx, "greeting_text", "hi"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	all, err := store.Settings(ctx)
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	want := map[string]string{"strict_json": "false", "greeting_text": "hi"}
	if diff := cmp.Diff(want, all); diff != "" {
		t.Fatalf("settings mismatch (-want +got):\n%s", diff)
	}
	if _, ok, _ := store.Setting(ctx, "missing"); ok {
		t.Fatal("expected missing setting to be unset")
	}
}

func TestStore_ScenarioCRUD(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	rows := []persistence.ScenarioRow{
		{Code: "mission", Title: "Mission", Prompt: "p1", OutputSchema: `{"type":"object"}`, Enabled: true},
		{Code: "love", Title: "Love", Prompt: "p2", Enabled: false},
	}
	for _, r := range rows {
		if err := store.UpsertScenario(ctx, r); err != nil {
			t.Fatalf("upsert %s: %v", r.Code, err)
		}
	}
	enabled, err := store.ListScenarios(ctx, true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(enabled) != 1 || enabled[0].Code != "mission" {
		t.Fatalf("unexpected enabled list: %+v", enabled)
	}
	got, err := store.GetScenario(ctx, "mission")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.OutputSchema != `{"type":"object"}` {
		t.Fatalf("schema not kept verbatim: %q", got.OutputSchema)
	}
	if err := store.DeleteScenario(ctx, "love"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.DeleteScenario(ctx, "love"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_LLMMessagesAndRetention(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	ok := true
	for _, role := range []string{"system", "assistant_raw"} {
		if err := store.AppendLLMMessage(ctx, persistence.LLMMessage{SessionID: 9, Role: role, Content: "x", Scenario: "mission", SchemaOK: &ok}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	old := time.Now().UTC().AddDate(0, 0, -40).Format("2006-01-02 15:04:05")
	if _, err := store.DB().Exec(`UPDATE llm_messages SET created_at = ? WHERE role = 'system'`, old); err != nil {
		t.Fatalf("age row: %v", err)
	}

	res, err := store.RunRetention(ctx, 30)
	if err != nil {
		t.Fatalf("retention: %v", err)
	}
	if res.PurgedLLMMessages != 1 {
		t.Fatalf("expected 1 purged row, got %d", res.PurgedLLMMessages)
	}
	msgs, err := store.ListLLMMessages(ctx, 9, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Role != "assistant_raw" || msgs[0].SchemaOK == nil || !*msgs[0].SchemaOK {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
}

func TestStore_SummaryRoundTrip(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	_, sid := seedSession(t, store, 5)
	if got, err := store.LoadSummary(ctx, sid); err != nil || got != "" {
		t.Fatalf("expected empty summary, got %q err=%v", got, err)
	}
	for _, text := range []string{"first", "second"} {
		if err := store.SaveSummary(ctx, sid, text); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if got, _ := store.LoadSummary(ctx, sid); got != "second" {
		t.Fatalf("expected latest summary, got %q", got)
	}
}
