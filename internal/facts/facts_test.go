package facts_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/basket/astrobot/internal/facts"
	"github.com/basket/astrobot/internal/persistence"
	"github.com/basket/astrobot/internal/telemetry"
)

func openTestStore(t *testing.T) *persistence.Store {
	t.Helper()
	store, err := persistence.Open(filepath.Join(t.TempDir(), "astrobot.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedSession(t *testing.T, db *persistence.Store, chart string) int64 {
	t.Helper()
	ctx := context.Background()
	u, err := db.EnsureUser(ctx, 1001, "Vera")
	if err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	id, err := db.CreateSession(ctx, persistence.Session{
		UserID:      u.ID,
		Name:        "Vera",
		Gender:      "female",
		SystemCode:  "western",
		SystemTitle: "Western",
		BirthDate:   "1990-04-12",
		Lat:         55.75,
		Lon:         37.62,
		TZ:          "Europe/Moscow",
		Chart:       chart,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return id
}

func newFacts(t *testing.T) (*persistence.Store, *facts.Store, int64) {
	t.Helper()
	db := openTestStore(t)
	sid := seedSession(t, db, "")
	return db, facts.NewStore(db, nil, telemetry.Discard()), sid
}

func TestRecord_MissionUpdatesProjectionAndSummary(t *testing.T) {
	ctx := context.Background()
	db, store, sid := newFacts(t)

	f, err := store.Record(ctx, sid, "mission", map[string]any{"text": "Build bridges. Then cross them."}, true)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if f.Mission != "Build bridges. Then cross them." {
		t.Fatalf("mission = %q", f.Mission)
	}
	summary, err := db.LoadSummary(ctx, sid)
	if err != nil {
		t.Fatalf("load summary: %v", err)
	}
	if !strings.Contains(summary, "Mission: Build bridges.") {
		t.Fatalf("summary missing mission excerpt: %q", summary)
	}
	if strings.Contains(summary, "Then cross them") {
		t.Fatalf("summary should stop at the first sentence: %q", summary)
	}
}

func TestRecord_CountriesRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, store, sid := newFacts(t)

	want := []string{"Portugal", "Japan", "Chile", "Norway", "Georgia"}
	if _, err := store.Record(ctx, sid, "countries", map[string]any{"items": []any{"Portugal", "Japan", "Chile", "Norway", "Georgia"}}, true); err != nil {
		t.Fatalf("record: %v", err)
	}
	f, err := store.Read(ctx, sid)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if diff := cmp.Diff(want, f.Countries); diff != "" {
		t.Fatalf("countries mismatch (-want +got):\n%s", diff)
	}
	v, ok := f.Value("countries")
	if !ok {
		t.Fatal("countries should be cached")
	}
	if diff := cmp.Diff(map[string]any{"items": []any{"Portugal", "Japan", "Chile", "Norway", "Georgia"}}, v); diff != "" {
		t.Fatalf("value mismatch (-want +got):\n%s", diff)
	}
}

func TestRecord_RoutesByCode(t *testing.T) {
	ctx := context.Background()
	_, store, sid := newFacts(t)

	if _, err := store.Record(ctx, sid, "love", "You love loudly.", true); err != nil {
		t.Fatalf("record love: %v", err)
	}
	if _, err := store.Record(ctx, sid, "finance", `{"finance":"Save first."}`, true); err != nil {
		t.Fatalf("record finance: %v", err)
	}
	if _, err := store.Record(ctx, sid, "compat", map[string]any{"score": 7.0, "note": "ok"}, true); err != nil {
		t.Fatalf("record compat: %v", err)
	}

	f, err := store.Read(ctx, sid)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if f.Love != "You love loudly." {
		t.Fatalf("love = %q", f.Love)
	}
	if got := f.Text("finance"); got != "Save first." {
		t.Fatalf("finance = %q", got)
	}
	if diff := cmp.Diff(map[string]any{"score": 7.0, "note": "ok"}, f.Extra["compat"]); diff != "" {
		t.Fatalf("compat extra mismatch (-want +got):\n%s", diff)
	}
	if f.Mission != "" {
		t.Fatalf("mission should stay empty, got %q", f.Mission)
	}

	versions, err := store.Versions(ctx, sid, "love")
	if err != nil {
		t.Fatalf("versions: %v", err)
	}
	if len(versions) != 1 || versions[0].Content != `{"text":"You love loudly."}` {
		t.Fatalf("unexpected love versions: %+v", versions)
	}
}

func TestRecord_EmptyContentKeepsCachedSlot(t *testing.T) {
	ctx := context.Background()
	_, store, sid := newFacts(t)

	if _, err := store.Record(ctx, sid, "mission", map[string]any{"text": "Teach."}, true); err != nil {
		t.Fatalf("record: %v", err)
	}
	f, err := store.Record(ctx, sid, "mission", map[string]any{}, true)
	if err != nil {
		t.Fatalf("record empty: %v", err)
	}
	if f.Mission != "Teach." {
		t.Fatalf("empty content erased mission: %q", f.Mission)
	}
	versions, err := store.Versions(ctx, sid, "mission")
	if err != nil {
		t.Fatalf("versions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("versions = %d, want 2", len(versions))
	}
	active := 0
	for _, v := range versions {
		if v.IsActive {
			active++
		}
	}
	if active != 1 || !versions[1].IsActive {
		t.Fatalf("want exactly the newest version active: %+v", versions)
	}
}

func TestClear_RemovesSlotAndSummaryLine(t *testing.T) {
	ctx := context.Background()
	db, store, sid := newFacts(t)

	if _, err := store.Record(ctx, sid, "year", map[string]any{"text": "A long year of quiet, steady growth ahead for you."}, true); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := store.Clear(ctx, sid, "year"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	f, err := store.Read(ctx, sid)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if f.Has("year") {
		t.Fatalf("year still cached: %v", f.Extra)
	}
	summary, _ := db.LoadSummary(ctx, sid)
	if strings.Contains(summary, "Year:") {
		t.Fatalf("summary still mentions year: %q", summary)
	}
}

func TestAssemble_NormalizesChart(t *testing.T) {
	ctx := context.Background()
	db := openTestStore(t)
	sid := seedSession(t, db, `"{\"sun\":\"aries\"}"`)
	store := facts.NewStore(db, nil, nil)

	gc, err := facts.NewAssembler(db, store).Assemble(ctx, sid)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if diff := cmp.Diff(map[string]any{"sun": "aries"}, gc.Chart); diff != "" {
		t.Fatalf("chart mismatch (-want +got):\n%s", diff)
	}
	if gc.Summary != "" {
		t.Fatalf("summary = %q, want empty before any write", gc.Summary)
	}
	if gc.Facts.Has("mission") {
		t.Fatal("no slot should be cached yet")
	}
}

func TestAssemble_NoChartIsNull(t *testing.T) {
	db := openTestStore(t)
	sid := seedSession(t, db, "")
	gc, err := facts.NewAssembler(db, facts.NewStore(db, nil, nil)).Assemble(context.Background(), sid)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if gc.Chart != nil {
		t.Fatalf("chart = %v, want nil", gc.Chart)
	}
}
