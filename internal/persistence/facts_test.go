package persistence_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/basket/astrobot/internal/persistence"
)

func TestFacts_ExactlyOneActiveVersion(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	_, sid := seedSession(t, store, 11)

	for _, content := range []string{`{"text":"a"}`, `{"text":"b"}`, `{"text":"c"}`} {
		if _, err := store.RecordFactVersion(ctx, sid, "mission", content, true, persistence.FactPatch{}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	// An inactive insert must not disturb the active one.
	if _, err := store.RecordFactVersion(ctx, sid, "mission", `{"text":"draft"}`, false, persistence.FactPatch{}); err != nil {
		t.Fatalf("record inactive: %v", err)
	}

	versions, err := store.ListFactVersions(ctx, sid, "mission")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(versions) != 4 {
		t.Fatalf("expected 4 versions, got %d", len(versions))
	}
	active := 0
	for _, v := range versions {
		if v.IsActive {
			active++
		}
	}
	if active != 1 {
		t.Fatalf("expected exactly one active version, got %d", active)
	}
	cur, err := store.ActiveFactVersion(ctx, sid, "mission")
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if cur.Content != `{"text":"c"}` {
		t.Fatalf("expected latest active content, got %s", cur.Content)
	}
}

func TestFacts_ActiveIndexRejectsSecondActiveRow(t *testing.T) {
	store, _ := openTestStore(t)
	_, sid := seedSession(t, store, 12)
	db := store.DB()
	if _, err := db.Exec(`INSERT INTO session_facts_versions (session_id, scenario, content, is_active) VALUES (?, 'love', '{}', 1)`, sid); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO session_facts_versions (session_id, scenario, content, is_active) VALUES (?, 'love', '{}', 1)`, sid); err == nil {
		t.Fatal("expected unique index violation for second active version")
	}
}

func TestFacts_PatchMergesWithoutErasing(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	_, sid := seedSession(t, store, 13)

	steps := []struct {
		scenario string
		patch    persistence.FactPatch
	}{
		{"mission", persistence.FactPatch{Columns: map[string]string{persistence.ColMission: "purpose"}}},
		{"countries", persistence.FactPatch{Columns: map[string]string{persistence.ColCountries: `{"items":["a","b"]}`}}},
		{"year", persistence.FactPatch{Extra: map[string]any{"year": "a long forecast"}}},
		{"custom", persistence.FactPatch{Extra: map[string]any{"custom": map[string]any{"k": "v"}}}},
	}
	for _, st := range steps {
		if _, err := store.RecordFactVersion(ctx, sid, st.scenario, `{}`, true, st.patch); err != nil {
			t.Fatalf("record %s: %v", st.scenario, err)
		}
	}

	row, err := store.ReadFacts(ctx, sid)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if row.Mission != "purpose" {
		t.Fatalf("mission erased: %q", row.Mission)
	}
	if row.Countries != `{"items":["a","b"]}` {
		t.Fatalf("countries = %q", row.Countries)
	}
	if row.Extra != `{"custom":{"k":"v"},"year":"a long forecast"}` {
		t.Fatalf("extra = %q", row.Extra)
	}

	if err := store.ClearFactExtra(ctx, sid, "year"); err != nil {
		t.Fatalf("clear extra: %v", err)
	}
	if err := store.ClearFactColumn(ctx, sid, persistence.ColMission); err != nil {
		t.Fatalf("clear column: %v", err)
	}
	row, _ = store.ReadFacts(ctx, sid)
	if row.Mission != "" || row.Extra != `{"custom":{"k":"v"}}` {
		t.Fatalf("unexpected row after clear: %+v", row)
	}
	if err := store.ClearFactColumn(ctx, sid, "extra; DROP TABLE users"); err == nil {
		t.Fatal("expected unknown column to be rejected")
	}
}

func TestFacts_ReadMissingRowIsEmpty(t *testing.T) {
	store, _ := openTestStore(t)
	row, err := store.ReadFacts(context.Background(), 999)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if row.SessionID != 999 || row.Mission != "" || row.Extra != "" {
		t.Fatalf("expected empty row, got %+v", row)
	}
}

func TestFacts_InsertFailureRollsBackDeactivation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE session_facts_versions SET is_active = 0").
		WithArgs(int64(1), "mission").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO session_facts_versions").
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	store := persistence.FromDB(db)
	_, err = store.RecordFactVersion(context.Background(), 1, "mission", `{"text":"x"}`, true, persistence.FactPatch{})
	if err == nil {
		t.Fatal("expected insert error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("transaction was not rolled back as one unit: %v", err)
	}
}

func TestFacts_UnknownColumnRejectedBeforeWrite(t *testing.T) {
	store, _ := openTestStore(t)
	_, err := store.RecordFactVersion(context.Background(), 1, "x", `{}`, true, persistence.FactPatch{Columns: map[string]string{"extra": "{}"}})
	if err == nil {
		t.Fatal("expected error for unknown column")
	}
}
