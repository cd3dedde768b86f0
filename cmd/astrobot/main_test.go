package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := strings.Join([]string{
		"# comment",
		"",
		"ASTROBOT_TEST_PLAIN=one",
		`export ASTROBOT_TEST_QUOTED="two"`,
		"ASTROBOT_TEST_KEEP=from-file",
		"=novalue",
		"garbage",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ASTROBOT_TEST_PLAIN", "")
	t.Setenv("ASTROBOT_TEST_QUOTED", "")
	t.Setenv("ASTROBOT_TEST_KEEP", "from-env")

	loadDotEnv(path)

	for key, want := range map[string]string{
		"ASTROBOT_TEST_PLAIN":  "one",
		"ASTROBOT_TEST_QUOTED": "two",
		"ASTROBOT_TEST_KEEP":   "from-env",
	} {
		if got := os.Getenv(key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	loadDotEnv(filepath.Join(t.TempDir(), "absent.env"))
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, path := range [][]string{
		{"serve"},
		{"run"},
		{"summary"},
		{"retention"},
		{"doctor"},
		{"scenarios", "list"},
		{"scenarios", "sync"},
	} {
		cmd, _, err := root.Find(path)
		if err != nil {
			t.Fatalf("find %v: %v", path, err)
		}
		if cmd.Name() != path[len(path)-1] {
			t.Errorf("find %v resolved to %q", path, cmd.Name())
		}
	}
	if root.PersistentFlags().Lookup("home") == nil {
		t.Error("missing --home flag")
	}
}

func TestRunCommand_RejectsBadSessionID(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"run", "abc", "mission"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	err := root.ExecuteContext(context.Background())
	if err == nil || !strings.Contains(err.Error(), "invalid session id") {
		t.Fatalf("err = %v, want invalid session id", err)
	}
}

func TestParseSessionID(t *testing.T) {
	if id, err := parseSessionID("42"); err != nil || id != 42 {
		t.Fatalf("parseSessionID(42) = %d, %v", id, err)
	}
	for _, raw := range []string{"", "0", "-3", "x1"} {
		if _, err := parseSessionID(raw); err == nil {
			t.Errorf("parseSessionID(%q) succeeded", raw)
		}
	}
}

const testSeed = `scenarios:
  - code: mission
    title: Mission
    prompt: "Describe the mission of {name}."
    output_schema: '{"type":"object","required":["mission"],"properties":{"mission":{"type":"string"}}}'
    enabled: true
  - code: karma
    title: Karma
    prompt: "Karmic lessons."
    enabled: false
`

func isolatedHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("ASTROBOT_HOME", home)
	t.Setenv("ASTROBOT_DB_PATH", "")
	t.Setenv("ASTROBOT_SCENARIOS_FILE", "")
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("TELEGRAM_TOKEN", "")
	t.Setenv("ASTROBOT_OTEL_ENABLED", "false")
	return home
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(append([]string{"--daemon"}, args...))
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("astrobot %v: %v", args, err)
	}
	return out.String()
}

func TestScenariosSyncAndList(t *testing.T) {
	home := isolatedHome(t)
	if err := os.WriteFile(filepath.Join(home, "scenarios.yaml"), []byte(testSeed), 0o600); err != nil {
		t.Fatal(err)
	}

	out := execute(t, "scenarios", "sync")
	if !strings.Contains(out, "synced 2 scenarios") {
		t.Fatalf("sync output = %q", out)
	}

	out = execute(t, "scenarios", "list")
	for _, want := range []string{"CODE", "mission", "Mission", "karma", "false"} {
		if !strings.Contains(out, want) {
			t.Errorf("list output missing %q:\n%s", want, out)
		}
	}
}

func TestRetentionCommand_EmptyStore(t *testing.T) {
	isolatedHome(t)
	out := execute(t, "retention", "--days", "30")
	if !strings.Contains(out, "purged 0 llm messages older than 30 days") {
		t.Fatalf("retention output = %q", out)
	}
}

func TestDoctorCommand_OfflineJSON(t *testing.T) {
	isolatedHome(t)
	out := execute(t, "doctor", "--offline", "--json")
	for _, want := range []string{`"name": "Database"`, `"status": "PASS"`} {
		if !strings.Contains(out, want) {
			t.Errorf("doctor output missing %s:\n%s", want, out)
		}
	}
}
