package doctor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/basket/astrobot/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	home := t.TempDir()
	cfg := &config.Config{HomeDir: home, DBPath: filepath.Join(home, "astrobot.db"), ScenariosFile: "scenarios.yaml"}
	cfg.LLM.Provider = "openai"
	return cfg
}

func find(t *testing.T, d Diagnosis, name string) CheckResult {
	t.Helper()
	for _, r := range d.Results {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("check %q missing from %+v", name, d.Results)
	return CheckResult{}
}

func TestRun_OfflineFreshHome(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg := testConfig(t)

	d := Run(context.Background(), cfg, true)

	for name, want := range map[string]string{
		"Config":      StatusWarn,
		"API Key":     StatusWarn,
		"Database":    StatusPass,
		"Scenarios":   StatusWarn,
		"Permissions": StatusPass,
		"Telegram":    StatusWarn,
	} {
		if got := find(t, d, name).Status; got != want {
			t.Errorf("%s status = %s, want %s", name, got, want)
		}
	}
	for _, r := range d.Results {
		if r.Name == "Network" || r.Name == "Redis" {
			t.Errorf("offline run probed %s", r.Name)
		}
	}
	if d.Failed() {
		t.Fatal("fresh home should not fail")
	}
}

func TestCheckScenarios_BrokenSchemaFails(t *testing.T) {
	cfg := testConfig(t)
	seed := `scenarios:
  - code: mission
    prompt: hi
    output_schema: '{"type": 12}'
`
	if err := os.WriteFile(cfg.ScenariosPath(), []byte(seed), 0o600); err != nil {
		t.Fatal(err)
	}
	r := checkScenarios(context.Background(), cfg)
	if r.Status != StatusFail {
		t.Fatalf("status = %s (%s), want FAIL", r.Status, r.Message)
	}
}

func TestCheckScenarios_ValidSeed(t *testing.T) {
	cfg := testConfig(t)
	seed := `scenarios:
  - code: mission
    prompt: hi
    output_schema:
      type: object
      required: [text]
  - code: strengths
    prompt: list
`
	if err := os.WriteFile(cfg.ScenariosPath(), []byte(seed), 0o600); err != nil {
		t.Fatal(err)
	}
	r := checkScenarios(context.Background(), cfg)
	if r.Status != StatusPass {
		t.Fatalf("status = %s (%s), want PASS", r.Status, r.Message)
	}
}

func TestChecks_NilConfig(t *testing.T) {
	for _, c := range []check{checkAPIKey, checkDatabase, checkScenarios, checkPermissions, checkTelegram, checkRedis, checkNetwork} {
		if r := c(context.Background(), nil); r.Status != StatusSkip {
			t.Errorf("%s with nil config = %s, want SKIP", r.Name, r.Status)
		}
	}
	if r := checkConfig(context.Background(), nil); r.Status != StatusFail {
		t.Errorf("Config with nil config = %s, want FAIL", r.Status)
	}
}

func TestCheckTelegram(t *testing.T) {
	cfg := testConfig(t)
	cfg.Telegram.Token = "123:abc"
	cfg.Telegram.BotUsername = "astro_bot"
	r := checkTelegram(context.Background(), cfg)
	if r.Status != StatusPass || r.Message != "Token set for @astro_bot" {
		t.Fatalf("got %+v", r)
	}
}

func TestHostOf(t *testing.T) {
	for raw, want := range map[string]string{
		"https://llm.internal:8443/v1": "llm.internal",
		"http://localhost:11434":       "localhost",
		"api.example.com/v1?x=1":       "api.example.com",
	} {
		if got := hostOf(raw); got != want {
			t.Errorf("hostOf(%q) = %q, want %q", raw, got, want)
		}
	}
}
