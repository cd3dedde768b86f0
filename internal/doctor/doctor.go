// Package doctor runs offline-friendly health checks over an astrobot home.
package doctor

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/basket/astrobot/internal/config"
	"github.com/basket/astrobot/internal/engine"
	"github.com/basket/astrobot/internal/persistence"
	"github.com/basket/astrobot/internal/scenario"
)

const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
	StatusWarn = "WARN"
	StatusSkip = "SKIP"
)

type CheckResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

type Diagnosis struct {
	Timestamp time.Time     `json:"timestamp"`
	System    SystemInfo    `json:"system"`
	Results   []CheckResult `json:"results"`
}

type SystemInfo struct {
	OS   string `json:"os"`
	Arch string `json:"arch"`
	Go   string `json:"go_version"`
}

// Failed reports whether any check failed.
func (d Diagnosis) Failed() bool {
	for _, r := range d.Results {
		if r.Status == StatusFail {
			return true
		}
	}
	return false
}

type check func(context.Context, *config.Config) CheckResult

// Run executes all diagnostic checks. Network probes are skipped when
// offline is set.
func Run(ctx context.Context, cfg *config.Config, offline bool) Diagnosis {
	d := Diagnosis{
		Timestamp: time.Now().UTC(),
		System: SystemInfo{
			OS:   runtime.GOOS,
			Arch: runtime.GOARCH,
			Go:   runtime.Version(),
		},
	}

	checks := []check{
		checkConfig,
		checkAPIKey,
		checkDatabase,
		checkScenarios,
		checkPermissions,
		checkTelegram,
	}
	if !offline {
		checks = append(checks, checkRedis, checkNetwork)
	}
	for _, c := range checks {
		d.Results = append(d.Results, c(ctx, cfg))
	}
	return d
}

func checkConfig(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Config", Status: StatusFail, Message: "Configuration not loaded"}
	}
	if _, err := os.Stat(config.ConfigPath(cfg.HomeDir)); os.IsNotExist(err) {
		return CheckResult{Name: "Config", Status: StatusWarn, Message: "config.yaml missing; using defaults and environment",
			Detail: "Copy configs/config.example.yaml to " + config.ConfigPath(cfg.HomeDir)}
	}
	return CheckResult{Name: "Config", Status: StatusPass, Message: fmt.Sprintf("Loaded from %s (%s)", cfg.HomeDir, cfg.Fingerprint())}
}

func checkAPIKey(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "API Key", Status: StatusSkip, Message: "Config missing"}
	}
	provider, model, key := cfg.ResolveLLMConfig()
	if key != "" {
		return CheckResult{Name: "API Key", Status: StatusPass, Message: fmt.Sprintf("%s key present (model %s)", provider, model)}
	}
	return CheckResult{
		Name:    "API Key",
		Status:  StatusWarn,
		Message: fmt.Sprintf("No key for provider %s; readings will use mock payloads", provider),
		Detail:  "Set llm.api_key or the provider's environment variable",
	}
}

func checkDatabase(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Database", Status: StatusSkip, Message: "Config missing"}
	}
	store, err := persistence.Open(cfg.DBPath)
	if err != nil {
		return CheckResult{Name: "Database", Status: StatusFail, Message: fmt.Sprintf("Open failed: %v", err)}
	}
	defer store.Close()

	rows, err := store.ListScenarios(ctx, false)
	if err != nil {
		return CheckResult{Name: "Database", Status: StatusFail, Message: fmt.Sprintf("Query failed: %v", err)}
	}
	var broken []string
	for _, r := range rows {
		if strings.TrimSpace(r.OutputSchema) == "" {
			continue
		}
		if _, err := engine.CoerceSchema(r.OutputSchema); err != nil {
			broken = append(broken, r.Code)
		}
	}
	if len(broken) > 0 {
		return CheckResult{Name: "Database", Status: StatusWarn,
			Message: fmt.Sprintf("%d stored schemas do not compile", len(broken)),
			Detail:  "scenarios: " + strings.Join(broken, ", ")}
	}
	return CheckResult{Name: "Database", Status: StatusPass, Message: fmt.Sprintf("Schema valid, %d scenarios registered", len(rows))}
}

func checkScenarios(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Scenarios", Status: StatusSkip, Message: "Config missing"}
	}
	path := cfg.ScenariosPath()
	if path == "" {
		return CheckResult{Name: "Scenarios", Status: StatusSkip, Message: "No seed file configured"}
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return CheckResult{Name: "Scenarios", Status: StatusWarn, Message: "Seed file missing: " + path,
			Detail: "Copy configs/scenarios.yaml there or manage scenarios in the database"}
	}
	items, err := scenario.LoadFile(path)
	if err != nil {
		return CheckResult{Name: "Scenarios", Status: StatusFail, Message: err.Error()}
	}
	for _, s := range items {
		if s.OutputSchema == "" {
			continue
		}
		if _, err := engine.CompileSchema(s.OutputSchema); err != nil {
			return CheckResult{Name: "Scenarios", Status: StatusFail,
				Message: fmt.Sprintf("Schema of %s does not compile", s.Code), Detail: err.Error()}
		}
	}
	return CheckResult{Name: "Scenarios", Status: StatusPass, Message: fmt.Sprintf("%d scenarios in %s", len(items), filepath.Base(path))}
}

func checkPermissions(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Permissions", Status: StatusSkip, Message: "Config missing"}
	}
	testFile := filepath.Join(cfg.HomeDir, ".write_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return CheckResult{Name: "Permissions", Status: StatusFail, Message: fmt.Sprintf("Home dir unwritable: %v", err)}
	}
	_ = os.Remove(testFile)
	return CheckResult{Name: "Permissions", Status: StatusPass, Message: "Home directory writable"}
}

func checkTelegram(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Telegram", Status: StatusSkip, Message: "Config missing"}
	}
	if cfg.Telegram.Token == "" {
		return CheckResult{Name: "Telegram", Status: StatusWarn, Message: "No bot token; serve will idle", Detail: "Set TELEGRAM_TOKEN"}
	}
	if cfg.Telegram.BotUsername == "" {
		return CheckResult{Name: "Telegram", Status: StatusPass, Message: "Token set; bot username resolved at startup"}
	}
	return CheckResult{Name: "Telegram", Status: StatusPass, Message: "Token set for @" + cfg.Telegram.BotUsername}
}

func checkRedis(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil || cfg.Redis.Addr == "" {
		return CheckResult{Name: "Redis", Status: StatusSkip, Message: "Not configured; in-process locks"}
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer client.Close()

	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	start := time.Now()
	if err := client.Ping(pctx).Err(); err != nil {
		return CheckResult{Name: "Redis", Status: StatusWarn, Message: fmt.Sprintf("Ping %s failed: %v", cfg.Redis.Addr, err),
			Detail: "serve falls back to in-process locks"}
	}
	return CheckResult{Name: "Redis", Status: StatusPass, Message: fmt.Sprintf("Ping %s ok (%dms)", cfg.Redis.Addr, time.Since(start).Milliseconds())}
}

var providerHosts = map[string]string{
	"google":            "generativelanguage.googleapis.com",
	"anthropic":         "api.anthropic.com",
	"openai":            "api.openai.com",
	"openai_compatible": "api.openai.com",
}

func checkNetwork(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Network", Status: StatusSkip, Message: "Config missing"}
	}
	provider, _, _ := cfg.ResolveLLMConfig()
	host, ok := providerHosts[provider]
	if !ok {
		host = providerHosts["openai"]
	}
	if cfg.LLM.BaseURL != "" {
		if h := hostOf(cfg.LLM.BaseURL); h != "" {
			host = h
		}
	}

	lookupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	start := time.Now()
	addrs, err := net.DefaultResolver.LookupHost(lookupCtx, host)
	latency := time.Since(start)
	if err != nil {
		return CheckResult{
			Name:    "Network",
			Status:  StatusFail,
			Message: fmt.Sprintf("DNS lookup failed for %s: %v", host, err),
			Detail:  fmt.Sprintf("provider=%s, latency=%dms", provider, latency.Milliseconds()),
		}
	}
	return CheckResult{
		Name:    "Network",
		Status:  StatusPass,
		Message: fmt.Sprintf("DNS resolved %s (%d addresses, %dms)", host, len(addrs), latency.Milliseconds()),
		Detail:  fmt.Sprintf("provider=%s, addresses=%v", provider, addrs),
	}
}

// hostOf extracts the host of a base URL without a port.
func hostOf(raw string) string {
	s := raw
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if h, _, err := net.SplitHostPort(s); err == nil {
		return h
	}
	return s
}
