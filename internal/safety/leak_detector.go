package safety

import (
	"regexp"
)

// LeakWarning describes a suspicious fragment in generated output.
type LeakWarning struct {
	Pattern string
	Sample  string // first few chars of the match, for logging
}

// LeakDetector scans generated readings for secrets and for echoes of the
// internal context framing.
type LeakDetector struct{}

func NewLeakDetector() *LeakDetector {
	return &LeakDetector{}
}

var leakPatterns = []struct {
	re   *regexp.Regexp
	desc string
}{
	{
		re:   regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*"?([A-Za-z0-9_\-./+=]{16,})"?`),
		desc: "API key",
	},
	{
		re:   regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9_\-./+=]{16,}`),
		desc: "Bearer token",
	},
	{
		re:   regexp.MustCompile(`AIza[A-Za-z0-9_\-]{30,}`),
		desc: "Google API key",
	},
	{
		re:   regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
		desc: "OpenAI API key",
	},
	{
		re:   regexp.MustCompile(`\b\d{8,10}:[A-Za-z0-9_-]{35}\b`),
		desc: "Telegram bot token",
	},
	{
		re:   regexp.MustCompile(`(?m)^(SESSION_SUMMARY|FACTS|ASTRO_JSON):`),
		desc: "context framing echo",
	},
}

// Scan checks output text. The input is never modified.
func (d *LeakDetector) Scan(output string) []LeakWarning {
	if output == "" {
		return nil
	}
	var warnings []LeakWarning
	for _, pat := range leakPatterns {
		matches := pat.re.FindAllString(output, 3)
		for _, match := range matches {
			sample := match
			if len(sample) > 20 {
				sample = sample[:17] + "..."
			}
			warnings = append(warnings, LeakWarning{Pattern: pat.desc, Sample: sample})
		}
	}
	return warnings
}
