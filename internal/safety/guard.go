package safety

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMaxInputLength applies when the admin limit is unset or invalid.
const DefaultMaxInputLength = 80

// Action indicates the recommended response to a checked input.
type Action int

const (
	ActionAllow Action = iota
	ActionBlock
)

// CheckResult is the outcome of an input check.
type CheckResult struct {
	Action Action
	Reason string
	// Pattern names the rule that matched, for logging.
	Pattern string
}

// MustAllow returns an error if the check result is Block.
func (r CheckResult) MustAllow() error {
	if r.Action == ActionBlock {
		return fmt.Errorf("input rejected: %s", r.Reason)
	}
	return nil
}

// InputGuard screens free text typed by users before it is stored in a
// session profile. Profile fields end up in the session summary and thus in
// every generation context, so links, markup and instruction-like phrases
// are refused outright.
type InputGuard struct {
	maxLen int
}

// NewInputGuard returns a guard with the given rune limit. Values <= 0 fall
// back to DefaultMaxInputLength.
func NewInputGuard(maxLen int) *InputGuard {
	if maxLen <= 0 {
		maxLen = DefaultMaxInputLength
	}
	return &InputGuard{maxLen: maxLen}
}

func (g *InputGuard) MaxLen() int { return g.maxLen }

type guardPattern struct {
	re     *regexp.Regexp
	reason string
}

var guardPatterns = []guardPattern{
	{regexp.MustCompile(`(?i)(https?://|www\.|t\.me/|@\w{2,})`), "link or handle"},
	{regexp.MustCompile("(?i)(<\\s*script\\b|`{1,3}|</?code>|data:|base64,|-----BEGIN )"), "code or encoded payload"},
	{regexp.MustCompile(`(?i)\b(ignore\s+(all\s+)?(previous|above|prior)(\s+(instructions?|prompts?|rules?))?|disregard\s+instructions|system\s+prompt|api\s+key)\b`), "instruction override"},
	{regexp.MustCompile(`(?i)\b(reveal|show|display|print|repeat)\s+(\w+\s+)?(your\s+)?(system\s+)?(prompt|instructions?)\b`), "prompt extraction"},
	{regexp.MustCompile(`(?i)\byou\s+are\s+now\s+(a|an|the)\s+\w+`), "identity override"},
	{regexp.MustCompile(`(?i)<\s*\|?\s*(system|im_start|im_end)\s*\|?\s*>`), "chat template tag"},
}

// Check analyzes one profile value.
func (g *InputGuard) Check(input string) CheckResult {
	text := strings.TrimSpace(input)
	if text == "" {
		return CheckResult{Action: ActionAllow}
	}
	if utf8.RuneCountInString(text) > g.maxLen {
		return CheckResult{Action: ActionBlock, Reason: fmt.Sprintf("longer than %d characters", g.maxLen), Pattern: "max_length"}
	}
	for _, pat := range guardPatterns {
		if pat.re.MatchString(text) {
			return CheckResult{Action: ActionBlock, Reason: pat.reason, Pattern: pat.re.String()}
		}
	}
	return CheckResult{Action: ActionAllow}
}
