package settings

import (
	"context"
	"errors"
	"testing"
)

type mapReader struct {
	vals map[string]string
	err  error
}

func (m mapReader) Setting(_ context.Context, key string) (string, bool, error) {
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.vals[key]
	return v, ok, nil
}

type mapSeeder map[string]string

func (m mapSeeder) SeedSetting(_ context.Context, key, val string) error {
	if _, ok := m[key]; !ok {
		m[key] = val
	}
	return nil
}

func TestBool(t *testing.T) {
	ctx := context.Background()
	r := mapReader{vals: map[string]string{
		"a": "TRUE", "b": "on", "c": "0", "d": "  ", "e": "nope",
	}}
	tests := []struct {
		key  string
		def  bool
		want bool
	}{
		{"a", false, true},
		{"b", false, true},
		{"c", true, false},
		{"d", true, true},
		{"e", true, false},
		{"missing", true, true},
	}
	for _, tt := range tests {
		if got := Bool(ctx, r, tt.key, tt.def); got != tt.want {
			t.Errorf("Bool(%q, %v) = %v, want %v", tt.key, tt.def, got, tt.want)
		}
	}
}

func TestInt_FallsBackOnGarbage(t *testing.T) {
	ctx := context.Background()
	r := mapReader{vals: map[string]string{"n": " 5 ", "bad": "five"}}
	if got := Int(ctx, r, "n", 3); got != 5 {
		t.Fatalf("Int(n) = %d, want 5", got)
	}
	if got := Int(ctx, r, "bad", 3); got != 3 {
		t.Fatalf("Int(bad) = %d, want 3", got)
	}
}

func TestString_ReaderErrorUsesDefault(t *testing.T) {
	r := mapReader{err: errors.New("db closed")}
	if got := String(context.Background(), r, KeyGreetingText, "hi"); got != "hi" {
		t.Fatalf("String = %q, want default", got)
	}
	if got := String(context.Background(), nil, KeyGreetingText, "hi"); got != "hi" {
		t.Fatalf("nil reader String = %q, want default", got)
	}
}

func TestSeed_KeepsExistingValues(t *testing.T) {
	s := mapSeeder{KeyStrictJSON: "false"}
	if err := Seed(context.Background(), s, map[string]string{KeyEnableReferrals: "true"}); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if s[KeyStrictJSON] != "false" {
		t.Fatalf("strict_json overwritten: %q", s[KeyStrictJSON])
	}
	if s[KeyEnableReferrals] != "true" {
		t.Fatalf("override not applied: %q", s[KeyEnableReferrals])
	}
	if s[KeyReferralBonusThreshold] != "3" {
		t.Fatalf("default threshold missing: %q", s[KeyReferralBonusThreshold])
	}
}
