package policy

import (
	"os"
	"path/filepath"
	"testing"
)

func writePolicy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.csv")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write policy file: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writePolicy(t, `
# milestones for everyone, calendar for paying tiers
p, *, api/user, GET
p, premium, calendar/event, post
p, admin, calendar/event, post
admin, admin/reports, get
`)

	e, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	rules := e.Rules()
	if len(rules) != 4 {
		t.Fatalf("Expected 4 rules, got %d", len(rules))
	}

	// Actions are normalized to lower case at load time.
	if rules[0].Action != "get" {
		t.Errorf("Expected lower-cased action, got %q", rules[0].Action)
	}

	// The casbin-style "p" marker is optional.
	if rules[3].Subject != "admin" || rules[3].ResourcePrefix != "admin/reports" {
		t.Errorf("Unexpected rule without marker: %+v", rules[3])
	}
}

func TestLoad_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"too few fields", "premium, calendar/event"},
		{"too many fields", "p, premium, calendar/event, post, extra"},
		{"empty field", "premium, , post"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writePolicy(t, tc.content)); err == nil {
				t.Error("Expected load error for malformed rule")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.csv")); err == nil {
		t.Error("Expected error for missing policy file")
	}
}

func TestEnforce(t *testing.T) {
	path := writePolicy(t, `
p, *, api/user, get
p, *, github, get
p, premium, calendar/event, post
p, admin, calendar/event, post
`)
	e, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	tests := []struct {
		name     string
		role     string
		resource string
		action   string
		want     bool
	}{
		{"wildcard subject", "free", "api/user", "get", true},
		{"wildcard subject other role", "admin", "api/user", "get", true},
		{"prefix match", "free", "github/owner/repo/milestones", "get", true},
		{"exact subject", "premium", "calendar/event", "post", true},
		{"admin allowed", "admin", "calendar/event", "post", true},

		// Default-deny: no rule lists free for calendar/event post.
		{"no matching subject", "free", "calendar/event", "post", false},
		{"wrong action", "premium", "calendar/event", "get", false},
		{"unknown resource", "admin", "admin/secrets", "get", false},
		{"empty role", "", "calendar/event", "post", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := e.Enforce(tc.role, tc.resource, tc.action)
			if err != nil {
				t.Fatalf("Enforce returned error: %v", err)
			}
			if got != tc.want {
				t.Errorf("Enforce(%q, %q, %q) = %v, want %v", tc.role, tc.resource, tc.action, got, tc.want)
			}
		})
	}
}

func TestEnforce_NilEnforcer(t *testing.T) {
	var e *Enforcer
	if _, err := e.Enforce("admin", "api/user", "get"); err == nil {
		t.Error("Nil enforcer should report an internal fault, not deny silently")
	}
}

func TestEnforce_EmptyRuleSetDeniesEverything(t *testing.T) {
	e, err := Load(writePolicy(t, "# no rules\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	allowed, err := e.Enforce("admin", "api/user", "get")
	if err != nil {
		t.Fatalf("Enforce returned error: %v", err)
	}
	if allowed {
		t.Error("Empty rule set must deny (default-deny)")
	}
}
