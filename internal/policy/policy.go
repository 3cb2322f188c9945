// Package policy implements default-deny authorization over a
// declarative rule set loaded once at startup.
package policy

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"milecal/pkg/logging"
)

// MatchAny is the rule subject that matches every role.
const MatchAny = "*"

// Rule is an immutable allow tuple: subject may perform action on
// resources matching the prefix. There are no deny rules; absence of a
// matching rule means deny.
type Rule struct {
	Subject        string
	ResourcePrefix string
	Action         string
}

// ErrNotInitialized is returned by Enforce when the enforcer has no
// loaded rule set. This indicates a bootstrap bug, not a policy deny.
var ErrNotInitialized = errors.New("policy enforcer not initialized")

// Enforcer evaluates (role, resource, action) against the loaded rules.
// The rule set is immutable after Load, so Enforce is safe for
// unbounded concurrent callers.
type Enforcer struct {
	rules []Rule
}

// Load reads the rule file and builds an Enforcer. Lines are CSV
// triples in the original policy.csv shape:
//
//	p, subject, resource-prefix, action
//
// Blank lines and lines starting with # are skipped; the leading "p" is
// optional. A malformed line is a load error, and callers must treat a
// load error as fatal: the gateway never serves traffic with an unknown
// policy.
func Load(path string) (*Enforcer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open policy file %s: %w", path, err)
	}
	defer f.Close()

	var rules []Rule

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		rule, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("policy file %s line %d: %w", path, lineNo, err)
		}
		rules = append(rules, rule)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}

	logging.Info("Policy", "Loaded %d rules from %s", len(rules), path)
	return &Enforcer{rules: rules}, nil
}

func parseLine(line string) (Rule, error) {
	fields := strings.Split(line, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	// Accept the casbin-style "p" marker as the first field.
	if len(fields) == 4 && fields[0] == "p" {
		fields = fields[1:]
	}
	if len(fields) != 3 {
		return Rule{}, fmt.Errorf("expected 3 fields (subject, resource-prefix, action), got %d", len(fields))
	}
	if fields[0] == "" || fields[1] == "" || fields[2] == "" {
		return Rule{}, errors.New("empty field in rule")
	}

	return Rule{
		Subject:        fields[0],
		ResourcePrefix: fields[1],
		Action:         strings.ToLower(fields[2]),
	}, nil
}

// Enforce reports whether the given role may perform action on
// resource. Resource is the request path without its leading slash;
// action is the lower-cased HTTP verb. Any matching rule allows;
// no match denies.
func (e *Enforcer) Enforce(roleName, resource, action string) (bool, error) {
	if e == nil {
		return false, ErrNotInitialized
	}

	for _, rule := range e.rules {
		if rule.Subject != roleName && rule.Subject != MatchAny {
			continue
		}
		if !strings.HasPrefix(resource, rule.ResourcePrefix) {
			continue
		}
		if rule.Action != action {
			continue
		}
		return true, nil
	}

	return false, nil
}

// Rules returns a copy of the loaded rule set, mostly for diagnostics.
func (e *Enforcer) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}
