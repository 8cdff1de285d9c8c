// Package featureflags evaluates operational flags configured as a
// comma-separated key=value list, e.g. "disable_joins=on,batch_gating=25%".
// Flags here are kill switches and rollouts, not product configuration:
// an absent flag always evaluates to false.
package featureflags

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
)

type ruleKind int

const (
	ruleOff ruleKind = iota
	ruleOn
	rulePercent
)

type rule struct {
	kind ruleKind
	pct  int
}

// Manager holds parsed flag rules. A nil Manager evaluates everything false,
// so callers never need a nil check before Enabled.
type Manager struct {
	flags map[string]string
	rules map[string]rule
}

// NewManager parses a comma-separated flag list. Malformed pairs are dropped
// rather than rejected; a bad flag string should not stop the process.
func NewManager(raw string) *Manager {
	flags := make(map[string]string)
	rules := make(map[string]rule)

	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key = normalize(key)
		value = normalize(value)
		if key == "" || value == "" {
			continue
		}
		flags[key] = value
		rules[key] = parseRule(value)
	}

	return &Manager{flags: flags, rules: rules}
}

func parseRule(value string) rule {
	switch value {
	case "on", "true", "1":
		return rule{kind: ruleOn}
	case "off", "false", "0":
		return rule{kind: ruleOff}
	}

	if pctRaw, ok := strings.CutSuffix(value, "%"); ok {
		pct, err := strconv.Atoi(pctRaw)
		if err != nil || pct <= 0 {
			return rule{kind: ruleOff}
		}
		if pct >= 100 {
			return rule{kind: ruleOn}
		}
		return rule{kind: rulePercent, pct: pct}
	}

	return rule{kind: ruleOff}
}

// Enabled reports whether the flag is on for this user. Percentage rules
// bucket deterministically by flag name and user id, so a user stays in or
// out of a rollout across requests. Anonymous users (id 0) never enter
// percentage rollouts.
func (m *Manager) Enabled(name string, userID uint) bool {
	if m == nil {
		return false
	}

	r, ok := m.rules[normalize(name)]
	if !ok {
		return false
	}

	switch r.kind {
	case ruleOn:
		return true
	case rulePercent:
		if userID == 0 {
			return false
		}
		return rolloutBucket(name, userID) < r.pct
	default:
		return false
	}
}

// Raw returns a copy of the configured flag strings, for introspection.
func (m *Manager) Raw() map[string]string {
	out := make(map[string]string, len(m.flags))
	for k, v := range m.flags {
		out[k] = v
	}
	return out
}

// Snapshot evaluates every configured flag for one user.
func (m *Manager) Snapshot(userID uint) map[string]bool {
	out := make(map[string]bool, len(m.flags))
	for name := range m.flags {
		out[name] = m.Enabled(name, userID)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func rolloutBucket(name string, userID uint) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fmt.Sprintf("%s:%d", normalize(name), userID)))
	return int(h.Sum32() % 100)
}
