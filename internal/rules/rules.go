// Package rules loads and matches the host node's rule table: the
// Go-native, YAML-structured analogue of the teacher's config.go text
// config file (spec §2 "matches messages against a rule table").
package rules

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/n8kb/rfbridge/internal/frame"
)

// Rule matches a decoded frame by type and a hex-payload regexp, and
// names the action to take when it matches.
type Rule struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`          // "A", "O", "M", "P", or "" for any
	PayloadHex  string `yaml:"payload_hex"`   // regexp over the lowercase hex payload
	Action      string `yaml:"action"`        // opaque label relayed downstream (spec §2: relaying is an external collaborator)
	MinBitCount int    `yaml:"min_bit_count"` // 0 means unconstrained

	compiled *regexp.Regexp
}

// Table is an ordered rule set: the first matching rule wins, mirroring
// the teacher's config file's first-match semantics for audio channel
// assignment.
type Table struct {
	Rules []Rule `yaml:"rules"`
}

// Load reads and compiles a rule table from a YAML file.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules: read %s: %w", path, err)
	}
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("rules: parse %s: %w", path, err)
	}
	for i := range t.Rules {
		if t.Rules[i].PayloadHex == "" {
			continue
		}
		re, err := regexp.Compile(t.Rules[i].PayloadHex)
		if err != nil {
			return nil, fmt.Errorf("rules: %s: bad payload_hex regexp: %w", t.Rules[i].Name, err)
		}
		t.Rules[i].compiled = re
	}
	return &t, nil
}

// Match returns the first rule in the table whose constraints are
// satisfied by the decoded frame, or (Rule{}, false) if none match.
func (t *Table) Match(f frame.DecodedFrame) (Rule, bool) {
	hexPayload := fmt.Sprintf("%x", f.Payload)
	for _, r := range t.Rules {
		if r.Type != "" && r.Type != f.Type.String() {
			continue
		}
		if r.MinBitCount > 0 && int(f.BitCount) < r.MinBitCount {
			continue
		}
		if r.compiled != nil && !r.compiled.MatchString(hexPayload) {
			continue
		}
		return r, true
	}
	return Rule{}, false
}
