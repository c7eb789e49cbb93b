// Package config loads the rule set and allowlist documents.
//
// Both documents may be written as JSON or YAML. Each is checked against an
// embedded JSON Schema before it is decoded, and the rule set must define a
// minStars condition somewhere; any failure is reported as a *ConfigLoadError.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"sigs.k8s.io/yaml"
)

const (
	DefaultRulesFile     = "cursor.rules.json"
	DefaultAllowlistFile = "allowed-packages.json"
)

// ErrMissingMinStars is returned when no rule condition carries minStars.
var ErrMissingMinStars = errors.New("no rule condition defines minStars")

// ConfigLoadError reports a missing or invalid configuration document.
type ConfigLoadError struct {
	Path string
	Err  error
}

func (e *ConfigLoadError) Error() string {
	return fmt.Sprintf("loading config %s: %v", e.Path, e.Err)
}

func (e *ConfigLoadError) Unwrap() error {
	return e.Err
}

// Config is the immutable configuration of one run.
type Config struct {
	Rules     *RuleSet
	Allowlist *Allowlist
}

// MinStars returns the configured star threshold.
func (c *Config) MinStars() int {
	n, _ := c.Rules.MinStars()
	return n
}

// MaxPublishAgeDays returns the configured recency window in days, or 0
// when the default of one calendar year applies.
func (c *Config) MaxPublishAgeDays() int {
	n, _ := c.Rules.MaxPublishAgeDays()
	return n
}

// RuleSet is the decoded rule document.
type RuleSet struct {
	Rules []Rule `json:"rules"`
}

type Rule struct {
	ID          string      `json:"id,omitempty"`
	Name        string      `json:"name,omitempty"`
	Description string      `json:"description,omitempty"`
	Conditions  []Condition `json:"conditions"`
}

// Condition holds the typed parameters pkggate understands. Other keys in
// a condition object are accepted and ignored.
type Condition struct {
	MinStars          *int `json:"minStars,omitempty"`
	MaxPublishAgeDays *int `json:"maxPublishAgeDays,omitempty"`
}

// MinStars returns the first minStars value in document order.
func (r *RuleSet) MinStars() (int, bool) {
	for _, rule := range r.Rules {
		for _, c := range rule.Conditions {
			if c.MinStars != nil {
				return *c.MinStars, true
			}
		}
	}
	return 0, false
}

// MaxPublishAgeDays returns the first maxPublishAgeDays value in document order.
func (r *RuleSet) MaxPublishAgeDays() (int, bool) {
	for _, rule := range r.Rules {
		for _, c := range rule.Conditions {
			if c.MaxPublishAgeDays != nil {
				return *c.MaxPublishAgeDays, true
			}
		}
	}
	return 0, false
}

// Allowlist is the set of permitted package names per ecosystem.
type Allowlist struct {
	Packages map[string][]string `json:"packages"`

	index map[string]map[string]struct{}
}

// NewAllowlist builds an allowlist from ecosystem buckets.
func NewAllowlist(packages map[string][]string) *Allowlist {
	a := &Allowlist{Packages: packages}
	a.buildIndex()
	return a
}

func (a *Allowlist) buildIndex() {
	a.index = make(map[string]map[string]struct{}, len(a.Packages))
	for eco, names := range a.Packages {
		set := make(map[string]struct{}, len(names))
		for _, n := range names {
			set[n] = struct{}{}
		}
		a.index[eco] = set
	}
}

// Contains reports whether name is allowed in ecosystem. Matching is exact.
func (a *Allowlist) Contains(ecosystem, name string) bool {
	_, ok := a.index[ecosystem][name]
	return ok
}

// Len returns the number of allowed names in ecosystem.
func (a *Allowlist) Len(ecosystem string) int {
	return len(a.index[ecosystem])
}

// DefaultDir returns the directory of the running executable, where the
// default documents are looked up. It falls back to the working directory.
func DefaultDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}

// DefaultPaths returns the default rule and allowlist paths.
func DefaultPaths() (rulesPath, allowlistPath string) {
	dir := DefaultDir()
	return filepath.Join(dir, DefaultRulesFile), filepath.Join(dir, DefaultAllowlistFile)
}

// Load reads and validates both documents.
func Load(rulesPath, allowlistPath string) (*Config, error) {
	rules, err := LoadRules(rulesPath)
	if err != nil {
		return nil, err
	}
	allowlist, err := LoadAllowlist(allowlistPath)
	if err != nil {
		return nil, err
	}
	return &Config{Rules: rules, Allowlist: allowlist}, nil
}

// LoadRules reads the rule document at path.
func LoadRules(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigLoadError{Path: path, Err: err}
	}
	rules, err := ParseRules(data)
	if err != nil {
		return nil, &ConfigLoadError{Path: path, Err: err}
	}
	return rules, nil
}

// LoadAllowlist reads the allowlist document at path.
func LoadAllowlist(path string) (*Allowlist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigLoadError{Path: path, Err: err}
	}
	allowlist, err := ParseAllowlist(data)
	if err != nil {
		return nil, &ConfigLoadError{Path: path, Err: err}
	}
	return allowlist, nil
}

// ParseRules decodes and validates a rule document.
func ParseRules(data []byte) (*RuleSet, error) {
	jsonData, err := decode(data, rulesSchema)
	if err != nil {
		return nil, err
	}

	var rules RuleSet
	if err := json.Unmarshal(jsonData, &rules); err != nil {
		return nil, fmt.Errorf("decoding rules: %w", err)
	}
	if _, ok := rules.MinStars(); !ok {
		return nil, ErrMissingMinStars
	}
	return &rules, nil
}

// ParseAllowlist decodes and validates an allowlist document.
func ParseAllowlist(data []byte) (*Allowlist, error) {
	jsonData, err := decode(data, allowlistSchema)
	if err != nil {
		return nil, err
	}

	var allowlist Allowlist
	if err := json.Unmarshal(jsonData, &allowlist); err != nil {
		return nil, fmt.Errorf("decoding allowlist: %w", err)
	}
	allowlist.buildIndex()
	return &allowlist, nil
}

// decode converts YAML or JSON to JSON and checks it against schema.
func decode(data []byte, schema *jsonschema.Schema) ([]byte, error) {
	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("parsing document: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(jsonData))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing document: %w", err)
	}

	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("schema validation: %w", err)
	}
	return jsonData, nil
}
