package scanner

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"sitemedic/internal/models"
)

// Rule is one compiled signature. Builtin rules cover the PHP constructs
// webshells lean on; external packs extend them without a rebuild.
type Rule struct {
	ID       string
	Kind     string
	Severity string
	Detail   string
	re       *regexp.Regexp
}

// RuleSet holds all compiled rules, built once and reused across files.
type RuleSet struct {
	rules []Rule
}

// DefaultRules compiles the builtin signature set.
func DefaultRules() *RuleSet {
	return &RuleSet{rules: []Rule{
		{
			ID:       "php_dangerous_call",
			Kind:     models.KindDangerousFunctions,
			Severity: models.SeverityHigh,
			Detail:   "contains dangerous functions",
			re: regexp.MustCompile(
				`(?i)\b(eval|assert|system|exec|shell_exec|passthru|proc_open|popen|create_function)\s*\(`),
		},
		{
			ID:       "php_obfuscation",
			Kind:     models.KindObfuscation,
			Severity: models.SeverityHigh,
			Detail:   "eval/base64/gzinflate pattern",
			re: regexp.MustCompile(
				`(?i)(base64_decode|gzinflate|gzuncompress|str_rot13|fromCharCode|atob)\s*\(`),
		},
	}}
}

// rulesFile is the YAML shape of an external signature pack.
type rulesFile struct {
	Rules []struct {
		ID       string `yaml:"id"`
		Severity string `yaml:"severity"`
		Pattern  string `yaml:"pattern"`
		Detail   string `yaml:"detail"`
	} `yaml:"rules"`
}

// LoadPack appends rules from a YAML file. Matches from pack rules are
// reported as signature_match findings carrying the rule id.
func (rs *RuleSet) LoadPack(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read rules file: %w", err)
	}
	var rf rulesFile
	if err := yaml.Unmarshal(raw, &rf); err != nil {
		return 0, fmt.Errorf("parse rules file %s: %w", path, err)
	}

	added := 0
	for _, r := range rf.Rules {
		if r.ID == "" || r.Pattern == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return added, fmt.Errorf("rule %s: %w", r.ID, err)
		}
		sev := r.Severity
		if sev != models.SeverityLow && sev != models.SeverityMedium {
			sev = models.SeverityHigh
		}
		rs.rules = append(rs.rules, Rule{
			ID:       r.ID,
			Kind:     models.KindSignatureMatch,
			Severity: sev,
			Detail:   r.Detail,
			re:       re,
		})
		added++
	}
	return added, nil
}

// Len returns the number of compiled rules.
func (rs *RuleSet) Len() int { return len(rs.rules) }

func (rs *RuleSet) match(text string) []Rule {
	var hits []Rule
	for _, r := range rs.rules {
		if r.re.MatchString(text) {
			hits = append(hits, r)
		}
	}
	return hits
}
