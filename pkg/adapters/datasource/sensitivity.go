package datasource

import (
	"fmt"
	"regexp"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/config"
)

// DefaultSensitivePatterns flag column names that commonly hold personal or
// secret data.
var DefaultSensitivePatterns = []config.SensitivePattern{
	{Pattern: `(?i)passw(or)?d|(^|_)pwd($|_)|(^|_)pass($|_)`, Description: "password"},
	{Pattern: `(?i)e[-_]?mail`, Description: "email address"},
	{Pattern: `(?i)(^|_)ssn($|_)|social_?security`, Description: "social security number"},
	{Pattern: `(?i)credit_?card|card_?number|(^|_)cc_?num`, Description: "credit card number"},
	{Pattern: `(?i)api_?key|secret`, Description: "API key or secret"},
	{Pattern: `(?i)token`, Description: "token"},
}

type sensitiveRule struct {
	re          *regexp.Regexp
	description string
}

// SensitivityDetector matches column names against sensitive-data patterns.
// It only ever looks at names; sampled values are never inspected or reported.
type SensitivityDetector struct {
	rules []sensitiveRule
}

// NewSensitivityDetector compiles patterns; an empty list selects
// DefaultSensitivePatterns.
func NewSensitivityDetector(patterns []config.SensitivePattern) (*SensitivityDetector, error) {
	if len(patterns) == 0 {
		patterns = DefaultSensitivePatterns
	}
	d := &SensitivityDetector{rules: make([]sensitiveRule, 0, len(patterns))}
	for _, p := range patterns {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile sensitive pattern %q: %w", p.Pattern, err)
		}
		d.rules = append(d.rules, sensitiveRule{re: re, description: p.Description})
	}
	return d, nil
}

// Match returns the description of the first pattern matching column.
func (d *SensitivityDetector) Match(column string) (string, bool) {
	for _, r := range d.rules {
		if r.re.MatchString(column) {
			return r.description, true
		}
	}
	return "", false
}

// Warnings returns one warning per sensitive column of table.
func (d *SensitivityDetector) Warnings(table string, columns []string) []string {
	var warnings []string
	seen := make(map[string]bool, len(columns))
	for _, col := range columns {
		if seen[col] {
			continue
		}
		seen[col] = true
		if desc, ok := d.Match(col); ok {
			warnings = append(warnings, fmt.Sprintf("column %s.%s may contain sensitive data (%s)", table, col, desc))
		}
	}
	return warnings
}
