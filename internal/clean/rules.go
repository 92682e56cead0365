package clean

import "regexp"

// Scope says whether a noise rule applies to single lines or to the whole
// rejoined document.
type Scope string

const (
	ScopeLine     Scope = "line"
	ScopeDocument Scope = "document"
)

// NoiseRule is one named noise pattern. Line rules are anchored and
// case-insensitive; the first matching rule drops the line.
type NoiseRule struct {
	Name    string
	Pattern *regexp.Regexp
	Scope   Scope
}

// noiseRules is evaluated in order against the trimmed line.
var noiseRules = []NoiseRule{
	{Name: "separator", Pattern: regexp.MustCompile(`(?i)^[-=_*#~.+|]{3,}$`), Scope: ScopeLine},
	{Name: "blank", Pattern: regexp.MustCompile(`(?i)^\s*$`), Scope: ScopeLine},
	{Name: "bracket_log", Pattern: regexp.MustCompile(`(?i)^\[\s*(?:debug|trace|info|notice|warn(?:ing)?|verbose)\s*\].*$`), Scope: ScopeLine},
	{Name: "timestamp_log", Pattern: regexp.MustCompile(`(?i)^\[?\d{4}[-/]\d{2}[-/]\d{2}[ t]\d{2}:\d{2}(?::\d{2}(?:[.,]\d+)?)?z?\]?\s*(?:(?:\[(?:debug|trace|info|notice|warn(?:ing)?)\]|(?:debug|trace|info|notice|warn(?:ing)?)\b).*)?$`), Scope: ScopeLine},
	{Name: "level_prefix", Pattern: regexp.MustCompile(`(?i)^(?:debug|trace|verbose)\s*[:\]>-].*$`), Scope: ScopeLine},
	{Name: "bare_command", Pattern: regexp.MustCompile(`(?i)^(?:quit|exit|end|return)$`), Scope: ScopeLine},
	{Name: "markup", Pattern: regexp.MustCompile(`(?i)^(?:</?[a-z][^<>]*/?>\s*)+$`), Scope: ScopeLine},
	{Name: "empty_comment", Pattern: regexp.MustCompile(`(?i)^(?:[#!;]+|/{2,}|-{2}|/\*\s*\*/|<!--\s*-->)$`), Scope: ScopeLine},
	{Name: "blank_runs", Pattern: regexp.MustCompile(`\n{3,}`), Scope: ScopeDocument},
}

// NoiseRules returns the built-in noise rules in evaluation order.
func NoiseRules() []NoiseRule {
	return append([]NoiseRule(nil), noiseRules...)
}

type signal struct {
	name    string
	pattern *regexp.Regexp
}

// technicalSignals mark a line as meaningful. Equipment codes are matched
// case-sensitively so ordinary words with digits do not qualify.
var technicalSignals = []signal{
	{"ip", regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}\b`)},
	{"domain", regexp.MustCompile(`(?i)\b(?:[a-z0-9][a-z0-9-]*\.)+[a-z]{2,6}\b`)},
	{"equipment_code", regexp.MustCompile(`\b[A-Z]{2,}[A-Z0-9]*\d{2,}[A-Z0-9-]*\b`)},
	{"slot_port", regexp.MustCompile(`\b\d{1,2}/\d{1,2}(?:/\d{1,3})?(?::\d{1,3})?\b`)},
	{"key_value", regexp.MustCompile(`(?i)^[^:=]{1,40}[:=].*[\pL\pN]`)},
	{"keyword", regexp.MustCompile(`(?i)\b(?:interface|vlan|description|route-static|ip\s+address)\b`)},
}

var (
	whitespaceRE  = regexp.MustCompile(`\s+`)
	blankRunsRE   = noiseRules[len(noiseRules)-1].Pattern
	lineEndingsRE = regexp.MustCompile(`\r\n?`)
)
