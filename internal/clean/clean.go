// Package clean denoises provisioning notes line by line.
//
// Each line is classified in a fixed order: group preservation rules first
// (preservation always wins), then the noise rules, then the meaningfulness
// test. Lines that are neither preserved nor meaningful are dropped unless
// the cleaner was built with WithKeepUnclassified.
package clean

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/hurttlocker/provnotes/internal/registry"
)

// LineClass is the outcome of classifying one line.
type LineClass string

const (
	LineEmpty      LineClass = "empty"
	LinePreserved  LineClass = "preserved"
	LineNoise      LineClass = "noise"
	LineMeaningful LineClass = "meaningful"
	LineDropped    LineClass = "dropped"
)

// LineDecision explains what happened to one input line.
type LineDecision struct {
	Line   string    `json:"line"`
	Class  LineClass `json:"class"`
	Rule   string    `json:"rule,omitempty"`
	Output string    `json:"output,omitempty"`
	Kept   bool      `json:"kept"`
}

// Cleaner rewrites raw notes into denoised text. It is safe for concurrent
// use.
type Cleaner struct {
	reg              *registry.Registry
	keepUnclassified bool
	references       map[string][]reference // group -> mandatory field name matchers
}

type reference struct {
	name    string
	pattern *regexp.Regexp
}

// Option configures a Cleaner.
type Option func(*Cleaner)

// WithKeepUnclassified keeps lines that match neither a noise rule nor the
// meaningfulness test (whitespace collapsed) instead of dropping them.
func WithKeepUnclassified() Option {
	return func(c *Cleaner) {
		c.keepUnclassified = true
	}
}

// New builds a Cleaner over the registry's preservation rules and mandatory
// field names.
func New(reg *registry.Registry, opts ...Option) *Cleaner {
	c := &Cleaner{
		reg:        reg,
		references: make(map[string][]reference),
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, group := range reg.Groups() {
		for _, name := range reg.MandatoryFields(group) {
			if ref, ok := newReference(name); ok {
				c.references[group] = append(c.references[group], ref)
			}
		}
	}
	return c
}

// newReference matches a mandatory field name inside an accent-folded,
// lowercased line. Names shorter than three characters only match as whole
// words.
func newReference(name string) (reference, bool) {
	folded := strings.ToLower(strings.TrimSpace(registry.FoldAccents(name)))
	if folded == "" {
		return reference{}, false
	}
	expr := regexp.QuoteMeta(folded)
	if len([]rune(folded)) < 3 {
		expr = `(?:^|[^\pL\pN])` + expr + `(?:$|[^\pL\pN])`
	}
	return reference{name: name, pattern: regexp.MustCompile(expr)}, true
}

// Clean cleans text when it is a string. Any other value, nil included, is
// returned unchanged.
func (c *Cleaner) Clean(text any, group string) any {
	s, ok := text.(string)
	if !ok {
		return text
	}
	return c.CleanString(s, group)
}

// CleanString returns the denoised text. It never fails; the worst case is
// an empty string.
func (c *Cleaner) CleanString(text, group string) string {
	var kept []string
	for _, d := range c.decide(text, group) {
		if d.Kept {
			kept = append(kept, d.Output)
		}
	}
	out := strings.Join(kept, "\n")
	out = blankRunsRE.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// Explain returns the decision taken for every input line, in order.
func (c *Cleaner) Explain(text, group string) []LineDecision {
	return c.decide(text, group)
}

// Classify classifies a single line for group.
func (c *Cleaner) Classify(line, group string) LineClass {
	class, _ := c.classify(strings.TrimSpace(line), group)
	return class
}

func (c *Cleaner) decide(text, group string) []LineDecision {
	if text == "" {
		return nil
	}
	lines := strings.Split(lineEndingsRE.ReplaceAllString(text, "\n"), "\n")
	decisions := make([]LineDecision, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		class, rule := c.classify(trimmed, group)
		d := LineDecision{Line: line, Class: class, Rule: rule}
		switch class {
		case LinePreserved:
			d.Output = collapseWhitespace(trimmed)
		case LineMeaningful:
			d.Output = stripEdges(collapseWhitespace(trimmed))
		case LineDropped:
			if c.keepUnclassified {
				d.Output = collapseWhitespace(trimmed)
			}
		}
		d.Kept = d.Output != ""
		decisions = append(decisions, d)
	}
	return decisions
}

func (c *Cleaner) classify(trimmed, group string) (LineClass, string) {
	if trimmed == "" {
		return LineEmpty, ""
	}
	for _, re := range c.reg.PreservationRules(group) {
		if re.MatchString(trimmed) {
			return LinePreserved, re.String()
		}
	}
	for _, rule := range noiseRules {
		if rule.Scope == ScopeLine && rule.Pattern.MatchString(trimmed) {
			return LineNoise, rule.Name
		}
	}
	for _, s := range technicalSignals {
		if s.pattern.MatchString(trimmed) {
			return LineMeaningful, s.name
		}
	}
	if refs := c.groupReferences(group); len(refs) > 0 {
		folded := strings.ToLower(registry.FoldAccents(trimmed))
		for _, ref := range refs {
			if ref.pattern.MatchString(folded) {
				return LineMeaningful, "mandatory:" + ref.name
			}
		}
	}
	return LineDropped, ""
}

func (c *Cleaner) groupReferences(group string) []reference {
	g, ok := c.reg.Group(group)
	if !ok {
		return nil
	}
	return c.references[g.Key]
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(s, " "))
}

// stripEdges trims non-alphanumeric runes from both ends. A double quote
// whose partner survives inside the line is put back so quoted values stay
// whole.
func stripEdges(s string) string {
	notAlnum := func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) }
	lead := len(s) - len(strings.TrimLeftFunc(s, notAlnum))
	out := strings.TrimRightFunc(s[lead:], notAlnum)
	if strings.Count(out, `"`)%2 == 1 {
		after := strings.TrimLeftFunc(s[lead+len(out):], unicode.IsSpace)
		before := strings.TrimRightFunc(s[:lead], unicode.IsSpace)
		switch {
		case strings.HasPrefix(after, `"`):
			out += `"`
		case strings.HasSuffix(before, `"`):
			out = `"` + out
		}
	}
	return out
}
