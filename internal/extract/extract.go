// Package extract resolves structured business fields from cleaned
// provisioning notes.
//
// Every registry field gets a value or nil. Candidates are regex matches
// scored by a single generic scorer:
//
//	base 0.5 + (weight/10)*0.2 + validator adjustment + long-pattern bonus
//
// clamped to [0,1] and accepted only above the threshold. The record's
// group mandatory fields are resolved first at weight 10 and locked; the
// generic pass over the full registry then fills the remaining slots.
package extract

import (
	"regexp"
	"sort"

	"go.uber.org/zap"

	"github.com/hurttlocker/provnotes/internal/registry"
)

const (
	// DefaultThreshold is the score a candidate must exceed to be accepted.
	DefaultThreshold = 0.3
	// DefaultLongPatternBonus is added for patterns longer than
	// LongPatternLength characters.
	DefaultLongPatternBonus = 0.05
	LongPatternLength       = 25

	baseScore     = 0.5
	priorityScale = 0.2
)

// Pass names which extraction pass resolved a field.
type Pass string

const (
	PassMandatory Pass = "mandatory"
	PassGeneric   Pass = "generic"
)

// Result maps every registry field to its value (nil when unresolved).
// Integer fields hold int; all others hold string.
type Result map[string]any

// Resolution explains one accepted field value.
type Resolution struct {
	Field    string  `json:"field"`
	Business string  `json:"business_field,omitempty"`
	Value    any     `json:"value"`
	Raw      string  `json:"raw"`
	Score    float64 `json:"score"`
	Pattern  string  `json:"pattern"`
	Pass     Pass    `json:"pass"`
}

// Extractor is safe for concurrent use; it holds only read-only state.
type Extractor struct {
	reg       *registry.Registry
	fields    []registry.FieldDefinition
	threshold float64
	longBonus float64
	logger    *zap.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithThreshold overrides the acceptance threshold.
func WithThreshold(t float64) Option {
	return func(e *Extractor) {
		e.threshold = t
	}
}

// WithLongPatternBonus overrides the long-pattern bonus.
func WithLongPatternBonus(b float64) Option {
	return func(e *Extractor) {
		e.longBonus = b
	}
}

// WithLogger sets the logger for recovered matcher failures.
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Extractor over reg.
func New(reg *registry.Registry, opts ...Option) *Extractor {
	e := &Extractor{
		reg:       reg,
		fields:    reg.Fields(),
		threshold: DefaultThreshold,
		longBonus: DefaultLongPatternBonus,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractAll returns one entry per registry field. Non-text input yields an
// all-nil result.
func (e *Extractor) ExtractAll(text any, group string) Result {
	s, ok := text.(string)
	if !ok {
		return e.emptyResult()
	}
	res, _ := e.extract(s, group)
	return res
}

// ExtractDetailed returns the accepted resolutions, mandatory pass first,
// then generic pass in registry order.
func (e *Extractor) ExtractDetailed(text, group string) []Resolution {
	_, resolutions := e.extract(text, group)
	return resolutions
}

// ExtractMandatory resolves only the group's mandatory business fields, at
// maximum priority. Business fields without a registry mapping yield nil.
// Unknown groups yield an empty map.
func (e *Extractor) ExtractMandatory(text any, group string) map[string]any {
	out := map[string]any{}
	g, ok := e.reg.Group(group)
	if !ok {
		return out
	}
	s, isText := text.(string)
	resolved := map[string]any{}
	for _, business := range g.Mandatory {
		out[business] = nil
		field, mapped := g.Resolved[business]
		if !isText || !mapped {
			continue
		}
		if v, done := resolved[field]; done {
			out[business] = v
			continue
		}
		var value any
		if r, found := e.resolveMandatory(s, g, field); found {
			value = r.Value
		}
		resolved[field] = value
		out[business] = value
	}
	return out
}

func (e *Extractor) emptyResult() Result {
	res := make(Result, len(e.fields))
	for _, f := range e.fields {
		res[f.Name] = nil
	}
	return res
}

func (e *Extractor) extract(text, group string) (Result, []Resolution) {
	res := e.emptyResult()
	var resolutions []Resolution
	if text == "" {
		return res, nil
	}

	if g, ok := e.reg.Group(group); ok {
		for _, business := range g.Mandatory {
			field, mapped := g.Resolved[business]
			if !mapped || res[field] != nil {
				continue
			}
			if r, found := e.resolveMandatory(text, g, field); found {
				r.Business = business
				res[field] = r.Value
				resolutions = append(resolutions, r)
			}
		}
	}

	for _, def := range e.fields {
		if res[def.Name] != nil {
			continue
		}
		weight := e.reg.Priority(group, def.Name)
		if r, found := e.resolve(text, def, def.Patterns, weight); found {
			r.Pass = PassGeneric
			res[def.Name] = r.Value
			resolutions = append(resolutions, r)
		}
	}
	return res, resolutions
}

func (e *Extractor) resolveMandatory(text string, g *registry.Group, field string) (Resolution, bool) {
	def, ok := e.reg.Field(field)
	if !ok {
		return Resolution{}, false
	}
	overrides := g.FieldPatterns[field]
	patterns := make([]*regexp.Regexp, 0, len(overrides)+len(def.Patterns))
	patterns = append(patterns, overrides...)
	patterns = append(patterns, def.Patterns...)
	r, found := e.resolve(text, def, patterns, registry.MaxPriority)
	r.Pass = PassMandatory
	return r, found
}

// resolve scores every match of every pattern and returns the best accepted
// candidate whose value normalises. Ties keep the earliest candidate.
func (e *Extractor) resolve(text string, def registry.FieldDefinition, patterns []*regexp.Regexp, weight float64) (Resolution, bool) {
	var accepted []candidate
	for _, re := range patterns {
		for _, c := range e.candidates(text, def, re, weight) {
			if c.score > e.threshold {
				accepted = append(accepted, c)
			}
		}
	}
	sort.SliceStable(accepted, func(i, j int) bool {
		return accepted[i].score > accepted[j].score
	})
	for _, c := range accepted {
		value, ok := def.Normalizer(c.raw)
		if !ok {
			continue
		}
		return Resolution{
			Field:   def.Name,
			Value:   value,
			Raw:     c.raw,
			Score:   c.score,
			Pattern: c.pattern,
		}, true
	}
	return Resolution{}, false
}
