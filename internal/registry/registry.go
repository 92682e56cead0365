// Package registry holds the static configuration the cleaner and the
// extractor run against: the field & pattern registry and the product group
// catalog (mandatory fields, business-field mapping, priority weights and
// line-preservation rules).
//
// A Registry is built once at startup and is read-only afterwards; it is
// safe for concurrent use.
package registry

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// DefaultPriority is the weight of any field a group does not prioritise.
const DefaultPriority = 1.0

// MaxPriority is the weight used when resolving mandatory fields.
const MaxPriority = 10.0

// Group is one resolved product group. Treat all fields as read-only.
type Group struct {
	Key           string
	DisplayName   string
	Mandatory     []string
	Resolved      map[string]string // business field -> registry field
	Priorities    map[string]float64
	Preserve      []*regexp.Regexp
	FieldPatterns map[string][]*regexp.Regexp
}

// PatternError records a catalog pattern that failed to compile and was
// skipped.
type PatternError struct {
	Group   string
	Field   string
	Pattern string
	Err     error
}

func (e PatternError) Error() string {
	where := e.Field
	if e.Group != "" {
		where = e.Group + "/" + where
	}
	return fmt.Sprintf("pattern %s %q: %v", where, e.Pattern, e.Err)
}

// LoadError lists every structural problem found in a catalog.
type LoadError struct {
	Problems []string
}

func (e *LoadError) Error() string {
	return "invalid catalog: " + strings.Join(e.Problems, "; ")
}

// Registry is the immutable field registry plus product group catalog.
type Registry struct {
	fields      []FieldDefinition
	index       map[string]int
	groups      map[string]*Group
	order       []string
	preserveAll []*regexp.Regexp
	skipped     []PatternError
}

type buildConfig struct {
	logger          *zap.Logger
	allowUnresolved bool
}

// Option configures registry construction.
type Option func(*buildConfig)

// WithLogger sets the logger used to report skipped patterns.
func WithLogger(l *zap.Logger) Option {
	return func(c *buildConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// AllowUnresolved keeps mandatory business fields that map to no registry
// field instead of failing the load. They extract as null.
func AllowUnresolved() Option {
	return func(c *buildConfig) {
		c.allowUnresolved = true
	}
}

// Default builds the built-in fields with the embedded catalog.
func Default(opts ...Option) (*Registry, error) {
	return New(BuiltinFields(), DefaultCatalog(), opts...)
}

// Load builds the built-in fields with the catalog at path (embedded
// catalog when path is empty).
func Load(path string, opts ...Option) (*Registry, error) {
	spec, err := ReadCatalog(path)
	if err != nil {
		return nil, err
	}
	return New(BuiltinFields(), spec, opts...)
}

// New validates the catalog against the field list and returns the
// registry. Structural problems (unknown fields, bad weights, ambiguous or
// missing business mappings) fail the whole load; patterns that do not
// compile are skipped and reported through Skipped.
func New(fields []FieldDefinition, spec CatalogSpec, opts ...Option) (*Registry, error) {
	cfg := buildConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &Registry{
		index:  make(map[string]int, len(fields)),
		groups: make(map[string]*Group, len(spec.Groups)),
	}
	var problems []string

	for _, f := range fields {
		if f.Name == "" {
			problems = append(problems, "field with empty name")
			continue
		}
		if _, dup := r.index[f.Name]; dup {
			problems = append(problems, fmt.Sprintf("duplicate field %q", f.Name))
			continue
		}
		if f.Validator == nil {
			f.Validator = NoCheck{}
		}
		if f.Normalizer == nil {
			f.Normalizer = Trimmed
		}
		f.Patterns = append([]*regexp.Regexp(nil), f.Patterns...)
		r.index[f.Name] = len(r.fields)
		r.fields = append(r.fields, f)
	}

	extraNames := make([]string, 0, len(spec.Fields))
	for name := range spec.Fields {
		extraNames = append(extraNames, name)
	}
	sort.Strings(extraNames)
	for _, name := range extraNames {
		i, ok := r.index[name]
		if !ok {
			problems = append(problems, fmt.Sprintf("fields: unknown field %q", name))
			continue
		}
		for _, p := range spec.Fields[name].Patterns {
			re, err := CompilePattern(p)
			if err != nil {
				r.skip(cfg.logger, PatternError{Field: name, Pattern: p, Err: err})
				continue
			}
			r.fields[i].Patterns = append(r.fields[i].Patterns, re)
		}
	}

	for _, gs := range spec.Groups {
		key := canonicalGroup(gs.Key)
		if key == "" {
			problems = append(problems, "group with empty key")
			continue
		}
		if _, dup := r.groups[key]; dup {
			problems = append(problems, fmt.Sprintf("duplicate group %q", key))
			continue
		}
		g, groupProblems := r.buildGroup(key, gs, cfg)
		problems = append(problems, groupProblems...)
		r.groups[key] = g
		r.order = append(r.order, key)
		r.preserveAll = append(r.preserveAll, g.Preserve...)
	}

	if len(problems) > 0 {
		return nil, &LoadError{Problems: problems}
	}
	return r, nil
}

func (r *Registry) buildGroup(key string, gs GroupSpec, cfg buildConfig) (*Group, []string) {
	var problems []string
	g := &Group{
		Key:           key,
		DisplayName:   strings.TrimSpace(gs.DisplayName),
		Mandatory:     append([]string(nil), gs.Mandatory...),
		Resolved:      make(map[string]string, len(gs.Mandatory)),
		Priorities:    make(map[string]float64, len(gs.Priorities)),
		FieldPatterns: make(map[string][]*regexp.Regexp, len(gs.FieldPatterns)),
	}
	if g.DisplayName == "" {
		g.DisplayName = key
	}

	for field, w := range gs.Priorities {
		if _, ok := r.index[field]; !ok {
			problems = append(problems, fmt.Sprintf("%s: priority for unknown field %q", key, field))
			continue
		}
		if w < 0 || w > MaxPriority {
			problems = append(problems, fmt.Sprintf("%s: priority %g for %q outside [0,10]", key, w, field))
			continue
		}
		g.Priorities[field] = w
	}

	for business, field := range gs.Mapping {
		if _, ok := r.index[field]; !ok {
			problems = append(problems, fmt.Sprintf("%s: %q maps to unknown field %q", key, business, field))
		}
	}

	for _, business := range gs.Mandatory {
		if field, ok := gs.Mapping[business]; ok {
			if _, known := r.index[field]; known {
				g.Resolved[business] = field
			}
			continue
		}
		field, err := r.matchBusinessField(business)
		if err != nil {
			if cfg.allowUnresolved {
				cfg.logger.Warn("mandatory field left unresolved",
					zap.String("group", key), zap.String("business_field", business), zap.Error(err))
				continue
			}
			problems = append(problems, fmt.Sprintf("%s: %v", key, err))
			continue
		}
		g.Resolved[business] = field
	}

	for _, p := range gs.Preserve {
		re, err := CompilePattern(p)
		if err != nil {
			r.skip(cfg.logger, PatternError{Group: key, Field: "preserve", Pattern: p, Err: err})
			continue
		}
		g.Preserve = append(g.Preserve, re)
	}

	fieldNames := make([]string, 0, len(gs.FieldPatterns))
	for field := range gs.FieldPatterns {
		fieldNames = append(fieldNames, field)
	}
	sort.Strings(fieldNames)
	for _, field := range fieldNames {
		if _, ok := r.index[field]; !ok {
			problems = append(problems, fmt.Sprintf("%s: field_patterns for unknown field %q", key, field))
			continue
		}
		for _, p := range gs.FieldPatterns[field] {
			re, err := CompilePattern(p)
			if err != nil {
				r.skip(cfg.logger, PatternError{Group: key, Field: field, Pattern: p, Err: err})
				continue
			}
			g.FieldPatterns[field] = append(g.FieldPatterns[field], re)
		}
	}

	return g, problems
}

// matchBusinessField is the single fallback for business fields without an
// explicit mapping: compare the normalised business name with registry keys.
// An exact key wins; otherwise exactly one key may contain (or be contained
// in) the name.
func (r *Registry) matchBusinessField(business string) (string, error) {
	name := NormalizeKey(business)
	if name == "" {
		return "", fmt.Errorf("empty business field name")
	}
	if _, ok := r.index[name]; ok {
		return name, nil
	}
	var candidates []string
	for _, f := range r.fields {
		if strings.Contains(f.Name, name) || strings.Contains(name, f.Name) {
			candidates = append(candidates, f.Name)
		}
	}
	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		return "", fmt.Errorf("business field %q matches no registry field", business)
	default:
		return "", fmt.Errorf("business field %q is ambiguous (%s)", business, strings.Join(candidates, ", "))
	}
}

func (r *Registry) skip(logger *zap.Logger, pe PatternError) {
	logger.Warn("skipping pattern",
		zap.String("group", pe.Group),
		zap.String("field", pe.Field),
		zap.String("pattern", pe.Pattern),
		zap.Error(pe.Err))
	r.skipped = append(r.skipped, pe)
}

func canonicalGroup(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Fields returns the field definitions in registry order.
func (r *Registry) Fields() []FieldDefinition {
	return append([]FieldDefinition(nil), r.fields...)
}

// FieldNames returns the registry field names in order.
func (r *Registry) FieldNames() []string {
	names := make([]string, len(r.fields))
	for i, f := range r.fields {
		names[i] = f.Name
	}
	return names
}

// Field looks up one field definition.
func (r *Registry) Field(name string) (FieldDefinition, bool) {
	i, ok := r.index[name]
	if !ok {
		return FieldDefinition{}, false
	}
	return r.fields[i], true
}

// Group returns the group for key. Unknown or empty keys report false.
func (r *Registry) Group(key string) (*Group, bool) {
	g, ok := r.groups[canonicalGroup(key)]
	return g, ok
}

// Groups returns all group keys in catalog order.
func (r *Registry) Groups() []string {
	return append([]string(nil), r.order...)
}

// MandatoryFields returns the group's mandatory business fields in order.
func (r *Registry) MandatoryFields(group string) []string {
	g, ok := r.Group(group)
	if !ok {
		return nil
	}
	return append([]string(nil), g.Mandatory...)
}

// ExtractedFieldMapping returns business field -> registry field for group.
func (r *Registry) ExtractedFieldMapping(group string) map[string]string {
	g, ok := r.Group(group)
	if !ok {
		return map[string]string{}
	}
	out := make(map[string]string, len(g.Resolved))
	for k, v := range g.Resolved {
		out[k] = v
	}
	return out
}

// GroupDisplayName returns the human name of group, or "" when unknown.
func (r *Registry) GroupDisplayName(group string) string {
	g, ok := r.Group(group)
	if !ok {
		return ""
	}
	return g.DisplayName
}

// PreservationRules returns the group's preservation patterns, or the union
// over all groups when the group is unknown.
func (r *Registry) PreservationRules(group string) []*regexp.Regexp {
	if g, ok := r.Group(group); ok {
		return g.Preserve
	}
	return r.preserveAll
}

// Priority returns the generic-pass weight of field for group.
func (r *Registry) Priority(group, field string) float64 {
	g, ok := r.Group(group)
	if !ok {
		return DefaultPriority
	}
	if w, ok := g.Priorities[field]; ok {
		return w
	}
	return DefaultPriority
}

// Skipped lists catalog patterns that failed to compile.
func (r *Registry) Skipped() []PatternError {
	return append([]PatternError(nil), r.skipped...)
}
