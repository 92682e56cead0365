package extract

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/hurttlocker/provnotes/internal/registry"
)

type candidate struct {
	raw     string
	score   float64
	pattern string
}

// candidates collects every non-rejected match of re in text. A validator
// or matcher panic drops this pattern only.
func (e *Extractor) candidates(text string, def registry.FieldDefinition, re *regexp.Regexp, weight float64) (out []candidate) {
	source := strings.TrimPrefix(re.String(), registry.CompileFlags)
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("pattern skipped",
				zap.String("field", def.Name),
				zap.String("pattern", source),
				zap.String("panic", fmt.Sprint(r)))
			out = nil
		}
	}()

	for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
		raw := matchValue(text, m)
		if raw == "" {
			continue
		}
		verdict := def.Validator.Validate(raw)
		if verdict.Reject {
			continue
		}
		out = append(out, candidate{
			raw:     raw,
			score:   e.score(weight, verdict, source),
			pattern: source,
		})
	}
	return out
}

// score applies the additive heuristic and clamps to [0,1].
func (e *Extractor) score(weight float64, v registry.Verdict, source string) float64 {
	s := baseScore + (weight/registry.MaxPriority)*priorityScale + v.Adjust
	if len(source) > LongPatternLength {
		s += e.longBonus
	}
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}

// matchValue is capture group 1 when it participated and is non-empty,
// otherwise the whole match; trimmed.
func matchValue(text string, m []int) string {
	if len(m) >= 4 && m[2] >= 0 && m[3] > m[2] {
		if v := strings.TrimSpace(text[m[2]:m[3]]); v != "" {
			return v
		}
	}
	return strings.TrimSpace(text[m[0]:m[1]])
}
