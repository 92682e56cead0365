package registry

// GroupSummary is a serialisable view of one product group.
type GroupSummary struct {
	Key         string            `json:"key"`
	DisplayName string            `json:"display_name"`
	Mandatory   []string          `json:"mandatory"`
	Mapping     map[string]string `json:"mapping"`
	Unresolved  []string          `json:"unresolved,omitempty"`
}

// Summaries describes every group in catalog order. Unresolved lists the
// mandatory business fields with no registry field behind them.
func (r *Registry) Summaries() []GroupSummary {
	out := make([]GroupSummary, 0, len(r.order))
	for _, key := range r.order {
		g := r.groups[key]
		s := GroupSummary{
			Key:         g.Key,
			DisplayName: g.DisplayName,
			Mandatory:   append([]string(nil), g.Mandatory...),
			Mapping:     make(map[string]string, len(g.Resolved)),
		}
		for _, business := range g.Mandatory {
			field, ok := g.Resolved[business]
			if !ok {
				s.Unresolved = append(s.Unresolved, business)
				continue
			}
			s.Mapping[business] = field
		}
		out = append(out, s)
	}
	return out
}
