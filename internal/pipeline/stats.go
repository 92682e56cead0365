package pipeline

import (
	"github.com/spf13/cast"

	"github.com/hurttlocker/provnotes/internal/registry"
)

// MaxSamples is the number of distinct sample values kept per field.
const MaxSamples = 3

// FieldStat summarises one extracted field over the run.
type FieldStat struct {
	Field      string   `json:"field"`
	Count      int      `json:"count"`
	Percentage float64  `json:"percentage"`
	Samples    []string `json:"samples"`
}

// GroupStat summarises mandatory-field completeness for one product group.
type GroupStat struct {
	Group           string  `json:"group"`
	DisplayName     string  `json:"display_name"`
	Records         int     `json:"records"`
	MandatoryFilled int     `json:"mandatory_filled"`
	MandatoryTotal  int     `json:"mandatory_total"`
	Completeness    float64 `json:"completeness"`
}

// Stats are the aggregate statistics of a run.
type Stats struct {
	TotalRecords      int         `json:"total_records"`
	SuccessfulRecords int         `json:"successful_records"`
	SuccessRate       float64     `json:"success_rate"`
	ChunksProcessed   int         `json:"chunks_processed"`
	Fields            []FieldStat `json:"fields"`
	Groups            []GroupStat `json:"groups,omitempty"`
}

// ComputeStats aggregates outputs, which must be in input order. Fields are
// reported in registry order, groups in catalog order (groups without
// records are omitted).
func ComputeStats(reg *registry.Registry, outputs []Output, chunks int) Stats {
	st := Stats{TotalRecords: len(outputs), ChunksProcessed: chunks}

	names := reg.FieldNames()
	st.Fields = make([]FieldStat, len(names))
	seen := make([]map[string]bool, len(names))
	for i, name := range names {
		st.Fields[i] = FieldStat{Field: name, Samples: []string{}}
		seen[i] = map[string]bool{}
	}

	type groupAcc struct {
		records, filled, total int
		mandatory             []string
		mapping               map[string]string
	}
	groups := map[string]*groupAcc{}

	for _, out := range outputs {
		if out.Successful {
			st.SuccessfulRecords++
		}
		for i, name := range names {
			v := out.Fields[name]
			if v == nil {
				continue
			}
			fs := &st.Fields[i]
			fs.Count++
			if len(fs.Samples) < MaxSamples {
				s := cast.ToString(v)
				if !seen[i][s] {
					seen[i][s] = true
					fs.Samples = append(fs.Samples, s)
				}
			}
		}

		if out.Group == "" {
			continue
		}
		acc := groups[out.Group]
		if acc == nil {
			acc = &groupAcc{
				mandatory: reg.MandatoryFields(out.Group),
				mapping:   reg.ExtractedFieldMapping(out.Group),
			}
			groups[out.Group] = acc
		}
		acc.records++
		for _, business := range acc.mandatory {
			acc.total++
			if field, ok := acc.mapping[business]; ok && out.Fields[field] != nil {
				acc.filled++
			}
		}
	}

	if st.TotalRecords > 0 {
		st.SuccessRate = float64(st.SuccessfulRecords) / float64(st.TotalRecords)
		for i := range st.Fields {
			st.Fields[i].Percentage = float64(st.Fields[i].Count) / float64(st.TotalRecords) * 100
		}
	}

	for _, key := range reg.Groups() {
		acc := groups[key]
		if acc == nil {
			continue
		}
		gs := GroupStat{
			Group:           key,
			DisplayName:     reg.GroupDisplayName(key),
			Records:         acc.records,
			MandatoryFilled: acc.filled,
			MandatoryTotal:  acc.total,
		}
		if acc.total > 0 {
			gs.Completeness = float64(acc.filled) / float64(acc.total)
		}
		st.Groups = append(st.Groups, gs)
	}
	return st
}
