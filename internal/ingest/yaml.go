package ingest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// YAMLOpener handles .yaml and .yml files holding a sequence of mappings.
type YAMLOpener struct{}

// CanHandle returns true for YAML file extensions.
func (y *YAMLOpener) CanHandle(path string) bool {
	return hasExt(path, ".yaml", ".yml")
}

// Open decodes the sequence. Columns are mapping keys in first-seen order.
func (y *YAMLOpener) Open(path string) (Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	if len(doc.Content) == 0 {
		return NewSliceSource(nil, nil), nil
	}
	seq := doc.Content[0]
	if seq.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("invalid YAML in %s: expected a sequence of mappings", path)
	}

	objects := make([]orderedObject, 0, len(seq.Content))
	for i, item := range seq.Content {
		if item.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("invalid YAML in %s (item %d): expected a mapping", path, i)
		}
		obj := orderedObject{values: map[string]any{}}
		for j := 0; j+1 < len(item.Content); j += 2 {
			key := item.Content[j].Value
			var v any
			if err := item.Content[j+1].Decode(&v); err != nil {
				return nil, fmt.Errorf("invalid YAML in %s (item %d, key %q): %w", path, i, key, err)
			}
			if _, seen := obj.values[key]; !seen {
				obj.keys = append(obj.keys, key)
			}
			obj.values[key] = v
		}
		objects = append(objects, obj)
	}
	return objectSource(objects), nil
}
