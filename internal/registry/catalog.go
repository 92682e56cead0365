package registry

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// CatalogSpec is the on-disk shape of the product group catalog.
type CatalogSpec struct {
	Groups []GroupSpec           `yaml:"groups"`
	Fields map[string]FieldExtra `yaml:"fields,omitempty"`
}

// GroupSpec configures one product group.
type GroupSpec struct {
	Key           string              `yaml:"key"`
	DisplayName   string              `yaml:"display_name"`
	Mandatory     []string            `yaml:"mandatory"`
	Mapping       map[string]string   `yaml:"mapping,omitempty"`
	Priorities    map[string]float64  `yaml:"priorities,omitempty"`
	Preserve      []string            `yaml:"preserve,omitempty"`
	FieldPatterns map[string][]string `yaml:"field_patterns,omitempty"`
}

// FieldExtra appends catalog-supplied candidate patterns to a built-in field.
type FieldExtra struct {
	Patterns []string `yaml:"patterns"`
}

// ParseCatalog decodes a YAML catalog.
func ParseCatalog(data []byte) (CatalogSpec, error) {
	var spec CatalogSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return CatalogSpec{}, fmt.Errorf("parsing catalog: %w", err)
	}
	return spec, nil
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() CatalogSpec {
	spec, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog is invalid: %v", err))
	}
	return spec
}

// ReadCatalog reads a catalog file. An empty path yields the embedded
// catalog.
func ReadCatalog(path string) (CatalogSpec, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return CatalogSpec{}, fmt.Errorf("reading %s: %w", path, err)
	}
	spec, err := ParseCatalog(b)
	if err != nil {
		return CatalogSpec{}, fmt.Errorf("%s: %w", path, err)
	}
	return spec, nil
}
