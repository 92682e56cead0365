package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	names := reg.FieldNames()
	assert.Equal(t, FieldSerialCode, names[0])
	assert.Contains(t, names, FieldVLAN)
	assert.Contains(t, names, FieldPPPoEPassword)
	assert.Len(t, names, len(fieldSpecs))
	assert.Empty(t, reg.Skipped())

	groups := reg.Groups()
	require.NotEmpty(t, groups)
	assert.Equal(t, "residential_fiber", groups[0])
}

func TestCatalogAccessors(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, []string{"Serial", "SSID", "Senha Wi-Fi", "VLAN", "Potência Óptica"},
		reg.MandatoryFields("residential_fiber"))
	assert.Equal(t, "Fibra Residencial", reg.GroupDisplayName("Residential_Fiber "))

	mapping := reg.ExtractedFieldMapping("residential_fiber")
	assert.Equal(t, FieldSerialCode, mapping["Serial"])
	assert.Equal(t, FieldWifiPasscode, mapping["Senha Wi-Fi"])
	// VLAN has no explicit mapping and resolves by its normalised name.
	assert.Equal(t, FieldVLAN, mapping["VLAN"])

	assert.Nil(t, reg.MandatoryFields("nope"))
	assert.Empty(t, reg.ExtractedFieldMapping("nope"))
	assert.Equal(t, "", reg.GroupDisplayName(""))
}

func TestFallbackMapping(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	mapping := reg.ExtractedFieldMapping("olt_provisioning")
	assert.Equal(t, FieldSlot, mapping["Slot"])
	assert.Equal(t, FieldONUID, mapping["ONU ID"])

	bgp := reg.ExtractedFieldMapping("ip_transit_bgp")
	assert.Equal(t, FieldASN, bgp["ASN"])
	assert.Equal(t, FieldIPWAN, bgp["IP WAN"])
}

func TestPriority(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, 9.0, reg.Priority("residential_fiber", FieldSerialCode))
	assert.Equal(t, DefaultPriority, reg.Priority("residential_fiber", FieldASN))
	assert.Equal(t, DefaultPriority, reg.Priority("", FieldSerialCode))
}

func TestPreservationRules_UnknownGroupIsUnion(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	total := 0
	for _, g := range reg.Groups() {
		total += len(reg.PreservationRules(g))
	}
	assert.Len(t, reg.PreservationRules(""), total)
	assert.Len(t, reg.PreservationRules("unknown"), total)
}

func TestNew_AmbiguousBusinessFieldFails(t *testing.T) {
	spec := CatalogSpec{Groups: []GroupSpec{{
		Key:       "g",
		Mandatory: []string{"IP"},
	}}}
	_, err := New(BuiltinFields(), spec)
	require.Error(t, err)

	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Contains(t, le.Problems[0], "ambiguous")
}

func TestNew_UnknownMappingAndPriorityFail(t *testing.T) {
	spec := CatalogSpec{Groups: []GroupSpec{{
		Key:        "g",
		Mandatory:  []string{"Thing"},
		Mapping:    map[string]string{"Thing": "no_such_field"},
		Priorities: map[string]float64{FieldVLAN: 11},
	}}}
	_, err := New(BuiltinFields(), spec)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Len(t, le.Problems, 2)
}

func TestNew_AllowUnresolved(t *testing.T) {
	spec := CatalogSpec{Groups: []GroupSpec{{
		Key:       "g",
		Mandatory: []string{"Número do Contrato", "VLAN"},
	}}}
	reg, err := New(BuiltinFields(), spec, AllowUnresolved())
	require.NoError(t, err)

	mapping := reg.ExtractedFieldMapping("g")
	assert.Equal(t, map[string]string{"VLAN": FieldVLAN}, mapping)
	assert.Equal(t, []string{"Número do Contrato", "VLAN"}, reg.MandatoryFields("g"))
}

func TestNew_BadPatternsAreSkipped(t *testing.T) {
	spec := CatalogSpec{
		Groups: []GroupSpec{{
			Key:           "g",
			Preserve:      []string{`^ok\b`, `^broken(`},
			FieldPatterns: map[string][]string{FieldVLAN: {`vid=(\d+`, `\bvid=(\d+)`}},
		}},
		Fields: map[string]FieldExtra{FieldASN: {Patterns: []string{`[`}}},
	}
	reg, err := New(BuiltinFields(), spec)
	require.NoError(t, err)

	assert.Len(t, reg.Skipped(), 3)
	g, ok := reg.Group("g")
	require.True(t, ok)
	assert.Len(t, g.Preserve, 1)
	assert.Len(t, g.FieldPatterns[FieldVLAN], 1)

	asn, _ := reg.Field(FieldASN)
	builtin := BuiltinFields()
	for _, f := range builtin {
		if f.Name == FieldASN {
			assert.Len(t, asn.Patterns, len(f.Patterns))
		}
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	data := []byte(`
groups:
  - key: Voz
    display_name: Telefonia
    mandatory: [Login]
    mapping: {Login: pppoe_login}
fields:
  vlan:
    patterns: ['\bvid\s+(\d+)']
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	reg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"voz"}, reg.Groups())
	assert.Equal(t, "Telefonia", reg.GroupDisplayName("VOZ"))

	vlan, _ := reg.Field(FieldVLAN)
	last := vlan.Patterns[len(vlan.Patterns)-1]
	assert.Equal(t, []string{"VID 12", "12"}, last.FindStringSubmatch("VID 12"))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "numero_de_serie", NormalizeKey(" Número de Série "))
	assert.Equal(t, "senha_wi_fi", NormalizeKey("Senha Wi-Fi"))
	assert.Equal(t, "ip_wan", NormalizeKey("IP  WAN"))
	assert.Equal(t, "", NormalizeKey("--"))
}

func TestSummaries(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	sums := reg.Summaries()
	require.Len(t, sums, len(reg.Groups()))
	first := sums[0]
	assert.Equal(t, "residential_fiber", first.Key)
	assert.Equal(t, "Fibra Residencial", first.DisplayName)
	assert.Equal(t, []string{"Serial", "SSID", "Senha Wi-Fi", "VLAN", "Potência Óptica"}, first.Mandatory)
	assert.Equal(t, FieldVLAN, first.Mapping["VLAN"])
	assert.Empty(t, first.Unresolved)

	loose, err := New(BuiltinFields(), CatalogSpec{Groups: []GroupSpec{{
		Key:       "g",
		Mandatory: []string{"Contrato", "VLAN"},
	}}}, AllowUnresolved())
	require.NoError(t, err)
	assert.Equal(t, []string{"Contrato"}, loose.Summaries()[0].Unresolved)
	assert.Equal(t, map[string]string{"VLAN": FieldVLAN}, loose.Summaries()[0].Mapping)
}
