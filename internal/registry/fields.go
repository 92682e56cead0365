package registry

import (
	"fmt"
	"regexp"
)

// FieldDefinition describes one extractable business field.
type FieldDefinition struct {
	Name       string
	Patterns   []*regexp.Regexp // ordered candidate patterns, evaluated case-insensitive multiline
	Validator  Validator
	Normalizer Normalizer
}

// Field names of the built-in registry, in output column order.
const (
	FieldSerialCode     = "serial_code"
	FieldEquipmentModel = "equipment_model"
	FieldTechnologyID   = "technology_id"
	FieldClientType     = "client_type"
	FieldPlanNumber     = "plan_number"
	FieldCircuitID      = "circuit_id"
	FieldVLAN           = "vlan"
	FieldInterfaceName  = "interface_name"
	FieldIPManagement   = "ip_management"
	FieldIPWAN          = "ip_wan"
	FieldIPGateway      = "ip_gateway"
	FieldIPLANBlock     = "ip_lan_block"
	FieldASN            = "asn"
	FieldProviderID     = "provider_id"
	FieldSlot           = "slot"
	FieldPort           = "port"
	FieldONUID          = "onu_id"
	FieldMACAddress     = "mac_address"
	FieldOpticalPower   = "optical_power"
	FieldWifiSSID       = "wifi_ssid"
	FieldWifiPasscode   = "wifi_passcode"
	FieldPPPoELogin     = "pppoe_login"
	FieldPPPoEPassword  = "pppoe_password"
)

// ipv4Loose accepts out-of-range octets; the IPv4 validator rejects them.
const ipv4Loose = `\d{1,3}(?:\.\d{1,3}){3}(?:/\d{1,2})?`

type fieldSpec struct {
	name       string
	patterns   []string
	validator  Validator
	normalizer Normalizer
}

// fieldSpecs is the built-in registry, in priority order per field.
var fieldSpecs = []fieldSpec{
	{
		name: FieldSerialCode,
		patterns: []string{
			`\b(?:s/?n|serial(?:\s*(?:number|no\.?))?|n[uú]mero\s+de\s+s[eé]rie|s[eé]rie)(?:\s*[:=#]\s*|\s+)([A-Za-z0-9][A-Za-z0-9-]{3,31})\b`,
			`\bsn-auth\s+"?([A-Za-z0-9-]{8,32})"?`,
			`\b([A-Z]{4}[0-9A-F]{8})\b`,
		},
		validator:  MinLength{Min: 6, Bonus: 0.2},
		normalizer: Trimmed,
	},
	{
		name: FieldEquipmentModel,
		patterns: []string{
			`\b(?:modelo|model|equipamento|equipment|roteador|router|cpe|ont|onu)\s*[:=]\s*([A-Za-z0-9][A-Za-z0-9 ._-]{2,30}[A-Za-z0-9])`,
			`\b((?:HG|EG|HS|HN|AN|F|ZXHN\s?F)\d{3,5}[A-Z0-9]*(?:-\d{2})?)\b`,
		},
		validator:  MinLength{Min: 4, Bonus: 0.1},
		normalizer: Identifier,
	},
	{
		name: FieldTechnologyID,
		patterns: []string{
			`\b(?:tecnologia|technology|tech|acesso|access)\s*[:=]\s*([A-Za-z][A-Za-z0-9-]{1,20})`,
			`\b(XGS-PON|GPON|EPON|ETHERNET|MPLS|FTTH|RADIO)\b`,
		},
		validator:  Keyword{Words: []string{"GPON", "EPON", "ETHERNET", "MPLS"}, Bonus: 0.3},
		normalizer: Identifier,
	},
	{
		name: FieldClientType,
		patterns: []string{
			`\b(?:tipo\s+(?:de\s+)?cliente|client\s*type|customer\s*type|segmento)\s*[:=]\s*([A-Za-zÀ-ÿ]+)`,
			`\b(residencial|empresarial|corporativo)\b`,
		},
		validator:  Keyword{Words: clientTypes, Bonus: 0.2},
		normalizer: ClientType,
	},
	{
		name: FieldPlanNumber,
		patterns: []string{
			`\bplano\s*(?:n[uú]mero|n[º°o]\.?)?\s*[:=#]?\s*(\d{1,6})\b`,
			`\bplan\s*(?:number|no\.?|id)?\s*[:=#]?\s*(\d{1,6})\b`,
		},
		validator:  NoCheck{},
		normalizer: Integer,
	},
	{
		name: FieldCircuitID,
		patterns: []string{
			`\b(?:circuito|designa[cç][aã]o|circuit(?:\s*id)?|cid)\s*[:=#]\s*([A-Za-z0-9][A-Za-z0-9/_.-]{3,40})`,
		},
		validator:  MinLength{Min: 6, Bonus: 0.2},
		normalizer: Identifier,
	},
	{
		name: FieldVLAN,
		patterns: []string{
			`\b(?:s-?|c-?)?vlan(?:[-_ ]?id)?\s*[:=#]?\s*(\d{1,5})\b`,
			`\bvlan-type\s+dot1q\s+(\d{1,5})\b`,
			`\bdot1q\s+(?:vid\s+)?(\d{1,5})\b`,
			`\bencapsulation\s+dot1q\s+(\d{1,5})\b`,
		},
		validator:  NumericRange{Min: 1, Max: 4094, Bonus: 0.3},
		normalizer: Integer,
	},
	{
		name: FieldInterfaceName,
		patterns: []string{
			`^\s*interface\s+([A-Za-z][A-Za-z_-]*\s?\d+(?:[/.:]\d+)*)`,
			`\binterface\s+([A-Za-z][A-Za-z_-]*\d+(?:[/.:]\d+)*)`,
		},
		validator:  MinLength{Min: 3, Bonus: 0.1},
		normalizer: Trimmed,
	},
	{
		name: FieldIPManagement,
		patterns: []string{
			`\b(?:ip\s+(?:de\s+)?ger[eê]ncia|ger[eê]ncia|management\s*ip|ip\s*mgmt|mgmt(?:\s*ip)?)\s*[:=]?\s*(` + ipv4Loose + `)`,
		},
		validator:  IPv4{Bonus: 0.3, Penalty: 0.2},
		normalizer: IPAddress,
	},
	{
		name: FieldIPWAN,
		patterns: []string{
			`\b(?:ip\s*wan|wan\s*ip|ip\s+p[uú]blico|ip\s+fixo|ip\s+address)\s*[:=]?\s*(` + ipv4Loose + `)`,
		},
		validator:  IPv4{Bonus: 0.3, Penalty: 0.2},
		normalizer: IPAddress,
	},
	{
		name: FieldIPGateway,
		patterns: []string{
			`\b(?:gateway|gw|next[- ]hop)\s*[:=]?\s*(` + ipv4Loose + `)`,
			`\bip\s+route(?:-static)?\s+\d{1,3}(?:\.\d{1,3}){3}\s+\d{1,3}(?:\.\d{1,3}){0,3}\s+(` + ipv4Loose + `)`,
		},
		validator:  IPv4{Bonus: 0.3, Penalty: 0.2},
		normalizer: IPAddress,
	},
	{
		name: FieldIPLANBlock,
		patterns: []string{
			`\b(?:bloco|prefixo|prefix|rede\s+lan|lan|block)\s*(?:ip|ipv4)?\s*[:=]?\s*(\d{1,3}(?:\.\d{1,3}){3}/\d{1,2})`,
		},
		validator:  IPv4{Bonus: 0.3, Penalty: 0.2},
		normalizer: IPAddress,
	},
	{
		name: FieldASN,
		patterns: []string{
			`\basn\s*[:=#]?\s*(?:as)?(\d{1,10})\b`,
			`\bas[-_ ]?(\d{3,10})\b`,
			`\bremote-as\s+(\d{1,10})\b`,
			`\b(?:router\s+)?bgp\s+(\d{1,10})\b`,
		},
		validator:  NumericRange{Min: 1, Max: 4294967295, Bonus: 0.3},
		normalizer: Integer,
	},
	{
		name: FieldProviderID,
		patterns: []string{
			`\b(?:id\s+(?:do\s+)?provedor|provider\s*id|c[oó]digo\s+(?:do\s+)?provedor)\s*[:=#]?\s*(\d{1,10})\b`,
		},
		validator:  NumericRange{Min: 1, Max: 4294967295, Bonus: 0.3},
		normalizer: Integer,
	},
	{
		name: FieldSlot,
		patterns: []string{
			`\bslot\s*[:=#]?\s*(\d{1,3})\b`,
			`\b(?:gpon|epon|xpon|pon)[-_ ]?(?:olt_|onu_)?\d{1,2}/(\d{1,2})/\d{1,3}`,
		},
		validator:  NoCheck{},
		normalizer: Integer,
	},
	{
		name: FieldPort,
		patterns: []string{
			`\b(?:porta|port)\s*[:=#]?\s*(\d{1,3})(?:[^/\d]|$)`,
			`\b(?:gpon|epon|xpon|pon)[-_ ]?(?:olt_|onu_)?\d{1,2}/\d{1,2}/(\d{1,3})`,
		},
		validator:  NoCheck{},
		normalizer: Integer,
	},
	{
		name: FieldONUID,
		patterns: []string{
			`\b(?:onu|ont)[-_ ]?id\s*[:=#]?\s*(\d{1,3})\b`,
			`\bgpon-onu_\d{1,2}/\d{1,2}/\d{1,3}:(\d{1,3})\b`,
			`\bont\s+add\s+\d{1,3}\s+(\d{1,3})\b`,
		},
		validator:  NoCheck{},
		normalizer: Integer,
	},
	{
		name: FieldMACAddress,
		patterns: []string{
			`\b([0-9A-F]{2}(?:[:-][0-9A-F]{2}){5})\b`,
			`\b([0-9A-F]{4}\.[0-9A-F]{4}\.[0-9A-F]{4})\b`,
		},
		validator:  MAC{Bonus: 0.3},
		normalizer: MACAddress,
	},
	{
		name: FieldOpticalPower,
		patterns: []string{
			`\b(?:pot[eê]ncia(?:\s+[oó]ptica)?|rx\s*power|tx\s*power|optical\s+power|sinal(?:\s+[oó]ptico)?)\s*[:=]?\s*(-?\d{1,2}(?:[.,]\d{1,3})?)`,
			`(-\d{1,2}(?:[.,]\d{1,3})?)\s*dbm\b`,
		},
		validator:  FloatRange{Min: -50, Max: 10, Bonus: 0.3},
		normalizer: OpticalPower,
	},
	{
		name: FieldWifiSSID,
		patterns: []string{
			`\bssid(?:\s*(?:2[.,]4\s*g(?:hz)?|5\s*g(?:hz)?))?\s*[:=]\s*("[^"\r\n]+"|"?[^\s"]+)`,
			`\bnome\s+(?:da\s+)?rede(?:\s+wi-?fi)?\s*[:=]\s*("[^"\r\n]+"|"?[^\s"]+)`,
		},
		validator:  MinLength{Min: 4, Bonus: 0.2},
		normalizer: Unquoted,
	},
	{
		name: FieldWifiPasscode,
		patterns: []string{
			`\b(?:senha\s*(?:do\s*)?wi-?fi|wi-?fi\s*(?:password|pass|senha|key)|wpa2?(?:-psk)?\s*(?:key|password|senha)?|password|passwd|senha|chave)\s*[:=]\s*("[^"\r\n]+"|"?[^\s"]+)`,
		},
		validator:  MinLength{Min: 4, Bonus: 0.2},
		normalizer: Unquoted,
	},
	{
		name: FieldPPPoELogin,
		patterns: []string{
			`\bpppoe\s*(?:user(?:name)?|login|usu[aá]rio)?\s*[:=]\s*("[^"\r\n]+"|"?[^\s"]+)`,
			`\b(?:login|usu[aá]rio|username|user)\s*[:=]\s*("[^"\r\n]+"|"?[^\s"]+)`,
		},
		validator:  MinLength{Min: 4, Bonus: 0.2},
		normalizer: Unquoted,
	},
	{
		name: FieldPPPoEPassword,
		patterns: []string{
			`\bpppoe\s*(?:password|senha|pass)\s*[:=]\s*("[^"\r\n]+"|"?[^\s"]+)`,
			`\bpassword\s+(?:cipher|simple|irreversible-cipher)\s+("[^"\r\n]+"|"?[^\s"]+)`,
		},
		validator:  MinLength{Min: 4, Bonus: 0.2},
		normalizer: Unquoted,
	},
}

// BuiltinFields compiles the built-in field registry. Each call returns a
// fresh slice, so callers may extend it before building a Registry.
func BuiltinFields() []FieldDefinition {
	defs := make([]FieldDefinition, 0, len(fieldSpecs))
	for _, spec := range fieldSpecs {
		def := FieldDefinition{
			Name:       spec.name,
			Validator:  spec.validator,
			Normalizer: spec.normalizer,
		}
		for _, p := range spec.patterns {
			def.Patterns = append(def.Patterns, regexp.MustCompile(CompileFlags+p))
		}
		defs = append(defs, def)
	}
	return defs
}

// CompileFlags is prepended to every candidate and preservation pattern.
const CompileFlags = "(?im)"

// CompilePattern compiles a catalog-supplied pattern with the registry flags.
func CompilePattern(p string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(CompileFlags + p)
	if err != nil {
		return nil, fmt.Errorf("compiling %q: %w", p, err)
	}
	return re, nil
}
