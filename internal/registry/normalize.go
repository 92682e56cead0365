package registry

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalizer turns an accepted raw match into the typed value stored in the
// result. ok=false means the raw value could not be normalised.
type Normalizer func(raw string) (value any, ok bool)

var strictIPv4RE = regexp.MustCompile(
	`\b((?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)(?:\.(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)){3}(?:/(?:3[0-2]|[12]?\d))?)\b`,
)

var identifierDropRE = regexp.MustCompile(`[^A-Za-z0-9.\-]`)

// Integer keeps the first embedded digit run.
func Integer(raw string) (any, bool) {
	run := digitRunRE.FindString(raw)
	if run == "" {
		return nil, false
	}
	n, err := strconv.Atoi(run)
	if err != nil {
		return nil, false
	}
	return n, true
}

// IPAddress re-extracts the strict dotted quad (with optional CIDR).
func IPAddress(raw string) (any, bool) {
	m := strictIPv4RE.FindString(raw)
	if m == "" {
		return nil, false
	}
	return m, true
}

// MACAddress renders six colon-separated uppercase hex pairs.
func MACAddress(raw string) (any, bool) {
	hex := strings.ToUpper(strings.Join(hexRE.FindAllString(raw, -1), ""))
	if len(hex) != 12 {
		return nil, false
	}
	pairs := make([]string, 0, 6)
	for i := 0; i < 12; i += 2 {
		pairs = append(pairs, hex[i:i+2])
	}
	return strings.Join(pairs, ":"), true
}

// OpticalPower formats the first number as "<number> dBm".
func OpticalPower(raw string) (any, bool) {
	f, ok := firstFloat(raw)
	if !ok {
		return nil, false
	}
	return strconv.FormatFloat(f, 'f', -1, 64) + " dBm", true
}

// Unquoted strips wrapping quotes, used for credentials, SSIDs and logins.
func Unquoted(raw string) (any, bool) {
	v := unquote(raw)
	if v == "" {
		return nil, false
	}
	return v, true
}

var clientTypes = []string{"RESIDENCIAL", "EMPRESARIAL", "CORPORATIVO"}

// ClientType canonicalises to RESIDENCIAL, EMPRESARIAL or CORPORATIVO by
// substring match, otherwise returns the value uppercased.
func ClientType(raw string) (any, bool) {
	v := strings.ToUpper(strings.TrimSpace(raw))
	if v == "" {
		return nil, false
	}
	folded := FoldAccents(v)
	for _, ct := range clientTypes {
		if strings.Contains(folded, ct) {
			return ct, true
		}
	}
	return v, true
}

// Identifier keeps [A-Za-z0-9-.] and uppercases, for equipment and
// technology codes.
func Identifier(raw string) (any, bool) {
	v := strings.ToUpper(identifierDropRE.ReplaceAllString(raw, ""))
	if v == "" {
		return nil, false
	}
	return v, true
}

// Trimmed returns the value with surrounding whitespace removed.
func Trimmed(raw string) (any, bool) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil, false
	}
	return v, true
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	for len(s) >= 1 {
		trimmed := strings.Trim(s, "\"'`")
		if trimmed == s {
			break
		}
		s = strings.TrimSpace(trimmed)
	}
	return s
}

// FoldAccents removes combining marks ("Série" -> "Serie").
func FoldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeKey folds accents, lowercases and joins alphanumeric runs with
// underscores: "Número de Série" -> "numero_de_serie".
func NormalizeKey(s string) string {
	s = strings.ToLower(FoldAccents(strings.TrimSpace(s)))
	var b strings.Builder
	pendingSep := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}
