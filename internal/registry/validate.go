package registry

import (
	"regexp"
	"strconv"
	"strings"
)

// Verdict is a validator's opinion about one candidate value.
// Adjust is added to the candidate's confidence; Reject discards it outright.
type Verdict struct {
	Adjust float64
	Reject bool
}

// Validator scores a raw candidate value for a field.
type Validator interface {
	Validate(value string) Verdict
}

// NoCheck accepts every value without adjusting its score.
type NoCheck struct{}

func (NoCheck) Validate(string) Verdict { return Verdict{} }

// NumericRange requires the first digit run of the value to parse as an
// integer within [Min, Max]. Values outside the range are rejected.
type NumericRange struct {
	Min, Max int64
	Bonus    float64
}

func (v NumericRange) Validate(value string) Verdict {
	n, ok := firstInteger(value)
	if !ok || n < v.Min || n > v.Max {
		return Verdict{Reject: true}
	}
	return Verdict{Adjust: v.Bonus}
}

var (
	ipShapeRE  = regexp.MustCompile(`(\d{1,3})\.(\d{1,3})\.(\d{1,3})\.(\d{1,3})(?:/(\d{1,2}))?`)
	digitRunRE = regexp.MustCompile(`\d+`)
	floatRE    = regexp.MustCompile(`[-+]?\d+(?:[.,]\d+)?`)
	hexRE      = regexp.MustCompile(`[0-9A-Fa-f]`)
)

// IPv4 validates dotted-quad values octet by octet, with an optional /0-32
// prefix length. Malformed values take the penalty and are rejected.
type IPv4 struct {
	Bonus   float64
	Penalty float64
}

func (v IPv4) Validate(value string) Verdict {
	if validIPv4(value) {
		return Verdict{Adjust: v.Bonus}
	}
	return Verdict{Adjust: -v.Penalty, Reject: true}
}

func validIPv4(value string) bool {
	m := ipShapeRE.FindStringSubmatch(value)
	if m == nil {
		return false
	}
	for _, octet := range m[1:5] {
		n, err := strconv.Atoi(octet)
		if err != nil || n > 255 {
			return false
		}
	}
	if m[5] != "" {
		n, err := strconv.Atoi(m[5])
		if err != nil || n > 32 {
			return false
		}
	}
	return true
}

// MinLength rewards values at least Min characters long once wrapping
// quotes are removed. Shorter values are kept without the bonus.
type MinLength struct {
	Min   int
	Bonus float64
}

func (v MinLength) Validate(value string) Verdict {
	if len([]rune(unquote(value))) >= v.Min {
		return Verdict{Adjust: v.Bonus}
	}
	return Verdict{}
}

// Keyword rewards values that contain one of Words (case-insensitive).
type Keyword struct {
	Words []string
	Bonus float64
}

func (v Keyword) Validate(value string) Verdict {
	upper := strings.ToUpper(FoldAccents(value))
	for _, w := range v.Words {
		if strings.Contains(upper, strings.ToUpper(w)) {
			return Verdict{Adjust: v.Bonus}
		}
	}
	return Verdict{}
}

// FloatRange requires the first number in the value (comma or dot decimal)
// to lie within [Min, Max].
type FloatRange struct {
	Min, Max float64
	Bonus    float64
}

func (v FloatRange) Validate(value string) Verdict {
	f, ok := firstFloat(value)
	if !ok || f < v.Min || f > v.Max {
		return Verdict{Reject: true}
	}
	return Verdict{Adjust: v.Bonus}
}

// MAC requires exactly twelve hex digits.
type MAC struct {
	Bonus float64
}

func (v MAC) Validate(value string) Verdict {
	if len(hexRE.FindAllString(value, -1)) != 12 {
		return Verdict{Reject: true}
	}
	return Verdict{Adjust: v.Bonus}
}

func firstInteger(s string) (int64, bool) {
	run := digitRunRE.FindString(s)
	if run == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(run, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func firstFloat(s string) (float64, bool) {
	num := floatRE.FindString(s)
	if num == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.Replace(num, ",", ".", 1), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
