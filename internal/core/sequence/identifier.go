// Package sequence provides domain contracts for human-readable sequential identifiers.
// Implementations live in infrastructure layer.
package sequence

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"backoffice/internal/core/apperror"
)

// Kind identifies a family of identifiers. Each kind has a fixed padding width
// for the life of the system: changing it would make old and new identifiers
// ambiguous when parsed.
type Kind int

const (
	// KindBarcode is a printed label serial, e.g. BX000042.
	KindBarcode Kind = iota
	// KindEmployee is an employee business ID, e.g. FE007.
	KindEmployee
	// KindPayslip is a payslip ID, always prefixed with PayslipPrefix, e.g. MIS00012.
	KindPayslip
)

// PayslipPrefix is the only prefix payslip IDs use.
const PayslipPrefix = "MIS"

var (
	barcodePrefixRe  = regexp.MustCompile(`^[A-Z]{2,4}$`)
	employeePrefixRe = regexp.MustCompile(`^[A-Z][A-Z0-9]{1,3}$`)
)

// Width returns the zero-padding width of the numeric part.
func (k Kind) Width() int {
	switch k {
	case KindBarcode:
		return 6
	case KindEmployee:
		return 3
	case KindPayslip:
		return 5
	default:
		return 0
	}
}

func (k Kind) String() string {
	switch k {
	case KindBarcode:
		return "barcode"
	case KindEmployee:
		return "employee"
	case KindPayslip:
		return "payslip"
	default:
		return "unknown"
	}
}

// ParseKind maps the external name of a kind back to Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "barcode":
		return KindBarcode, nil
	case "employee":
		return KindEmployee, nil
	case "payslip":
		return KindPayslip, nil
	}
	return 0, apperror.NewValidation("unknown identifier kind").WithDetail("kind", s)
}

// MaxNumber is the largest number that still fits the kind's width.
func (k Kind) MaxNumber() int64 {
	return int64(math.Pow10(k.Width())) - 1
}

// Key returns the counter namespace key for prefix.
// Kinds are namespaced so an employee prefix can never share a counter with
// payslips or barcodes.
func (k Kind) Key(prefix string) string {
	return strings.ToUpper(k.String()) + ":" + prefix
}

// ValidatePrefix checks prefix syntax for the kind.
func (k Kind) ValidatePrefix(prefix string) error {
	var ok bool
	switch k {
	case KindBarcode:
		ok = barcodePrefixRe.MatchString(prefix)
	case KindEmployee:
		ok = employeePrefixRe.MatchString(prefix)
	case KindPayslip:
		ok = prefix == PayslipPrefix
	}
	if !ok {
		return apperror.NewValidation("invalid prefix").
			WithDetail("kind", k.String()).
			WithDetail("prefix", prefix)
	}
	return nil
}

// Identifier is an allocated prefix + sequence number pair.
type Identifier struct {
	Kind   Kind
	Prefix string
	Number int64
}

// String renders prefix + zero-padded number.
func (i Identifier) String() string {
	return fmt.Sprintf("%s%0*d", i.Prefix, i.Kind.Width(), i.Number)
}

// Format renders an identifier, refusing numbers that would overflow the width.
func Format(kind Kind, prefix string, number int64) (string, error) {
	if number < 1 {
		return "", apperror.NewValidation("sequence number must be positive").
			WithDetail("number", number)
	}
	if number > kind.MaxNumber() {
		return "", apperror.NewSequenceExhausted(prefix, kind.Width())
	}
	return Identifier{Kind: kind, Prefix: prefix, Number: number}.String(), nil
}

// SuffixPattern compiles ^PREFIX(\d+)$ for scan-derived allocation.
func SuffixPattern(prefix string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `(\d+)$`)
}

// ParseSuffix extracts the numeric suffix of rendered using a SuffixPattern.
// Returns false for identifiers of another shape (legacy or malformed data).
func ParseSuffix(re *regexp.Regexp, rendered string) (int64, bool) {
	m := re.FindStringSubmatch(rendered)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseManual splits a manually entered identifier into prefix and number.
// The last Width() characters must be digits; the rest is the prefix.
func ParseManual(kind Kind, rendered string) (Identifier, error) {
	rendered = strings.TrimSpace(rendered)
	w := kind.Width()
	if len(rendered) <= w {
		return Identifier{}, apperror.NewValidation("identifier too short").
			WithDetail("identifier", rendered)
	}

	prefix, digits := rendered[:len(rendered)-w], rendered[len(rendered)-w:]
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || strings.ContainsAny(digits, "+-") {
		return Identifier{}, apperror.NewValidation("identifier must end with digits").
			WithDetail("identifier", rendered).
			WithDetail("width", w)
	}
	if err := kind.ValidatePrefix(prefix); err != nil {
		return Identifier{}, err
	}
	if n < 1 {
		return Identifier{}, apperror.NewValidation("sequence number must be positive").
			WithDetail("identifier", rendered)
	}
	return Identifier{Kind: kind, Prefix: prefix, Number: n}, nil
}

// ParseKey splits a counter key such as EMPLOYEE:FE into kind and prefix,
// validating the prefix for that kind.
func ParseKey(key string) (Kind, string, error) {
	name, prefix, ok := strings.Cut(key, ":")
	if !ok {
		return 0, "", apperror.NewValidation("counter key must be KIND:PREFIX").WithDetail("key", key)
	}
	kind, err := ParseKind(name)
	if err != nil {
		return 0, "", err
	}
	if err := kind.ValidatePrefix(prefix); err != nil {
		return 0, "", err
	}
	return kind, prefix, nil
}
