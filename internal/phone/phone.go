// Package phone turns freeform phone input into canonical +<digits> identifiers.
package phone

import (
	"regexp"
	"strings"
)

const (
	MinDigits = 10
	MaxDigits = 15

	DefaultCountryCode = "91"
)

// Validation messages surfaced to the user as item errors.
const (
	ErrTooShort      = "Phone number too short"
	ErrTooLong       = "Phone number too long"
	ErrInvalidMobile = "Invalid mobile number"
)

// mobilePatterns holds the subscriber-number pattern for countries whose
// mobile numbering plan we validate on the fast path.
var mobilePatterns = map[string]*regexp.Regexp{
	"91": regexp.MustCompile(`^[6-9]\d{9}$`),
}

type Result struct {
	Valid      bool   `json:"isValid"`
	Normalized string `json:"normalized"`
	Error      string `json:"error,omitempty"`
}

type Normalizer struct {
	countryCode string
	mobile      *regexp.Regexp
}

// NewNormalizer returns a normalizer for the given default country code.
// An empty code falls back to DefaultCountryCode.
func NewNormalizer(countryCode string) *Normalizer {
	countryCode = digitsOnly(countryCode)
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	return &Normalizer{
		countryCode: countryCode,
		mobile:      mobilePatterns[countryCode],
	}
}

func (n *Normalizer) CountryCode() string {
	return n.countryCode
}

// Normalize never fails hard; invalid input yields Valid=false and an error text.
func (n *Normalizer) Normalize(raw string) Result {
	digits := digitsOnly(raw)

	if len(digits) < MinDigits {
		return invalid(ErrTooShort)
	}
	if len(digits) > MaxDigits {
		return invalid(ErrTooLong)
	}

	// Local numbers written with a trunk prefix, e.g. 09876543210.
	if len(digits) == MinDigits+1 && digits[0] == '0' {
		digits = digits[1:]
	}

	if len(digits) == MinDigits {
		if !n.validSubscriber(digits) {
			return invalid(ErrInvalidMobile)
		}
		return valid("+" + n.countryCode + digits)
	}

	if strings.HasPrefix(digits, n.countryCode) && len(digits)-len(n.countryCode) == MinDigits {
		if !n.validSubscriber(digits[len(n.countryCode):]) {
			return invalid(ErrInvalidMobile)
		}
	}

	return valid("+" + digits)
}

// Valid is a shorthand for Normalize(raw).Valid.
func (n *Normalizer) Valid(raw string) bool {
	return n.Normalize(raw).Valid
}

func (n *Normalizer) validSubscriber(subscriber string) bool {
	if n.mobile == nil {
		return true
	}
	return n.mobile.MatchString(subscriber)
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func valid(normalized string) Result {
	return Result{Valid: true, Normalized: normalized}
}

func invalid(msg string) Result {
	return Result{Error: msg}
}
