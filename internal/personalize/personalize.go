// Package personalize renders per-recipient messages from {token} templates.
package personalize

import (
	"regexp"
	"strings"
	"time"

	"github.com/LeventeLantos/whatsapp-broadcast/internal/model"
)

// Missing is rendered in place of a field the recipient does not have.
const Missing = "—"

const (
	TokenName         = "name"
	TokenFatherName   = "fatherName"
	TokenEnrollmentNo = "enrollmentNo"
	TokenContact      = "contact"
	TokenMonthlyFee   = "monthlyFee"
	TokenShift        = "shift"
	TokenSeatNumber   = "seatNumber"
	TokenDueAmount    = "dueAmount"
	TokenCurrentMonth = "currentMonth"
)

var tokens = []string{
	TokenName,
	TokenFatherName,
	TokenEnrollmentNo,
	TokenContact,
	TokenMonthlyFee,
	TokenShift,
	TokenSeatNumber,
	TokenDueAmount,
	TokenCurrentMonth,
}

var placeholderRe = regexp.MustCompile(`\{([^{}\s]+)\}`)

// Tokens returns the recognized placeholder names.
func Tokens() []string {
	out := make([]string, len(tokens))
	copy(out, tokens)
	return out
}

type Personalizer struct {
	now func() time.Time
}

func New() *Personalizer {
	return &Personalizer{now: time.Now}
}

// NewWithClock fixes the clock used for {currentMonth}.
func NewWithClock(now func() time.Time) *Personalizer {
	return &Personalizer{now: now}
}

// Render replaces every recognized {token}; unknown tokens are left as-is.
func (p *Personalizer) Render(template string, r model.Recipient) string {
	if !strings.Contains(template, "{") {
		return template
	}

	values := p.values(r)
	pairs := make([]string, 0, len(tokens)*2)
	for _, tok := range tokens {
		pairs = append(pairs, "{"+tok+"}", orMissing(values[tok]))
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// UnknownTokens lists placeholders in template that Render will not replace,
// in order of first appearance.
func UnknownTokens(template string) []string {
	known := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		known[tok] = struct{}{}
	}

	var out []string
	seen := map[string]struct{}{}
	for _, m := range placeholderRe.FindAllStringSubmatch(template, -1) {
		name := m[1]
		if _, ok := known[name]; ok {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

func (p *Personalizer) values(r model.Recipient) map[string]string {
	return map[string]string{
		TokenName:         r.Name,
		TokenFatherName:   r.FatherName,
		TokenEnrollmentNo: r.EnrollmentNo,
		TokenContact:      r.Phone,
		TokenMonthlyFee:   r.MonthlyFee.String(),
		TokenShift:        string(r.Shift),
		TokenSeatNumber:   r.SeatNumber,
		TokenDueAmount:    r.DueAmount.String(),
		TokenCurrentMonth: p.now().Month().String(),
	}
}

func orMissing(v string) string {
	if strings.TrimSpace(v) == "" {
		return Missing
	}
	return v
}
