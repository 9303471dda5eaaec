// Package audience selects broadcast recipients by category.
package audience

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/LeventeLantos/whatsapp-broadcast/internal/model"
)

type Audience string

const (
	All      Audience = "all"
	Morning  Audience = "morning"
	Evening  Audience = "evening"
	FullTime Audience = "full-time"
	Due      Audience = "due"
)

var ErrUnknownAudience = errors.New("unknown audience")

// Audiences lists every recognized category.
func Audiences() []Audience {
	return []Audience{All, Morning, Evening, FullTime, Due}
}

// Parse is the strict entry point used where user input arrives.
// An empty value means All.
func Parse(raw string) (Audience, error) {
	a := Audience(strings.ToLower(strings.TrimSpace(raw)))
	if a == "" {
		return All, nil
	}
	for _, known := range Audiences() {
		if a == known {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAudience, raw)
}

// Filter returns the recipients in a, preserving input order.
// An unknown category selects everyone and logs a warning.
func Filter(recipients []model.Recipient, a Audience) []model.Recipient {
	match, ok := matcher(a)
	if !ok {
		slog.Warn("unknown audience, selecting all recipients", "audience", string(a))
		match = matchAll
	}

	out := make([]model.Recipient, 0, len(recipients))
	for _, r := range recipients {
		if match(r) {
			out = append(out, r)
		}
	}
	return out
}

func matcher(a Audience) (func(model.Recipient) bool, bool) {
	switch a {
	case All, "":
		return matchAll, true
	case Morning:
		return shift(model.ShiftMorning), true
	case Evening:
		return shift(model.ShiftEvening), true
	case FullTime:
		return shift(model.ShiftFullTime), true
	case Due:
		return model.Recipient.HasDue, true
	}
	return nil, false
}

func matchAll(model.Recipient) bool { return true }

func shift(s model.Shift) func(model.Recipient) bool {
	return func(r model.Recipient) bool {
		return model.Shift(strings.ToLower(string(r.Shift))) == s
	}
}
