package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Shift is the study group a student is enrolled in.
type Shift string

const (
	ShiftMorning  Shift = "morning"
	ShiftEvening  Shift = "evening"
	ShiftFullTime Shift = "full-time"
)

// Recipient is a student record as exported by the dashboard store.
type Recipient struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	FatherName   string `json:"fatherName,omitempty"`
	EnrollmentNo string `json:"enrollmentNo,omitempty"`
	Phone        string `json:"phone"`
	MonthlyFee   Amount `json:"monthlyFee,omitzero"`
	Shift        Shift  `json:"shift,omitempty"`
	SeatNumber   string `json:"seatNumber,omitempty"`
	DueAmount    Amount `json:"dueAmount,omitzero"`
}

// HasDue reports whether the recipient has an outstanding balance.
func (r Recipient) HasDue() bool {
	return r.DueAmount.Valid && r.DueAmount.Value > 0
}

// Amount is an optional money value. Valid is false when the amount was not
// recorded, which differs from a recorded zero.
type Amount struct {
	Value float64
	Valid bool
}

func NewAmount(v float64) Amount {
	return Amount{Value: v, Valid: true}
}

func (a Amount) String() string {
	if !a.Valid {
		return ""
	}
	return strconv.FormatFloat(a.Value, 'f', -1, 64)
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(a.Value)
}

// UnmarshalJSON accepts a number, a numeric string, an empty string or null.
// Dashboard exports write amounts typed into text fields as strings.
func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = Amount{}
		return nil
	}

	raw := string(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
		if raw == "" {
			*a = Amount{}
			return nil
		}
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %s", b)
	}
	*a = NewAmount(v)
	return nil
}
