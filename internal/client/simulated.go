package client

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

const (
	DefaultSimulatedSuccessRate = 0.9
	DefaultSimulatedDelay       = 500 * time.Millisecond
)

var ErrSimulatedFailure = errors.New("simulated send failure")

// Simulated stands in for a real channel during dry runs.
type Simulated struct {
	successRate float64
	delay       time.Duration
	rnd         func() float64
}

func NewSimulated(successRate float64, delay time.Duration) *Simulated {
	if successRate < 0 {
		successRate = 0
	}
	if successRate > 1 {
		successRate = 1
	}
	if delay < 0 {
		delay = 0
	}
	return &Simulated{successRate: successRate, delay: delay, rnd: rand.Float64}
}

// WithRand replaces the random source; r must return values in [0, 1).
func (s *Simulated) WithRand(r func() float64) *Simulated {
	s.rnd = r
	return s
}

func (s *Simulated) Name() string { return "simulated" }

func (s *Simulated) Check(context.Context) error { return nil }

func (s *Simulated) Send(ctx context.Context, _, _ string) (string, error) {
	if s.delay > 0 {
		t := time.NewTimer(s.delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if s.rnd() < s.successRate {
		return "", nil
	}
	return "", ErrSimulatedFailure
}
