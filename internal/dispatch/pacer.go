package dispatch

import "time"

const (
	minJitterWindow = time.Second
	jitterRatio     = 0.2
)

// Delay returns the pause before the next send. With jitter the base is
// shifted uniformly within ±max(1s, 20% of base) and never goes negative.
// rnd must return values in [0, 1).
func Delay(base time.Duration, jitter bool, rnd func() float64) time.Duration {
	if base <= 0 {
		return 0
	}
	if !jitter || rnd == nil {
		return base
	}

	window := max(minJitterWindow, time.Duration(float64(base)*jitterRatio))
	d := base + time.Duration((rnd()*2-1)*float64(window))
	if d < 0 {
		return 0
	}
	return d
}
