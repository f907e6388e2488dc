// Package backoff computes reconnect delays.
package backoff

import "time"

const (
	Initial = 500 * time.Millisecond
	Max     = 8 * time.Second
)

// Delay returns the wait before reconnect attempt n (1-based), doubling from Initial and capped at Max.
func Delay(n int) time.Duration {
	if n <= 1 {
		return Initial
	}
	d := Initial
	for i := 1; i < n; i++ {
		d *= 2
		if d >= Max {
			return Max
		}
	}
	return d
}
