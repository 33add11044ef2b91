package attendance

import "time"

// SetNow replaces the validation clock and returns a restore func.
func SetNow(f func() time.Time) func() {
	prev := now
	now = f
	return func() { now = prev }
}
