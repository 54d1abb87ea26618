// Package format holds display helpers shared by the daemon and the
// service layer.
package format

import "fmt"

// Percent renders a ratio as a percentage string. Callers hand in
// either a fraction (0.42) or an already-scaled value (42.0); anything
// at or below 1 is treated as a fraction. Both forms render "42.00%".
func Percent(v float64) string {
	if v <= 1 {
		v *= 100
	}
	return fmt.Sprintf("%.2f%%", v)
}
