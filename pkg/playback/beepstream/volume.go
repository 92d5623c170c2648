package beepstream

import "math"

// volumeToPower maps a 0.0-1.0 linear volume onto beep's base-2 exponent
// scale. Unity gain is 0; anything near zero is handled by the Silent flag.
func volumeToPower(vol float64) float64 {
	if vol <= 0.01 {
		return -10
	}
	return math.Log2(vol)
}
