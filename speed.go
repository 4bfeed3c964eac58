package yogafanctl

// MinFanSpeed is the lowest non-zero duty the EC drives cleanly; values in
// [1,17] cause audible pulsing.
const MinFanSpeed = 18

// ClampSpeed normalizes a fan target to the valid domain: 0 or [18,100].
func ClampSpeed(v int) int {
	v = min(max(v, 0), 100)
	if v >= 1 && v < MinFanSpeed {
		return MinFanSpeed
	}
	return v
}
