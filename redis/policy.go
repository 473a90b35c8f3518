package redis

// Load bands and usage thresholds of the capacity policy
const (
	lowLoadScore   = 30.0
	highLoadScore  = 70.0
	highUsageRatio = 0.8
	lowUsageRatio  = 0.4
	usageStep      = 5
)

// TargetCapacity computes the desired capacity for one adjustment cycle.
// connected is only consulted when load falls in the medium band [30, 70).
// A load of exactly 70 counts as high so capacity never shrinks at or above it.
func TargetCapacity(load float64, connected, current, minCap, maxCap int) int {
	switch {
	case load < lowLoadScore:
		// floor(current * 0.8) in integer arithmetic
		return max(minCap, current*4/5)
	case load >= highLoadScore:
		// ceil(current * 1.2)
		return min(maxCap, (current*6+4)/5)
	}

	if current <= 0 {
		return clamp(current, minCap, maxCap)
	}
	usage := float64(connected) / float64(current)
	switch {
	case usage > highUsageRatio:
		return min(maxCap, current+usageStep)
	case usage < lowUsageRatio:
		return max(minCap, current-usageStep)
	default:
		return current
	}
}

// needsConnected reports whether the policy reads the server client count at this load
func needsConnected(load float64) bool {
	return load >= lowLoadScore && load < highLoadScore
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
