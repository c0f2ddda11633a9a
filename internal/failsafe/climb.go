package failsafe

// ClimbProfile maps altitude above home to a commanded climb rate.
//
// The profile is deliberately conservative: climb hard only near the ground,
// trickle upward in the mid band, and hold altitude when already high. It is
// a pure function of altitude so its behavior is exactly testable.
type ClimbProfile struct {
	FullBelowM     float64
	ZeroAboveM     float64
	FullRateMps    float64
	TrickleRateMps float64
}

// DefaultClimbProfile matches the shipped tuning: full rate 1 m/s at or below
// 200 m, 0.1 m/s between 200 m and 500 m, level at or above 500 m.
func DefaultClimbProfile() ClimbProfile {
	return ClimbProfile{
		FullBelowM:     200,
		ZeroAboveM:     500,
		FullRateMps:    1.0,
		TrickleRateMps: 0.1,
	}
}

// Rate returns the commanded climb rate for a signed altitude above home.
// Negative altitudes (below home) fall in the full-rate tier.
func (p ClimbProfile) Rate(altAboveHomeM float64) float64 {
	switch {
	case altAboveHomeM <= p.FullBelowM:
		return p.FullRateMps
	case altAboveHomeM < p.ZeroAboveM:
		return p.TrickleRateMps
	default:
		return 0
	}
}
