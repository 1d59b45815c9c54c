package screener

import "math"

// PutDelta is the Black-Scholes delta of a European put, between -1 and 0.
// years is time to expiry; rate and iv are annualized fractions. Returns NaN for
// non-positive inputs.
func PutDelta(spot, strike, years, rate, iv float64) float64 {
	if spot <= 0 || strike <= 0 || years <= 0 || iv <= 0 {
		return math.NaN()
	}
	d1 := (math.Log(spot/strike) + (rate+iv*iv/2)*years) / (iv * math.Sqrt(years))
	return normCDF(d1) - 1
}

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}
