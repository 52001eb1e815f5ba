package lifecycle

import "math"

// DefaultPerMileFee is charged per mile between provider and customer.
const DefaultPerMileFee = 2.0

// DistanceFee prices miles at perMile, rounded to cents.
func DistanceFee(miles, perMile float64) float64 {
	return roundCents(miles * perMile)
}

// Total is base plus the distance fee, rounded to cents.
func Total(base, miles, perMile float64) float64 {
	return roundCents(base + DistanceFee(miles, perMile))
}

func roundCents(v float64) float64 { return math.Round(v*100) / 100 }
