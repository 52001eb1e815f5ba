package geo

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/example/roadside-assist/internal/models"
)

var (
	seedNames = []string{"Alex Johnson", "Maria Garcia", "David Chen", "Sarah Wilson", "Mike Rodriguez", "Lisa Thompson"}

	seedSpecialties = []string{
		"Tire Change", "Jump Start", "Lockout", "Fuel Delivery",
		"Battery Replacement", "Brake Repair", "Engine Diagnostics",
		"Towing", "Flat Tire Repair", "Key Programming",
	}
)

// Seed builds a mock provider pool scattered around origin. The pool is a
// pure function of rng, so a fixed seed always yields the same providers.
func Seed(rng *rand.Rand, origin models.Coordinate, categories []string, n int) []models.Provider {
	if n <= 0 || len(categories) == 0 {
		return nil
	}
	out := make([]models.Provider, 0, n)
	for i := 0; i < n; i++ {
		p := models.Provider{
			ID:            fmt.Sprintf("provider_%d", i+1),
			Name:          seedNames[i%len(seedNames)],
			Category:      categories[rng.IntN(len(categories))],
			Rating:        math.Round((4.0+rng.Float64())*10) / 10,
			Price:         float64(rng.IntN(100) + 50),
			Online:        rng.Float64() > 0.3,
			CompletedJobs: rng.IntN(500) + 100,
			Location: models.Coordinate{
				Lat: origin.Lat + (rng.Float64()-0.5)*0.1,
				Lng: origin.Lng + (rng.Float64()-0.5)*0.1,
			},
		}
		p.Specialties = pickSpecialties(rng)
		out = append(out, p)
	}
	return out
}

func pickSpecialties(rng *rand.Rand) []string {
	all := append([]string(nil), seedSpecialties...)
	rng.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	return all[:rng.IntN(4)+2]
}

// NewSeededRand returns a deterministic generator for Seed.
func NewSeededRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
