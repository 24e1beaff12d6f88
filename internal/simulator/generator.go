// Package simulator produces synthetic wearable readings for local runs.
package simulator

import (
	"math/rand/v2"
	"time"

	"github.com/mukhtiarDev/personal-health-monitor/internal/model"
)

// Distribution parameters of the generated heart rate, in bpm.
const (
	baseMean, baseStdDev         = 75.0, 10.0
	anomalyMean, anomalyStdDev   = 130.0, 5.0
	criticalMean, criticalStdDev = 165.0, 5.0

	anomalyChance  = 0.10
	criticalChance = 0.05

	minSteps, maxSteps = 10, 50
)

// Generator draws readings from a mixture of a resting distribution and two
// elevated ones. It is not safe for concurrent use.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator returns a Generator seeded with seed.
func NewGenerator(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Next returns a new reading stamped at ts.
//
// The critical draw is independent of the anomaly draw and overrides it, so
// the critical band fires about 5% of the time and the anomaly band about
// 9.5%.
func (g *Generator) Next(ts time.Time) model.MetricReading {
	hr := g.normal(baseMean, baseStdDev)
	if g.rng.Float64() < anomalyChance {
		hr = g.normal(anomalyMean, anomalyStdDev)
	}
	if g.rng.Float64() < criticalChance {
		hr = g.normal(criticalMean, criticalStdDev)
	}
	return model.MetricReading{
		Timestamp: ts,
		HeartRate: hr,
		Steps:     minSteps + g.rng.IntN(maxSteps-minSteps+1),
		Status:    model.ReadingNew,
	}
}

func (g *Generator) normal(mean, stddev float64) float64 {
	return mean + stddev*g.rng.NormFloat64()
}
