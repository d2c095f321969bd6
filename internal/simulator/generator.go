// Package simulator produces synthetic fleet telemetry for development and
// load testing against a live broker.
package simulator

import (
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/guardian-iov/guardian/internal/triage"
)

// Scenario names the kind of sample the generator produces.
type Scenario string

const (
	ScenarioNormal           Scenario = "NORMAL"
	ScenarioCrashConscious   Scenario = "CRASH_CONSCIOUS"
	ScenarioCrashUnconscious Scenario = "CRASH_UNCONSCIOUS"
)

// Generator fabricates telemetry for a fixed fleet of vehicles.
type Generator struct {
	fleet []string
	rng   *rand.Rand
	now   func() time.Time
}

// NewGenerator creates a generator with fleetSize random vehicle identities.
func NewGenerator(fleetSize int, seed int64) *Generator {
	if fleetSize <= 0 {
		fleetSize = 5
	}
	g := &Generator{
		rng: rand.New(rand.NewSource(seed)),
		now: time.Now,
	}
	for i := 0; i < fleetSize; i++ {
		g.fleet = append(g.fleet, newVIN())
	}
	return g
}

// newVIN derives a short uppercase vehicle identity.
func newVIN() string {
	return strings.ToUpper(uuid.NewString()[:8])
}

// Fleet returns the vehicle identities.
func (g *Generator) Fleet() []string {
	return append([]string(nil), g.fleet...)
}

// Next picks a random vehicle and scenario and fabricates one sample.
// Scenario odds: 3% severe crash, 5% moderate crash, rest routine.
func (g *Generator) Next() (triage.TelemetrySample, Scenario) {
	vin := g.fleet[g.rng.Intn(len(g.fleet))]

	var scenario Scenario
	switch chance := g.rng.Float64(); {
	case chance < 0.03:
		scenario = ScenarioCrashUnconscious
	case chance < 0.08:
		scenario = ScenarioCrashConscious
	default:
		scenario = ScenarioNormal
	}

	return g.Sample(vin, scenario), scenario
}

// Sample fabricates one sample for a given vehicle and scenario.
func (g *Generator) Sample(vin string, scenario Scenario) triage.TelemetrySample {
	s := triage.TelemetrySample{
		VIN:       vin,
		TiltAngle: round2(g.uniform(-2.0, 2.0)),
		Timestamp: g.now().UTC(),
	}

	switch scenario {
	case ScenarioCrashConscious:
		s.GForce = round2(g.uniform(8.5, 12.0))
		s.Speed = round2(g.uniform(0, 10))
		s.Heartbeat = g.intBetween(90, 120)
		s.AirbagDeployed = g.rng.Float64() < 0.20
		s.TiltAngle = round2(g.uniform(-10.0, 10.0))

	case ScenarioCrashUnconscious:
		s.GForce = round2(g.uniform(12.0, 25.0))
		s.Speed = 0
		s.Heartbeat = 0
		s.AirbagDeployed = true
		if g.rng.Float64() > 0.5 {
			s.TiltAngle = round2(g.uniform(45.0, 180.0))
		} else {
			s.TiltAngle = round2(g.uniform(-5.0, 5.0))
		}

	default:
		s.GForce = round2(g.uniform(0.1, 1.5))
		s.Speed = round2(g.uniform(40, 80))
		s.Heartbeat = g.intBetween(65, 95)
	}

	return s
}

func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}

func (g *Generator) intBetween(lo, hi int) int {
	return lo + g.rng.Intn(hi-lo+1)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
