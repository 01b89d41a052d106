package telemetry

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Generator produces randomized but schema-consistent readings. It owns its
// random source, which is guarded so handlers may share one Generator.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) {
		g.now = now
	}
}

// NewGenerator returns a Generator drawing from src.
func NewGenerator(src rand.Source, opts ...GeneratorOption) *Generator {
	g := &Generator{
		rng: rand.New(src),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewSeededGenerator returns a Generator with a PCG source. A zero seed
// seeds from the clock.
func NewSeededGenerator(seed uint64, opts ...GeneratorOption) *Generator {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return NewGenerator(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15), opts...)
}

// Now returns the generator's clock reading.
func (g *Generator) Now() time.Time {
	return g.now()
}

// PowerReadings returns count racks, 1-indexed. count <= 0 means DefaultCount.
func (g *Generator) PowerReadings(count int) []RackPowerReading {
	count = normalizeCount(count)

	g.mu.Lock()
	defer g.mu.Unlock()

	racks := make([]RackPowerReading, 0, count)
	for i := 1; i <= count; i++ {
		racks = append(racks, RackPowerReading{
			ID:                    fmt.Sprintf("rack-%02d", i),
			Location:              fmt.Sprintf("Row-%d", (i-1)/2+1),
			PowerConsumptionWatts: g.intInRange(MinPowerWatts, MaxPowerWatts),
			PDUID:                 fmt.Sprintf("pdu-%02d", i),
			PDUStatus:             StatusOperational,
		})
	}
	return racks
}

// TemperatureReadings returns one reading per fixed (location, type) pair.
func (g *Generator) TemperatureReadings() []TemperatureReading {
	g.mu.Lock()
	defer g.mu.Unlock()

	sensors := make([]TemperatureReading, 0, len(SensorLocations))
	for i, loc := range SensorLocations {
		celsius := MinTemperature + g.rng.Float64()*(MaxTemperature-MinTemperature)
		sensors = append(sensors, TemperatureReading{
			ID:                 fmt.Sprintf("temp-%02d", i),
			Location:           loc,
			Type:               SensorTypes[i],
			TemperatureCelsius: roundTenth(celsius),
		})
	}
	return sensors
}

// CoolingReadings returns count CRAC units, 1-indexed. count <= 0 means
// DefaultCount.
func (g *Generator) CoolingReadings(count int) []CoolingReading {
	count = normalizeCount(count)

	g.mu.Lock()
	defer g.mu.Unlock()

	units := make([]CoolingReading, 0, count)
	for i := 1; i <= count; i++ {
		units = append(units, CoolingReading{
			ID:                 fmt.Sprintf("crac-%02d", i),
			Location:           fmt.Sprintf("Zone-%d", i),
			Status:             coolingStatuses[g.rng.IntN(len(coolingStatuses))],
			CapacityKW:         CoolingCapacityKW,
			CurrentLoadPercent: g.intInRange(MinCoolingLoad, MaxCoolingLoad),
		})
	}
	return units
}

// intInRange draws uniformly from [lo, hi]. Caller holds g.mu.
func (g *Generator) intInRange(lo, hi int) int {
	return lo + g.rng.IntN(hi-lo+1)
}

func normalizeCount(count int) int {
	if count <= 0 {
		return DefaultCount
	}
	return count
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
