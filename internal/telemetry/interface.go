package telemetry

import "time"

// RackPowerReading is the power draw of one rack and its PDU.
type RackPowerReading struct {
	ID                    string `json:"id"`
	Location              string `json:"location"`
	PowerConsumptionWatts int    `json:"power_consumption_watts"`
	PDUID                 string `json:"pdu_id"`
	PDUStatus             string `json:"pdu_status"`
}

// TemperatureReading is one environmental sensor sample.
type TemperatureReading struct {
	ID                 string  `json:"id"`
	Location           string  `json:"location"`
	Type               string  `json:"type"`
	TemperatureCelsius float64 `json:"temperature_celsius"`
}

// CoolingReading is the state of one CRAC unit.
type CoolingReading struct {
	ID                 string `json:"id"`
	Location           string `json:"location"`
	Status             string `json:"status"`
	CapacityKW         int    `json:"capacity_kw"`
	CurrentLoadPercent int    `json:"current_load_percent"`
}

// Source produces mock readings for each sensor domain.
type Source interface {
	PowerReadings(count int) []RackPowerReading
	TemperatureReadings() []TemperatureReading
	CoolingReadings(count int) []CoolingReading
	Now() time.Time
}

const (
	StatusOperational = "operational"
	StatusWarning     = "warning"

	DefaultCount = 3
	// MaxCount bounds the number of racks or cooling units per request.
	MaxCount = 100

	MinPowerWatts = 7500
	MaxPowerWatts = 8500

	MinTemperature = 20.0
	MaxTemperature = 30.0

	CoolingCapacityKW = 50
	MinCoolingLoad    = 60
	MaxCoolingLoad    = 85
)

var (
	// SensorLocations and SensorTypes are paired by position.
	SensorLocations = [...]string{"rack-01", "rack-02", "server-room"}
	SensorTypes     = [...]string{"ambient", "supply", "return"}

	// three in four cooling units report operational
	coolingStatuses = [...]string{StatusOperational, StatusOperational, StatusOperational, StatusWarning}
)
