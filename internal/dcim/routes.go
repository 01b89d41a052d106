package dcim

import (
	"strconv"
	"time"

	"codeberg.org/mutker/smartinfra/internal/errors"
	"codeberg.org/mutker/smartinfra/internal/telemetry"
	"github.com/gofiber/fiber/v2"
)

type PowerResponse struct {
	Racks []telemetry.RackPowerReading `json:"racks"`
}

type TemperatureResponse struct {
	Sensors []telemetry.TemperatureReading `json:"sensors"`
}

type CoolingResponse struct {
	CoolingUnits []telemetry.CoolingReading `json:"cooling_units"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) routes() {
	s.app.Get("/api/v2/racks/power", s.handlePower)
	s.app.Get("/nlyte/api/v1/sensors/temperature", s.handleTemperature)
	s.app.Get("/nlyte/api/v1/cooling/units", s.handleCooling)
	s.app.Get("/health", s.handleHealth)
}

func (s *Server) handlePower(c *fiber.Ctx) error {
	count, err := countParam(c, s.cfg.RackCount)
	if err != nil {
		return err
	}

	resp := PowerResponse{Racks: s.source.PowerReadings(count)}
	s.logger.Info().Int("count", len(resp.Racks)).Msg("Serving power data")
	s.publish("dcim/power", resp)

	return c.JSON(resp)
}

func (s *Server) handleTemperature(c *fiber.Ctx) error {
	resp := TemperatureResponse{Sensors: s.source.TemperatureReadings()}
	s.logger.Info().Int("count", len(resp.Sensors)).Msg("Serving temperature data")
	s.publish("dcim/temperature", resp)

	return c.JSON(resp)
}

func (s *Server) handleCooling(c *fiber.Ctx) error {
	count, err := countParam(c, s.cfg.CoolingCount)
	if err != nil {
		return err
	}

	resp := CoolingResponse{CoolingUnits: s.source.CoolingReadings(count)}
	s.logger.Info().Int("count", len(resp.CoolingUnits)).Msg("Serving cooling data")
	s.publish("dcim/cooling", resp)

	return c.JSON(resp)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:    "healthy",
		Service:   ServiceName,
		Timestamp: s.healthTimestamp().Format(time.RFC3339Nano),
	})
}

// countParam reads ?count=, falling back to def when absent.
func countParam(c *fiber.Ctx, def int) (int, error) {
	raw := c.Query("count")
	if raw == "" {
		return def, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > telemetry.MaxCount {
		appErr := errors.New().WithData(ErrInvalidCount, raw)
		return 0, fiber.NewError(fiber.StatusBadRequest, appErr.Error())
	}
	return n, nil
}
