package demoapi

import (
	"context"
	"fmt"
	"net"
	"syscall"
	"time"

	"codeberg.org/mutker/smartinfra/internal/errors"
	"codeberg.org/mutker/smartinfra/internal/logger"
	"codeberg.org/mutker/smartinfra/internal/web"
	"github.com/gofiber/fiber/v2"
)

const (
	ServiceName = "Demo API"

	defaultAlertName = "operator"
	metricsTimestamp = "2006-01-02T15:04:05Z"
)

// Metrics is the simulated infrastructure payload served by /api/metrics.
type Metrics struct {
	CPUUsage    string `json:"cpu_usage"`
	MemoryUsage string `json:"memory_usage"`
	DiskSpace   string `json:"disk_space"`
	Uptime      string `json:"uptime"`
	Timestamp   string `json:"timestamp"`
}

// RemoteMetrics wraps metrics fetched over HTTP.
type RemoteMetrics struct {
	Source string   `json:"source"`
	Method string   `json:"method"`
	Data   *Metrics `json:"data"`
	Status string   `json:"status"`
}

type Config struct {
	Port     int
	Upstream string
}

// API is the toy REST service. Its remote route calls back into an
// upstream instance of itself.
type API struct {
	app    *fiber.App
	cfg    Config
	client *Client
	logger logger.Logger
	now    func() time.Time
}

func New(cfg Config, log logger.Logger) *API {
	a := &API{
		app:    web.NewApp(ServiceName, log),
		cfg:    cfg,
		client: NewClient(cfg.Upstream),
		logger: log,
		now:    time.Now,
	}
	a.routes()
	return a
}

func (a *API) App() *fiber.App {
	return a.app
}

func (a *API) Run(ctx context.Context) error {
	a.logger.Info().
		Str("metrics", fmt.Sprintf("http://localhost:%d/api/metrics", a.cfg.Port)).
		Str("remote", fmt.Sprintf("http://localhost:%d/api/metrics/remote", a.cfg.Port)).
		Str("upstream", a.cfg.Upstream).
		Msg("Starting demo API")
	return web.Serve(ctx, a.app, fmt.Sprintf(":%d", a.cfg.Port), a.logger)
}

func (a *API) routes() {
	g := a.app.Group("/api")
	g.Get("/response", a.handleResponse)
	g.Get("/server_alert", a.handleAlert)
	g.Get("/metrics", a.handleMetrics)
	g.Get("/metrics/remote", a.handleRemoteMetrics)
	g.Post("/hello", a.handleHello)
}

func (a *API) handleResponse(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message": "server ping message!",
		"status":  "success",
	})
}

func (a *API) handleAlert(c *fiber.Ctx) error {
	name := c.Query("name", defaultAlertName)
	return c.JSON(fiber.Map{
		"message": fmt.Sprintf("Alert, %s!", name),
		"status":  "success",
		"name":    name,
	})
}

func (a *API) handleMetrics(c *fiber.Ctx) error {
	m := Metrics{
		CPUUsage:    "45%",
		MemoryUsage: "67%",
		DiskSpace:   "23GB free",
		Uptime:      "5 days, 3 hours",
		Timestamp:   a.now().UTC().Format(metricsTimestamp),
	}

	a.logger.Info().
		Str("cpu_usage", m.CPUUsage).
		Str("memory_usage", m.MemoryUsage).
		Str("disk_space", m.DiskSpace).
		Str("uptime", m.Uptime).
		Str("timestamp", m.Timestamp).
		Msg("Serving runtime metrics")

	return c.JSON(m)
}

func (a *API) handleRemoteMetrics(c *fiber.Ctx) error {
	a.logger.Info().Str("upstream", a.cfg.Upstream).Msg("Fetching metrics over HTTP")

	m, err := a.client.Metrics(c.UserContext())
	if err != nil {
		return a.upstreamError(c, err)
	}

	a.logger.Info().
		Str("cpu_usage", m.CPUUsage).
		Str("memory_usage", m.MemoryUsage).
		Str("timestamp", m.Timestamp).
		Msg("Fetched metrics via HTTP")

	return c.JSON(RemoteMetrics{
		Source: "HTTP Request",
		Method: "GET /api/metrics",
		Data:   m,
		Status: "success",
	})
}

func (a *API) handleHello(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message": "Hello from POST request!",
		"method":  "POST",
	})
}

// upstreamError turns a failed upstream call into a JSON error document.
func (a *API) upstreamError(c *fiber.Ctx, err error) error {
	a.logger.Warn().Err(err).Msg("Upstream metrics request failed")

	c.Status(fiber.StatusBadGateway)

	var statusErr *StatusError
	switch {
	case errors.As(err, &statusErr):
		return c.JSON(fiber.Map{
			"error":       "Failed to fetch metrics",
			"status_code": statusErr.StatusCode,
		})
	case isConnectionRefused(err):
		return c.JSON(fiber.Map{
			"error":   "Connection failed - make sure server is running",
			"message": "Try accessing /api/metrics first",
		})
	default:
		return c.JSON(fiber.Map{"error": err.Error()})
	}
}

func isConnectionRefused(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
