package dcim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"codeberg.org/mutker/smartinfra/internal/errors"
	"codeberg.org/mutker/smartinfra/internal/logger"
	"codeberg.org/mutker/smartinfra/internal/publish"
	"codeberg.org/mutker/smartinfra/internal/telemetry"
	"codeberg.org/mutker/smartinfra/internal/web"
	"github.com/gofiber/fiber/v2"
)

const (
	ServiceName = "Mock DCIM Server"

	ErrInvalidCount = errors.ErrorCode("dcim_invalid_count")

	publishTimeout = 5 * time.Second
)

type Config struct {
	Port         int
	RackCount    int
	CoolingCount int
}

// Server exposes mock DCIM readings over HTTP.
type Server struct {
	app       *fiber.App
	cfg       Config
	source    telemetry.Source
	publisher publish.Publisher
	logger    logger.Logger

	mu         sync.Mutex
	lastHealth time.Time
	publishing sync.WaitGroup
}

// New builds the server and registers its routes. A nil publisher disables
// publishing. Health timestamps follow the source's clock.
func New(cfg Config, source telemetry.Source, pub publish.Publisher, log logger.Logger) *Server {
	if pub == nil {
		pub, _ = publish.New(publish.Config{}, log)
	}

	s := &Server{
		app:       web.NewApp(ServiceName, log),
		cfg:       cfg,
		source:    source,
		publisher: pub,
		logger:    log,
	}

	s.routes()
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves until ctx is cancelled and waits for in-flight publishes.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info().
		Str("power", s.url("/api/v2/racks/power")).
		Str("temperature", s.url("/nlyte/api/v1/sensors/temperature")).
		Str("cooling", s.url("/nlyte/api/v1/cooling/units")).
		Str("health", s.url("/health")).
		Msg("Starting mock DCIM server")

	err := web.Serve(ctx, s.app, fmt.Sprintf(":%d", s.cfg.Port), s.logger)
	s.publishing.Wait()
	return err
}

func (s *Server) url(path string) string {
	return fmt.Sprintf("http://localhost:%d%s", s.cfg.Port, path)
}

// healthTimestamp never returns a time earlier than a previous call.
func (s *Server) healthTimestamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.source.Now()
	if now.Before(s.lastHealth) {
		now = s.lastHealth
	}
	s.lastHealth = now
	return now
}

func (s *Server) publish(topic string, v any) {
	s.publishing.Add(1)
	go func() {
		defer s.publishing.Done()

		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		if err := s.publisher.Publish(ctx, topic, v); err != nil {
			s.logger.Warn().Err(err).Str("topic", topic).Msg("Failed to publish readings")
		}
	}()
}
