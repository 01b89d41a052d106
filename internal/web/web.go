// Package web holds the fiber plumbing shared by the HTTP services.
package web

import (
	"context"
	"time"

	"codeberg.org/mutker/smartinfra/internal/errors"
	"codeberg.org/mutker/smartinfra/internal/logger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

const shutdownTimeout = 5 * time.Second

// NewApp returns a fiber app with JSON errors, panic recovery and request
// logging installed.
func NewApp(name string, log logger.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               name,
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler(log),
	})

	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(RequestLogger(log))

	return app
}

// ErrorHandler renders every error as {"error": message}.
func ErrorHandler(log logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}

		if code >= fiber.StatusInternalServerError {
			log.Error().Err(err).Str("path", c.Path()).Msg("Request failed")
		}

		return c.Status(code).JSON(fiber.Map{"error": err.Error()})
	}
}

// RequestLogger logs one line per request at debug level, or warn for
// server errors.
func RequestLogger(log logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			// let the error handler set the final status before logging
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				return herr
			}
		}

		status := c.Response().StatusCode()
		event := log.Debug()
		if status >= fiber.StatusInternalServerError {
			event = log.Warn()
		}
		event.
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("Request handled")

		return nil
	}
}

// Serve runs app on addr until ctx is cancelled, then shuts it down.
func Serve(ctx context.Context, app *fiber.App, addr string, log logger.Logger) error {
	errFactory := errors.New()

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(addr)
	}()

	log.Info().Str("addr", addr).Msg("Listening")

	select {
	case err := <-errCh:
		if err != nil {
			return errFactory.Wrap(errors.ErrServeFailed, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		return errFactory.Wrap(errors.ErrShutdownFailed, err)
	}
	if err := <-errCh; err != nil {
		return errFactory.Wrap(errors.ErrServeFailed, err)
	}

	log.Info().Msg("Server stopped")
	return nil
}
