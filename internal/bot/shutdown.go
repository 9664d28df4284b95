// internal/bot/shutdown.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// StopFunc releases one service. It must return once ctx is done.
type StopFunc func(ctx context.Context) error

type namedService struct {
	name string
	stop StopFunc
}

// ShutdownHandler stops registered services in reverse registration order,
// so a service is always stopped before the services it depends on.
type ShutdownHandler struct {
	logger   *zap.Logger
	mu       sync.Mutex
	services []namedService
	done     bool
}

// NewShutdownHandler creates a new shutdown handler.
func NewShutdownHandler(logger *zap.Logger) *ShutdownHandler {
	return &ShutdownHandler{logger: logger.Named("shutdown")}
}

// Add registers a service for shutdown.
func (sh *ShutdownHandler) Add(name string, stop StopFunc) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.services = append(sh.services, namedService{name: name, stop: stop})
	sh.logger.Debug("Registered service for shutdown", zap.String("service", name))
}

// AddFunc registers a shutdown step that ignores the context.
func (sh *ShutdownHandler) AddFunc(name string, fn func() error) {
	sh.Add(name, func(context.Context) error { return fn() })
}

// Shutdown runs every registered step once. Later calls are no-ops.
func (sh *ShutdownHandler) Shutdown(ctx context.Context) error {
	sh.mu.Lock()
	if sh.done {
		sh.mu.Unlock()
		return nil
	}
	sh.done = true
	services := make([]namedService, len(sh.services))
	copy(services, sh.services)
	sh.mu.Unlock()

	sh.logger.Info("Starting graceful shutdown", zap.Int("services", len(services)))

	var errs []error
	for i := len(services) - 1; i >= 0; i-- {
		svc := services[i]
		if err := svc.stop(ctx); err != nil {
			sh.logger.Error("Failed to shutdown service",
				zap.String("service", svc.name),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", svc.name, err))
			continue
		}
		sh.logger.Debug("Service shutdown complete", zap.String("service", svc.name))
	}

	if len(errs) > 0 {
		sh.logger.Error("Shutdown completed with errors", zap.Int("errorCount", len(errs)))
		return errors.Join(errs...)
	}
	sh.logger.Info("Graceful shutdown completed successfully")
	return nil
}
