package command

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/keshon/sbvc/internal/config"
	"github.com/keshon/sbvc/internal/metrics"
	"github.com/keshon/sbvc/internal/service"
)

var errMissingProject = errors.New("project id required")

// Env carries what commands share across one process: configuration, the
// logger and a lazily opened service.
type Env struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Metrics *metrics.Metrics

	once sync.Once
	svc  *service.Service
	err  error
}

// NewEnv builds an Env. m may be nil.
func NewEnv(cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics) *Env {
	return &Env{Config: cfg, Logger: logger, Metrics: m}
}

// Service opens the project service on first use.
func (e *Env) Service() (*service.Service, error) {
	e.once.Do(func() {
		e.svc, e.err = service.New(e.Config, e.Logger, e.Metrics)
	})
	return e.svc, e.err
}
