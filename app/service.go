package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bselee/enviroflow/config"
	"github.com/bselee/enviroflow/core/adapter"
	"github.com/bselee/enviroflow/core/audit"
	"github.com/bselee/enviroflow/core/credentials"
	"github.com/bselee/enviroflow/core/engine"
	"github.com/bselee/enviroflow/core/events"
	"github.com/bselee/enviroflow/core/executor"
	coremetrics "github.com/bselee/enviroflow/core/metrics"
	"github.com/bselee/enviroflow/core/model"
	coremon "github.com/bselee/enviroflow/core/monitoring"
	"github.com/bselee/enviroflow/core/ratelimit"
	"github.com/bselee/enviroflow/core/solar"
	"github.com/bselee/enviroflow/core/trigger"
	"github.com/bselee/enviroflow/infra/crypto"
	"github.com/bselee/enviroflow/infra/logger"
	"github.com/bselee/enviroflow/infra/metrics"
	"github.com/bselee/enviroflow/infra/monitoring"
	"github.com/bselee/enviroflow/infra/mqtt"
	"github.com/bselee/enviroflow/infra/store"
	"github.com/bselee/enviroflow/internal/eventbus"
)

// ErrNoMasterKey is returned by the decrypter when no credentials key is
// configured. Dry runs never reach it.
var ErrNoMasterKey = errors.New("no credentials master key configured")

// Service wires the schedule engine to its storage, adapters and sinks.
type Service struct {
	cfg *config.Config
	log logger.Logger

	Store    *store.SQLiteStore
	Box      *crypto.Box
	Limiter  *ratelimit.Limiter
	Adapters *adapter.Registry
	Executor *executor.Executor
	Engine   *engine.Engine

	matcher    *trigger.Matcher
	audit      *audit.Sink
	sink       coremetrics.MetricsSink
	execBus    *eventbus.TypedBus[events.ExecutionEvent]
	attemptBus *eventbus.TypedBus[events.AttemptEvent]
	collected  <-chan struct{}
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	svc := &Service{cfg: cfg, log: logg}
	ok := false
	defer func() {
		if !ok {
			_ = svc.Close()
		}
	}()

	var decrypter credentials.Decrypter = credentials.DecrypterFunc(func(context.Context, string) (credentials.Credentials, error) {
		return nil, ErrNoMasterKey
	})
	if key := cfg.Credentials.Key(); key != "" {
		box, err := crypto.NewBoxFromBase64(key)
		if err != nil {
			return nil, fmt.Errorf("credentials: %w", err)
		}
		svc.Box = box
		decrypter = box
	} else {
		logg.Warnf("no credentials master key configured; only dry runs can succeed")
	}

	svc.Store, err = store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	auditStore, err := audit.Open(cfg.Audit)
	if err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}
	svc.audit = audit.NewSink(auditStore)

	svc.sink, err = coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	svc.Limiter = ratelimit.New(
		ratelimit.WithMax(cfg.RateLimit.MaxPerWindow),
		ratelimit.WithWindow(time.Duration(cfg.RateLimit.WindowSeconds)*time.Second),
	)
	if err := prometheus.Register(ratelimit.NewCollector(svc.Limiter)); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, fmt.Errorf("rate limit collector: %w", err)
		}
	}

	svc.Adapters = adapter.NewRegistry()
	if err := mqtt.Register(svc.Adapters, cfg.MQTT); err != nil {
		return nil, fmt.Errorf("mqtt adapter: %w", err)
	}
	for brand, conf := range cfg.Adapters {
		svc.Adapters.Configure(model.Brand(brand), conf)
	}

	svc.execBus = eventbus.NewTyped[events.ExecutionEvent](eventbus.DefaultBuffer)
	svc.attemptBus = eventbus.NewTyped[events.AttemptEvent](eventbus.DefaultBuffer)

	svc.Executor, err = executor.New(svc.Limiter, svc.Adapters, decrypter,
		executor.WithLogger(logger.New("executor")),
		executor.WithRetry(cfg.Retry.MaxAttempts, time.Duration(cfg.Retry.BackoffBaseSeconds)*time.Second),
		executor.WithExecutionBus(svc.execBus),
		executor.WithAttemptBus(svc.attemptBus),
	)
	if err != nil {
		return nil, err
	}

	svc.matcher = trigger.NewMatcher(solar.Astronomical{},
		trigger.WithFallbackLocation(cfg.Engine.Location()),
		trigger.WithLogger(logger.New("trigger")),
	)
	svc.Engine, err = svc.newEngine(cfg.Engine.DryRun, true)
	if err != nil {
		return nil, err
	}
	ok = true
	return svc, nil
}

func (s *Service) newEngine(dryRun, record bool) (*engine.Engine, error) {
	opts := []engine.Option{
		engine.WithLogger(logger.New("engine")),
		engine.WithMetrics(s.sink),
		engine.WithParallelism(s.cfg.Engine.Parallelism),
		engine.WithDryRun(dryRun),
	}
	if record {
		opts = append(opts, engine.WithAudit(s.audit), engine.WithMetadata(s.Store))
	}
	return engine.New(s.Store, s.matcher, s.Executor, opts...)
}

// Tick evaluates every active schedule once at now.
func (s *Service) Tick(ctx context.Context, now time.Time) (engine.TickReport, error) {
	return s.Engine.Tick(ctx, now)
}

// Preview runs a dry tick at now. Nothing is audited or persisted.
func (s *Service) Preview(ctx context.Context, now time.Time) (engine.TickReport, error) {
	e, err := s.newEngine(true, false)
	if err != nil {
		return engine.TickReport{}, err
	}
	return e.Tick(ctx, now)
}

// Audit returns the execution audit sink.
func (s *Service) Audit() *audit.Sink { return s.audit }

// StartCollector forwards executor events to the configured metrics sinks
// until ctx is canceled or the service is closed. It is a no-op when a
// collector is already running.
func (s *Service) StartCollector(ctx context.Context) {
	if s.collected != nil {
		return
	}
	s.collected = metrics.StartEventCollector(ctx, s.execBus, s.attemptBus, s.sink, logger.New("metrics"))
}

// Run drives ticks on the configured interval until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	s.StartCollector(ctx)
	go s.Limiter.Run(ctx, time.Duration(s.cfg.RateLimit.CleanupIntervalSeconds)*time.Second)

	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, addr, logger.New("metrics")); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	sched, err := NewScheduler(s.cfg.Engine.TickInterval(), s, logger.New("scheduler"))
	if err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	s.log.Infof("engine started: tick every %s, dry_run=%t", s.cfg.Engine.TickInterval(), s.Engine.DryRun())
	<-ctx.Done()
	sched.Stop()
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var errs []error
	if s.execBus != nil {
		s.execBus.Close()
	}
	if s.attemptBus != nil {
		s.attemptBus.Close()
	}
	if s.collected != nil {
		<-s.collected
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	if s.audit != nil {
		errs = append(errs, s.audit.Close())
	}
	if s.Store != nil {
		errs = append(errs, s.Store.Close())
	}
	coremon.Flush(2 * time.Second)
	return errors.Join(errs...)
}
