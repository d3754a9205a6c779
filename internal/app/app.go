// Package app assembles the process from configuration. The server and the
// operator CLI share it so both run the same flow engine.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"kycflow/internal/audit"
	auditkafka "kycflow/internal/audit/kafka"
	"kycflow/internal/camera"
	"kycflow/internal/camera/netcam"
	"kycflow/internal/camera/stillcam"
	"kycflow/internal/catalog"
	"kycflow/internal/flow"
	flowstore "kycflow/internal/flow/store"
	"kycflow/internal/platform/config"
	"kycflow/internal/platform/metrics"
	"kycflow/internal/platform/postgres"
	platformredis "kycflow/internal/platform/redis"
	"kycflow/internal/ratelimit"
	reportstore "kycflow/internal/report/store"
	"kycflow/internal/verification"
	"kycflow/pkg/platform/circuit"
	"kycflow/pkg/platform/svctoken"
)

// APIAudience is the audience of tokens accepted by the flow API.
const APIAudience = "kycflow-api"

// App holds the wired components.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Catalog  *catalog.Catalog
	Camera   *camera.Manager
	Client   *verification.Client
	Source   flow.ConfigSource
	Flows    *flow.Registry
	Archive  reportstore.Archive
	Audit    *audit.Publisher
	AuditLog *audit.MemoryStore
	Worker   *audit.Worker
	Limiter  *ratelimit.Limiter
	// APITokens validates flow API tokens and mints them for operators.
	APITokens *svctoken.Issuer
	Health    map[string]func(context.Context) error

	closers []func() error
}

// Build connects every configured backend. Backends left unconfigured fall
// back to in-memory versions.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
		Health:   make(map[string]func(context.Context) error),
	}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.New(a.Registry)

	if err := a.build(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config
	var err error

	a.Catalog, err = catalog.Default()
	if err != nil {
		return err
	}

	device, kind := NewDevice(cfg.Camera)
	a.Logger.InfoContext(ctx, "camera device selected", "device", kind)
	a.Camera = camera.NewManager(device, camera.WithLogger(a.Logger), camera.WithMetrics(a.Metrics))
	a.closers = append(a.closers, func() error { a.Camera.Release(); return nil })

	serviceTokens := svctoken.NewIssuer(cfg.ServiceSigningKey, cfg.ServiceIssuer, cfg.ServiceAudience, cfg.ServiceTokenTTL)
	a.APITokens = svctoken.NewIssuer(cfg.ServiceSigningKey, cfg.ServiceIssuer, APIAudience, cfg.ServiceTokenTTL)

	a.Client = verification.New(cfg.Verification.BaseURL,
		verification.WithHTTPClient(&http.Client{Timeout: cfg.Verification.Timeout}),
		verification.WithTokenSource(serviceTokens),
		verification.WithBreaker(circuit.New("verification",
			circuit.WithFailureThreshold(cfg.Verification.FailureThreshold),
			circuit.WithCooldown(cfg.Verification.Cooldown),
		)),
		verification.WithDocumentOCR(cfg.Verification.EnableDocumentOCR),
		verification.WithLogger(a.Logger),
		verification.WithMetrics(a.Metrics),
	)

	sessions, limits, err := a.redisStores(ctx)
	if err != nil {
		return err
	}
	a.Limiter = ratelimit.New(limits, cfg.RateLimit.Requests, cfg.RateLimit.Window)
	a.Archive, err = a.reportArchive(ctx)
	if err != nil {
		return err
	}
	if err := a.auditPipeline(ctx); err != nil {
		return err
	}

	var source flow.ConfigSource = flow.DefaultStaticSource()
	switch {
	case cfg.Flow.ConfigURL != "":
		source = flow.NewHTTPSource(cfg.Flow.ConfigURL,
			flow.WithHTTPClient(&http.Client{Timeout: cfg.Verification.Timeout}),
			flow.WithTokenSource(serviceTokens),
		)
	case cfg.Flow.ConfigFile != "":
		fileSource, err := flow.NewFileSource(cfg.Flow.ConfigFile)
		if err != nil {
			return err
		}
		source = fileSource
	}

	a.Source = source
	a.Flows, err = flow.NewRegistry(source, flow.Deps{
		Catalog:   a.Catalog,
		Camera:    a.Camera,
		Submitter: a.Client,
		Sessions:  sessions,
		Archive:   a.Archive,
		Audit:     a.Audit,
		Logger:    a.Logger,
		Metrics:   a.Metrics,
	})
	return err
}

// redisStores returns the session store and rate-limit store, both on Redis
// when it is configured.
func (a *App) redisStores(ctx context.Context) (flowstore.SessionStore, ratelimit.Store, error) {
	client, err := platformredis.New(ctx, a.Config.Redis)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		a.Logger.InfoContext(ctx, "session store: in-memory")
		return flowstore.NewMemoryStore(), ratelimit.NewMemoryStore(), nil
	}
	a.closers = append(a.closers, client.Close)
	a.Health["redis"] = client.Health
	a.Logger.InfoContext(ctx, "session store: redis")
	return flowstore.NewRedisStore(client.Client, flowstore.WithTTL(a.Config.Redis.SessionTTL)),
		ratelimit.NewRedisStore(client.Client), nil
}

func (a *App) reportArchive(ctx context.Context) (reportstore.Archive, error) {
	db, err := postgres.Open(ctx, a.Config.Postgres.DSN)
	if err != nil {
		return nil, err
	}
	if db == nil {
		a.Logger.InfoContext(ctx, "report archive: in-memory")
		return reportstore.NewMemoryArchive(), nil
	}
	a.closers = append(a.closers, db.Close)
	a.Health["postgres"] = db.PingContext
	archive := reportstore.NewPostgresArchive(db)
	if err := archive.Migrate(ctx); err != nil {
		return nil, err
	}
	a.Logger.InfoContext(ctx, "report archive: postgres")
	return archive, nil
}

func (a *App) auditPipeline(ctx context.Context) error {
	hasher, err := audit.NewHasher([]byte(a.Config.Audit.HashKey))
	if err != nil {
		return fmt.Errorf("audit hasher: %w", err)
	}
	a.Audit = audit.NewPublisher(a.Config.Audit.BufferSize, hasher)
	a.AuditLog = audit.NewMemoryStore()
	sinks := []audit.Sink{a.AuditLog}

	if len(a.Config.Kafka.Brokers) > 0 {
		client, err := auditkafka.NewClient(a.Config.Kafka.Brokers, a.Config.Kafka.Topic)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { client.Close(); return nil })
		kc := a.Config.Kafka
		if err := auditkafka.EnsureTopic(ctx, client, kc.Topic, int32(kc.Partitions), int16(kc.Replication)); err != nil {
			return err
		}
		a.Health["kafka"] = client.Ping
		sinks = append(sinks, auditkafka.NewSink(client, a.Config.Kafka.Topic))
	}
	a.Worker = audit.NewWorker(a.Audit.Inbox(), a.Logger, sinks...)
	return nil
}

// Close releases backends in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// NewDevice picks the capture device: frame directories first, then snapshot
// URLs. With neither configured every open reports a missing device.
func NewDevice(cfg config.Camera) (camera.Device, string) {
	if cfg.UserDir != "" || cfg.EnvironmentDir != "" {
		return stillcam.New(sources(cfg.UserDir, cfg.EnvironmentDir)), "stillcam"
	}
	if cfg.UserURL != "" || cfg.EnvironmentURL != "" {
		return netcam.New(sources(cfg.UserURL, cfg.EnvironmentURL)), "netcam"
	}
	return stillcam.New(nil), "none"
}

func sources(user, environment string) map[camera.Facing]string {
	out := make(map[camera.Facing]string, 2)
	if user != "" {
		out[camera.FacingUser] = user
	}
	if environment != "" {
		out[camera.FacingEnvironment] = environment
	}
	return out
}
