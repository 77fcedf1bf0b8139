// Package app wires the configuration into the concrete collaborators shared
// by the service process and the job runners: the database pool, provider
// clients, repositories, publisher, metrics, and the task Runner.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"agroalerts/internal/config"
	"agroalerts/internal/db"
	"agroalerts/internal/external"
	"agroalerts/internal/observability"
	"agroalerts/internal/pipeline"
	"agroalerts/internal/queue"
	"agroalerts/internal/scheduler"
)

// App holds the wired dependencies of one process.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Pool    *pgxpool.Pool
	Metrics *observability.Metrics

	Fields     *db.FieldRepository
	Alerts     *db.AlertRepository
	Weather    *external.OpenMeteoClient
	Projection *pipeline.ProjectionService
	Runner     *scheduler.Runner

	closers []func() error
}

// New connects to the database and builds every collaborator. Close releases
// what New opened.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	pool, err := newPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.Pool = pool
	a.closers = append(a.closers, func() error { pool.Close(); return nil })

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	a.Metrics = observability.NewMetrics()
	recorder := a.recorder(awsCfg)

	publisher, err := a.publisher(awsCfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Fields = db.NewFieldRepository(pool)
	a.Alerts = db.NewAlertRepository(pool)
	vegetationRepo := db.NewVegetationRepository(pool)

	a.Weather = external.NewOpenMeteoClient(
		&http.Client{Timeout: cfg.Weather.Timeout},
		external.OpenMeteoConfig{
			ForecastURL: cfg.Weather.ForecastURL,
			ArchiveURL:  cfg.Weather.ArchiveURL,
			Logger:      logger,
		},
	)
	vegetation := external.NewVegetationClient(
		&http.Client{Timeout: cfg.Vegetation.Timeout},
		external.VegetationConfig{
			BaseURL: cfg.Vegetation.BaseURL,
			APIKey:  cfg.Vegetation.APIKey,
			Logger:  logger,
		},
	)

	a.Projection = pipeline.NewProjectionService(pipeline.ProjectionServiceConfig{
		Fields:  a.Fields,
		Weather: a.Weather,
		Logger:  logger,
	})

	alertPipeline := pipeline.NewAlertPipeline(pipeline.AlertPipelineConfig{
		Fields:       a.Fields,
		Weather:      a.Weather,
		Vegetation:   vegetationRepo,
		Store:        a.Alerts,
		Publisher:    publisher,
		Metrics:      a.Metrics,
		Recorder:     recorder,
		PastDays:     cfg.Weather.PastDays,
		LookbackDays: cfg.Pipeline.LookbackDays,
		Logger:       logger,
	})
	archiveJob := pipeline.NewWeatherArchiveJob(pipeline.WeatherArchiveJobConfig{
		Fields:       a.Fields,
		Archive:      a.Weather,
		Store:        db.NewWeatherArchiveRepository(pool),
		Skips:        a.Metrics,
		LookbackDays: cfg.Pipeline.ArchiveLookbackDays,
		Logger:       logger,
	})
	vegetationJob := pipeline.NewVegetationJob(pipeline.VegetationJobConfig{
		Fields:       a.Fields,
		Source:       vegetation,
		Store:        vegetationRepo,
		LookbackDays: cfg.Pipeline.ArchiveLookbackDays,
		MaxCloudPct:  cfg.Vegetation.MaxCloudPct,
		Logger:       logger,
	})
	conditionsJob := pipeline.NewConditionsJob(pipeline.ConditionsJobConfig{
		Fields: a.Fields,
		Source: a.Weather,
		Store:  db.NewConditionsRepository(pool),
		Skips:  a.Metrics,
		Logger: logger,
	})

	a.Runner = scheduler.NewRunner(scheduler.RunnerConfig{
		Jobs: map[scheduler.TaskType]scheduler.JobFunc{
			scheduler.TaskAlerts: func(ctx context.Context, now time.Time) (int, error) {
				res, err := alertPipeline.Run(ctx, now)
				return res.Upserted, err
			},
			scheduler.TaskWeatherArchive:    archiveJob.Run,
			scheduler.TaskVegetation:        vegetationJob.Run,
			scheduler.TaskCurrentConditions: conditionsJob.Run,
		},
		Locks:    db.NewJobLockRepository(pool),
		History:  db.NewJobHistoryRepository(pool),
		Recorder: recorder,
		LockTTL:  cfg.Schedule.LockTTL,
		WorkerID: workerID(),
		Logger:   logger,
	})

	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Error("failed to release resource", "error", err)
		}
	}
	a.closers = nil
}

func newPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// recorder fans run metrics out to Prometheus and, when enabled, CloudWatch.
func (a *App) recorder(awsCfg aws.Config) observability.RunRecorder {
	if !a.Config.Observability.EnableCloudWatch {
		return a.Metrics
	}
	cw := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if a.Config.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(a.Config.AWS.EndpointURL)
		}
	})
	return observability.MultiRecorder{
		a.Metrics,
		observability.NewCloudWatchRecorder(cw, a.Config.Observability.MetricNamespace, a.Logger),
	}
}

func (a *App) publisher(awsCfg aws.Config) (queue.Publisher, error) {
	cfg := a.Config.Publisher
	switch cfg.Kind {
	case "sqs":
		client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if a.Config.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(a.Config.AWS.EndpointURL)
			}
		})
		return queue.NewSQSPublisher(client, cfg, a.Logger), nil
	case "kafka":
		p := queue.NewKafkaPublisher(cfg, a.Logger)
		a.closers = append(a.closers, p.Close)
		return p, nil
	case "", "none":
		return queue.NoopPublisher{}, nil
	default:
		return nil, fmt.Errorf("unknown publisher kind %q", cfg.Kind)
	}
}

// workerID identifies this process in job_locks.
func workerID() string {
	host, err := os.Hostname()
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// NewLogger creates a JSON slog.Logger at the given level.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
