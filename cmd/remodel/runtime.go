package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/mongoremodel/internal/config"
	"github.com/ahrav/mongoremodel/internal/domain/migration"
	"github.com/ahrav/mongoremodel/internal/infra/kafka"
	"github.com/ahrav/mongoremodel/internal/infra/notify"
	"github.com/ahrav/mongoremodel/internal/infra/storage/redis"
	"github.com/ahrav/mongoremodel/pkg/common/logger"
	"github.com/ahrav/mongoremodel/pkg/common/otel"
)

const (
	storeConnectTimeout = 30 * time.Second
	notifyTimeout       = 10 * time.Second
)

// runtime owns the process-wide collaborators of one subcommand invocation.
type runtime struct {
	cfg       config.Config
	runID     string
	log       *logger.Logger
	providers otel.Providers
	tracer    trace.Tracer
	redis     *goredis.Client

	closers []func(context.Context)
}

// newRuntime loads configuration, opens the log file, initializes telemetry
// and connects to Redis. logFile may be empty for stdout.
func newRuntime(ctx context.Context, opts *globalOptions, service, logFile string) (*runtime, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if opts.logLevel != "" {
		level = opts.logLevel
	}

	hostname, _ := os.Hostname()
	svcName := fmt.Sprintf("REMODEL-%s", service)
	traceIDFn := func(ctx context.Context) string { return otel.GetTraceID(ctx) }

	log, logCloser, err := logger.NewFile(logger.FileConfig{
		Path:       logFile,
		MaxSizeMB:  100,
		MaxBackups: 5,
		Compress:   true,
	}, logger.ParseLevel(level), svcName, traceIDFn)
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, runID: uuid.NewString()}
	rt.log = log.With("run_id", rt.runID, "hostname", hostname)
	rt.closers = append(rt.closers, func(context.Context) {
		_ = rt.log.Sync()
		_ = logCloser.Close()
	})

	providers, teardown, err := otel.InitTelemetry(rt.log, otel.Config{
		ServiceName:      svcName,
		ExporterEndpoint: cfg.OTelEndpoint,
		ResourceAttributes: map[string]string{
			"library.language": "go",
			"host.name":        hostname,
			"remodel.run_id":   rt.runID,
			"remodel.env":      cfg.Env,
		},
		InsecureExporter: true,
	})
	if err != nil {
		rt.close(ctx)
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}
	rt.providers = providers
	rt.tracer = providers.Tracer.Tracer(svcName)
	rt.closers = append(rt.closers, teardown)

	rdb, err := redis.Connect(ctx, redis.Config{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, storeConnectTimeout, rt.log)
	if err != nil {
		rt.log.Error(ctx, "Coordination store unavailable", "addr", cfg.Redis.Addr(), "error", err)
		rt.close(ctx)
		return nil, err
	}
	rt.redis = rdb
	rt.closers = append(rt.closers, func(context.Context) { _ = rdb.Close() })

	rt.log.Info(ctx, "Runtime initialized", "service", service, "config", opts.configPath, "log_file", logFile)
	return rt, nil
}

// close releases resources in reverse order of acquisition.
func (rt *runtime) close(ctx context.Context) {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i](ctx)
	}
	rt.closers = nil
}

func (rt *runtime) queueStore() *redis.QueueStore { return redis.NewQueueStore(rt.redis, rt.tracer) }

func (rt *runtime) statusStore() *redis.StatusStore { return redis.NewStatusStore(rt.redis, rt.tracer) }

func (rt *runtime) notifier() migration.Notifier {
	n, err := notify.New(rt.cfg.Notifiers(), notifyTimeout)
	if err != nil {
		rt.log.Warn(context.Background(), "Notifications disabled", "error", err)
		return notify.Nop{}
	}
	return n
}

// offsetInspector builds the configured consumer-group offset reader.
func (rt *runtime) offsetInspector(ctx context.Context) (migration.OffsetInspector, error) {
	if rt.cfg.Kafka.Inspector == config.InspectorCLI {
		return kafka.NewDescribeInspector(rt.cfg.Kafka.Home, rt.cfg.Kafka.Brokers(), kafka.ExecRunner, rt.tracer), nil
	}

	client, err := kafka.ConnectWithRetry(ctx, &kafka.ClientConfig{
		Brokers:  rt.cfg.Kafka.Brokers(),
		ClientID: "remodel-watchdog-" + rt.runID[:8],
	}, storeConnectTimeout, rt.log)
	if err != nil {
		return nil, err
	}
	inspector, err := kafka.NewAdminInspector(client, rt.tracer)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	rt.closers = append(rt.closers, func(context.Context) {
		if err := inspector.Close(); err != nil {
			rt.log.Warn(context.Background(), "Failed to close kafka admin", "error", err)
		}
	})
	return inspector, nil
}
