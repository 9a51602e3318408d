package runnable

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"post2image/internal/capture"
	"post2image/internal/env"
	"post2image/internal/myhttp"
	"post2image/internal/platform"
	"post2image/internal/routes"

	otelpyroscope "github.com/grafana/otel-profiling-go"
	"github.com/grafana/pyroscope-go"
	pyroscopepprof "github.com/grafana/pyroscope-go/http/pprof"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/semaphore"
	"golang.org/x/xerrors"
)

const (
	applicationName = "post2image"
	// closeMargin is reserved inside the request ceiling for tearing the
	// session down and writing the response.
	closeMargin = 10 * time.Second
)

var DefaultAllowedOrigins = []string{
	"https://post2image.com",
	"https://post2image.vercel.app",
	"http://localhost:3000",
}

type Server struct {
	address                string
	terminationGracePeriod time.Duration
	lameduck               time.Duration
	keepAlive              bool
	maxConnections         int
	requestTimeout         time.Duration
	maxSessions            int64
	allowedOrigins         []string

	browser       capture.Browser
	registry      *platform.Registry
	captureConfig capture.Config
}

func NewServer(browser capture.Browser, registry *platform.Registry, captureConfig capture.Config) *Server {
	return &Server{
		address:                env.OrDefault("ADDRESS", "0.0.0.0:8080"),
		terminationGracePeriod: env.OrDefault("TERMINATION_GRACE_PERIOD", 10*time.Second),
		lameduck:               env.OrDefault("LAMEDUCK", 1*time.Second),
		keepAlive:              env.OrDefault("HTTP_KEEPALIVE", true),
		maxConnections:         env.OrDefault("MAX_CONNECTIONS", 65532),
		requestTimeout:         env.OrDefault("REQUEST_TIMEOUT", 120*time.Second),
		maxSessions:            env.OrDefault("MAX_SESSIONS", int64(4)),
		allowedOrigins:         env.OrDefault("ALLOWED_ORIGINS", DefaultAllowedOrigins),
		browser:                browser,
		registry:               registry,
		captureConfig:          captureConfig,
	}
}

var Debug = false

// minQueueWait is the least time a request may wait for a free session.
const minQueueWait = time.Second

// deadlines splits the request ceiling into the capture budget plus close
// margin and whatever is left for queueing, so a capture always reports its
// own timeout before the ceiling cuts it off.
func deadlines(budget time.Duration, ceiling time.Duration) (routes.Deadlines, error) {
	captureTimeout := budget + closeMargin
	queueTimeout := ceiling - captureTimeout
	if queueTimeout < minQueueWait {
		return routes.Deadlines{}, xerrors.Errorf("capture budget %s plus %s margin leaves less than %s of REQUEST_TIMEOUT %s for queueing", budget, closeMargin, minQueueWait, ceiling)
	}
	return routes.Deadlines{Queue: queueTimeout, Capture: captureTimeout}, nil
}

func newLogger() (*slog.Logger, error) {
	logLevel := slog.LevelInfo
	if v, ok := os.LookupEnv("GO_LOG"); ok {
		if err := logLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, xerrors.Errorf("failed to parse log level: %w", err)
		}
	}
	handlerOpts := &slog.HandlerOptions{
		Level: logLevel,
		// https://opentelemetry.io/docs/specs/otel/logs/data-model/
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.LevelKey:
				a.Key = "severitytext"
			case slog.MessageKey:
				a.Key = "body"
			}
			return a
		},
	}
	if Debug {
		return slog.New(myhttp.NewTraceHandler(slog.NewTextHandler(os.Stderr, handlerOpts))), nil
	}
	return slog.New(myhttp.NewTraceHandler(slog.NewJSONHandler(os.Stderr, handlerOpts))), nil
}

func (s *Server) Start(ctx context.Context) error {
	if s.maxSessions <= 0 {
		return xerrors.Errorf("MAX_SESSIONS must be positive, got %d", s.maxSessions)
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	runtime.SetMutexProfileFraction(1)
	runtime.SetBlockProfileRate(1)

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: applicationName,
		ServerAddress:   os.Getenv("PYROSCOPE_ENDPOINT"),
		UploadRate:      60 * time.Second,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
			pyroscope.ProfileMutexCount,
			pyroscope.ProfileMutexDuration,
			pyroscope.ProfileBlockCount,
			pyroscope.ProfileBlockDuration,
		},
	})
	if err != nil {
		return xerrors.Errorf("failed to create profiler: %w", err)
	}

	otel.SetTextMapPropagator(propagation.TraceContext{})

	r, err := sdkresource.Merge(
		sdkresource.Default(),
		sdkresource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(applicationName)),
	)
	if err != nil {
		return xerrors.Errorf("failed to create resource: %w", err)
	}
	traceExporter, err := otlptracegrpc.New(ctx)
	if err != nil {
		return xerrors.Errorf("failed to create trace exporter: %w", err)
	}
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(r),
		sdktrace.WithBatcher(traceExporter),
	)
	otel.SetTracerProvider(otelpyroscope.NewTracerProvider(traceProvider))

	exporter, err := otelprometheus.New()
	if err != nil {
		return xerrors.Errorf("failed to create exporter: %w", err)
	}
	// NOTE: Gauge(UpDownCounter), Summary or Untyped does not support exemplars
	// https://github.com/prometheus/client_golang/blob/v1.20.4/prometheus/metric.go#L200
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)).Meter(applicationName)
	httpRequestsDurationMicroSeconds, err := meter.Int64Histogram("http_requests_duration_micro_seconds")
	if err != nil {
		return xerrors.Errorf("failed to create histogram: %w", err)
	}

	capturer, err := capture.NewCapturer(s.browser, s.registry, s.captureConfig, meter)
	if err != nil {
		return xerrors.Errorf("failed to create capturer: %w", err)
	}
	convertDeadlines, err := deadlines(capturer.Budget(), s.requestTimeout)
	if err != nil {
		return err
	}

	mux := myhttp.NewRouter(myhttp.Options{
		Duration:       httpRequestsDurationMicroSeconds,
		AllowedOrigins: s.allowedOrigins,
	})

	mux.RouteFunc("/{$}", routes.Convert(capturer, semaphore.NewWeighted(s.maxSessions), convertDeadlines))
	mux.RouteFunc("GET /platforms", routes.Platforms(s.registry))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(http.StatusText(http.StatusOK)))
	})

	mux.Handle("GET /metrics", promhttp.InstrumentMetricHandler(
		prometheus.DefaultRegisterer, promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}),
	))

	if Debug {
		mux.HandleFunc("GET /debug/pprof/", pprof.Index)
		mux.HandleFunc("GET /debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("GET /debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("GET /debug/pprof/trace", pprof.Trace)
		mux.HandleFunc("GET /debug/pprof/profile", pyroscopepprof.Profile)
	}

	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return xerrors.Errorf("failed to listen on address %s: %w", s.address, err)
	}

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.requestTimeout + closeMargin,
	}
	server.SetKeepAlivesEnabled(s.keepAlive)

	go func() {
		if err := server.Serve(netutil.LimitListener(listener, s.maxConnections)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to serve HTTP", "error", err)
		}
	}()
	logger.Info("listening", "address", s.address, "maxSessions", s.maxSessions, "requestTimeout", s.requestTimeout, "captureBudget", capturer.Budget(), "queueTimeout", convertDeadlines.Queue)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	select {
	case <-quit:
	case <-ctx.Done():
	}
	time.Sleep(s.lameduck)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.terminationGracePeriod)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return xerrors.Errorf("failed to shutdown server: %w", err)
	}

	if err := traceProvider.Shutdown(ctx); err != nil {
		return xerrors.Errorf("failed to shutdown trace provider: %w", err)
	}

	if err := profiler.Stop(); err != nil {
		return xerrors.Errorf("failed to shutdown profiler: %w", err)
	}

	return nil
}
