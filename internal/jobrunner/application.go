package jobrunner

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/G-Research/jobrunner/internal/common"
	"github.com/G-Research/jobrunner/internal/common/health"
	"github.com/G-Research/jobrunner/internal/common/task"
	"github.com/G-Research/jobrunner/internal/common/util"
	"github.com/G-Research/jobrunner/internal/jobrunner/configuration"
	"github.com/G-Research/jobrunner/internal/jobrunner/engine"
	"github.com/G-Research/jobrunner/internal/jobrunner/jobdb"
	"github.com/G-Research/jobrunner/internal/jobrunner/server"
	"github.com/G-Research/jobrunner/internal/jobrunner/workload"
)

type App struct {
	config   configuration.JobRunnerConfiguration
	registry *prometheus.Registry
	engine   *engine.Engine
	// Reports unhealthy until every component has been started.
	startupCompleteCheck *health.StartupCompleteChecker
	handler              http.Handler
}

// New builds every component of the job runner without starting any of them.
func New(config configuration.JobRunnerConfiguration) (*App, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	jobDb, err := jobdb.NewJobDb()
	if err != nil {
		return nil, errors.WithMessage(err, "error creating job db")
	}

	seed := time.Now().UnixNano()
	clock := &util.DefaultClock{}
	simulator := workload.NewRandomSimulator(config.Workload, seed)
	e := engine.New(config.DefaultMode, jobDb, simulator, clock, engine.NewMetrics(registry))

	startupCompleteCheck := health.NewStartupCompleteChecker()
	checker := health.NewMultiChecker(startupCompleteCheck, e, jobDb)
	srv := server.NewServer(e, config.LoadTarget, clock, util.NewThreadsafeRand(seed+1))

	return &App{
		config:               config,
		registry:             registry,
		engine:               e,
		startupCompleteCheck: startupCompleteCheck,
		handler:              srv.Router(checker),
	}, nil
}

// Handler returns the http handler serving the jobs api, the load target endpoints and /health.
func (a *App) Handler() http.Handler {
	return a.handler
}

// StartUp runs the job runner until ctx is cancelled and then shuts it down.
// Shutdown waits up to ShutdownTimeout for the job in flight to finish; queued jobs are abandoned.
func (a *App) StartUp(ctx context.Context) error {
	log := log.WithField("service", "JobRunner")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.engine.Run(ctx)
	})

	shutdownHttpServer := common.ServeHttp(a.config.HttpPort, a.handler)
	shutdownMetricsServer := common.ServeMetrics(a.config.MetricsPort, a.registry)

	taskManager := task.NewBackgroundTaskManager(engine.MetricPrefix, a.registry)
	taskManager.Register(a.engine.LogStats, a.config.StatsInterval, "worker_stats")

	a.startupCompleteCheck.MarkComplete()
	log.WithField("defaultMode", a.config.DefaultMode).Infof("job runner listening on %d", a.config.HttpPort)

	<-ctx.Done()
	log.Info("shutting down")

	shutdownHttpServer()
	shutdownMetricsServer()

	var result *multierror.Error
	if taskManager.StopAll(a.config.ShutdownTimeout) {
		result = multierror.Append(result, errors.New("timed out waiting for background tasks to stop"))
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			result = multierror.Append(result, err)
		}
	case <-time.After(a.config.ShutdownTimeout):
		result = multierror.Append(result, errors.Errorf("job in flight did not finish within %s", a.config.ShutdownTimeout))
	}

	if err := result.ErrorOrNil(); err != nil {
		return err
	}
	log.Info("shutdown complete")
	return nil
}
