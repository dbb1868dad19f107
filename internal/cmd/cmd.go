// Package cmd is the DNSBL generator entry point.  It contains the
// environment configuration utilities, signal processing logic, and the
// wiring of the pipeline.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/osutil"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/errcoll"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/orchestrator"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/runner"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// shutdownTimeout is the timeout for the graceful shutdown of the run loop.
const shutdownTimeout = 5 * time.Second

// Main is the entry point of the application.
func Main() {
	envs, err := readEnvs()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)

		os.Exit(osutil.ExitCodeFailure)
	}

	logger := envs.configureLogs()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.InfoContext(ctx, "starting dnsbl generator")

	errColl, err := envs.buildErrColl()
	check(ctx, logger, err)

	maxWorkers := runtime.GOMAXPROCS(0)
	httpCli := envs.buildHTTPClient(logger)

	clients, err := envs.buildVendorClients(logger, errColl, httpCli, maxWorkers)
	check(ctx, logger, err)

	sources, err := envs.buildSources(logger, httpCli)
	check(ctx, logger, err)

	stores, prefixes, err := envs.buildStores(logger, sources)
	check(ctx, logger, err)

	envs.startMetricsListener(ctx, logger)

	orch := orchestrator.New(&orchestrator.Config{
		Logger:     logger.With(slogutil.KeyPrefix, "orchestrator"),
		ErrColl:    errColl,
		Prefixes:   prefixes,
		Stores:     stores,
		Clients:    clients,
		Sources:    sources,
		UpdateTime: envs.UpdateTime,
		MaxWorkers: maxWorkers,
		Fetch:      bool(envs.Fetch),
	})

	refr := runner.RefresherFunc(func(runCtx context.Context) (refrErr error) {
		flagged, runErr := orch.Run(runCtx)
		if runErr != nil {
			return runErr
		}

		return envs.writeOutput(flagged)
	})

	if envs.RunInterval > 0 {
		runLoop(ctx, logger, errColl, envs.RunInterval, refr)
	} else {
		err = refr.Refresh(ctx)
		if err != nil {
			errColl.Collect(ctx, err)
		}
	}

	logger.InfoContext(ctx, "dnsbl generator finished")
}

// runLoop runs refr on every tick of interval until a termination signal
// arrives.
func runLoop(
	ctx context.Context,
	logger *slog.Logger,
	errColl errcoll.Interface,
	interval time.Duration,
	refr runner.Refresher,
) {
	w := runner.NewRefreshWorker(&runner.RefreshWorkerConfig{
		Context: func() (runCtx context.Context, cancel context.CancelFunc) {
			return context.WithTimeout(context.Background(), interval)
		},
		Refresher:      runner.NewRefresherWithErrColl(refr, errColl.Collect, "pipeline run"),
		Logger:         logger.With(slogutil.KeyPrefix, "runner"),
		Interval:       interval,
		RefreshOnStart: true,
	})

	_ = w.Start(ctx)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	_ = w.Shutdown(shutdownCtx)
}

// writeOutput writes the flagged urls, one per line, to the configured output
// path, or to stdout when none is configured.
func (envs *environments) writeOutput(flagged []string) (err error) {
	out := strings.Join(flagged, "\n")
	if len(flagged) > 0 {
		out += "\n"
	}

	if envs.OutputPath == "" {
		_, err = os.Stdout.WriteString(out)

		return err
	}

	return os.WriteFile(envs.OutputPath, []byte(out), 0o644)
}

// startMetricsListener starts the prometheus metrics listener when a port is
// configured.
func (envs *environments) startMetricsListener(ctx context.Context, logger *slog.Logger) {
	if envs.ListenPort == 0 {
		return
	}

	addr := net.JoinHostPort(envs.ListenAddr.String(), strconv.Itoa(int(envs.ListenPort)))
	logger.InfoContext(ctx, "starting metrics listener", "addr", addr)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		srvErr := http.ListenAndServe(addr, mux)
		logger.ErrorContext(ctx, "metrics listener", slogutil.KeyError, srvErr)
	}()
}

// check writes err to the log and exits the process with a failure code when
// err is not nil.  Configuration errors are the only fatal errors of the
// generator.
func check(ctx context.Context, logger *slog.Logger, err error) {
	if err == nil {
		return
	}

	logger.ErrorContext(ctx, "fatal configuration error", slogutil.KeyError, err)

	os.Exit(osutil.ExitCodeFailure)
}
