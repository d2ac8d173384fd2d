package main

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/fxnlabs/gpublas/internal/config"
	"github.com/fxnlabs/gpublas/internal/gpu"
	"github.com/fxnlabs/gpublas/internal/kernels"
	"github.com/fxnlabs/gpublas/internal/metrics"
	"github.com/fxnlabs/gpublas/pkg/gpublas"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// runtimeModule provides a ready gpublas.Handle and, when configured, the
// metrics endpoint.
var runtimeModule = fx.Module("runtime",
	fx.Provide(
		kernels.NewLibrary,
		gpu.NewManager,
		newHandle,
	),
	fx.Invoke(registerMetricsServer),
)

func newHandle(lc fx.Lifecycle, manager *gpu.Manager, log *zap.Logger) *gpublas.Handle {
	handle := gpublas.NewHandle(manager, log)
	lc.Append(fx.Hook{
		OnStop: handle.Destroy,
	})
	return handle
}

func registerMetricsServer(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) {
	addr := cfg.Metrics.ListenAddress
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			log.Info("Serving metrics", zap.String("address", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("Metrics server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: srv.Shutdown,
	})
}

// withHandle starts the runtime graph, runs fn with its handle and stops
// the graph again.
func withHandle(ctx context.Context, e *env, fn func(*gpublas.Handle) error) error {
	var handle *gpublas.Handle
	app := fx.New(
		fx.Supply(e.cfg, e.log),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			l := &fxevent.ZapLogger{Logger: log.Named("fx")}
			l.UseLogLevel(zapcore.DebugLevel)
			return l
		}),
		runtimeModule,
		fx.Populate(&handle),
	)
	if err := app.Start(ctx); err != nil {
		return err
	}
	runErr := fn(handle)
	if err := app.Stop(ctx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
