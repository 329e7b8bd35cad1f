package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	"github.com/urfave/cli"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/CreatorDev/creator-wifire-app-sub001/config"
	"github.com/CreatorDev/creator-wifire-app-sub001/connmgr"
	"github.com/CreatorDev/creator-wifire-app-sub001/lib"
	"github.com/CreatorDev/creator-wifire-app-sub001/poller"
	"github.com/CreatorDev/creator-wifire-app-sub001/scheduler"
	"github.com/CreatorDev/creator-wifire-app-sub001/threadpool"
)

const shutdownTimeout = 5 * time.Second

func run(c *cli.Context) error {
	fs := afero.NewOsFs()
	cfg, err := config.Load(fs, c.String("config"))
	if err != nil {
		return err
	}

	log, err := loggerFor(c, cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer log.Sync()

	ts, err := targets(fs, cfg.Endpoints)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lib.StartPoolMetrics()
	defer lib.ReleasePoolMetrics()

	var reg *prometheus.Registry
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m := connmgr.New(cfg.ConnMgr(), connmgr.WithLogger(log), connmgr.WithRegisterer(registerer(reg)))
	s := scheduler.New(cfg.SchedulerConfig(), scheduler.WithLogger(log), scheduler.WithRegisterer(registerer(reg)))
	pool := threadpool.New(cfg.ThreadPoolConfig(), threadpool.WithLogger(log), threadpool.WithRegisterer(registerer(reg)))
	p := poller.New(m, s, pool,
		poller.WithLogger(log),
		poller.WithResponseHandler(func(r poller.Response) {
			log.Info("response",
				zap.String("target", r.Target),
				zap.String("status", r.Status),
				zap.Int("bytes", len(r.Body)),
				zap.Duration("latency", r.Latency))
		}),
	)

	m.Start(ctx)
	for _, t := range ts {
		if err := p.Add(t); err != nil {
			log.Error("add target", zap.String("target", t.Name), zap.Error(err))
		}
	}
	log.Info("gatewayd started", zap.Int("targets", len(ts)), zap.Int("slots", m.Cap()))

	g, gctx := errgroup.WithContext(ctx)
	if reg != nil {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

		g.Go(func() error {
			log.Info("serving metrics", zap.String("listen", srv.Addr), zap.String("path", cfg.Metrics.Path))
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	err = g.Wait()

	log.Info("gatewayd stopping")
	p.Stop()
	m.Shutdown()
	s.Shutdown()
	pool.Free()
	log.Debug("pool metrics", zap.String("pools", lib.JsonStringPoolMetrics()))
	return err
}

// registerer keeps a nil registry from becoming a non-nil interface.
func registerer(reg *prometheus.Registry) prometheus.Registerer {
	if reg == nil {
		return nil
	}
	return reg
}
