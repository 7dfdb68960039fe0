package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/prophecy-labs/prophecyd/internal/resolver"
	"github.com/prophecy-labs/prophecyd/internal/server"
	"github.com/prophecy-labs/prophecyd/internal/server/handler"
	"github.com/prophecy-labs/prophecyd/internal/server/ws"
)

// auditRetention controls how far back audit rows stay in PostgreSQL before
// the cold-archive sweep copies them to object storage.
const auditRetention = 30 * 24 * time.Hour

// ResolverMode runs the headless resolution worker: the scheduler, the
// signal-bus trigger listener, and the audit archive sweep. No HTTP surface.
func (a *App) ResolverMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting resolver mode",
		slog.Int("workers", a.cfg.Resolver.Workers))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.runTriggerListener(ctx, deps)
	})
	if deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiveSweep(ctx, deps)
		})
	}

	return g.Wait()
}

// ServerMode runs the HTTP API and websocket hub. Resolutions start only when
// triggered through the API.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode",
		slog.Int("port", a.cfg.Server.Port))

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// FullMode runs everything in one process: the HTTP API, the trigger
// listener, and the archive sweep.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.runTriggerListener(ctx, deps)
	})
	if deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiveSweep(ctx, deps)
		})
	}
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	return g.Wait()
}

// runTriggerListener consumes resolution trigger requests published on the
// signal bus and hands them to the scheduler. Malformed payloads are dropped.
func (a *App) runTriggerListener(ctx context.Context, deps *Dependencies) error {
	ch, err := deps.Bus.Subscribe(ctx, resolver.TriggerChannel)
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "listening for resolution triggers",
		slog.String("channel", resolver.TriggerChannel))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-ch:
			if !ok {
				return nil
			}
			var req resolver.TriggerRequest
			if err := json.Unmarshal(payload, &req); err != nil || req.MarketID == "" {
				a.logger.Warn("dropping malformed trigger", slog.String("payload", string(payload)))
				continue
			}
			delay := time.Duration(req.DelaySeconds) * time.Second
			if err := deps.Scheduler.Schedule(req.MarketID, delay, req.SourceContent); err != nil {
				a.logger.Warn("trigger rejected",
					slog.String("market_id", req.MarketID),
					slog.String("error", err.Error()))
			}
		}
	}
}

// runArchiveSweep periodically copies aged audit rows to cold storage.
func (a *App) runArchiveSweep(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			before := time.Now().UTC().Add(-auditRetention)
			n, err := deps.Archiver.ArchiveAudit(ctx, before)
			if err != nil {
				a.logger.Warn("audit archive sweep failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				a.logger.Info("audit entries archived", slog.Int64("count", n))
			}
		}
	}
}

// pingerFunc adapts a plain function to handler.Pinger.
type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// startHTTPServer builds the handler set, websocket hub, and HTTP server, and
// registers their goroutines on g: the hub loop, the listener, and a shutdown
// watcher that drains connections when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	pingers := map[string]handler.Pinger{
		"postgres": pingerFunc(deps.PG.Pool().Ping),
	}
	if deps.Redis != nil {
		pingers["redis"] = deps.Redis
	}
	if deps.S3 != nil {
		pingers["s3"] = pingerFunc(deps.S3.Health)
	}

	handlers := server.Handlers{
		Health:     handler.NewHealthHandler(pingers),
		Markets:    handler.NewMarketHandler(deps.Markets, a.logger),
		Resolution: handler.NewResolutionHandler(deps.Scheduler, deps.Executor, deps.Evidence, a.logger),
		Evidence:   handler.NewEvidenceHandler(deps.Evidence, deps.Markets, deps.Executor, a.logger),
		Logs:       handler.NewLogsHandler(deps.Logs, a.logger),
		Settlement: handler.NewSettlementHandler(deps.Transcripts, deps.Distributions, deps.Audit, a.logger),
		Reconsider: handler.NewReconsiderHandler(deps.Reconsider, deps.Reconsiderations, a.logger),
	}

	hub := ws.NewHub(deps.Bus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.AuthToken,
		RateLimit:   120,
		RateWindow:  time.Minute,
	}, handlers, hub, deps.Limiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.logger.Info("HTTP server shutting down")
		return srv.Shutdown(shutCtx)
	})
}
