// streamer connects to the quote feed and streams decoded updates to the
// console and any enabled sinks.
// Usage: go run ./cmd/streamer --config configs/streamer.example.yaml --symbols AAPL,BTC-USD
//
// Optional environment variables referenced by the example config:
//
//	QUOTESTREAM_COOKIE - Raw Cookie header for the feed session
//	TIMESCALE_PASSWORD - Password for the quote sink database
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/quotestream/internal/auth"
	"github.com/rickgao/quotestream/internal/config"
	"github.com/rickgao/quotestream/internal/connection"
	"github.com/rickgao/quotestream/internal/database"
	"github.com/rickgao/quotestream/internal/feed"
	"github.com/rickgao/quotestream/internal/metrics"
	"github.com/rickgao/quotestream/internal/model"
	"github.com/rickgao/quotestream/internal/relay"
	"github.com/rickgao/quotestream/internal/version"
	"github.com/rickgao/quotestream/internal/writer"
)

var errStreamEnded = errors.New("update stream ended")

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
	symbols := flag.String("symbols", "", "comma-separated symbols, overrides stream.symbols")
	verbose := flag.Bool("verbose", false, "debug logging and full update JSON")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if s := parseSymbols(*symbols); len(s) > 0 {
		cfg.Stream.Symbols = s
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}

	logger := newLogger(cfg.Log, os.Stdout)
	logger.Info("starting streamer", "version", version.Version, "url", cfg.Stream.URL)

	if err := run(cfg, *verbose, logger); err != nil {
		logger.Error("streamer exited", "error", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.StreamerConfig, error) {
	if path == "" {
		cfg := config.Default()
		return cfg, cfg.Validate()
	}
	return config.LoadAndValidate(path)
}

// parseSymbols splits a comma list, dropping blanks.
func parseSymbols(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// newLogger builds the process logger from config.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func run(cfg *config.StreamerConfig, verbose bool, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, err := auth.NewSession(auth.Config{
		URL:       cfg.Stream.URL,
		UserAgent: cfg.Session.UserAgent,
		Origin:    cfg.Session.Origin,
		Cookie:    cfg.Session.Cookie,
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	logger.Info("session ready", "cookies", session.CookieNames())

	mgr := connection.NewManager(cfg.ManagerConfig(), logger, connection.WithClientFactory(session.ClientFactory()))

	collector := metrics.NewCollector(mgr)

	// Consumers attach before connecting so no update is missed.
	console := mgr.Updates()

	var quoteWriter *writer.QuoteWriter
	if cfg.Database.Timescale.Enabled {
		pool, err := database.Connect(ctx, cfg.Database.Timescale)
		if err != nil {
			return fmt.Errorf("connect timescale: %w", err)
		}
		defer pool.Close()
		if err := database.EnsureSchema(ctx, pool); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		quoteWriter = writer.NewQuoteWriter(writer.WriterConfig{
			BatchSize:     cfg.Writer.BatchSize,
			FlushInterval: cfg.Writer.FlushInterval,
		}, mgr.Updates(), pool, logger)
		collector.AddSink("timescale", quoteWriter.SinkStats)
	}

	var quoteRelay *relay.Relay
	if cfg.NATS.Enabled {
		nc, err := relay.Dial(cfg.NATS, logger)
		if err != nil {
			return err
		}
		quoteRelay = relay.New(nc, cfg.NATS.SubjectPrefix, mgr.Updates(), logger)
		collector.AddSink("nats", quoteRelay.SinkStats)
		defer func() {
			if err := nc.Drain(); err != nil {
				logger.Warn("nats drain failed", "error", err)
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, metrics.NewRegistry(collector), mgr, logger)
		g.Go(func() error { return srv.Run(gctx) })
	}

	if err := mgr.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	logger.Info("connected", "session", mgr.SessionID())

	if len(cfg.Stream.Symbols) > 0 {
		if err := mgr.Subscribe(ctx, cfg.Stream.Symbols); err != nil {
			logger.Error("subscribe failed", "error", err, "symbols", cfg.Stream.Symbols)
		}
	}

	if quoteWriter != nil {
		if err := quoteWriter.Start(gctx); err != nil {
			return fmt.Errorf("start writer: %w", err)
		}
	}
	if quoteRelay != nil {
		g.Go(func() error { return quoteRelay.Run(gctx) })
	}

	g.Go(func() error { return printUpdates(gctx, console, verbose) })
	g.Go(func() error { logStats(gctx, mgr, logger); return nil })

	logger.Info("streaming started - press Ctrl+C to stop")
	<-gctx.Done()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down...")
	if err := mgr.Disconnect(shutdownCtx); err != nil {
		logger.Warn("disconnect failed", "error", err)
	}
	if quoteWriter != nil {
		_ = quoteWriter.Stop(shutdownCtx)
	}

	err = g.Wait()
	logger.Info("shutdown complete", "state", mgr.State().String())
	if errors.Is(err, errStreamEnded) && ctx.Err() == nil {
		return fmt.Errorf("%w in state %s", err, mgr.State())
	}
	return nil
}

// printUpdates writes updates to stdout until ctx is done. A finished
// stream while ctx is live means the manager gave up.
func printUpdates(ctx context.Context, sub *feed.Subscription[model.Update], verbose bool) error {
	for {
		u, ok := sub.Next(ctx)
		if !ok {
			if ctx.Err() != nil {
				return nil
			}
			return errStreamEnded
		}
		if verbose {
			data, _ := json.MarshalIndent(u, "", "  ")
			fmt.Printf("[QUOTE] %s\n", data)
			continue
		}
		if u.IsError() {
			fmt.Printf("[ERROR] symbol=%s error=%s\n", u.Symbol, u.ErrorText)
			continue
		}
		fmt.Printf("[QUOTE] symbol=%s price=%g change_pct=%.2f volume=%d state=%s\n",
			u.Symbol, u.Price, u.ChangePercent, u.Volume, u.MarketState)
	}
}

func logStats(ctx context.Context, mgr *connection.Manager, logger *slog.Logger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := mgr.Stats()
			logger.Info("stats",
				"state", s.State.String(),
				"health", s.HealthScore,
				"subscriptions", s.Subscriptions,
				"messages", s.Quality.MessagesReceived,
				"published", s.UpdatesPublished,
				"dropped", s.UpdatesDropped,
				"decode_failures", s.DecodeFailures,
				"reconnect_attempts", s.Reconnection.TotalAttempts,
			)
		}
	}
}
