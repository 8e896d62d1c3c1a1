package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dshills/hitlgraph/config"
	"github.com/dshills/hitlgraph/graph"
	"github.com/dshills/hitlgraph/graph/emit"
	"github.com/dshills/hitlgraph/graph/model"
	anthropicmodel "github.com/dshills/hitlgraph/graph/model/anthropic"
	googlemodel "github.com/dshills/hitlgraph/graph/model/google"
	openaimodel "github.com/dshills/hitlgraph/graph/model/openai"
	"github.com/dshills/hitlgraph/graph/store"
	"github.com/dshills/hitlgraph/hitl"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultGroqModel is used when the groq provider has no model configured.
const DefaultGroqModel = "llama-3.3-70b-versatile"

// runtime is the per-command wiring: emitters, metrics, tracing and the
// exchange between workflows and the terminal.
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
	in     io.Reader
	out    io.Writer

	registry      *prometheus.Registry
	engineMetrics *graph.PrometheusMetrics
	hitlMetrics   *hitl.Metrics
	emitter       emit.Emitter
	tracing       *tracing
}

func newRuntime(ctx context.Context, cfg *config.Config, logger *zap.Logger, in io.Reader, out io.Writer) (*runtime, error) {
	registry := prometheus.NewRegistry()
	r := &runtime{
		cfg:           cfg,
		logger:        logger,
		in:            in,
		out:           out,
		registry:      registry,
		engineMetrics: graph.NewPrometheusMetrics(registry),
		hitlMetrics:   hitl.NewMetrics(registry),
	}

	tr, err := setupTracing(ctx, cfg.Telemetry, logger)
	if err != nil {
		return nil, err
	}
	r.tracing = tr

	emitters := emit.Multi{emit.NewProgressEmitter(out), emit.NewZapEmitter(logger)}
	if tr.tracer != nil {
		emitters = append(emitters, emit.NewOTelEmitter(tr.tracer))
	}
	r.emitter = emitters
	return r, nil
}

// Close flushes telemetry.
func (r *runtime) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.tracing.Shutdown(ctx)
}

func (r *runtime) engineOptions() []graph.Option {
	return []graph.Option{graph.WithMetrics(r.engineMetrics)}
}

func (r *runtime) newExchange() (*hitl.Exchange, error) {
	policy, err := hitl.ParseUnmatchedPolicy(r.cfg.HITL.UnmatchedPolicy)
	if err != nil {
		return nil, err
	}
	return hitl.NewExchange(
		hitl.WithTimeout(r.cfg.HITL.Timeout),
		hitl.WithUnmatchedPolicy(policy),
		hitl.WithMaxBuffered(r.cfg.HITL.MaxBuffered),
		hitl.WithLogger(r.logger.Named("hitl")),
		hitl.WithMetrics(r.hitlMetrics),
	), nil
}

// interact runs fn with a fresh exchange answered from the terminal. The
// metrics endpoint, when configured, serves until fn returns.
func (r *runtime) interact(ctx context.Context, fn func(ctx context.Context, ex *hitl.Exchange) error) error {
	ex, err := r.newExchange()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, finished := context.WithCancel(gctx)

	g.Go(func() error {
		defer finished()
		defer ex.Close()
		return fn(runCtx, ex)
	})

	g.Go(func() error {
		err := hitl.NewConsole(r.in, r.out).WithLogger(r.logger.Named("console")).Serve(runCtx, ex)
		switch {
		case errors.Is(err, io.EOF):
			// No more answers can arrive; fail whatever is still waiting.
			_ = ex.Close()
			return nil
		case errors.Is(err, context.Canceled) && ctx.Err() == nil:
			return nil
		}
		return err
	})

	if addr := r.cfg.Metrics.Addr; addr != "" {
		g.Go(func() error { return r.serveMetrics(runCtx, addr) })
	}

	return g.Wait()
}

func (r *runtime) serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	r.logger.Info("metrics endpoint listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}
	return nil
}

// openStore opens the configured step store for state type S.
func openStore[S any](cfg *config.Config) (store.Closable[S], error) {
	return store.Open[S](cfg.Store.Location, cfg.Store.TTL)
}

// newChatModel builds the configured provider's chat model. jsonMode asks
// providers that support it for JSON-only replies.
func newChatModel(cfg config.LLMConfig, jsonMode bool) (model.ChatModel, error) {
	key := cfg.APIKey()
	if key == "" {
		return nil, fmt.Errorf("no API key configured for provider %q", cfg.Provider)
	}

	switch strings.ToLower(cfg.Provider) {
	case "openai":
		var opts []openaimodel.Option
		if cfg.BaseURL != "" {
			opts = append(opts, openaimodel.WithBaseURL(cfg.BaseURL))
		}
		return openaimodel.NewChatModel(key, cfg.Model, opts...), nil
	case "groq":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = openaimodel.GroqBaseURL
		}
		name := cfg.Model
		if name == "" {
			name = DefaultGroqModel
		}
		return openaimodel.NewChatModel(key, name, openaimodel.WithBaseURL(baseURL)), nil
	case "anthropic":
		return anthropicmodel.NewChatModel(key, cfg.Model), nil
	case "google":
		var opts []googlemodel.Option
		if jsonMode {
			opts = append(opts, googlemodel.WithJSONResponse())
		}
		return googlemodel.NewChatModel(key, cfg.Model, opts...), nil
	}
	return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
}
