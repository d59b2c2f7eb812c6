// Command node runs one ledger node: validation, ordering, execution and the HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"idledger/internal/ledger/genesis"
	"idledger/internal/ledger/graph"
	graphstore "idledger/internal/ledger/graph/store"
	"idledger/internal/ledger/handler"
	ledgermetrics "idledger/internal/ledger/metrics"
	"idledger/internal/ledger/ordering"
	"idledger/internal/ledger/pipeline"
	"idledger/internal/ledger/txlog"
	"idledger/internal/platform/config"
	"idledger/internal/platform/httpserver"
	"idledger/internal/platform/kafka"
	"idledger/internal/platform/logger"
	platformmetrics "idledger/internal/platform/metrics"
	"idledger/internal/platform/middleware"
	"idledger/internal/platform/postgres"
	audit "idledger/pkg/platform/audit"
	"idledger/pkg/platform/audit/publisher"
	auditmemory "idledger/pkg/platform/audit/store/memory"
	auditpostgres "idledger/pkg/platform/audit/store/postgres"
	"idledger/pkg/platform/middleware/metadata"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.LogLevel, cfg.Server.LogFormat).With("node", cfg.Node.Name)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("node stopped", "error", err)
		os.Exit(1)
	}
}

type storage struct {
	graph   graph.Store
	log     txlog.Log
	audit   audit.Store
	closers []func()
}

func openStorage(ctx context.Context, cfg config.Config) (*storage, error) {
	if cfg.Node.Storage == "memory" {
		return &storage{
			graph: graphstore.NewInMemoryStore(),
			log:   txlog.NewInMemoryLog(),
			audit: auditmemory.NewInMemoryStore(),
		}, nil
	}

	handles, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	graphStore := graphstore.NewPostgres(handles.DB)
	if err := graphStore.EnsureSchema(ctx); err != nil {
		handles.Close()
		return nil, err
	}
	auditStore := auditpostgres.New(handles.DB)
	if err := auditStore.EnsureSchema(ctx); err != nil {
		handles.Close()
		return nil, err
	}
	ledgerLog, err := txlog.OpenPostgres(ctx, handles.Pool)
	if err != nil {
		handles.Close()
		return nil, err
	}
	return &storage{graph: graphStore, log: ledgerLog, audit: auditStore, closers: []func(){handles.Close}}, nil
}

func openOrderer(ctx context.Context, cfg config.Config, log *slog.Logger) (ordering.Orderer, func() error, error) {
	if cfg.Node.Ordering == "local" {
		local := ordering.NewLocal(256)
		return local, local.Close, nil
	}
	k, err := ordering.NewKafka(ctx, kafka.Config{
		Brokers:  cfg.Kafka.Brokers,
		ClientID: cfg.Kafka.ClientID + "-" + cfg.Node.Name,
	}, cfg.Node.OrderingTopic, ordering.WithKafkaLogger(log))
	if err != nil {
		return nil, nil, err
	}
	return k, k.Close, nil
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	st, err := openStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		for _, c := range st.closers {
			c()
		}
	}()

	orderer, closeOrderer, err := openOrderer(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open orderer: %w", err)
	}
	defer func() { _ = closeOrderer() }()

	auditor := publisher.NewPublisher(st.audit, publisher.WithAsyncBuffer(1024), publisher.WithLogger(log))
	defer auditor.Close()

	replies := pipeline.NewReplies()
	p := pipeline.New(graph.New(st.graph, graph.WithLogger(log)), st.log, orderer,
		pipeline.WithLogger(log),
		pipeline.WithReplier(replies),
		pipeline.WithAuditor(auditor),
		pipeline.WithMetrics(ledgermetrics.New()),
		pipeline.WithTracer(otel.Tracer("idledger/pipeline")),
	)

	if cfg.Node.GenesisFile != "" {
		txns, err := genesis.LoadFile(cfg.Node.GenesisFile)
		if err != nil {
			return fmt.Errorf("load genesis: %w", err)
		}
		applied, err := p.Bootstrap(ctx, txns)
		if err != nil {
			return fmt.Errorf("bootstrap genesis: %w", err)
		}
		log.InfoContext(ctx, "genesis checked", "applied", applied, "txns", len(txns))
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logger(log))
	r.Use(middleware.Latency(platformmetrics.NewHTTP("node")))
	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		handler.New(p, replies, cfg.Node.ReplyWait, log).Register(r)
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := orderer.Run(ctx, p.OnOrdered)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return httpserver.Run(ctx, httpserver.New(cfg.Server.Addr, r), cfg.Server.ShutdownTimeout, log)
	})
	return g.Wait()
}
