// Command agent runs one agent: inbound messages, the operator API and ledger access through a node.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"idledger/internal/agent/engine"
	"idledger/internal/agent/handler"
	agentmetrics "idledger/internal/agent/metrics"
	"idledger/internal/agent/models"
	"idledger/internal/agent/protocol"
	"idledger/internal/agent/store"
	"idledger/internal/agent/transport"
	"idledger/internal/platform/config"
	"idledger/internal/platform/httpserver"
	"idledger/internal/platform/logger"
	platformmetrics "idledger/internal/platform/metrics"
	"idledger/internal/platform/middleware"
	"idledger/internal/platform/redis"
	"idledger/internal/wallet"
	"idledger/internal/wallet/client"
	"idledger/pkg/platform/audit/publisher"
	auditmemory "idledger/pkg/platform/audit/store/memory"
	"idledger/pkg/platform/circuit"
	"idledger/pkg/platform/middleware/metadata"
	"idledger/pkg/signing"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.LogLevel, cfg.Server.LogFormat).With("agent", cfg.Agent.Name)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("agent stopped", "error", err)
		os.Exit(1)
	}
}

// issuer publishes through the node and offers through the catalog.
type issuer struct {
	catalog *protocol.Catalog
	wallet  *wallet.Wallet
	node    *client.Client
}

func (i issuer) PublishCredentialDefinition(ctx context.Context, name, version string, attrNames []string) (int64, error) {
	pub, secret, err := engine.GenerateKeys()
	if err != nil {
		return 0, err
	}
	def := wallet.CredentialDefinition{Name: name, Version: version, AttrNames: attrNames, Type: "CL"}
	return i.catalog.Publish(ctx, i.wallet, i.node, def, pub, secret)
}

func (i issuer) Offer(linkName string, claim models.AvailableClaim, values map[string]string) {
	if claim.Issuer == "" {
		claim.Issuer = i.wallet.DefaultID()
	}
	i.catalog.Offer(linkName, claim, values)
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	auditor := publisher.NewPublisher(auditmemory.NewInMemoryStore(), publisher.WithLogger(log))
	defer auditor.Close()

	w := wallet.New(cfg.Agent.Name, wallet.WithLogger(log), wallet.WithAuditor(auditor))
	if cfg.Agent.Seed != "" {
		signer, err := signing.NewSigner(signing.SeedFromString(cfg.Agent.Seed))
		if err != nil {
			return fmt.Errorf("agent signer: %w", err)
		}
		w.AddSigner(signer)
	} else if _, err := w.NewIdentifier(); err != nil {
		return fmt.Errorf("agent signer: %w", err)
	}
	log.InfoContext(ctx, "agent identity", "identifier", w.DefaultID())

	breakerOpts := []circuit.Option{
		circuit.WithFailureThreshold(cfg.Circuit.FailureThreshold),
		circuit.WithSuccessThreshold(cfg.Circuit.SuccessThreshold),
		circuit.WithCooldown(cfg.Circuit.Cooldown),
	}
	node := client.New(cfg.Agent.NodeURL,
		client.WithBreaker(circuit.New("node", breakerOpts...)),
		client.WithPoller(client.Poller{Interval: cfg.Agent.PollInterval, Deadline: cfg.Agent.PollDeadline}),
		client.WithLogger(log),
	)

	var links store.Store = store.NewInMemoryStore()
	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rc != nil {
		defer rc.Close()
		links = store.NewRedisStore(rc.Client, cfg.Redis.KeyPrefix+":"+w.DefaultID())
	}

	tr := transport.NewHTTP(w.DefaultID(), cfg.Agent.Endpoint,
		transport.WithLogger(log),
		transport.WithBreakerOptions(breakerOpts...),
	)
	eng := engine.New()
	catalog := protocol.NewCatalog(eng)
	agent, err := protocol.New(cfg.Agent.Name, w, links, tr, node, eng,
		protocol.WithLogger(log),
		protocol.WithAuditor(auditor),
		protocol.WithMetrics(agentmetrics.New()),
		protocol.WithEndpoint(cfg.Agent.Endpoint),
		protocol.WithRequestDeadline(cfg.Agent.RequestDeadline),
		protocol.WithIssuer(catalog),
	)
	if err != nil {
		return err
	}
	agent.Open()
	defer agent.Close()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logger(log))
	r.Use(middleware.Latency(platformmetrics.NewHTTP("agent")))
	r.Handle("/metrics", promhttp.Handler())
	tr.Register(r)
	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		handler.New(agent, issuer{catalog: catalog, wallet: w, node: node}, log).Register(r)
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(ctx, httpserver.New(cfg.Server.Addr, r), cfg.Server.ShutdownTimeout, log)
	})
	g.Go(func() error {
		sweep := cfg.Agent.RequestDeadline / 2
		if sweep <= 0 {
			sweep = time.Minute
		}
		ticker := time.NewTicker(sweep)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case now := <-ticker.C:
				agent.Abandon(ctx)
				w.Abandon(ctx, now.Add(-cfg.Agent.RequestDeadline))
			}
		}
	})
	return g.Wait()
}
