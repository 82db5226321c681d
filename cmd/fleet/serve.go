package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/fastfare/fleetlive/internal/config"
	"github.com/fastfare/fleetlive/internal/events"
	"github.com/fastfare/fleetlive/internal/feed"
	"github.com/fastfare/fleetlive/internal/logging"
	"github.com/fastfare/fleetlive/internal/pipeline"
	"github.com/fastfare/fleetlive/internal/registry"
	"github.com/fastfare/fleetlive/internal/server"
	"github.com/fastfare/fleetlive/internal/snapshot"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the fleet ingestion daemon",
	GroupID: "system",
	// Override PersistentPreRunE so we don't create a client connection.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger, err := logging.New(os.Stderr, cfg.LogFormat, cfg.LogLevel)
		if err != nil {
			return err
		}
		if cfg.File != "" {
			logger.Info("config file loaded", "path", cfg.File)
		}

		embedded, _ := cmd.Flags().GetBool("embedded-nats")
		port, _ := cmd.Flags().GetInt("embedded-nats-port")
		var opts daemonOptions
		if embedded {
			opts.EmbeddedNATSPort = &port
		}

		d, err := newDaemon(cfg, opts, logger)
		if err != nil {
			return err
		}
		if err := d.listen(); err != nil {
			d.close()
			return err
		}
		return d.serve(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().Bool("embedded-nats", false, "run an in-process NATS server and ingest from it")
	serveCmd.Flags().Int("embedded-nats-port", 4222, "client port for --embedded-nats (-1 = random)")
}

type daemonOptions struct {
	// EmbeddedNATSPort starts an in-process NATS server on this port when
	// non-nil. It replaces any configured bus.
	EmbeddedNATSPort *int
}

// daemon is the wired set of components behind `fleet serve`.
type daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	nats     *natsserver.Server
	mirror   events.Publisher
	sub      events.Subscriber
	pipeline *pipeline.Pipeline
	ingester *pipeline.Ingester
	fleet    *server.FleetServer

	grpcServer *grpc.Server
	httpServer *http.Server
	grpcLis    net.Listener
	httpLis    net.Listener

	// streams is the base context of every HTTP request; cancelling it
	// ends open SSE streams so Shutdown does not wait on them.
	streams      context.Context
	cancelStream context.CancelFunc
}

func newDaemon(cfg *config.Config, opts daemonOptions, logger *slog.Logger) (_ *daemon, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &daemon{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			d.close()
		}
	}()

	if opts.EmbeddedNATSPort != nil {
		if cfg.Transport() == "kafka" {
			return nil, errors.New("--embedded-nats cannot be combined with FLEET_KAFKA_BROKERS")
		}
		d.nats, err = startEmbeddedNATS(*opts.EmbeddedNATSPort)
		if err != nil {
			return nil, err
		}
		cfg.NATSURL = d.nats.ClientURL()
		logger.Info("embedded NATS started", "url", cfg.NATSURL)
	}

	if cfg.MirrorSnapshots {
		d.mirror, err = newMirror(cfg)
		if err != nil {
			return nil, err
		}
		if d.mirror != nil {
			logger.Info("snapshot mirror enabled", "transport", cfg.Transport(), "topic", events.TopicRegistrySnapshot)
		} else {
			logger.Warn("FLEET_MIRROR_SNAPSHOTS set but no bus configured")
		}
	}

	hub := snapshot.NewHub(d.mirror, logger)
	d.pipeline = pipeline.New(hub, pipeline.Config{
		Registry: registry.Options{RejectOutOfOrder: cfg.RejectOutOfOrder},
		Reaper: registry.ReaperConfig{
			OfflineAfter:  cfg.StaleAfter,
			EvictAfter:    cfg.EvictAfter,
			SweepInterval: cfg.SweepInterval,
		},
	}, logger)

	fetcher := newFetcher(cfg)
	d.ingester = pipeline.NewIngester(d.pipeline, pipeline.IngesterOptions{
		Fetcher:      fetcher,
		PollInterval: cfg.PollInterval,
	}, logger)

	switch cfg.Transport() {
	case "nats":
		sub, err := events.NewNATSSubscriber(cfg.NATSURL, events.StateOptions(d.ingester.OnState)...)
		if err != nil {
			return nil, err
		}
		d.sub = sub
	case "kafka":
		sub, err := events.NewKafkaSubscriber(cfg.KafkaBrokers, d.ingester.OnState)
		if err != nil {
			return nil, err
		}
		d.sub = sub
	default:
		if fetcher == nil {
			logger.Warn("no push transport or pull feed configured; positions arrive only over HTTP")
		}
	}

	d.fleet = server.NewFleetServer(d.pipeline, logger)
	d.grpcServer = server.NewGRPCServer(d.fleet, cfg.AuthToken)
	d.streams, d.cancelStream = context.WithCancel(context.Background())
	d.httpServer = &http.Server{
		Handler:           d.fleet.NewHTTPHandler(cfg.AuthToken),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return d.streams },
	}
	return d, nil
}

// listen binds both server addresses so bind errors surface before any
// goroutine starts.
func (d *daemon) listen() error {
	var err error
	if d.grpcLis, err = net.Listen("tcp", d.cfg.GRPCAddr); err != nil {
		return fmt.Errorf("gRPC listen on %s: %w", d.cfg.GRPCAddr, err)
	}
	if d.httpLis, err = net.Listen("tcp", d.cfg.HTTPAddr); err != nil {
		d.grpcLis.Close()
		return fmt.Errorf("HTTP listen on %s: %w", d.cfg.HTTPAddr, err)
	}
	return nil
}

// serve runs every component until ctx is cancelled or one of them
// fails, then shuts the rest down.
func (d *daemon) serve(ctx context.Context) error {
	logger := d.logger
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("gRPC server listening", "addr", d.grpcLis.Addr().String())
		if err := d.grpcServer.Serve(d.grpcLis); err != nil {
			return fmt.Errorf("gRPC server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", d.httpLis.Addr().String())
		if err := d.httpServer.Serve(d.httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		err := d.ingester.Run(logging.WithLogger(gctx, logger), d.sub)
		logger.Info("ingester stopped")
		return err
	})

	d.pipeline.StartReaper()
	logger.Info("fleet server started",
		"grpc_addr", d.grpcLis.Addr().String(),
		"http_addr", d.httpLis.Addr().String(),
		"transport", d.cfg.Transport(),
	)

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		d.cancelStream()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := d.httpServer.Shutdown(shutdownCtx); err != nil {
			logging.LogError(logger, "HTTP server shutdown error", err)
		}
		logger.Info("HTTP server stopped")

		stopGRPC(d.grpcServer, shutdownTimeout)
		logger.Info("gRPC server stopped")
		return nil
	})

	err := g.Wait()
	d.close()
	if err != nil {
		logging.LogError(logger, "fleet server exited", err)
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// close releases everything newDaemon acquired. Safe on a partially
// built daemon.
func (d *daemon) close() {
	if d.pipeline != nil {
		d.pipeline.Close()
	}
	if d.sub != nil {
		logging.SafeClose(d.sub, d.logger, "subscriber")
	}
	if d.mirror != nil {
		logging.SafeClose(d.mirror, d.logger, "snapshot mirror")
	}
	if d.cancelStream != nil {
		d.cancelStream()
	}
	if d.nats != nil {
		d.nats.Shutdown()
	}
}

// stopGRPC drains in-flight RPCs, falling back to a hard stop for
// watchers that do not hang up within timeout.
func stopGRPC(s *grpc.Server, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		s.Stop()
		<-done
	}
}

func newMirror(cfg *config.Config) (events.Publisher, error) {
	switch cfg.Transport() {
	case "nats":
		pub, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			return nil, err
		}
		return pub, nil
	case "kafka":
		pub, err := events.NewKafkaPublisher(cfg.KafkaBrokers)
		if err != nil {
			return nil, err
		}
		return pub, nil
	}
	return nil, nil
}

func newFetcher(cfg *config.Config) pipeline.Fetcher {
	opts := feed.Options{Headers: feed.AuthHeaders(cfg.FeedAuthHeader, cfg.FeedAuthValue)}
	switch {
	case cfg.SnapshotURL != "":
		return feed.NewHTTPFetcher(cfg.SnapshotURL, opts)
	case cfg.GTFSVehiclesURL != "":
		return feed.NewGTFSFetcher(cfg.GTFSVehiclesURL, opts)
	}
	return nil
}

func startEmbeddedNATS(port int) (*natsserver.Server, error) {
	ns, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: port})
	if err != nil {
		return nil, fmt.Errorf("starting embedded NATS: %w", err)
	}
	ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, errors.New("embedded NATS not ready after 5s")
	}
	return ns, nil
}
