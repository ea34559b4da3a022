package main

import (
	"chordkv/internal/bootstrap"
	"chordkv/internal/bootstrap/register"
	"chordkv/internal/client"
	"chordkv/internal/config"
	"chordkv/internal/domain"
	"chordkv/internal/logger"
	zapfactory "chordkv/internal/logger/zap"
	"chordkv/internal/node"
	"chordkv/internal/routingtable"
	"chordkv/internal/server"
	"chordkv/internal/storage"
	"chordkv/internal/telemetry"
	"chordkv/internal/telemetry/lookuptrace"
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"google.golang.org/grpc"
)

var defaultConfigPath = "config/node/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %q: %v", *configPath, err)
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.ValidateConfig(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	var lgr logger.Logger
	if cfg.Logger.Active {
		zapLog, err := zapfactory.New(cfg.Logger)
		if err != nil {
			log.Fatalf("failed to initialize logger: %v", err)
		}
		defer func() { _ = zapLog.Sync() }()
		lgr = zapfactory.NewZapAdapter(zapLog)
	} else {
		lgr = &logger.NopLogger{}
	}
	cfg.LogConfig(lgr)

	lis, advertised, err := server.Listen(cfg.DHT.Mode, cfg.Node.Bind, cfg.Node.Host, cfg.Node.Port)
	if err != nil {
		lgr.Error("Fatal: failed to initialize listener", logger.F("err", err))
		os.Exit(1)
	}
	defer func() { _ = lis.Close() }()
	addr := lis.Addr().String()
	lgr.Debug("created listener", logger.F("addr", addr))

	space, err := domain.NewSpace(cfg.DHT.IDBits, cfg.DHT.Finger.Count, cfg.DHT.FaultTolerance.SuccessorListSize)
	if err != nil {
		lgr.Error("failed to initialize identifier space", logger.F("err", err))
		os.Exit(1)
	}
	lgr.Debug("identifier space initialized",
		logger.F("id_bits", space.Bits),
		logger.F("fingerCount", space.FingerCount),
		logger.F("sizeByte", space.ByteLen),
		logger.F("successorListSize", space.SuccListSize))

	var id domain.ID
	if cfg.Node.Id == "" {
		id = space.NewIdFromString(addr)
	} else {
		id, err = space.FromHexString(cfg.Node.Id)
		if err != nil {
			lgr.Error("invalid node ID in configuration", logger.F("err", err))
			os.Exit(1)
		}
	}
	domainNode := domain.Node{ID: id, Addr: advertised}
	lgr.Debug("generated node ID", logger.F("id", id.ToHexString(true)))
	lgr = lgr.Named("node")
	lgr.Info("New Node initializing", logger.FNode("self", &domainNode))

	shutdown := telemetry.InitTracer(cfg.Telemetry, "chordkv-node", id)
	defer func() { _ = shutdown(context.Background()) }()

	rt := routingtable.New(
		&domainNode,
		space,
		space.SuccListSize,
		routingtable.WithLogger(lgr.Named("routingtable")),
	)
	lgr.Debug("initialized routing table")

	cp := client.New(lgr.Named("clientpool"), cfg.DHT.FaultTolerance.FailureTimeout)
	lgr.Debug("initialized client pool")

	store := storage.NewMemoryStorage(lgr.Named("storage"))
	lgr.Debug("initialized in-memory storage")

	n := node.New(
		rt, store, cp,
		cfg.DHT.Storage, cfg.DHT.FaultTolerance,
		node.WithLogger(lgr),
	)
	lgr.Debug("initialized node façade")

	var grpcOpts []grpc.ServerOption
	if cfg.Telemetry.Tracing.Enabled {
		grpcOpts = append(grpcOpts, grpc.ChainUnaryInterceptor(lookuptrace.ServerInterceptor()))
		lgr.Debug("gRPC tracing enabled (lookup-only)")
	}

	s, err := server.New(lis, n, grpcOpts, server.WithLogger(lgr.Named("server")))
	if err != nil {
		lgr.Error("failed to initialize gRPC server", logger.F("err", err))
		os.Exit(1)
	}
	lgr.Debug("initialized gRPC server")

	serveErr := make(chan error, 1)
	go func() { serveErr <- s.Start() }()
	lgr.Debug("server started")

	bs, err := newBootstrap(cfg.DHT.Bootstrap, lgr)
	if err != nil {
		lgr.Error("failed to initialize bootstrap", logger.F("err", err))
		s.Stop()
		os.Exit(1)
	}

	discoverCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	peers, err := bs.Discover(discoverCtx)
	cancel()
	if err != nil {
		lgr.Error("failed to resolve bootstrap peers", logger.F("err", err))
		s.Stop()
		os.Exit(1)
	}
	lgr.Info("resolved bootstrap peers", logger.F("peers", peers))

	joinCtx, joinCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if len(peers) != 0 {
		if err := n.Join(joinCtx, peers[0]); err != nil {
			joinCancel()
			lgr.Error("failed to join ring", logger.F("err", err))
			s.Stop()
			os.Exit(1)
		}
		lgr.Debug("joined ring")
	} else {
		n.CreateRing()
		lgr.Debug("new ring created")
	}
	joinCancel()

	var registrar register.Registrar
	if cfg.DHT.Bootstrap.Register.Enabled {
		registrar, err = register.NewRegistrar(context.Background(), cfg.DHT.Bootstrap.Register)
		if err != nil {
			lgr.Warn("failed to initialize registrar", logger.F("err", err))
		} else {
			regCtx, regCancel := context.WithTimeout(context.Background(), 10*time.Second)
			host, port, _ := splitAdvertised(advertised)
			err = registrar.RegisterNode(regCtx, id.String(), host, port)
			regCancel()
			if err != nil {
				lgr.Warn("failed to register node", logger.F("err", err))
			} else {
				lgr.Info("node registered successfully")
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	n.StartStabilizers(ctx,
		cfg.DHT.FaultTolerance.StabilizationInterval,
		cfg.DHT.Finger.FixInterval,
		cfg.DHT.FaultTolerance.CheckPredecessorInterval,
		cfg.DHT.Storage.TimeoutSweepInterval,
	)
	lgr.Debug("stabilization workers started")

	select {
	case <-ctx.Done():
		lgr.Info("shutdown signal received, leaving ring and stopping server gracefully...")
		stop()

		leaveCtx, leaveCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := n.Leave(leaveCtx); err != nil {
			lgr.Warn("key hand-off on leave failed", logger.F("err", err))
		}
		leaveCancel()

		if registrar != nil {
			deregCtx, deregCancel := context.WithTimeout(context.Background(), 5*time.Second)
			host, port, _ := splitAdvertised(advertised)
			if err := registrar.DeregisterNode(deregCtx, id.String(), host, port); err != nil {
				lgr.Warn("failed to deregister node", logger.F("err", err))
			}
			deregCancel()
			_ = registrar.Close()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		done := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(done)
		}()

		select {
		case <-done:
			lgr.Info("server stopped gracefully")
		case <-shutdownCtx.Done():
			lgr.Warn("graceful stop timed out, forcing shutdown")
			s.Stop()
		}

		n.Stop()
		cp.CloseAll()

	case err := <-serveErr:
		lgr.Error("gRPC server terminated unexpectedly", logger.F("err", err))
		stop()
		n.Stop()
		os.Exit(1)
	}
}

func newBootstrap(cfg config.BootstrapConfig, lgr logger.Logger) (bootstrap.Bootstrap, error) {
	switch cfg.Mode {
	case "init":
		return bootstrap.NewStaticBootstrap(nil), nil
	case "static":
		return bootstrap.NewStaticBootstrap(cfg.Peers), nil
	case "dns":
		peers, err := bootstrap.ResolveBootstrap(cfg, lgr)
		if err != nil {
			return nil, err
		}
		return bootstrap.NewStaticBootstrap(peers), nil
	default:
		return bootstrap.NewStaticBootstrap(cfg.Peers), nil
	}
}

func splitAdvertised(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}
