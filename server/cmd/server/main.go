package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"github.com/obsidianstack/scalarship/pkg/telemetry"
	"github.com/obsidianstack/scalarship/pkg/types"
	"github.com/obsidianstack/scalarship/pkg/wire"
	"github.com/obsidianstack/scalarship/server/internal/api"
	"github.com/obsidianstack/scalarship/server/internal/auth"
	"github.com/obsidianstack/scalarship/server/internal/config"
	"github.com/obsidianstack/scalarship/server/internal/receiver"
	"github.com/obsidianstack/scalarship/server/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("scalarship-server starting", "config", *configPath, "version", types.Version)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"grpc_port", cfg.Server.GRPCPort,
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"experiment_ttl", cfg.Server.Experiments.TTL,
		"require_client_version", cfg.Server.RequireClientVersion,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, "scalarship-server")
	if err != nil {
		slog.Warn("tracing disabled", "err", err)
	}

	st := store.New(cfg.Server.Experiments.TTL)
	go st.Run(ctx)

	grpcSrv := grpc.NewServer(
		grpc.ForceServerCodec(wire.Codec{}),
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			auth.APIKeyInterceptor(
				cfg.Server.Auth.Mode,
				cfg.Server.Auth.EffectiveHeader(),
				cfg.Server.Auth.Key(),
			),
			auth.VersionInterceptor(cfg.Server.RequireClientVersion),
		),
	)
	wire.RegisterWriterServer(grpcSrv, receiver.New(st))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		slog.Error("failed to listen on gRPC port",
			"port", cfg.Server.GRPCPort, "err", err)
		os.Exit(1)
	}

	go func() {
		slog.Info("gRPC receiver listening", "port", cfg.Server.GRPCPort)
		if err := grpcSrv.Serve(lis); err != nil {
			slog.Error("gRPC server stopped", "err", err)
		}
	}()

	var httpSrv *http.Server
	if cfg.Server.HTTPPort > 0 {
		httpMux := http.NewServeMux()
		httpMux.Handle("/api/", api.New(st))

		httpSrv = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
			Handler:           httpMux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("HTTP API listening", "port", cfg.Server.HTTPPort)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("HTTP server stopped", "err", err)
			}
		}()
	}

	<-ctx.Done()
	slog.Info("scalarship-server shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()

	grpcSrv.GracefulStop()
	if httpSrv != nil {
		httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Warn("tracing shutdown", "err", err)
	}
}
