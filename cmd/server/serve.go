package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/and161185/hacking-zone/internal/catalog"
	"github.com/and161185/hacking-zone/internal/config"
	pkgcrypto "github.com/and161185/hacking-zone/internal/crypto"
	"github.com/and161185/hacking-zone/internal/server/grpcserver"
	"github.com/and161185/hacking-zone/internal/server/httpserver"
	"github.com/and161185/hacking-zone/internal/service"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (and the gRPC health endpoint when configured)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	f := cmd.Flags()
	f.String("addr", "", "HTTP listen address")
	f.String("grpc-addr", "", "gRPC health listen address (empty disables)")
	f.Bool("dev", false, "use the insecure development JWT secret and enable gRPC reflection")
	bind(a.v, f.Lookup("addr"), "http.addr")
	bind(a.v, f.Lookup("grpc-addr"), "grpc.addr")
	bind(a.v, f.Lookup("dev"), "jwt.dev_insecure")
	bind(a.v, f.Lookup("dev"), "grpc.reflection")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	cfg, log := a.cfg, a.log
	log.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.HTTP.Addr),
	)
	if cfg.JWT.DevInsecure {
		log.Warn("jwt.dev_insecure is set, tokens are signed with a public key")
	}

	d, err := openDeps(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := d.close(closeCtx); err != nil {
			log.Warn("close storage", zap.Error(err))
		}
	}()

	cat := catalog.Default()
	authSvc := service.NewAuthService(d.accounts, []byte(cfg.JWT.Secret), cfg.JWT.TTL, d.lim,
		service.WithCatalog(cat),
		service.WithLocation(cfg.Location()),
		service.WithPasswordPolicy(cfg.Password.MinLength, hashParams(cfg.Password)),
	)

	api := httpserver.New(authSvc, log, httpserver.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		TrustProxy:     cfg.HTTP.TrustProxy,
		MinPasswordLen: cfg.Password.MinLength,
		Catalog:        cat,
	})
	hs := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Routes(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("listening", zap.String("addr", cfg.HTTP.Addr))
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var gs *grpcserver.Server
	if cfg.GRPC.Addr != "" {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			_ = hs.Close()
			return err
		}
		gs = grpcserver.New(log, d.accounts, cfg.GRPC.Reflection)
		go gs.Watch(ctx, cfg.GRPC.PollInterval)
		go func() {
			log.Info("grpc health listening", zap.String("addr", cfg.GRPC.Addr))
			errCh <- gs.GRPC.Serve(lis)
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		log.Error("server error", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
		_ = hs.Close()
	}
	if gs != nil {
		gs.Stop(cfg.HTTP.ShutdownTimeout)
	}
	log.Info("shutdown complete")
	return runErr
}

func hashParams(p config.Password) pkgcrypto.Params {
	params := pkgcrypto.DefaultParams
	params.Time = p.ArgonTime
	params.Memory = p.ArgonMemoryKiB
	return params
}
