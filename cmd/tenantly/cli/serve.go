package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tenantly/tenantly/internal/model"
	"github.com/tenantly/tenantly/internal/realtime"
	"github.com/tenantly/tenantly/internal/server"
	"github.com/tenantly/tenantly/internal/service"
	"github.com/tenantly/tenantly/internal/telemetry"
)

const banner = `
 _____ _____ _   _    _    _   _ _____ _  __   __
|_   _| ____| \ | |  / \  | \ | |_   _| | \ \ / /
  | | |  _| |  \| | / _ \ |  \| | | | | |  \ V /
  | | | |___| |\  |/ ___ \| |\  | | | | |___| |
  |_| |_____|_| \_/_/   \_\_| \_| |_| |_____|_|
`

func newServeCmd() *cobra.Command {
	var dev bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Tenantly API server",
		Long:  "Start the HTTP server that exposes the account, role and dashboard APIs plus the realtime channel.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(dev)
		},
	}

	cmd.Flags().IntP("port", "p", 8080, "HTTP listen port")
	cmd.Flags().String("host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (debug logging, error detail in responses)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(dev bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if dev {
		cfg.Server.Production = false
	}

	// Validate everything that can fail before touching the network.
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required (set TENANTLY_AUTH_JWT_SECRET)")
	}
	accessTTL, err := cfg.Auth.AccessTTL()
	if err != nil {
		return err
	}
	shutdown, err := cfg.Server.ShutdownTTL()
	if err != nil {
		return err
	}
	window, err := cfg.RateLimit.WindowDuration()
	if err != nil {
		return err
	}
	codec, err := service.NewTokenCodec(cfg.Auth.JWTSecret)
	if err != nil {
		return err
	}

	fmt.Print(banner)
	fmt.Println()

	logger := newLogger(cfg.Logging, dev)
	ctx := context.Background()
	metrics := telemetry.New()

	// 1. Persistence
	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	logger.Info("store initialized", "driver", store.Driver())

	// 2. Cache (optional; failures degrade to misses)
	c, err := openCache(ctx, cfg, metrics, logger)
	if err != nil {
		store.Close()
		return fmt.Errorf("init cache: %w", err)
	}

	// 3. Realtime hub. It only needs token verification, so it is built
	//    before the services that publish through it.
	hub := realtime.New(realtime.AuthFunc(func(_ context.Context, token string) (*model.Principal, error) {
		return codec.Verify(token)
	}), realtime.Options{Logger: logger, Metrics: metrics})

	// 4. Services
	svc := service.New(service.Deps{Store: store, Cache: c, Events: hub, Logger: logger}, codec, service.AuthOptions{
		StaticAPIKey: cfg.Auth.APIKey,
		AccessTTL:    accessTTL,
	})
	if cfg.Auth.APIKey == "" {
		logger.Warn("no static API key configured; only session keys are accepted")
	}

	// 5. HTTP server
	srvCfg := server.DefaultConfig()
	srvCfg.Host = cfg.Server.Host
	srvCfg.Port = cfg.Server.Port
	srvCfg.ShutdownTimeout = shutdown
	srvCfg.CORSOrigins = cfg.Server.CORS.Origins
	srvCfg.APIKeyHeader = cfg.Auth.APIKeyHeader
	srvCfg.Production = cfg.Server.Production
	srvCfg.Version = versionString()
	srvCfg.RateLimit = cfg.RateLimit.Enabled
	srvCfg.RateRequests = cfg.RateLimit.Requests
	srvCfg.AuthRequests = cfg.RateLimit.AuthRequests
	srvCfg.RateWindow = window

	srv := server.New(srvCfg, server.Deps{
		Store:    store,
		Cache:    c,
		Services: svc,
		Hub:      hub,
		Metrics:  metrics,
		Logger:   logger,
	})

	host := cfg.Server.Host
	fmt.Printf("→ Tenantly %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", host, cfg.Server.Port)
	fmt.Printf("→ OpenAPI:    http://%s:%d/openapi.json\n", host, cfg.Server.Port)
	fmt.Printf("→ Realtime:   ws://%s:%d/ws\n", host, cfg.Server.Port)
	fmt.Printf("→ Health:     http://%s:%d/healthz\n", host, cfg.Server.Port)
	fmt.Printf("→ Cache:      %s\n", c.BackendName())
	fmt.Println()

	return srv.ListenAndServe()
}
