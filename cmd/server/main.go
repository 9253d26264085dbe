package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/odtboun/River/common/id"
	"github.com/odtboun/River/common/logger"
	"github.com/odtboun/River/common/otel"
	"github.com/odtboun/River/core/config"
	"github.com/odtboun/River/core/db"
	"github.com/odtboun/River/internal/http/middleware"
	httprouter "github.com/odtboun/River/internal/http/router"
	"github.com/odtboun/River/internal/ledger"
	"github.com/odtboun/River/internal/service"
	"github.com/odtboun/River/internal/store"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "river starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(cfg.NodeID); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	stores, closeStores, err := openStores(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to open wallet keystore", "error", err)
		os.Exit(1)
	}
	defer closeStores()

	if err := stores.Migrate(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to migrate wallet keystore", "error", err)
		os.Exit(1)
	}

	httpClient := ledger.NewHTTPClient(cfg.Ledger.Timeout)
	var reader ledger.Reader = ledger.New(cfg.Ledger.URL, nil,
		ledger.WithHTTPClient(httpClient),
		ledger.WithLogger(slog.Default()),
	)

	if cfg.Cache.Enabled() {
		redisOpts, err := redis.ParseURL(cfg.Cache.RedisURL)
		if err != nil {
			slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
			os.Exit(1)
		}

		redisClient := redis.NewClient(redisOpts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		slog.InfoContext(ctx, "redis connected", "ttl", cfg.Cache.TTL)

		reader = ledger.NewCachedReader(reader, redisClient, cfg.Cache.TTL, slog.Default())
	}

	services := service.NewServices(service.ServicesConfig{
		Stores:     stores,
		Ledger:     cfg.Ledger,
		Wallet:     cfg.Wallet,
		Reader:     reader,
		HTTPClient: httpClient,
		PublicURL:  cfg.PublicURL,
		Sessions:   cfg.Sessions,
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, services)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// WriteTimeout stays unset; /session/events is long-lived.
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port, "ledger", cfg.Ledger.URL, "tee", cfg.Ledger.TEEEnabled())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// closing sessions ends open event streams so Shutdown can drain
	services.Shutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

// openStores connects the keystore the DSN selects.
func openStores(ctx context.Context, cfg db.Config) (*store.Stores, func(), error) {
	if cfg.Driver() == db.DriverSQLite {
		sqlDB, err := db.OpenSQLite(ctx, cfg.SQLitePath())
		if err != nil {
			return nil, nil, err
		}
		slog.InfoContext(ctx, "sqlite keystore opened", "path", cfg.SQLitePath())
		return store.NewSQLiteStores(sqlDB), func() { sqlDB.Close() }, nil
	}

	database, err := db.New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	slog.InfoContext(ctx, "database connected")
	return store.NewPostgresStores(database), database.Close, nil
}

func setupRouter(cfg config.Config, services *service.Services) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, services, httprouter.RouterConfig{
		CookieSecure: cfg.Sessions.CookieSecure,
	})

	return router
}

const banner = `
██████╗ ██╗██╗   ██╗███████╗██████╗
██╔══██╗██║██║   ██║██╔════╝██╔══██╗
██████╔╝██║██║   ██║█████╗  ██████╔╝
██╔══██╗██║╚██╗ ██╔╝██╔══╝  ██╔══██╗
██║  ██║██║ ╚████╔╝ ███████╗██║  ██║
╚═╝  ╚═╝╚═╝  ╚═══╝  ╚══════╝╚═╝  ╚═╝
`
