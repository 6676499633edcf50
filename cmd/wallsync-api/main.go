package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/trollcity/wallsync/internal/auth"
	"github.com/trollcity/wallsync/internal/cache"
	"github.com/trollcity/wallsync/internal/config"
	"github.com/trollcity/wallsync/internal/database"
	"github.com/trollcity/wallsync/internal/feed"
	"github.com/trollcity/wallsync/internal/logging"
	"github.com/trollcity/wallsync/internal/server"
	"github.com/trollcity/wallsync/internal/store"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "wallsync-api",
		Short: "TrollCity wall feed synchronization service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("redis-address", defaults.GetString("redis.address"), "Redis address for feed page caching (empty disables)")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Int("feed-capacity", defaults.GetInt("feed.capacity"), "Feed window capacity")
	cmd.PersistentFlags().Duration("feed-flush-interval", defaults.GetDuration("feed.flush_interval"), "Change event flush interval")
	cmd.PersistentFlags().Duration("feed-load-jitter", defaults.GetDuration("feed.load_jitter"), "Maximum random delay before feed loads")
	cmd.PersistentFlags().String("signing-secret", "", "Viewer token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "redis.address", "redis-address")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "feed.capacity", "feed-capacity")
	bindFlag(cmd, "feed.flush_interval", "feed-flush-interval")
	bindFlag(cmd, "feed.load_jitter", "feed-load-jitter")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	var feedCache *cache.FeedPageCache
	if appConfig.RedisAddress != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: appConfig.RedisAddress})
		feedCache = cache.NewFeedPageCache(redisClient, 0, logger)
		defer redisClient.Close()
	}

	dispatcher := store.NewDispatcher()
	backend, err := store.NewSQLStore(store.Config{
		Database:   db,
		Dispatcher: dispatcher,
		Cache:      feedCache,
		IDProvider: store.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	tokenManager := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.AuthSigningKey),
		Issuer:        "wallsync-auth",
		Audience:      "wallsync-api",
	})

	// The shared view serves the public wall page out of memory.
	view, err := feed.NewView(feed.ViewConfig{
		Backend:       backend,
		Realtime:      dispatcher,
		Capacity:      appConfig.FeedCapacity,
		FlushInterval: appConfig.FeedFlushEvery,
		Jitter:        feed.UniformJitter(appConfig.FeedLoadJitter),
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	if err := view.Start(ctx); err != nil {
		return err
	}
	defer view.Close()

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Backend:        backend,
		Dispatcher:     dispatcher,
		Tokens:         tokenManager,
		View:           view,
		Logger:         logger,
		AllowedOrigins: appConfig.AllowedOrigins,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
