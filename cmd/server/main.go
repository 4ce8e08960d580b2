// Command server starts the dosepics picture-sharing HTTP service.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dosepics/internal/api"
	"dosepics/internal/observability/logging"
	"dosepics/internal/server"
	"dosepics/internal/storage"
	"dosepics/internal/upload"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	addr := flag.String("addr", "", "HTTP listen address")
	mode := flag.String("mode", "", "server runtime mode (development or production)")
	dataPath := flag.String("data", "", "path to the JSON datastore")
	filesRoot := flag.String("files", "", "directory for stored images and thumbnails")
	storageDriver := flag.String("storage-driver", "", "datastore driver (json or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	postgresHealthInterval := flag.Duration("postgres-health-interval", 0, "interval between Postgres health checks")
	postgresConnectTimeout := flag.Duration("postgres-connect-timeout", 0, "timeout when establishing Postgres connections")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	uploadStore := flag.String("upload-store", "", "upload session store (memory or redis)")
	uploadTTL := flag.Duration("upload-ttl", 0, "idle lifetime of an unfinished upload session")
	uploadPurgeInterval := flag.Duration("upload-purge-interval", 0, "interval between sweeps for abandoned upload sessions")
	redisAddr := flag.String("redis-addr", "", "Redis address for shared upload sessions")
	redisUsername := flag.String("redis-username", "", "Redis username")
	redisPassword := flag.String("redis-password", "", "Redis password")
	redisDB := flag.Int("redis-db", 0, "Redis database index")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log format (json or text)")
	corsOrigins := flag.String("cors-origins", "", "comma separated browser origins allowed to call the API")
	globalRPS := flag.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "global rate limit burst allowance")
	uploadLimit := flag.Int("rate-upload-limit", 0, "maximum POST requests per window for a single IP")
	uploadWindow := flag.Duration("rate-upload-window", 0, "window for counting POST requests")
	flag.Parse()

	fileCfg, err := loadFileConfig(firstNonEmpty(*configPath, os.Getenv("DOSEPICS_CONFIG")))
	if err != nil {
		logging.Init(logging.Config{}).Error("failed to load configuration file", "error", err)
		os.Exit(1)
	}

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("DOSEPICS_LOG_LEVEL"), fileCfg.LogLevel),
		Format: firstNonEmpty(*logFormat, os.Getenv("DOSEPICS_LOG_FORMAT"), fileCfg.LogFormat),
	})
	auditLogger := logging.WithComponent(logger, "audit")

	serverMode := modeValue(*mode, os.Getenv("DOSEPICS_MODE"), fileCfg.Mode)
	listenAddr := resolveListenAddr(*addr, os.Getenv("DOSEPICS_ADDR"), fileCfg.Addr, serverMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dsn := firstNonEmpty(*postgresDSN, os.Getenv("DOSEPICS_POSTGRES_DSN"), os.Getenv("DATABASE_URL"), fileCfg.PostgresDSN)
	driver, err := resolveStorageDriver(*storageDriver, os.Getenv("DOSEPICS_STORAGE_DRIVER"), fileCfg.StorageDriver, dsn)
	if err != nil {
		logger.Error("failed to resolve storage driver", "error", err)
		os.Exit(1)
	}
	if serverMode == "production" {
		if err := validateProductionDatastore(driver, dsn); err != nil {
			logger.Error("production datastore validation failed", "error", err)
			os.Exit(1)
		}
	}

	var store storage.Repository
	switch driver {
	case "json":
		dataFile := firstNonEmpty(*dataPath, os.Getenv("DOSEPICS_DATA"), fileCfg.Data)
		if dataFile == "" {
			dataFile = "data/store.json"
		}
		store, err = storage.NewStorage(dataFile)
	case "postgres":
		if dsn == "" {
			logger.Error("postgres storage selected without DSN")
			os.Exit(1)
		}
		var pgOptions []storage.Option
		maxConns := resolveInt(*postgresMaxConns, "DOSEPICS_POSTGRES_MAX_CONNS", 0)
		minConns := resolveInt(*postgresMinConns, "DOSEPICS_POSTGRES_MIN_CONNS", 0)
		if maxConns > 0 || minConns > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresPoolLimits(int32(maxConns), int32(minConns)))
		}
		maxLifetime := resolveDuration(*postgresMaxConnLifetime, "DOSEPICS_POSTGRES_MAX_CONN_LIFETIME", "", 0)
		maxIdle := resolveDuration(*postgresMaxConnIdle, "DOSEPICS_POSTGRES_MAX_CONN_IDLE", "", 0)
		healthInterval := resolveDuration(*postgresHealthInterval, "DOSEPICS_POSTGRES_HEALTH_INTERVAL", "", 0)
		if maxLifetime > 0 || maxIdle > 0 || healthInterval > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresPoolDurations(maxLifetime, maxIdle, healthInterval))
		}
		if connectTimeout := resolveDuration(*postgresConnectTimeout, "DOSEPICS_POSTGRES_CONNECT_TIMEOUT", "", 0); connectTimeout > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresConnectTimeout(connectTimeout))
		}
		if appName := firstNonEmpty(*postgresAppName, os.Getenv("DOSEPICS_POSTGRES_APP_NAME")); appName != "" {
			pgOptions = append(pgOptions, storage.WithPostgresApplicationName(appName))
		}
		store, err = storage.NewPostgresRepository(ctx, dsn, pgOptions...)
	default:
		logger.Error("unsupported storage driver", "driver", driver)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("failed to open datastore", "error", err)
		os.Exit(1)
	}

	filesDir := firstNonEmpty(*filesRoot, os.Getenv("DOSEPICS_FILES"), fileCfg.Files)
	if filesDir == "" {
		filesDir = "data/files"
	}
	files, err := storage.NewFileStore(filesDir)
	if err != nil {
		logger.Error("failed to open file store", "error", err)
		os.Exit(1)
	}

	sessionRedisAddr := firstNonEmpty(*redisAddr, os.Getenv("DOSEPICS_REDIS_ADDR"), fileCfg.RedisAddr)
	uploadDriver, err := resolveUploadStore(*uploadStore, os.Getenv("DOSEPICS_UPLOAD_STORE"), fileCfg.UploadStore, sessionRedisAddr)
	if err != nil {
		logger.Error("failed to resolve upload store", "error", err)
		os.Exit(1)
	}
	uploadOptions := []upload.Option{}
	if ttl := resolveDuration(*uploadTTL, "DOSEPICS_UPLOAD_TTL", fileCfg.UploadTTL, 0); ttl > 0 {
		uploadOptions = append(uploadOptions, upload.WithTTL(ttl))
	}
	if uploadDriver == "redis" {
		redisStore, err := upload.NewRedisStore(ctx, upload.RedisStoreConfig{
			Addr:     sessionRedisAddr,
			Username: firstNonEmpty(*redisUsername, os.Getenv("DOSEPICS_REDIS_USERNAME"), fileCfg.RedisUsername),
			Password: firstNonEmpty(*redisPassword, os.Getenv("DOSEPICS_REDIS_PASSWORD"), fileCfg.RedisPassword),
			DB:       resolveInt(*redisDB, "DOSEPICS_REDIS_DB", fileCfg.RedisDB),
		})
		if err != nil {
			logger.Error("failed to connect upload session store", "error", err)
			os.Exit(1)
		}
		defer redisStore.Close()
		uploadOptions = append(uploadOptions, upload.WithStore(redisStore))
	}
	uploads := upload.NewManager(uploadOptions...)

	handler := api.NewHandler(store, files, uploads)
	handler.Logger = logging.WithComponent(logger, "api")

	purgeInterval := resolveDuration(*uploadPurgeInterval, "DOSEPICS_UPLOAD_PURGE_INTERVAL", "", 5*time.Minute)
	purgeStop := startUploadPurgeWorker(ctx, logging.WithComponent(logger, "upload-purger"), uploads, purgeInterval)
	defer purgeStop()

	srv, err := server.New(handler, server.Config{
		Addr: listenAddr,
		TLS: server.TLSConfig{
			CertFile: firstNonEmpty(*tlsCert, os.Getenv("DOSEPICS_TLS_CERT"), fileCfg.TLSCert),
			KeyFile:  firstNonEmpty(*tlsKey, os.Getenv("DOSEPICS_TLS_KEY"), fileCfg.TLSKey),
		},
		RateLimit: server.RateLimitConfig{
			GlobalRPS:     resolveFloat(*globalRPS, "DOSEPICS_RATE_GLOBAL_RPS", fileCfg.GlobalRPS),
			GlobalBurst:   resolveInt(*globalBurst, "DOSEPICS_RATE_GLOBAL_BURST", fileCfg.GlobalBurst),
			UploadLimit:   resolveInt(*uploadLimit, "DOSEPICS_RATE_UPLOAD_LIMIT", fileCfg.UploadLimit),
			UploadWindow:  resolveDuration(*uploadWindow, "DOSEPICS_RATE_UPLOAD_WINDOW", fileCfg.UploadWindow, time.Minute),
			RedisAddr:     sessionRedisAddr,
			RedisPassword: firstNonEmpty(*redisPassword, os.Getenv("DOSEPICS_REDIS_PASSWORD"), fileCfg.RedisPassword),
		},
		CORS: server.CORSConfig{
			AllowedOrigins: resolveOrigins(*corsOrigins, os.Getenv("DOSEPICS_CORS_ORIGINS"), fileCfg.CORSOrigins),
		},
		Logger:      logger,
		AuditLogger: auditLogger,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	logger.Info("dosepics API listening", "addr", listenAddr, "mode", serverMode, "storage", driver, "uploads", uploadDriver)
	runErr := srv.Run(ctx)

	purgeStop()

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Close(closeCtx); err != nil {
		logger.Warn("failed to close datastore", "error", err)
	}

	if runErr != nil {
		logger.Error("server error", "error", runErr)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func resolveOrigins(flagValue, envValue string, fileValue []string) []string {
	if origins := splitAndTrim(flagValue); len(origins) > 0 {
		return origins
	}
	if origins := splitAndTrim(envValue); len(origins) > 0 {
		return origins
	}
	return fileValue
}
