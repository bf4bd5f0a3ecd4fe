package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"pixelgate-gateway/internal/blob"
	"pixelgate-gateway/internal/cache"
	"pixelgate-gateway/internal/embedding"
	"pixelgate-gateway/internal/handlers"
	"pixelgate-gateway/internal/httpserver"
	"pixelgate-gateway/internal/metrics"
	"pixelgate-gateway/internal/origin"
	"pixelgate-gateway/internal/tasks"
	"pixelgate-gateway/internal/telemetry"
	"pixelgate-gateway/internal/token"
	"pixelgate-gateway/internal/vectorindex"
	"pixelgate-gateway/internal/verify"
	"pixelgate-gateway/pkg/logging/logging"
)

type Config struct {
	Port string

	// blob store
	BlobBackend       string // "memory" or "s3"
	BlobTTL           time.Duration
	S3Bucket          string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Endpoint        string
	S3KeyPrefix       string

	// semantic tier
	SemanticEnabled   bool
	SemanticThreshold float64
	EmbeddingBaseURL  string
	EmbeddingAPIKey   string
	EmbeddingModel    string
	VectorIndexURL    string
	VectorIndexToken  string
	RedisAddr         string // optional embedding cache

	// origin
	OriginBaseURL     string
	TokenURL          string
	TokenClientID     string
	TokenClientSecret string

	// verification gate
	VerifyURL    string
	VerifySecret string

	// telemetry backends
	AnalyticsBaseURL string
	MeasurementID    string
	APISecret        string
	MetricsFeedURL   string
	MetricsFeedToken string
	MetricsDataset   string
}

func LoadConfig() Config {
	return Config{
		Port: getenv("PORT", "8080"),

		BlobBackend:       getenv("BLOB_BACKEND", "memory"),
		BlobTTL:           getdur("BLOB_TTL", 24*time.Hour),
		S3Bucket:          os.Getenv("S3_BUCKET"),
		S3Region:          getenv("S3_REGION", "us-east-1"),
		S3AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
		S3SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		S3KeyPrefix:       getenv("S3_KEY_PREFIX", "artifacts"),

		SemanticEnabled:   getenv("SEMANTIC_CACHE_ENABLED", "true") == "true",
		SemanticThreshold: getfloat("SEMANTIC_THRESHOLD", 0.9),
		EmbeddingBaseURL:  getenv("EMBEDDING_BASE_URL", "https://api.openai.com"),
		EmbeddingAPIKey:   os.Getenv("EMBEDDING_API_KEY"),
		EmbeddingModel:    getenv("EMBEDDING_MODEL", "text-embedding-3-small"),
		VectorIndexURL:    os.Getenv("VECTOR_INDEX_URL"),
		VectorIndexToken:  os.Getenv("VECTOR_INDEX_TOKEN"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),

		OriginBaseURL:     getenv("ORIGIN_BASE_URL", "https://image.pollinations.ai"),
		TokenURL:          os.Getenv("TOKEN_URL"),
		TokenClientID:     os.Getenv("TOKEN_CLIENT_ID"),
		TokenClientSecret: os.Getenv("TOKEN_CLIENT_SECRET"),

		VerifyURL:    getenv("VERIFY_URL", "https://challenges.cloudflare.com/turnstile/v0/siteverify"),
		VerifySecret: os.Getenv("VERIFY_SECRET"),

		AnalyticsBaseURL: getenv("ANALYTICS_BASE_URL", "https://www.google-analytics.com"),
		MeasurementID:    os.Getenv("GA_MEASUREMENT_ID"),
		APISecret:        os.Getenv("GA_API_SECRET"),
		MetricsFeedURL:   os.Getenv("METRICS_FEED_URL"),
		MetricsFeedToken: os.Getenv("METRICS_FEED_TOKEN"),
		MetricsDataset:   getenv("METRICS_FEED_DATASET", "cache_hits"),
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("gateway exited with error: %v", err)
	}
}

func run() error {
	// ----- Logger -----
	logger := logging.DefaultLogger()
	defer logger.Sync()

	// ----- Metrics -----
	metrics.Register()

	// ----- Config -----
	cfg := LoadConfig()

	logger.Info("loaded config",
		zap.String("port", cfg.Port),
		zap.String("blob_backend", cfg.BlobBackend),
		zap.Bool("semantic_enabled", cfg.SemanticEnabled),
		zap.Float64("semantic_threshold", cfg.SemanticThreshold),
		zap.String("origin_base_url", cfg.OriginBaseURL),
	)

	ctx := context.Background()

	// ----- Blob store -----
	store, err := blob.NewStore(ctx, blob.Config{
		Backend: cfg.BlobBackend,
		TTL:     cfg.BlobTTL,
		S3: blob.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Endpoint:        cfg.S3Endpoint,
			KeyPrefix:       cfg.S3KeyPrefix,
		},
	})
	if err != nil {
		logger.Error("blob store init failed", zap.Error(err))
		return err
	}
	if closer, ok := store.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	// ----- Cache (Tier 1 Exact Cache) -----
	exactCache := cache.NewLoggingExactCache(cache.NewExactCache(store))

	// ----- Cache (Tier 2 Semantic Cache) -----
	var semanticCache *cache.SemanticCache
	if cfg.SemanticEnabled {
		if cfg.EmbeddingAPIKey == "" {
			return fmt.Errorf("EMBEDDING_API_KEY is required when the semantic cache is enabled")
		}
		if cfg.VectorIndexURL == "" {
			return fmt.Errorf("VECTOR_INDEX_URL is required when the semantic cache is enabled")
		}

		embedder, err := embedding.NewClient(embedding.Config{
			BaseURL: cfg.EmbeddingBaseURL,
			APIKey:  cfg.EmbeddingAPIKey,
			Model:   cfg.EmbeddingModel,
		}, logger)
		if err != nil {
			return err
		}

		if cfg.RedisAddr != "" {
			redisClient := redis.NewClient(&redis.Options{
				Addr: cfg.RedisAddr,
			})
			// Fail fast if Redis is misconfigured
			if err := redisClient.Ping(ctx).Err(); err != nil {
				logger.Error("redis connection failed", zap.Error(err))
				return err
			}
			logger.Info("redis embedding cache enabled", zap.String("addr", cfg.RedisAddr))
			embedder = embedding.NewCachedEmbedder(embedder, redisClient, embedding.CacheConfig{}, logger)
		}
		breakered := embedding.NewBreakerEmbedder(embedder, logger)

		index, err := vectorindex.NewHTTPIndex(vectorindex.Config{
			BaseURL:  cfg.VectorIndexURL,
			APIToken: cfg.VectorIndexToken,
		}, logger)
		if err != nil {
			return err
		}

		semanticCache = cache.NewSemanticCache(
			breakered,
			vectorindex.NewBreakerIndex(index, logger),
			store,
			cfg.SemanticThreshold,
		)
	}

	// ----- Origin token provider -----
	var tokens origin.TokenSource
	var tokenProvider *token.Provider
	if cfg.TokenURL != "" {
		tokenProvider, err = token.New(token.Config{
			TokenURL:     cfg.TokenURL,
			ClientID:     cfg.TokenClientID,
			ClientSecret: cfg.TokenClientSecret,
		}, logger)
		if err != nil {
			return err
		}
		defer tokenProvider.Shutdown()
		tokens = tokenProvider
	}

	// ----- Origin client -----
	originClient, err := origin.NewClient(origin.Config{
		BaseURL: cfg.OriginBaseURL,
	}, tokens, logger)
	if err != nil {
		return err
	}
	if closer, ok := originClient.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	// ----- Verification gate -----
	var verifier verify.Verifier
	if cfg.VerifySecret != "" {
		verifier, err = verify.NewClient(verify.Config{
			VerifyURL: cfg.VerifyURL,
			Secret:    cfg.VerifySecret,
		}, logger)
		if err != nil {
			return err
		}
	} else {
		logger.Warn("VERIFY_SECRET not set, verification gate disabled")
	}

	// ----- Background task runner -----
	runner := tasks.NewRunner(30*time.Second, logger)

	// ----- Telemetry relay -----
	var analytics telemetry.AnalyticsSink
	if cfg.MeasurementID != "" && cfg.APISecret != "" {
		analytics, err = telemetry.NewAnalyticsClient(telemetry.AnalyticsConfig{
			BaseURL:       cfg.AnalyticsBaseURL,
			MeasurementID: cfg.MeasurementID,
			APISecret:     cfg.APISecret,
		}, logger)
		if err != nil {
			return err
		}
	}

	var metricsFeed telemetry.MetricsSink
	if cfg.MetricsFeedURL != "" {
		metricsFeed, err = telemetry.NewMetricsFeedClient(telemetry.MetricsFeedConfig{
			BaseURL:  cfg.MetricsFeedURL,
			APIToken: cfg.MetricsFeedToken,
			Dataset:  cfg.MetricsDataset,
		}, logger)
		if err != nil {
			return err
		}
	}

	relay := telemetry.NewRelay(analytics, metricsFeed, runner, logger)

	// ----- Handlers -----
	imageHandler := handlers.NewImageHandler(
		exactCache,
		semanticCache,
		originClient,
		relay,
		runner,
	)

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, imageHandler, verifier, 150*time.Second)

	// ----- HTTP server -----
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      180 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting gateway",
		zap.String("addr", srv.Addr),
		zap.String("blob_backend", cfg.BlobBackend),
		zap.Bool("semantic_enabled", cfg.SemanticEnabled),
	)

	// Start server in background
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	// drain cache populates and telemetry sends still in flight
	if err := runner.Shutdown(shutdownCtx); err != nil {
		logger.Warn("background task drain interrupted", zap.Error(err))
	}

	logger.Info("server shutdown complete")
	return nil
}

// getenv returns the value of the environment variable key or def if not set.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getfloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getdur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
