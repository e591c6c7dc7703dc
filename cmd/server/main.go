package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/docuchat/docuchat/internal/api"
	wsapi "github.com/docuchat/docuchat/internal/api/websocket"
	"github.com/docuchat/docuchat/internal/chat"
	"github.com/docuchat/docuchat/internal/config"
	"github.com/docuchat/docuchat/internal/embedding"
	"github.com/docuchat/docuchat/internal/generation"
	"github.com/docuchat/docuchat/internal/observability"
	"github.com/docuchat/docuchat/internal/prompt"
	"github.com/docuchat/docuchat/internal/session"
	"github.com/docuchat/docuchat/internal/storage"
	"github.com/docuchat/docuchat/internal/tools"
	"github.com/docuchat/docuchat/internal/vector"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := observability.NewStandardLoggerWithLevel("server", observability.ParseLevel(cfg.Logging.Level))
	logger.Info("Starting DocuChat server", map[string]interface{}{
		"listen_address": cfg.API.ListenAddress,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	// Session store: Postgres when a DSN is configured, memory LRU
	// otherwise.
	var store session.Store
	if cfg.Database.DSN != "" {
		pg, err := session.NewPostgresStore(ctx, session.PostgresConfig{
			Driver:          cfg.Database.Driver,
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		}, logger.WithPrefix("session"))
		if err != nil {
			return err
		}
		defer pg.Close()
		store = pg
		logger.Info("Using durable session store", nil)
	} else {
		mem, err := session.NewMemoryStore(cfg.Session.MaxSessions, cfg.Session.MaxMessagesPerSession, logger.WithPrefix("session"))
		if err != nil {
			return err
		}
		store = mem
		logger.Info("Using in-memory session store", nil)
	}

	runtimeClient := bedrockruntime.NewFromConfig(awsCfg)

	// Local vector retrieval needs the S3 bucket; without one the direct
	// tier generates without document context.
	var retriever *vector.Retriever
	if cfg.S3.Bucket != "" {
		s3Client, err := storage.NewS3Client(ctx, storage.Config{
			Region:           cfg.AWS.Region,
			Bucket:           cfg.S3.Bucket,
			Endpoint:         cfg.AWS.Endpoint,
			AccessKeyID:      cfg.AWS.AccessKeyID,
			SecretAccessKey:  cfg.AWS.SecretAccessKey,
			SessionToken:     cfg.AWS.SessionToken,
			ForcePathStyle:   cfg.S3.ForcePathStyle,
			UploadPartSize:   cfg.S3.UploadPartSize,
			DownloadPartSize: cfg.S3.DownloadPartSize,
			Concurrency:      cfg.S3.Concurrency,
			RequestTimeout:   cfg.S3.RequestTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		repo := vector.NewRepository(s3Client, cfg.S3.VectorPrefix, logger.WithPrefix("vector"))
		embedder := embedding.NewBedrockEmbedder(runtimeClient, embedding.Config{
			ModelID: cfg.Bedrock.EmbeddingsModelID,
		}, logger.WithPrefix("embedding"))
		retriever = vector.NewRetriever(repo, embedder, cfg.RAG.TopK, cfg.RAG.MinSimilarity, logger.WithPrefix("retriever"))
	} else {
		logger.Warn("No S3 bucket configured, local retrieval disabled", nil)
	}

	// Managed tier only runs with a Knowledge Base id.
	var managed generation.Adapter
	if cfg.KnowledgeBase.KnowledgeBaseID != "" {
		managed = generation.NewKnowledgeBaseAdapter(
			bedrockagentruntime.NewFromConfig(awsCfg),
			generation.KnowledgeBaseConfig{
				KnowledgeBaseID: cfg.KnowledgeBase.KnowledgeBaseID,
				ModelARN:        cfg.KnowledgeBase.ModelARN,
				NumberOfResults: int32(cfg.KnowledgeBase.TopK),
			},
			logger.WithPrefix("knowledge-base"),
		)
	} else {
		logger.Warn("No Knowledge Base configured, managed tier disabled", nil)
	}

	direct := generation.NewBedrockAdapter(runtimeClient, generation.BedrockConfig{
		ModelID:        cfg.Bedrock.ModelID,
		MaxTokens:      cfg.Bedrock.MaxTokens,
		Temperature:    cfg.Bedrock.Temperature,
		RequestTimeout: cfg.Bedrock.RequestTimeout,
	}, logger.WithPrefix("bedrock"))

	orchestrator := chat.NewOrchestrator(managed, direct, store, retriever, chat.Config{
		SystemPrompt:  prompt.DefaultSystemPrompt,
		TopK:          cfg.RAG.TopK,
		MinSimilarity: &cfg.RAG.MinSimilarity,
	}, logger.WithPrefix("chat"))

	registry := tools.NewRegistry(cfg.Tools.Enabled, logger.WithPrefix("tools"))
	defer registry.DisconnectAll(context.Background())
	if cfg.Tools.Enabled {
		for _, server := range cfg.Tools.Servers {
			registry.Register(server.Name, tools.NewHTTPServer(
				server.Name, server.URL, server.Timeout, logger.WithPrefix("tools")))
		}
		// Unreachable servers stay registered with an error status; they
		// show up as such under /api/tools.
		registry.ConnectAll(ctx)
	}

	var wsHandler http.Handler
	if cfg.WebSocket.Enabled {
		wsHandler = wsapi.NewHandler(orchestrator, wsapi.Config{
			AllowedOrigins: cfg.API.AllowedOrigins,
			MaxMessageSize: cfg.WebSocket.MaxMessageSize,
			PingInterval:   cfg.WebSocket.PingInterval,
			WriteTimeout:   cfg.WebSocket.WriteTimeout,
		}, logger.WithPrefix("websocket"))
	}

	var origins []string
	if cfg.API.EnableCORS {
		origins = cfg.API.AllowedOrigins
	}
	restCfg := api.Config{AllowedOrigins: origins}
	if cfg.API.RateLimit.Enabled {
		restCfg.RateLimitRPS = cfg.API.RateLimit.Limit
		restCfg.RateLimitBurst = cfg.API.RateLimit.Burst
	}
	server := api.NewServer(orchestrator, store, registry, wsHandler, restCfg, logger.WithPrefix("api"))

	httpServer := &http.Server{
		Addr:         cfg.API.ListenAddress,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  cfg.API.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", map[string]interface{}{
			"address": cfg.API.ListenAddress,
		})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	logger.Info("Server stopped", nil)
	return nil
}

func loadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	var options []func(*awsconfig.LoadOptions) error
	options = append(options, awsconfig.WithRegion(cfg.AWS.Region))
	if cfg.AWS.AccessKeyID != "" && cfg.AWS.SecretAccessKey != "" {
		options = append(options, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWS.AccessKeyID, cfg.AWS.SecretAccessKey, cfg.AWS.SessionToken),
		))
	}
	return awsconfig.LoadDefaultConfig(ctx, options...)
}
