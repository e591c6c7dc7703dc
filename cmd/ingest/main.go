// Command ingest loads documents from a directory, chunks and embeds them,
// and stores the vectors in S3.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/docuchat/docuchat/internal/chunking"
	"github.com/docuchat/docuchat/internal/config"
	"github.com/docuchat/docuchat/internal/embedding"
	"github.com/docuchat/docuchat/internal/ingest"
	"github.com/docuchat/docuchat/internal/observability"
	"github.com/docuchat/docuchat/internal/storage"
	"github.com/docuchat/docuchat/internal/vector"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

func main() {
	dir := flag.String("dir", "", "directory of .txt/.md documents to ingest")
	flag.Parse()

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "usage: ingest -dir <documents directory>")
		os.Exit(2)
	}

	if err := run(*dir); err != nil {
		fmt.Fprintf(os.Stderr, "ingest failed: %v\n", err)
		os.Exit(1)
	}
}

func run(dir string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket must be configured for ingestion")
	}

	logger := observability.NewStandardLoggerWithLevel("ingest", observability.ParseLevel(cfg.Logging.Level))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to load AWS configuration: %w", err)
	}

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
	embedder := embedding.NewBedrockEmbedder(bedrockruntime.NewFromConfig(awsCfg), embedding.Config{
		ModelID: cfg.Bedrock.EmbeddingsModelID,
	}, logger.WithPrefix("embedding"))
	chunker := chunking.NewChunker(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap, logger.WithPrefix("chunking"))
	pipeline := ingest.NewPipeline(chunker, embedder, repo, logger)

	documents, err := ingest.LoadDirectory(dir)
	if err != nil {
		return err
	}
	if len(documents) == 0 {
		return fmt.Errorf("no supported documents found in %s", dir)
	}
	logger.Info("Loaded documents", map[string]interface{}{
		"directory": dir,
		"documents": len(documents),
	})

	stats, err := pipeline.IngestDocuments(ctx, documents)
	if err != nil {
		return err
	}

	fmt.Printf("ingested %d documents: %d chunks, %d saved, %d failed\n",
		stats.Documents, stats.Chunks, stats.Saved, stats.Failed)
	for chunkID, chunkErr := range stats.FailedChunks {
		fmt.Printf("  failed %s: %v\n", chunkID, chunkErr)
	}
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
