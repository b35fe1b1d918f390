package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"log/slog"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"github.com/iamsahilshukla/visual-breakdown/internal/analyzer"
	"github.com/iamsahilshukla/visual-breakdown/internal/batch"
	"github.com/iamsahilshukla/visual-breakdown/internal/config"
	"github.com/iamsahilshukla/visual-breakdown/internal/media"
	"github.com/iamsahilshukla/visual-breakdown/internal/oracle"
	"github.com/iamsahilshukla/visual-breakdown/internal/sampler"
	"github.com/iamsahilshukla/visual-breakdown/internal/similarity"
	"github.com/iamsahilshukla/visual-breakdown/internal/storage"
)

func main() {
	ctx := context.Background()

	// Configure logger
	logger := slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: "15:04:05",
		}),
	)

	// .env is optional; real env vars win either way
	_ = godotenv.Load()

	var (
		urlsFlag  = flag.String("urls", "", "comma-separated video URLs to process")
		urlsFile  = flag.String("urls-file", "", "text file with one URL per line (# comments ignored)")
		duration  = flag.Int("duration", 0, "seconds to analyze per video (default from config)")
		maxFrames = flag.Int("max-frames", 0, "maximum frames to extract per video")
		maxVideos = flag.Int("max-videos", 0, "maximum number of videos to process")
		batchSize = flag.Int("batch-size", 0, "frames to analyze in parallel")
		outputDir = flag.String("output", "", "output directory for all results")
		testAPI   = flag.Bool("test-api", false, "test the oracle API connection and exit")
		noCleanup = flag.Bool("no-cleanup", false, "keep temporary downloads after processing")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	applyFlags(cfg, *duration, *maxFrames, *maxVideos, *batchSize, *outputDir)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	orc := buildOracle(ctx, cfg, logger)

	if *testAPI {
		ping, ok := orc.(interface{ Ping(context.Context) error })
		if !ok {
			logger.Error("selected oracle backend has no connection test")
			os.Exit(1)
		}
		if err := ping.Ping(ctx); err != nil {
			logger.Error("oracle API connection failed", "error", err)
			os.Exit(1)
		}
		fmt.Println("Oracle API connection successful")
		return
	}

	urls, err := collectURLs(*urlsFlag, *urlsFile)
	if err != nil {
		logger.Error("failed to collect URLs", "error", err)
		os.Exit(1)
	}
	if len(urls) == 0 {
		fmt.Println("Usage: visionbatch --urls url1,url2 [flags]   or   visionbatch --urls-file urls.txt [flags]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	store, err := storage.NewArtifactStore(cfg.Storage.OutputDir)
	if err != nil {
		logger.Error("failed to set up output directories", "error", err)
		os.Exit(1)
	}

	downloadsDir := cfg.Storage.DownloadsDir
	if downloadsDir == "" {
		downloadsDir = filepath.Join(os.TempDir(), "visionbatch_downloads")
	}
	retriever, err := media.NewYTDLPRetriever(downloadsDir, logger)
	if err != nil {
		logger.Error("failed to set up downloader", "error", err)
		os.Exit(1)
	}
	if !*noCleanup {
		defer func() {
			if err := retriever.Cleanup(); err != nil {
				logger.Warn("cleanup failed", "error", err)
			}
		}()
	}

	var sink batch.RecordSink
	if cfg.Storage.PostgresURL != "" {
		pg := buildPostgres(ctx, cfg, logger)
		if pg != nil {
			defer pg.Close()
			sink = pg
		}
	}

	orchestrator := batch.New(
		retriever,
		sampler.New(logger),
		analyzer.New(orc, logger),
		similarity.New(orc, logger),
		store,
		sink,
		orc.Model(),
		batch.Options{
			DurationSeconds: cfg.Processing.DurationSeconds,
			MaxFrames:       cfg.Processing.MaxFrames,
			BatchSize:       cfg.Processing.BatchSize,
			MaxVideos:       cfg.Processing.MaxVideos,
		},
		logger,
	)

	report, err := orchestrator.Run(ctx, urls, func(e batch.Event) {
		switch e.Stage {
		case "analyze":
			logger.Debug("frame analyzed", "video", e.VideoIndex, "frame", e.FrameDone, "of", e.FrameTotal)
		default:
			logger.Debug("stage", "name", e.Stage, "video", e.VideoIndex)
		}
	})
	if err != nil {
		logger.Error("batch run failed", "error", err)
		os.Exit(1)
	}

	fmt.Println("\nBatch analysis complete")
	fmt.Printf("  Videos analyzed:   %d/%d\n", report.Summary.SuccessfulAnalyses, report.Summary.TotalURLs)
	fmt.Printf("  Frames analyzed:   %d/%d\n", report.Summary.TotalFramesAnalyzed, report.Summary.TotalFramesExtracted)
	fmt.Printf("  Tokens used:       %d\n", report.Summary.TotalTokensUsed)
	fmt.Printf("  Estimated cost:    $%.3f\n", report.Summary.EstimatedCostUSD)
	fmt.Printf("  Full report:       %s\n", filepath.Join(cfg.Storage.OutputDir, "batch_analysis_report.json"))
}

func applyFlags(cfg *config.Config, duration, maxFrames, maxVideos, batchSize int, outputDir string) {
	if duration > 0 {
		cfg.Processing.DurationSeconds = duration
	}
	if maxFrames > 0 {
		cfg.Processing.MaxFrames = maxFrames
	}
	if maxVideos > 0 {
		cfg.Processing.MaxVideos = maxVideos
	}
	if batchSize > 0 {
		cfg.Processing.BatchSize = batchSize
	}
	if outputDir != "" {
		cfg.Storage.OutputDir = outputDir
	}
}

func buildOracle(ctx context.Context, cfg *config.Config, logger *slog.Logger) oracle.Oracle {
	if cfg.Oracle.Provider == "ollama" {
		return oracle.NewOllamaOracle(ctx, logger, cfg.Oracle.OllamaBaseURL, cfg.Oracle.OllamaPort, cfg.Oracle.OllamaModel)
	}
	return oracle.NewOpenAIOracle(cfg.Oracle.APIKey, cfg.Oracle.BaseURL, cfg.Oracle.ChatModel)
}

func buildPostgres(ctx context.Context, cfg *config.Config, logger *slog.Logger) *storage.PostgresStore {
	if err := storage.InitSchema(ctx, cfg.Storage.PostgresURL); err != nil {
		logger.Warn("postgres schema init failed, continuing without index", "error", err)
		return nil
	}
	embedder := storage.NewEmbeddingService(
		storage.NewOpenAIClient(cfg.Oracle.APIKey, cfg.Oracle.BaseURL),
		cfg.Oracle.EmbeddingModel, 4)
	pg, err := storage.NewPostgresStore(ctx, cfg.Storage.PostgresURL, embedder, logger)
	if err != nil {
		logger.Warn("postgres connection failed, continuing without index", "error", err)
		return nil
	}
	return pg
}

// collectURLs merges the --urls flag and --urls-file contents, trimming
// blanks and # comments.
func collectURLs(urlsFlag, urlsFile string) ([]string, error) {
	var urls []string
	for _, u := range strings.Split(urlsFlag, ",") {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}

	if urlsFile != "" {
		f, err := os.Open(urlsFile)
		if err != nil {
			return nil, fmt.Errorf("cannot open URLs file '%s': %v", urlsFile, err)
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			urls = append(urls, line)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("error reading URLs file: %v", err)
		}
	}
	return urls, nil
}
