package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"hudhud/backend/features/ask"
	"hudhud/backend/features/batches"
	"hudhud/backend/features/chunks"
	featuresearch "hudhud/backend/features/search"
	"hudhud/backend/internal/adapter/gemini"
	"hudhud/backend/internal/adapter/openai"
	osstore "hudhud/backend/internal/adapter/opensearch"
	"hudhud/backend/internal/adapter/postgres"
	wstore "hudhud/backend/internal/adapter/weaviate"
	"hudhud/backend/internal/answer"
	"hudhud/backend/internal/chunking"
	"hudhud/backend/internal/config"
	"hudhud/backend/internal/logger"
	"hudhud/backend/internal/middleware"
	"hudhud/backend/internal/progress"
	"hudhud/backend/internal/search"
	"hudhud/backend/internal/token"
	"hudhud/backend/internal/vector"
	"hudhud/backend/internal/worker"
)

func main() {
	// Initialize structured logger
	slog.SetDefault(slog.New(logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil))))

	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second

	// 2. Database Connection
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		slog.Error("failed to open db connection", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.Ping(); err == nil {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1, "max_attempts", cfg.BootstrapRetryAttempts)
		time.Sleep(retryDelay)
	}
	if err := db.Ping(); err != nil {
		slog.Error("failed to ping db after retries", "error", err)
		os.Exit(1)
	}

	// 3. Run Migrations
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		slog.Error("failed to create migration driver", "error", err)
		os.Exit(1)
	}
	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationPath, "postgres", driver)
	if err != nil {
		slog.Error("failed to create migration instance", "error", err)
		os.Exit(1)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("migrations applied successfully")

	// 4. Weaviate Connection & Schema
	wClient, err := weaviate.NewClient(weaviate.Config{
		Host:   cfg.WeaviateHost,
		Scheme: cfg.WeaviateScheme,
	})
	if err != nil {
		slog.Error("failed to create weaviate client", "error", err)
		os.Exit(1)
	}

	wAdapter := vector.NewWeaviateClientAdapter(wClient)
	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := vector.EnsureSchema(context.Background(), wAdapter); err == nil {
			slog.Info("weaviate schema ensured")
			break
		}
		slog.Warn("failed to ensure weaviate schema, retrying...", "attempt", i+1, "error", err)
		time.Sleep(retryDelay)
	}
	if err := vector.EnsureSchema(context.Background(), wAdapter); err != nil {
		slog.Error("failed to ensure weaviate schema after retries", "error", err)
		os.Exit(1)
	}
	vecStore := wstore.NewStore(wClient)

	// 5. OpenSearch Index
	// The relational fallback keeps /search alive when the cluster is
	// down, so index bootstrap failures are not fatal.
	osStore, err := osstore.NewStore(osstore.Config{
		Addresses: cfg.OpenSearchAddresses,
		Username:  cfg.OpenSearchUser,
		Password:  cfg.OpenSearchPass,
		Insecure:  cfg.OpenSearchInsecure,
	})
	if err != nil {
		slog.Error("failed to create opensearch client", "error", err)
		os.Exit(1)
	}
	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := osStore.EnsureIndex(context.Background()); err == nil {
			slog.Info("opensearch index ensured")
			break
		}
		slog.Warn("failed to ensure opensearch index, retrying...", "attempt", i+1, "error", err)
		time.Sleep(retryDelay)
	}

	// 6. Embedding, Generation & Chunking
	counter, err := token.NewTiktokenCounter(cfg.EmbeddingModel)
	if err != nil {
		slog.Error("failed to create token counter", "error", err)
		os.Exit(1)
	}
	splitter, err := chunking.NewPunktSplitter()
	if err != nil {
		slog.Error("failed to create sentence splitter", "error", err)
		os.Exit(1)
	}

	var embedder interface {
		Embed(ctx context.Context, text string) ([]float32, error)
	}
	switch cfg.EmbeddingProvider {
	case "gemini":
		embedder, err = gemini.NewEmbedder(context.Background(), cfg.GeminiAPIKey, cfg.EmbeddingDimensions)
		if err != nil {
			slog.Error("failed to create gemini embedder", "error", err)
			os.Exit(1)
		}
	default:
		embedder = openai.NewEmbedder(cfg.OpenAIAPIKey, counter, cfg.EmbeddingModel, cfg.EmbeddingDimensions).
			WithRateLimit(time.Duration(cfg.EmbedRateLimitMS) * time.Millisecond)
	}

	chunker := chunking.New(counter, splitter, embedder, chunking.Config{
		MaxTokens:         cfg.ChunkMaxTokens,
		OverlapSentences:  cfg.ChunkOverlapSentences,
		SemanticThreshold: cfg.SemanticThreshold,
		Semantic:          cfg.SemanticChunking,
	})

	// 7. NSQ Producer
	nsqCfg := nsq.NewConfig()
	// nsqCfg.MaxMsgSize = cfg.NSQMaxMsgSize // Field undefined in go-nsq v1.1.0
	nsqProducer, err := nsq.NewProducer(cfg.NSQDHost, nsqCfg)
	if err != nil {
		slog.Error("failed to create NSQ producer", "error", err)
		os.Exit(1)
	}

	// NSQ creates topics lazily on publish, but consumers querying lookupd
	// fail 404 until the topic exists, so pre-create it over nsqd's HTTP API.
	go func() {
		time.Sleep(retryDelay)
		host, _, _ := net.SplitHostPort(cfg.NSQDHTTP)
		if host == "" {
			host = cfg.NSQDHTTP
		}
		url := fmt.Sprintf("http://%s/topic/create?topic=%s", cfg.NSQDHTTP, config.TopicChunkTask)
		resp, err := http.Post(url, "application/json", nil)
		if err != nil {
			slog.Warn("failed to pre-create chunk task topic", "error", err, "url", url)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			slog.Info("chunk task topic pre-created", "host", host)
		}
	}()

	// 8. Repositories
	epigraphRepo := postgres.NewEpigraphRepo(db)
	chunkRepo := postgres.NewChunkRepo(db)

	// 9. Features
	enqueuer := worker.NewEnqueuer(nsqProducer)

	lexical := search.NewService(osStore, search.NewFallback(db))
	searchHandler := featuresearch.NewHandler(featuresearch.NewService(lexical, embedder, vecStore, epigraphRepo, osStore))

	chunksHandler := chunks.NewHandler(chunks.NewService(epigraphRepo, chunkRepo, chunker, embedder, vecStore, enqueuer))

	var askHandler *ask.Handler
	var batchesHandler *batches.Handler
	if cfg.OpenAIAPIKey != "" {
		generator := openai.NewGenerator(cfg.OpenAIAPIKey, cfg.ChatModel)
		orchestrator := answer.New(generator, embedder, vecStore, epigraphRepo, answer.DefaultConfig())
		askHandler = ask.NewHandler(orchestrator)

		batchProvider := openai.NewBatchProvider(cfg.OpenAIAPIKey, counter, cfg.EmbeddingModel)
		batchesHandler = batches.NewHandler(batches.NewService(
			batches.NewPostgresRepo(db), batchProvider, chunkRepo, epigraphRepo, vecStore))
	} else {
		slog.Warn("OPENAI_API_KEY not set, /ask and /batches endpoints disabled")
	}

	// 10. Chunk Task Consumer
	if cfg.EnableChunkWorker {
		chunkConsumer := worker.NewChunkConsumer(epigraphRepo, chunkRepo, chunker, embedder, vecStore, progress.Log{})
		consumer, err := nsq.NewConsumer(config.TopicChunkTask, "backend", nsqCfg)
		if err != nil {
			slog.Error("failed to create NSQ consumer for chunk tasks", "error", err)
		} else {
			consumer.AddHandler(nsq.HandlerFunc(func(msg *nsq.Message) error {
				return chunkConsumer.HandleMessage(msg)
			}))
			if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
				slog.Error("failed to connect to NSQLookupd", "error", err)
			} else {
				slog.Info("chunk task consumer connected")
			}
		}
	}

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	http.Handle("POST /search", middleware.CorrelationID(enableCORS(searchHandler.Search)))
	http.Handle("POST /search/semantic", middleware.CorrelationID(enableCORS(searchHandler.Semantic)))
	http.Handle("GET /search/similar/{id}", middleware.CorrelationID(enableCORS(searchHandler.Similar)))
	http.Handle("POST /search/index/{id}", middleware.CorrelationID(enableCORS(searchHandler.Index)))
	http.Handle("DELETE /search/index/{id}", middleware.CorrelationID(enableCORS(searchHandler.RemoveIndex)))
	http.Handle("POST /search/reindex", middleware.CorrelationID(enableCORS(searchHandler.Reindex)))

	http.Handle("POST /chunks/epigraph/{id}", middleware.CorrelationID(enableCORS(chunksHandler.ChunkEpigraph)))
	http.Handle("GET /chunks/epigraph/{id}", middleware.CorrelationID(enableCORS(chunksHandler.List)))
	http.Handle("DELETE /chunks/epigraph/{id}", middleware.CorrelationID(enableCORS(chunksHandler.Delete)))
	http.Handle("POST /chunks/bulk", middleware.CorrelationID(enableCORS(chunksHandler.Bulk)))
	http.Handle("GET /chunks/stats", middleware.CorrelationID(enableCORS(chunksHandler.Stats)))

	if askHandler != nil {
		http.Handle("POST /ask/stream", middleware.CorrelationID(enableCORS(askHandler.Stream)))
	}
	if batchesHandler != nil {
		http.Handle("POST /batches", middleware.CorrelationID(enableCORS(batchesHandler.Create)))
		http.Handle("GET /batches", middleware.CorrelationID(enableCORS(batchesHandler.List)))
		http.Handle("GET /batches/{id}", middleware.CorrelationID(enableCORS(batchesHandler.Get)))
		http.Handle("POST /batches/{id}/apply", middleware.CorrelationID(enableCORS(batchesHandler.Apply)))
	}

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	if !cfg.EnableAPI {
		slog.Info("API disabled, running worker only")
		select {}
	}

	slog.Info("server starting", "port", cfg.ServerPort)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.ServerPort), nil); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
