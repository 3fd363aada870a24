package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"parley/internal/auth"
	"parley/internal/config"
	"parley/internal/handler"
	"parley/internal/middleware"
	"parley/internal/repository/postgres"
	authsvc "parley/internal/service/auth"
	chatSvc "parley/internal/service/chat"
	"parley/internal/service/llm"
	"parley/internal/service/llm/providers/fixture"
	"parley/internal/service/llm/providers/lorem"
	"parley/internal/service/llm/providers/openai"
	"parley/internal/service/llm/streaming"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" {
		logLevel = slog.LevelDebug
	}

	var logOutput io.Writer = os.Stdout
	if cfg.LogDir != "" {
		logFile, err := config.SetupLogFile(cfg.LogDir, cfg.LogMaxFiles)
		if err != nil {
			log.Fatalf("Failed to set up log file: %v", err)
		}
		defer logFile.Close()
		logOutput = io.MultiWriter(os.Stdout, logFile)
	}

	logger := slog.New(slog.NewJSONHandler(logOutput, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger) // Set as default logger

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
	)

	// Create JWT verifier
	jwtVerifier, err := auth.NewJWTVerifier(cfg.JWKSURL, logger)
	if err != nil {
		log.Fatalf("Failed to create JWT verifier: %v", err)
	}
	defer jwtVerifier.Close()

	// Create pgx connection pool
	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	logger.Info("database connected",
		"max_conns", 25,
		"min_conns", 5,
	)

	// Create repositories
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: postgres.NewTableNames(cfg.TablePrefix),
		Logger: logger,
	}
	chatRepo := postgres.NewChatRepository(repoConfig)
	txManager := postgres.NewTransactionManager(pool)

	// Ownership guard shared by every chat operation
	guard := authsvc.NewGuard(chatRepo)

	// Setup model registry
	registry := setupModelRegistry(cfg, logger)

	// Create services
	chatService := chatSvc.NewService(chatRepo, txManager, guard, logger)
	streamingService := streaming.NewService(chatRepo, txManager, guard, registry, logger)

	// Create handlers (follows Clean Architecture - no repository access)
	chatHandler := handler.NewChatHandler(chatService, streamingService, logger)
	historyHandler := handler.NewHistoryHandler(chatService, logger)
	voteHandler := handler.NewVoteHandler(chatService, logger)

	logger.Info("services initialized")

	// Create HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", handler.HealthCheck)

	// Chat routes
	mux.HandleFunc("POST /api/chat", chatHandler.PostChat)
	mux.HandleFunc("GET /api/chat", chatHandler.GetChat)
	mux.HandleFunc("DELETE /api/chat", chatHandler.DeleteChat)

	// History routes
	mux.HandleFunc("GET /api/history", historyHandler.ListChats)

	// Vote routes
	mux.HandleFunc("GET /api/vote", voteHandler.GetVotes)
	mux.HandleFunc("PATCH /api/vote", voteHandler.PatchVote)

	// Build middleware chain
	var h http.Handler = mux

	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS → Recovery → Auth → Routes
	h = middleware.AuthMiddleware(jwtVerifier)(h)
	h = middleware.Recovery(logger)(h)

	// CORS - Must be before auth to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
	})
	h = corsHandler.Handler(h)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disabled to allow long-lived streaming responses
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	logger.Info("server listening", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// setupModelRegistry wires providers and model aliases for the current
// environment. Client-facing model ids are stable aliases; the upstream
// model behind each alias is a deployment detail.
func setupModelRegistry(cfg *config.Config, logger *slog.Logger) *llm.Registry {
	registry := llm.NewRegistry()

	switch cfg.Environment {
	case "test":
		// Deterministic canned responses for API tests.
		registry.RegisterProvider(fixture.NewProvider())
		registry.RegisterModel(llm.ModelSpec{
			ID:            "chat-model",
			Provider:      "fixture",
			UpstreamModel: "chat-model",
		})
		registry.RegisterModel(llm.ModelSpec{
			ID:            "chat-model-reasoning",
			Provider:      "fixture",
			UpstreamModel: "chat-model-reasoning",
			ReasoningTag:  "think",
		})
		logger.Info("model registry configured", "provider", "fixture")
		return registry
	}

	if cfg.OpenAIAPIKey != "" {
		registry.RegisterProvider(openai.NewProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL))
		registry.RegisterModel(llm.ModelSpec{
			ID:            "chat-model",
			Provider:      "openai",
			UpstreamModel: "gpt-4.1",
		})
		registry.RegisterModel(llm.ModelSpec{
			ID:            "chat-model-reasoning",
			Provider:      "openai",
			UpstreamModel: "o4-mini",
			ReasoningTag:  "think",
		})
		logger.Info("model registry configured", "provider", "openai")
		return registry
	}

	// No API key: fall back to generated lorem text so dev environments
	// work offline.
	registry.RegisterProvider(lorem.NewProvider())
	registry.RegisterModel(llm.ModelSpec{
		ID:            "chat-model",
		Provider:      "lorem",
		UpstreamModel: "chat-model",
	})
	registry.RegisterModel(llm.ModelSpec{
		ID:            "chat-model-reasoning",
		Provider:      "lorem",
		UpstreamModel: "chat-model-reasoning",
		ReasoningTag:  "think",
	})
	logger.Warn("OPENAI_API_KEY not set, using lorem provider")
	return registry
}
