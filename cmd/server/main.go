package main

import (
	"context"
	"log"
	"net/http"
	"time"

	mstream "github.com/haowjy/meridian-stream-go"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/hemantsingh443/allchat-sub000/internal/auth"
	"github.com/hemantsingh443/allchat-sub000/internal/capabilities"
	"github.com/hemantsingh443/allchat-sub000/internal/config"
	"github.com/hemantsingh443/allchat-sub000/internal/domain/repositories"
	"github.com/hemantsingh443/allchat-sub000/internal/handler"
	"github.com/hemantsingh443/allchat-sub000/internal/middleware"
	"github.com/hemantsingh443/allchat-sub000/internal/repository/memory"
	"github.com/hemantsingh443/allchat-sub000/internal/repository/postgres"
	serviceAuth "github.com/hemantsingh443/allchat-sub000/internal/service/auth"
	serviceChat "github.com/hemantsingh443/allchat-sub000/internal/service/chat"
	serviceLLM "github.com/hemantsingh443/allchat-sub000/internal/service/llm"
	serviceSession "github.com/hemantsingh443/allchat-sub000/internal/service/session"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg := config.Load()

	logger, closeLog := config.NewLogger(cfg)
	defer closeLog()

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
	)

	ctx := context.Background()

	if cfg.AuthJWKSURL == "" {
		log.Fatal("AUTH_JWKS_URL or SUPABASE_URL must be set")
	}
	jwtVerifier, err := auth.NewJWTVerifier(ctx, cfg.AuthJWKSURL, logger)
	if err != nil {
		log.Fatalf("Failed to create JWT verifier: %v", err)
	}
	defer jwtVerifier.Close()

	// Repositories: Postgres when configured, otherwise an in-process store
	var (
		chatRepo    repositories.ChatRepository
		messageRepo repositories.MessageRepository
		txManager   repositories.TransactionManager
	)
	if cfg.DatabaseURL != "" {
		pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{
			MaxConns: int32(cfg.DBMaxConns),
			MinConns: int32(cfg.DBMinConns),
		}, logger)
		if err != nil {
			log.Fatalf("Failed to create connection pool: %v", err)
		}
		defer pool.Close()

		if cfg.AutoMigrate {
			if err := postgres.EnsureSchema(ctx, pool, cfg.TablePrefix, logger); err != nil {
				log.Fatalf("Failed to apply schema: %v", err)
			}
		}

		repoConfig := &postgres.RepositoryConfig{
			Pool:   pool,
			Tables: postgres.NewTableNames(cfg.TablePrefix),
			Logger: logger,
		}
		chatRepo = postgres.NewChatRepository(repoConfig)
		messageRepo = postgres.NewMessageRepository(repoConfig)
		txManager = postgres.NewTransactionManager(pool, logger)
	} else {
		logger.Warn("DATABASE_URL not set - chats are kept in memory and lost on restart")
		store := memory.NewStore()
		chatRepo = store.Chats()
		messageRepo = store.Messages()
		txManager = store.TxManager()
	}

	capabilityRegistry, err := capabilities.NewRegistry()
	if err != nil {
		log.Fatalf("Failed to initialize capability registry: %v", err)
	}

	providerRegistry, err := serviceLLM.SetupProviders(cfg, capabilityRegistry, logger)
	if err != nil {
		log.Fatalf("Failed to setup LLM providers: %v", err)
	}
	augmenter := serviceLLM.SetupAugmenter(cfg, logger)

	streamRegistry := mstream.NewRegistry()
	go streamRegistry.StartCleanup(ctx)

	authorizer := serviceAuth.NewOwnerBasedAuthorizer(chatRepo, messageRepo)
	chatService := serviceChat.NewService(chatRepo, messageRepo, txManager, authorizer, logger)
	sessionService := serviceSession.NewService(
		chatRepo,
		messageRepo,
		txManager,
		authorizer,
		providerRegistry,
		augmenter,
		streamRegistry,
		cfg,
		logger,
	)

	chatHandler := handler.NewChatHandler(chatService, logger)
	sessionHandler := handler.NewSessionHandler(sessionService, nil, logger)
	modelsHandler := handler.NewModelsHandler(
		capabilityRegistry,
		serviceLLM.NewCredentialPolicy(cfg).Available(),
		cfg.DefaultModel,
		logger,
	)

	logger.Info("services initialized", "guest_enabled", cfg.GuestEnabled)

	// Create HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handler.HealthCheck)
	mux.HandleFunc("GET /api/models", modelsHandler.ListModels)

	// Chat routes
	mux.HandleFunc("GET /api/chats", chatHandler.ListChats)
	mux.HandleFunc("GET /api/chats/{id}", chatHandler.GetChat)
	mux.HandleFunc("PATCH /api/chats/{id}", chatHandler.UpdateChat)
	mux.HandleFunc("DELETE /api/chats/{id}", chatHandler.DeleteChat)
	mux.HandleFunc("POST /api/chats/{id}/share", chatHandler.ShareChat)
	mux.HandleFunc("DELETE /api/chats/{id}/share", chatHandler.UnshareChat)
	mux.HandleFunc("DELETE /api/messages/{id}", chatHandler.DeleteMessage)
	mux.HandleFunc("POST /api/chat/branch", chatHandler.Branch)
	mux.HandleFunc("GET /api/share/{shareId}", chatHandler.GetSharedChat)

	// Streaming routes
	mux.HandleFunc("POST /api/chat", sessionHandler.Send)
	mux.HandleFunc("POST /api/chat/edit", sessionHandler.EditAndResubmit)
	mux.HandleFunc("POST /api/chat/regenerate", sessionHandler.Regenerate)
	mux.HandleFunc("POST /api/streams/{id}/interrupt", sessionHandler.Interrupt)
	mux.HandleFunc("POST /api/guest/chat", sessionHandler.GuestChat)

	// Build middleware chain
	var h http.Handler = mux

	// Order: CORS → RequestLogger → Recovery → Auth → Routes
	h = middleware.Auth(jwtVerifier, logger)(h)
	h = middleware.Recovery(logger)(h)
	h = middleware.RequestLogger(logger)(h)

	// CORS - Must be outermost to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOriginList(),
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposedHeaders:   []string{handler.StreamIDHeader, middleware.RequestIDHeader},
		AllowCredentials: true,
	})
	h = corsHandler.Handler(h)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disabled to allow long-lived streams
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("server listening", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}
