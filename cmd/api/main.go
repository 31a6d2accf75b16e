package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	pkgvalidator "github.com/johnquangdev/meeting-transcriber/pkg/validator"

	"github.com/johnquangdev/meeting-transcriber/internal/adapter/handler"
	"github.com/johnquangdev/meeting-transcriber/internal/adapter/repository"
	"github.com/johnquangdev/meeting-transcriber/internal/domain/engine"
	"github.com/johnquangdev/meeting-transcriber/internal/infrastructure/cache"
	"github.com/johnquangdev/meeting-transcriber/internal/infrastructure/database"
	"github.com/johnquangdev/meeting-transcriber/internal/infrastructure/external/funasr"
	"github.com/johnquangdev/meeting-transcriber/internal/infrastructure/external/speaker"
	httpmw "github.com/johnquangdev/meeting-transcriber/internal/infrastructure/http/middleware"
	"github.com/johnquangdev/meeting-transcriber/internal/infrastructure/storage"
	"github.com/johnquangdev/meeting-transcriber/internal/usecase/fusion"
	"github.com/johnquangdev/meeting-transcriber/internal/usecase/realtime"
	"github.com/johnquangdev/meeting-transcriber/internal/usecase/voiceprint"
	pkgai "github.com/johnquangdev/meeting-transcriber/pkg/ai"
	"github.com/johnquangdev/meeting-transcriber/pkg/config"
	"github.com/johnquangdev/meeting-transcriber/pkg/jwt"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg.Server.Environment)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize Echo instance
	e := echo.New()
	e.Validator = pkgvalidator.New()
	e.HideBanner = true
	e.HidePort = false

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "${time_rfc3339} | ${status} | ${method} ${uri} | ${latency_human}\n",
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Cookie"},
		AllowCredentials: true,
	}))

	log.Println("🔧 Initializing dependencies...")
	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer bootCancel()

	// Database
	log.Println("📦 Connecting to database...")
	db, err := database.NewPostgresDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.CloseDB(db)

	if cfg.Database.AutoMigrate {
		log.Println("🔄 Applying migrations from ./migrations ...")
		if err := database.AutoMigrate(db, "migrations"); err != nil {
			log.Fatalf("Failed to apply migrations: %v", err)
		}
	} else {
		log.Println("🔄 Skipping migrations; run scripts/migrate.go in CI/CD/production")
	}

	// Sample archive
	var (
		archive      voiceprint.SampleArchive
		storageCheck engine.HealthChecker
	)
	if cfg.Storage.Enabled {
		log.Println("🗄️  Connecting to object storage...")
		a, err := storage.NewSampleArchive(bootCtx, &cfg.Storage)
		if err != nil {
			log.Fatalf("Failed to initialize storage: %v", err)
		}
		archive, storageCheck = a, a
	}

	// Session coordination
	tombstones := cache.NewMemoryStore()
	defer tombstones.Close()

	var lock realtime.MeetingLock = cache.NewMemoryMeetingLock(tombstones)
	if cfg.Redis.Enabled {
		log.Println("📦 Connecting to Redis...")
		redisClient, err := cache.NewRedisClient(cfg)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		lock = cache.NewRedisMeetingLock(redisClient)
	}

	// Speech engines
	log.Println("🤖 Initializing speech engines...")
	speakerClient := speaker.NewClient(cfg.Engines.SpeakerURL, cfg.Engines.SpeakerTimeout, logger)
	dialer := funasr.NewDialer(cfg.Engines.FunASRWSURL, logger)

	checks := map[string]engine.HealthChecker{
		"speaker": speakerClient,
		"storage": storageCheck,
	}

	var transcriber engine.Transcriber
	switch cfg.Engines.ASRProvider {
	case "assemblyai":
		transcriber = pkgai.NewAssemblyAITranscriber(cfg.AssemblyAI.APIKey, cfg.AssemblyAI.Language, logger)
		log.Println("✅ Batch ASR: AssemblyAI")
	default:
		funasrClient := funasr.NewClient(cfg.Engines.FunASRHTTPURL, cfg.Engines.FunASRTimeout, logger)
		transcriber = funasrClient
		checks["funasr"] = funasrClient
		log.Printf("✅ Batch ASR: FunASR at %s", cfg.Engines.FunASRHTTPURL)
	}

	// Voiceprints
	log.Println("🎙️  Loading voiceprint gallery...")
	galleryCfg := voiceprint.DefaultGalleryConfig()
	galleryCfg.MinSamples = cfg.Voiceprint.MinSamples
	galleryCfg.MaxSamples = cfg.Voiceprint.MaxSamples
	gallery := voiceprint.NewGallery(repository.NewVoiceprintRepository(db), speakerClient, archive, galleryCfg, logger)
	if err := gallery.Load(bootCtx); err != nil {
		log.Fatalf("Failed to load voiceprint gallery: %v", err)
	}
	log.Printf("✅ %d voiceprints loaded", gallery.Len())

	matcher := voiceprint.NewMatcher(gallery, speakerClient, voiceprint.MatcherConfig{
		Threshold:   cfg.Voiceprint.Threshold,
		Scale:       voiceprint.SimilarityScale(cfg.Voiceprint.SimilarityScale),
		DefaultTopK: cfg.Voiceprint.TopK,
	}, logger)

	// Batch fusion
	fusionCfg := fusion.DefaultConfig()
	fusionCfg.MinRepresentative = cfg.Fusion.MinRepresentative
	fusionCfg.MaxRepresentative = cfg.Fusion.MaxRepresentative
	fusionCfg.SentenceGap = cfg.Fusion.SentenceGap
	fusionCfg.MatchConcurrency = cfg.Fusion.MatchConcurrency
	fusionCfg.TempDir = cfg.Fusion.TempDir
	fusionEngine := fusion.NewEngine(speakerClient, transcriber, matcher, fusionCfg, logger)

	// Realtime sessions
	sessions := realtime.NewManager(dialer, tombstones, lock, realtime.Config(cfg.Realtime), logger)

	// Auth
	log.Println("🔑 Initializing JWT manager...")
	jwtManager := jwt.NewManager(cfg.JWT.AccessSecret, cfg.JWT.AccessExpiry)
	authMW := httpmw.EchoAuth(jwtManager, handler.NewErrorWriter(logger))

	// Routes
	log.Println("🛣️  Setting up routes...")
	router := handler.NewRouter(
		authMW,
		handler.NewHealthHandler(cfg.Server.Environment, checks),
		handler.NewVoiceprintHandler(gallery, matcher, logger),
		handler.NewTranscriptionHandler(fusionEngine, cfg.Fusion.Timeout, cfg.Fusion.TempDir, logger),
		handler.NewRealtimeHandler(sessions, cfg.Server.AllowedOrigins, logger),
	)
	router.Setup(e)

	// Start server
	go func() {
		addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
		log.Printf("🚀 Starting server on %s", addr)
		log.Printf("📝 Environment: %s", cfg.Server.Environment)
		log.Printf("🔗 Health check: http://%s/health", addr)

		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := sessions.Shutdown(ctx); err != nil {
		log.Printf("⚠️  Realtime sessions did not drain: %v", err)
	}
	if err := e.Shutdown(ctx); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server stopped gracefully")
}

func newLogger(environment string) (*zap.Logger, error) {
	if environment == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
