package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"lectura/adapters/llm"
	"lectura/adapters/memstore"
	"lectura/adapters/mongo"
	"lectura/adapters/s3"
	"lectura/adapters/stt"
	"lectura/domain/repositories"
	"lectura/internal/api"
	"lectura/internal/auth"
	"lectura/internal/events"
	"lectura/internal/media"
	"lectura/internal/pipeline"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Object storage: S3 when a bucket is configured, in-memory otherwise
	var objects repositories.ObjectStore
	if bucket := os.Getenv("LECTURA_S3_BUCKET"); bucket != "" {
		store, err := s3.NewObjectStore(bucket)
		if err != nil {
			logger.Fatal("failed to initialize object storage", zap.Error(err))
		}
		objects = store
		logger.Info("using S3 object storage", zap.String("bucket", bucket))
	} else {
		objects = memstore.NewObjectStore()
		logger.Warn("no LECTURA_S3_BUCKET configured, chunks are held in memory")
	}

	// Lecture metadata store
	mongoClient, err := mongo.NewClient(logger)
	if err != nil {
		logger.Fatal("failed to connect to lecture store", zap.Error(err))
	}
	defer mongoClient.Close(context.Background())
	lectures := mongo.NewLectureRepository(mongoClient.Database)

	// Speech-to-text backend
	var transcriber repositories.Transcriber
	switch os.Getenv("LECTURA_STT_PROVIDER") {
	case "google":
		transcriber = stt.NewGoogleTranscriber(logger)
	default:
		transcriber, err = stt.NewWhisperTranscriber(logger)
		if err != nil {
			logger.Fatal("failed to initialize transcriber", zap.Error(err))
		}
	}

	// Text generation backend
	var generator repositories.TextGenerator
	switch os.Getenv("LECTURA_LLM_PROVIDER") {
	case "gemini":
		generator, err = llm.NewGeminiLLM(logger)
	default:
		generator, err = llm.NewOpenAILLM(logger)
	}
	if err != nil {
		logger.Fatal("failed to initialize text generator", zap.Error(err))
	}

	bus := events.NewBus(logger)
	processor := media.NewProcessor(nil, logger)
	service := pipeline.NewService(objects, lectures, transcriber, generator,
		processor, bus, pipeline.Config{}, logger)

	// Initialize API routes
	api.InitRoutes(e, api.Deps{
		Processor: service,
		Lectures:  lectures,
		Objects:   objects,
		Bus:       bus,
		Verifier:  auth.NewVerifier(os.Getenv("LECTURA_JWT_SECRET")),
		Logger:    logger,
	})

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("port", port))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
