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

	"golang-prediction-engine/internal/engine/config"
	"golang-prediction-engine/internal/engine/delivery/consumer"
	delivery "golang-prediction-engine/internal/engine/delivery/http"
	"golang-prediction-engine/internal/engine/dispatch"
	"golang-prediction-engine/internal/engine/repository"
	"golang-prediction-engine/internal/engine/service"
	"golang-prediction-engine/pkg/common"
	"golang-prediction-engine/pkg/logger"
	"golang-prediction-engine/pkg/postgres"
	"golang-prediction-engine/pkg/redis"
	"golang-prediction-engine/pkg/telegram"

	"github.com/labstack/echo/v4"
	gocache "github.com/patrickmn/go-cache"
	"github.com/spf13/cobra"
	"google.golang.org/genai"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the prediction engine service",
	Run:   runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	appLogger, err := logger.New(cfg.Logger.Level, cfg.Logger.Encoding)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	appLogger.Info("Starting Prediction Engine", logger.StringField("name", cfg.App.Name))

	// Initialize database
	postgresCfg := postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}
	db, err := postgres.NewDB(postgresCfg)
	if err != nil {
		appLogger.Fatal("Failed to initialize database", logger.ErrorField(err))
	}
	if sqlDB, err := db.DB.DB(); err == nil {
		defer sqlDB.Close()
	}

	// Initialize Redis
	redisCfg := redis.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}
	redisClient, err := redis.NewClient(redisCfg)
	if err != nil {
		appLogger.Fatal("Failed to initialize Redis", logger.ErrorField(err))
	}
	defer redisClient.Close()

	// Create the consumer groups, MKSTREAM creates missing streams
	for _, stream := range []string{
		common.RedisStreamSignalSweep,
		common.RedisStreamSignalDetection,
		common.RedisStreamReplayRun,
	} {
		if err := redisClient.XGroupCreateMkStream(context.Background(), stream, common.RedisStreamGroup, "0").Err(); err != nil {
			if err.Error() != "BUSYGROUP Consumer Group name already exists" {
				appLogger.Fatal("Failed to create consumer group", logger.ErrorField(err))
			}
		}
	}

	// Initialize repositories
	signalRepo := repository.NewSignalRepository(db.DB)
	predictorRepo := repository.NewPredictorRepository(db.DB)
	predictionRepo := repository.NewPredictionRepository(db.DB)
	snapshotRepo := repository.NewSnapshotRepository(db.DB)
	analystRepo := repository.NewAnalystRepository(db.DB)
	learningRepo := repository.NewLearningRepository(db.DB)
	replayRepo := repository.NewReplayRepository(db.DB)
	feedRepo := repository.NewFeedRepository(appLogger)

	genAiClient, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.Gemini.APIKey,
	})
	if err != nil {
		appLogger.Fatal("Failed to initialize Gemini client", logger.ErrorField(err))
	}
	assessorRepo, err := repository.NewGeminiAssessorRepository(cfg, appLogger, genAiClient)
	if err != nil {
		appLogger.Fatal("Failed to initialize assessor repository", logger.ErrorField(err))
	}

	telegramNotifier, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	if err != nil {
		appLogger.Fatal("Failed to initialize Telegram notifier", logger.ErrorField(err))
	}

	// Initialize services
	ensembleSvc := service.NewEnsembleEngine(cfg, appLogger, db.DB,
		predictorRepo, predictionRepo, snapshotRepo, analystRepo, learningRepo, signalRepo, telegramNotifier)
	processorSvc := service.NewSignalProcessor(cfg, appLogger,
		signalRepo, predictorRepo, analystRepo, learningRepo, assessorRepo, feedRepo, ensembleSvc)
	snapshotSvc := service.NewSnapshotService(appLogger, snapshotRepo, predictionRepo, predictorRepo, signalRepo)
	evaluationSvc := service.NewEvaluationService(appLogger, predictionRepo,
		gocache.New(gocache.NoExpiration, 10*time.Minute))
	learningSvc := service.NewLearningService(appLogger, learningRepo)
	promotionSvc := service.NewPromotionService(appLogger, db.DB,
		learningRepo, predictionRepo, snapshotRepo, cfg.Engine.BacktestWindowDays, telegramNotifier)
	replaySvc := service.NewReplayService(appLogger,
		replayRepo, signalRepo, predictorRepo, predictionRepo, processorSvc, ensembleSvc, telegramNotifier)
	analystSvc := service.NewAnalystService(appLogger, analystRepo)
	workerSvc := service.NewWorkerService(cfg, appLogger, redisClient.Client, processorSvc, replaySvc, telegramNotifier)
	schedulerSvc := service.NewSchedulerService(cfg, appLogger, redisClient.Client, processorSvc)

	// Wire the action dispatcher
	dispatcher := dispatch.NewDispatcher(appLogger)
	dispatch.RegisterSignalActions(dispatcher, signalRepo, processorSvc)
	dispatch.RegisterSnapshotActions(dispatcher, snapshotSvc)
	dispatch.RegisterEvaluationActions(dispatcher, evaluationSvc)
	dispatch.RegisterLearningActions(dispatcher, learningSvc, promotionSvc)
	dispatch.RegisterReplayActions(dispatcher, replaySvc)
	dispatch.RegisterAnalystActions(dispatcher, analystSvc)

	// Start background workers
	go schedulerSvc.Start(ctx)
	redisConsumer := consumer.NewRedisConsumer(cfg, redisClient.Client, workerSvc, appLogger)
	redisConsumer.Start(ctx)

	// Initialize Echo server
	e := echo.New()
	e.HideBanner = true

	actionHandler := delivery.NewActionHandler(dispatcher, appLogger)
	apiV1 := e.Group("/api/v1")
	actionHandler.RegisterRoutes(apiV1)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.API.Port)
		appLogger.Info("HTTP server starting", logger.StringField("address", addr))
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			appLogger.Error("HTTP server failed to start", logger.ErrorField(err))
			stop()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()

	appLogger.Info("Shutting down prediction engine...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", logger.ErrorField(err))
	}
	redisConsumer.Stop()

	appLogger.Info("Prediction engine stopped")
}

func main() {
	rootCmd := &cobra.Command{Use: "prediction-service"}

	serveCmd.Flags().StringVarP(&configPath, "config", "c", "configs/config-engine.yaml", "Path to the configuration file")

	rootCmd.AddCommand(serveCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing prediction-service CLI: %s\n", err)
		os.Exit(1)
	}
}
