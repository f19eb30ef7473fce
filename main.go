package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"salonflow/config"
	"salonflow/cron"
	"salonflow/database"
	bookingRepo "salonflow/database/repository/booking"
	catalogRepo "salonflow/database/repository/catalog"
	conversationRepo "salonflow/database/repository/conversation"
	statsRepo "salonflow/database/repository/stats"
	"salonflow/middleware"
	"salonflow/routes"
	"salonflow/services/agent"
	"salonflow/services/aggregator"
	"salonflow/services/availability"
	"salonflow/services/booking"
	"salonflow/services/calendar"
	"salonflow/services/catalog"
	"salonflow/services/gate"
	"salonflow/services/messaging"
	"salonflow/services/processor"
	"salonflow/services/ratelimit"
	"salonflow/services/transcribe"
	"salonflow/utils"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

func main() {
	config.LoadConfig()
	logger := utils.GetLogger()

	database.InitDB()
	utils.InitCache()
	utils.InitContextCache()

	loc, err := time.LoadLocation(config.AppConfig.CalendarTimezone)
	if err != nil {
		logger.Sugar().Warnf("main: unknown timezone %q, falling back to local: %v", config.AppConfig.CalendarTimezone, err)
		loc = time.Local
	}

	// Create the Gin router.
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.ErrorHandler())
	router.Use(gin.Logger())
	router.Use(middleware.RateLimitMiddleware())

	// repositories.
	bookings := bookingRepo.NewMongoBookingRepo()
	conversations := conversationRepo.NewMongoConversationRepo()
	catalogs := catalogRepo.NewMongoCatalogRepo()
	stats := statsRepo.NewMongoStatsRepo()

	cacheClient := utils.GetCacheClient()
	contextClient := utils.GetContextCacheClient()

	// services.
	limiter := ratelimit.NewLimiter(cacheClient, config.AppConfig.RateLimitMax, config.RateLimitWindow())

	flushScheduler := aggregator.NewAsynqFlushScheduler(asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	})
	defer flushScheduler.Close()
	buffer := aggregator.NewAggregator(cacheClient, flushScheduler, config.TurnFlushDelay(), logger)

	contexts := agent.NewContextStore(contextClient, logger)
	convGate := gate.NewGate(conversations, cacheClient, contexts, logger)

	ctx := context.Background()

	var cal calendar.Client
	cal, err = calendar.NewGoogleClient(ctx, config.AppConfig.GoogleServiceAccountFile, config.AppConfig.CalendarTimezone)
	if err != nil {
		logger.Sugar().Fatalf("main: failed to initialize calendar client: %v", err)
	}

	oracle := availability.NewOracle(
		cal,
		bookings,
		cacheClient,
		time.Duration(config.AppConfig.AvailabilityCacheTTLSec)*time.Second,
		config.AppConfig.BusinessOpenHour,
		config.AppConfig.BusinessCloseHour,
		logger,
	)

	catalogSvc := catalog.NewService(catalogs, cacheClient, logger)

	locker := booking.NewProviderLocker(cacheClient)
	engine := booking.NewEngine(
		bookings,
		catalogSvc,
		oracle,
		locker,
		cal,
		config.AppConfig.CalendarID,
		config.AppConfig.BusinessOpenHour,
		config.AppConfig.BusinessCloseHour,
		logger,
	)

	messenger := messaging.NewClient(
		config.AppConfig.MessagingBaseURL,
		config.AppConfig.MessagingAPIToken,
		strconv.Itoa(config.AppConfig.MessagingAccountID),
		logger,
	)

	decider, err := agent.NewGeminiDecider(ctx, config.AppConfig.GeminiAPIKey, config.AppConfig.GeminiModel)
	if err != nil {
		logger.Sugar().Fatalf("main: failed to initialize gemini client: %v", err)
	}

	transcriber, err := transcribe.NewGoogleTranscriber(ctx, config.AppConfig.GoogleServiceAccountFile)
	if err != nil {
		logger.Sugar().Warnf("main: speech client unavailable, audio messages will be skipped: %v", err)
		transcriber = nil
	}

	proc := processor.New(processor.Deps{
		Limiter:     limiter,
		Buffer:      buffer,
		Gate:        convGate,
		Convs:       conversations,
		Bookings:    engine,
		Slots:       oracle,
		Catalog:     catalogSvc,
		Decider:     decider,
		Contexts:    contexts,
		Messenger:   messenger,
		Transcriber: transcriber,
		Stats:       stats,
		Dedupe:      cacheClient,
		Keywords:    config.NormalizedPauseKeywords(),
		Location:    loc,
		Logger:      logger,
	})

	// Background workers.
	worker := cron.NewWorker(proc, bookings, conversations, messenger, stats, catalogSvc, oracle, cal, loc)
	worker.Run()
	cron.StartScheduler(loc)

	routes.RegisterRoutes(router, routes.Deps{
		Processor: proc,
		Gate:      convGate,
		Catalog:   catalogSvc,
		Stats:     stats,
	})

	// Start the HTTP server.
	port := config.AppConfig.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	// Wait for an OS signal to gracefully shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Sugar().Fatalf("main: server forced to shutdown: %v", err)
	}
	logger.Info("Server exited gracefully")
}
