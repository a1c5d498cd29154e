package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/sqlquest/sqlquest-api/internal/adaptive"
	"github.com/sqlquest/sqlquest-api/internal/config"
	"github.com/sqlquest/sqlquest-api/internal/database"
	"github.com/sqlquest/sqlquest-api/internal/events"
	"github.com/sqlquest/sqlquest-api/internal/grading"
	"github.com/sqlquest/sqlquest-api/internal/handler"
	"github.com/sqlquest/sqlquest-api/internal/middleware"
	"github.com/sqlquest/sqlquest-api/internal/observability"
	"github.com/sqlquest/sqlquest-api/internal/ratelimit"
	"github.com/sqlquest/sqlquest-api/internal/repository"
	"github.com/sqlquest/sqlquest-api/internal/router"
	"github.com/sqlquest/sqlquest-api/internal/sandbox"
	"github.com/sqlquest/sqlquest-api/internal/service"
	"github.com/sqlquest/sqlquest-api/internal/sqlcheck"
	"github.com/sqlquest/sqlquest-api/pkg/ai"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	if err := database.EnsureInventory(cfg.SandboxPath); err != nil {
		log.Fatalf("failed to prepare inventory sandbox: %v", err)
	}

	budget := sandbox.Budget{Timeout: cfg.QueryTimeout, MaxRows: cfg.MaxResultRows}
	executor, err := sandbox.Open(sandbox.Config{
		Path:         cfg.SandboxPath,
		Workers:      cfg.SandboxWorkers,
		QueueSize:    cfg.SandboxQueueSize,
		MaxQueueWait: cfg.SandboxQueueWait,
		Default:      budget,
		Logger:       logger,
	})
	if err != nil {
		log.Fatalf("failed to open sandbox executor: %v", err)
	}
	defer executor.Close()

	studentRepo := repository.NewStudentRepository(db)
	challengeRepo := repository.NewChallengeRepository(db)
	attemptRepo := repository.NewAttemptRepository(db)
	eventRepo := repository.NewEventRepository(db)

	sinks := []events.Sink{events.NewLogSink(logger), events.NewStoreSink(eventRepo)}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = nats.Connect(cfg.NATSURL)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Drain()
		sinks = append(sinks, events.NewNATSSink(natsConn, ""))
	}

	dispatcher := events.NewDispatcher(cfg.EventBufferSize, logger, sinks...)
	dispatcher.Start()
	defer dispatcher.Close()

	limCfg := ratelimit.DefaultConfig()
	limCfg.BurstLimit = cfg.BurstLimit
	limCfg.ShortLimitStudent = cfg.SustainedStudent
	limCfg.ShortLimitInstructor = cfg.SustainedInstructor
	limCfg.DailyLimitStudent = cfg.DailyStudent
	limCfg.DailyLimitInstructor = cfg.DailyInstructor
	limiter := ratelimit.NewLimiter(limCfg)

	detector := ratelimit.NewDetector(ratelimit.DefaultDetectorConfig())

	controller := adaptive.NewController(adaptive.Config{
		WindowSize:       cfg.DifficultyWindow,
		PromoteThreshold: cfg.PromoteThreshold,
		DemoteThreshold:  cfg.DemoteThreshold,
	})

	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelBoot()

	// Skill state lives in memory; restore the persisted tier and the recent
	// score window for every known student so a restart does not reset anyone
	// to the default or wipe their progress toward the next transition.
	students, err := studentRepo.ListAll(bootCtx)
	if err != nil {
		log.Fatalf("failed to load students: %v", err)
	}
	for _, student := range students {
		controller.SetTier(student.ExternalID, adaptive.Tier(student.Tier))
		scores, err := attemptRepo.RecentScores(bootCtx, student.ID, cfg.DifficultyWindow)
		if err != nil {
			log.Fatalf("failed to load recent scores: %v", err)
		}
		// RecentScores is newest-first; the window wants oldest-first
		for i, j := 0, len(scores)-1; i < j; i, j = i+1, j-1 {
			scores[i], scores[j] = scores[j], scores[i]
		}
		controller.SeedWindow(student.ExternalID, scores)
	}

	var expectedCache *service.ExpectedCache
	if cfg.RedisURL != "" {
		client, err := database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer client.Close()
		expectedCache = service.NewExpectedCache(client, cfg.ExpectedCacheTTL, logger)
	} else {
		expectedCache = service.NewExpectedCache(nil, cfg.ExpectedCacheTTL, logger)
	}

	seedService := service.NewSeedService(challengeRepo, executor, budget, expectedCache, logger)
	if created, err := seedService.SeedChallenges(bootCtx, service.DefaultChallengeFixtures()); err != nil {
		log.Fatalf("failed to seed challenges: %v", err)
	} else if created > 0 {
		logger.Info().Int("created", created).Msg("seeded challenges")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	schema := sqlcheck.InventorySchema()

	submissionService := service.NewSubmissionService(service.SubmissionDeps{
		Students:   studentRepo,
		Challenges: challengeRepo,
		Attempts:   attemptRepo,
		Limiter:    limiter,
		Schema:     schema,
		Executor:   executor,
		Budget:     budget,
		Expected:   expectedCache,
		GradeCfg:   grading.Config{PenaltyFloor: 0.1},
		Detector:   detector,
		Difficulty: controller,
		Dispatcher: dispatcher,
		Validator:  validate,
		Logger:     logger,
	})
	challengeService := service.NewChallengeService(studentRepo, challengeRepo, controller, logger)
	instructorService := service.NewInstructorService(studentRepo, attemptRepo, eventRepo, controller, logger)

	deps := router.Dependencies{
		SubmissionHandler: handler.NewSubmissionHandler(submissionService, logger),
		ChallengeHandler:  handler.NewChallengeHandler(challengeService, logger),
		InstructorHandler: handler.NewInstructorHandler(instructorService, logger),
		Sandbox:           executor,
	}

	if cfg.AIProvider == "openai" && cfg.OpenAIAPIKey != "" {
		generator, err := ai.NewOpenAIGenerator(ai.OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIModel,
			Logger: logger,
		})
		if err != nil {
			log.Fatalf("failed to create query generator: %v", err)
		}
		generationService := service.NewGenerationService(studentRepo, challengeRepo, limiter, generator, schema, dispatcher, validate, logger)
		deps.GenerationHandler = handler.NewGenerationHandler(generationService, logger)
	} else {
		logger.Warn().Msg("query generation disabled: no AI credentials configured")
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, deps)
	app.Get("/metrics", observability.MetricsHandler())

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
