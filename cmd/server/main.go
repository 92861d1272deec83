package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/postpilot/publisher/configs"
	"github.com/postpilot/publisher/internal/api/handlers"
	"github.com/postpilot/publisher/internal/api/middleware"
	job "github.com/postpilot/publisher/internal/jobs"
	"github.com/postpilot/publisher/internal/queue"
	"github.com/postpilot/publisher/internal/repository"
	"github.com/postpilot/publisher/internal/service"
	"github.com/robfig/cron"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		MaxAge:       3600,
	}))

	accountRepo := repository.NewAccountRepository(db)
	postRepo := repository.NewScheduledPostRepository(db)
	attemptLogRepo := repository.NewAttemptLogRepository(db)

	accountService := service.NewAccountService(accountRepo)
	postService := service.NewPostService(postRepo, accountRepo)
	publishService := service.NewPublishService(*cfg, postRepo, attemptLogRepo)
	notifier := service.NewWebhookNotifier(*cfg)
	storageService := service.NewStorageService(*cfg)
	processorService := service.NewProcessorService(*cfg, postRepo, accountService, publishService, notifier, storageService)

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	internal := app.Group("/internal")
	internal.Use(authMiddleware.SchedulerAuth())

	scheduler := handlers.NewSchedulerHandler(processorService, attemptLogRepo)
	internal.Post("/process/pending", scheduler.ProcessPending)
	internal.Post("/process/retries", scheduler.ProcessRetries)
	internal.Get("/stats", scheduler.GetStats)
	internal.Get("/posts/:id/attempts", scheduler.ListAttempts)

	post := handlers.NewPostHandler(postService, client)
	internal.Post("/posts/create", post.CreatePost)
	internal.Post("/posts/:id/cancel", post.CancelPost)
	internal.Get("/posts/:id", post.GetPost)

	// cron jobs
	publishJob := job.NewPublishJob(processorService)
	credentialWatchJob := job.NewCredentialWatchJob(accountRepo, accountService, notifier)

	// queue
	queueW := queue.NewQueue(processorService)

	c := cron.New()
	c.AddFunc("@every 00h03m00s", publishJob.RunPending)
	c.AddFunc("@every 00h10m00s", publishJob.RunRetries)
	c.AddFunc("@every 24h00m00s", credentialWatchJob.WarnExpiring)
	c.Start()

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency: 10,
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypePublishPost, queueW.HandlePublishPostTask)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(":3000"); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Println("Server is running on http://localhost:3000")

	gracefulShutdown(app, db)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
