package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/plmhub/backend/internal/config"
	"github.com/plmhub/backend/internal/database"
	"github.com/plmhub/backend/internal/handlers"
	"github.com/plmhub/backend/internal/middleware"
	"github.com/plmhub/backend/internal/services"
	"github.com/plmhub/backend/internal/storage"
	"github.com/plmhub/backend/pkg/logger"
	"github.com/plmhub/backend/pkg/utils"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	if err := database.SeedAdminUser(db, cfg.Server.AdminEmail, cfg.Server.AdminInitPwd); err != nil {
		log.Fatalf("admin seed failed: %v", err)
	}

	storageClient, err := storage.NewMinIOClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("minio initialization failed: %v", err)
	}
	if err := storageClient.EnsureBucket(context.Background()); err != nil {
		log.Fatalf("failed ensuring minio bucket: %v", err)
	}

	containerService := services.NewContainerService(db)
	uploadService := services.NewUploadService(db, storageClient)

	authHandler := handlers.NewAuthHandler(db)
	productsHandler := handlers.NewProductsHandler(db, storageClient)
	containersHandler := handlers.NewContainersHandler(db, containerService, storageClient)
	filesHandler := handlers.NewFilesHandler(db, storageClient, uploadService)
	revisionsHandler := handlers.NewRevisionsHandler(db, storageClient)

	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: cfg.Server.BodyLimitMB * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)

	productRoutes := api.Group("/products", authMiddleware.RequireAuth)
	productRoutes.Post("/", productsHandler.Create)
	productRoutes.Get("/", productsHandler.List)
	productRoutes.Get("/:id", productsHandler.Get)
	productRoutes.Put("/:id", productsHandler.Update)
	productRoutes.Delete("/:id", productsHandler.Delete)
	productRoutes.Get("/:id/stages", productsHandler.ListStages)
	productRoutes.Get("/:id/iterations", productsHandler.ListIterations)
	productRoutes.Get("/:id/files", productsHandler.ListFiles)

	stageRoutes := api.Group("/stages", authMiddleware.RequireAuth)
	stageRoutes.Post("/", containersHandler.CreateStage)
	stageRoutes.Get("/:id", containersHandler.GetStage)
	stageRoutes.Put("/:id", containersHandler.UpdateStage)
	stageRoutes.Delete("/:id", containersHandler.DeleteStage)

	iterationRoutes := api.Group("/iterations", authMiddleware.RequireAuth)
	iterationRoutes.Post("/", containersHandler.CreateIteration)
	iterationRoutes.Get("/:id", containersHandler.GetIteration)
	iterationRoutes.Put("/:id", containersHandler.UpdateIteration)
	iterationRoutes.Delete("/:id", containersHandler.DeleteIteration)

	fileRoutes := api.Group("/files")
	fileRoutes.Post("/upload", authMiddleware.OptionalAuth, filesHandler.Upload)
	fileRoutes.Get("/", authMiddleware.RequireAuth, filesHandler.List)
	fileRoutes.Get("/:id", authMiddleware.RequireAuth, filesHandler.Get)
	fileRoutes.Get("/:id/children", authMiddleware.RequireAuth, filesHandler.ListChildren)
	fileRoutes.Get("/:id/revisions", authMiddleware.RequireAuth, filesHandler.ListRevisions)
	fileRoutes.Get("/:id/download", authMiddleware.RequireAuth, filesHandler.Download)
	fileRoutes.Get("/:id/download-url", authMiddleware.RequireAuth, filesHandler.DownloadURL)
	fileRoutes.Put("/:id", authMiddleware.RequireAuth, filesHandler.Update)
	fileRoutes.Delete("/:id", authMiddleware.RequireAuth, filesHandler.Delete)

	revisionRoutes := api.Group("/revisions", authMiddleware.RequireAuth)
	revisionRoutes.Get("/:id", revisionsHandler.Get)
	revisionRoutes.Get("/:id/download-url", revisionsHandler.DownloadURL)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
