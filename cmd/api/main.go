package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	fbapp "firebase.google.com/go/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"unitrade/internal/adapter/api"
	"unitrade/internal/adapter/api/handler"
	apimiddleware "unitrade/internal/adapter/api/middleware"
	"unitrade/internal/adapter/api/router"
	"unitrade/internal/adapter/repository"
	domainrepo "unitrade/internal/domain/repository"
	"unitrade/internal/domain/service"
	"unitrade/internal/infrastructure/firebase"
	"unitrade/internal/infrastructure/ratelimit"
	"unitrade/internal/infrastructure/storage"
	"unitrade/internal/infrastructure/watermark"
	"unitrade/internal/infrastructure/websocket"
	"unitrade/internal/usecase"
	"unitrade/pkg/config"
	"unitrade/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	logger.Init(cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("Server stopped: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	opts := clientOptions(cfg)
	checks := map[string]handler.HealthCheck{}

	var (
		listingRepo domainrepo.ListingRepository
		messageRepo domainrepo.MessageRepository
	)
	switch cfg.StoreDriver {
	case "firestore":
		firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opts...)
		if err != nil {
			return fmt.Errorf("failed to create Firestore client: %w", err)
		}
		defer firestoreClient.Close()

		listingRepo = repository.NewFirestoreListingRepository(firestoreClient)
		messageRepo = repository.NewFirestoreMessageRepository(firestoreClient)
		checks["firestore"] = func(ctx context.Context) error {
			_, err := firestoreClient.Collection(repository.ListingsCollection).Limit(1).Documents(ctx).GetAll()
			return err
		}
	default:
		logger.Warn("Using in-memory listing store; data is lost on restart")
		listingRepo = repository.NewMemoryListingRepository()
		messageRepo = repository.NewMemoryMessageRepository()
	}

	var identity usecase.IdentityProvider
	switch cfg.AuthDriver {
	case "firebase":
		app, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opts...)
		if err != nil {
			return fmt.Errorf("failed to initialize Firebase: %w", err)
		}
		authClient, err := app.Auth(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize Firebase Auth: %w", err)
		}
		identity = firebase.NewFirebaseAuthClient(authClient, cfg.FirebaseAPIKey)
	default:
		logger.Warn("Using local identity provider; accounts are lost on restart")
		identity = firebase.NewLocalAuthClient(cfg.LocalAuthSecret)
	}

	var images usecase.ImageStorage
	if cfg.StorageBucket != "" {
		storageClient, err := storage.NewCloudStorageClient(ctx, cfg.StorageBucket, cfg.ServiceAccountPath, cfg.Market.MaxImageBytes)
		if err != nil {
			return fmt.Errorf("failed to initialize Cloud Storage: %w", err)
		}
		defer storageClient.Close()
		images = storageClient
	} else {
		images = storage.NewInlineImageStorage(cfg.Market.MaxImageBytes)
	}

	watermarks, err := watermark.New(cfg.Watermark)
	if err != nil {
		return fmt.Errorf("failed to open watermark store: %w", err)
	}
	defer watermarks.Close()
	checks["watermarks"] = func(ctx context.Context) error {
		_, _, err := watermarks.Get(ctx, "health", "health", "health")
		return err
	}

	limiter := ratelimit.NewRateLimiter()
	limiter.StartCleanupRoutine(10*time.Minute, ctx.Done())

	policy := service.NewListingPolicy(cfg.Market.AllowSelfPurchase, cfg.Market.StrictListingValidation)

	authUseCase := usecase.NewAuthUseCase(identity, cfg.Market.AllowedEmailDomain, cfg.Market.PasswordMinEntropy)
	userUseCase := usecase.NewUserUseCase(identity, images)
	listingUseCase := usecase.NewListingUseCase(listingRepo, images, policy, limiter)
	chatUseCase := usecase.NewChatUseCase(listingRepo, messageRepo, watermarks, identity, policy, limiter)

	handler.Setup(authUseCase, userUseCase, listingUseCase, chatUseCase)
	handler.SetupHealthHandler(checks)

	wsManager := websocket.NewManager(listingUseCase, chatUseCase)
	wsManager.Start(ctx)

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowedOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization, apimiddleware.DeviceHeader},
	}))

	e.Validator = api.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(authUseCase)
	wsHandler := handler.NewWebSocketHandler(wsManager, cfg.AllowedOrigins)
	router.Setup(e, authMiddleware, limiter, wsHandler)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting server on port %s (store=%s, auth=%s, watermarks=%s)",
			cfg.ServerPort, cfg.StoreDriver, cfg.AuthDriver, cfg.Watermark.Driver)
		if err := e.Start(":" + cfg.ServerPort); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// clientOptions prefers inline service-account JSON, then a key file, then
// application default credentials.
func clientOptions(cfg *config.Config) []option.ClientOption {
	switch {
	case cfg.ServiceAccountJSON != "":
		logger.Info("Using Firebase service account from environment variable")
		return []option.ClientOption{option.WithCredentialsJSON([]byte(cfg.ServiceAccountJSON))}
	case cfg.ServiceAccountPath != "":
		logger.Info("Using Firebase service account from file: %s", cfg.ServiceAccountPath)
		return []option.ClientOption{option.WithCredentialsFile(cfg.ServiceAccountPath)}
	default:
		return nil
	}
}
