package main

import (
	"context"
	"log"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"google.golang.org/api/option"

	fbapp "firebase.google.com/go/v4"

	"duochat/internal/adapter/api"
	"duochat/internal/adapter/api/handler"
	apimiddleware "duochat/internal/adapter/api/middleware"
	"duochat/internal/adapter/api/router"
	"duochat/internal/adapter/repository"
	"duochat/internal/infrastructure/firebase"
	"duochat/internal/infrastructure/ratelimit"
	"duochat/internal/infrastructure/session"
	"duochat/internal/infrastructure/websocket"
	"duochat/internal/usecase"
	"duochat/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	var opts []option.ClientOption
	if serviceAccountJSON := os.Getenv("FIREBASE_SERVICE_ACCOUNT_JSON"); serviceAccountJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(serviceAccountJSON)))
	} else if serviceAccountPath := os.Getenv("FIREBASE_SERVICE_ACCOUNT_PATH"); serviceAccountPath != "" {
		opts = append(opts, option.WithCredentialsFile(serviceAccountPath))
	}

	firebaseApp, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opts...)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase: %v", err)
	}

	authClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase Auth: %v", err)
	}

	firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opts...)
	if err != nil {
		log.Fatalf("Failed to create Firestore client: %v", err)
	}
	defer firestoreClient.Close()

	userRepo := repository.NewFirestoreUserRepository(firestoreClient)
	roomRepo := repository.NewFirestoreRoomRepository(firestoreClient)
	messageRepo := repository.NewFirestoreMessageRepository(firestoreClient)

	firebaseAuthClient := firebase.NewFirebaseAuthClient(authClient)

	// With REDIS_ADDR set the session registry is shared across instances;
	// without it a single-process in-memory registry is enough.
	var registry session.Registry
	if cfg.RedisAddr != "" {
		redisRegistry, err := session.NewRedisRegistry(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatalf("Failed to connect to Redis at %s: %v", cfg.RedisAddr, err)
		}
		defer redisRegistry.Close()
		registry = redisRegistry
		log.Printf("Using Redis session registry at %s", cfg.RedisAddr)
	} else {
		registry = session.NewMemoryRegistry()
		log.Printf("Using in-memory session registry")
	}

	hub := websocket.NewHub()

	limiter := ratelimit.NewRateLimiter(map[string]ratelimit.Limit{
		"send_message": {Burst: 20, Rate: 5},
		"create_room":  {Burst: 5, Rate: 0.5},
	})

	chatUseCase := usecase.NewChatUseCase(roomRepo, messageRepo, userRepo, hub, registry, limiter)

	chatHandler := handler.NewChatHandler(chatUseCase)
	wsHandler := handler.NewWebSocketHandler(hub, registry, firebaseAuthClient, chatUseCase)
	healthHandler := handler.NewHealthHandler(hub)

	authMiddleware := apimiddleware.NewAuthMiddleware(firebaseAuthClient)

	e := echo.New()
	e.HideBanner = true
	e.Validator = api.NewValidator()

	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.Use(echomw.CORS())
	e.Use(apimiddleware.NewIPRateLimiter(300, time.Minute).Middleware())

	router.Setup(e, authMiddleware, chatHandler, wsHandler, healthHandler)

	log.Printf("Starting server on port %s...", cfg.ServerPort)
	e.Logger.Fatal(e.Start(":" + cfg.ServerPort))
}
