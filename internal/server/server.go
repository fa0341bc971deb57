package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/foundly/apiserver/config"
	"github.com/foundly/apiserver/internal/db"
	"github.com/foundly/apiserver/internal/handlers"
	"github.com/foundly/apiserver/internal/mailer"
	"github.com/foundly/apiserver/internal/mq"
	"github.com/foundly/apiserver/internal/services"
	"github.com/foundly/apiserver/internal/storage"
	"github.com/foundly/apiserver/internal/store"
	"github.com/foundly/apiserver/internal/token"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	queue      *mq.MQ
}

// New constructs a Server with all repositories, services, and routes wired.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	refreshRepo := store.NewRefreshTokenRepository(dbConn)
	listingRepo := store.NewListingRepository(dbConn)

	jwtSecret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if jwtSecret == "" {
		_ = dbConn.Close()
		return nil, errors.New("JWT_SECRET is required")
	}
	signer := token.NewSigner(jwtSecret)

	objectStore, err := newObjectStorage(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	if err := objectStore.EnsureBucket(ctx); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}

	queue, dispatcher, err := newMailDispatcher(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	if queue != nil && cfg.Mail.SMTP.Host != "" {
		sender := mailer.NewSMTPSender(cfg.Mail.SMTP, cfg.BaseURL)
		go func() {
			if err := mailer.RunWorker(ctx, queue, cfg.Mail.Channel, sender); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("mail worker stopped: %v", err)
			}
		}()
	}

	refreshService := services.NewRefreshService(refreshRepo)
	userService := services.NewUserService(userRepo)
	sessionService := services.NewSessionService(userRepo, refreshService, signer, dispatcher)
	listingService := services.NewListingService(listingRepo, objectStore)
	mediaService := services.NewMediaService(listingRepo, objectStore)
	moderationService := services.NewModerationService(userRepo, refreshService, listingRepo, dispatcher)

	purgeService := services.NewPurgeService(userRepo, refreshRepo, cfg.Retention.DeletedUserTTL)
	purgeService.Start(ctx, cfg.Retention.PurgeInterval)

	authMiddleware := handlers.RequireAuth(signer)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, sessionService, userService, signer)
	})
	router.Route("/listings", func(r chi.Router) {
		handlers.ListingRouter(r, listingService, mediaService, userService, authMiddleware)
	})
	router.Route("/admin", func(r chi.Router) {
		handlers.AdminRouter(r, moderationService, userService, authMiddleware)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		queue:      queue,
	}, nil
}

func newObjectStorage(ctx context.Context, cfg config.Config) (*storage.Storage, error) {
	switch cfg.Storage.Backend {
	case "minio":
		client, err := storage.NewMinioClient(cfg.Storage.Minio)
		if err != nil {
			return nil, fmt.Errorf("minio client: %w", err)
		}
		return storage.NewStorage(client), nil
	case "gcs":
		client, err := storage.NewGCSClient(ctx, cfg.Storage.GCS)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		return storage.NewStorage(client), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// newMailDispatcher picks the mail queue backend. With no backend
// configured mail is dropped, which keeps local development queue-free.
func newMailDispatcher(ctx context.Context, cfg config.Config) (*mq.MQ, mailer.Dispatcher, error) {
	switch cfg.Mail.Backend {
	case "rabbitmq":
		client, err := mq.NewRabbitMQClient(cfg.Mail.RabbitMQ)
		if err != nil {
			return nil, nil, fmt.Errorf("rabbitmq client: %w", err)
		}
		queue := mq.New(client)
		return queue, mailer.NewQueueDispatcher(queue, cfg.Mail.Channel), nil
	case "pubsub":
		client, err := mq.NewPubSubClient(ctx, cfg.Mail.PubSub)
		if err != nil {
			return nil, nil, fmt.Errorf("pubsub client: %w", err)
		}
		queue := mq.New(client)
		return queue, mailer.NewQueueDispatcher(queue, cfg.Mail.Channel), nil
	case "":
		return nil, mailer.Noop{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown mail backend %q", cfg.Mail.Backend)
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.queue != nil {
		_ = s.queue.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.httpServer.Close()
}
