package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/codebuddy/apiserver/config"
	"github.com/codebuddy/apiserver/internal/ai"
	"github.com/codebuddy/apiserver/internal/auth"
	"github.com/codebuddy/apiserver/internal/db"
	"github.com/codebuddy/apiserver/internal/handlers"
	"github.com/codebuddy/apiserver/internal/mail"
	"github.com/codebuddy/apiserver/internal/metrics"
	"github.com/codebuddy/apiserver/internal/mq"
	"github.com/codebuddy/apiserver/internal/notify"
	"github.com/codebuddy/apiserver/internal/ratelimit"
	"github.com/codebuddy/apiserver/internal/services"
	"github.com/codebuddy/apiserver/internal/storage"
	"github.com/codebuddy/apiserver/internal/store"
)

// Server wraps the HTTP server, router, and background machinery.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	bus        *mq.Bus
	cron       *cron.Cron
	log        *zap.SugaredLogger
}

// New constructs a Server with all dependencies wired. ctx governs the
// lifetime of background consumers started here.
func New(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) (*Server, error) {
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	chatRepo := store.NewChatRepository(dbConn)

	otpManager := auth.NewOTPManager(cfg.Auth.OTPTTL)
	tokenIssuer := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	googleVerifier := auth.NewGoogleVerifier(cfg.Google)
	if googleVerifier == nil {
		log.Infow("google oauth disabled, credentials not configured")
	}

	mailer := mail.NewSMTPMailer(cfg.SMTP)

	bus, err := newBus(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	notifier := notify.NewEmailNotifier(mailer, bus, log)
	if bus != nil {
		worker := notify.NewWorker(bus, mailer, log)
		go func() {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Errorw("notification worker stopped", "error", err)
			}
		}()
	}

	limiter := newLimiter(cfg, log)

	authService := services.NewAuthService(userRepo, otpManager, tokenIssuer, notifier, limiter, log)
	revoker := services.NewRevoker(userRepo, log)

	archive, err := newArchive(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	archiver := services.NewHistoryArchiver(userRepo, archive, cfg.Auth.LoginHistoryKeep, log)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/api/health", handlers.Healthz)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())
	router.Route("/api/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authService, googleVerifier, cfg.FrontendURL, log)
	})

	if provider, err := ai.NewGeminiClient(cfg.Gemini); err != nil {
		log.Warnw("ai routes disabled", "error", err)
	} else {
		chatService := services.NewChatService(chatRepo, provider)
		router.Route("/api/ai", func(r chi.Router) {
			handlers.AIRouter(r, chatService, authService, log)
		})
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Jobs.RevokeCron, func() {
		if _, err := revoker.RevokeAll(context.Background()); err != nil {
			log.Errorw("scheduled revocation failed", "error", err)
		}
	}); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("scheduling revocation: %w", err)
	}
	if _, err := scheduler.AddFunc(cfg.Jobs.ArchiveCron, func() {
		if _, err := archiver.Run(context.Background()); err != nil {
			log.Errorw("scheduled archive failed", "error", err)
		}
	}); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("scheduling archive: %w", err)
	}

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
		bus:        bus,
		cron:       scheduler,
		log:        log,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the scheduler and the HTTP server.
func (s *Server) Start() error {
	s.cron.Start()
	s.log.Infow("server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cron.Stop()
	if s.bus != nil {
		_ = s.bus.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.httpServer.Shutdown(ctx)
}

func newBus(ctx context.Context, cfg config.MQConfig) (*mq.Bus, error) {
	switch cfg.Backend {
	case "rabbitmq":
		client, err := mq.NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, fmt.Errorf("connecting rabbitmq: %w", err)
		}
		return mq.New(client), nil
	case "pubsub":
		client, err := mq.NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, fmt.Errorf("connecting pubsub: %w", err)
		}
		return mq.New(client), nil
	case "", "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
}

func newLimiter(cfg config.Config, log *zap.SugaredLogger) ratelimit.Limiter {
	if cfg.Redis.Addr == "" {
		log.Infow("redis not configured, using in-process rate limiter")
		return ratelimit.NewMemoryLimiter(cfg.Auth.OTPMaxAttempts, cfg.Auth.OTPAttemptWindow)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return ratelimit.NewRedisLimiter(client, "otp", cfg.Auth.OTPMaxAttempts, cfg.Auth.OTPAttemptWindow)
}

func newArchive(ctx context.Context, cfg config.StorageConfig) (*storage.ArchiveStore, error) {
	var backend storage.ObjectStorage
	switch cfg.Backend {
	case "minio":
		client, err := storage.NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("connecting minio: %w", err)
		}
		backend = client
	case "gcs":
		client, err := storage.NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, fmt.Errorf("connecting gcs: %w", err)
		}
		backend = client
	case "", "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	archive := storage.NewArchiveStore(backend)
	if err := archive.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensuring archive bucket: %w", err)
	}
	return archive, nil
}
