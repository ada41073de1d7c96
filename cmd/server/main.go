package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/pesio-ai/be-proc-approvals/internal/client"
	"github.com/pesio-ai/be-proc-approvals/internal/handler"
	"github.com/pesio-ai/be-proc-approvals/internal/metrics"
	"github.com/pesio-ai/be-proc-approvals/internal/platform/auth"
	"github.com/pesio-ai/be-proc-approvals/internal/platform/config"
	"github.com/pesio-ai/be-proc-approvals/internal/platform/database"
	"github.com/pesio-ai/be-proc-approvals/internal/platform/logger"
	"github.com/pesio-ai/be-proc-approvals/internal/platform/middleware"
	"github.com/pesio-ai/be-proc-approvals/internal/repository"
	"github.com/pesio-ai/be-proc-approvals/internal/repository/memory"
	"github.com/pesio-ai/be-proc-approvals/internal/service"
	"github.com/pesio-ai/be-proc-approvals/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Str("database_driver", cfg.Database.Driver).
		Msg("Starting Procurement Approvals Service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	stores, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer stores.close()

	// Initialize NATS. The service runs without notifications when NATS is
	// unset or unreachable.
	var natsConn *nats.Conn
	if cfg.NATS.URL != "" {
		natsConn, err = client.ConnectNATS(cfg.NATS.URL, cfg.Service.Name, log)
		if err != nil {
			log.Warn().Err(err).Msg("NATS unavailable, notifications disabled")
		} else {
			defer natsConn.Drain()
			log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
		}
	}
	notifier := client.NewNotificationPublisher(natsConn, cfg.NATS.SubjectPrefix, log)
	promMetrics := metrics.New()

	// Initialize services
	opts := []service.Option{
		service.WithNotifier(notifier),
		service.WithMetrics(promMetrics),
	}
	evaluator := service.NewWorkflowEvaluator(stores.tx, stores.requests, stores.entities, stores.identity, stores.audit, log, opts...)
	processor := service.NewActionProcessor(stores.tx, stores.requests, stores.entities, stores.audit, log, opts...)
	history := service.NewHistoryReader(stores.requests, stores.identity, stores.audit, log)
	matrix := service.NewApprovalMatrixService(stores.matrix, log)

	// Auth. A nil verifier trusts development identity headers.
	var verifier middleware.Verifier
	if cfg.Auth.SkipAuth {
		log.Warn().Msg("Authentication disabled, trusting X-User-ID headers")
	} else {
		verifier = auth.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	}

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(evaluator, processor, history, matrix, log)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := stores.ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})
	mux.Handle("/metrics", promMetrics.Handler())
	httpHandler.RegisterRoutes(mux)

	// Apply middleware
	var h http.Handler = mux
	h = middleware.Auth(verifier, "/health", "/metrics")(h)
	h = middleware.Timeout(cfg.Server.RequestTimeout)(h)
	h = middleware.CORS(cfg.Server.CORSOrigins)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.Logger(&log.Logger)(h)
	h = promMetrics.Middleware(h)
	h = middleware.RequestID(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Setup gRPC server
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		handler.LoggingInterceptor(log),
		handler.AuthInterceptor(verifier),
	))
	handler.RegisterApprovalServiceServer(grpcServer, handler.NewGRPCHandler(evaluator, processor, history, log))
	reflection.Register(grpcServer)

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gRPC listener")
	}

	// Reminder job
	var reminders *worker.ReminderJob
	if cfg.Reminder.Schedule != "" {
		reminders = worker.NewReminderJob(stores.requests, stores.audit, notifier, promMetrics, cfg.Reminder.PendingAfter, log)
		if err := reminders.Start(cfg.Reminder.Schedule); err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule reminder job")
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		log.Info().Int("port", cfg.Server.GRPCPort).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			return fmt.Errorf("gRPC server failed: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if reminders != nil {
			reminders.Stop(shutdownCtx)
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown failed")
		}
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server exited with error")
		stores.close()
		os.Exit(1)
	}
	log.Info().Msg("Server stopped")
}

// storage bundles the storage backend selected by database.driver.
type storage struct {
	tx       service.Transactor
	requests interface {
		service.ApprovalStore
		worker.PendingLister
	}
	matrix   service.MatrixStore
	audit    service.AuditStore
	entities service.EntityStatusUpdater
	identity service.IdentityResolver
	ping     func(ctx context.Context) error
	close    func()
}

func openStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (*storage, error) {
	if cfg.Database.Driver == "memory" {
		log.Warn().Msg("Using in-memory storage, state is lost on restart")
		db := memory.New()
		return &storage{
			tx:       db,
			requests: memory.NewRequestStore(db),
			matrix:   memory.NewMatrixStore(db),
			audit:    memory.NewAuditStore(db),
			entities: memory.NewEntityStore(db),
			identity: memory.NewUserStore(db),
			ping:     func(context.Context) error { return nil },
			close:    func() {},
		}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	db, err := database.New(connectCtx, database.Config{
		DSN:         cfg.Database.DSN(),
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
		HealthCheck: cfg.Database.HealthCheck,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Msg("Database connection established")

	if cfg.Database.AutoMigrate {
		applied, err := db.Migrate(connectCtx)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info().Ints("applied", applied).Msg("Database migrations complete")
	}

	return &storage{
		tx:       db,
		requests: repository.NewApprovalRequestRepository(db),
		matrix:   repository.NewApprovalMatrixRepository(db),
		audit:    repository.NewApprovalAuditRepository(db),
		entities: repository.NewEntityStatusRepository(db),
		identity: repository.NewUserRepository(db),
		ping:     db.Ping,
		close:    db.Close,
	}, nil
}
