package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/slack-go/slack"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk-service/internal/api/http"
	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/lock"
	"github.com/spec-kit/helpdesk-service/internal/notify"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
	"github.com/spec-kit/helpdesk-service/internal/report"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/sequence"
	"github.com/spec-kit/helpdesk-service/internal/service"
	"github.com/spec-kit/helpdesk-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := persistence.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer backend.Close()
	store := backend.Store

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	var locker lock.Locker = lock.NewKeyedMutex()
	if cfg.Lock.Backend == config.LockBackendRedis {
		locker = lock.NewRedisLocker(redis.Client, cfg.Lock.TTL(), logger)
	}

	templates := notify.MustTemplates()
	var notifier notify.Notifier = notify.NewLogNotifier(templates, cfg.Notification.EmailFrom, logger)
	if cfg.Notification.SMTPHost != "" {
		smtpNotifier, err := notify.NewSMTPNotifier(cfg.Notification, templates)
		if err != nil {
			logger.Fatal("failed to configure smtp", zap.Error(err))
		}
		notifier = smtpNotifier
	}

	var activities repository.ActivityRepository = store.Activities
	if cfg.Notification.SlackToken != "" && cfg.Notification.SlackChannel != "" {
		activities = notify.NewSlackMirror(store.Activities, slack.New(cfg.Notification.SlackToken), cfg.Notification.SlackChannel, logger)
		logger.Info("mirroring activity log to slack", zap.String("channel", cfg.Notification.SlackChannel))
	}

	bus := events.NewInMemoryDispatcher(logger)
	notificationService := service.NewNotificationService(service.NotificationDependencies{
		Dispatcher: bus,
		Notifier:   notifier,
		Users:      store.Users,
		Contacts:   store.Contacts,
		Activities: activities,
		Scheduled:  store.Scheduled,
		Logger:     logger,
	})
	worker.StartNotificationWorker(bus, notificationService, service.NewHistoryRecorder(store.History))

	renderer := report.NewRenderer(report.NewRedisStore(redis.Client), cfg.Report.TTL())
	ticketService := service.NewTicketService(service.TicketDependencies{
		Store:          store,
		Activities:     activities,
		Sequence:       sequence.NewRedisGenerator(redis.Client, cfg.Sequence.Prefix, cfg.Sequence.Padding),
		SequenceCode:   cfg.Sequence.Code,
		SequenceStrict: cfg.Sequence.Strict,
		Locker:         locker,
		Renderer:       renderer,
		Dispatcher:     bus,
		Logger:         logger,
	})
	sweepService := service.NewSweepService(store.Tickets, bus, cfg.Sweep, logger, nil)
	contactService := service.NewContactService(store.Contacts)
	authService := service.NewAuthService(cfg.Auth, store.Users, store.Contacts)
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), store.Users)

	if cfg.Sweep.Enabled {
		sweepWorker, err := worker.NewSweepWorker(sweepService, cfg.Sweep.Schedule, 10*time.Minute, logger)
		if err != nil {
			logger.Fatal("failed to schedule sweep", zap.Error(err))
		}
		go func() {
			_ = sweepWorker.Start(ctx)
		}()
	}

	metrics := observability.NewMetrics()
	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			cfg.Store.Driver: backend.Health,
			"redis":          redis,
		}),
		Users:          handlers.NewUsersHandler(authService),
		Contacts:       handlers.NewContactsHandler(contactService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Documents:      handlers.NewDocumentsHandler(renderer),
		Admin:          handlers.NewAdminHandler(sweepService, metrics),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.ShutdownWithTimeout(10 * time.Second)
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
