package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"patient_recommender/internal/app"
	"patient_recommender/internal/catalog"
	"patient_recommender/internal/domain/notification"
	"patient_recommender/internal/domain/patient"
	"patient_recommender/internal/infra/config"
	idb "patient_recommender/internal/infra/database"
	"patient_recommender/internal/infra/httpapi"
	"patient_recommender/internal/infra/httpclient"
	"patient_recommender/internal/infra/logger"
	"patient_recommender/internal/infra/memstore"
	"patient_recommender/internal/infra/messaging"
	"patient_recommender/internal/infra/metrics"
	"patient_recommender/internal/infra/registry"
	"patient_recommender/internal/infra/scheduler"
	"patient_recommender/internal/infra/scoring"
	"patient_recommender/internal/infra/telegram"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("Could not load application configuration: %v", err)
	}
	logger.Init(cfg)
	mainLogger := logger.Component("main")
	mainLogger.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"storage":     cfg.StorageDriver,
		"roster":      cfg.RosterSource,
	}).Info("Patient recommender starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	patients, notifications, db := openStorage(ctx, cfg, mainLogger)
	if db != nil {
		defer db.Close()
	}

	cat, err := catalog.LoadDefault()
	if err != nil {
		mainLogger.Fatalf("Could not load message catalog: %v", err)
	}

	opts := []httpclient.Option{
		httpclient.WithRetries(cfg.HTTPClientRetries),
		httpclient.WithBackoff(cfg.HTTPClientBackoff),
		httpclient.WithLogger(logger.Component("httpclient")),
	}
	registryClient := registry.New(httpclient.New("registry", cfg.RegistryURL, cfg.HTTPClientTimeout, opts...))
	scoringClient := scoring.New(
		httpclient.New("scoring", cfg.ScoringURL, cfg.HTTPClientTimeout, opts...),
		httpclient.New("deviation", cfg.DeviationURL, cfg.HTTPClientTimeout, opts...),
	)
	gateway := messaging.New(httpclient.New("gateway", cfg.GatewayURL, cfg.HTTPClientTimeout, opts...))

	recorder := metrics.NewRecorder(prometheus.DefaultRegisterer)
	clock := app.SystemClock{}
	random := app.MathRandom{}
	appLogger := logger.Log.WithField("service", "recommender")

	dispatcher := app.NewDispatcher(gateway, cfg.SenderID, clock, recorder, appLogger)
	activity := app.NewActivityAnalyzer(registryClient, clock, appLogger)
	rounds := app.NewRoundOrchestrator(app.RoundDeps{
		Patients:      patients,
		Notifications: notifications,
		Cycle:         app.NewNotificationCycle(patients, registryClient, cat, dispatcher, recorder, appLogger),
		Games:         app.NewGameRuleEngine(registryClient, cat, clock, random, appLogger),
		Multimodal:    app.NewMultimodalRuleEngine(registryClient, cat, random, recorder, appLogger),
		Goals:         app.NewGoalsService(registryClient, activity, cat, dispatcher, clock, recorder, appLogger),
		Activity:      activity,
		Scoring:       scoringClient,
		Catalog:       cat,
		Dispatcher:    dispatcher,
		Clock:         clock,
		Metrics:       recorder,
		IPAQWindow:    cfg.IPAQReminderWindow,
	}, appLogger)

	var source app.RosterSource = app.LiveRoster{Registry: registryClient}
	if cfg.RosterSource == config.RosterFixture {
		fixture, err := app.ParseFixtureRoster(cfg.RosterFixture, "000")
		if err != nil {
			mainLogger.Fatalf("Invalid roster fixture: %v", err)
		}
		source = fixture
	}
	roster := app.NewRosterService(source, patients, recorder, appLogger)
	notificationService := app.NewNotificationService(notifications, patients, clock, appLogger)

	// Scheduled rounds are reported to the operator chat when the console is on.
	var scheduledRounds app.RoundRunner = rounds
	var bot *telebot.Bot
	if cfg.TelegramToken != "" {
		bot = newBot(cfg, mainLogger)
		botLogger := logger.Component("telegram")
		admin := app.NewAdminService(rounds, roster, cfg.AdminTelegramID)
		console := telegram.NewAdminConsole(admin, botLogger)
		telegram.RegisterBotCommands(bot, cfg.AdminTelegramID, botLogger)
		telegram.RegisterAdminHandlers(ctx, bot, console)
		telegram.RegisterRoundCallbackHandlers(ctx, bot, console)
		scheduledRounds = telegram.NewReportingRunner(rounds, telegram.NewTelebotAdapter(bot), cfg.AdminTelegramID, botLogger)
		mainLogger.Info("Operator console handlers registered")
	}

	roundScheduler := scheduler.NewRoundScheduler(scheduledRounds, roster, cfg.CronSpecs, logger.Component("scheduler"))
	if err := roundScheduler.Start(); err != nil {
		mainLogger.Fatalf("Could not start scheduler: %v", err)
	}

	handler := httpapi.NewHandler(rounds, roster, notificationService)
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           httpapi.NewRouter(handler, prometheus.DefaultGatherer, logger.Component("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		mainLogger.Infof("HTTP server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			mainLogger.Errorf("HTTP server failed: %v", err)
			stop()
		}
	}()

	if bot != nil {
		// Start bot in a goroutine so it doesn't block graceful shutdown handling
		go bot.Start()
	}

	mainLogger.Info("Application setup complete")
	<-ctx.Done()

	mainLogger.Info("Shutting down application...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		mainLogger.Warnf("HTTP server shutdown: %v", err)
	}
	roundScheduler.Stop()
	if bot != nil {
		bot.Stop()
	}
	mainLogger.Info("Application shut down gracefully")
}

// openStorage returns the repositories for the configured driver. The
// returned *sql.DB is nil for the memory driver.
func openStorage(ctx context.Context, cfg *config.AppConfig, log *logrus.Entry) (patient.Repository, notification.Repository, *sql.DB) {
	if cfg.StorageDriver == config.StorageMemory {
		log.Warn("Using in-memory storage; state is lost on restart")
		store := memstore.New()
		return store.Patients(), store.Notifications(), nil
	}

	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Could not connect to database: %v", err)
	}
	if err := idb.Migrate(ctx, db); err != nil {
		db.Close()
		log.Fatalf("Could not apply database schema: %v", err)
	}
	log.Info("Database connection established successfully")
	return idb.NewPostgresPatientRepository(db), idb.NewPostgresNotificationRepository(db), db
}

func newBot(cfg *config.AppConfig, log *logrus.Entry) *telebot.Bot {
	pref := telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) { // Global error handler
			entry := log.WithError(err)
			if c != nil && c.Sender() != nil && c.Chat() != nil {
				entry = entry.WithFields(logrus.Fields{
					"sender_id": c.Sender().ID,
					"chat_id":   c.Chat().ID,
					"text":      c.Text(),
				})
			}
			entry.Error("Telegram handler failed")
		},
	}
	bot, err := telebot.NewBot(pref)
	if err != nil {
		log.Fatalf("Could not create Telegram bot: %v", err)
	}
	return bot
}
