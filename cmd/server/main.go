package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"sensor-monitor/internal/alerting"
	"sensor-monitor/internal/auth"
	"sensor-monitor/internal/cache"
	"sensor-monitor/internal/config"
	"sensor-monitor/internal/feed"
	"sensor-monitor/internal/handlers"
	"sensor-monitor/internal/models"
	"sensor-monitor/internal/monitor"
	"sensor-monitor/internal/notify"
	"sensor-monitor/internal/store"
	"sensor-monitor/internal/units"
	"sensor-monitor/internal/websocket"
)

func main() {
	// server hash-password <password> печатает bcrypt-хеш для auth.users
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		if err := printHash(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("CONFIG_DIR"))
	if err != nil {
		slog.New(tint.NewHandler(os.Stderr, nil)).Error("Failed to load config", "error", err)
		return err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
	}))
	slog.SetDefault(logger)
	logger.Info("Starting sensor monitor...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Хранилище показаний
	readings, err := cache.NewStore(ctx, cache.Options{
		Addr:      cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		Retention: cfg.Redis.Retention(),
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer readings.Close()
	logger.Info("Connected to Redis", "addr", cfg.Redis.Addr)

	// Правила и настройки
	db, err := store.Open(ctx, cfg.Storage.Path, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	alerts, err := store.OpenAlerts(ctx, db, store.WithLogger(logger))
	if err != nil {
		return err
	}
	settings, err := store.OpenSettings(ctx, db, store.WithLogger(logger))
	if err != nil {
		return err
	}

	manager, err := auth.NewManager(cfg.Auth, logger)
	if err != nil {
		return err
	}

	// Уведомления: лог, websocket и почта
	sender := notify.NewResendSender(cfg.Email.APIKey, cfg.Email.From, logger)
	verifier := notify.NewVerifier(sender, []byte(cfg.Auth.Secret), cfg.Email.AppURL, notify.DefaultTokenTTL)
	mailer := notify.NewAlertMailer(sender, settings.Get, cfg.Email.AppURL)

	hub := websocket.NewHub(func() bool { return settings.Get().Notifications.Audio }, logger)
	go hub.Run(ctx)

	engine := alerting.NewEngine(alerts,
		alerting.Multi{alerting.LogNotifier{Logger: logger}, hub, mailer},
		alerting.WithEpsilon(cfg.Alerting.Epsilon),
		alerting.WithLogger(logger),
		alerting.WithPreferences(func() units.Preferences { return settings.Get().Units }),
	)

	kind, err := models.ParseKind(cfg.Feed.Kind)
	if err != nil {
		return err
	}
	mon := monitor.New(readings, engine, monitor.Config{
		Kind:          kind,
		PrimaryDevice: cfg.Feed.PrimaryDevice,
		ActiveOnly:    cfg.Feed.ActiveOnly,
		Lookback:      time.Duration(cfg.Feed.HistoryHours) * time.Hour,
		HistoryLimit:  cfg.Feed.HistoryLimit,
		Calibration:   cfg.Analytics,
	}, logger)

	mode, err := startMode(cfg, settings.Get(), logger)
	if err != nil {
		return err
	}

	// Смена режима доставки в настройках переподписывает монитор
	cancelSettings := settings.OnChange(func(s models.Settings) {
		next, err := feed.ModeFromDelivery(s.Delivery)
		if err != nil {
			logger.Warn("Ignoring delivery setting", "error", err)
			return
		}
		go func() {
			if err := mon.SetMode(ctx, next); err != nil && !errors.Is(err, monitor.ErrNotRunning) {
				logger.Error("Failed to change delivery mode", "mode", next.String(), "error", err)
			}
		}()
	})
	defer cancelSettings()

	cancelState := mon.Subscribe(func(s monitor.State) {
		hub.Broadcast(websocket.Envelope{Type: websocket.TypeState, Payload: s})
	})
	defer cancelState()

	cancelAlerts := alerts.OnChange(func(list []models.Alert) {
		hub.Broadcast(websocket.Envelope{Type: websocket.TypeAlerts, Payload: list})
	})
	defer cancelAlerts()

	cancelSession := manager.Subscribe(func(s *auth.Session) {
		hub.Broadcast(websocket.Envelope{Type: websocket.TypeSession, Payload: s})
	})
	defer cancelSession()

	monitorDone := make(chan error, 1)
	go func() { monitorDone <- mon.Run(ctx, mode) }()

	handler := handlers.NewHandler(handlers.Deps{
		Readings:     readings,
		DB:           db,
		Alerts:       alerts,
		Settings:     settings,
		Auth:         manager,
		Monitor:      mon,
		Verifier:     verifier,
		Hub:          hub,
		Kind:         kind,
		ActiveOnly:   cfg.Feed.ActiveOnly,
		Ranges:       cfg.Decimation.Ranges,
		QualityAware: cfg.Decimation.QualityAware,
		Calibration:  cfg.Analytics,
		AppURL:       cfg.Email.AppURL,
		Production:   cfg.Email.Production,
		Logger:       logger,
	})

	// HTTP сервер
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Ожидание сигнала завершения
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		logger.Error("Server error", "error", err)
		stop()
	case err := <-monitorDone:
		if err != nil {
			logger.Error("Monitor failed", "error", err)
		}
		stop()
	}

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		return err
	}

	logger.Info("Server stopped gracefully")
	return nil
}

// startMode режим из сохраненных настроек; без них режим из конфигурации
func startMode(cfg config.Config, s models.Settings, logger *slog.Logger) (feed.Mode, error) {
	mode, err := feed.ModeFromDelivery(s.Delivery)
	if err == nil {
		return mode, nil
	}
	logger.Warn("Stored delivery setting is invalid, using config", "error", err)
	return cfg.Feed.DeliveryMode()
}

func printHash(args []string) error {
	if len(args) != 1 || args[0] == "" {
		return errors.New("usage: server hash-password <password>")
	}
	hash, err := auth.HashPassword(args[0])
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}
