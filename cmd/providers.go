package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/antonmal/protectogram/config"
	"github.com/antonmal/protectogram/internal/adapter/chat"
	"github.com/antonmal/protectogram/internal/adapter/chat/telegrambot"
	"github.com/antonmal/protectogram/internal/adapter/pubsub"
	"github.com/antonmal/protectogram/internal/adapter/voice"
	"github.com/antonmal/protectogram/internal/adapter/voice/twiliolike"
	"github.com/antonmal/protectogram/internal/cascade"
	"github.com/antonmal/protectogram/internal/domain/model"
	"github.com/antonmal/protectogram/internal/handler/admin"
	"github.com/antonmal/protectogram/internal/handler/health"
	"github.com/antonmal/protectogram/internal/handler/webhook"
	"github.com/antonmal/protectogram/internal/incident"
	"github.com/antonmal/protectogram/internal/inbox"
	"github.com/antonmal/protectogram/internal/outbox"
	"github.com/antonmal/protectogram/internal/scheduler"
	"github.com/antonmal/protectogram/internal/store"
	"github.com/antonmal/protectogram/internal/store/postgres"
)

// ProvideLogger builds the single *slog.Logger every component derives its
// own ".With(component=...)" child from.
func ProvideLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// ProvidePgxPool opens the pooled database connection used by every
// transactional store path (spec §5 resource policy: one pool per web
// worker, one pool for the scheduler runner — here shared, since both run
// in one process).
func ProvidePgxPool(lc fx.Lifecycle, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := postgres.NewPool(context.Background(), postgres.Config{DSN: cfg.DatabaseURL})
	if err != nil {
		return nil, fmt.Errorf("providers: open pgx pool: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			pool.Close()
			return nil
		},
	})
	return pool, nil
}

// ProvideSQLDB opens the database/sql handle goose needs for migrations,
// over the same DSN via the pgx stdlib driver.
func ProvideSQLDB(lc fx.Lifecycle, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("providers: open sql db: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return db.Close()
		},
	})
	return db, nil
}

func ProvideStore(pool *pgxpool.Pool) *postgres.PGStore {
	return postgres.NewStore(pool)
}

func ProvideStoreInterface(pg *postgres.PGStore) store.Store {
	return pg
}

// ProvideRedisClient returns nil when REDIS_URL is unset; every downstream
// consumer treats a nil client as "leader election disabled" (spec §4.4
// Open Question decision: single-writer-by-default, Redis lease opt-in).
func ProvideRedisClient(lc fx.Lifecycle, cfg *config.Config) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("providers: parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func ProvideLeaderElector(client *redis.Client) *scheduler.RedisLeaderElector {
	if client == nil {
		return nil
	}
	return scheduler.NewRedisLeaderElector(client, "protectogram:scheduler:leader", 30*time.Second, 10*time.Second)
}

func ProvideBus(log *slog.Logger) pubsub.Bus {
	return pubsub.NewGoChannel(log)
}

func ProvideEventDispatcher(bus pubsub.Bus) pubsub.EventDispatcher {
	return pubsub.NewEventDispatcher(bus)
}

func ProvideChatPort(cfg *config.Config) chat.Port {
	return telegrambot.New(telegrambot.Config{BotToken: cfg.ChatBotToken})
}

func ProvideVoicePort(cfg *config.Config) voice.Port {
	return twiliolike.New(twiliolike.Config{AccountSID: cfg.VoiceConnectionID, AuthToken: cfg.VoiceAPIKey})
}

func ProvideInbox(st store.Store, log *slog.Logger) inbox.Inbox {
	return inbox.New(st, log)
}

func ProvideOutbox(st store.Store, log *slog.Logger) outbox.Outbox {
	return outbox.New(st, log, outbox.DefaultConfig())
}

func ProvideIncidentService(st store.Store, bus pubsub.EventDispatcher, log *slog.Logger) incident.Service {
	return incident.New(st, bus, log)
}

func ProvideCascadeEngine(cfg *config.Config, st store.Store, outboxSvc outbox.Outbox, incSvc incident.Service, bus pubsub.EventDispatcher, chatPort chat.Port, voicePort voice.Port, log *slog.Logger) *cascade.Engine {
	cascadeCfg := cascade.DefaultConfig()
	cascadeCfg.DefaultRingTimeout = cfg.DefaultRingTimeout
	cascadeCfg.DefaultMaxRetries = cfg.DefaultMaxRetries
	cascadeCfg.DefaultRetryBackoff = cfg.DefaultRetryBackoff
	cascadeCfg.ReminderInterval = cfg.DefaultReminderInterval
	cascadeCfg.MaxTotalRingPerGuardian = cfg.IncidentMaxTotalRing
	cascadeCfg.AllowedE164Numbers = cfg.AllowedE164Numbers
	cascadeCfg.FeatureAllowOnlyWhitelist = cfg.FeatureAllowOnlyWhitelist
	if cfg.PublicBaseURL != "" {
		cascadeCfg.VoiceStatusCallbackURL = cfg.PublicBaseURL + "/webhook/voice"
	}
	return cascade.New(st, outboxSvc, incSvc, bus, chatPort, voicePort, cascadeCfg, log)
}

func ProvideSchedulerRegistry(cascadeEng *cascade.Engine) scheduler.Registry {
	return scheduler.Registry{
		model.ActionPlaceCallAttempt: cascadeEng.PlaceCallAttemptHandler,
		model.ActionSendReminder:     cascadeEng.SendReminderHandler,
	}
}

func ProvideSchedulerRunner(st store.Store, registry scheduler.Registry, log *slog.Logger, elector *scheduler.RedisLeaderElector) *scheduler.Runner {
	return scheduler.New(st, registry, scheduler.DefaultConfig(), log, elector)
}

func ProvideWebhookHandler(cfg *config.Config, st store.Store, inboxSvc inbox.Inbox, incSvc incident.Service, cascadeEng *cascade.Engine, chatPort chat.Port, log *slog.Logger) *webhook.Handler {
	return webhook.New(st, inboxSvc, incSvc, cascadeEng, chatPort, webhook.Config{
		ChatWebhookSecret: cfg.ChatWebhookSecret,
		VoiceHMACSecret:   cfg.VoiceAPIKey,
	}, log)
}

func ProvideAdminHandler(cfg *config.Config, incSvc incident.Service, db *sql.DB, log *slog.Logger) *admin.Handler {
	return admin.New(incSvc, db, admin.Config{AdminKey: cfg.AdminKey}, log)
}

func ProvideHealthHandler(pg *postgres.PGStore, runner *scheduler.Runner, log *slog.Logger) *health.Handler {
	return health.New(func(ctx context.Context) error {
		if err := pg.Ping(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		return runner.Healthy()
	}, log)
}

// RunScheduler and RunCascadeEngine start the two long-lived background
// loops under fx's lifecycle: both block on ctx, so each runs in its own
// goroutine started on OnStart and stopped via context cancellation on
// OnStop (spec §5: web tier and scheduler tier are independent concurrency
// domains).
func RunScheduler(lc fx.Lifecycle, cfg *config.Config, runner *scheduler.Runner, log *slog.Logger) {
	if !cfg.SchedulerEnabled {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := runner.Run(ctx); err != nil {
					log.Error("scheduler runner stopped", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func RunCascadeEngine(lc fx.Lifecycle, cascadeEng *cascade.Engine, log *slog.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := cascadeEng.Start(ctx); err != nil {
					log.Error("cascade engine stopped", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

// RunHTTPServers wires the two listeners this process serves: the main API
// (health, webhook, admin) and a separate metrics exposition endpoint, so
// scraping never competes with request-handling traffic.
func RunHTTPServers(lc fx.Lifecycle, cfg *config.Config, webhookH *webhook.Handler, adminH *admin.Handler, healthH *health.Handler, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/health/", http.StripPrefix("/health", healthH.Router()))
	mux.Handle("/webhook/", http.StripPrefix("/webhook", webhookH.Router()))
	mux.Handle("/admin/", http.StripPrefix("/admin", adminH.Router()))

	apiServer := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("api server stopped", "error", err)
				}
			}()
			go func() {
				if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("metrics server stopped", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			_ = apiServer.Shutdown(ctx)
			return metricsServer.Shutdown(ctx)
		},
	})
}
