package cmd

import (
	"go.uber.org/fx"

	"github.com/antonmal/protectogram/config"
)

// NewApp wires every component (C1-C10 plus the ambient stack) into one
// fx.App. Providers are grouped loosely by tier; RunScheduler,
// RunCascadeEngine, and RunHTTPServers are fx.Invoke hooks rather than
// fx.Provide targets since they only register lifecycle callbacks.
func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,

			ProvidePgxPool,
			ProvideSQLDB,
			ProvideStore,
			ProvideStoreInterface,

			ProvideRedisClient,
			ProvideLeaderElector,

			ProvideBus,
			ProvideEventDispatcher,

			ProvideChatPort,
			ProvideVoicePort,

			ProvideInbox,
			ProvideOutbox,
			ProvideIncidentService,
			ProvideCascadeEngine,
			ProvideSchedulerRegistry,
			ProvideSchedulerRunner,

			ProvideWebhookHandler,
			ProvideAdminHandler,
			ProvideHealthHandler,
		),
		fx.Invoke(
			RunCascadeEngine,
			RunScheduler,
			RunHTTPServers,
		),
	)
}
