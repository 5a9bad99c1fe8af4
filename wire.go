//go:build wireinject
// +build wireinject

package main

import (
	"context"

	"github.com/google/wire"

	"github.com/perimetric/sentinel-pipeline/config"
	"github.com/perimetric/sentinel-pipeline/controllers"
	"github.com/perimetric/sentinel-pipeline/pipeline"
	"github.com/perimetric/sentinel-pipeline/prune"
	"github.com/perimetric/sentinel-pipeline/storage"
)

var (
	configInjectorSet = wire.NewSet(GetConfig,
		wire.Bind(new(config.RelationalDatabaseConfig), new(*config.Config)),
		wire.Bind(new(config.HTTPConfig), new(*config.Config)),
		wire.Bind(new(config.QueueConfig), new(*config.Config)),
		wire.Bind(new(config.RetryConfig), new(*config.Config)),
		wire.Bind(new(config.CircuitBreakerConfig), new(*config.Config)),
		wire.Bind(new(config.BatchConfig), new(*config.Config)),
		wire.Bind(new(config.StateStoreConfig), new(*config.Config)),
		wire.Bind(new(config.BroadcastConfig), new(*config.Config)),
		wire.Bind(new(config.PipelineConfig), new(*config.Config)),
		wire.Bind(new(config.DLQConfig), new(*config.Config)),
		wire.Bind(new(config.RetentionConfig), new(*config.Config)))
	pipelineWithControllerSet = wire.NewSet(NewHTTPServiceContainer, NewServerListener, configInjectorSet, GetMigrationConfig,
		wire.Bind(new(controllers.ServerLifecycleListener), new(*ServerLifecycleListenerImpl)),
		controllers.ControllerInjector, storage.GetNewDataAccessor, pipeline.PipelineInjector, pipeline.MetricsInjector,
		prune.ServiceInjector)
)

// GetAppVersion retrieves the app version
func GetAppVersion() config.AppVersion {
	wire.Build(config.GetVersion)

	return ""
}

// GetHTTPServer provides the fully wired service container
func GetHTTPServer(ctx context.Context, cliConfig *config.CLIConfig) (*HTTPServiceContainer, error) {
	wire.Build(pipelineWithControllerSet)

	return &HTTPServiceContainer{}, nil
}
