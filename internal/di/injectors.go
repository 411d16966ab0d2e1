//go:build wireinject
// +build wireinject

package di

import (
	wire "github.com/google/wire"
	"ogd/internal"
	"ogd/internal/archive"
	"ogd/internal/compression"
	"ogd/internal/controllers"
	"ogd/internal/importer"
	"ogd/internal/mirror"
	"ogd/internal/providers"
	"ogd/internal/storage"
	"ogd/internal/structures"
)

func InitApp(cfg *structures.CliFlags) (*internal.App, error) {

	wire.Build(
		providers.NewConfigProvider,
		providers.NewLogProvider,

		compression.NewZstdCompressor,
		archive.NewArchiveClient,
		storage.NewRemoteStore,
		storage.NewWriter,
		mirror.NewMirrorStore,
		importer.NewSyncStateStore,
		importer.NewWorker,
		importer.NewOrchestrator,

		provideMetrics,
		provideCache,

		controllers.NewImportController,
		controllers.NewGraphController,
		controllers.NewHealthController,
		internal.InitRoutes,
		internal.NewApp,
	)

	return nil, nil
}
