package di

import (
	"ogd/internal/importer"
	"ogd/internal/providers"
	"ogd/internal/storage"
	"ogd/internal/structures"
)

// provideMetrics builds the metrics provider against the orchestrator's
// stats and hands it back to the writer, which is constructed earlier in
// the graph and cannot take it as a constructor argument.
func provideMetrics(conf *structures.Config, orchestrator importer.OrchestratorInterface, writer storage.WriterInterface) providers.MetricsProviderInterface {
	m := providers.NewMetricsProvider(conf, orchestrator)
	writer.AttachMetrics(m)
	return m
}

func provideCache(conf *structures.Config, logger providers.Logger, metrics providers.MetricsProviderInterface) providers.CacheProviderInterface {
	return providers.NewInstrumentedCacheProvider(conf, logger, metrics)
}
