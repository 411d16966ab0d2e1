package internal

import (
	"net/http"
	"ogd/internal/controllers"
	"ogd/internal/providers"
	"ogd/internal/structures"
)

func InitRoutes(importController *controllers.ImportController, graphController *controllers.GraphController, conf *structures.Config) providers.RouterProviderInterface {
	routers := providers.NewRouterProvider()

	routers.Post("/import/enqueue", http.HandlerFunc(importController.Enqueue))
	routers.Post("/import/dequeue", http.HandlerFunc(importController.Dequeue))
	routers.Post("/import/start", http.HandlerFunc(importController.Start))
	routers.Post("/import/stop", http.HandlerFunc(importController.Stop))
	routers.Get("/import/status", http.HandlerFunc(importController.Status))
	routers.Get("/graph", http.HandlerFunc(graphController.GetGraph))
	routers.Get("/games", http.HandlerFunc(graphController.GetGames))
	return routers
}
