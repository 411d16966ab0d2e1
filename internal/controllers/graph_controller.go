package controllers

import (
	"net/http"
	"strconv"

	json "github.com/goccy/go-json"

	"ogd/internal/providers"
	"ogd/internal/storage"
	"ogd/internal/structures"
)

const defaultListLimit = 100

type GraphController struct {
	logger providers.Logger
	store  storage.RemoteStoreInterface
	cache  providers.CacheProviderInterface
	conf   *structures.Config
}

func NewGraphController(logger providers.Logger, store storage.RemoteStoreInterface, cache providers.CacheProviderInterface, conf *structures.Config) *GraphController {
	return &GraphController{
		logger: logger,
		store:  store,
		cache:  cache,
		conf:   conf,
	}
}

func getLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	return limit
}

func (gc *GraphController) serveFromCacheOrCompute(w http.ResponseWriter, cacheKey string, compute func() (any, error)) {
	if data, ok := gc.cache.Get(cacheKey); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}

	result, err := compute()
	if err != nil {
		gc.logger.Errorf(providers.TypeGet, "Query failed: %s", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	gson, err := json.Marshal(result)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	gc.cache.Set(cacheKey, gson)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(gson)
}

func (gc *GraphController) GetGraph(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	platform := q.Get("platform")
	username := q.Get("username")
	if platform == "" || username == "" {
		http.Error(w, "platform and username are required", http.StatusBadRequest)
		return
	}
	filter := q.Get("filter")
	if filter == "" {
		filter = "all"
	}
	position := q.Get("position")
	limit := getLimit(r)

	key := "graph:" + platform + ":" + username + ":" + filter + ":" + position + ":" + strconv.Itoa(limit)
	gc.serveFromCacheOrCompute(w, key, func() (any, error) {
		return gc.store.ListNodes(r.Context(), platform, username, filter, position, limit)
	})
}

func (gc *GraphController) GetGames(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	platform := q.Get("platform")
	username := q.Get("username")
	if platform == "" || username == "" {
		http.Error(w, "platform and username are required", http.StatusBadRequest)
		return
	}
	limit := getLimit(r)

	owner := gc.conf.Importer.ProfileOwner
	key := "games:" + platform + ":" + username + ":" + strconv.Itoa(limit)
	gc.serveFromCacheOrCompute(w, key, func() (any, error) {
		return gc.store.ListGames(r.Context(), owner, platform, username, limit)
	})
}
