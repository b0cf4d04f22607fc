// cmd/server/main.go
package main

import (
	"context"
	"net/http"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/ladderworks/challenge-api/internal/cache"
	"github.com/ladderworks/challenge-api/internal/config"
	"github.com/ladderworks/challenge-api/internal/handlers"
	"github.com/ladderworks/challenge-api/internal/middleware"
	"github.com/ladderworks/challenge-api/internal/processor"
	"github.com/ladderworks/challenge-api/internal/store"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	cfg := config.Load()

	var (
		st  store.Store
		err error
	)
	switch cfg.StoreBackend {
	case "postgres":
		st, err = store.NewPostgresStore(context.Background(), cfg.PostgresURL())
	case "bolt":
		st, err = store.NewBoltStore(cfg.BoltPath)
	default:
		logger.Fatalf("unknown store backend %q", cfg.StoreBackend)
	}
	if err != nil {
		logger.Fatalf("failed to open %s store: %v", cfg.StoreBackend, err)
	}
	defer st.Close()
	logger.Infof("using %s store", cfg.StoreBackend)

	opts := []processor.Option{}

	var lbCache *cache.LeaderboardCache
	if cfg.RedisAddr != "" {
		lbCache, err = cache.NewLeaderboardCache(cfg.RedisAddr, cfg.RedisDB, logger)
		if err != nil {
			logger.Fatalf("failed to connect redis: %v", err)
		}
		defer lbCache.Close()
		opts = append(opts, processor.WithInvalidator(lbCache))
		logger.Infof("leaderboard cache enabled at %s", cfg.RedisAddr)
	}

	feed := handlers.NewFeedHub(logger)
	opts = append(opts, processor.WithPublisher(feed))

	proc := processor.New(st, cfg.Glicko, cfg.StoreTimeout, logger, opts...)

	api := &handlers.API{
		Store:     st,
		Processor: proc,
		Params:    cfg.Glicko,
		Logger:    logger,
		Feed:      feed,
	}
	if lbCache != nil {
		api.Cache = lbCache
	}

	logged := middleware.LogMiddleware(logger)
	mux := http.NewServeMux()

	// player endpoints
	mux.Handle("/player/", logged(http.HandlerFunc(api.GetPlayerHandler)))
	mux.Handle("/top", logged(http.HandlerFunc(api.TopHandler)))
	mux.Handle("/top/", logged(http.HandlerFunc(api.TopHandler)))
	mux.Handle("/create", logged(http.HandlerFunc(api.CreatePlayerHandler)))
	mux.Handle("/create/", logged(http.HandlerFunc(api.CreatePlayerHandler)))

	// game result submission
	mux.Handle("/game", logged(http.HandlerFunc(api.GameResultHandler)))

	// live rating updates
	mux.Handle("/feed", logged(http.HandlerFunc(api.FeedHandler)))

	addr := ":" + cfg.Port
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatalf("server exited: %v", err)
	}
}
