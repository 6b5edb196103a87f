// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/pickuphq/pickup/internal/auth"
	"github.com/pickuphq/pickup/internal/database"
	"github.com/pickuphq/pickup/internal/handlers"
	"github.com/pickuphq/pickup/internal/lobby"
	"github.com/pickuphq/pickup/internal/middleware"
	"github.com/pickuphq/pickup/internal/notify"
	"github.com/pickuphq/pickup/internal/store"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	if err := auth.Init(); err != nil {
		logger.Fatalf("auth init failed: %v", err)
	}
	if err := database.Connect(); err != nil {
		logger.Fatalf("postgres connect failed: %v", err)
	}
	defer database.DB.Close()
	if err := store.ConnectRedis(); err != nil {
		logger.Fatalf("redis connect failed: %v", err)
	}

	cfg := lobby.ConfigFromEnv()
	repo := lobby.NewRepository(store.NewRedisStore(store.Rdb), cfg.RecordTTL)
	feed := notify.NewRedisNotifier(store.Rdb)
	svc := lobby.NewService(repo, database.RatingSource{}, database.ScoreReporter{}, feed, cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// The sweeps run on two cadences: a short one for deadline-driven
	// transitions, a long one for stale-lobby cleanup.
	go lobby.SweepLoop(ctx, sweepInterval("SWEEP_ACTIVE_INTERVAL", 30*time.Second), svc.SweepActive, func(err error) {
		logger.WithError(err).Warn("active sweep failed")
	})
	go lobby.SweepLoop(ctx, sweepInterval("SWEEP_STALE_INTERVAL", 10*time.Minute), svc.SweepStale, func(err error) {
		logger.WithError(err).Warn("stale sweep failed")
	})

	logged := middleware.LogMiddleware(logger)

	mux := http.NewServeMux()

	// user endpoints
	mux.Handle("/user/create", logged(http.HandlerFunc(handlers.CreateUserHandler)))
	mux.Handle("/user/login", logged(http.HandlerFunc(handlers.LoginHandler)))

	// lobby endpoints
	mux.Handle("/lobby/create", logged(handlers.CreateLobbyHandler(svc)))
	mux.Handle("/lobby/get", logged(handlers.GetLobbyHandler(svc)))
	mux.Handle("/lobby/join", logged(handlers.JoinLobbyHandler(svc)))
	mux.Handle("/lobby/leave", logged(handlers.LeaveLobbyHandler(svc)))
	mux.Handle("/lobby/vote/settings", logged(handlers.VoteSettingsHandler(svc)))
	mux.Handle("/lobby/vote/winner", logged(handlers.VoteWinnerHandler(svc)))

	// lobby event feed
	mux.Handle("/lobby/ws/", logged(handlers.LobbyEventsHandler(logger, svc, feed)))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Infof("Running on %s", addr)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		logger.Fatalf("server exited: %v", err)
	case <-ctx.Done():
		logger.Info("terminating")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}
}

func sweepInterval(key string, def time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			return d
		}
	}
	return def
}
