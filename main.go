// main.go
//
// Entry point for the reelfling server.
// Responsibilities:
//   - Load .env, parse flags/env into Config (config.go).
//   - Wire the movie provider, results store, daily service and lobby manager.
//   - Serve HTTP until SIGINT/SIGTERM, then shut down gracefully.

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/robalobadob/reelfling/internal/daily"
	"github.com/robalobadob/reelfling/internal/httpserver"
	"github.com/robalobadob/reelfling/internal/match"
	"github.com/robalobadob/reelfling/internal/movies"
	"github.com/robalobadob/reelfling/internal/store"
)

const releaseVersion = "0.1.0"

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := &Config{}
	cobra.CheckErr(newCmd(cfg).ExecuteContext(ctx))
}

func setupLogging(cfg *Config) {
	if lvl, err := zerolog.ParseLevel(cfg.logLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if cfg.prettyLogs {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func serve(ctx context.Context, cfg *Config) error {
	setupLogging(cfg)
	if cfg.tokenSecret == devTokenSecret {
		log.Warn().Msg("using the development token secret; set REELFLING_TOKEN_SECRET in production")
	}

	catalog, err := movies.LoadCatalog(cfg.moviesFile)
	if err != nil {
		return fmt.Errorf("load movies: %w", err)
	}
	var provider movies.Provider = catalog
	if cfg.tmdbAPIKey != "" {
		provider = movies.Fallback{movies.NewTMDb(cfg.tmdbAPIKey, cfg.tmdbBaseURL, cfg.tmdbTimeout), catalog}
	}
	log.Info().Int("movies", catalog.Len()).Bool("tmdb", cfg.tmdbAPIKey != "").Msg("movie provider ready")

	res, err := openResults(ctx, cfg)
	if err != nil {
		return err
	}
	defer res.Close()

	policy := cfg.policy()
	dailySvc := daily.NewService(daily.Options{
		Picker:   catalog,
		Store:    res,
		Recorder: res,
		Salt:     cfg.dailySalt,
		Policy:   policy,
	})
	lobbies := match.NewManager(match.Options{
		Provider:      provider,
		Recorder:      res,
		Policy:        policy,
		PlayerTimeout: cfg.playerTimeout,
	}, cfg.lobbyTimeout)
	defer lobbies.Close()

	sessions := store.NewMemoryStore()
	go store.RunReaper(ctx, sessions, cfg.sessionTTL)

	api := httpserver.New(httpserver.Deps{
		Sessions:     sessions,
		Daily:        dailySvc,
		Lobbies:      lobbies,
		Provider:     provider,
		Recorder:     res,
		Stats:        res,
		Ping:         res.Ping,
		Policy:       policy,
		TokenSecret:  cfg.tokenSecret,
		ClientOrigin: cfg.clientOrigin,
		PublicURL:    cfg.publicURL,
	})

	// No WriteTimeout: lobby websockets are long-lived.
	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", releaseVersion).Msg("starting reelfling")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
