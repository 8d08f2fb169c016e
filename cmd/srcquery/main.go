// main is the entry point of srcquery.
// One-shot commands query a game server and print the answer, serve runs the
// HTTP query proxy with the server registry and check refreshes that registry.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/srcquery/internal/config"
	"github.com/woozymasta/srcquery/internal/geoip"
	"github.com/woozymasta/srcquery/internal/logger"
	"github.com/woozymasta/srcquery/internal/maintenance"
	"github.com/woozymasta/srcquery/internal/query"
	"github.com/woozymasta/srcquery/internal/render"
	"github.com/woozymasta/srcquery/internal/server"
	"github.com/woozymasta/srcquery/internal/storage"
)

func main() {
	cfg := config.Parse()
	logger.Setup(cfg.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cfg.Command {
	case config.CommandServe:
		err = serve(ctx, cfg)
	case config.CommandCheck:
		err = check(ctx, cfg)
	default:
		err = runQuery(cfg)
	}

	if err != nil {
		stop()
		log.Fatal().Err(err).Str("command", cfg.Command).Msg("Command failed")
	}
}

// runQuery executes a one-shot info, players or rules command.
func runQuery(cfg *config.Config) error {
	target := cfg.Target()

	client, err := query.NewClient(target.Host, target.Port, cfg.A2S)
	if err != nil {
		return err
	}

	switch cfg.Command {
	case config.CommandPlayers:
		players, err := client.GetPlayers()
		if err != nil {
			return err
		}
		return render.Players(os.Stdout, target.Format, players)

	case config.CommandRules:
		rules, err := client.GetRules()
		if err != nil {
			return err
		}
		return render.Rules(os.Stdout, target.Format, rules)

	default:
		info, err := client.GetInfo()
		if err != nil {
			return err
		}
		return render.Info(os.Stdout, target.Format, info)
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	opts := cfg.Serve
	log.Info().Msg("Starting srcquery service...")

	geoProvider := openGeoIP(ctx, opts.GeoIP)
	defer func() {
		if err := geoProvider.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing GeoIP provider")
		}
	}()

	store, err := storage.New(opts.Storage.Path)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database")
		}
	}()

	srvHandler := server.New(store, geoProvider, opts, cfg.A2S)
	srvHandler.StartWorkers()

	// A players query waits for two answers, each may use a full challenge round trip.
	queryBudget := 4 * cfg.A2S.Timeout
	httpServer := &http.Server{
		Addr:              opts.Server.Address,
		Handler:           srvHandler.Run(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      queryBudget + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("address", opts.Server.Address).Msg("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		srvHandler.StopWorkers()
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), queryBudget+5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Drain announces already queued
	srvHandler.StopWorkers()

	log.Info().Msg("Server exited")
	return nil
}

// openGeoIP refreshes and opens the country database. Failures only disable country detection.
func openGeoIP(ctx context.Context, opts config.GeoIP) *geoip.Provider {
	if opts.Disable {
		log.Info().Msg("GeoIP disabled")
		return nil
	}

	log.Info().Msg("Checking GeoIP database...")
	if err := geoip.EnsureDB(ctx, opts.Path, opts.URL, opts.Interval); err != nil {
		log.Error().Err(err).Msg("Failed to download GeoIP database")
	}

	provider, err := geoip.Open(opts.Path)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open GeoIP database, country detection disabled")
		return nil
	}

	return provider
}

func check(ctx context.Context, cfg *config.Config) error {
	opts := cfg.Check

	store, err := storage.New(opts.Storage.Path)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database")
		}
	}()

	if opts.Refresh.PruneEmpty {
		_, err := maintenance.PruneEmpty(store, opts.Refresh.Game)
		return err
	}

	_, err = maintenance.Run(ctx, store, opts.Refresh, cfg.A2S)
	return err
}
