// Package maintenance re-queries registered servers and refreshes or prunes their records.
package maintenance

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/srcquery/internal/config"
	"github.com/woozymasta/srcquery/internal/models"
	"github.com/woozymasta/srcquery/internal/query"
	"github.com/woozymasta/srcquery/internal/storage"
	"golang.org/x/time/rate"
)

type snapshotFunc func(ip string, port int, options config.A2S) (*models.Server, error)

// Stats summarizes a refresh run.
type Stats struct {
	Checked     int64 `json:"checked"`
	Updated     int64 `json:"updated"`
	Unreachable int64 `json:"unreachable"`
	Deleted     int64 `json:"deleted"`
}

// Run refreshes the servers selected by opts. Queries are spread over opts.Workers
// goroutines and paced to opts.Rate per second. Cancelling ctx stops scheduling new queries.
func Run(ctx context.Context, store *storage.Repository, opts config.Refresh, a2sOptions config.A2S) (Stats, error) {
	return run(ctx, store, opts, a2sOptions, query.Snapshot)
}

func run(ctx context.Context, store *storage.Repository, opts config.Refresh, a2sOptions config.A2S, snapshot snapshotFunc) (Stats, error) {
	log.Info().
		Str("game", opts.Game).
		Bool("only_empty", opts.OnlyEmpty).
		Msg("Fetching servers for check...")

	servers, err := store.GetServersSubset(opts.Game, opts.OnlyEmpty)
	if err != nil {
		return Stats{}, err
	}

	if len(servers) == 0 {
		log.Info().Msg("No servers found for maintenance")
		return Stats{}, nil
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	workers = min(workers, len(servers))

	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}
	limiter := rate.NewLimiter(limit, 1)

	log.Info().Int("count", len(servers)).Int("workers", workers).Float64("rate", opts.Rate).Msg("Starting check")

	var (
		stats counters
		wg    sync.WaitGroup
		jobs  = make(chan models.Server)
	)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range jobs {
				processServer(s, store, opts.Prune, a2sOptions, snapshot, &stats)
			}
		}()
	}

	var runErr error
	for _, s := range servers {
		if err := limiter.Wait(ctx); err != nil {
			runErr = err
			break
		}
		jobs <- s
	}
	close(jobs)
	wg.Wait()

	result := stats.snapshot()
	log.Info().
		Int64("checked", result.Checked).
		Int64("updated", result.Updated).
		Int64("unreachable", result.Unreachable).
		Int64("deleted", result.Deleted).
		Msg("Maintenance task completed")

	return result, runErr
}

// PruneEmpty deletes servers that never answered A2S, optionally for one game folder.
func PruneEmpty(store *storage.Repository, folder string) (int64, error) {
	log.Info().Str("game", folder).Msg("Pruning servers without A2S data...")

	n, err := store.DeleteEmptyServers(folder)
	if err != nil {
		return 0, err
	}

	log.Info().Int64("deleted", n).Msg("Prune finished")
	return n, nil
}

type counters struct {
	checked, updated, unreachable, deleted atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Checked:     c.checked.Load(),
		Updated:     c.updated.Load(),
		Unreachable: c.unreachable.Load(),
		Deleted:     c.deleted.Load(),
	}
}

func processServer(s models.Server, store *storage.Repository, prune bool, a2sOptions config.A2S, snapshot snapshotFunc, stats *counters) {
	stats.checked.Add(1)

	logCtx := log.With().
		Str("ip", s.IP).
		Int("port", s.Port).
		Logger()

	if s.Port <= 0 || s.Port > 65535 {
		logCtx.Debug().Msg("Invalid port, deleting server")
		deleteServer(store, s, stats)
		return
	}

	fresh, err := snapshot(s.IP, s.Port, a2sOptions)
	if err != nil {
		stats.unreachable.Add(1)
		if !prune {
			logCtx.Debug().Err(err).Msg("Server unreachable")
			return
		}

		logCtx.Debug().Err(err).Msg("Server unreachable, deleting")
		deleteServer(store, s, stats)
		return
	}

	fresh.FirstSeen = s.FirstSeen
	if err := store.UpsertServer(*fresh); err != nil {
		logCtx.Error().Err(err).Msg("Failed to update server")
		return
	}

	stats.updated.Add(1)
	logCtx.Trace().Msg("Server updated")
}

func deleteServer(store *storage.Repository, s models.Server, stats *counters) {
	deleted, err := store.DeleteServer(s.IP, s.Port)
	if err != nil {
		log.Error().Err(err).Str("ip", s.IP).Int("port", s.Port).Msg("Failed to delete server")
		return
	}
	if deleted {
		stats.deleted.Add(1)
	}
}
