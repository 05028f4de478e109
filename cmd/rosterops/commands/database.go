package commands

import (
	"context"
	"database/sql"
	"math/rand"
	"time"

	"github.com/opusguard/rosterops/bulk"
	"github.com/opusguard/rosterops/config"
	"github.com/opusguard/rosterops/db"
	"github.com/opusguard/rosterops/errors"
	"github.com/opusguard/rosterops/logger"
	"github.com/opusguard/rosterops/people"
)

// openDatabase loads configuration, opens the sqlite database at the
// configured (or overridden) path, and applies migrations.
func openDatabase(pathOverride string) (*sql.DB, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, errors.Wrap(err, "load configuration")
	}
	path := cfg.Database.Path
	if pathOverride != "" {
		path = pathOverride
	}
	conn, err := db.Open(path, logger.Logger)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(conn, logger.Logger); err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, cfg, nil
}

// engine bundles the wired bulk-change collaborators for a command run.
type engine struct {
	conn  *sql.DB
	cfg   *config.Config
	dir   *people.Directory
	store *bulk.JobStore
	sched *bulk.Scheduler
}

func (e *engine) Close() {
	e.sched.Stop()
	e.conn.Close()
}

// waitForTerminal blocks until the job reaches a terminal status. The
// store may be driving the job on a background goroutine, so polling is
// the reliable way to observe the finish regardless of who runs it.
func waitForTerminal(ctx context.Context, store *bulk.JobStore, id string) (*bulk.Job, error) {
	for {
		job, err := store.Job(id)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// newEngine wires directory, runner, scheduler, and job store over the
// configured database.
func newEngine(pathOverride string) (*engine, error) {
	conn, cfg, err := openDatabase(pathOverride)
	if err != nil {
		return nil, err
	}
	dir := people.NewDirectory(conn)
	seed := time.Now().UnixNano()
	runner := bulk.NewRunner(
		bulk.NewRandomPolicy(cfg.Runner, bulk.KindWizard, seed),
		bulk.NewRandomPolicy(cfg.Runner, bulk.KindCSV, rand.Int63()),
		cfg.Runner.ValidationSettle(),
		logger.Named("runner"),
	)
	sched := bulk.NewScheduler(cfg.Scheduler.MaxPendingTimers, logger.Named("scheduler"))
	store := bulk.NewJobStore(conn, dir, runner, sched, logger.Named("jobs"))
	return &engine{conn: conn, cfg: cfg, dir: dir, store: store, sched: sched}, nil
}
