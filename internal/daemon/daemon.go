package daemon

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/layerline/layerd/internal/api"
	"github.com/layerline/layerd/internal/app/bridge"
	"github.com/layerline/layerd/internal/app/community"
	"github.com/layerline/layerd/internal/app/exchange"
	"github.com/layerline/layerd/internal/app/migration"
	"github.com/layerline/layerd/internal/domain"
	"github.com/layerline/layerd/internal/infra/sqlite"
)

// Daemon is the assembled engine.
type Daemon struct {
	cfg        Config
	db         *sqlite.DB
	server     *api.Server
	aggregator *community.Aggregator
	bridge     *bridge.Service
	cron       *cron.Cron
}

// New opens storage and wires the services.
func New(cfg Config) (*Daemon, error) {
	// A hole in the transition table is a build defect; refuse to start.
	if err := domain.ValidateTransitionTable(); err != nil {
		return nil, err
	}

	db, err := sqlite.Open(cfg.DataDir())
	if err != nil {
		return nil, err
	}

	aggregator := community.New(db, db)
	aggregator.SetDefaultGiftThreshold(cfg.Community.GiftThreshold)
	celebrations := exchange.NewCelebrations(db)
	ex := exchange.New(db, db, celebrations)
	executor := migration.New(db, celebrations, aggregator)
	br := bridge.New(db)

	server := api.NewServer(db, executor, aggregator, ex, celebrations, br)
	if cfg.Metrics.Enabled {
		server.EnableMetrics()
	}

	return &Daemon{
		cfg:        cfg,
		db:         db,
		server:     server,
		aggregator: aggregator,
		bridge:     br,
	}, nil
}

// Run serves HTTP until SIGINT/SIGTERM, running the sweep on its schedule.
func (d *Daemon) Run() error {
	defer d.db.Close()

	if d.cfg.Sweep.Enabled {
		d.cron = cron.New()
		if _, err := d.cron.AddFunc(d.cfg.Sweep.Schedule, d.sweep); err != nil {
			return fmt.Errorf("invalid sweep schedule %q: %w", d.cfg.Sweep.Schedule, err)
		}
		d.cron.Start()
		defer d.cron.Stop()
		// One pass at boot so counters are fresh before the first tick.
		go d.sweep()
	}

	srv := &http.Server{
		Addr:    d.cfg.ListenAddr(),
		Handler: d.server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[daemon] listening on %s", d.cfg.ListenAddr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Printf("[daemon] received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// sweep is the periodic reconciliation pass: rebuild every community's
// counters from scratch and materialize upcoming auto bridge events.
func (d *Daemon) sweep() {
	d.aggregator.ReconcileAll()

	ids, err := d.db.ListCommunityIDs()
	if err != nil {
		log.Printf("[daemon] sweep: list communities: %v", err)
		return
	}
	for _, id := range ids {
		cfg, err := d.aggregator.Config(id)
		if err != nil {
			log.Printf("[daemon] sweep: config %s: %v", id, err)
			continue
		}
		d.bridge.EnsureRecurring(*cfg)
	}
}
