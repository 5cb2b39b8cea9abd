package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/klokku/ritual/internal/config"
	"github.com/klokku/ritual/internal/utils"
	log "github.com/sirupsen/logrus"
)

// Application wires configuration, storage, router, background jobs and
// server lifecycle.
type Application struct {
	cfg    config.Application
	deps   *Dependencies
	router *mux.Router
	srv    *http.Server
	days   *DayWatcher
}

// NewApplication constructs the full HTTP application, ready to Run().
func NewApplication(ctx context.Context, cfg config.Application) (*Application, error) {
	deps, err := BuildDependencies(ctx, cfg, utils.SystemClock{})
	if err != nil {
		return nil, err
	}

	r := mux.NewRouter()
	SetupMiddleware(r)
	RegisterRoutes(r, deps)

	srv := &http.Server{
		Handler:      r,
		Addr:         cfg.Host,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Application{
		cfg:    cfg,
		deps:   deps,
		router: r,
		srv:    srv,
		days:   NewDayWatcher(deps.Clock, deps.SettingsService, deps.EventBus),
	}, nil
}

func (a *Application) Dependencies() *Dependencies {
	return a.deps
}

// Init starts cloud sync. Sync failures never stop the application.
func (a *Application) Init(ctx context.Context) {
	a.days.Check(ctx)
	if err := a.deps.SyncEngine.Init(ctx); err != nil {
		log.Errorf("cloud sync init failed: %v", err)
	}
}

// Run starts the background jobs and the HTTP server and blocks until ctx is
// done, then shuts everything down.
func (a *Application) Run(ctx context.Context) error {
	a.Init(ctx)

	jobsCtx, stopJobs := context.WithCancel(ctx)
	var jobs sync.WaitGroup
	every(jobsCtx, &jobs, "rollover", a.cfg.Schedule.RolloverInterval, func(ctx context.Context) {
		a.days.Check(ctx)
	})
	every(jobsCtx, &jobs, "reminders", a.cfg.Schedule.ReminderInterval, func(ctx context.Context) {
		a.deps.ReminderService.Poll(ctx, a.deps.Clock.Now())
	})
	if a.deps.NetworkMonitor != nil {
		a.deps.NetworkMonitor.Start(jobsCtx)
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infof("Starting server on %s", a.srv.Addr)
		serveErr <- a.srv.ListenAndServe()
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	}

	stopJobs()
	jobs.Wait()
	a.Shutdown()
	return err
}

// Shutdown stops the server and writes everything still pending.
func (a *Application) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(ctx); err != nil {
		log.Warnf("server shutdown: %v", err)
	}
	a.deps.Close(ctx)
	log.Info("Application stopped")
}
