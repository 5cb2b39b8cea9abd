package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klokku/ritual/internal/config"
	"github.com/klokku/ritual/internal/database"
	"github.com/klokku/ritual/internal/event_bus"
	"github.com/klokku/ritual/internal/utils"
	"github.com/klokku/ritual/pkg/action"
	"github.com/klokku/ritual/pkg/backup"
	"github.com/klokku/ritual/pkg/cloudsync"
	"github.com/klokku/ritual/pkg/day"
	"github.com/klokku/ritual/pkg/execution"
	"github.com/klokku/ritual/pkg/reminder"
	"github.com/klokku/ritual/pkg/routine"
	"github.com/klokku/ritual/pkg/settings"
	"github.com/klokku/ritual/pkg/storage"
	log "github.com/sirupsen/logrus"
)

// Dependencies holds all services and handlers for the application.
type Dependencies struct {
	Clock    utils.Clock
	EventBus *event_bus.EventBus
	Store    *storage.Store

	SettingsService *settings.ServiceImpl
	SettingsHandler *settings.Handler

	RoutineRepo    routine.Repository
	RoutineService routine.Service
	RoutineHandler *routine.Handler

	ExecutionService *execution.ServiceImpl
	ExecutionHandler *execution.Handler

	ActionService *action.ServiceImpl
	ActionHandler *action.Handler

	DayService   *day.ServiceImpl
	NoteExporter *day.Exporter
	DayHandler   *day.Handler

	ReminderService *reminder.ServiceImpl
	ReminderHandler *reminder.Handler

	BackupService *backup.ServiceImpl
	BackupHandler *backup.Handler

	SyncDB         *pgxpool.Pool
	SyncEngine     *cloudsync.Engine
	NetworkMonitor *cloudsync.NetworkMonitor
	SyncHandler    *cloudsync.Handler
}

// BuildDependencies opens the configured storage and wires every service on
// top of it. Sync stays local when no remote is configured or reachable.
func BuildDependencies(ctx context.Context, cfg config.Application, clock utils.Clock) (*Dependencies, error) {
	deps := &Dependencies{Clock: clock}

	backend, err := storage.OpenBackend(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Backend, err)
	}
	deps.EventBus = event_bus.NewEventBus()
	deps.Store = storage.NewStore(backend, deps.EventBus)
	saveDelay := cfg.Schedule.SaveDebounce

	deps.SettingsService = settings.NewService(deps.Store, deps.EventBus)
	deps.SettingsHandler = settings.NewHandler(deps.SettingsService)
	today := func(ctx context.Context) string {
		return deps.SettingsService.Get(ctx).DateOf(deps.Clock.Now())
	}

	deps.RoutineRepo = routine.NewRepository(deps.Store)
	deps.RoutineService = routine.NewService(deps.RoutineRepo, clock)
	deps.RoutineHandler = routine.NewHandler(deps.RoutineService)

	deps.ExecutionService = execution.NewService(deps.Store, deps.RoutineService, deps.SettingsService, clock, deps.EventBus, saveDelay)
	deps.ExecutionHandler = execution.NewHandler(deps.ExecutionService, today)

	deps.ActionService = action.NewService(deps.Store, deps.RoutineService, deps.SettingsService, clock, deps.EventBus, saveDelay)
	deps.ActionHandler = action.NewHandler(deps.ActionService, today)

	deps.DayService = day.NewService(deps.Store, clock, deps.EventBus, saveDelay)
	deps.NoteExporter = day.NewExporter(deps.DayService, deps.RoutineService, deps.ExecutionService, deps.ActionService)
	deps.DayHandler = day.NewHandler(deps.DayService, deps.NoteExporter, today)

	deps.ReminderService = reminder.NewService(deps.Store, deps.SettingsService, reminder.LogNotifier{})
	deps.ReminderHandler = reminder.NewHandler(deps.ReminderService, today)

	deps.BackupService = backup.NewService(deps.Store, deps.RoutineRepo, deps.EventBus, clock,
		deps.ExecutionService, deps.ActionService, deps.DayService)
	deps.BackupHandler = backup.NewHandler(deps.BackupService)

	remote, err := deps.openRemote(ctx, cfg.Sync)
	if err != nil {
		log.Errorf("cloud sync disabled: %v", err)
		remote = nil
	}
	deps.SyncEngine = cloudsync.NewEngine(deps.Store, remote, deps.EventBus, clock, cfg.Sync.Debounce,
		func(ctx context.Context) bool { return deps.SettingsService.Get(ctx).SyncEnabled })
	deps.SyncHandler = cloudsync.NewHandler(deps.SyncEngine)
	if remote != nil {
		deps.NetworkMonitor = cloudsync.NewNetworkMonitor(remote, deps.EventBus, cfg.Sync.PingInterval)
	}

	return deps, nil
}

func (d *Dependencies) openRemote(ctx context.Context, cfg config.Sync) (cloudsync.Remote, error) {
	if !cfg.Configured() {
		return nil, nil
	}
	switch cfg.Kind {
	case config.RemotePostgres:
		if err := database.Migrate(cfg.Database); err != nil {
			return nil, err
		}
		db, err := database.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		d.SyncDB = db
		return cloudsync.NewPostgresRemote(db, cfg.UserUid), nil
	case config.RemoteRest:
		return cloudsync.NewRestRemote(ctx, cfg.Rest), nil
	default:
		return nil, fmt.Errorf("unknown sync kind %q", cfg.Kind)
	}
}

// Close writes everything still pending and releases storage. Services are
// flushed before the sync engine so their last writes get pushed too.
func (d *Dependencies) Close(ctx context.Context) {
	if d.NetworkMonitor != nil {
		d.NetworkMonitor.Stop()
	}
	d.ExecutionService.Close()
	d.ActionService.Close()
	d.DayService.Close()
	d.SyncEngine.Shutdown(ctx)
	if d.SyncDB != nil {
		d.SyncDB.Close()
	}
	if err := d.Store.Close(); err != nil {
		log.Warnf("failed to close storage: %v", err)
	}
}
