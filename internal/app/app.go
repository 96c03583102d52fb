// Package app wires the daemon together: config load and hot reload,
// logging, storage, the scheduling orchestrator, and the periodic
// sweep trigger.
package app

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"sentinel/internal/config"
	"sentinel/internal/eventbus"
	"sentinel/internal/orchestrate"
	"sentinel/internal/panel"
	"sentinel/internal/parse"
	"sentinel/internal/storage"
	"sentinel/internal/sweep"
	"sentinel/internal/validate"
	logx "sentinel/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger
	bus  eventbus.Bus

	store   storage.Store
	dir     *dynamicDirectory
	svc     *orchestrate.Service
	sweeper *sweep.Service

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// dynamicDirectory lets the user directory follow config hot reloads
// while the orchestrator keeps a stable panel.Directory reference.
type dynamicDirectory struct {
	v atomic.Value // panel.StaticDirectory
}

func (d *dynamicDirectory) set(dir panel.StaticDirectory) { d.v.Store(dir) }

func (d *dynamicDirectory) FindUser(ctx context.Context, id string) (panel.User, error) {
	dir, _ := d.v.Load().(panel.StaticDirectory)
	if dir == nil {
		return panel.User{}, panel.ErrUnknownUser
	}
	return dir.FindUser(ctx, id)
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()
	logSvc, log := logx.New(mapLogConfig(cfg), eventbus.LogAdapter{Bus: bus})
	log = log.With(logx.String("comp", "app"))

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	vcfg, err := mapValidationConfig(cfg)
	if err != nil {
		return nil, err
	}
	validator := validate.New(vcfg, store, log.With(logx.String("comp", "validate")))

	ecfg, err := mapExecutorConfig(cfg)
	if err != nil {
		return nil, err
	}
	swcfg, err := mapSweepConfig(cfg)
	if err != nil {
		return nil, err
	}
	// Direct orchestrator sweeps reuse the sweep section's batch knobs.
	ecfg.DueTolerance = swcfg.Tolerance
	ecfg.MaxTasks = swcfg.MaxTasks
	ecfg.StopOnError = swcfg.StopOnError
	ecfg.MaxOverdueAge = swcfg.MaxOverdueAge

	dir := &dynamicDirectory{}
	dir.set(mapDirectory(cfg))

	svc := orchestrate.New(ecfg, store, validator,
		parse.New(cfg.Parser.Timezone),
		panel.NewLocal(), dir, bus,
		log.With(logx.String("comp", "orchestrate")))

	sweeper := sweep.New(swcfg, svc, log.With(logx.String("comp", "sweep")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		logs:    logSvc,
		log:     log,
		bus:     bus,
		store:   store,
		dir:     dir,
		svc:     svc,
		sweeper: sweeper,
	}, nil
}

// Orchestrator exposes the scheduling service for front ends built on
// top of the daemon.
func (a *App) Orchestrator() *orchestrate.Service { return a.svc }

func (a *App) SweeperSnapshot() sweep.Snapshot { return a.sweeper.Snapshot() }

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	// Transactional config reloads: every section must map cleanly
	// before the new config is committed and published.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapSweepConfig(cfg); err != nil {
			return err
		}
		if _, err := mapExecutorConfig(cfg); err != nil {
			return err
		}
		if _, err := mapValidationConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	a.sweeper.Start(runCtx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(runCtx); err != nil && runCtx.Err() == nil {
			a.log.Error("config watch stopped", logx.Err(err))
		}
	}()

	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(runCtx, sub)
	}()

	events, unsub := a.bus.Subscribe(128)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer unsub()
		for {
			select {
			case <-runCtx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				if e.Type == eventbus.TopicLogLine {
					continue // mirrored log lines would echo forever
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	}()

	notifyReady(runCtx, a.log, &a.wg)
	a.log.Info("daemon started")
	return nil
}

// reloadLoop applies committed config changes to the live services.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest committed config.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			sections, attrs := config.SummarizeChange(lastApplied, newCfg)
			lastApplied = newCfg
			if len(sections) == 0 {
				a.log.Debug("config reload received, but no effective changes detected")
				continue
			}

			a.logs.Apply(mapLogConfig(newCfg))
			a.dir.set(mapDirectory(newCfg))

			if swcfg, err := mapSweepConfig(newCfg); err == nil {
				a.sweeper.Apply(swcfg)
			}

			for _, s := range sections {
				switch s {
				case "storage", "executor", "validation", "parser":
					a.log.Warn("config section changed; restart required for changes to take effect",
						logx.String("section", s))
				}
			}

			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			a.log.Info("config reloaded", fields...)
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	notifyStopping()
	a.sweeper.Stop(ctx)

	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	if err := a.store.Close(); err != nil {
		a.log.Warn("close storage", logx.Err(err))
	}
	a.log.Info("daemon stopped")
	return a.logs.Close()
}
