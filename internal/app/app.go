package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"merchant-governance/internal/alerting"
	"merchant-governance/internal/config"
	"merchant-governance/internal/dataset"
	"merchant-governance/internal/filter"
	"merchant-governance/internal/governance"
	"merchant-governance/internal/metrics"
	"merchant-governance/internal/scheduler"
	"merchant-governance/internal/service"
	"merchant-governance/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config     *config.Config
	ConfigPath string
	Logger     zerolog.Logger
}

// NewApp constructs a new application handle. path is kept so that the
// scheduled service can reload policies between passes.
func NewApp(cfg *config.Config, path string, logger zerolog.Logger) *App {
	return &App{Config: cfg, ConfigPath: path, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) requireStore(ctx context.Context) (*storage.Store, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, errors.New("database.dsn not configured")
	}
	return store, closeStore, nil
}

func (a *App) newSource(store *storage.Store) (dataset.Source, error) {
	switch a.Config.Dataset.Source {
	case config.SourcePostgres:
		if store == nil {
			return nil, errors.New("postgres dataset requires database.dsn")
		}
		return dataset.NewStoreSource(store), nil
	default:
		return dataset.NewCSV(a.Config.Dataset.Path, a.Logger), nil
	}
}

// policy resolves a named variant, or the active one when name is empty.
func (a *App) policy(name string) (*governance.Policy, error) {
	return a.Config.Governance.Policy(name)
}

// reloadPolicy reads the configuration file again and returns a fresh policy
// snapshot. A broken file keeps the previous snapshot in use.
func (a *App) reloadPolicy(name string, last *governance.Policy) service.PolicyProvider {
	return func() (*governance.Policy, error) {
		cfg, err := config.Load(a.ConfigPath)
		if err != nil {
			if last != nil {
				a.Logger.Error().Err(err).Msg("config reload failed; keeping previous policy")
				return last, nil
			}
			return nil, err
		}
		p, err := cfg.Governance.Policy(name)
		if err != nil {
			return nil, err
		}
		last = p
		return p, nil
	}
}

// Run executes the long-running re-evaluation service.
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	initial, err := a.policy(opts.Policy)
	if err != nil {
		return err
	}

	req := service.Request{Persist: true, Notify: true}
	if opts.Filter != "" {
		if req.Filter, err = filter.Compile(opts.Filter); err != nil {
			return err
		}
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	var runs storage.RunStore
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
		req.Persist = false
	} else {
		runs = store
	}

	source, err := a.newSource(store)
	if err != nil {
		return err
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		RunOnStart:   true,
	}, a.Logger)

	m := metrics.New()
	if addr := a.Config.Metrics.ListenAddr; addr != "" {
		stop := a.serveMetrics(addr, m)
		defer stop()
	}

	svc := service.New(a.Config, sched, source, runs, a.newNotifier(), m, a.Logger)

	a.Logger.Info().Str("policy", initial.Name()).Dur("interval", a.Config.Scheduler.Interval).Msg("starting governance service")
	err = svc.Run(ctx, a.reloadPolicy(opts.Policy, initial), req)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("governance service stopped")
	return nil
}

func (a *App) serveMetrics(addr string, m *metrics.Metrics) func() {
	mux := http.NewServeMux()
	mux.Handle(a.Config.Metrics.Path, m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		a.Logger.Info().Str("addr", addr).Str("path", a.Config.Metrics.Path).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("metrics server shutdown")
		}
	}
}

// evaluateOnce runs a single pass against the configured dataset.
func (a *App) evaluateOnce(ctx context.Context, policy *governance.Policy, filterExpr string, strict, persist bool) (*service.Outcome, error) {
	req := service.Request{Strict: strict, Persist: persist}
	if filterExpr != "" {
		f, err := filter.Compile(filterExpr)
		if err != nil {
			return nil, err
		}
		req.Filter = f
	}

	needStore := persist || a.Config.Dataset.Source == config.SourcePostgres
	var store *storage.Store
	if needStore {
		s, closeStore, err := a.requireStore(ctx)
		if err != nil {
			return nil, err
		}
		defer closeStore()
		store = s
	}

	source, err := a.newSource(store)
	if err != nil {
		return nil, err
	}

	var runs storage.RunStore
	if store != nil {
		runs = store
	}

	svc := service.New(a.Config, nil, source, runs, nil, nil, a.Logger)
	out, err := svc.Evaluate(ctx, policy, req)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", policy.Name(), err)
	}
	return out, nil
}

// RunOptions configure the scheduled service.
type RunOptions struct {
	Policy string
	Filter string
}

// EvaluateOptions configure a one-off evaluation.
type EvaluateOptions struct {
	Policy  string
	Filter  string
	Strict  bool
	Persist bool
	Results bool
}

// SimulateOptions describe a what-if scenario against a baseline policy.
type SimulateOptions struct {
	Policy    string
	Filter    string
	Overrides governance.Overrides
}

// ExportOptions hold parameters for exporting evaluation results.
type ExportOptions struct {
	Policy  string
	Filter  string
	RunID   string
	PNGPath string
	CSVPath string
	MaxRows int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// ImportOptions configure the dataset import job.
type ImportOptions struct {
	Path    string
	Migrate bool
	DryRun  bool
}
