package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"delta-hedge-bot/internal/alerts"
	"delta-hedge-bot/internal/bybit"
	"delta-hedge-bot/internal/config"
	"delta-hedge-bot/internal/exec"
	"delta-hedge-bot/internal/metrics"
	"delta-hedge-bot/internal/schedule"
	"delta-hedge-bot/internal/state"
	"delta-hedge-bot/internal/state/sqlite"
	"delta-hedge-bot/internal/timescale"

	"go.uber.org/zap"
)

// Exchange is the subset of the Bybit client a hedge cycle uses.
type Exchange interface {
	QueryAssetInfo(ctx context.Context) (bybit.Response[bybit.AssetInfoList], error)
	exec.OrderAPI
}

type updateSource interface {
	Updates(ctx context.Context, offset int, wait time.Duration) ([]alerts.Update, error)
	ChatID() int64
}

type App struct {
	cfg       *config.Config
	log       *zap.Logger
	exchange  Exchange
	executor  *exec.Executor
	store     state.Store
	metrics   *metrics.Metrics
	prom      *metrics.Prometheus
	alerts    alerts.Notifier
	operator  updateSource
	timescale *timescale.Writer

	now        func() time.Time
	sleepUntil func(ctx context.Context, t time.Time) error

	opsMu          sync.RWMutex
	paused         bool
	lastCycleAt    time.Time
	operatorWarned bool
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	signer, err := bybit.NewSigner(cfg.Credentials.APIKey, cfg.Credentials.APISecret, cfg.REST.RecvWindow)
	if err != nil {
		return nil, err
	}
	client, err := bybit.NewClient(bybit.Options{
		BaseURL:   cfg.REST.BaseURL,
		Timeout:   cfg.REST.Timeout,
		RateLimit: cfg.REST.RateLimitValue(),
		RateBurst: cfg.REST.RateBurst,
	}, signer, log)
	if err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}
	notifier, err := alerts.New(cfg.Telegram, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	writer, err := timescale.New(cfg.Timescale, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	var prom *metrics.Prometheus
	if cfg.Metrics.EnabledValue() {
		prom = metrics.NewPrometheus()
	}
	a := newApp(cfg, log, client, store, notifier, prom)
	a.timescale = writer
	if tg, ok := notifier.(*alerts.Telegram); ok && cfg.Telegram.OperatorEnabled {
		a.operator = tg
	}
	return a, nil
}

func newApp(cfg *config.Config, log *zap.Logger, ex Exchange, store state.Store, notifier alerts.Notifier, prom *metrics.Prometheus) *App {
	if log == nil {
		log = zap.NewNop()
	}
	if notifier == nil {
		notifier = alerts.NewLog(log)
	}
	m := metrics.NewNoop()
	if prom != nil {
		m = prom.Metrics
	}
	executor := exec.New(ex, exec.Config{
		SettleDelay:  cfg.Order.SettleDelay,
		PollInterval: cfg.Order.PollInterval,
		MaxPolls:     cfg.Order.MaxPolls,
	}, m, log)
	return &App{
		cfg:        cfg,
		log:        log,
		exchange:   ex,
		executor:   executor,
		store:      store,
		metrics:    m,
		prom:       prom,
		alerts:     notifier,
		now:        time.Now,
		sleepUntil: schedule.SleepUntil,
	}
}

// Run performs a cycle at start (unless disabled) and then one cycle per hour
// at the configured minute. It returns the context error on shutdown.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()
	if _, err := a.startServer(ctx); err != nil {
		return err
	}
	a.timescale.Start(ctx)
	a.startOperator(ctx)

	a.log.Info("delta hedge started",
		zap.String("symbol", a.cfg.Strategy.Symbol),
		zap.String("coin", a.cfg.Strategy.Coin),
		zap.Int32("rounding_places", a.cfg.Strategy.Places()),
		zap.Int("check_minute", a.cfg.Schedule.Minute()),
	)
	if a.cfg.Schedule.RunOnStartValue() {
		a.runCycle(ctx)
	}
	for {
		next := schedule.NextCheck(a.now(), a.cfg.Schedule.Minute())
		a.log.Info("sleeping until next check", zap.Time("next_check", next))
		if err := a.sleepUntil(ctx, next); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		a.runCycle(ctx)
	}
}

func (a *App) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	errs = append(errs, a.timescale.Close())
	return errors.Join(errs...)
}

func (a *App) isPaused() bool {
	a.opsMu.RLock()
	defer a.opsMu.RUnlock()
	return a.paused
}

func (a *App) setPaused(paused bool) bool {
	a.opsMu.Lock()
	defer a.opsMu.Unlock()
	a.paused = paused
	return a.paused
}

func (a *App) markCycle(at time.Time) {
	a.opsMu.Lock()
	defer a.opsMu.Unlock()
	a.lastCycleAt = at
}

func (a *App) lastCycle() time.Time {
	a.opsMu.RLock()
	defer a.opsMu.RUnlock()
	return a.lastCycleAt
}

func (a *App) sendAlert(ctx context.Context, message string) {
	if err := a.alerts.Send(ctx, message); err != nil {
		a.log.Warn("alert send failed", zap.Error(err))
	}
}
