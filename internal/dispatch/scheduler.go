package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/oriongate/dicomdispatch/internal/config"
	"github.com/oriongate/dicomdispatch/internal/module"
)

// Actor is the Refresh Scheduler from spec.md §4.5, rebuilt per the "Hot
// reload race" note in §9: instead of a boolean lockTimer guarding a
// registry mutated from two goroutines, a single actor goroutine owns
// the Module Registry and main configuration outright and serializes
// both event callbacks and refresh timer ticks through one channel. This
// makes "no reload during a callback" structural rather than advisory —
// there is nothing else that could run concurrently with it.
type Actor struct {
	dispatcher *Dispatcher
	registry   *module.Registry
	mainCfg    *config.Loader
	moduleDir  string
	logger     *slog.Logger
	observer   Observer

	requests chan request
}

// Observer is notified after every processed event, successful or not —
// used by internal/server to feed its live /events WebSocket feed without
// this package needing to know anything about HTTP or WebSockets.
type Observer func(ev Event, err error)

// WithObserver attaches o. Optional: an Actor with no observer simply
// skips the notification.
func (a *Actor) WithObserver(o Observer) *Actor {
	a.observer = o
	return a
}

type requestKind int

const (
	requestEvent requestKind = iota
	requestLifecycleStart
	requestLifecycleStop
)

type request struct {
	kind  requestKind
	event Event
	done  chan error
}

func NewActor(dispatcher *Dispatcher, registry *module.Registry, mainCfg *config.Loader, moduleDir string, logger *slog.Logger) *Actor {
	return &Actor{
		dispatcher: dispatcher,
		registry:   registry,
		mainCfg:    mainCfg,
		moduleDir:  moduleDir,
		logger:     logger,
		requests:   make(chan request),
	}
}

// Submit hands a stable-{series,study,patient} event to the actor and
// blocks until it has run to completion, matching spec.md §5's
// synchronous callback model from the archive's point of view.
func (a *Actor) Submit(ctx context.Context, ev Event) error {
	if ev.CorrelationID == "" {
		ev.CorrelationID = uuid.NewString()
	}
	return a.send(ctx, request{kind: requestEvent, event: ev})
}

// NotifyLifecycleStarted arms the refresh timer — spec.md §4.5.
func (a *Actor) NotifyLifecycleStarted(ctx context.Context) error {
	return a.send(ctx, request{kind: requestLifecycleStart})
}

// NotifyLifecycleStopped disarms the refresh timer — spec.md §4.5.
func (a *Actor) NotifyLifecycleStopped(ctx context.Context) error {
	return a.send(ctx, request{kind: requestLifecycleStop})
}

func (a *Actor) send(ctx context.Context, req request) error {
	req.done = make(chan error, 1)
	select {
	case a.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is the actor's event loop. It owns the only timer in the process
// and the only access path to the registry and main config; call it
// once, typically from its own goroutine, and stop it by canceling ctx.
func (a *Actor) Run(ctx context.Context) {
	var ticker *time.Ticker
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		var tickC <-chan time.Time
		if ticker != nil {
			tickC = ticker.C
		}

		select {
		case <-ctx.Done():
			return

		case req := <-a.requests:
			switch req.kind {
			case requestEvent:
				err := a.dispatcher.ProcessEvent(ctx, req.event)
				if a.observer != nil {
					a.observer(req.event, err)
				}
				req.done <- err
			case requestLifecycleStart:
				ticker = a.armTimer(ticker)
				req.done <- nil
			case requestLifecycleStop:
				if ticker != nil {
					ticker.Stop()
					ticker = nil
				}
				req.done <- nil
			}

		case <-tickC:
			a.refresh(ctx)
		}
	}
}

func (a *Actor) armTimer(existing *time.Ticker) *time.Ticker {
	if existing != nil {
		existing.Stop()
	}
	period := time.Second
	if cfg, loaded := a.mainCfg.Current(); loaded {
		period = cfg.AutoReloadEach()
	}
	if period <= 0 {
		period = time.Second
	}
	return time.NewTicker(period)
}

// refresh is updateArchitecture from spec.md §4.5: re-hash the main
// configuration, re-read it if changed, and re-crawl the registry.
func (a *Actor) refresh(ctx context.Context) {
	if err := a.mainCfg.Refresh(); err != nil {
		a.logger.Warn("main configuration refresh failed", "error", err)
	}
	cfg, loaded := a.mainCfg.Current()
	if !loaded {
		return
	}
	if err := a.registry.Crawl(ctx, cfg, a.moduleDir); err != nil {
		a.logger.Warn("module registry crawl failed", "error", err)
	}
}
