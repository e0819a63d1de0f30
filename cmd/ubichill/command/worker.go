package command

import (
	"context"
	"fmt"
	"time"

	"github.com/pixil98/go-service"

	"github.com/pixil98/ubichill/internal/driver"
	"github.com/pixil98/ubichill/internal/httpapi"
	"github.com/pixil98/ubichill/internal/instance"
	"github.com/pixil98/ubichill/internal/listener"
	"github.com/pixil98/ubichill/internal/messaging"
	"github.com/pixil98/ubichill/internal/metrics"
	"github.com/pixil98/ubichill/internal/presence"
	"github.com/pixil98/ubichill/internal/session"
	"github.com/pixil98/ubichill/internal/world"
)

func BuildWorkers(config interface{}) (service.WorkerList, error) {
	cfg, ok := config.(*Config)
	if !ok {
		return nil, fmt.Errorf("unable to cast config")
	}

	workers := service.WorkerList{}

	verifier, err := cfg.Auth.buildVerifier()
	if err != nil {
		return nil, fmt.Errorf("creating verifier: %w", err)
	}

	// Broadcast bus
	var bus messaging.Bus = messaging.NewLocalBus()
	var ready func(context.Context) error
	if cfg.Nats.Enabled {
		ns, err := cfg.Nats.buildNatsServer()
		if err != nil {
			return nil, fmt.Errorf("creating nats server: %w", err)
		}
		bus = ns
		ready = ns.WaitReady
		workers["nats"] = ns
	}

	// World templates
	catalog, watcher, err := cfg.Storage.buildCatalog()
	if err != nil {
		return nil, err
	}
	if watcher != nil {
		workers["templates"] = watcher
	}

	recorder, history, err := cfg.Journal.buildRecorder()
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	workers["journal"] = recorder

	// Shared state
	entities := world.NewStore()
	participants := presence.NewRegistry()
	instances := instance.NewManager(catalog, entities, cfg.Session.managerOpts()...)

	var hub *session.Hub
	m := metrics.NewMetrics(metrics.Sources{
		Connections:  metrics.CounterFunc(func() int { return hub.Count() }),
		Participants: participants,
		Instances:    instances,
		Entities:     entities,
	}, time.Now())

	hubOpts := append(cfg.Session.hubOpts(),
		session.WithJournal(recorder),
		session.WithMetrics(m),
		session.WithCookieName(cfg.Auth.cookieName()),
	)
	hub = session.NewHub(entities, participants, instances, messaging.NewPublisher(bus), verifier, hubOpts...)

	renderer, err := instance.NewConnectionRenderer(cfg.Listener.ConnectionURL)
	if err != nil {
		return nil, err
	}

	cm := listener.NewConnectionManager(hub, cfg.Listener.connectionManagerOpts()...)

	apiOpts := []httpapi.ServerOpt{
		httpapi.WithCookieName(cfg.Auth.cookieName()),
		httpapi.WithConnections(hub),
		httpapi.WithWebsocket(cm),
		httpapi.WithMetrics(m.Handler()),
		httpapi.WithJournal(recorder),
		httpapi.WithAllowedOrigins(cfg.Listener.AllowedOrigins),
		httpapi.WithRateLimit(cfg.Listener.RateLimit, cfg.Listener.RateBurst),
	}
	if history != nil {
		apiOpts = append(apiOpts, httpapi.WithHistory(history))
	}
	api := httpapi.NewServer(instances, verifier, renderer, apiOpts...)

	workers["http"] = &afterReady{
		wait:   ready,
		worker: listener.NewHTTPListener(cfg.Listener.addr(), api.Handler(), cm),
	}

	// Housekeeping: idle instance reaping and gauge refresh
	workers["driver"] = driver.NewDriver([]driver.Ticker{
		instances,
		m,
	}, driver.WithTickLength(cfg.tickInterval()))

	return workers, nil
}

// afterReady holds a worker back until wait succeeds, so clients are not
// accepted before the broadcast bus is up.
type afterReady struct {
	wait   func(context.Context) error
	worker service.Worker
}

func (a *afterReady) Start(ctx context.Context) error {
	if a.wait != nil {
		if err := a.wait(ctx); err != nil {
			return fmt.Errorf("waiting for dependencies: %w", err)
		}
	}
	return a.worker.Start(ctx)
}
