package client

import (
	"context"
	"sync"

	"github.com/fmwatch/fmwatch/internal/config"
	"github.com/fmwatch/fmwatch/internal/events"
	"github.com/fmwatch/fmwatch/internal/tasks"
	"github.com/fmwatch/fmwatch/internal/transfer"
	"github.com/fmwatch/fmwatch/internal/transport"
)

// Client wires the transport, stores, and services together and owns their
// lifecycle. Everything observable flows out through Events.
type Client struct {
	Tasks     *tasks.Service
	Store     *tasks.Store
	Conflicts *tasks.Coordinator
	Transfers *transfer.Manager

	config    *config.Config
	logger    *events.Logger
	transport transport.Transport
	updater   *tasks.Updater
	bus       *events.Bus

	mu      sync.Mutex
	stop    context.CancelFunc
	started bool
}

// New creates a client from configuration.
func New(cfg *config.Config, logger *events.Logger) *Client {
	return build(cfg, transport.NewTransport(&cfg.API, logger), logger)
}

// NewWithTransport creates a client over a caller-supplied transport. Tests
// use this to run the full stack against a mock.
func NewWithTransport(cfg *config.Config, tr transport.Transport, logger *events.Logger) *Client {
	return build(cfg, tr, logger)
}

func build(cfg *config.Config, tr transport.Transport, logger *events.Logger) *Client {
	bus := events.NewBus(logger)
	store := tasks.NewStore(bus, logger)

	return &Client{
		Tasks:     tasks.NewService(tr, logger),
		Store:     store,
		Conflicts: tasks.NewCoordinator(tr, bus, logger),
		Transfers: transfer.NewManager(tr, bus, cfg.Upload.MaxSize, logger),
		config:    cfg,
		logger:    logger,
		transport: tr,
		updater:   tasks.NewUpdater(tr, store, &cfg.Tasks, logger),
		bus:       bus,
	}
}

// Events returns the client's event bus for subscription.
func (c *Client) Events() *events.Bus {
	return c.bus
}

// Login authenticates the session. The session cookie is held by the
// transport and shared by every later request, including the push stream.
func (c *Client) Login(ctx context.Context, username, password string) error {
	return c.transport.Login(ctx, username, password)
}

// Logout ends the session.
func (c *Client) Logout(ctx context.Context) error {
	return c.transport.Logout(ctx)
}

// Refresh pulls the task list once. Useful before Start, or for one-shot
// commands that do not want the background loops.
func (c *Client) Refresh(ctx context.Context) error {
	return c.updater.Refresh(ctx)
}

// Start launches the background update loops: the poll ticker, the push
// stream with reconnect, and the conflict coordinator. Idempotent.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true

	runCtx, cancel := context.WithCancel(ctx)
	c.stop = cancel

	go c.Conflicts.Run(runCtx)
	go c.updater.Run(runCtx)

	c.logger.Info("Client started")
}

// Close stops the background loops and releases the transport.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
	c.started = false
	c.mu.Unlock()

	return c.transport.Close()
}
