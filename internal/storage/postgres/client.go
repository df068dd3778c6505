package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hongminglow/moviebox-be/internal/storage"
)

// Connection states reported by Client.State.
const (
	StateIdle         = "idle"
	StateConnected    = "connected"
	StateConnecting   = "connecting"
	StateDisconnected = "disconnected"
)

// SetupFunc runs once against a freshly established pool, before it is
// handed to callers.
type SetupFunc func(ctx context.Context, pool *pgxpool.Pool) error

// Options tune the pool built by NewClient.
type Options struct {
	MaxConns       int32
	ConnectTimeout time.Duration
	// RetryInterval is how long a failed connection attempt is remembered.
	// Calls inside that window fail fast with storage.ErrUnavailable.
	RetryInterval time.Duration
	Setup         []SetupFunc
}

// Client owns the process-wide connection pool. The pool is established on
// first use; concurrent first callers share a single attempt and each waits
// only as long as its own context allows.
type Client struct {
	cfg    *pgxpool.Config
	opts   Options
	logger *zap.Logger
	now    func() time.Time
	group  singleflight.Group

	// mu guards the fields below and is never held across network I/O.
	mu         sync.Mutex
	pool       *pgxpool.Pool
	connecting bool
	closed     bool
	lastErr    error
	failedAt   time.Time
}

// NewClient validates the DSN and returns a Client that has not connected yet.
func NewClient(dsn string, opts Options, logger *zap.Logger) (*Client, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.ConnectTimeout > 0 {
		cfg.ConnConfig.ConnectTimeout = opts.ConnectTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		opts:   opts,
		logger: logger.Named("store"),
		now:    time.Now,
	}, nil
}

// Pool returns the shared pool, connecting if needed. Any failure, including
// ctx ending while an attempt is in flight, is reported as storage.ErrUnavailable.
func (c *Client) Pool(ctx context.Context) (*pgxpool.Pool, error) {
	if pool, done, err := c.cached(); done {
		return pool, err
	}

	ch := c.group.DoChan("connect", func() (any, error) {
		return c.attempt()
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*pgxpool.Pool), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", storage.ErrUnavailable, ctx.Err())
	}
}

// cached answers from the recorded state when no connection attempt is needed.
func (c *Client) cached() (*pgxpool.Pool, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return nil, true, fmt.Errorf("%w: client closed", storage.ErrUnavailable)
	case c.pool != nil:
		return c.pool, true, nil
	case c.lastErr != nil && c.now().Sub(c.failedAt) < c.opts.RetryInterval:
		return nil, true, fmt.Errorf("%w: %v", storage.ErrUnavailable, c.lastErr)
	}
	return nil, false, nil
}

// attempt runs inside the singleflight group, so at most one is in progress.
func (c *Client) attempt() (*pgxpool.Pool, error) {
	// Another flight may have finished between the caller's check and ours.
	if pool, done, err := c.cached(); done {
		return pool, err
	}

	c.mu.Lock()
	c.connecting = true
	setup := append([]SetupFunc(nil), c.opts.Setup...)
	c.mu.Unlock()

	pool, err := c.connect(setup)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.connecting = false
	if err == nil && c.closed {
		pool.Close()
		err = errors.New("client closed")
	}
	if err != nil {
		c.lastErr = err
		c.failedAt = c.now()
		c.logger.Error("database connection failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}

	c.pool = pool
	c.lastErr = nil
	c.logger.Info("database connected",
		zap.String("host", c.cfg.ConnConfig.Host),
		zap.String("database", c.cfg.ConnConfig.Database),
		zap.Int32("max_conns", c.cfg.MaxConns),
	)
	return pool, nil
}

// connect is detached from any caller so one aborted request does not mark
// the store as down for everyone; it is bounded by ConnectTimeout instead.
func (c *Client) connect(setup []SetupFunc) (*pgxpool.Pool, error) {
	ctx := context.Background()
	if c.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.ConnectTimeout)
		defer cancel()
	}

	pool, err := pgxpool.NewWithConfig(ctx, c.cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	for _, fn := range setup {
		if err := fn(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return pool, nil
}

// OnConnect registers fn to run after the next successful connection.
func (c *Client) OnConnect(fn SetupFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts.Setup = append(c.opts.Setup, fn)
}

// Ping checks connectivity with a trivial query.
func (c *Client) Ping(ctx context.Context) error {
	pool, err := c.Pool(ctx)
	if err != nil {
		return err
	}
	var one int
	if err := pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// State reports whether the pool is established, being established, failed,
// or never tried. It never waits on a connection attempt.
func (c *Client) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.pool != nil:
		return StateConnected
	case c.connecting:
		return StateConnecting
	case c.lastErr != nil:
		return StateDisconnected
	default:
		return StateIdle
	}
}

// Close releases database resources.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.pool != nil {
		c.pool.Close()
		c.pool = nil
	}
}
