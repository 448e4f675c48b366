package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/riskibarqy/lineup-orchestrator/internal/domain/lineup"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/logging"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/metrics"
)

type SyncState string

const (
	SyncDisconnected SyncState = "DISCONNECTED"
	SyncConnecting   SyncState = "CONNECTING"
	SyncConnected    SyncState = "CONNECTED"
	SyncReconnecting SyncState = "RECONNECTING"
)

var allSyncStates = []string{
	string(SyncDisconnected),
	string(SyncConnecting),
	string(SyncConnected),
	string(SyncReconnecting),
}

type SyncStatus struct {
	State             SyncState
	Synced            bool
	LastSyncTime      *time.Time
	ReconnectAttempts int
}

// DeltaStream is one live connection to the delta feed.
type DeltaStream interface {
	Recv(ctx context.Context) (lineup.Delta, error)
	Close() error
}

// DeltaFeed opens connections to the remote delta feed.
type DeltaFeed interface {
	Connect(ctx context.Context) (DeltaStream, error)
}

// DeltaMerger accepts deltas; *StoreRegistry routes them to stores.
type DeltaMerger interface {
	MergeRemoteDelta(delta lineup.Delta) bool
}

type SyncConfig struct {
	MaxReconnect int
	BackoffBase  time.Duration
	BackoffMax   time.Duration
}

func (c SyncConfig) normalize() SyncConfig {
	if c.MaxReconnect <= 0 {
		c.MaxReconnect = 5
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffMax < c.BackoffBase {
		c.BackoffMax = 30 * time.Second
	}
	return c
}

// backoff is the delay before reconnect attempt n (0-based).
func (c SyncConfig) backoff(n int) time.Duration {
	delay := c.BackoffBase
	for i := 0; i < n; i++ {
		delay *= 2
		if delay >= c.BackoffMax {
			return c.BackoffMax
		}
	}
	return delay
}

// SyncChannel keeps a connection to the delta feed, merges every inbound
// delta into the store registry and fans deltas out to subscribers.
type SyncChannel struct {
	feed    DeltaFeed
	merger  DeltaMerger
	cfg     SyncConfig
	logger  *logging.Logger
	metrics *metrics.Collectors

	mu       sync.Mutex
	state    SyncState
	synced   bool
	lastSync time.Time
	attempts int

	subsMu  sync.Mutex
	subs    map[int]chan lineup.Delta
	nextSub int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewSyncChannel(feed DeltaFeed, merger DeltaMerger, cfg SyncConfig, logger *logging.Logger, collectors *metrics.Collectors) *SyncChannel {
	if logger == nil {
		logger = logging.Default()
	}
	return &SyncChannel{
		feed:    feed,
		merger:  merger,
		cfg:     cfg.normalize(),
		logger:  logger,
		metrics: collectors,
		state:   SyncDisconnected,
		subs:    make(map[int]chan lineup.Delta),
		now:     time.Now,
		sleep:   sleepContext,
	}
}

// Run connects and reconnects until ctx ends or reconnect attempts are
// exhausted, in which case it returns ErrSyncExhausted and the channel
// stays DISCONNECTED.
func (c *SyncChannel) Run(ctx context.Context) error {
	failures := 0
	for {
		if failures == 0 {
			c.setState(SyncConnecting, false)
		}

		stream, err := c.feed.Connect(ctx)
		if err == nil {
			failures = 0
			c.markConnected()
			c.logger.InfoContext(ctx, "realtime channel connected")

			err = c.consume(ctx, stream)
			if closeErr := stream.Close(); closeErr != nil {
				c.logger.DebugContext(ctx, "close realtime stream", "error", closeErr)
			}
		}

		if ctx.Err() != nil {
			c.setState(SyncDisconnected, false)
			return nil
		}

		failures++
		c.setAttempts(failures)
		if failures > c.cfg.MaxReconnect {
			c.setState(SyncDisconnected, false)
			c.logger.ErrorContext(ctx, "realtime channel gave up", "attempts", failures-1, "error", err)
			return fmt.Errorf("%w: %w", ErrSyncExhausted, err)
		}

		delay := c.cfg.backoff(failures - 1)
		c.setState(SyncReconnecting, false)
		c.logger.WarnContext(ctx, "realtime channel dropped, reconnecting",
			"attempt", failures,
			"delay", delay,
			"error", err,
		)
		if err := c.sleep(ctx, delay); err != nil {
			c.setState(SyncDisconnected, false)
			return nil
		}
	}
}

func (c *SyncChannel) consume(ctx context.Context, stream DeltaStream) error {
	for {
		delta, err := stream.Recv(ctx)
		if err != nil {
			return err
		}
		c.handle(ctx, delta)
	}
}

func (c *SyncChannel) handle(ctx context.Context, delta lineup.Delta) {
	received := c.now()
	if delta.Timestamp.IsZero() {
		delta.Timestamp = received
	}

	c.mu.Lock()
	c.lastSync = received
	c.mu.Unlock()

	result := "discarded"
	if c.merger != nil && c.merger.MergeRemoteDelta(delta) {
		result = "applied"
	}
	c.metrics.SyncDelta(result)
	c.logger.DebugContext(ctx, "realtime delta received", "lineup_id", delta.LineupID, "slots", len(delta.Slots), "result", result)

	c.fanout(delta)
}

func (c *SyncChannel) fanout(delta lineup.Delta) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- delta:
		default:
			c.metrics.SyncDelta("dropped")
		}
	}
}

// Deltas streams inbound deltas until ctx ends.
func (c *SyncChannel) Deltas(ctx context.Context) <-chan lineup.Delta {
	ch := make(chan lineup.Delta, 64)

	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subsMu.Unlock()

	go func() {
		<-ctx.Done()
		c.subsMu.Lock()
		delete(c.subs, id)
		close(ch)
		c.subsMu.Unlock()
	}()
	return ch
}

func (c *SyncChannel) Status() SyncStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := SyncStatus{
		State:             c.state,
		Synced:            c.synced,
		ReconnectAttempts: c.attempts,
	}
	if !c.lastSync.IsZero() {
		last := c.lastSync
		status.LastSyncTime = &last
	}
	return status
}

func (c *SyncChannel) markConnected() {
	c.mu.Lock()
	c.state = SyncConnected
	c.synced = true
	c.attempts = 0
	c.lastSync = c.now()
	c.mu.Unlock()
	c.metrics.SyncState(string(SyncConnected), allSyncStates)
}

func (c *SyncChannel) setState(state SyncState, synced bool) {
	c.mu.Lock()
	c.state = state
	c.synced = synced
	c.mu.Unlock()
	c.metrics.SyncState(string(state), allSyncStates)
}

func (c *SyncChannel) setAttempts(n int) {
	c.mu.Lock()
	c.attempts = n
	c.mu.Unlock()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
