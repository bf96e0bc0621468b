package progress

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/purifier-console/internal/clock"
	"github.com/JakeFAU/purifier-console/internal/clock/system"
	"github.com/JakeFAU/purifier-console/internal/metrics"
)

// DefaultRetryDelay is the fixed pause between a lost connection and the next
// connection attempt.
const DefaultRetryDelay = 3 * time.Second

// State is the connection state of a Channel.
type State int

// Channel connection states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Config wires a Channel. URL and Dialer are required.
type Config struct {
	// URL is the progress socket endpoint (see EndpointURL).
	URL string
	// RetryDelay is the fixed reconnect delay; DefaultRetryDelay when zero.
	RetryDelay time.Duration
	Dialer     Dialer
	// Clock schedules reconnect timers; the system clock when nil.
	Clock  clock.Clock
	Logger *zap.Logger
	// OnConnect runs after every successful open.
	OnConnect func()
	// OnDisconnect runs when an open or opening transport is lost. It does not
	// run for an explicit Disconnect.
	OnDisconnect func(err error)
	// OnEvent runs for every valid inbound event, in delivery order.
	OnEvent func(Event)
}

// Channel owns one live progress transport, keeps the latest event per
// episode and reconnects after a fixed delay until Disconnect is called.
// All methods are safe for concurrent use and none of them block on the
// network.
type Channel struct {
	cfg    Config
	clock  clock.Clock
	logger *zap.Logger
	events *snapshot

	mu      sync.Mutex
	state   State
	conn    Conn
	gen     uint64
	stopped bool
	retry   clock.Timer
	retryID uint64
	cancel  context.CancelFunc
}

// NewChannel validates cfg and returns a disconnected Channel.
func NewChannel(cfg Config) (*Channel, error) {
	if cfg.URL == "" {
		return nil, errors.New("progress channel url is required")
	}
	if cfg.Dialer == nil {
		return nil, errors.New("progress channel dialer is required")
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	clk := cfg.Clock
	if clk == nil {
		clk = system.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{
		cfg:    cfg,
		clock:  clk,
		logger: logger.With(zap.String("url", cfg.URL)),
		events: newSnapshot(),
	}, nil
}

// Connect opens the transport unless one is already open or opening. It
// returns immediately; the dial happens in the background.
func (c *Channel) Connect() {
	c.mu.Lock()
	c.stopped = false
	c.mu.Unlock()
	c.connect()
}

func (c *Channel) connect() {
	c.mu.Lock()
	if c.stopped || c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.stopRetryLocked()
	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.state = StateConnecting
	c.mu.Unlock()

	c.logger.Debug("connecting progress channel", zap.Uint64("attempt", gen))
	go c.dial(ctx, gen)
}

// Disconnect cancels any pending reconnect, closes the transport and discards
// the snapshot. No reconnect follows. It is safe to call repeatedly.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.stopped = true
	c.stopRetryLocked()
	c.gen++
	conn := c.conn
	c.conn = nil
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	wasUp := c.state != StateDisconnected
	c.state = StateDisconnected
	c.mu.Unlock()

	c.events.reset()
	if conn != nil {
		if err := conn.Close(); err != nil {
			c.logger.Debug("close progress transport", zap.Error(err))
		}
	}
	if wasUp {
		metrics.SetProgressConnected(false)
		c.logger.Info("progress channel disconnected")
	}
}

// Progress returns the latest event received for the episode.
func (c *Channel) Progress(episodeID int64) (Event, bool) {
	return c.events.get(episodeID)
}

// Snapshot returns a copy of the latest event per episode.
func (c *Channel) Snapshot() map[int64]Event {
	return c.events.copy()
}

// State reports the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether a transport is currently open.
func (c *Channel) Connected() bool {
	return c.State() == StateConnected
}

func (c *Channel) dial(ctx context.Context, gen uint64) {
	conn, err := c.cfg.Dialer.Dial(ctx, c.cfg.URL)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("progress channel dial failed", zap.Error(err))
		c.closed(gen, err)
		return
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.state = StateConnected
	c.cancel = nil
	c.mu.Unlock()

	metrics.SetProgressConnected(true)
	c.logger.Info("progress channel connected")
	if c.cfg.OnConnect != nil {
		c.cfg.OnConnect()
	}
	c.read(conn, gen)
}

func (c *Channel) read(conn Conn, gen uint64) {
	for {
		payload, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			c.closed(gen, err)
			return
		}
		c.handle(gen, payload)
	}
}

func (c *Channel) handle(gen uint64, payload []byte) {
	c.mu.Lock()
	live := gen == c.gen
	c.mu.Unlock()
	if !live {
		return
	}
	evt, err := DecodeEvent(payload)
	if err != nil {
		metrics.ObserveProgressMessage("malformed")
		c.logger.Warn("discarding progress frame", zap.Error(err), zap.Int("bytes", len(payload)))
		return
	}
	metrics.ObserveProgressMessage("ok")
	c.events.put(evt)
	if c.cfg.OnEvent != nil {
		c.cfg.OnEvent(evt)
	}
}

// closed is the single close handler for dial failures and broken reads. It
// ignores notifications from superseded connections and schedules exactly one
// reconnect timer.
func (c *Channel) closed(gen uint64, cause error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.cancel = nil
	c.state = StateDisconnected
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopRetryLocked()
	id := c.retryID
	c.retry = c.clock.AfterFunc(c.cfg.RetryDelay, func() { c.reconnect(id) })
	c.mu.Unlock()

	metrics.SetProgressConnected(false)
	metrics.ObserveProgressReconnect()
	c.logger.Info("progress channel lost; reconnect scheduled",
		zap.Duration("delay", c.cfg.RetryDelay), zap.NamedError("cause", cause))
	if c.cfg.OnDisconnect != nil {
		c.cfg.OnDisconnect(cause)
	}
}

// reconnect is the timer callback. A callback that lost a race with Stop
// finds its id superseded and does nothing.
func (c *Channel) reconnect(id uint64) {
	c.mu.Lock()
	if id != c.retryID {
		c.mu.Unlock()
		return
	}
	c.retry = nil
	c.mu.Unlock()
	c.connect()
}

func (c *Channel) stopRetryLocked() {
	c.retryID++
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}
