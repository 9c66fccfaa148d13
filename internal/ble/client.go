package ble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/chaz8081/wavelink/internal/engine"
	"github.com/chaz8081/wavelink/internal/logging"
	"github.com/chaz8081/wavelink/internal/packet"
)

// ErrNotConnected is returned by Request while the client has no connection.
var ErrNotConnected = errors.New("ble: not connected")

// ClientOptions configures the BLE client behavior.
type ClientOptions struct {
	ServiceUUID  string
	CharUUID     string
	Engine       engine.Options
	QueueSize    int               // max queries held while disconnected
	ReconnectMax int               // max reconnect backoff in seconds
	BatteryPoll  time.Duration     // battery query interval, 0 disables
	StartAPIMode bool              // send StartAPIMode on every connect
	APIConfig    *packet.APIConfig // sent after StartAPIMode when set
	ErrorBuffer  int               // capacity of Errors()
}

// DefaultClientOptions returns sensible defaults.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		ServiceUUID:  ServiceUUID,
		CharUUID:     APICharUUID,
		Engine:       engine.DefaultOptions(),
		QueueSize:    64,
		ReconnectMax: 30,
		StartAPIMode: true,
		ErrorBuffer:  engine.DefaultErrorBuffer,
	}
}

type registration struct {
	name     packet.EventName
	listener engine.Listener
}

// Client manages the BLE connection to a Wave ring. Each connection gets a
// fresh engine.Engine; listeners registered on the Client are applied to
// every one of them.
type Client struct {
	adapter Adapter
	address string
	opts    ClientOptions

	mu        sync.Mutex
	conn      Connection
	eng       *engine.Engine
	connected bool
	closed    bool
	listeners []registration
	queue     []packet.Query

	reconnecting atomic.Bool
	stop         chan struct{}
	errs         chan error
}

// NewClient creates a BLE client for the ring at address.
func NewClient(adapter Adapter, address string, opts ClientOptions) *Client {
	def := DefaultClientOptions()
	if opts.ServiceUUID == "" {
		opts.ServiceUUID = def.ServiceUUID
	}
	if opts.CharUUID == "" {
		opts.CharUUID = def.CharUUID
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = def.ReconnectMax
	}
	if opts.ErrorBuffer <= 0 {
		opts.ErrorBuffer = def.ErrorBuffer
	}
	return &Client{
		adapter: adapter,
		address: address,
		opts:    opts,
		stop:    make(chan struct{}),
		errs:    make(chan error, opts.ErrorBuffer),
	}
}

// On registers a listener on the current engine and on every engine created
// by later reconnects.
func (c *Client) On(name packet.EventName, l engine.Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, registration{name: name, listener: l})
	if c.eng != nil {
		c.eng.On(name, l)
	}
}

// Errors carries every engine's reported errors. It is never closed.
func (c *Client) Errors() <-chan error {
	return c.errs
}

// Connected reports whether a connection is up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Send queues q on the current engine. While disconnected the query is held
// and flushed on reconnect; when the hold queue is full the oldest is dropped.
func (c *Client) Send(q packet.Query) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return engine.ErrClosed
	}
	if !c.connected {
		c.enqueue(q)
		c.mu.Unlock()
		return nil
	}
	eng := c.eng
	c.mu.Unlock()

	return eng.SendQuery(q)
}

// Request sends q on the current engine and waits for its response.
func (c *Client) Request(ctx context.Context, q packet.Query) (packet.Frame, error) {
	c.mu.Lock()
	eng := c.eng
	c.mu.Unlock()
	if eng == nil {
		return packet.Frame{}, ErrNotConnected
	}
	return eng.Request(ctx, q)
}

// enqueue adds q to the hold queue (caller must hold mu).
func (c *Client) enqueue(q packet.Query) {
	if len(c.queue) >= c.opts.QueueSize {
		logging.Warn("Hold queue full, dropping oldest query",
			zap.Stringer("dropped", c.queue[0]),
		)
		c.queue = c.queue[1:]
	}
	c.queue = append(c.queue, q)
}

// QueueLen returns the number of queries held while disconnected.
func (c *Client) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// attach wires a fresh engine to conn's API characteristic.
func (c *Client) attach(conn Connection) error {
	char, err := conn.DiscoverCharacteristic(c.opts.ServiceUUID, c.opts.CharUUID)
	if err != nil {
		return fmt.Errorf("ble: discover API characteristic: %w", err)
	}

	eng := engine.New(func(_ context.Context, b []byte) error {
		return char.Write(b)
	}, c.opts.Engine)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		eng.Close()
		return engine.ErrClosed
	}
	for _, r := range c.listeners {
		eng.On(r.name, r.listener)
	}
	c.conn = conn
	c.eng = eng
	c.connected = true
	held := c.queue
	c.queue = nil
	c.mu.Unlock()

	if err := char.Subscribe(func(b []byte) {
		if err := eng.Feed(b); err != nil && !errors.Is(err, engine.ErrClosed) {
			logging.Debug("Feed failed", zap.Error(err), logging.Hex("fragment", b))
		}
	}); err != nil {
		c.mu.Lock()
		if c.eng == eng {
			c.conn = nil
			c.eng = nil
			c.connected = false
			c.queue = append(held, c.queue...)
		}
		c.mu.Unlock()
		eng.Close()
		return fmt.Errorf("ble: subscribe: %w", err)
	}

	conn.OnDisconnect(func() { c.handleDisconnect(conn) })
	go c.watch(conn, eng)

	if c.opts.StartAPIMode {
		if err := eng.SendQuery(packet.StartAPIMode()); err != nil {
			logging.Warn("Start API mode failed", zap.Error(err))
		}
		if c.opts.APIConfig != nil {
			if err := eng.SendQuery(packet.ModifyAPIConfig(*c.opts.APIConfig)); err != nil {
				logging.Warn("API config failed", zap.Error(err))
			}
		}
	}
	c.flush(eng, held)
	if c.opts.BatteryPoll > 0 {
		go c.pollBattery(eng)
	}
	return nil
}

// flush sends queries held during a disconnect. Failures are logged and the
// query dropped.
func (c *Client) flush(eng *engine.Engine, held []packet.Query) {
	for _, q := range held {
		if err := eng.SendQuery(q); err != nil {
			logging.Error("Failed to flush held query", zap.Stringer("query", q), zap.Error(err))
		}
	}
}

// watch forwards eng's errors until it closes. A fatal engine error drops
// the connection so the reconnect loop starts over with clean framing.
func (c *Client) watch(conn Connection, eng *engine.Engine) {
	for {
		select {
		case err := <-eng.Errors():
			c.forward(err)
		case <-eng.Done():
			c.drain(eng)
			if cause := eng.Err(); cause != nil {
				logging.Error("Engine failed, dropping connection", zap.Error(cause))
				if err := conn.Disconnect(); err != nil {
					logging.Warn("Disconnect failed", zap.Error(err))
				}
				c.handleDisconnect(conn)
			}
			return
		}
	}
}

func (c *Client) drain(eng *engine.Engine) {
	for {
		select {
		case err := <-eng.Errors():
			c.forward(err)
		default:
			return
		}
	}
}

func (c *Client) forward(err error) {
	select {
	case c.errs <- err:
	default:
		logging.Warn("Error channel full, dropping report", zap.Error(err))
	}
}

func (c *Client) pollBattery(eng *engine.Engine) {
	ticker := time.NewTicker(c.opts.BatteryPoll)
	defer ticker.Stop()
	for {
		select {
		case <-eng.Done():
			return
		case <-ticker.C:
			if err := eng.SendQuery(packet.BatteryQuery()); err != nil {
				logging.Debug("Battery poll skipped", zap.Error(err))
			}
		}
	}
}

// handleDisconnect tears down conn's engine and starts reconnecting. Calls
// for a connection that is no longer current are ignored.
func (c *Client) handleDisconnect(conn Connection) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	eng := c.eng
	c.conn = nil
	c.eng = nil
	c.connected = false
	closed := c.closed
	c.mu.Unlock()

	if eng != nil {
		eng.Close()
	}
	if closed {
		return
	}

	logging.Warn("Disconnected, reconnecting", zap.String("address", c.address))
	if c.reconnecting.CompareAndSwap(false, true) {
		go c.reconnectLoop()
	}
}

// Close gracefully disconnects the BLE client and stops reconnecting.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.stop)
	conn, eng := c.conn, c.eng
	c.conn, c.eng = nil, nil
	c.connected = false
	if len(c.queue) > 0 {
		logging.Warn("Closing with held queries", zap.Int("count", len(c.queue)))
	}
	c.mu.Unlock()

	if eng != nil {
		eng.Close()
	}
	if conn != nil {
		return conn.Disconnect()
	}
	return nil
}

// backoffDelay returns the reconnection delay for attempt n, capped at maxSeconds.
func backoffDelay(attempt int, maxSeconds int) time.Duration {
	limit := time.Duration(maxSeconds) * time.Second
	if attempt > 30 {
		return limit
	}
	delay := time.Duration(1<<uint(attempt)) * time.Second
	if delay > limit {
		return limit
	}
	return delay
}

// Connect establishes the initial BLE connection to the ring.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}

	conn, err := c.adapter.Connect(ctx, c.address)
	if err != nil {
		return fmt.Errorf("ble: connect to %s: %w", c.address, err)
	}

	if err := c.attach(conn); err != nil {
		conn.Disconnect()
		return err
	}

	logging.Info("Connected", zap.String("address", c.address))
	return nil
}

// reconnectLoop attempts to reconnect with exponential backoff until it
// succeeds or the client is closed.
func (c *Client) reconnectLoop() {
	defer c.reconnecting.Store(false)

	for attempt := 0; ; attempt++ {
		// On the first attempt, try immediately; subsequent attempts use backoff.
		if attempt > 0 {
			delay := backoffDelay(attempt-1, c.opts.ReconnectMax)
			logging.Info("Reconnect backoff", zap.Int("attempt", attempt+1), zap.Duration("delay", delay))
			select {
			case <-c.stop:
				return
			case <-time.After(delay):
			}
		}

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			select {
			case <-c.stop:
				cancel()
			case <-ctx.Done():
			}
		}()
		conn, err := c.adapter.Connect(ctx, c.address)
		cancel()
		if err != nil {
			select {
			case <-c.stop:
				return
			default:
			}
			logging.Warn("Reconnect failed", zap.Error(err), zap.Int("attempt", attempt+1))
			continue
		}

		if err := c.attach(conn); err != nil {
			conn.Disconnect()
			if errors.Is(err, engine.ErrClosed) {
				return
			}
			logging.Warn("Reconnect attach failed", zap.Error(err), zap.Int("attempt", attempt+1))
			continue
		}

		logging.Info("Reconnected", zap.String("address", c.address))
		return
	}
}
