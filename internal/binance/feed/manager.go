package feed

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"pricefeed/internal/binance/stream"
	"pricefeed/pkg/binance"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Conn is one open stream socket. ReadMessage is only called from the
// manager's read goroutine.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteJSON(v any) error
	Close(code int, reason string) error
	IsOpen() bool
}

// Dialer opens a new Conn.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialFunc adapts a function to Dialer.
type DialFunc func(ctx context.Context) (Conn, error)

func (f DialFunc) Dial(ctx context.Context) (Conn, error) { return f(ctx) }

// Option customises a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock used by every timer.
func WithClock(c Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithRand replaces the jitter source. rnd(n) must return a value in [0, n).
func WithRand(rnd func(int64) int64) Option {
	return func(m *Manager) { m.rand = rnd }
}

// Manager owns the single stream connection, the desired subscription set
// and everything needed to keep the two in sync across drops.
type Manager struct {
	cfg    Config
	dialer Dialer
	clock  Clock
	rand   func(int64) int64
	logger *zap.Logger

	registry   *Registry
	batcher    *Batcher
	health     *HealthMonitor
	normalizer *stream.Normalizer
	publisher  *Publisher
	breaker    *Breaker

	statusMu sync.Mutex

	mu             sync.Mutex
	conn           Conn
	status         Status
	connecting     bool
	manualClose    bool
	attempts       int
	session        string
	reconnectTimer Timer
	reconnectSeq   uint64
	livenessTimer  Timer
	stabilizeTimer Timer
	lastForce      time.Time
}

func NewManager(cfg Config, dialer Dialer, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		cfg:    cfg,
		dialer: dialer,
		clock:  RealClock(),
		rand:   rand.Int64N,
		logger: logger,
		status: StatusDisconnected,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.registry = NewRegistry()
	m.batcher = NewBatcher(BatcherOptions{
		Debounce:   cfg.Debounce,
		MinSpacing: cfg.MinSendSpacing,
		Jitter:     cfg.SendJitter,
	}, m.clock, m.rand, logger.Named("batcher"))
	m.health = NewHealthMonitor(m.clock, cfg.LatencySamples)
	m.normalizer = stream.NewNormalizer(cfg.MaxFrameBytes, m.clock.Now)
	m.publisher = NewPublisher()
	m.breaker = NewBreaker(cfg.ErrorThreshold, cfg.ErrorWindow)
	return m
}

// SetHandlers replaces the callback slot. Safe to call at any time.
func (m *Manager) SetHandlers(h Handlers) {
	m.publisher.SetHandlers(h)
}

// AddListener adds a price consumer alongside the handler slot.
func (m *Manager) AddListener(fn func(stream.PriceRecord)) (remove func()) {
	return m.publisher.AddListener(fn)
}

// Connect opens the connection. It returns nil at once when a connection is
// already open or an attempt is in flight; an in-flight attempt aborted by an
// earlier Disconnect is kept instead. A failed dial returns the error and
// arms the reconnect schedule.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	m.manualClose = false
	m.attempts = 0
	if m.connecting || m.conn != nil {
		m.mu.Unlock()
		return nil
	}
	m.cancelReconnectLocked()
	m.connecting = true
	m.mu.Unlock()

	return m.dial(ctx, false)
}

// dial runs one attempt. The caller has set m.connecting.
func (m *Manager) dial(ctx context.Context, reconnect bool) error {
	m.setStatus(StatusConnecting, nil)

	conn, err := m.dialer.Dial(ctx)

	m.mu.Lock()
	m.connecting = false
	if err != nil {
		manual := m.manualClose
		m.mu.Unlock()

		err = fmt.Errorf("connect: %w", err)
		m.logger.Warn("connect failed", zap.Bool("reconnect", reconnect), zap.Error(err))
		m.health.RecordError()
		m.publisher.PublishError(err)
		m.setStatus(StatusError, err)
		if !manual {
			m.scheduleReconnect()
		}
		return err
	}
	if m.manualClose {
		m.mu.Unlock()
		_ = conn.Close(websocket.CloseNormalClosure, "disconnected")
		return ErrConnectAborted
	}

	m.conn = conn
	m.attempts = 0
	m.session = uuid.NewString()
	session := m.session
	m.batcher.Attach(conn)
	m.breaker.Reset()
	m.armLivenessLocked(conn)
	stopTimer(&m.stabilizeTimer)
	m.stabilizeTimer = m.clock.AfterFunc(m.cfg.StabilizeDelay, func() { m.resubscribe(conn) })
	m.mu.Unlock()

	m.health.RecordConnection()
	if reconnect {
		m.health.RecordReconnection()
	}
	m.logger.Info("feed connected", zap.String("session", session), zap.Bool("reconnect", reconnect))
	m.setStatus(StatusConnected, nil)

	go m.readLoop(conn, session)
	return nil
}

// Disconnect closes the socket with a normal-closure code and cancels every
// timer. No reconnect follows. The registry is kept for the next Connect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.manualClose = true
	m.attempts = 0
	conn := m.detachLocked()
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.CloseNormalClosure, "client disconnect")
		m.health.RecordDisconnection()
		m.logger.Info("feed disconnected")
	}
	m.setStatus(StatusDisconnected, nil)
}

// detachLocked stops all timers and forgets the current socket, returning it.
func (m *Manager) detachLocked() Conn {
	m.cancelReconnectLocked()
	stopTimer(&m.livenessTimer)
	stopTimer(&m.stabilizeTimer)
	m.batcher.Reset()
	conn := m.conn
	m.conn = nil
	return conn
}

// ForceReconnect tears the connection down and dials again after
// ForceReconnectDelay. Calls closer than ForceReconnectSpacing are refused.
func (m *Manager) ForceReconnect(ctx context.Context) error {
	m.mu.Lock()
	now := m.clock.Now()
	if !m.lastForce.IsZero() && now.Sub(m.lastForce) < m.cfg.ForceReconnectSpacing {
		m.mu.Unlock()
		return ErrReconnectThrottled
	}
	m.lastForce = now
	m.mu.Unlock()

	m.logger.Info("forced reconnect")
	m.Disconnect()
	if err := m.sleep(ctx, m.cfg.ForceReconnectDelay); err != nil {
		return err
	}
	return m.Connect(ctx)
}

// restart rebuilds the connection without the manual-close side effects.
// Used by the circuit breaker and reconnect-mode unsubscribe.
func (m *Manager) restart(reason string) {
	m.mu.Lock()
	if m.manualClose || m.connecting {
		m.mu.Unlock()
		return
	}
	conn := m.detachLocked()
	m.connecting = true
	m.mu.Unlock()

	m.logger.Info("restarting connection", zap.String("reason", reason))
	if conn != nil {
		_ = conn.Close(websocket.CloseNormalClosure, reason)
		m.health.RecordDisconnection()
		m.setStatus(StatusDisconnected, nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.HandshakeTimeout)
	defer cancel()
	_ = m.dial(ctx, true)
}

func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if m.manualClose || m.conn != nil || m.connecting {
		m.mu.Unlock()
		return
	}
	if m.attempts >= m.cfg.MaxReconnectAttempts {
		attempts := m.attempts
		m.mu.Unlock()

		m.logger.Error("giving up on reconnect", zap.Int("attempts", attempts))
		m.publisher.PublishError(ErrReconnectExhausted)
		m.setStatus(StatusError, ErrReconnectExhausted)
		return
	}

	m.attempts++
	attempt := m.attempts
	delay := m.cfg.Backoff.Next(attempt, m.rand)
	m.cancelReconnectLocked()
	seq := m.reconnectSeq
	m.reconnectTimer = m.clock.AfterFunc(delay, func() { m.reconnect(seq) })
	m.mu.Unlock()

	m.logger.Info("reconnect scheduled", zap.Int("attempt", attempt), zap.Duration("delay", delay))
}

func (m *Manager) cancelReconnectLocked() {
	stopTimer(&m.reconnectTimer)
	m.reconnectSeq++
}

func (m *Manager) reconnect(seq uint64) {
	m.mu.Lock()
	if seq != m.reconnectSeq || m.manualClose || m.conn != nil || m.connecting {
		m.mu.Unlock()
		return
	}
	m.reconnectTimer = nil
	m.connecting = true
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.HandshakeTimeout)
	defer cancel()
	_ = m.dial(ctx, true)
}

func (m *Manager) armLivenessLocked(conn Conn) {
	stopTimer(&m.livenessTimer)
	if m.cfg.LivenessInterval <= 0 {
		return
	}
	m.livenessTimer = m.clock.AfterFunc(m.cfg.LivenessInterval, func() { m.checkLiveness(conn) })
}

// checkLiveness catches sockets that died without a read error.
func (m *Manager) checkLiveness(conn Conn) {
	m.mu.Lock()
	if m.conn != conn {
		m.mu.Unlock()
		return
	}
	if conn.IsOpen() {
		m.armLivenessLocked(conn)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.handleClose(conn, ErrConnectionStale)
}

// resubscribe queues every registered key on a freshly opened connection.
func (m *Manager) resubscribe(conn Conn) {
	m.mu.Lock()
	if m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.stabilizeTimer = nil
	m.mu.Unlock()

	keys := m.registry.Keys()
	if len(keys) == 0 {
		return
	}
	m.logger.Debug("resubscribing", zap.Int("keys", len(keys)))
	m.batcher.Enqueue(wireNames(keys)...)
}

func (m *Manager) readLoop(conn Conn, session string) {
	log := m.logger.With(zap.String("session", session))
	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			m.handleClose(conn, err)
			return
		}
		if !m.isCurrent(conn) {
			log.Debug("frame from replaced connection dropped")
			continue
		}
		m.handleFrame(log, msg)
	}
}

func (m *Manager) isCurrent(conn Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn == conn
}

func (m *Manager) handleFrame(log *zap.Logger, msg []byte) {
	m.health.RecordMessage()

	rec, err := m.normalizer.Normalize(msg)
	if err != nil {
		if errors.Is(err, stream.ErrIgnored) {
			return
		}
		m.health.RecordError()
		log.Debug("frame dropped", zap.Error(err))
		if m.breaker.Record(m.clock.Now()) {
			log.Warn("frame error rate over threshold, reconnecting",
				zap.Int("threshold", m.cfg.ErrorThreshold), zap.Duration("window", m.cfg.ErrorWindow))
			go m.restart("circuit breaker")
		}
		return
	}

	m.health.RecordLatency(rec.Latency())
	m.publisher.PublishPrice(rec)
}

// handleClose runs once per connection, from whichever of the read loop or
// the liveness check notices first.
func (m *Manager) handleClose(conn Conn, cause error) {
	m.mu.Lock()
	if m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	stopTimer(&m.livenessTimer)
	stopTimer(&m.stabilizeTimer)
	m.batcher.Detach()
	manual := m.manualClose
	session := m.session
	m.mu.Unlock()

	_ = conn.Close(websocket.CloseGoingAway, "")
	m.health.RecordDisconnection()
	m.logger.Warn("feed connection closed", zap.String("session", session), zap.Error(cause))
	m.setStatus(StatusDisconnected, nil)

	if !manual {
		m.scheduleReconnect()
	}
}

// setStatus records s and notifies. Repeats are only reported for errors.
// statusMu keeps OnStatusChange calls in the order the status was stored.
func (m *Manager) setStatus(s Status, err error) {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()

	m.mu.Lock()
	changed := m.status != s
	m.status = s
	m.mu.Unlock()

	if !changed && err == nil {
		return
	}
	m.publisher.PublishStatus(s, err)
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	done := make(chan struct{})
	t := m.clock.AfterFunc(d, func() { close(done) })
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	}
}

// Subscribe registers symbol/kind and, when connected, queues it for the
// next batch. It returns false only for a malformed symbol or stream kind.
func (m *Manager) Subscribe(symbol string, kind binance.StreamKind) bool {
	sym := NormalizeSymbol(symbol)
	if sym == "" || !kind.Valid() {
		m.logger.Debug("subscribe rejected", zap.String("symbol", symbol), zap.Stringer("stream", kind))
		return false
	}
	if !m.registry.Add(sym, kind) {
		return true
	}

	if m.IsConnected() {
		m.batcher.Enqueue(Key{Symbol: sym, Stream: kind}.Wire())
	}
	return true
}

// Unsubscribe removes the given kinds for symbol, or all of them when none
// are given. While connected, the change reaches the exchange according to
// UnsubscribeMode. It returns false when nothing was registered.
func (m *Manager) Unsubscribe(symbol string, kinds ...binance.StreamKind) bool {
	sym := NormalizeSymbol(symbol)
	if sym == "" {
		return false
	}
	removed := m.registry.Remove(sym, kinds...)
	if len(removed) == 0 {
		return false
	}
	wire := wireNames(removed)

	if !m.IsConnected() {
		m.batcher.Forget(wire...)
		return true
	}

	switch m.cfg.UnsubscribeMode {
	case UnsubscribeMessage:
		m.batcher.EnqueueUnsubscribe(wire...)
	default:
		m.batcher.Forget(wire...)
		go m.restart("unsubscribe " + sym)
	}
	return true
}

// ClearSubscriptions empties the registry and the pending queue. Streams
// already live on the socket stay until the next connection.
func (m *Manager) ClearSubscriptions() {
	keys := m.registry.Keys()
	m.registry.Clear()
	m.batcher.Forget(wireNames(keys)...)
}

// Subscriptions returns the registered keys ordered by wire name.
func (m *Manager) Subscriptions() []Key {
	return m.registry.Keys()
}

// PendingSubscriptions returns the wire keys waiting for the next batch.
func (m *Manager) PendingSubscriptions() []string {
	return m.batcher.Pending()
}

func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// SessionID identifies the current connection; empty before the first connect.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

func (m *Manager) HealthMetrics() HealthMetrics { return m.health.Metrics() }

func (m *Manager) HealthStatus() HealthStatus { return m.health.Status() }

func (m *Manager) HealthReport() HealthReport { return m.health.Report() }
