package feed

import (
	"sync"
	"time"

	"pricefeed/pkg/binance"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Sender writes one control message to the live socket.
type Sender interface {
	WriteJSON(v any) error
}

// BatcherOptions tunes coalescing and send spacing.
type BatcherOptions struct {
	Debounce   time.Duration // quiet period after the last Enqueue
	MinSpacing time.Duration // minimum gap between two control messages
	Jitter     time.Duration // upper bound added when a flush is pushed back
}

// Batcher coalesces wire keys into SUBSCRIBE/UNSUBSCRIBE messages. A key is
// pending until a send containing it succeeds, and is sent at most once per
// attached connection.
type Batcher struct {
	opts    BatcherOptions
	clock   Clock
	rand    func(int64) int64
	limiter *rate.Limiter
	logger  *zap.Logger

	mu      sync.Mutex
	sender  Sender
	gen     uint64 // bumped whenever the sender changes
	pending orderedSet
	unsub   orderedSet
	sent    map[string]struct{}
	timer   Timer
	timerID uint64
	nextID  int64
}

func NewBatcher(opts BatcherOptions, clock Clock, rnd func(int64) int64, logger *zap.Logger) *Batcher {
	if clock == nil {
		clock = RealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if opts.MinSpacing > 0 {
		limit = rate.Every(opts.MinSpacing)
	}
	return &Batcher{
		opts:    opts,
		clock:   clock,
		rand:    rnd,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
		pending: newOrderedSet(),
		unsub:   newOrderedSet(),
		sent:    make(map[string]struct{}),
	}
}

// Attach points the batcher at a fresh connection. Nothing has been sent on
// it yet, so all per-connection state is dropped.
func (b *Batcher) Attach(s Sender) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
	b.sender = s
}

// Detach stops sending until the next Attach. Pending keys are kept.
func (b *Batcher) Detach() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sender = nil
	b.gen++
	b.stopTimerLocked()
}

// Reset detaches and drops everything queued.
func (b *Batcher) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
}

func (b *Batcher) resetLocked() {
	b.sender = nil
	b.gen++
	b.stopTimerLocked()
	b.pending = newOrderedSet()
	b.unsub = newOrderedSet()
	b.sent = make(map[string]struct{})
}

// Enqueue adds wire keys to the pending SUBSCRIBE set and restarts the
// debounce. Keys already pending or already sent on this connection are
// skipped.
func (b *Batcher) Enqueue(keys ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, k := range keys {
		if b.unsub.remove(k) {
			// still live on the wire; cancel the queued UNSUBSCRIBE instead
			b.sent[k] = struct{}{}
			continue
		}
		if _, ok := b.sent[k]; ok {
			continue
		}
		b.pending.add(k)
	}
	if b.pending.size() > 0 || b.unsub.size() > 0 {
		b.armLocked(b.opts.Debounce)
	}
}

// EnqueueUnsubscribe queues an UNSUBSCRIBE for keys that were sent on this
// connection and drops keys that were still only pending.
func (b *Batcher) EnqueueUnsubscribe(keys ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, k := range keys {
		b.pending.remove(k)
		if _, ok := b.sent[k]; ok {
			delete(b.sent, k)
			b.unsub.add(k)
		}
	}
	if b.unsub.size() > 0 {
		b.armLocked(b.opts.Debounce)
	}
}

// Forget drops keys from the pending set without sending anything.
func (b *Batcher) Forget(keys ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		b.pending.remove(k)
	}
}

// Pending returns the queued SUBSCRIBE keys in insertion order.
func (b *Batcher) Pending() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending.items()
}

// PendingUnsubscribe returns the queued UNSUBSCRIBE keys.
func (b *Batcher) PendingUnsubscribe() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unsub.items()
}

func (b *Batcher) armLocked(d time.Duration) {
	b.stopTimerLocked()
	id := b.timerID
	b.timer = b.clock.AfterFunc(d, func() { b.flush(id) })
}

func (b *Batcher) stopTimerLocked() {
	stopTimer(&b.timer)
	b.timerID++
}

// flush sends one control message if spacing allows, otherwise pushes the
// flush back by the remaining delay plus jitter.
func (b *Batcher) flush(id uint64) {
	b.mu.Lock()
	if id != b.timerID {
		b.mu.Unlock()
		return // superseded
	}
	b.timer = nil
	b.timerID++

	// no socket: retried on the next Enqueue or resubscription
	if b.sender == nil || (b.pending.size() == 0 && b.unsub.size() == 0) {
		b.mu.Unlock()
		return
	}

	now := b.clock.Now()
	r := b.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > spacingTolerance {
		r.CancelAt(now)
		b.armLocked(ceilMillis(delay) + jitter(b.opts.Jitter, b.rand))
		b.mu.Unlock()
		return
	}

	method := binance.MethodUnsubscribe
	params := b.unsub.items()
	if len(params) == 0 {
		method = binance.MethodSubscribe
		params = b.pending.items()
	}

	// Mark as sent before writing so a concurrent unsubscribe sees the key.
	for _, k := range params {
		if method == binance.MethodSubscribe {
			b.pending.remove(k)
			b.sent[k] = struct{}{}
		} else {
			b.unsub.remove(k)
		}
	}
	b.nextID++
	req := binance.ControlRequest{Method: method, Params: params, ID: b.nextID}
	sender, gen := b.sender, b.gen
	b.mu.Unlock()

	err := sender.WriteJSON(req)

	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.gen {
		return // connection replaced while writing
	}
	if err != nil {
		b.logger.Warn("control message failed", zap.String("method", method),
			zap.Int("keys", len(params)), zap.Error(err))
		b.restoreLocked(method, params)
		return
	}
	b.logger.Debug("control message sent", zap.String("method", method),
		zap.Int64("id", req.ID), zap.Strings("params", params))

	if b.timer == nil && (b.pending.size() > 0 || b.unsub.size() > 0) {
		b.armLocked(b.opts.Debounce)
	}
}

// restoreLocked puts keys from a failed write back in their queue unless a
// later call changed their state.
func (b *Batcher) restoreLocked(method string, params []string) {
	for _, k := range params {
		if method == binance.MethodSubscribe {
			if _, ok := b.sent[k]; ok {
				delete(b.sent, k)
				b.pending.add(k)
			}
			continue
		}
		if _, ok := b.sent[k]; !ok && !b.pending.has(k) {
			b.unsub.add(k)
		}
	}
}

// spacingTolerance absorbs the nanosecond rounding of the limiter's float
// token accounting; anything shorter counts as ready.
const spacingTolerance = time.Microsecond

func ceilMillis(d time.Duration) time.Duration {
	if r := d % time.Millisecond; r != 0 {
		d += time.Millisecond - r
	}
	return d
}

// orderedSet keeps insertion order with O(1) membership.
type orderedSet struct {
	keys  []string
	index map[string]struct{}
}

func newOrderedSet() orderedSet {
	return orderedSet{index: make(map[string]struct{})}
}

func (s *orderedSet) add(k string) bool {
	if _, ok := s.index[k]; ok {
		return false
	}
	s.index[k] = struct{}{}
	s.keys = append(s.keys, k)
	return true
}

func (s *orderedSet) remove(k string) bool {
	if _, ok := s.index[k]; !ok {
		return false
	}
	delete(s.index, k)
	for i, v := range s.keys {
		if v == k {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
	return true
}

func (s *orderedSet) has(k string) bool {
	_, ok := s.index[k]
	return ok
}

func (s *orderedSet) size() int { return len(s.keys) }

func (s *orderedSet) items() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}
