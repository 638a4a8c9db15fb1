package feed

import (
	"sync"

	"pricefeed/internal/binance/stream"
)

// Handlers is the single replaceable callback slot. OnStatusChange calls are
// serialized, so it must not call Connect, Disconnect or ForceReconnect
// synchronously.
type Handlers struct {
	OnPriceUpdate  func(stream.PriceRecord)
	OnStatusChange func(status Status, err error) // err is set with StatusError
	OnError        func(error)
}

type listener struct {
	id uint64
	fn func(stream.PriceRecord)
}

// Publisher fans price records out to the handler slot and every listener.
// Callbacks run on the caller's goroutine without any lock held.
type Publisher struct {
	mu        sync.RWMutex
	handlers  Handlers
	listeners []listener
	nextID    uint64
}

func NewPublisher() *Publisher {
	return &Publisher{}
}

// SetHandlers replaces the handler slot.
func (p *Publisher) SetHandlers(h Handlers) {
	p.mu.Lock()
	p.handlers = h
	p.mu.Unlock()
}

// AddListener registers an extra price consumer. The returned func removes it.
func (p *Publisher) AddListener(fn func(stream.PriceRecord)) (remove func()) {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.listeners = append(p.listeners, listener{id: id, fn: fn})
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			for i, l := range p.listeners {
				if l.id == id {
					p.listeners = append(p.listeners[:i:i], p.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (p *Publisher) PublishPrice(rec stream.PriceRecord) {
	p.mu.RLock()
	h := p.handlers.OnPriceUpdate
	ls := p.listeners
	p.mu.RUnlock()

	if h != nil {
		h(rec)
	}
	for _, l := range ls {
		l.fn(rec)
	}
}

func (p *Publisher) PublishStatus(s Status, err error) {
	p.mu.RLock()
	h := p.handlers.OnStatusChange
	p.mu.RUnlock()
	if h != nil {
		h(s, err)
	}
}

func (p *Publisher) PublishError(err error) {
	p.mu.RLock()
	h := p.handlers.OnError
	p.mu.RUnlock()
	if h != nil {
		h(err)
	}
}
