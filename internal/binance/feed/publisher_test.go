package feed

import (
	"errors"
	"testing"

	"pricefeed/internal/binance/stream"

	"github.com/stretchr/testify/assert"
)

// go test -v --run TestPublisherFanOut
func TestPublisherFanOut(t *testing.T) {
	p := NewPublisher()

	var order []string
	p.SetHandlers(Handlers{OnPriceUpdate: func(stream.PriceRecord) { order = append(order, "handler") }})
	removeA := p.AddListener(func(stream.PriceRecord) { order = append(order, "a") })
	p.AddListener(func(stream.PriceRecord) { order = append(order, "b") })

	p.PublishPrice(stream.PriceRecord{Symbol: "BTCUSDT"})
	assert.Equal(t, []string{"handler", "a", "b"}, order)

	removeA()
	removeA()
	order = nil
	p.PublishPrice(stream.PriceRecord{Symbol: "BTCUSDT"})
	assert.Equal(t, []string{"handler", "b"}, order)

	// replacing the slot drops the old handler
	order = nil
	p.SetHandlers(Handlers{})
	p.PublishPrice(stream.PriceRecord{Symbol: "BTCUSDT"})
	assert.Equal(t, []string{"b"}, order)
}

// go test -v --run TestPublisherStatusAndError
func TestPublisherStatusAndError(t *testing.T) {
	p := NewPublisher()
	p.PublishStatus(StatusConnected, nil) // no handlers: no panic

	var gotStatus Status
	var gotErr error
	p.SetHandlers(Handlers{
		OnStatusChange: func(s Status, err error) { gotStatus = s; gotErr = err },
		OnError:        func(err error) { gotErr = err },
	})

	p.PublishStatus(StatusError, ErrReconnectExhausted)
	assert.Equal(t, StatusError, gotStatus)
	assert.ErrorIs(t, gotErr, ErrReconnectExhausted)

	boom := errors.New("boom")
	p.PublishError(boom)
	assert.Equal(t, boom, gotErr)
}
