package feed

import (
	"errors"
	"fmt"
	"time"

	"pricefeed/internal/binance/stream"
)

// Status is the connection state reported to OnStatusChange.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

var (
	// ErrReconnectExhausted accompanies the terminal StatusError once every
	// reconnect attempt has failed.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrReconnectThrottled = errors.New("force reconnect called too soon")
	ErrConnectionStale    = errors.New("connection no longer open")
	ErrConnectAborted     = errors.New("connect aborted by disconnect")
)

// UnsubscribeMode picks how Unsubscribe reaches the exchange while connected.
type UnsubscribeMode string

const (
	UnsubscribeReconnect UnsubscribeMode = "reconnect" // rebuild the connection with the remaining set
	UnsubscribeMessage   UnsubscribeMode = "message"   // send a batched UNSUBSCRIBE
)

func ParseUnsubscribeMode(s string) (UnsubscribeMode, error) {
	switch UnsubscribeMode(s) {
	case "", UnsubscribeReconnect:
		return UnsubscribeReconnect, nil
	case UnsubscribeMessage:
		return UnsubscribeMessage, nil
	}
	return "", fmt.Errorf("unknown unsubscribe mode: %q", s)
}

// Config holds every Manager tunable.
type Config struct {
	Debounce       time.Duration
	MinSendSpacing time.Duration
	SendJitter     time.Duration
	StabilizeDelay time.Duration

	LivenessInterval      time.Duration
	Backoff               Backoff
	MaxReconnectAttempts  int
	HandshakeTimeout      time.Duration
	ForceReconnectSpacing time.Duration
	ForceReconnectDelay   time.Duration

	ErrorThreshold  int
	ErrorWindow     time.Duration
	UnsubscribeMode UnsubscribeMode
	LatencySamples  int
	MaxFrameBytes   int
}

func DefaultConfig() Config {
	return Config{
		Debounce:       100 * time.Millisecond,
		MinSendSpacing: 300 * time.Millisecond,
		SendJitter:     50 * time.Millisecond,
		StabilizeDelay: 250 * time.Millisecond,

		LivenessInterval: 15 * time.Second,
		Backoff: Backoff{
			Base:   2 * time.Second,
			Max:    30 * time.Second,
			Jitter: time.Second,
		},
		MaxReconnectAttempts:  10,
		HandshakeTimeout:      10 * time.Second,
		ForceReconnectSpacing: 5 * time.Second,
		ForceReconnectDelay:   500 * time.Millisecond,

		ErrorThreshold:  50,
		ErrorWindow:     time.Minute,
		UnsubscribeMode: UnsubscribeReconnect,
		LatencySamples:  100,
		MaxFrameBytes:   stream.DefaultMaxFrameBytes,
	}
}
