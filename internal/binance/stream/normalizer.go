package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"pricefeed/pkg/binance"
)

var (
	ErrFrameTooLarge    = errors.New("frame exceeds size limit")
	ErrUnexpectedShape  = errors.New("unexpected frame shape")
	ErrOutOfBand        = errors.New("value outside sane band")
	ErrIgnored          = errors.New("frame ignored")
	ErrControlRejected  = errors.New("control request rejected")
	errMissingSymbol    = fmt.Errorf("%w: missing symbol", ErrUnexpectedShape)
	errNonPositivePrice = fmt.Errorf("%w: non-positive price", ErrOutOfBand)
)

// Percent-change band accepted from 24h tickers.
const (
	MinChangePercent = -100.0
	MaxChangePercent = 1000.0
)

// DefaultMaxFrameBytes caps a single inbound frame.
const DefaultMaxFrameBytes = 64 * 1024

// Normalizer turns raw stream frames into PriceRecords. It holds no state
// between frames and is safe for concurrent use.
type Normalizer struct {
	maxFrameBytes int
	now           func() time.Time
}

// NewNormalizer returns a Normalizer. maxFrameBytes <= 0 uses
// DefaultMaxFrameBytes; a nil now uses time.Now.
func NewNormalizer(maxFrameBytes int, now func() time.Time) *Normalizer {
	if maxFrameBytes <= 0 {
		maxFrameBytes = DefaultMaxFrameBytes
	}
	if now == nil {
		now = time.Now
	}
	return &Normalizer{maxFrameBytes: maxFrameBytes, now: now}
}

// Normalize classifies one frame and converts it. Frames this client does
// not consume (control replies, depth, open klines) return ErrIgnored.
func (n *Normalizer) Normalize(frame []byte) (PriceRecord, error) {
	if len(frame) > n.maxFrameBytes {
		return PriceRecord{}, fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, len(frame), n.maxFrameBytes)
	}

	payload, streamName, err := unwrap(frame)
	if err != nil {
		return PriceRecord{}, err
	}

	var hdr binance.EventHeader
	if err := json.Unmarshal(payload, &hdr); err != nil {
		return PriceRecord{}, fmt.Errorf("%w: %v", ErrUnexpectedShape, err)
	}

	receivedAt := n.now()
	switch hdr.Event {
	case binance.EventTrade:
		return n.trade(payload, receivedAt)
	case binance.EventTicker24h:
		return n.ticker(payload, receivedAt)
	case binance.EventMiniTicker:
		return n.miniTicker(payload, receivedAt)
	case binance.EventKline:
		return n.kline(payload, receivedAt)
	case binance.EventDepth:
		return PriceRecord{}, ErrIgnored
	case "":
		// partial depth snapshots carry no event type
		if _, kind, err := binance.SplitStreamName(streamName); err == nil && kind.Kind == binance.KindDepth {
			return PriceRecord{}, ErrIgnored
		}
		return PriceRecord{}, fmt.Errorf("%w: no event type", ErrUnexpectedShape)
	}
	return PriceRecord{}, fmt.Errorf("%w: event %q", ErrIgnored, hdr.Event)
}

// unwrap returns the event payload of a combined-stream or direct frame.
func unwrap(frame []byte) (json.RawMessage, string, error) {
	var env binance.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnexpectedShape, err)
	}

	switch {
	case env.Error != nil:
		return nil, "", fmt.Errorf("%w: code=%d msg=%s", ErrControlRejected, env.Error.Code, env.Error.Msg)
	case env.ID != nil:
		return nil, "", ErrIgnored // {"result":null,"id":n}
	case env.Stream != "" && len(env.Data) > 0:
		return env.Data, env.Stream, nil
	case env.Event != "":
		return frame, "", nil
	}
	return nil, "", ErrUnexpectedShape
}

func (n *Normalizer) trade(payload []byte, receivedAt time.Time) (PriceRecord, error) {
	var ev binance.TradeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return PriceRecord{}, fmt.Errorf("%w: decode trade: %v", ErrUnexpectedShape, err)
	}
	if ev.Symbol == "" {
		return PriceRecord{}, errMissingSymbol
	}
	if ev.Price <= 0 {
		return PriceRecord{}, errNonPositivePrice
	}

	return PriceRecord{
		Symbol:     strings.ToUpper(ev.Symbol),
		Price:      ev.Price,
		Quantity:   ev.Quantity,
		EventTime:  eventTime(ev.EventTime, receivedAt),
		ReceivedAt: receivedAt,
		Source:     SourceTrade,
		Fields:     FieldPrice | FieldQuantity,
	}, nil
}

func (n *Normalizer) ticker(payload []byte, receivedAt time.Time) (PriceRecord, error) {
	var ev binance.Ticker24hEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return PriceRecord{}, fmt.Errorf("%w: decode ticker: %v", ErrUnexpectedShape, err)
	}
	if ev.Symbol == "" {
		return PriceRecord{}, errMissingSymbol
	}
	if ev.PriceChangePercent < MinChangePercent || ev.PriceChangePercent > MaxChangePercent {
		return PriceRecord{}, fmt.Errorf("%w: %s change %.2f%%", ErrOutOfBand, ev.Symbol, ev.PriceChangePercent)
	}
	if ev.LastPrice <= 0 {
		return PriceRecord{}, errNonPositivePrice
	}

	return PriceRecord{
		Symbol:        strings.ToUpper(ev.Symbol),
		Price:         ev.LastPrice,
		Change:        ev.PriceChange,
		ChangePercent: ev.PriceChangePercent,
		Open24h:       ev.OpenPrice,
		High24h:       ev.HighPrice,
		Low24h:        ev.LowPrice,
		Volume24h:     ev.Volume,
		EventTime:     eventTime(ev.EventTime, receivedAt),
		ReceivedAt:    receivedAt,
		Source:        SourceTicker,
		Fields: FieldPrice | FieldChange | FieldChangePercent |
			FieldOpen24h | FieldHigh24h | FieldLow24h | FieldVolume24h,
	}, nil
}

func (n *Normalizer) miniTicker(payload []byte, receivedAt time.Time) (PriceRecord, error) {
	var ev binance.MiniTickerEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return PriceRecord{}, fmt.Errorf("%w: decode mini ticker: %v", ErrUnexpectedShape, err)
	}
	if ev.Symbol == "" {
		return PriceRecord{}, errMissingSymbol
	}
	if ev.LastPrice <= 0 {
		return PriceRecord{}, errNonPositivePrice
	}

	return PriceRecord{
		Symbol:     strings.ToUpper(ev.Symbol),
		Price:      ev.LastPrice,
		Open24h:    ev.OpenPrice,
		High24h:    ev.HighPrice,
		Low24h:     ev.LowPrice,
		Volume24h:  ev.Volume,
		EventTime:  eventTime(ev.EventTime, receivedAt),
		ReceivedAt: receivedAt,
		Source:     SourceMiniTicker,
		Fields:     FieldPrice | FieldOpen24h | FieldHigh24h | FieldLow24h | FieldVolume24h,
	}, nil
}

func (n *Normalizer) kline(payload []byte, receivedAt time.Time) (PriceRecord, error) {
	var ev binance.KlineEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return PriceRecord{}, fmt.Errorf("%w: decode kline: %v", ErrUnexpectedShape, err)
	}
	// only final candles carry a stable interval return
	if !ev.Kline.Closed {
		return PriceRecord{}, ErrIgnored
	}
	symbol := ev.Symbol
	if symbol == "" {
		symbol = ev.Kline.Symbol
	}
	if symbol == "" {
		return PriceRecord{}, errMissingSymbol
	}
	if ev.Kline.Open <= 0 {
		return PriceRecord{}, fmt.Errorf("%w: %s kline open %.8f", ErrOutOfBand, symbol, ev.Kline.Open)
	}

	interval := string(ev.Kline.Interval)
	return PriceRecord{
		Symbol:                strings.ToUpper(symbol),
		Price:                 ev.Kline.Close,
		Interval:              interval,
		IntervalChangePercent: (ev.Kline.Close - ev.Kline.Open) / ev.Kline.Open * 100,
		EventTime:             eventTime(ev.EventTime, receivedAt),
		ReceivedAt:            receivedAt,
		Source:                KlineSource(interval),
		Fields:                FieldIntervalChange,
	}, nil
}

func eventTime(ms int64, fallback time.Time) time.Time {
	if ms <= 0 {
		return fallback
	}
	return time.UnixMilli(ms)
}
