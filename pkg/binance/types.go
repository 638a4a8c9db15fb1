package binance

import "encoding/json"

// ControlRequest is the control envelope sent on the stream connection.
type ControlRequest struct {
	Method string   `json:"method"` // SUBSCRIBE or UNSUBSCRIBE
	Params []string `json:"params"` // stream names, e.g. "btcusdt@ticker"
	ID     int64    `json:"id"`
}

// ControlError is the error body of a rejected control request.
type ControlError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Envelope covers every top-level shape the stream endpoint sends: the
// combined-stream wrapper, a bare event, and control replies. Keys that
// differ only in case are declared explicitly so encoding/json never
// falls back to a case-insensitive match.
type Envelope struct {
	Stream    string          `json:"stream"` // combined-stream name
	Data      json.RawMessage `json:"data"`   // combined-stream payload
	Event     string          `json:"e"`      // bare event discriminator
	EventTime int64           `json:"E"`
	Result    json.RawMessage `json:"result"`
	ID        *int64          `json:"id"`
	Error     *ControlError   `json:"error"`
}

// EventHeader is decoded first to pick the payload type.
type EventHeader struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
}

// TradeEvent is the <symbol>@trade payload.
type TradeEvent struct {
	Event        string  `json:"e"`
	EventTime    int64   `json:"E"`
	Symbol       string  `json:"s"`
	TradeID      int64   `json:"t"`
	Price        float64 `json:"p,string"`
	Quantity     float64 `json:"q,string"`
	TradeTime    int64   `json:"T"`
	BuyerIsMaker bool    `json:"m"`
	Ignore       bool    `json:"M"`
}

// Ticker24hEvent is the <symbol>@ticker payload (rolling 24h statistics).
type Ticker24hEvent struct {
	Event              string  `json:"e"`
	EventTime          int64   `json:"E"`
	Symbol             string  `json:"s"`
	PriceChange        float64 `json:"p,string"`
	PriceChangePercent float64 `json:"P,string"`
	WeightedAvgPrice   string  `json:"w"`
	FirstTradePrice    string  `json:"x"`
	LastPrice          float64 `json:"c,string"`
	LastQty            string  `json:"Q"`
	BestBid            string  `json:"b"`
	BestBidQty         string  `json:"B"`
	BestAsk            string  `json:"a"`
	BestAskQty         string  `json:"A"`
	OpenPrice          float64 `json:"o,string"`
	HighPrice          float64 `json:"h,string"`
	LowPrice           float64 `json:"l,string"`
	Volume             float64 `json:"v,string"`
	QuoteVolume        string  `json:"q"`
	OpenTime           int64   `json:"O"`
	CloseTime          int64   `json:"C"`
	FirstTradeID       int64   `json:"F"`
	LastTradeID        int64   `json:"L"`
	TradeCount         int64   `json:"n"`
}

// MiniTickerEvent is the <symbol>@miniTicker payload.
type MiniTickerEvent struct {
	Event       string  `json:"e"`
	EventTime   int64   `json:"E"`
	Symbol      string  `json:"s"`
	LastPrice   float64 `json:"c,string"`
	OpenPrice   float64 `json:"o,string"`
	HighPrice   float64 `json:"h,string"`
	LowPrice    float64 `json:"l,string"`
	Volume      float64 `json:"v,string"`
	QuoteVolume string  `json:"q"`
}

// KlineEvent is the <symbol>@kline_<interval> payload.
type KlineEvent struct {
	Event     string    `json:"e"`
	EventTime int64     `json:"E"`
	Symbol    string    `json:"s"`
	Kline     KlineData `json:"k"`
}

// KlineData is a single candlestick inside a KlineEvent.
type KlineData struct {
	StartTime           int64         `json:"t"`
	CloseTime           int64         `json:"T"`
	Symbol              string        `json:"s"`
	Interval            KlineInterval `json:"i"`
	FirstTradeID        int64         `json:"f"`
	LastTradeID         int64         `json:"L"`
	Open                float64       `json:"o,string"`
	Close               float64       `json:"c,string"`
	High                float64       `json:"h,string"`
	Low                 float64       `json:"l,string"`
	Volume              float64       `json:"v,string"`
	TradeCount          int64         `json:"n"`
	Closed              bool          `json:"x"` // true once the interval is final
	QuoteVolume         string        `json:"q"`
	TakerBuyBaseVolume  string        `json:"V"`
	TakerBuyQuoteVolume string        `json:"Q"`
	Ignore              string        `json:"B"`
}
