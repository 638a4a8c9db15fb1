package collector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pricefeed/config"
	"pricefeed/internal/binance/feed"
	"pricefeed/internal/binance/pricestore"
	"pricefeed/internal/binance/snapshot"
	"pricefeed/internal/binance/stream"
	"pricefeed/internal/binance/symbolmeta"
	"pricefeed/pkg/binance"
	"pricefeed/pkg/storage/postgres"

	"go.uber.org/zap"
)

// Collector is the running price pipeline: one stream connection feeding the
// in-memory store and, when enabled, the Postgres sink.
type Collector struct {
	Manager *feed.Manager
	Prices  *pricestore.PriceStore
	Symbols *pricestore.SymbolStore

	sink   *postgres.PriceSink
	db     *postgres.PostgresClient
	logger *zap.Logger
}

// StartCollector wires config into a feed manager, subscribes the configured
// symbols and starts the background workers. Workers stop with ctx; call Stop
// to close the connection.
func StartCollector(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Collector, error) {
	feedCfg, err := FeedConfig(cfg)
	if err != nil {
		return nil, err
	}
	kinds, err := ParseStreams(cfg.Feed.Streams)
	if err != nil {
		return nil, err
	}

	c := &Collector{
		Prices:  pricestore.NewPriceStore(),
		Symbols: pricestore.NewSymbolStore(),
		logger:  logger,
	}

	if cfg.Postgres.Enabled {
		c.db, err = postgres.InitializeAndMigrate(cfg.Postgres, cfg.Log.Environment, true)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to DB: %w", err)
		}
		c.sink = postgres.NewPriceSink(c.db, logger.Named("sink"), 0)
		c.sink.StartWorker(ctx)
	}

	wsClient := binance.NewWSClient(binance.WSOptions{
		URL:              cfg.Binance.WS.URL,
		HandshakeTimeout: cfg.Binance.WS.HandshakeTimeout,
		WriteTimeout:     cfg.Binance.WS.WriteTimeout,
		PingTimeout:      cfg.Binance.WS.PingTimeout,
	}, logger.Named("ws"))

	c.Manager = feed.NewManager(feedCfg, dialer(wsClient), logger.Named("feed"))
	c.Manager.SetHandlers(feed.Handlers{
		OnStatusChange: func(status feed.Status, err error) {
			if err != nil {
				logger.Warn("feed status changed", zap.String("status", string(status)), zap.Error(err))
				return
			}
			logger.Info("feed status changed", zap.String("status", string(status)))
		},
		OnError: func(err error) {
			logger.Debug("feed error", zap.Error(err))
		},
	})
	c.Manager.AddListener(c.Prices.Apply)
	if c.sink != nil {
		c.Manager.AddListener(func(rec stream.PriceRecord) { c.sink.Offer(rec) })
	}

	for _, symbol := range cfg.Feed.Symbols {
		c.subscribe(symbol, kinds)
	}

	// a failed first dial already armed the reconnect schedule
	if err := c.Manager.Connect(ctx); err != nil {
		logger.Warn("initial connect failed, retrying in background", zap.Error(err))
	}

	if cfg.Feed.AutoDiscover {
		loader := &snapshot.SymbolLoader{
			Cfg:        *cfg,
			RestClient: binance.NewRESTClient(cfg.Binance.REST.BaseURL, cfg.Binance.REST.Timeout),
			Logger:     logger.Named("snapshot"),
		}
		midnight := &symbolmeta.MidnightLoader{Load: symbolmeta.DefaultLoadFn(loader)}
		midnight.Start(ctx, func(ch <-chan string) {
			<-c.Symbols.StartWorker(ch, func(symbol string) {
				c.subscribeNew(symbol, kinds)
			})
			logger.Info("symbol discovery finished", zap.Int("symbols", len(c.Symbols.GetAll())))
		})
	}

	if cfg.Feed.HealthLogInterval > 0 {
		go c.logHealth(ctx, cfg.Feed.HealthLogInterval)
	}

	return c, nil
}

// Stop closes the stream connection and the database.
func (c *Collector) Stop() {
	c.Manager.Disconnect()
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Warn("failed to close DB", zap.Error(err))
		}
	}
}

func (c *Collector) subscribe(symbol string, kinds []binance.StreamKind) {
	c.Symbols.Add(strings.ToUpper(strings.TrimSpace(symbol)))
	c.subscribeNew(symbol, kinds)
}

func (c *Collector) subscribeNew(symbol string, kinds []binance.StreamKind) {
	for _, kind := range kinds {
		if !c.Manager.Subscribe(symbol, kind) {
			c.logger.Warn("invalid subscription skipped",
				zap.String("symbol", symbol), zap.Stringer("stream", kind))
		}
	}
}

func (c *Collector) logHealth(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		report := c.Manager.HealthReport()
		fields := []zap.Field{
			zap.String("health", string(report.Status)),
			zap.String("summary", report.Summary),
			zap.Int("symbols", c.Prices.CountAll()),
			zap.Int("subscriptions", len(c.Manager.Subscriptions())),
		}
		if c.sink != nil {
			fields = append(fields, zap.Int64("sinkDropped", c.sink.Dropped()), zap.Int64("sinkFailed", c.sink.Failed()))
		}
		if report.Status == feed.HealthCritical {
			c.logger.Warn("feed health", fields...)
		} else {
			c.logger.Info("feed health", fields...)
		}
	}
}

// dialer adapts the websocket client to feed.Dialer, keeping a failed dial
// from surfacing as a non-nil interface holding a nil *WSConn.
func dialer(ws *binance.WSClient) feed.Dialer {
	return feed.DialFunc(func(ctx context.Context) (feed.Conn, error) {
		conn, err := ws.Dial(ctx)
		if err != nil {
			return nil, err
		}
		return conn, nil
	})
}

// ParseStreams converts configured stream names ("ticker", "kline_15m") into
// stream kinds.
func ParseStreams(names []string) ([]binance.StreamKind, error) {
	if len(names) == 0 {
		return []binance.StreamKind{binance.Ticker24h()}, nil
	}
	kinds := make([]binance.StreamKind, 0, len(names))
	for _, name := range names {
		kind, err := binance.ParseStreamKind(name)
		if err != nil {
			return nil, fmt.Errorf("feed.streams: %w", err)
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// FeedConfig maps the application config onto manager tunables. Zero values
// keep the manager defaults.
func FeedConfig(cfg *config.Config) (feed.Config, error) {
	out := feed.DefaultConfig()
	f := cfg.Feed

	mode, err := feed.ParseUnsubscribeMode(f.UnsubscribeMode)
	if err != nil {
		return out, fmt.Errorf("feed.unsubscribe_mode: %w", err)
	}
	out.UnsubscribeMode = mode

	setDuration(&out.Debounce, f.Debounce)
	setDuration(&out.MinSendSpacing, f.MinSendSpacing)
	setDuration(&out.SendJitter, f.SendJitter)
	setDuration(&out.StabilizeDelay, f.StabilizeDelay)
	setDuration(&out.LivenessInterval, f.LivenessInterval)
	setDuration(&out.Backoff.Base, f.ReconnectBase)
	setDuration(&out.Backoff.Max, f.ReconnectMax)
	setDuration(&out.Backoff.Jitter, f.ReconnectJitter)
	setDuration(&out.HandshakeTimeout, cfg.Binance.WS.HandshakeTimeout)
	setDuration(&out.ForceReconnectSpacing, f.ForceReconnectSpacing)
	setDuration(&out.ForceReconnectDelay, f.ForceReconnectDelay)
	setDuration(&out.ErrorWindow, f.ErrorWindow)
	setInt(&out.MaxReconnectAttempts, f.MaxReconnectAttempts)
	setInt(&out.ErrorThreshold, f.ErrorThreshold)
	setInt(&out.LatencySamples, f.LatencySamples)
	setInt(&out.MaxFrameBytes, cfg.Binance.WS.MaxFrameBytes)

	return out, nil
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}
