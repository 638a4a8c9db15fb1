package snapshot

import (
	"context"

	"pricefeed/config"
	"pricefeed/pkg/binance"

	"go.uber.org/zap"
)

type SymbolLoader struct {
	Cfg        config.Config
	RestClient *binance.RESTClient
	Logger     *zap.Logger
}

// LoadSymbols fetches spot symbols in TRADING status quoted in the configured
// quote asset and streams them into ch. ch is always closed on return.
func (l *SymbolLoader) LoadSymbols(ch chan<- string) error {
	defer close(ch)

	ctx, cancel := context.WithTimeout(context.Background(), l.Cfg.Binance.REST.Timeout)
	defer cancel()

	symbols, err := l.RestClient.TradingSymbols(ctx, l.Cfg.Feed.QuoteAsset)
	if err != nil {
		l.Logger.Error("failed to load trading symbols",
			zap.String("quoteAsset", l.Cfg.Feed.QuoteAsset), zap.Error(err))
		return err
	}
	l.Logger.Info("loaded symbols", zap.Int("count", len(symbols)))

	for _, symbol := range symbols {
		select {
		case ch <- symbol:
		case <-ctx.Done():
			l.Logger.Warn("symbol streaming interrupted", zap.Error(ctx.Err()))
			return ctx.Err()
		}
	}

	return nil
}
