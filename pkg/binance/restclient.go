package binance

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
)

// RESTClient covers the public REST calls the feed needs: symbol discovery.
type RESTClient struct {
	api *gobinance.Client
}

func NewRESTClient(baseURL string, timeout time.Duration) *RESTClient {
	api := gobinance.NewClient("", "")
	if baseURL != "" {
		api.BaseURL = strings.TrimRight(baseURL, "/")
	}
	api.HTTPClient = &http.Client{Timeout: timeout}
	return &RESTClient{api: api}
}

// TradingSymbols returns every spot symbol in TRADING status quoted in
// quoteAsset (e.g. "USDT"). An empty quoteAsset returns all trading symbols.
func (c *RESTClient) TradingSymbols(ctx context.Context, quoteAsset string) ([]string, error) {
	info, err := c.api.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("exchange info: %w", err)
	}

	quote := strings.ToUpper(quoteAsset)
	seen := map[string]bool{}
	var symbols []string
	for _, s := range info.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		if quote != "" && s.QuoteAsset != quote {
			continue
		}
		if seen[s.Symbol] {
			continue
		}
		seen[s.Symbol] = true
		symbols = append(symbols, s.Symbol)
	}

	return symbols, nil
}
