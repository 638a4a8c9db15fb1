package postgres

import (
	"context"
	"sync/atomic"
	"time"

	"pricefeed/internal/binance/stream"

	"go.uber.org/zap"
)

// PriceSink persists published records on a background worker so a slow
// database never blocks the feed's read loop.
type PriceSink struct {
	client  *PostgresClient
	logger  *zap.Logger
	ch      chan stream.PriceRecord
	timeout time.Duration

	dropped atomic.Int64
	failed  atomic.Int64
}

func NewPriceSink(client *PostgresClient, logger *zap.Logger, buffer int) *PriceSink {
	if buffer <= 0 {
		buffer = 1024
	}
	return &PriceSink{
		client:  client,
		logger:  logger,
		ch:      make(chan stream.PriceRecord, buffer),
		timeout: 2 * time.Second,
	}
}

// Offer queues rec without blocking. A full queue drops rec and reports false.
func (s *PriceSink) Offer(rec stream.PriceRecord) bool {
	select {
	case s.ch <- rec:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Dropped is the number of records discarded because the queue was full.
func (s *PriceSink) Dropped() int64 { return s.dropped.Load() }

// Failed is the number of upserts that returned an error.
func (s *PriceSink) Failed() int64 { return s.failed.Load() }

// StartWorker drains the queue until ctx is done.
func (s *PriceSink) StartWorker(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case rec := <-s.ch:
				dbCtx, cancel := context.WithTimeout(ctx, s.timeout)
				err := s.client.UpsertLatestPrice(dbCtx, rec)
				cancel()
				if err != nil {
					s.failed.Add(1)
					s.logger.Warn("failed to upsert latest price",
						zap.String("symbol", rec.Symbol), zap.String("source", rec.Source), zap.Error(err))
				}
			}
		}
	}()
}
