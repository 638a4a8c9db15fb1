package postgres

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"pricefeed/internal/binance/stream"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var fieldColumns = []struct {
	field   stream.Field
	columns []string
}{
	{stream.FieldPrice, []string{"price"}},
	{stream.FieldChange, []string{"change"}},
	{stream.FieldChangePercent, []string{"change_percent"}},
	{stream.FieldOpen24h, []string{"open_24h"}},
	{stream.FieldHigh24h, []string{"high_24h"}},
	{stream.FieldLow24h, []string{"low_24h"}},
	{stream.FieldVolume24h, []string{"volume_24h"}},
	{stream.FieldQuantity, []string{"quantity"}},
}

// columnsFor lists the columns an upsert may overwrite for a record flagged
// with fields.
func columnsFor(fields stream.Field) []string {
	var cols []string
	for _, fc := range fieldColumns {
		if fields&fc.field != 0 {
			cols = append(cols, fc.columns...)
		}
	}
	return append(cols, "source", "event_time", "updated_at")
}

// LatestPriceFromRecord converts a normalized record into a row.
func LatestPriceFromRecord(rec stream.PriceRecord) *LatestPrice {
	return &LatestPrice{
		Symbol:                rec.Symbol,
		Price:                 rec.Price,
		Change:                rec.Change,
		ChangePercent:         rec.ChangePercent,
		Open24h:               rec.Open24h,
		High24h:               rec.High24h,
		Low24h:                rec.Low24h,
		Volume24h:             rec.Volume24h,
		Quantity:              rec.Quantity,
		Source:                rec.Source,
		EventTime:             rec.EventTime,
	}
}

// IntervalChangesFromRecord returns one row per interval return carried by
// rec, ordered by interval.
func IntervalChangesFromRecord(rec stream.PriceRecord) []IntervalChange {
	if !rec.Has(stream.FieldIntervalChange) {
		return nil
	}
	changes := make(map[string]float64, len(rec.IntervalChanges)+1)
	for interval, pct := range rec.IntervalChanges {
		changes[interval] = pct
	}
	if rec.Interval != "" {
		changes[rec.Interval] = rec.IntervalChangePercent
	}

	rows := make([]IntervalChange, 0, len(changes))
	for interval, pct := range changes {
		rows = append(rows, IntervalChange{
			Symbol:        rec.Symbol,
			Interval:      interval,
			ChangePercent: pct,
			EventTime:     rec.EventTime,
		})
	}
	slices.SortFunc(rows, func(a, b IntervalChange) int {
		return strings.Compare(a.Interval, b.Interval)
	})
	return rows
}

// UpsertLatestPrice writes rec in one transaction. The latest_price row only
// has the columns rec is authoritative for overwritten; kline returns go to
// latest_interval_change, one row per interval.
func (p *PostgresClient) UpsertLatestPrice(ctx context.Context, rec stream.PriceRecord) error {
	if rec.Symbol == "" {
		return fmt.Errorf("upsert latest price: empty symbol")
	}
	now := time.Now()
	intervals := IntervalChangesFromRecord(rec)
	for i := range intervals {
		intervals[i].UpdatedAt = now
	}

	return p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if rec.Fields&^stream.FieldIntervalChange != 0 {
			row := LatestPriceFromRecord(rec)
			row.UpdatedAt = now
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "symbol"}},
				DoUpdates: clause.AssignmentColumns(columnsFor(rec.Fields)),
			}).Create(row).Error
			if err != nil {
				return err
			}
		}
		if len(intervals) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "kline_interval"}},
			DoUpdates: clause.AssignmentColumns([]string{"change_percent", "event_time", "updated_at"}),
		}).Create(&intervals).Error
	})
}

func (p *PostgresClient) GetLatestPrice(ctx context.Context, symbol string) (*LatestPrice, error) {
	var row LatestPrice
	err := p.DB.WithContext(ctx).
		Where("symbol = ?", symbol).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// GetIntervalChanges returns every stored interval return for symbol,
// ordered by interval.
func (p *PostgresClient) GetIntervalChanges(ctx context.Context, symbol string) ([]IntervalChange, error) {
	var rows []IntervalChange
	err := p.DB.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("kline_interval").
		Find(&rows).Error
	return rows, err
}

// DeleteStalePrices removes rows whose last event is older than before,
// e.g. delisted symbols. Interval returns are pruned by the same cutoff.
func (p *PostgresClient) DeleteStalePrices(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	err := p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&LatestPrice{}, &IntervalChange{}} {
			res := tx.Where("event_time < ?", before).Delete(model)
			if res.Error != nil {
				return res.Error
			}
			total += res.RowsAffected
		}
		return nil
	})
	return total, err
}
