package postgres

import "time"

// LatestPrice is the most recent merged price per symbol. One row per symbol;
// each upsert only touches the columns the incoming record is authoritative for.
type LatestPrice struct {
	Symbol string `gorm:"column:symbol;type:text;primaryKey"`

	Price         float64 `gorm:"column:price;type:numeric;not null;default:0"`
	Change        float64 `gorm:"column:change;type:numeric;not null;default:0"`
	ChangePercent float64 `gorm:"column:change_percent;type:numeric;not null;default:0"`
	Open24h       float64 `gorm:"column:open_24h;type:numeric;not null;default:0"`
	High24h       float64 `gorm:"column:high_24h;type:numeric;not null;default:0"`
	Low24h        float64 `gorm:"column:low_24h;type:numeric;not null;default:0"`
	Volume24h     float64 `gorm:"column:volume_24h;type:numeric;not null;default:0"`
	Quantity      float64 `gorm:"column:quantity;type:numeric;not null;default:0"`

	Source    string    `gorm:"column:source;type:varchar(32);not null"`
	EventTime time.Time `gorm:"column:event_time;not null;index:idx_latest_price_event_time"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides the default table name for GORM.
func (LatestPrice) TableName() string {
	return "latest_price"
}

// IntervalChange is the latest closed-kline return per symbol and interval.
type IntervalChange struct {
	Symbol        string    `gorm:"column:symbol;type:text;primaryKey"`
	Interval      string    `gorm:"column:kline_interval;type:varchar(10);primaryKey"`
	ChangePercent float64   `gorm:"column:change_percent;type:numeric;not null;default:0"`
	EventTime     time.Time `gorm:"column:event_time;not null"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (IntervalChange) TableName() string {
	return "latest_interval_change"
}
