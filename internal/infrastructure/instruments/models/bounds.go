package models

import (
	"time"

	domain "orderbookcollection/internal/domain/entity/instruments"
)

type BoundsModel struct {
	InstrumentID int64     `gorm:"primaryKey;column:instrument_id;autoIncrement:false"`
	MinPrice     float64   `gorm:"column:min_price;type:double precision;not null"`
	MaxPrice     float64   `gorm:"column:max_price;type:double precision;not null"`
	TickSize     float64   `gorm:"column:tick_size;type:double precision;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;type:timestamp;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time `gorm:"column:updated_at;type:timestamp;default:CURRENT_TIMESTAMP"`
}

func (BoundsModel) TableName() string {
	return "instrument_bounds"
}

// Postgres has no unsigned integers; ids keep their bit pattern.
func NewBoundsModel(cfg domain.Config) BoundsModel {
	return BoundsModel{
		InstrumentID: int64(cfg.ID),
		MinPrice:     cfg.MinPrice,
		MaxPrice:     cfg.MaxPrice,
		TickSize:     cfg.TickSize,
	}
}

func (m BoundsModel) ToDomain() domain.Config {
	return domain.Config{
		ID:       uint64(m.InstrumentID),
		MinPrice: m.MinPrice,
		MaxPrice: m.MaxPrice,
		TickSize: m.TickSize,
	}
}
