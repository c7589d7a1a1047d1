package instruments

import (
	"context"
	"errors"
	"fmt"

	domain "orderbookcollection/internal/domain/entity/instruments"
	"orderbookcollection/internal/infrastructure/instruments/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrBoundsNotFound = errors.New("instrument bounds not found")

// Repository keeps instrument price bounds in the instrument_bounds table.
type Repository struct {
	db *gorm.DB
}

func NewRepository(ctx context.Context, dsn string) (*Repository, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open gorm postgres: %w", err)
	}
	return NewRepositoryWithDB(ctx, db)
}

// NewRepositoryWithDB migrates the bounds table on db and wraps it.
func NewRepositoryWithDB(ctx context.Context, db *gorm.DB) (*Repository, error) {
	if err := db.WithContext(ctx).AutoMigrate(&models.BoundsModel{}); err != nil {
		return nil, fmt.Errorf("migrate instrument_bounds: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() {
	if r == nil || r.db == nil {
		return
	}
	if sqlDB, err := r.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// SaveBounds inserts the configs, replacing the grid of ids already stored.
func (r *Repository) SaveBounds(ctx context.Context, configs []domain.Config) error {
	if len(configs) == 0 {
		return nil
	}
	rows := make([]models.BoundsModel, 0, len(configs))
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return err
		}
		rows = append(rows, models.NewBoundsModel(cfg))
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "instrument_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"min_price", "max_price", "tick_size", "updated_at"}),
	}).Create(&rows).Error
}

func (r *Repository) GetBounds(ctx context.Context, id uint64) (*domain.Config, error) {
	var row models.BoundsModel
	err := r.db.WithContext(ctx).Where("instrument_id = ?", int64(id)).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBoundsNotFound
		}
		return nil, err
	}
	cfg := row.ToDomain()
	return &cfg, nil
}

func (r *Repository) ListBounds(ctx context.Context) ([]domain.Config, error) {
	var rows []models.BoundsModel
	if err := r.db.WithContext(ctx).Order("instrument_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	configs := make([]domain.Config, 0, len(rows))
	for _, row := range rows {
		configs = append(configs, row.ToDomain())
	}
	return configs, nil
}

func (r *Repository) DeleteBounds(ctx context.Context, id uint64) error {
	res := r.db.WithContext(ctx).Where("instrument_id = ?", int64(id)).Delete(&models.BoundsModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrBoundsNotFound
	}
	return nil
}
