package interfaces

import (
	"context"

	domain "orderbookcollection/internal/domain/entity/instruments"
)

type BoundsRepository interface {
	SaveBounds(ctx context.Context, configs []domain.Config) error
	GetBounds(ctx context.Context, id uint64) (*domain.Config, error)
	ListBounds(ctx context.Context) ([]domain.Config, error)
	DeleteBounds(ctx context.Context, id uint64) error
	Close()
}
