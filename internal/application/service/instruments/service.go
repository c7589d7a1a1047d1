package instruments

import (
	"context"
	"errors"
	"fmt"

	domain "orderbookcollection/internal/domain/entity/instruments"
	interfaces "orderbookcollection/internal/domain/interfaces"
)

var ErrDuplicateInstrument = errors.New("duplicate instrument id")

// Service manages the price bounds array books are built from.
type Service struct {
	repo interfaces.BoundsRepository
}

func NewService(repo interfaces.BoundsRepository) *Service {
	return &Service{repo: repo}
}

// Sync validates configs and stores them, replacing any stored grid with
// the same id.
func (s *Service) Sync(ctx context.Context, configs []domain.Config) error {
	seen := make(map[uint64]struct{}, len(configs))
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return err
		}
		if _, ok := seen[cfg.ID]; ok {
			return fmt.Errorf("%w: %d", ErrDuplicateInstrument, cfg.ID)
		}
		seen[cfg.ID] = struct{}{}
	}
	return s.repo.SaveBounds(ctx, configs)
}

// LoadBounds returns every stored config keyed by instrument id.
func (s *Service) LoadBounds(ctx context.Context) (map[uint64]domain.Config, error) {
	configs, err := s.repo.ListBounds(ctx)
	if err != nil {
		return nil, err
	}
	bounds := make(map[uint64]domain.Config, len(configs))
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		bounds[cfg.ID] = cfg
	}
	return bounds, nil
}

func (s *Service) GetBounds(ctx context.Context, id uint64) (*domain.Config, error) {
	return s.repo.GetBounds(ctx, id)
}

func (s *Service) DeleteBounds(ctx context.Context, id uint64) error {
	return s.repo.DeleteBounds(ctx, id)
}

func (s *Service) Close() {
	s.repo.Close()
}
