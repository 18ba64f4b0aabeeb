package service

import (
	"context"

	"github.com/vendhub/vendhub-backend/internal/models"
	"github.com/vendhub/vendhub-backend/internal/repository"
)

// TerminalService manages the vendista terminal registry.
type TerminalService struct {
	repo repository.Repository
}

func NewTerminalService(repo repository.Repository) *TerminalService {
	return &TerminalService{repo: repo}
}

func (s *TerminalService) List(ctx context.Context, activeOnly bool) ([]*models.Terminal, error) {
	return s.repo.ListTerminals(ctx, activeOnly)
}

func (s *TerminalService) Update(ctx context.Context, id int64, req *models.UpdateTerminalRequest) (*models.Terminal, error) {
	return s.repo.UpdateTerminal(ctx, id, req)
}
