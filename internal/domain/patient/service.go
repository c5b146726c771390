package patient

import (
	"context"
	"strings"

	"github.com/mango/reabilita/internal/platform/apperr"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context) ([]*Patient, error) {
	patients, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperr.Internal(err, "Error reading patient data")
	}
	if len(patients) == 0 {
		return nil, apperr.NotFound("No patients found")
	}
	return patients, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Patient, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, apperr.Internal(err, "Error reading patient data")
	}
	if p == nil {
		return nil, apperr.NotFound("Patient not found")
	}
	return p, nil
}

func (s *Service) Create(ctx context.Context, p *Patient) error {
	p.Nome = strings.TrimSpace(p.Nome)
	if p.Nome == "" {
		return apperr.BadRequest("nome is required")
	}
	if p.Idade < 0 {
		return apperr.BadRequest("idade must not be negative")
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return apperr.Internal(err, "Error creating patient")
	}
	return nil
}

// Delete fails with NotFound when the patient is already gone.
func (s *Service) Delete(ctx context.Context, id string) error {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return apperr.Internal(err, "Error deleting patient")
	}
	if p == nil {
		return apperr.NotFound("Patient not found")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return apperr.Internal(err, "Error deleting patient")
	}
	return nil
}
