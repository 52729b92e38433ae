package users

import "context"

// RepositoryPort defines data access methods for user projections.
type RepositoryPort interface {
	ByIDs(ctx context.Context, ids []int64) ([]User, error)
	ByEmail(ctx context.Context, email string) (User, error)
}

// Service exposes user projections.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ByIDs resolves display projections for the given user ids.
func (s *Service) ByIDs(ctx context.Context, ids []int64) ([]User, error) {
	return s.repo.ByIDs(ctx, ids)
}

// ByEmail resolves a user by email.
func (s *Service) ByEmail(ctx context.Context, email string) (User, error) {
	return s.repo.ByEmail(ctx, email)
}
