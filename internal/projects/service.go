package projects

import (
	"context"
	"log/slog"
)

// RepositoryPort defines data access methods for projects.
type RepositoryPort interface {
	Create(ctx context.Context, p Project) error
	Get(ctx context.Context, id string) (Project, error)
	List(ctx context.Context) ([]Project, error)
	Delete(ctx context.Context, id string) error
}

// AccessManager provisions and tears down the default project roles.
type AccessManager interface {
	CreateDefaultProjectRoles(ctx context.Context, ownerID int64, projectID string) error
	RemoveDefaultProjectRoles(ctx context.Context, projectID string) error
}

// Service handles project lifecycle.
type Service struct {
	repo   RepositoryPort
	access AccessManager
	logger *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, access AccessManager, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, access: access, logger: logger}
}

// Create stores the project and provisions its default roles, making
// the creator the project admin.
func (s *Service) Create(ctx context.Context, req NewProject, ownerID int64) (Project, error) {
	project := Project{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		CreatedBy:   ownerID,
	}
	if err := s.repo.Create(ctx, project); err != nil {
		return Project{}, err
	}
	if err := s.access.CreateDefaultProjectRoles(ctx, ownerID, project.ID); err != nil {
		// Roll the project back rather than leave it ownerless.
		if delErr := s.repo.Delete(ctx, project.ID); delErr != nil {
			s.logger.Error("remove project after role provisioning failure",
				slog.String("project_id", project.ID), slog.Any("error", delErr))
		}
		return Project{}, err
	}
	return project, nil
}

// Get fetches a project.
func (s *Service) Get(ctx context.Context, id string) (Project, error) {
	return s.repo.Get(ctx, id)
}

// List returns all projects.
func (s *Service) List(ctx context.Context) ([]Project, error) {
	return s.repo.List(ctx)
}

// Delete removes the project and cascades its roles, grants and
// assignments. Roles go first: a slug re-created while stale roles
// linger would inherit the old members' privileges, whereas a project
// row that briefly outlives its roles grants nothing.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	if err := s.access.RemoveDefaultProjectRoles(ctx, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}
