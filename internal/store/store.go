package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/joescharf/nest/internal/models"
)

var (
	// ErrNotFound is wrapped when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateKey is wrapped when a unique key is already taken.
	ErrDuplicateKey = errors.New("duplicate key")
)

// ProjectListFilter specifies filters for listing projects.
type ProjectListFilter struct {
	Level        models.ProjectLevel
	Type         models.ProjectType
	Tag          string
	RepositoryID string
}

// Store defines the persistence interface for nest.
type Store interface {
	// Projects
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, id string) (*models.Project, error)
	GetProjectByKey(ctx context.Context, key string) (*models.Project, error)
	ListProjects(ctx context.Context, filter ProjectListFilter) ([]*models.Project, error)
	UpdateProject(ctx context.Context, p *models.Project) error
	DeleteProject(ctx context.Context, id string) error

	// Repositories
	CreateRepository(ctx context.Context, r *models.Repository) error
	GetRepository(ctx context.Context, id string) (*models.Repository, error)
	GetRepositoryByKey(ctx context.Context, key string) (*models.Repository, error)
	ListRepositories(ctx context.Context) ([]*models.Repository, error)
	UpdateRepository(ctx context.Context, r *models.Repository) error
	DeleteRepository(ctx context.Context, id string) error

	Migrate(ctx context.Context) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Driver string // "sqlite" or "postgres"
	Path   string // SQLite database file
	URL    string // PostgreSQL connection string
}

// Open returns the backend named by cfg.Driver, migrated and ready to use.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "", "sqlite":
		s, err = NewSQLiteStore(cfg.Path)
	case "postgres":
		s, err = NewPostgresStore(ctx, cfg.URL)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

func projectNotFound(ref string) error {
	return fmt.Errorf("project %s: %w", ref, ErrNotFound)
}

func repositoryNotFound(ref string) error {
	return fmt.Errorf("repository %s: %w", ref, ErrNotFound)
}
