package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joescharf/nest/internal/models"
)

// PostgresStore implements Store on PostgreSQL through a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database at url and verifies the connection.
func NewPostgresStore(ctx context.Context, url string) (*PostgresStore, error) {
	if url == "" {
		return nil, fmt.Errorf("postgres: connection url is required")
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Migrate runs all embedded PostgreSQL migration files in order.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := sortedMigrations("postgres")
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = $1", name).Scan(&count); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/postgres/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(data)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, "INSERT INTO schema_migrations (filename) VALUES ($1)", name)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- Projects ---

func scanPgProject(row pgx.Row) (*models.Project, error) {
	p := &models.Project{}
	var level, projectType string
	var tags []byte
	if err := row.Scan(&p.ID, &p.Name, &p.Key, &p.Description, &level, &projectType, &tags, &p.RepositoryID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Level = models.ProjectLevel(level)
	p.Type = models.ProjectType(projectType)
	var err error
	if p.Tags, err = decodeTags(tags); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PostgresStore) CreateProject(ctx context.Context, p *models.Project) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = newULID()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	tags, err := encodeTags(p.Tags)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO projects (`+projectColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10)`,
		p.ID, p.Name, p.Key, p.Description, string(p.Level), string(p.Type), tags, p.RepositoryID, p.CreatedAt, p.UpdatedAt,
	)
	if isPgUniqueViolation(err) {
		return fmt.Errorf("create project %s: %w", p.Key, ErrDuplicateKey)
	}
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	p, err := scanPgProject(s.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, projectNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) GetProjectByKey(ctx context.Context, key string) (*models.Project, error) {
	p, err := scanPgProject(s.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE key = $1`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, projectNotFound(key)
	}
	if err != nil {
		return nil, fmt.Errorf("get project by key: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListProjects(ctx context.Context, filter ProjectListFilter) ([]*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects`
	var conditions []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Level != "" {
		conditions = append(conditions, "level = "+arg(string(filter.Level)))
	}
	if filter.Type != "" {
		conditions = append(conditions, "type = "+arg(string(filter.Type)))
	}
	if filter.Tag != "" {
		conditions = append(conditions, "tags @> jsonb_build_array("+arg(filter.Tag)+"::text)")
	}
	if filter.RepositoryID != "" {
		conditions = append(conditions, "repository_id = "+arg(filter.RepositoryID))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY name, key"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		p, err := scanPgProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (s *PostgresStore) UpdateProject(ctx context.Context, p *models.Project) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.UpdatedAt = time.Now().UTC()

	tags, err := encodeTags(p.Tags)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE projects SET name=$1, key=$2, description=$3, level=$4, type=$5, tags=$6::jsonb, repository_id=$7, updated_at=$8
		WHERE id=$9`,
		p.Name, p.Key, p.Description, string(p.Level), string(p.Type), tags, p.RepositoryID, p.UpdatedAt, p.ID,
	)
	if isPgUniqueViolation(err) {
		return fmt.Errorf("update project %s: %w", p.Key, ErrDuplicateKey)
	}
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return projectNotFound(p.ID)
	}
	return nil
}

func (s *PostgresStore) DeleteProject(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM projects WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return projectNotFound(id)
	}
	return nil
}

// --- Repositories ---

func scanPgRepository(row pgx.Row) (*models.Repository, error) {
	r := &models.Repository{}
	if err := row.Scan(&r.ID, &r.Key, &r.Owner, &r.Name, &r.Description, &r.URL, &r.Language, &r.Stars, &r.IsArchived, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PostgresStore) CreateRepository(ctx context.Context, r *models.Repository) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = newULID()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO repositories (`+repositoryColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.Key, r.Owner, r.Name, r.Description, r.URL, r.Language, r.Stars, r.IsArchived, r.CreatedAt, r.UpdatedAt,
	)
	if isPgUniqueViolation(err) {
		return fmt.Errorf("create repository %s: %w", r.Key, ErrDuplicateKey)
	}
	if err != nil {
		return fmt.Errorf("create repository: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRepository(ctx context.Context, id string) (*models.Repository, error) {
	r, err := scanPgRepository(s.pool.QueryRow(ctx, `SELECT `+repositoryColumns+` FROM repositories WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repositoryNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get repository: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) GetRepositoryByKey(ctx context.Context, key string) (*models.Repository, error) {
	r, err := scanPgRepository(s.pool.QueryRow(ctx,
		`SELECT `+repositoryColumns+` FROM repositories WHERE key = $1`, strings.ToLower(key)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repositoryNotFound(key)
	}
	if err != nil {
		return nil, fmt.Errorf("get repository by key: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListRepositories(ctx context.Context) ([]*models.Repository, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+repositoryColumns+` FROM repositories ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer rows.Close()

	var repos []*models.Repository
	for rows.Next() {
		r, err := scanPgRepository(rows)
		if err != nil {
			return nil, fmt.Errorf("scan repository: %w", err)
		}
		repos = append(repos, r)
	}
	return repos, rows.Err()
}

func (s *PostgresStore) UpdateRepository(ctx context.Context, r *models.Repository) error {
	if err := r.Validate(); err != nil {
		return err
	}
	r.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE repositories SET key=$1, owner=$2, name=$3, description=$4, url=$5, language=$6, stars=$7, is_archived=$8, updated_at=$9
		WHERE id=$10`,
		r.Key, r.Owner, r.Name, r.Description, r.URL, r.Language, r.Stars, r.IsArchived, r.UpdatedAt, r.ID,
	)
	if isPgUniqueViolation(err) {
		return fmt.Errorf("update repository %s: %w", r.Key, ErrDuplicateKey)
	}
	if err != nil {
		return fmt.Errorf("update repository: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repositoryNotFound(r.ID)
	}
	return nil
}

func (s *PostgresStore) DeleteRepository(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM repositories WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete repository: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repositoryNotFound(id)
	}
	return nil
}
