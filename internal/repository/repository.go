package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"medrelief/internal/config"
	"medrelief/internal/models"

	postgres "medrelief/internal/repository/db"
)

type Repository struct {
	db     *sql.DB
	cfg    *config.PostgresConfig
	logger *zap.Logger
}

func NewRepository(db *sql.DB, cfg *config.PostgresConfig, logger *zap.Logger) (*Repository, error) {
	var err error

	repo := &Repository{
		db:     db,
		cfg:    cfg,
		logger: logger,
	}

	if repo.logger == nil {
		repo.logger = zap.NewNop()
	}

	if repo.cfg == nil {
		repo.cfg, err = config.NewPostgresConfig()
		if err != nil {
			return nil, fmt.Errorf("repository.NewRepository: could not load postgres config: %w", err)
		}
	}

	if repo.db == nil {
		repo.db, err = postgres.NewPostgresDB(repo.cfg, repo.logger)
		if err != nil {
			return nil, fmt.Errorf("repository.NewRepository: could not open postgres db: %w", err)
		}
	}

	if repo.cfg.AutoMigrateUp {
		err = repo.MigrateUp()
		if err != nil {
			return nil, err
		}
	}

	return repo, nil
}

func (repo *Repository) MigrateUp() error {
	err := postgres.MigrateUp(repo.db, repo.cfg.MigrationsURL, repo.logger)
	if err != nil {
		return fmt.Errorf("repository.Repository.MigrateUp: %w", err)
	}
	return nil
}

func (repo *Repository) MigrateDown() error {
	err := postgres.MigrateDown(repo.db, repo.cfg.MigrationsURL, repo.logger)
	if err != nil {
		return fmt.Errorf("repository.Repository.MigrateDown: %w", err)
	}
	return nil
}

// Close ends the server lifetime of the repository, migrating down first when
// AutoMigrateDown is set.
func (repo *Repository) Close() error {
	var result error
	if repo.cfg.AutoMigrateDown {
		if err := repo.MigrateDown(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if err := repo.CloseDB(); err != nil {
		result = multierror.Append(result, err)
	}
	return result
}

// CloseDB releases the connection pool and leaves the schema as is.
func (repo *Repository) CloseDB() error {
	err := repo.db.Close()
	if err != nil {
		return fmt.Errorf("repository.Repository.CloseDB: %w", err)
	}
	return nil
}

//// Units of work

// Tx is the set of writes available inside a key-locked unit of work.
type Tx interface {
	GetOrCreateOrganization(ctx context.Context, org models.Organization) (models.Organization, bool, error)
	OrganizationForUpdate(ctx context.Context, id uuid.UUID) (models.Organization, error)
	LoadOrganization(ctx context.Context, id uuid.UUID) (models.Organization, error)
	AddOrganization(ctx context.Context, org models.Organization) (models.Organization, error)
	UpdateOrganization(ctx context.Context, org models.Organization) error
	DeleteOrganization(ctx context.Context, id uuid.UUID) error
	UpsertOrganizationContact(ctx context.Context, orgId uuid.UUID, contact models.OrganizationContact) (models.OrganizationContact, error)
	DeleteOrganizationContactsExcept(ctx context.Context, orgId uuid.UUID, phones []string) error
	DeleteOrganizationContact(ctx context.Context, orgId, contactId uuid.UUID) (bool, error)
	UpsertOrganizationDemand(ctx context.Context, orgId uuid.UUID, demand models.OrganizationDemand) (models.OrganizationDemand, error)
	DeleteOrganizationDemandsExcept(ctx context.Context, orgId uuid.UUID, names []string) error
	DeleteOrganizationDemand(ctx context.Context, orgId, demandId uuid.UUID) (bool, error)

	GetOrCreateTeam(ctx context.Context, team models.Team) (models.Team, bool, error)
	TeamForUpdate(ctx context.Context, id uuid.UUID) (models.Team, error)
	LoadTeam(ctx context.Context, id uuid.UUID) (models.Team, error)
	AddTeam(ctx context.Context, team models.Team) (models.Team, error)
	UpdateTeam(ctx context.Context, team models.Team) error
	DeleteTeam(ctx context.Context, id uuid.UUID) error
	UpsertTeamContact(ctx context.Context, teamId uuid.UUID, contact models.TeamContact) (models.TeamContact, error)
	DeleteTeamContactsExcept(ctx context.Context, teamId uuid.UUID, phones []string) error
	DeleteTeamContact(ctx context.Context, teamId, contactId uuid.UUID) (bool, error)
}

type sqlTx struct {
	tx *sql.Tx
}

// querier is implemented by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithLock runs fn in one transaction holding an advisory lock on key, so
// concurrent reconciliations of the same natural key are serialized. The
// transaction commits only if fn succeeds.
func (repo *Repository) WithLock(ctx context.Context, key string, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository.Repository.WithLock: failed to start transaction: %w", err)
	}

	_, err = tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", key)
	if err != nil {
		return wrapRollbackErr(tx, fmt.Errorf("repository.Repository.WithLock: failed to lock %q: %w", key, err))
	}

	err = fn(ctx, &sqlTx{tx: tx})
	if err != nil {
		return wrapRollbackErr(tx, err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("repository.Repository.WithLock: failed to commit transaction: %w", err)
	}
	return nil
}

const getOrCreateAttempts = 3

// getOrCreate runs insert, which yields sql.ErrNoRows on a natural key
// conflict, and then find to load the conflicting row. The row can be deleted
// or renamed by an id-keyed unit of work between the two statements, in which
// case the pair is run again.
func getOrCreate[T any](insert, find func() (T, error)) (T, bool, error) {
	var row T
	var err error
	for i := 0; i < getOrCreateAttempts; i++ {
		row, err = insert()
		if err == nil {
			return row, true, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return row, false, err
		}

		row, err = find()
		if !errors.Is(err, sql.ErrNoRows) {
			return row, false, err
		}
	}
	return row, false, fmt.Errorf("conflicting row vanished %d times: %w", getOrCreateAttempts, models.ErrConflict)
}

//// Users

func (repo *Repository) UserByUUID(ctx context.Context, id uuid.UUID) (models.User, bool, error) {
	var user models.User
	query := `
	SELECT
		id,
		phone,
		created_at
	FROM users
	WHERE id = $1
	LIMIT 1
	`
	row := repo.db.QueryRowContext(ctx, query, id)
	err := row.Scan(&user.Id, &user.Phone, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return user, false, nil
	} else if err != nil {
		return user, false, fmt.Errorf("repository.Repository.UserByUUID: %w", err)
	}

	return user, true, nil
}

// AddUser registers a phone, returning the existing user when it is already known.
func (repo *Repository) AddUser(ctx context.Context, phone string) (models.User, error) {
	var user models.User
	query := `
	INSERT INTO users (phone)
	VALUES ($1)
	ON CONFLICT (phone) DO UPDATE SET phone = EXCLUDED.phone
	RETURNING id, phone, created_at
	`
	err := repo.db.QueryRowContext(ctx, query, phone).Scan(&user.Id, &user.Phone, &user.CreatedAt)
	if err != nil {
		return user, fmt.Errorf("repository.Repository.AddUser: %w", err)
	}
	return user, nil
}

func (repo *Repository) GetUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	query := `
	SELECT id, phone, created_at
	FROM users
	ORDER BY phone
	LIMIT $1
	OFFSET $2
	`

	rows, err := repo.db.QueryContext(ctx, query, limitParam(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("repository.Repository.GetUsers: %w", err)
	}
	defer rows.Close()

	result := []models.User{}
	var user models.User
	for rows.Next() {
		err = rows.Scan(&user.Id, &user.Phone, &user.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("repository.Repository.GetUsers: row scan failed: %w", err)
		}
		result = append(result, user)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository.Repository.GetUsers: %w", err)
	}

	return result, nil
}

//// Service

func wrapRollbackErr(tx *sql.Tx, err error) error {
	rollerr := tx.Rollback()
	if rollerr == nil {
		return err
	}
	return multierror.Append(err, fmt.Errorf("failed to rollback transaction: %w", rollerr))
}

// wrapWriteErr turns unique violations into models.ErrConflict.
func wrapWriteErr(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%s: %w: %s", op, models.ErrConflict, pqErr.Constraint)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func limitParam(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

// whereClause numbers the "$$" placeholder of each condition starting at first.
func whereClause(conditions []string, first int) string {
	if len(conditions) == 0 {
		return ""
	}
	for i := 0; i < len(conditions); i++ {
		conditions[i] = strings.Replace(conditions[i], "$$", "$"+strconv.Itoa(i+first), -1)
	}
	return "WHERE " + strings.Join(conditions, " AND ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds an ILIKE pattern matching s as a literal substring.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func idStrings(ids []uuid.UUID) []string {
	res := make([]string, 0, len(ids))
	for _, id := range ids {
		res = append(res, id.String())
	}
	return res
}

//// Test utils

func (repo *Repository) TestGetDB() *sql.DB {
	return repo.db
}
