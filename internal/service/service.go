package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"medrelief/internal/cache"
	"medrelief/internal/models"
	"medrelief/internal/repository"
)

type Repository interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context, tx repository.Tx) error) error

	GetOrganizations(ctx context.Context, q models.OrganizationQuery) ([]models.Organization, error)
	GetOrganizationByUUID(ctx context.Context, id uuid.UUID) (models.Organization, error)
	GetTeams(ctx context.Context, q models.TeamQuery) ([]models.Team, error)
	GetTeamByUUID(ctx context.Context, id uuid.UUID) (models.Team, error)

	UserByUUID(ctx context.Context, id uuid.UUID) (models.User, bool, error)
	AddUser(ctx context.Context, phone string) (models.User, error)
	GetUsers(ctx context.Context, limit, offset int) ([]models.User, error)
}

type Service struct {
	repo   Repository
	cache  cache.Invalidator
	home   models.Region
	logger *zap.Logger
}

func NewService(repo Repository, invalidator cache.Invalidator, home models.Region, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:   repo,
		cache:  invalidator,
		home:   home,
		logger: logger,
	}
}

//// Users

// Caller resolves an authenticated caller id.
func (s *Service) Caller(ctx context.Context, id uuid.UUID) (models.User, error) {
	user, ok, err := s.repo.UserByUUID(ctx, id)
	if err != nil {
		return user, fmt.Errorf("service.Service.Caller: %w", err)
	}
	if !ok {
		return user, fmt.Errorf("service.Service.Caller: %w: %s", models.ErrUnauthorized, id)
	}
	return user, nil
}

func (s *Service) AddUser(ctx context.Context, phone string) (models.User, error) {
	user, err := s.repo.AddUser(ctx, phone)
	if err != nil {
		return user, fmt.Errorf("service.Service.AddUser: %w", err)
	}
	return user, nil
}

func (s *Service) GetUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	users, err := s.repo.GetUsers(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("service.Service.GetUsers: %w", err)
	}
	return users, nil
}

//// Service

func (s *Service) invalidate(prefix string) {
	s.cache.Invalidate(prefix)
	s.logger.Debug("cache invalidated", zap.String("prefix", prefix))
}

func owner(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: true}
}

func idLockKey(family string, id uuid.UUID) string {
	return family + "#" + id.String()
}
