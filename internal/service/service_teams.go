package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"medrelief/internal/cache"
	"medrelief/internal/models"
	"medrelief/internal/reconcile"
	"medrelief/internal/repository"
)

func (s *Service) GetTeams(ctx context.Context, caller uuid.NullUUID, q models.TeamQuery) ([]models.Team, error) {
	if q.Mine {
		if !caller.Valid {
			return nil, fmt.Errorf("service.Service.GetTeams: %w", models.ErrUnauthorized)
		}
		q.Owner = caller
	}

	teams, err := s.repo.GetTeams(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("service.Service.GetTeams: %w", err)
	}
	return teams, nil
}

func (s *Service) GetTeam(ctx context.Context, id uuid.UUID) (models.Team, error) {
	team, err := s.repo.GetTeamByUUID(ctx, id)
	if err != nil {
		return team, fmt.Errorf("service.Service.GetTeam: %w", err)
	}
	return team, nil
}

// SubmitTeam reconciles a team submission against the team of the same name.
func (s *Service) SubmitTeam(ctx context.Context, submitter uuid.UUID, sub models.Team) (models.Team, error) {
	sub.Inspector = owner(submitter)
	sub.Verified = false

	var result models.Team
	var outcome reconcile.Outcome

	err := s.repo.WithLock(ctx, sub.NaturalKey(), func(ctx context.Context, tx repository.Tx) error {
		instance, created, err := tx.GetOrCreateTeam(ctx, sub)
		if err != nil {
			return err
		}

		outcome = reconcile.DecideTeam(created, reconcile.Existing{
			Verified:  instance.Verified,
			Inspector: instance.Inspector,
		}, submitter)

		switch outcome {
		case reconcile.ReplaceWithNew:
			err = tx.DeleteTeam(ctx, instance.Id)
			if err != nil {
				return err
			}
			instance, err = tx.AddTeam(ctx, sub)
			if err != nil {
				return err
			}
		case reconcile.MergeInPlace:
			instance = mergeTeam(instance, sub)
			err = tx.UpdateTeam(ctx, instance)
			if err != nil {
				return err
			}
		}

		if outcome.Writes() {
			err = syncTeamContacts(ctx, tx, instance.Id, sub.Contacts, false)
			if err != nil {
				return err
			}
		}

		result, err = tx.LoadTeam(ctx, instance.Id)
		return err
	})
	if err != nil {
		return models.Team{}, fmt.Errorf("service.Service.SubmitTeam: %w", err)
	}

	s.logger.Debug("team submission reconciled",
		zap.String("outcome", outcome.String()),
		zap.String("key", sub.NaturalKey()),
		zap.String("submitter", submitter.String()),
		zap.String("id", result.Id.String()),
	)

	if outcome.Writes() {
		s.invalidate(cache.PrefixTeam)
	}
	return result, nil
}

// UpdateTeam assigns the submitted fields and contacts to a team owned by
// caller and marks it unverified.
func (s *Service) UpdateTeam(ctx context.Context, caller, id uuid.UUID, sub models.Team) (models.Team, error) {
	var result models.Team
	changed := false

	err := s.repo.WithLock(ctx, idLockKey(cache.PrefixTeam, id), func(ctx context.Context, tx repository.Tx) error {
		instance, err := tx.TeamForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if models.Owns(instance.Inspector, caller) {
			instance.Name = sub.Name
			instance = assignTeamFields(instance, sub)
			instance.Verified = false

			err = tx.UpdateTeam(ctx, instance)
			if err != nil {
				return err
			}
			err = syncTeamContacts(ctx, tx, instance.Id, sub.Contacts, true)
			if err != nil {
				return err
			}
			changed = true
		}

		result, err = tx.LoadTeam(ctx, id)
		return err
	})
	if err != nil {
		return models.Team{}, fmt.Errorf("service.Service.UpdateTeam: %w", err)
	}

	if changed {
		s.invalidate(cache.PrefixTeam)
	} else {
		s.logger.Debug("team update ignored, caller is not the inspector",
			zap.String("id", id.String()), zap.String("caller", caller.String()))
	}
	return result, nil
}

func (s *Service) DeleteTeam(ctx context.Context, caller, id uuid.UUID) error {
	err := s.withOwnedTeam(ctx, caller, id, func(ctx context.Context, tx repository.Tx) error {
		return tx.DeleteTeam(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("service.Service.DeleteTeam: %w", err)
	}

	s.invalidate(cache.PrefixTeam)
	return nil
}

func (s *Service) AddTeamContact(ctx context.Context, caller, teamId uuid.UUID, contact models.TeamContact) (models.TeamContact, error) {
	var result models.TeamContact
	err := s.withOwnedTeam(ctx, caller, teamId, func(ctx context.Context, tx repository.Tx) error {
		var err error
		result, err = tx.UpsertTeamContact(ctx, teamId, contact)
		return err
	})
	if err != nil {
		return result, fmt.Errorf("service.Service.AddTeamContact: %w", err)
	}

	s.invalidate(cache.PrefixTeam)
	return result, nil
}

func (s *Service) DeleteTeamContact(ctx context.Context, caller, teamId, contactId uuid.UUID) error {
	err := s.withOwnedTeam(ctx, caller, teamId, func(ctx context.Context, tx repository.Tx) error {
		ok, err := tx.DeleteTeamContact(ctx, teamId, contactId)
		if err == nil && !ok {
			err = fmt.Errorf("contact %s: %w", contactId, models.ErrNotFound)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("service.Service.DeleteTeamContact: %w", err)
	}

	s.invalidate(cache.PrefixTeam)
	return nil
}

func (s *Service) SetTeamVerified(ctx context.Context, id uuid.UUID, verified bool) (models.Team, error) {
	var result models.Team
	err := s.repo.WithLock(ctx, idLockKey(cache.PrefixTeam, id), func(ctx context.Context, tx repository.Tx) error {
		instance, err := tx.TeamForUpdate(ctx, id)
		if err != nil {
			return err
		}
		instance.Verified = verified
		if err = tx.UpdateTeam(ctx, instance); err != nil {
			return err
		}
		result, err = tx.LoadTeam(ctx, id)
		return err
	})
	if err != nil {
		return result, fmt.Errorf("service.Service.SetTeamVerified: %w", err)
	}

	s.invalidate(cache.PrefixTeam)
	return result, nil
}

func mergeTeam(instance, sub models.Team) models.Team {
	instance = assignTeamFields(instance, sub)
	instance.Verified = sub.Verified
	instance.Inspector = sub.Inspector
	return instance
}

func assignTeamFields(instance, sub models.Team) models.Team {
	if sub.Supplied.Has(models.FieldType) {
		instance.Type = sub.Type
	}
	if sub.Supplied.Has(models.FieldAddress) {
		instance.Address = sub.Address
	}
	if sub.Supplied.Has(models.FieldMainText) {
		instance.MainText = sub.MainText
	}
	if sub.Supplied.Has(models.FieldWechatQRCode) {
		instance.WechatQRCode = sub.WechatQRCode
	}
	return instance
}

func syncTeamContacts(ctx context.Context, tx repository.Tx, teamId uuid.UUID, submitted []models.TeamContact, deleteUnmatched bool) error {
	contacts := reconcile.ChildSet[models.TeamContact]{
		Key: func(c models.TeamContact) string { return c.Phone },
		Upsert: func(ctx context.Context, c models.TeamContact) error {
			_, err := tx.UpsertTeamContact(ctx, teamId, c)
			return err
		},
		DeleteExcept: func(ctx context.Context, phones []string) error {
			return tx.DeleteTeamContactsExcept(ctx, teamId, phones)
		},
	}
	return reconcile.SyncChildren(ctx, contacts, submitted, deleteUnmatched)
}

func (s *Service) withOwnedTeam(ctx context.Context, caller, teamId uuid.UUID, fn func(ctx context.Context, tx repository.Tx) error) error {
	return s.repo.WithLock(ctx, idLockKey(cache.PrefixTeam, teamId), func(ctx context.Context, tx repository.Tx) error {
		instance, err := tx.TeamForUpdate(ctx, teamId)
		if err != nil {
			return err
		}
		if !models.Owns(instance.Inspector, caller) {
			return models.ErrForbidden
		}
		return fn(ctx, tx)
	})
}
