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

//// Reads

func (s *Service) GetOrganizations(ctx context.Context, caller uuid.NullUUID, q models.OrganizationQuery) ([]models.Organization, error) {
	if q.Mine {
		if !caller.Valid {
			return nil, fmt.Errorf("service.Service.GetOrganizations: %w", models.ErrUnauthorized)
		}
		q.Owner = caller
	}
	q.Home = s.home

	orgs, err := s.repo.GetOrganizations(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("service.Service.GetOrganizations: %w", err)
	}
	return orgs, nil
}

func (s *Service) GetOrganization(ctx context.Context, id uuid.UUID) (models.Organization, error) {
	org, err := s.repo.GetOrganizationByUUID(ctx, id)
	if err != nil {
		return org, fmt.Errorf("service.Service.GetOrganization: %w", err)
	}
	return org, nil
}

//// Submissions

// SubmitOrganization reconciles a manual submission against the organization
// holding the same province, city and name. It returns the stored organization
// the submission resolved to, which is the untouched foreign row when the
// submission is discarded.
func (s *Service) SubmitOrganization(ctx context.Context, submitter uuid.UUID, sub models.Organization) (models.Organization, error) {
	sub.Inspector = owner(submitter)
	sub.IsManual = true
	sub.Verified = false

	var result models.Organization
	var outcome reconcile.Outcome

	err := s.repo.WithLock(ctx, sub.NaturalKey(), func(ctx context.Context, tx repository.Tx) error {
		instance, created, err := tx.GetOrCreateOrganization(ctx, sub)
		if err != nil {
			return err
		}

		outcome = reconcile.DecideOrganization(created, reconcile.Existing{
			Manual:    instance.IsManual,
			Verified:  instance.Verified,
			Inspector: instance.Inspector,
		}, submitter)

		switch outcome {
		case reconcile.ReplaceWithNew:
			err = tx.DeleteOrganization(ctx, instance.Id)
			if err != nil {
				return err
			}
			instance, err = tx.AddOrganization(ctx, sub)
			if err != nil {
				return err
			}
		case reconcile.MergeInPlace:
			instance = mergeOrganization(instance, sub)
			err = tx.UpdateOrganization(ctx, instance)
			if err != nil {
				return err
			}
		}

		if outcome.Writes() {
			// a fresh parent has nothing to prune, a merged one keeps what was omitted
			err = syncOrganizationChildren(ctx, tx, instance.Id, sub, false)
			if err != nil {
				return err
			}
		}

		result, err = tx.LoadOrganization(ctx, instance.Id)
		return err
	})
	if err != nil {
		return models.Organization{}, fmt.Errorf("service.Service.SubmitOrganization: %w", err)
	}

	s.logger.Debug("organization submission reconciled",
		zap.String("outcome", outcome.String()),
		zap.String("key", sub.NaturalKey()),
		zap.String("submitter", submitter.String()),
		zap.String("id", result.Id.String()),
	)

	if outcome.Writes() {
		s.invalidate(cache.PrefixOrganization)
	}
	return result, nil
}

// UpdateOrganization assigns the submitted fields and children to an
// organization owned by caller and marks it unverified. A caller who does not
// own it gets the organization back unchanged.
func (s *Service) UpdateOrganization(ctx context.Context, caller, id uuid.UUID, sub models.Organization) (models.Organization, error) {
	var result models.Organization
	changed := false

	err := s.repo.WithLock(ctx, idLockKey(cache.PrefixOrganization, id), func(ctx context.Context, tx repository.Tx) error {
		instance, err := tx.OrganizationForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if models.Owns(instance.Inspector, caller) {
			instance.Province = sub.Province
			instance.City = sub.City
			instance.Name = sub.Name
			instance = assignOrganizationFields(instance, sub)
			// edited content needs another inspection
			instance.Verified = false

			err = tx.UpdateOrganization(ctx, instance)
			if err != nil {
				return err
			}
			err = syncOrganizationChildren(ctx, tx, instance.Id, sub, true)
			if err != nil {
				return err
			}
			changed = true
		}

		result, err = tx.LoadOrganization(ctx, id)
		return err
	})
	if err != nil {
		return models.Organization{}, fmt.Errorf("service.Service.UpdateOrganization: %w", err)
	}

	if changed {
		s.invalidate(cache.PrefixOrganization)
	} else {
		s.logger.Debug("organization update ignored, caller is not the inspector",
			zap.String("id", id.String()), zap.String("caller", caller.String()))
	}
	return result, nil
}

func (s *Service) DeleteOrganization(ctx context.Context, caller, id uuid.UUID) error {
	err := s.repo.WithLock(ctx, idLockKey(cache.PrefixOrganization, id), func(ctx context.Context, tx repository.Tx) error {
		instance, err := tx.OrganizationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !models.Owns(instance.Inspector, caller) {
			return models.ErrForbidden
		}
		return tx.DeleteOrganization(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("service.Service.DeleteOrganization: %w", err)
	}

	s.invalidate(cache.PrefixOrganization)
	return nil
}

//// Single children

func (s *Service) AddOrganizationContact(ctx context.Context, caller, orgId uuid.UUID, contact models.OrganizationContact) (models.OrganizationContact, error) {
	var result models.OrganizationContact
	err := s.withOwnedOrganization(ctx, caller, orgId, func(ctx context.Context, tx repository.Tx) error {
		var err error
		result, err = tx.UpsertOrganizationContact(ctx, orgId, contact)
		return err
	})
	if err != nil {
		return result, fmt.Errorf("service.Service.AddOrganizationContact: %w", err)
	}

	s.invalidate(cache.PrefixOrganization)
	return result, nil
}

func (s *Service) DeleteOrganizationContact(ctx context.Context, caller, orgId, contactId uuid.UUID) error {
	err := s.withOwnedOrganization(ctx, caller, orgId, func(ctx context.Context, tx repository.Tx) error {
		ok, err := tx.DeleteOrganizationContact(ctx, orgId, contactId)
		if err == nil && !ok {
			err = fmt.Errorf("contact %s: %w", contactId, models.ErrNotFound)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("service.Service.DeleteOrganizationContact: %w", err)
	}

	s.invalidate(cache.PrefixOrganization)
	return nil
}

func (s *Service) AddOrganizationDemand(ctx context.Context, caller, orgId uuid.UUID, demand models.OrganizationDemand) (models.OrganizationDemand, error) {
	var result models.OrganizationDemand
	err := s.withOwnedOrganization(ctx, caller, orgId, func(ctx context.Context, tx repository.Tx) error {
		var err error
		result, err = tx.UpsertOrganizationDemand(ctx, orgId, demand)
		return err
	})
	if err != nil {
		return result, fmt.Errorf("service.Service.AddOrganizationDemand: %w", err)
	}

	s.invalidate(cache.PrefixOrganization)
	return result, nil
}

func (s *Service) DeleteOrganizationDemand(ctx context.Context, caller, orgId, demandId uuid.UUID) error {
	err := s.withOwnedOrganization(ctx, caller, orgId, func(ctx context.Context, tx repository.Tx) error {
		ok, err := tx.DeleteOrganizationDemand(ctx, orgId, demandId)
		if err == nil && !ok {
			err = fmt.Errorf("demand %s: %w", demandId, models.ErrNotFound)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("service.Service.DeleteOrganizationDemand: %w", err)
	}

	s.invalidate(cache.PrefixOrganization)
	return nil
}

//// Back office

type ImportResult struct {
	Created  int `json:"created"`
	Replaced int `json:"replaced"`
	Skipped  int `json:"skipped"`
}

// ImportOrganizations bulk-loads back-office organizations. Rows are created
// without an inspector; a colliding back-office row is overwritten together
// with its children, a colliding manual row is kept as is.
func (s *Service) ImportOrganizations(ctx context.Context, records []models.Organization) (ImportResult, error) {
	var res ImportResult

	for _, rec := range records {
		rec.IsManual = false
		rec.Inspector = uuid.NullUUID{}

		err := s.repo.WithLock(ctx, rec.NaturalKey(), func(ctx context.Context, tx repository.Tx) error {
			instance, created, err := tx.GetOrCreateOrganization(ctx, rec)
			if err != nil {
				return err
			}

			switch {
			case created:
				res.Created++
				return syncOrganizationChildren(ctx, tx, instance.Id, rec, false)
			case instance.IsManual:
				res.Skipped++
				return nil
			default:
				res.Replaced++
				instance.Address = rec.Address
				instance.Source = rec.Source
				instance.Emergency = rec.Emergency
				instance.Verified = rec.Verified
				instance.Inspector = uuid.NullUUID{}
				if err = tx.UpdateOrganization(ctx, instance); err != nil {
					return err
				}
				return syncOrganizationChildren(ctx, tx, instance.Id, rec, true)
			}
		})
		if err != nil {
			if res.Created+res.Replaced > 0 {
				s.invalidate(cache.PrefixOrganization)
			}
			return res, fmt.Errorf("service.Service.ImportOrganizations: %s: %w", rec.NaturalKey(), err)
		}
	}

	s.logger.Info("organizations imported",
		zap.Int("created", res.Created), zap.Int("replaced", res.Replaced), zap.Int("skipped", res.Skipped))

	if res.Created+res.Replaced > 0 {
		s.invalidate(cache.PrefixOrganization)
	}
	return res, nil
}

// SetOrganizationVerified records the inspection result of an organization.
func (s *Service) SetOrganizationVerified(ctx context.Context, id uuid.UUID, verified bool) (models.Organization, error) {
	var result models.Organization
	err := s.repo.WithLock(ctx, idLockKey(cache.PrefixOrganization, id), func(ctx context.Context, tx repository.Tx) error {
		instance, err := tx.OrganizationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		instance.Verified = verified
		if err = tx.UpdateOrganization(ctx, instance); err != nil {
			return err
		}
		result, err = tx.LoadOrganization(ctx, id)
		return err
	})
	if err != nil {
		return result, fmt.Errorf("service.Service.SetOrganizationVerified: %w", err)
	}

	s.invalidate(cache.PrefixOrganization)
	return result, nil
}

//// Service

// mergeOrganization assigns the submitted plain fields onto the stored row,
// keeping its identity and creation time.
func mergeOrganization(instance, sub models.Organization) models.Organization {
	instance = assignOrganizationFields(instance, sub)
	instance.IsManual = sub.IsManual
	instance.Verified = sub.Verified
	instance.Inspector = sub.Inspector
	return instance
}

// assignOrganizationFields copies the optional fields the submission carried.
func assignOrganizationFields(instance, sub models.Organization) models.Organization {
	if sub.Supplied.Has(models.FieldAddress) {
		instance.Address = sub.Address
	}
	if sub.Supplied.Has(models.FieldSource) {
		instance.Source = sub.Source
	}
	if sub.Supplied.Has(models.FieldEmergency) {
		instance.Emergency = sub.Emergency
	}
	return instance
}

func syncOrganizationChildren(ctx context.Context, tx repository.Tx, orgId uuid.UUID, sub models.Organization, deleteUnmatched bool) error {
	contacts := reconcile.ChildSet[models.OrganizationContact]{
		Key: func(c models.OrganizationContact) string { return c.Phone },
		Upsert: func(ctx context.Context, c models.OrganizationContact) error {
			_, err := tx.UpsertOrganizationContact(ctx, orgId, c)
			return err
		},
		DeleteExcept: func(ctx context.Context, phones []string) error {
			return tx.DeleteOrganizationContactsExcept(ctx, orgId, phones)
		},
	}
	err := reconcile.SyncChildren(ctx, contacts, sub.Contacts, deleteUnmatched)
	if err != nil {
		return err
	}

	demands := reconcile.ChildSet[models.OrganizationDemand]{
		Key: func(d models.OrganizationDemand) string { return d.Name },
		Upsert: func(ctx context.Context, d models.OrganizationDemand) error {
			_, err := tx.UpsertOrganizationDemand(ctx, orgId, d)
			return err
		},
		DeleteExcept: func(ctx context.Context, names []string) error {
			return tx.DeleteOrganizationDemandsExcept(ctx, orgId, names)
		},
	}
	return reconcile.SyncChildren(ctx, demands, sub.Demands, deleteUnmatched)
}

func (s *Service) withOwnedOrganization(ctx context.Context, caller, orgId uuid.UUID, fn func(ctx context.Context, tx repository.Tx) error) error {
	return s.repo.WithLock(ctx, idLockKey(cache.PrefixOrganization, orgId), func(ctx context.Context, tx repository.Tx) error {
		instance, err := tx.OrganizationForUpdate(ctx, orgId)
		if err != nil {
			return err
		}
		if !models.Owns(instance.Inspector, caller) {
			return models.ErrForbidden
		}
		return fn(ctx, tx)
	})
}
