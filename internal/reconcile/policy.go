// Package reconcile decides how a submitted root entity is resolved against a
// colliding stored one, and keeps child collections in step with submissions.
package reconcile

import (
	"github.com/google/uuid"

	"medrelief/internal/models"
)

type Outcome int

const (
	// Create: nothing collided, the submission became a new row.
	Create Outcome = iota
	// ReplaceWithNew: the colliding row is deleted and the submission inserted.
	ReplaceWithNew
	// MergeInPlace: the colliding row keeps its identity and takes the submitted fields.
	MergeInPlace
	// Discard: the submission is dropped, storage stays unchanged.
	Discard
)

func (o Outcome) String() string {
	switch o {
	case Create:
		return "create"
	case ReplaceWithNew:
		return "replace"
	case MergeInPlace:
		return "merge"
	case Discard:
		return "discard"
	default:
		return "unknown"
	}
}

// Writes reports whether the outcome touches storage.
func (o Outcome) Writes() bool {
	return o != Discard
}

// Existing is the part of a colliding row the policy depends on.
type Existing struct {
	Manual    bool
	Verified  bool
	Inspector uuid.NullUUID
}

// DecideOrganization resolves an organization submission.
//
//	back-office row          -> replace (verification is irrelevant)
//	own row, verified        -> merge
//	own row, unverified      -> replace
//	someone else's row       -> discard
func DecideOrganization(created bool, existing Existing, submitter uuid.UUID) Outcome {
	if created {
		return Create
	}
	if !existing.Manual {
		return ReplaceWithNew
	}
	if !models.Owns(existing.Inspector, submitter) {
		return Discard
	}
	if existing.Verified {
		return MergeInPlace
	}
	return ReplaceWithNew
}

// DecideTeam resolves a team submission. Teams are never back-office loaded.
func DecideTeam(created bool, existing Existing, submitter uuid.UUID) Outcome {
	existing.Manual = true
	return DecideOrganization(created, existing, submitter)
}
