package reconcile

import (
	"context"
	"fmt"
)

// ChildSet binds a child collection of one parent row.
type ChildSet[C any] struct {
	// Key extracts the natural key of a child within its parent.
	Key func(C) string
	// Upsert creates the (parent, key) child or replaces all of its fields.
	Upsert func(ctx context.Context, child C) error
	// DeleteExcept removes the parent's children whose key is not listed.
	DeleteExcept func(ctx context.Context, keys []string) error
}

// SyncChildren upserts every submitted child carrying a key. Children without
// a key are skipped. When deleteUnmatched is set and at least one keyed child
// was submitted, stored children missing from the submission are deleted; an
// empty submission never wipes the collection.
func SyncChildren[C any](ctx context.Context, set ChildSet[C], submitted []C, deleteUnmatched bool) error {
	keys := make([]string, 0, len(submitted))
	for _, child := range submitted {
		key := set.Key(child)
		if len(key) == 0 {
			continue
		}
		keys = append(keys, key)

		err := set.Upsert(ctx, child)
		if err != nil {
			return fmt.Errorf("reconcile.SyncChildren: upsert %q: %w", key, err)
		}
	}

	if !deleteUnmatched || len(keys) == 0 {
		return nil
	}

	err := set.DeleteExcept(ctx, keys)
	if err != nil {
		return fmt.Errorf("reconcile.SyncChildren: %w", err)
	}
	return nil
}
