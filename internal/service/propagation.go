package service

import (
	"context"
	"fmt"

	"kasirbill/backend/internal/domain"
	"kasirbill/backend/internal/store"
)

// SnapshotPolicy says, per bill snapshot column, whether a change on the
// customer record is copied onto that customer's existing bills.
type SnapshotPolicy map[domain.SnapshotField]bool

// DefaultSnapshotPolicy keeps only the email in sync. Email is the
// reconciliation key; the other columns stay as they were at sale time.
func DefaultSnapshotPolicy() SnapshotPolicy {
	return SnapshotPolicy{
		domain.SnapshotName:    false,
		domain.SnapshotEmail:   true,
		domain.SnapshotAddress: false,
		domain.SnapshotPhone:   false,
	}
}

var snapshotFields = []domain.SnapshotField{
	domain.SnapshotName,
	domain.SnapshotEmail,
	domain.SnapshotAddress,
	domain.SnapshotPhone,
}

// IdentityPropagator repairs bill snapshots after a customer edit. It is
// invoked directly by the customer update path, inside the same transaction,
// and only writes bills, so it never triggers another customer update.
type IdentityPropagator struct {
	policy SnapshotPolicy
}

func NewIdentityPropagator(policy SnapshotPolicy) *IdentityPropagator {
	if policy == nil {
		policy = DefaultSnapshotPolicy()
	}
	return &IdentityPropagator{policy: policy}
}

// Changes lists the snapshot columns to rewrite for a before/after pair.
func (p *IdentityPropagator) Changes(before domain.Customer, after domain.Customer) map[domain.SnapshotField]string {
	changes := make(map[domain.SnapshotField]string)
	for _, field := range snapshotFields {
		if !p.policy[field] {
			continue
		}
		if next := after.SnapshotValue(field); next != before.SnapshotValue(field) {
			changes[field] = next
		}
	}
	return changes
}

// Propagate rewrites the bills linked to the customer by foreign key and
// returns how many were touched. An error must abort the enclosing update.
func (p *IdentityPropagator) Propagate(ctx context.Context, tx store.Tx, before domain.Customer, after domain.Customer) (int64, error) {
	if before.ID != after.ID {
		return 0, fmt.Errorf("%w: customer id changed during update", store.ErrValidation)
	}

	changes := p.Changes(before, after)
	if len(changes) == 0 {
		return 0, nil
	}

	affected, err := tx.SyncBillSnapshots(ctx, after.ID, changes)
	if err != nil {
		return 0, fmt.Errorf("propagate snapshot for customer %d: %w", after.ID, err)
	}
	return affected, nil
}
