package service

import (
	"context"
	"testing"

	"kasirbill/backend/internal/domain"
)

func TestDefaultPolicyPropagatesOnlyEmail(t *testing.T) {
	p := NewIdentityPropagator(nil)
	before := domain.Customer{ID: 1, Name: "A", Email: "a@example.com", Address: "x", Phone: "1"}
	after := domain.Customer{ID: 1, Name: "B", Email: "b@example.com", Address: "y", Phone: "2"}

	changes := p.Changes(before, after)
	if len(changes) != 1 || changes[domain.SnapshotEmail] != "b@example.com" {
		t.Fatalf("expected only email change, got %v", changes)
	}

	after.Email = before.Email
	if changes := p.Changes(before, after); len(changes) != 0 {
		t.Fatalf("expected no propagation without email change, got %v", changes)
	}
}

func TestCustomPolicyExtendsPropagation(t *testing.T) {
	policy := DefaultSnapshotPolicy()
	policy[domain.SnapshotPhone] = true
	p := NewIdentityPropagator(policy)

	changes := p.Changes(
		domain.Customer{ID: 1, Email: "a@example.com", Phone: "1"},
		domain.Customer{ID: 1, Email: "a@example.com", Phone: "2"},
	)
	if len(changes) != 1 || changes[domain.SnapshotPhone] != "2" {
		t.Fatalf("expected phone change, got %v", changes)
	}
}

func TestPropagateRejectsIdentitySwap(t *testing.T) {
	p := NewIdentityPropagator(nil)
	_, err := p.Propagate(context.Background(), nil, domain.Customer{ID: 1}, domain.Customer{ID: 2})
	if err == nil {
		t.Fatalf("expected error when customer id differs")
	}
}
