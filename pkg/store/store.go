// Package store provides durable Theatre persistence. Two implementations
// share one interface: a JSON file store for single-node use and a
// database/sql store for anything shared.
//
// Both enforce lifecycle legality at the storage boundary: a state update
// that is not a legal transition is rejected before any write happens.
package store

import (
	"context"
	"errors"

	"github.com/Calibrant-Labs/theatre/core/pkg/contracts"
	"github.com/Calibrant-Labs/theatre/core/pkg/lifecycle"
)

// ErrNotFound is returned when no Theatre exists under the requested ID.
var ErrNotFound = errors.New("theatre not found")

// ErrExists is returned when creating a Theatre whose ID is already taken.
var ErrExists = errors.New("theatre already exists")

// Store is the durable interface for Theatre management.
type Store interface {
	// Create persists a new Theatre. The ID must be unused.
	Create(ctx context.Context, t contracts.Theatre) error

	// Get retrieves a Theatre by ID.
	Get(ctx context.Context, id string) (contracts.Theatre, error)

	// UpdateState transitions the Theatre to a new lifecycle state. Illegal
	// transitions fail with lifecycle.InvalidTransitionError and leave the
	// record untouched.
	UpdateState(ctx context.Context, id string, target lifecycle.State) error

	// Update replaces the stored record. The record's state must equal the
	// stored state; UpdateState is the only way to move between states.
	Update(ctx context.Context, t contracts.Theatre) error

	// ListByState retrieves all Theatres in the given state.
	ListByState(ctx context.Context, state lifecycle.State) ([]contracts.Theatre, error)

	// ListAll retrieves every Theatre.
	ListAll(ctx context.Context) ([]contracts.Theatre, error)
}

// checkTransition validates a stored-state to target-state move.
func checkTransition(id string, current, target lifecycle.State) error {
	_, err := lifecycle.Transition(id, current, target)
	return err
}
