// Package mongo wires the transition.Store interface to the MongoDB client.
package mongo

import (
	"context"
	"errors"

	clientsmongo "github.com/flowforge/taskcore/runtime/transition/mongo/clients/mongo"
	"github.com/flowforge/taskcore/runtime/transition"
)

// Store implements transition.Store by delegating to the Mongo client.
type Store struct {
	client clientsmongo.Client
}

// NewStore builds a Mongo-backed transition store using the provided client.
func NewStore(client clientsmongo.Client) (*Store, error) {
	if client == nil {
		return nil, errors.New("client is required")
	}
	return &Store{client: client}, nil
}

// Append implements transition.Store.
func (s *Store) Append(ctx context.Context, t *transition.Transition) error {
	return s.client.Append(ctx, t)
}

// List implements transition.Store.
func (s *Store) List(ctx context.Context, executionID string, cursor string, limit int) (transition.Page, error) {
	return s.client.List(ctx, executionID, cursor, limit)
}

// Latest implements transition.Store.
func (s *Store) Latest(ctx context.Context, executionID string) (*transition.Transition, error) {
	return s.client.Latest(ctx, executionID)
}
