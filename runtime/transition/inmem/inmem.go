// Package inmem provides an in-memory implementation of transition.Store.
// Adapted from the teacher's runlog/inmem package. Transitions are held
// only in process memory and do not survive a restart.
package inmem

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/flowforge/taskcore/runtime/transition"
)

// Store implements transition.Store in memory.
type Store struct {
	mu      sync.Mutex
	nextSeq map[string]int64
	log     map[string][]*transition.Transition
}

// New returns a new in-memory transition store.
func New() *Store {
	return &Store{
		nextSeq: make(map[string]int64),
		log:     make(map[string][]*transition.Transition),
	}
}

// Append implements transition.Store. It rejects appending after a
// terminal transition (spec §3: "After a terminal transition, no further
// transitions may be appended"), mirroring an invariant the statemachine
// also enforces before calling Append so both layers fail closed.
func (s *Store) Append(_ context.Context, t *transition.Transition) error {
	if t == nil {
		return fmt.Errorf("transition: transition is required")
	}
	if t.ExecutionID == "" {
		return fmt.Errorf("transition: execution_id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.log[t.ExecutionID]
	if len(existing) > 0 && existing[len(existing)-1].Type.Terminal() {
		return fmt.Errorf("transition: execution %q already terminal", t.ExecutionID)
	}

	seq := s.nextSeq[t.ExecutionID] + 1
	s.nextSeq[t.ExecutionID] = seq

	rec := *t
	rec.Seq = seq
	rec.ID = t.ExecutionID + "-" + strconv.FormatInt(seq, 10)
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	s.log[t.ExecutionID] = append(s.log[t.ExecutionID], &rec)
	return nil
}

// List implements transition.Store.
func (s *Store) List(_ context.Context, executionID string, cursor string, limit int) (transition.Page, error) {
	if executionID == "" {
		return transition.Page{}, fmt.Errorf("transition: execution_id is required")
	}
	if limit <= 0 {
		return transition.Page{}, fmt.Errorf("transition: limit must be > 0")
	}

	var after int64
	if cursor != "" {
		seq, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return transition.Page{}, fmt.Errorf("transition: invalid cursor %q: %w", cursor, err)
		}
		after = seq
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.log[executionID]
	if len(all) == 0 {
		return transition.Page{}, nil
	}

	start := 0
	if after > 0 {
		start = int(after)
		if start >= len(all) {
			return transition.Page{}, nil
		}
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}

	page := append([]*transition.Transition(nil), all[start:end]...)
	var next string
	if end < len(all) {
		next = strconv.FormatInt(page[len(page)-1].Seq, 10)
	}
	return transition.Page{Transitions: page, NextCursor: next}, nil
}

// Latest implements transition.Store.
func (s *Store) Latest(_ context.Context, executionID string) (*transition.Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.log[executionID]
	if len(all) == 0 {
		return nil, nil
	}
	last := *all[len(all)-1]
	return &last, nil
}
